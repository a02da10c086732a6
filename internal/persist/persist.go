// Package persist writes the two file kinds a worker leaves behind on
// shutdown: the per-seed (seed, iterations) record replay reads back, and
// the best-effort human-readable crash dump of the worker's last session.
// Both are written atomically (write-to-temp-then-rename) so a process
// killed mid-write never corrupts a previously good file.
package persist

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/natefinch/atomic"

	"mqttfume/fume/internal/model"
	"mqttfume/fume/internal/packets"
)

// WorkerRecord atomically writes {seed, iterations} to
// <dir>/fuzzing_<seed>.txt in TOML, the format internal/replay reads back.
// Only live fuzzing (an unbounded iteration cap) calls this; a finite-cap
// replay run has nothing new to persist.
func WorkerRecord(dir string, seed, iterations uint64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: create %s: %w", dir, err)
	}

	rec := model.WorkerRecord{
		Seed:       strconv.FormatUint(seed, 10),
		Iterations: strconv.FormatUint(iterations, 10),
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("persist: encode worker record: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("fuzzing_%d.txt", seed))
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	return nil
}

// CrashDump atomically writes a hex dump of every packet sequence sent
// during a worker's last session to <dir>/crash_<seed>.txt. The format is
// human-readable and not load-bearing for replay (replay reconstructs the
// session from the seed and iteration count instead).
func CrashDump(dir string, seed uint64, sequences []*packets.Sequence) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: create %s: %w", dir, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# crash dump for seed %d, recorded %s\n", seed, time.Now().UTC().Format(time.RFC3339))
	for i, seq := range sequences {
		fmt.Fprintf(&buf, "\n## session %d (%d packets)\n", i, seq.Size())
		for j := 0; j < seq.Size(); j++ {
			fmt.Fprintf(&buf, "[%d] %s\n", j, hex.EncodeToString(seq.At(j)))
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("crash_%d.txt", seed))
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	return nil
}
