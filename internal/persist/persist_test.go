package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"mqttfume/fume/internal/model"
	"mqttfume/fume/internal/packets"
)

func TestWorkerRecordRoundTrips(t *testing.T) {
	dir := t.TempDir()

	if err := WorkerRecord(dir, 42, 1234); err != nil {
		t.Fatalf("WorkerRecord: %v", err)
	}

	path := filepath.Join(dir, "fuzzing_42.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var rec model.WorkerRecord
	if _, err := toml.Decode(string(data), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Seed != "42" || rec.Iterations != "1234" {
		t.Fatalf("rec = %+v, want seed=42 iterations=1234", rec)
	}
}

func TestCrashDumpWritesHexContent(t *testing.T) {
	dir := t.TempDir()

	seq := packets.New()
	seq.Append(packets.Template(packets.Connect))
	seq.Append(packets.Template(packets.Disconnect))

	if err := CrashDump(dir, 7, []*packets.Sequence{seq}); err != nil {
		t.Fatalf("CrashDump: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "crash_7.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "session 0") {
		t.Fatalf("crash dump missing session header: %s", data)
	}
}
