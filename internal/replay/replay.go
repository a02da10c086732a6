// Package replay re-runs persisted (seed, iterations) pairs captured by
// previous worker shutdowns, either one at a time or all concurrently,
// until the broker under test dies or every recorded seed has been
// exhausted.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"mqttfume/fume/internal/coverage"
	"mqttfume/fume/internal/model"
	"mqttfume/fume/internal/worker"
)

// Driver replays every threads/fuzzing_*.txt file found under ThreadsDir.
type Driver struct {
	ThreadsDir string
	Dial       worker.Dialer
	Table      *coverage.Table
	TimeoutMS  int
	Logger     *slog.Logger
}

// seedRecord is one parsed threads/fuzzing_<seed>.txt file.
type seedRecord struct {
	seed       uint64
	iterations uint64
}

// loadRecords reads and parses every fuzzing_*.txt file in ThreadsDir.
func (d *Driver) loadRecords() ([]seedRecord, error) {
	entries, err := os.ReadDir(d.ThreadsDir)
	if err != nil {
		return nil, fmt.Errorf("replay: read %s: %w", d.ThreadsDir, err)
	}

	var records []seedRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "fuzzing_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.ThreadsDir, name))
		if err != nil {
			return nil, fmt.Errorf("replay: read %s: %w", name, err)
		}
		var rec model.WorkerRecord
		if _, err := toml.Decode(string(data), &rec); err != nil {
			return nil, fmt.Errorf("replay: parse %s: %w", name, err)
		}
		seed, err := strconv.ParseUint(rec.Seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("replay: %s: bad seed %q: %w", name, rec.Seed, err)
		}
		iterations, err := strconv.ParseUint(rec.Iterations, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("replay: %s: bad iterations %q: %w", name, rec.Iterations, err)
		}
		records = append(records, seedRecord{seed: seed, iterations: iterations})
	}
	return records, nil
}

// runOne replays a single record against the shared broker-died context
// parentDied, and reports whether that context was observed to have died by
// the time the worker returned.
func (d *Driver) runOne(parentDied context.Context, rec seedRecord) model.ReplayOutcome {
	w := worker.New(worker.Config{
		Seed:      rec.seed,
		Cap:       rec.iterations,
		TimeoutMS: d.TimeoutMS,
		Dial:      d.Dial,
		Table:     d.Table,
		Logger:    d.Logger,
	})
	w.Run(parentDied)

	crashed := false
	select {
	case <-parentDied.Done():
		crashed = true
	default:
	}
	return model.ReplayOutcome{Seed: rec.seed, Crashed: crashed}
}

// Sequential replays each record in turn, stopping and reporting the first
// seed whose replay is observed concurrent with (or following) diedCtx
// firing.
func (d *Driver) Sequential(diedCtx context.Context) (*model.ReplayOutcome, error) {
	records, err := d.loadRecords()
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		outcome := d.runOne(diedCtx, rec)
		if outcome.Crashed {
			return &outcome, nil
		}
		select {
		case <-diedCtx.Done():
			outcome.Crashed = true
			return &outcome, nil
		default:
		}
	}
	return nil, nil
}

// Parallel replays every record concurrently and returns every outcome once
// all have completed.
func (d *Driver) Parallel(diedCtx context.Context) ([]model.ReplayOutcome, error) {
	records, err := d.loadRecords()
	if err != nil {
		return nil, err
	}

	outcomes := make([]model.ReplayOutcome, len(records))
	var wg sync.WaitGroup
	for i, rec := range records {
		i, rec := i, rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = d.runOne(diedCtx, rec)
		}()
	}
	wg.Wait()
	return outcomes, nil
}
