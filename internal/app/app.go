// Package app wires the fuzzing engine's components (packet templates,
// mutation, the coverage table, the transport adapter, the per-session
// state machine, the worker pool, the broker supervisor, the rate tracker,
// and the replay driver) into the two entry points cmd/fume exposes: a live
// fuzzing run and a replay run. It also serves a read-only HTTP status
// endpoint an operator can poll mid-run.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mqttfume/fume/internal/config"
	"mqttfume/fume/internal/coverage"
	"mqttfume/fume/internal/journal"
	"mqttfume/fume/internal/model"
	"mqttfume/fume/internal/packetpool"
	"mqttfume/fume/internal/packets"
	"mqttfume/fume/internal/persist"
	"mqttfume/fume/internal/rate"
	"mqttfume/fume/internal/replay"
	"mqttfume/fume/internal/supervisor"
	"mqttfume/fume/internal/transport"
	"mqttfume/fume/internal/worker"
)

// App holds everything one `fume fuzz` or `fume replay` invocation needs.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	statusMu sync.RWMutex
	status   statusSnapshot
}

// New constructs an App over cfg. logger is used for every component;
// a nil logger falls back to slog.Default().
func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// statusSnapshot is the JSON body served at /status.
type statusSnapshot struct {
	RunID        string `json:"run_id"`
	Mode         string `json:"mode"`
	Target       string `json:"target"`
	Threads      int    `json:"threads"`
	StartedAt    string `json:"started_at"`
	CoverageSize int    `json:"coverage_size"`
	Crashed      bool   `json:"crashed"`
	CrashSeed    uint64 `json:"crash_seed,omitempty"`
}

func (a *App) setStatus(s statusSnapshot) {
	a.statusMu.Lock()
	a.status = s
	a.statusMu.Unlock()
}

func (a *App) updateCoverage(n int) {
	a.statusMu.Lock()
	a.status.CoverageSize = n
	a.statusMu.Unlock()
}

func (a *App) markCrashed(seed uint64) {
	a.statusMu.Lock()
	a.status.Crashed = true
	a.status.CrashSeed = seed
	a.statusMu.Unlock()
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		a.statusMu.RLock()
		snap := a.status
		a.statusMu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
	return mux
}

func (a *App) serveStatus(ctx context.Context) (shutdown func()) {
	if a.cfg.StatusAddr == "" {
		return func() {}
	}
	srv := &http.Server{Addr: a.cfg.StatusAddr, Handler: a.routes()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("status server stopped", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// dialer returns the worker.Dialer matching cfg.Transport.
func (a *App) dialer() worker.Dialer {
	if a.cfg.Transport == "ws" {
		url := a.cfg.Target
		if !strings.Contains(url, "://") {
			url = "ws://" + url
		}
		return func(ctx context.Context) (*transport.Adapter, error) {
			return transport.DialWebSocket(ctx, url)
		}
	}
	return func(ctx context.Context) (*transport.Adapter, error) {
		return transport.DialTCP(ctx, a.cfg.Target)
	}
}

// loadCoverageTable builds the starting coverage table for a run: the
// persisted packet_pool.toml snapshot if one exists, optionally layered
// with the embedded CVE corpus. Neither source is required; a fresh run
// starts from an empty table.
func (a *App) loadCoverageTable() (*coverage.Table, error) {
	table := coverage.New()

	if data, err := os.ReadFile(a.cfg.PacketPoolPath); err == nil {
		if err := packetpool.Merge(table, data); err != nil {
			return nil, fmt.Errorf("app: load %s: %w", a.cfg.PacketPoolPath, err)
		}
		a.logger.Info("loaded coverage snapshot", "path", a.cfg.PacketPoolPath, "entries", table.Len())
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("app: read %s: %w", a.cfg.PacketPoolPath, err)
	}

	if a.cfg.SeedCVECorpus {
		if err := packetpool.Merge(table, packets.CVECorpus()); err != nil {
			return nil, fmt.Errorf("app: seed cve corpus: %w", err)
		}
		a.logger.Info("seeded cve corpus", "entries", table.Len())
	}

	return table, nil
}

// saveCoverageTable writes table's current contents to
// cfg.PacketPoolPath, so a future replay run's SelectFromQueue decisions
// can be reproduced.
func (a *App) saveCoverageTable(table *coverage.Table) error {
	encoded, err := packetpool.EncodeTable(table)
	if err != nil {
		return fmt.Errorf("app: encode coverage snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.PacketPoolPath), 0o755); err != nil {
		return fmt.Errorf("app: create snapshot directory: %w", err)
	}
	if err := os.WriteFile(a.cfg.PacketPoolPath, encoded, 0o644); err != nil {
		return fmt.Errorf("app: write %s: %w", a.cfg.PacketPoolPath, err)
	}
	return nil
}

// RunFuzz drives a live fuzzing run: it starts the broker subprocess,
// spawns cfg.Threads workers against it sharing one coverage table, serves
// the status endpoint, and blocks until the broker dies or ctx is
// canceled. On return every worker has persisted its (seed, iterations)
// record and crash dump, and the coverage table has been snapshotted to
// cfg.PacketPoolPath.
func (a *App) RunFuzz(ctx context.Context) error {
	table, err := a.loadCoverageTable()
	if err != nil {
		return err
	}

	j, err := journal.Open(a.cfg.JournalPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			a.logger.Warn("close journal", "error", cerr)
		}
	}()
	if err := j.InitSchema(ctx); err != nil {
		return err
	}

	sup, err := supervisor.Start(ctx, a.cfg.BrokerCommand, a.logger)
	if err != nil {
		return fmt.Errorf("app: start broker: %w", err)
	}

	runID, err := j.StartRun(ctx, a.cfg.Target, a.cfg.BrokerCommand, a.cfg.Threads, a.cfg.TimeoutMS)
	if err != nil {
		a.logger.Warn("journal: start run", "error", err)
	}

	a.setStatus(statusSnapshot{
		RunID:     runID,
		Mode:      "fuzz",
		Target:    a.cfg.Target,
		Threads:   a.cfg.Threads,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	})
	stopStatus := a.serveStatus(ctx)
	defer stopStatus()

	rateCh := make(chan uint64, a.cfg.Threads)
	tracker := rate.New(a.cfg.Threads, rateCh, a.logger)
	trackerCtx, stopTracker := context.WithCancel(ctx)
	defer stopTracker()
	go tracker.Run(trackerCtx)

	go a.pollCoverage(trackerCtx, table)

	seedSource := rand.New(rand.NewSource(time.Now().UnixNano()))
	dial := a.dialer()

	var wg sync.WaitGroup
	for i := 0; i < a.cfg.Threads; i++ {
		seed := seedSource.Uint64()
		w := worker.New(worker.Config{
			Seed:      seed,
			Target:    a.cfg.Target,
			Cap:       math.MaxUint64,
			TimeoutMS: a.cfg.TimeoutMS,
			Dial:      dial,
			Table:     table,
			RateCh:    rateCh,
			Logger:    a.logger,
		})

		wg.Add(1)
		go func(seed uint64, w *worker.Worker) {
			defer wg.Done()
			w.Run(sup.Died())

			if err := persist.WorkerRecord(a.cfg.ThreadsDir, seed, w.Iterations()); err != nil {
				a.logger.Warn("persist worker record", "seed", seed, "error", err)
			}
			if err := persist.CrashDump(a.cfg.CrashesDir, seed, w.LastSequences()); err != nil {
				a.logger.Warn("persist crash dump", "seed", seed, "error", err)
			}
			if err := j.RecordWorker(context.Background(), runID, seed, w.Iterations()); err != nil {
				a.logger.Debug("journal: record worker", "error", err)
			}

			select {
			case <-sup.Died().Done():
				a.markCrashed(seed)
				a.logger.Warn("broker died", "seed", seed, "iterations", w.Iterations())
			default:
			}
		}(seed, w)
	}

	select {
	case <-ctx.Done():
	case <-sup.Died().Done():
	}

	wg.Wait()
	stopTracker()

	if err := a.saveCoverageTable(table); err != nil {
		a.logger.Warn("save coverage snapshot", "error", err)
	}

	a.statusMu.RLock()
	crashed := a.status.Crashed
	a.statusMu.RUnlock()
	if err := j.EndRun(context.Background(), runID, crashed); err != nil {
		a.logger.Debug("journal: end run", "error", err)
	}

	_ = sup.Stop()
	return nil
}

// pollCoverage periodically refreshes the status snapshot's coverage size.
// Purely observational; it never touches the table's lock beyond Len().
func (a *App) pollCoverage(ctx context.Context, table *coverage.Table) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.updateCoverage(table.Len())
		}
	}
}

// RunReplay re-runs every persisted (seed, iterations) pair under
// cfg.ThreadsDir against a freshly started broker, sequentially or in
// parallel depending on cfg.Sequential, until the broker dies or every
// recorded seed has been replayed.
func (a *App) RunReplay(ctx context.Context) error {
	table := coverage.New()
	if data, err := os.ReadFile(a.cfg.PacketPoolPath); err == nil {
		decoded, err := packetpool.Decode(data)
		if err != nil {
			return fmt.Errorf("app: load %s: %w", a.cfg.PacketPoolPath, err)
		}
		table = decoded
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("app: read %s: %w", a.cfg.PacketPoolPath, err)
	} else {
		a.logger.Warn("no coverage snapshot found; SelectFromQueue decisions will not be reproduced exactly", "path", a.cfg.PacketPoolPath)
	}

	j, err := journal.Open(a.cfg.JournalPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			a.logger.Warn("close journal", "error", cerr)
		}
	}()
	if err := j.InitSchema(ctx); err != nil {
		return err
	}

	sup, err := supervisor.Start(ctx, a.cfg.BrokerCommand, a.logger)
	if err != nil {
		return fmt.Errorf("app: start broker: %w", err)
	}

	runID, err := j.StartRun(ctx, a.cfg.Target, a.cfg.BrokerCommand, 0, a.cfg.TimeoutMS)
	if err != nil {
		a.logger.Warn("journal: start run", "error", err)
	}

	driver := &replay.Driver{
		ThreadsDir: a.cfg.ThreadsDir,
		Dial:       a.dialer(),
		Table:      table,
		TimeoutMS:  a.cfg.TimeoutMS,
		Logger:     a.logger,
	}

	var crashed bool
	if a.cfg.Sequential {
		outcome, err := driver.Sequential(sup.Died())
		if err != nil {
			_ = sup.Stop()
			return fmt.Errorf("app: sequential replay: %w", err)
		}
		crashed = a.reportSequential(ctx, j, runID, outcome)
	} else {
		outcomes, err := driver.Parallel(sup.Died())
		if err != nil {
			_ = sup.Stop()
			return fmt.Errorf("app: parallel replay: %w", err)
		}
		crashed = a.reportParallel(ctx, j, runID, outcomes)
	}

	if err := j.EndRun(context.Background(), runID, crashed); err != nil {
		a.logger.Debug("journal: end run", "error", err)
	}
	_ = sup.Stop()
	return nil
}

func (a *App) reportSequential(ctx context.Context, j *journal.Journal, runID string, outcome *model.ReplayOutcome) bool {
	if outcome == nil {
		a.logger.Info("replay complete: no crash found")
		return false
	}
	if err := j.RecordReplay(ctx, outcome.Seed, outcome.Crashed); err != nil {
		a.logger.Debug("journal: record replay", "error", err)
	}
	if outcome.Crashed {
		a.logger.Warn("replay reproduced the crash", "seed", outcome.Seed)
		return true
	}
	a.logger.Info("replay complete: no crash found")
	return false
}

func (a *App) reportParallel(ctx context.Context, j *journal.Journal, runID string, outcomes []model.ReplayOutcome) bool {
	crashed := false
	for _, o := range outcomes {
		if err := j.RecordReplay(ctx, o.Seed, o.Crashed); err != nil {
			a.logger.Debug("journal: record replay", "error", err)
		}
		if o.Crashed {
			crashed = true
			a.logger.Warn("replay reproduced the crash", "seed", o.Seed)
		}
	}
	if !crashed {
		a.logger.Info("replay complete: no crash found")
	}
	return crashed
}
