// Package worker implements the per-connection reconnect loop: open a
// transport, run one state-machine session over it, account for the
// iteration, and repeat until the broker dies or the iteration cap is hit.
package worker

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff"

	"mqttfume/fume/internal/coverage"
	"mqttfume/fume/internal/markov"
	"mqttfume/fume/internal/packets"
	"mqttfume/fume/internal/transport"
)

// reconnectBackoff is the fixed 100ms pause between failed transport opens,
// chosen to ride out ephemeral-port exhaustion rather than hammer a broker
// that is still binding its listening socket.
const reconnectBackoff = 100 * time.Millisecond

// Dialer opens a fresh transport to the fuzzing target. Separated out so
// tests can substitute an in-memory stream without a real socket.
type Dialer func(ctx context.Context) (*transport.Adapter, error)

// Config parameterizes one worker's entire lifetime.
type Config struct {
	Seed      uint64
	Target    string
	Cap       uint64 // iterations to run; math.MaxUint64 for live fuzzing
	TimeoutMS int
	Dial      Dialer
	Table     *coverage.Table
	RateCh    chan<- uint64 // best-effort, dropped on full
	Logger    *slog.Logger
}

// Worker drives the reconnect loop for a single seed.
type Worker struct {
	cfg Config
	rng *rand.Rand

	iterations   uint64
	lastSequence []*packets.Sequence
}

// New constructs a worker with its own deterministic PRNG seeded from
// cfg.Seed. Per-worker PRNGs are never shared across workers.
func New(cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		cfg: cfg,
		rng: rand.New(rand.NewSource(int64(cfg.Seed))),
	}
}

// Iterations returns the number of completed sessions so far.
func (w *Worker) Iterations() uint64 { return w.iterations }

// LastSequences returns every packet sequence sent during the worker's most
// recently completed session, for crash-dump purposes.
func (w *Worker) LastSequences() []*packets.Sequence { return w.lastSequence }

// Run executes the reconnect loop until diedCtx is canceled (the broker
// died) or the iteration cap is reached, whichever comes first.
func (w *Worker) Run(diedCtx context.Context) {
	for w.iterations < w.cfg.Cap {
		stream, err := w.dialWithBackoff(diedCtx)
		if err != nil {
			// Only possible when diedCtx fired while backing off.
			return
		}

		mode := markov.MutationGuided
		if w.rng.Intn(2) == 1 {
			mode = markov.GenerationGuided
		}

		cfg := markov.DefaultConfig()
		cfg.TimeoutMS = w.cfg.TimeoutMS
		session := markov.New(cfg, stream, w.cfg.Table)
		session.Execute(mode, w.rng)
		stream.Close()

		w.lastSequence = session.PreviousSequences()

		select {
		case <-diedCtx.Done():
			return
		default:
		}

		w.iterations++
		if w.iterations%5000 == 0 {
			select {
			case w.cfg.RateCh <- w.iterations:
			default:
			}
		}
	}
}

// dialWithBackoff retries cfg.Dial on a constant 100ms period until it
// succeeds or diedCtx is canceled. A transport failure is ordinary during
// startup (the broker may still be binding its listener) or during a
// presumptive crash (the broker is gone for good); the broker-died signal,
// not an error count, is what ends the retry loop. backoff.NewConstantBackOff
// supplies the pause duration; cancellation is layered on top via diedCtx
// since the v2 BackOff interface predates built-in context support.
func (w *Worker) dialWithBackoff(diedCtx context.Context) (*transport.Adapter, error) {
	policy := backoff.NewConstantBackOff(reconnectBackoff)

	for {
		stream, err := w.cfg.Dial(diedCtx)
		if err == nil {
			return stream, nil
		}
		w.cfg.Logger.Debug("transport open failed, backing off", "seed", w.cfg.Seed, "err", err)

		select {
		case <-diedCtx.Done():
			return nil, diedCtx.Err()
		case <-time.After(policy.NextBackOff()):
		}
	}
}
