// Package rate aggregates the periodic iteration counters reported by
// workers into an iterations-per-second figure. Pure telemetry: it never
// blocks or influences worker progress.
package rate

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// Tracker drains one shared channel of per-worker counters and periodically
// logs the aggregate throughput.
type Tracker struct {
	workers int
	ch      <-chan uint64
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a tracker for the given worker count and channel. now
// defaults to time.Now; tests may override it for deterministic elapsed-time
// math.
func New(workers int, ch <-chan uint64, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{workers: workers, ch: ch, logger: logger, now: time.Now}
}

// Run drains the channel in rounds of up to workers-1 values (one sender
// short, so a round never blocks forever waiting on a worker that already
// exited) and reports iterations/second until ctx is canceled. With a
// single worker the one-short convention would make every round empty and
// spin; a round then waits for one value instead.
func (t *Tracker) Run(ctx context.Context) {
	perRound := t.workers - 1
	if perRound < 1 {
		perRound = 1
	}

	var lastTotal uint64
	for {
		start := t.now()
		var sum uint64
		received := 0
		for received < perRound {
			select {
			case v, ok := <-t.ch:
				if !ok {
					return
				}
				sum += v
				received++
			case <-ctx.Done():
				return
			}
		}

		elapsedMS := t.now().Sub(start).Milliseconds()
		if elapsedMS <= 0 {
			elapsedMS = 1
		}
		delta := sum
		if sum > lastTotal {
			delta = sum - lastTotal
		} else {
			delta = 0
		}
		itPerSecond := float64(delta) / float64(elapsedMS) * 1000
		t.logger.Info("fuzzing throughput",
			"iterations_per_second", itPerSecond,
			"total_iterations", humanize.Comma(int64(sum)),
		)
		lastTotal = sum
	}
}
