package rate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestRunDrainsWorkersMinusOnePerRound(t *testing.T) {
	ch := make(chan uint64, 10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := New(3, ch, logger) // expects 2 values per round

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.Run(ctx)
	}()

	ch <- 5000
	ch <- 5000
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()
}

func TestRunStopsWhenContextCanceledMidRound(t *testing.T) {
	ch := make(chan uint64)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := New(5, ch, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after context cancellation")
	}
}

func TestRunSingleWorkerWaitsInsteadOfSpinning(t *testing.T) {
	ch := make(chan uint64, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := New(1, ch, logger) // one worker: each round drains one value

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(done)
	}()

	ch <- 5000
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation with a single worker")
	}
}

func TestRunNeverBlocksOnAClosedChannel(t *testing.T) {
	ch := make(chan uint64)
	close(ch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := New(2, ch, logger)

	done := make(chan struct{})
	go func() {
		tracker.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
}
