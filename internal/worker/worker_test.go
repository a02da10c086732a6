package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"mqttfume/fume/internal/coverage"
	"mqttfume/fume/internal/transport"
)

type silentStream struct{}

func (silentStream) Write(p []byte) (int, error) { return len(p), nil }
func (silentStream) Read(p []byte) (int, error) { return 0, io.EOF }
func (silentStream) SetWriteDeadline(time.Time) error { return nil }
func (silentStream) SetReadDeadline(time.Time) error { return nil }
func (silentStream) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerStopsAtIterationCap(t *testing.T) {
	table := coverage.New()
	w := New(Config{
		Seed:      1,
		Cap:       3,
		TimeoutMS: 10,
		Table:     table,
		Logger:    quietLogger(),
		Dial: func(ctx context.Context) (*transport.Adapter, error) {
			return transport.New(silentStream{}), nil
		},
	})

	w.Run(context.Background())

	if w.Iterations() != 3 {
		t.Fatalf("Iterations() = %d, want 3", w.Iterations())
	}
}

func TestWorkerStopsOnBrokerDied(t *testing.T) {
	table := coverage.New()
	ctx, cancel := context.WithCancel(context.Background())

	var dials int32
	w := New(Config{
		Seed:      2,
		Cap:       ^uint64(0),
		TimeoutMS: 10,
		Table:     table,
		Logger:    quietLogger(),
		Dial: func(ctx context.Context) (*transport.Adapter, error) {
			n := atomic.AddInt32(&dials, 1)
			if n > 2 {
				cancel()
				return nil, errors.New("broker gone")
			}
			return transport.New(silentStream{}), nil
		},
	})

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after broker-died was signaled")
	}
}

func TestWorkerRetriesTransportFailureWithoutDying(t *testing.T) {
	table := coverage.New()
	ctx := context.Background()

	var failuresLeft int32 = 2
	w := New(Config{
		Seed:      3,
		Cap:       1,
		TimeoutMS: 10,
		Table:     table,
		Logger:    quietLogger(),
		Dial: func(ctx context.Context) (*transport.Adapter, error) {
			if atomic.AddInt32(&failuresLeft, -1) >= 0 {
				return nil, errors.New("ephemeral port exhaustion")
			}
			return transport.New(silentStream{}), nil
		},
	})

	w.Run(ctx)

	if w.Iterations() != 1 {
		t.Fatalf("Iterations() = %d, want 1 after recovering from transient dial failures", w.Iterations())
	}
}

func TestWorkerRecordsLastSequences(t *testing.T) {
	table := coverage.New()
	w := New(Config{
		Seed:      4,
		Cap:       1,
		TimeoutMS: 10,
		Table:     table,
		Logger:    quietLogger(),
		Dial: func(ctx context.Context) (*transport.Adapter, error) {
			return transport.New(silentStream{}), nil
		},
	})

	w.Run(context.Background())

	if len(w.LastSequences()) == 0 {
		t.Fatal("expected at least one recorded sequence after a completed session")
	}
}
