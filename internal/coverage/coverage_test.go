package coverage

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"mqttfume/fume/internal/packets"
)

func seqFor(b byte) *packets.Sequence {
	s := packets.New()
	s.Append([]byte{b})
	return s
}

func TestObserveFirstWriterWins(t *testing.T) {
	table := New()
	if isNew := table.Observe([]byte{1, 2, 3}, seqFor(0xAA)); !isNew {
		t.Fatal("first observation should be new")
	}
	if isNew := table.Observe([]byte{1, 2, 3}, seqFor(0xBB)); isNew {
		t.Fatal("second observation of the same key should not be new")
	}
	seq := table.Sample(rand.New(rand.NewSource(1)))
	if seq.At(0)[0] != 0xAA {
		t.Fatalf("table retained %x, want the first writer's 0xAA", seq.At(0)[0])
	}
}

func TestLenAndIsEmpty(t *testing.T) {
	table := New()
	if !table.IsEmpty() {
		t.Fatal("new table should be empty")
	}
	table.Observe([]byte{1}, seqFor(1))
	table.Observe([]byte{2}, seqFor(2))
	table.Observe([]byte{1}, seqFor(1)) // duplicate key, must not grow len
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if table.IsEmpty() {
		t.Fatal("populated table reported empty")
	}
}

func TestSampleReturnsIndependentClone(t *testing.T) {
	table := New()
	table.Observe([]byte{9}, seqFor(0x11))
	got := table.Sample(rand.New(rand.NewSource(2)))
	got.Set(0, []byte{0xFF})
	again := table.Sample(rand.New(rand.NewSource(2)))
	if again.At(0)[0] != 0x11 {
		t.Fatal("mutating a sampled clone affected the table's stored entry")
	}
}

func TestConcurrentObserveLosesNoDiscoveries(t *testing.T) {
	table := New()
	const workers = 50
	const perWorker = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := []byte(fmt.Sprintf("w%d-i%d", w, i))
				table.Observe(key, seqFor(byte(i)))
			}
		}()
	}
	wg.Wait()

	if got, want := table.Len(), workers*perWorker; got != want {
		t.Fatalf("Len() = %d, want %d (lost observations under concurrency)", got, want)
	}
}

func TestSnapshotIsIndependentOfLiveTable(t *testing.T) {
	table := New()
	table.Observe([]byte{1}, seqFor(1))
	snap := table.Snapshot()
	table.Observe([]byte{2}, seqFor(2))
	if len(snap) != 1 {
		t.Fatalf("snapshot grew alongside the live table: len=%d", len(snap))
	}
}
