package packets

import "testing"

func TestAppendFillsLowestSlot(t *testing.T) {
	s := New()
	if s.Size() != 0 {
		t.Fatalf("new sequence size = %d, want 0", s.Size())
	}
	s.Append(Template(Connect))
	if s.Size() != 1 {
		t.Fatalf("size after one append = %d, want 1", s.Size())
	}
	if s.IsFull() {
		t.Fatal("sequence reported full after one append")
	}
}

func TestAppendNoOpWhenFull(t *testing.T) {
	s := New()
	for i := 0; i < MaxPackets; i++ {
		s.Append(Template(PingReq))
	}
	if !s.IsFull() {
		t.Fatal("expected sequence to be full")
	}
	s.Append(Template(Connect))
	if s.Size() != MaxPackets {
		t.Fatalf("size after overflowing append = %d, want %d", s.Size(), MaxPackets)
	}
}

func TestSizeCountsAllFilledSlotsNotClampedToOne(t *testing.T) {
	s := New()
	s.Append(Template(Connect))
	s.Append(Template(Publish))
	s.Append(Template(PingReq))
	if got := s.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3 (the min(1,n) bug must not be reproduced)", got)
	}
}

func TestZeroLengthSlotStillCountsButIsIneligible(t *testing.T) {
	s := New()
	s.Append(Template(PingReq))
	s.Set(0, nil)
	if s.Size() != 1 {
		t.Fatalf("Size() after zeroing slot = %d, want 1", s.Size())
	}
	if len(s.Eligible()) != 0 {
		t.Fatalf("Eligible() = %v, want empty", s.Eligible())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	s.Append(Template(Connect))
	clone := s.Clone()
	clone.Set(0, []byte{1, 2, 3})
	if string(s.At(0)) == string(clone.At(0)) {
		t.Fatal("mutating the clone affected the original")
	}
	if !s.Equal(s.Clone()) {
		t.Fatal("a sequence must equal its own clone")
	}
}

func TestNonEmptySlotsSkipsZeroedEntries(t *testing.T) {
	s := New()
	s.Append(Template(Connect))
	s.Append(Template(PingReq))
	s.Set(1, nil)
	got := s.NonEmptySlots()
	if len(got) != 1 {
		t.Fatalf("NonEmptySlots() returned %d entries, want 1", len(got))
	}
}
