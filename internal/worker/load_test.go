package worker

import "testing"

func TestSelectPicksLowestIndexOnTie(t *testing.T) {
	t2 := NewLoadTable(3)
	if got := t2.Select(); got != 0 {
		t.Fatalf("Select() = %d, want 0 when all loads are equal", got)
	}
}

func TestSelectPicksMinimumLoad(t *testing.T) {
	t2 := NewLoadTable(3)
	t2.Inc(0)
	t2.Inc(0)
	t2.Inc(1)
	if got := t2.Select(); got != 2 {
		t.Fatalf("Select() = %d, want 2 (unloaded worker)", got)
	}
}

func TestIncDecConserveTotal(t *testing.T) {
	t2 := NewLoadTable(2)
	t2.Inc(0)
	t2.Inc(0)
	t2.Inc(1)
	t2.Dec(0)
	if t2.Load(0) != 1 {
		t.Fatalf("Load(0) = %d, want 1", t2.Load(0))
	}
	if t2.Load(1) != 1 {
		t.Fatalf("Load(1) = %d, want 1", t2.Load(1))
	}
}

func TestLen(t *testing.T) {
	t2 := NewLoadTable(5)
	if t2.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", t2.Len())
	}
}
