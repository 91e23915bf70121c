package memtable

import (
	"testing"

	"github.com/firelocal/firelocal-go/internal/dbformat"
)

func TestInsertGetNewestWins(t *testing.T) {
	mt := New()
	mt.Insert([]byte("users/alice"), 1, dbformat.KindPut, []byte(`{"v":1}`))
	mt.Insert([]byte("users/alice"), 2, dbformat.KindPut, []byte(`{"v":2}`))

	e, ok := mt.Get([]byte("users/alice"))
	if !ok {
		t.Fatal("expected entry present")
	}
	if e.Sequence != 2 || string(e.Value) != `{"v":2}` {
		t.Fatalf("got %+v, want newest write", e)
	}
	if mt.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (overwrite, not two entries)", mt.Count())
	}
}

func TestInsertTombstone(t *testing.T) {
	mt := New()
	mt.Insert([]byte("a"), 1, dbformat.KindPut, []byte("v"))
	mt.Insert([]byte("a"), 2, dbformat.KindTombstone, nil)

	e, ok := mt.Get([]byte("a"))
	if !ok {
		t.Fatal("expected tombstone entry present")
	}
	if e.Kind != dbformat.KindTombstone || e.Value != nil {
		t.Fatalf("got %+v, want tombstone with nil value", e)
	}
}

func TestIterSortedOrder(t *testing.T) {
	mt := New()
	mt.Insert([]byte("c"), 1, dbformat.KindPut, []byte("3"))
	mt.Insert([]byte("a"), 2, dbformat.KindPut, []byte("1"))
	mt.Insert([]byte("b"), 3, dbformat.KindPut, []byte("2"))

	var order []string
	mt.IterSorted(func(path []byte, e Entry) bool {
		order = append(order, string(path))
		return true
	})
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestByteChargeTracksOverwrite(t *testing.T) {
	mt := New()
	mt.Insert([]byte("a"), 1, dbformat.KindPut, []byte("short"))
	afterFirst := mt.ByteCharge()
	mt.Insert([]byte("a"), 2, dbformat.KindPut, []byte("a much longer value than before"))
	if mt.ByteCharge() <= afterFirst {
		t.Fatalf("ByteCharge did not grow after overwriting with a larger value: %d -> %d", afterFirst, mt.ByteCharge())
	}
}

func TestSealPreventsFurtherInserts(t *testing.T) {
	mt := New()
	mt.Insert([]byte("a"), 1, dbformat.KindPut, []byte("v"))
	mt.Seal()
	if !mt.Sealed() {
		t.Fatal("expected Sealed() true after Seal()")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic inserting into a sealed memtable")
		}
	}()
	mt.Insert([]byte("b"), 2, dbformat.KindPut, []byte("v"))
}
