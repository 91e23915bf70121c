// Package memtable holds the newest, not-yet-flushed writes in memory,
// ordered by path.
package memtable

import (
	"sync"
	"sync/atomic"

	"github.com/firelocal/firelocal-go/internal/dbformat"
	"github.com/zhangyunhao116/skipmap"
)

// Entry is a single newest-wins record held for one path.
type Entry struct {
	Sequence dbformat.SequenceNumber
	Kind     dbformat.Kind
	Value    []byte // nil for a tombstone
}

// entrySize approximates the bytes an Entry plus its key charge to the
// memtable, used for flush-threshold accounting.
func entrySize(path []byte, e Entry) int64 {
	return int64(len(path) + len(e.Value) + dbformat.TrailerSize + 16)
}

// MemTable is a concurrent, path-ordered map of the newest record per path.
// It is backed by a skip list so concurrent readers never block writers and
// iteration is always produced in sorted order.
type MemTable struct {
	m      *skipmap.FuncMap[[]byte, Entry]
	charge atomic.Int64
	sealed atomic.Bool
	mu     sync.Mutex // guards Insert against concurrent Seal
}

// New creates an empty, writable MemTable.
func New() *MemTable {
	return &MemTable{
		m: skipmap.NewFunc[[]byte, Entry](func(a, b []byte) bool {
			return dbformat.ComparePaths(a, b) < 0
		}),
	}
}

// Insert records a write for path at the given sequence. Writes arrive
// already ordered by sequence (the caller has appended to the WAL first),
// so Insert unconditionally overwrites any existing entry for the same
// path and adjusts the byte charge by the delta.
func (mt *MemTable) Insert(path []byte, seq dbformat.SequenceNumber, kind dbformat.Kind, value []byte) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.sealed.Load() {
		panic("memtable: insert on sealed memtable")
	}

	entry := Entry{Sequence: seq, Kind: kind, Value: value}
	key := append([]byte(nil), path...)

	if old, ok := mt.m.Load(key); ok {
		mt.charge.Add(entrySize(key, entry) - entrySize(key, old))
	} else {
		mt.charge.Add(entrySize(key, entry))
	}
	mt.m.Store(key, entry)
}

// Get returns the newest record for path, if any.
func (mt *MemTable) Get(path []byte) (Entry, bool) {
	return mt.m.Load(path)
}

// IterSorted invokes visit for every (path, entry) pair in ascending path
// order. Stops early if visit returns false.
func (mt *MemTable) IterSorted(visit func(path []byte, e Entry) bool) {
	mt.m.Range(func(path []byte, e Entry) bool {
		return visit(path, e)
	})
}

// ByteCharge returns the approximate memory, in bytes, held by this
// memtable's entries.
func (mt *MemTable) ByteCharge() int64 {
	return mt.charge.Load()
}

// Count returns the number of distinct paths held.
func (mt *MemTable) Count() int {
	return mt.m.Len()
}

// Seal freezes the memtable: subsequent Insert calls panic. A sealed
// memtable is still readable while its flush to an SST is in progress.
func (mt *MemTable) Seal() {
	mt.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (mt *MemTable) Sealed() bool {
	return mt.sealed.Load()
}
