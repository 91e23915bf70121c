package firelocal

import (
	"github.com/firelocal/firelocal-go/internal/dbformat"
	"github.com/firelocal/firelocal-go/internal/memtable"
	"github.com/firelocal/firelocal-go/internal/sst"
)

// sstEntry pairs a live SST's reader with the file number the manifest
// uses to identify it.
type sstEntry struct {
	id     uint64
	reader *sst.Reader
}

// view is the immutable snapshot readers sample once per operation: the
// active memtable plus the live SSTs, newest first. A new view is
// published wholesale, under the writer mutex, after every flush and
// compaction; a put or delete that doesn't trigger either mutates mem in
// place, which is safe because mem itself is safe for concurrent
// insert/lookup.
type view struct {
	mem  *memtable.MemTable
	ssts []sstEntry // ordered newest (highest id) first
}

// lookup finds the newest record for path across mem then ssts
// newest-first, stopping at the first hit (including a tombstone, which
// shadows any older record for the same path).
func (v *view) lookup(path []byte) (value []byte, kind dbformat.Kind, seq dbformat.SequenceNumber, found bool) {
	if e, ok := v.mem.Get(path); ok {
		return e.Value, e.Kind, e.Sequence, true
	}
	for _, entry := range v.ssts {
		if rec, ok := entry.reader.Get(path); ok {
			return rec.Value, rec.Kind, rec.Sequence, true
		}
	}
	return nil, 0, 0, false
}

// version returns the sequence number of path's latest mutation, or 0 if
// it has never been written — the document version the transaction
// protocol validates against.
func (v *view) version(path []byte) uint64 {
	_, _, seq, found := v.lookup(path)
	if !found {
		return 0
	}
	return uint64(seq)
}
