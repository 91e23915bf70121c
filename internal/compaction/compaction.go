// Package compaction merges a set of SSTs into one, keeping only the
// newest record per path and dropping tombstones once nothing outside the
// merge set can still need them.
//
// firelocal compacts at a single tier: once the live SST count exceeds a
// threshold (or on an explicit request) every live SST is merged into one
// new SST. This is rockyardkv's "universal, full merge" tier without the
// leveled/FIFO picker machinery — the spec's scale (an embedded document
// store, not a multi-terabyte cluster store) never needs partial merges.
package compaction

import (
	"os"
	"sort"

	"github.com/firelocal/firelocal-go/internal/dbformat"
	"github.com/firelocal/firelocal-go/internal/sst"
)

// Stats reports the effect of a single compaction run. BytesAfter is left
// zero by Merge, and the engine does not fill it in.
type Stats struct {
	FilesBefore       int
	FilesAfter        int
	EntriesBefore     int
	EntriesAfter      int
	TombstonesRemoved int
	BytesBefore       int64
	BytesAfter        int64
}

// ShouldCompact reports whether the live SST count warrants a compaction.
func ShouldCompact(liveSSTCount, threshold int) bool {
	return liveSSTCount > threshold
}

// Merge reads every record from readers (newest-to-oldest is not assumed)
// and resolves newest-wins by sorting every record's internal key: path
// bytes ascending, then the (sequence, kind) trailer descending, so the
// first record seen for a given path is always its newest. Tombstones are
// dropped (the merge set is assumed to cover every live SST, so a
// tombstone has no older SST left to dominate), and Merge returns the
// merged, path-sorted records plus stats.
func Merge(readers []*sst.Reader) ([]sst.Record, Stats) {
	var stats Stats

	type keyedRecord struct {
		key dbformat.InternalKey
		rec sst.Record
	}
	var all []keyedRecord

	for _, r := range readers {
		stats.FilesBefore++
		if info, err := os.Stat(r.Path); err == nil {
			stats.BytesBefore += info.Size()
		}
		r.Iter(func(rec sst.Record) bool {
			stats.EntriesBefore++
			all = append(all, keyedRecord{
				key: dbformat.NewInternalKey(rec.Path, rec.Sequence, rec.Kind),
				rec: rec,
			})
			return true
		})
	}

	sort.Slice(all, func(i, j int) bool {
		return dbformat.CompareInternalKeys(all[i].key, all[j].key) < 0
	})

	merged := make([]sst.Record, 0, len(all))
	var lastPath []byte
	for _, kr := range all {
		if lastPath != nil && dbformat.ComparePaths(kr.rec.Path, lastPath) == 0 {
			// A later entry in internal-key order for the same path is
			// strictly older (lower sequence); the newest was already kept.
			continue
		}
		lastPath = kr.rec.Path
		if kr.rec.Kind == dbformat.KindTombstone {
			stats.TombstonesRemoved++
			continue
		}
		merged = append(merged, kr.rec)
	}

	stats.EntriesAfter = len(merged)
	if stats.EntriesAfter > 0 {
		stats.FilesAfter = 1
	}
	return merged, stats
}
