package sst

import (
	"encoding/binary"
	"os"
	"sort"

	"github.com/firelocal/firelocal-go/internal/checksum"
	"github.com/firelocal/firelocal-go/internal/compression"
	"github.com/firelocal/firelocal-go/internal/dbformat"
	"github.com/pkg/errors"
)

// indexEntry maps a path to its byte offset within the decompressed data
// region.
type indexEntry struct {
	path   []byte
	offset uint64
}

// Reader is an open, immutable SST file. A Reader decompresses and parses
// the whole file eagerly at Open time; SSTs are bounded in size (one
// flushed memtable's worth of documents), so this is simpler than
// block-level lazy loading and still gives sub-linear point lookups via
// the sorted index.
type Reader struct {
	Path    string
	records []Record
	index   []indexEntry
	filter  filter
}

// Open validates path's footer and loads its index and data region.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "sst: read %s", path)
	}
	if len(data) < headerLen+footerLen {
		return nil, ErrNotSST
	}
	if string(data[:4]) != magic {
		return nil, ErrNotSST
	}

	footer := data[len(data)-footerLen:]
	if string(footer[20:]) != magic {
		return nil, ErrNotSST
	}
	indexOffset := binary.LittleEndian.Uint64(footer[0:8])
	indexLen := binary.LittleEndian.Uint64(footer[8:16])
	wantCRC := binary.LittleEndian.Uint32(footer[16:20])

	body := data[:len(data)-footerLen]
	if checksum.Value(body) != wantCRC {
		return nil, ErrCorrupt
	}
	if indexOffset+indexLen > uint64(len(body)) {
		return nil, ErrCorrupt
	}

	dataRegion := body[headerLen:indexOffset]
	if len(dataRegion) < 5 {
		return nil, ErrCorrupt
	}
	compType := compression.Type(dataRegion[0])
	uncompLen := binary.LittleEndian.Uint32(dataRegion[1:5])
	decompressed, err := compression.Decompress(compType, dataRegion[5:])
	if err != nil {
		return nil, errors.Wrap(err, "sst: decompress data region")
	}
	if uint32(len(decompressed)) != uncompLen {
		return nil, ErrCorrupt
	}

	records, err := decodeFramedRecords(decompressed)
	if err != nil {
		return nil, err
	}

	indexRegion := body[indexOffset : indexOffset+indexLen]
	if len(indexRegion) < 4 {
		return nil, ErrCorrupt
	}
	filterLen := binary.LittleEndian.Uint32(indexRegion[0:4])
	rest := indexRegion[4:]
	if uint32(len(rest)) < filterLen {
		return nil, ErrCorrupt
	}
	f, err := decodeFilter(rest[:filterLen])
	if err != nil {
		return nil, err
	}
	rest = rest[filterLen:]

	index := make([]indexEntry, 0, len(records))
	for len(rest) > 0 {
		if len(rest) < 2 {
			return nil, ErrCorrupt
		}
		pathLen := int(binary.LittleEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < pathLen+8 {
			return nil, ErrCorrupt
		}
		p := append([]byte(nil), rest[:pathLen]...)
		rest = rest[pathLen:]
		off := binary.LittleEndian.Uint64(rest[:8])
		rest = rest[8:]
		index = append(index, indexEntry{path: p, offset: off})
	}

	return &Reader{Path: path, records: records, index: index, filter: f}, nil
}

// Get returns the record for path in this SST, if present.
func (r *Reader) Get(path []byte) (Record, bool) {
	if !r.filter.mayContain(path) {
		return Record{}, false
	}
	i := sort.Search(len(r.index), func(i int) bool {
		return dbformat.ComparePaths(r.index[i].path, path) >= 0
	})
	if i >= len(r.index) || dbformat.ComparePaths(r.index[i].path, path) != 0 {
		return Record{}, false
	}
	// The index and the decoded record list are built from the same
	// sorted input and therefore share position i.
	return r.records[i], true
}

// Iter invokes visit for every record in ascending path order, stopping
// early if visit returns false.
func (r *Reader) Iter(visit func(Record) bool) {
	for _, rec := range r.records {
		if !visit(rec) {
			return
		}
	}
}

// Count returns the number of records stored.
func (r *Reader) Count() int {
	return len(r.records)
}
