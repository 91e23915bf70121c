package sst

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/firelocal/firelocal-go/internal/checksum"
	"github.com/firelocal/firelocal-go/internal/compression"
	"github.com/pkg/errors"
)

// BuilderOptions configures how Write lays out a new SST file.
type BuilderOptions struct {
	// Compression is the codec applied to the whole data region.
	Compression compression.Type
}

// DefaultBuilderOptions returns the builder's defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{Compression: compression.SnappyCompression}
}

// Write constructs a new SST file at path containing records, which must
// already be sorted by Path ascending. Publication is atomic: Write builds
// the file under a temporary name in the same directory, fsyncs it, then
// renames it over path.
func Write(path string, records []Record, opts BuilderOptions) error {
	dataBuf := make([]byte, 0, 4096)
	offsets := make([]uint64, len(records))
	paths := make([][]byte, len(records))
	for i, r := range records {
		offsets[i] = uint64(len(dataBuf))
		paths[i] = r.Path
		dataBuf = append(dataBuf, frameRecord(r)...)
	}

	compressed, err := compression.Compress(opts.Compression, dataBuf)
	if err != nil {
		return errors.Wrap(err, "sst: compress data region")
	}

	f := buildFilter(paths)
	encodedFilter := encodeFilter(f)

	out := make([]byte, 0, len(compressed)+len(encodedFilter)+128)
	out = append(out, magic...)
	out = append(out, formatVersion)

	out = append(out, byte(opts.Compression))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(dataBuf)))
	out = append(out, compressed...)

	indexStart := len(out)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(encodedFilter)))
	out = append(out, encodedFilter...)
	for i, r := range records {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(r.Path)))
		out = append(out, r.Path...)
		out = binary.LittleEndian.AppendUint64(out, offsets[i])
	}
	indexLen := len(out) - indexStart

	footer := make([]byte, 0, footerLen)
	footer = binary.LittleEndian.AppendUint64(footer, uint64(indexStart))
	footer = binary.LittleEndian.AppendUint64(footer, uint64(indexLen))
	footer = binary.LittleEndian.AppendUint32(footer, checksum.Value(out))
	footer = append(footer, magic...)
	out = append(out, footer...)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "*.sst.tmp")
	if err != nil {
		return errors.Wrap(err, "sst: create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "sst: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "sst: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "sst: close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "sst: publish via rename")
	}
	return nil
}
