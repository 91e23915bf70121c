package wal

import (
	"os"

	"github.com/pkg/errors"
)

// Writer appends framed records to a WAL segment file and fsyncs after
// every call to Append, matching the spec's "append returns success only
// once durable" contract.
type Writer struct {
	f *os.File
}

// OpenWriter opens (creating if necessary) a WAL segment for appending.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "wal: open segment %s", path)
	}
	return &Writer{f: f}, nil
}

// Append writes one or more records as a single contiguous append, then
// syncs the file. Either every record in the call is durable, or none are —
// a write failure midway is propagated and the caller must assume nothing
// was persisted.
func (w *Writer) Append(records ...*Record) error {
	var buf []byte
	for _, r := range records {
		buf = append(buf, frame(r.encode())...)
	}
	if _, err := w.f.Write(buf); err != nil {
		return errors.Wrap(err, "wal: append")
	}
	if err := w.f.Sync(); err != nil {
		return errors.Wrap(err, "wal: sync")
	}
	return nil
}

// Close closes the underlying file without truncating or syncing.
func (w *Writer) Close() error {
	return w.f.Close()
}

// File returns the segment's open file.
func (w *Writer) File() *os.File {
	return w.f
}

// Rotate closes the current segment and opens a new, empty one at newPath.
// Callers invoke this after a memtable flush has published its SST, so the
// retired segment named by the previous Writer's path can be deleted once
// Rotate returns.
func Rotate(w *Writer, newPath string) (*Writer, error) {
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "wal: close segment being rotated out")
	}
	return OpenWriter(newPath)
}
