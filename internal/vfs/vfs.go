// Package vfs provides the filesystem primitives the engine needs beyond
// plain os file I/O: the exclusive directory lock that prevents two
// processes from opening the same database directory at once.
package vfs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// dirLock holds the open "LOCK" file descriptor for a locked database
// directory. Its Close releases whatever OS-level lock acquire applied
// and closes the descriptor.
type dirLock struct {
	f *os.File
}

// Lock acquires the exclusive lock for the database directory dir,
// creating a "LOCK" file inside it if necessary. The returned io.Closer
// releases the lock; it must be held for as long as the engine is open.
// A non-nil error means the directory is already held by another process
// (or is otherwise inaccessible).
func Lock(dir string) (io.Closer, error) {
	path := filepath.Join(dir, "LOCK")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "vfs: open lock file %s", path)
	}
	if err := acquire(f); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "vfs: directory %s is already locked by another process", dir)
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) Close() error {
	release(l.f)
	return l.f.Close()
}
