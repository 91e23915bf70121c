//go:build !windows

// lock.go makes vfs.Lock's acquire/release calls on Unix via flock(2),
// the same advisory exclusive lock RocksDB's PosixEnv uses for its own
// LOCK file (env/env_posix.cc PosixEnv::LockFile).
package vfs

import (
	"os"
	"syscall"
)

func acquire(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func release(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
