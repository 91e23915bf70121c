package vfs

import "testing"

func TestLockExclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := Lock(dir)
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	defer first.Close()

	if _, err := Lock(dir); err == nil {
		t.Fatal("expected second Lock on the same directory to fail")
	}
}

func TestLockReleasedOnClose(t *testing.T) {
	dir := t.TempDir()

	first, err := Lock(dir)
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Lock(dir)
	if err != nil {
		t.Fatalf("second Lock after release: %v", err)
	}
	second.Close()
}
