package validate

import (
	"strings"
	"testing"
)

const testMaxPathBytes = 1024

func TestPathValid(t *testing.T) {
	for _, p := range []string{"users", "users/alice", "a/b/c", "a-1_2/B-3"} {
		if err := Path(p, testMaxPathBytes); err != nil {
			t.Errorf("Path(%q) = %v, want nil", p, err)
		}
	}
}

func TestPathEmpty(t *testing.T) {
	if err := Path("", testMaxPathBytes); err != ErrEmptyPath {
		t.Fatalf("Path(\"\") = %v, want ErrEmptyPath", err)
	}
}

func TestPathTooLong(t *testing.T) {
	long := strings.Repeat("a", testMaxPathBytes+1)
	if err := Path(long, testMaxPathBytes); err == nil {
		t.Fatal("expected error for over-length path")
	}
}

func TestPathRespectsCallerSuppliedLimit(t *testing.T) {
	path := strings.Repeat("a", 50)
	if err := Path(path, 100); err != nil {
		t.Fatalf("Path with generous limit: %v", err)
	}
	if err := Path(path, 10); err == nil {
		t.Fatal("expected error when path exceeds the caller-supplied limit")
	}
}

func TestPathInvalidSegments(t *testing.T) {
	for _, p := range []string{"/users", "users/", "users//alice", "users/ali ce", "users/ali.ce"} {
		if err := Path(p, testMaxPathBytes); err == nil {
			t.Errorf("Path(%q) = nil, want error", p)
		}
	}
}

func TestPayloadWithinLimit(t *testing.T) {
	if err := Payload([]byte("small"), 10); err != nil {
		t.Fatalf("Payload: %v", err)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	if err := Payload([]byte("toolarge"), 4); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}
