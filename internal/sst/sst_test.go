package sst

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/firelocal/firelocal-go/internal/compression"
	"github.com/firelocal/firelocal-go/internal/dbformat"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func sampleRecords() []Record {
	return []Record{
		{Path: []byte("users/alice"), Sequence: 1, Kind: dbformat.KindPut, Value: []byte(`{"name":"alice"}`)},
		{Path: []byte("users/bob"), Sequence: 2, Kind: dbformat.KindPut, Value: []byte(`{"name":"bob"}`)},
		{Path: []byte("users/carol"), Sequence: 3, Kind: dbformat.KindTombstone},
	}
}

func TestWriteOpenGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000001.sst")
	if err := Write(path, sampleRecords(), DefaultBuilderOptions()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", r.Count())
	}

	rec, ok := r.Get([]byte("users/bob"))
	if !ok {
		t.Fatal("expected users/bob present")
	}
	if string(rec.Value) != `{"name":"bob"}` || rec.Sequence != 2 {
		t.Fatalf("got %+v", rec)
	}

	tomb, ok := r.Get([]byte("users/carol"))
	if !ok || tomb.Kind != dbformat.KindTombstone {
		t.Fatalf("expected tombstone for users/carol, got %+v ok=%v", tomb, ok)
	}

	_, ok = r.Get([]byte("users/missing"))
	if ok {
		t.Fatal("expected miss for users/missing")
	}
}

func TestIterOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000001.sst")
	if err := Write(path, sampleRecords(), DefaultBuilderOptions()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var paths []string
	r.Iter(func(rec Record) bool {
		paths = append(paths, string(rec.Path))
		return true
	})
	want := []string{"users/alice", "users/bob", "users/carol"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("got %v, want %v", paths, want)
		}
	}
}

func TestCompressionCodecsRoundTrip(t *testing.T) {
	for _, codec := range []compression.Type{compression.NoCompression, compression.SnappyCompression, compression.LZ4Compression, compression.ZstdCompression} {
		path := filepath.Join(t.TempDir(), "000001.sst")
		opts := BuilderOptions{Compression: codec}
		if err := Write(path, sampleRecords(), opts); err != nil {
			t.Fatalf("%s: Write: %v", codec, err)
		}
		r, err := Open(path)
		if err != nil {
			t.Fatalf("%s: Open: %v", codec, err)
		}
		if r.Count() != 3 {
			t.Fatalf("%s: Count() = %d, want 3", codec, r.Count())
		}
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notsst.bin")
	if err := writeFile(path, []byte("not an sst file at all, just junk bytes")); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	if _, err := Open(path); err != ErrNotSST {
		t.Fatalf("Open: got %v, want ErrNotSST", err)
	}
}
