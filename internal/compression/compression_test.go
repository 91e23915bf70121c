package compression

import (
	"bytes"
	"testing"
)

func TestRoundTripAllTypes(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)

	for _, typ := range []Type{NoCompression, SnappyCompression, LZ4Compression, ZstdCompression} {
		compressed, err := Compress(typ, data)
		if err != nil {
			t.Fatalf("%s: Compress: %v", typ, err)
		}
		got, err := Decompress(typ, compressed)
		if err != nil {
			t.Fatalf("%s: Decompress: %v", typ, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("%s: round trip mismatch", typ)
		}
	}
}

func TestUnsupportedTypeRejected(t *testing.T) {
	if Type(99).IsSupported() {
		t.Fatal("expected Type(99) unsupported")
	}
	if _, err := Compress(Type(99), []byte("x")); err == nil {
		t.Fatal("expected error compressing with unsupported type")
	}
}
