package sst

import (
	"encoding/binary"
	"math"

	"github.com/firelocal/firelocal-go/internal/checksum"
)

// filterBitsPerKey controls the existence filter's false-positive rate;
// 10 bits/key gives roughly 1% false positives, matching common Bloom
// filter defaults.
const filterBitsPerKey = 10

// filter is a simple Bloom filter over xxh3 path hashes, letting Get skip
// an SST that provably does not contain a path without reading its index.
type filter struct {
	bits  []byte
	nHash int
	nBits uint64
}

// buildFilter constructs a filter sized for the given paths.
func buildFilter(paths [][]byte) filter {
	nBits := uint64(len(paths) * filterBitsPerKey)
	if nBits < 64 {
		nBits = 64
	}
	nHash := int(math.Round(float64(filterBitsPerKey) * 0.69)) // ln(2)
	if nHash < 1 {
		nHash = 1
	}
	if nHash > 30 {
		nHash = 30
	}

	f := filter{
		bits:  make([]byte, (nBits+7)/8),
		nHash: nHash,
		nBits: nBits,
	}
	for _, p := range paths {
		f.add(p)
	}
	return f
}

func (f *filter) add(path []byte) {
	h := checksum.PathHash(path)
	delta := h>>17 | h<<47
	for i := 0; i < f.nHash; i++ {
		bitPos := h % f.nBits
		f.bits[bitPos/8] |= 1 << (bitPos % 8)
		h += delta
	}
}

// mayContain reports whether path might be present. false is a definitive
// answer; true may be a false positive.
func (f *filter) mayContain(path []byte) bool {
	if f.nBits == 0 {
		return true
	}
	h := checksum.PathHash(path)
	delta := h>>17 | h<<47
	for i := 0; i < f.nHash; i++ {
		bitPos := h % f.nBits
		if f.bits[bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

func encodeFilter(f filter) []byte {
	buf := make([]byte, 0, 12+len(f.bits))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.nHash))
	buf = binary.LittleEndian.AppendUint64(buf, f.nBits)
	buf = append(buf, f.bits...)
	return buf
}

func decodeFilter(data []byte) (filter, error) {
	if len(data) < 12 {
		return filter{}, ErrCorrupt
	}
	nHash := int(binary.LittleEndian.Uint32(data[0:4]))
	nBits := binary.LittleEndian.Uint64(data[4:12])
	bits := append([]byte(nil), data[12:]...)
	return filter{bits: bits, nHash: nHash, nBits: nBits}, nil
}
