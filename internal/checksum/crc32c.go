// Package checksum provides the checksum primitives shared by the WAL and
// SST file formats: CRC32C (Castagnoli) for per-record framing, and XXH3
// for the SST existence filter's path hashing.
package checksum

import (
	"hash/crc32"

	"github.com/zeebo/xxh3"
)

// crc32cTable is the Castagnoli polynomial table, the same one RocksDB and
// most LSM engines use for block/record checksums.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Value computes the CRC32C checksum of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// Extend computes the CRC32C of concat(a, data) where initCRC is the CRC32C of a.
func Extend(initCRC uint32, data []byte) uint32 {
	return crc32.Update(initCRC, crc32cTable, data)
}

// PathHash returns a fast 64-bit hash of a document path, used by the SST
// existence filter. Not a checksum in the durability sense — collisions are
// acceptable, they only cost an unnecessary SST probe.
func PathHash(path []byte) uint64 {
	return xxh3.Hash(path)
}
