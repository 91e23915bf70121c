// Package sst implements the Sorted String Table: an immutable,
// path-ordered, on-disk unit produced by flushing a memtable or by
// compaction.
//
// File layout (little-endian throughout):
//
//	header:  magic(4) = "FLS1"  formatVersion(u8)
//	data:    compressionType(u8) uncompressedLen(u32) compressedBytes...
//	         (the decompressed bytes are a sequence of framed records,
//	          each u32 len + u32 crc32c + payload, sorted by path)
//	index:   filterLen(u32) filterBytes...
//	         repeated { pathLen(u16) path[...] offset(u64) }, offset into
//	         the decompressed data region, one entry per record
//	footer:  indexOffset(u64) indexLen(u64) crc32c(u32) magic(4) = "FLS1"
package sst

import (
	"encoding/binary"
	"errors"

	"github.com/firelocal/firelocal-go/internal/checksum"
	"github.com/firelocal/firelocal-go/internal/dbformat"
)

const (
	magic         = "FLS1"
	formatVersion = 1
	headerLen     = len(magic) + 1
	footerLen     = 8 + 8 + 4 + len(magic)
	recordHeader  = 8
)

// ErrNotSST is returned when a file's header or footer magic does not match.
var ErrNotSST = errors.New("sst: not a valid SST file (bad magic)")

// ErrCorrupt is returned when a footer checksum or index entry fails to
// validate.
var ErrCorrupt = errors.New("sst: corrupt file")

// Record is a single entry as stored in an SST's data region.
type Record struct {
	Path     []byte
	Sequence dbformat.SequenceNumber
	Kind     dbformat.Kind
	Value    []byte
}

func encodeRecord(r Record) []byte {
	buf := make([]byte, 0, 16+len(r.Path)+len(r.Value))
	buf = append(buf, byte(r.Kind))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Sequence))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.Path)))
	buf = append(buf, r.Path...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Value)))
	buf = append(buf, r.Value...)
	return buf
}

func decodeRecord(payload []byte) (Record, int, error) {
	if len(payload) < 1+8+2 {
		return Record{}, 0, ErrCorrupt
	}
	r := Record{
		Kind:     dbformat.Kind(payload[0]),
		Sequence: dbformat.SequenceNumber(binary.LittleEndian.Uint64(payload[1:9])),
	}
	rest := payload[9:]
	pathLen := int(binary.LittleEndian.Uint16(rest))
	rest = rest[2:]
	if len(rest) < pathLen+4 {
		return Record{}, 0, ErrCorrupt
	}
	r.Path = append([]byte(nil), rest[:pathLen]...)
	rest = rest[pathLen:]
	valLen := int(binary.LittleEndian.Uint32(rest))
	rest = rest[4:]
	if len(rest) < valLen {
		return Record{}, 0, ErrCorrupt
	}
	r.Value = append([]byte(nil), rest[:valLen]...)
	consumed := len(payload) - len(rest) + valLen
	return r, consumed, nil
}

// frameRecord wraps an encoded record with its length+crc32c header.
func frameRecord(r Record) []byte {
	payload := encodeRecord(r)
	out := make([]byte, recordHeader, recordHeader+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[4:8], checksum.Value(payload))
	return append(out, payload...)
}

// decodeFramedRecords decodes every framed record in data, in order.
func decodeFramedRecords(data []byte) ([]Record, error) {
	var records []Record
	offset := 0
	for offset < len(data) {
		if len(data)-offset < recordHeader {
			return nil, ErrCorrupt
		}
		payloadLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		wantCRC := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		start := offset + recordHeader
		end := start + payloadLen
		if end > len(data) {
			return nil, ErrCorrupt
		}
		payload := data[start:end]
		if checksum.Value(payload) != wantCRC {
			return nil, ErrCorrupt
		}
		rec, _, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		offset = end
	}
	return records, nil
}
