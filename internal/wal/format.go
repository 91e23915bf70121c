// Package wal implements the write-ahead log: an append-only, crash-safe
// journal of document mutations.
//
// Record framing (little-endian throughout):
//
//	u32 totalLen          length of the payload (everything after crc32c)
//	u32 crc32c            checksum of everything after this field
//	u8  recordKind         Put | Tombstone | BatchBegin | BatchCommit
//	u64 sequence           sequence number assigned to this record
//	u16 pathLen            Put/Tombstone only
//	[]byte path
//	u8  hasValue
//	[u32 valueLen []byte value]   present only if hasValue == 1
//
// A batch is framed as BatchBegin (carrying a u32 entry count after its
// sequence in place of a path/value) followed by n Put/Tombstone entries
// sharing the batch's sequence range, followed by BatchCommit, which
// carries only its kind and sequence. Replay discards a batch whose
// BatchCommit marker is missing: every entry between an unterminated
// BatchBegin and end-of-log becomes invisible.
package wal

import (
	"encoding/binary"
	"errors"

	"github.com/firelocal/firelocal-go/internal/checksum"
	"github.com/firelocal/firelocal-go/internal/dbformat"
)

// RecordKind identifies the shape of a single WAL record.
type RecordKind uint8

const (
	// RecordPut journals a document write.
	RecordPut RecordKind = 0
	// RecordTombstone journals a document delete.
	RecordTombstone RecordKind = 1
	// RecordBatchBegin opens an atomic multi-entry batch.
	RecordBatchBegin RecordKind = 2
	// RecordBatchCommit closes an atomic multi-entry batch. Its own sequence
	// is what listeners and readers treat as the batch's visibility point.
	RecordBatchCommit RecordKind = 3
)

func (k RecordKind) String() string {
	switch k {
	case RecordPut:
		return "Put"
	case RecordTombstone:
		return "Tombstone"
	case RecordBatchBegin:
		return "BatchBegin"
	case RecordBatchCommit:
		return "BatchCommit"
	default:
		return "Unknown"
	}
}

// headerLen is the size of the fixed length+crc prefix.
const headerLen = 8

var (
	// ErrCorruptRecord is returned by decodeRecord when a frame's checksum
	// or length does not validate; Replay treats this as a torn tail and
	// stops reading.
	ErrCorruptRecord = errors.New("wal: corrupt record")
)

// Record is a single decoded WAL entry.
type Record struct {
	Kind     RecordKind
	Sequence dbformat.SequenceNumber
	Path     []byte
	Value    []byte
	HasValue bool
	// BatchCount is populated only on a RecordBatchBegin record and gives
	// the number of entries the batch contains.
	BatchCount uint32
}

// encode serializes r into its on-disk payload (everything after the
// length+crc header).
func (r *Record) encode() []byte {
	buf := make([]byte, 0, 32+len(r.Path)+len(r.Value))
	buf = append(buf, byte(r.Kind))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Sequence))
	switch r.Kind {
	case RecordBatchBegin:
		buf = binary.LittleEndian.AppendUint32(buf, r.BatchCount)
		return buf
	case RecordBatchCommit:
		return buf
	default:
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.Path)))
		buf = append(buf, r.Path...)
		if r.HasValue {
			buf = append(buf, 1)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Value)))
			buf = append(buf, r.Value...)
		} else {
			buf = append(buf, 0)
		}
		return buf
	}
}

// decodeRecord parses a payload (the bytes after length+crc) into a Record.
func decodeRecord(payload []byte) (*Record, error) {
	if len(payload) < 9 {
		return nil, ErrCorruptRecord
	}
	r := &Record{
		Kind:     RecordKind(payload[0]),
		Sequence: dbformat.SequenceNumber(binary.LittleEndian.Uint64(payload[1:9])),
	}
	rest := payload[9:]
	switch r.Kind {
	case RecordBatchBegin:
		if len(rest) < 4 {
			return nil, ErrCorruptRecord
		}
		r.BatchCount = binary.LittleEndian.Uint32(rest)
		return r, nil
	case RecordBatchCommit:
		return r, nil
	case RecordPut, RecordTombstone:
		if len(rest) < 2 {
			return nil, ErrCorruptRecord
		}
		pathLen := int(binary.LittleEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < pathLen+1 {
			return nil, ErrCorruptRecord
		}
		r.Path = append([]byte(nil), rest[:pathLen]...)
		rest = rest[pathLen:]
		hasValue := rest[0]
		rest = rest[1:]
		if hasValue == 1 {
			if len(rest) < 4 {
				return nil, ErrCorruptRecord
			}
			valLen := int(binary.LittleEndian.Uint32(rest))
			rest = rest[4:]
			if len(rest) < valLen {
				return nil, ErrCorruptRecord
			}
			r.HasValue = true
			r.Value = append([]byte(nil), rest[:valLen]...)
		}
		return r, nil
	default:
		return nil, ErrCorruptRecord
	}
}

// frame wraps an encoded payload with its length+crc32c header.
func frame(payload []byte) []byte {
	out := make([]byte, headerLen, headerLen+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[4:8], checksum.Value(payload))
	return append(out, payload...)
}
