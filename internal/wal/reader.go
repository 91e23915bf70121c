package wal

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/firelocal/firelocal-go/internal/checksum"
	"github.com/pkg/errors"
)

// Visitor receives each fully-committed record during Replay, in file order.
// Records belonging to a batch whose BatchCommit marker is never reached
// are never delivered to the visitor.
type Visitor func(r *Record) error

// Replay streams every committed record in the segment at path to visit,
// then truncates the file at the first point where the segment stops
// being trustworthy: either a frame whose length or checksum fails to
// validate (the "torn tail" produced by a crash mid append), or — if the
// scan reaches EOF with a BatchBegin still open — that BatchBegin's own
// start offset, since a batch is atomic and a crash between its last
// entry and its BatchCommit leaves a well-formed but uncommitted prefix
// that must not be built on by later appends. It returns the valid length
// of the file (equal to the file size if nothing was torn or dangling)
// and the highest sequence number observed.
func Replay(path string, visit Visitor) (validLength int64, maxSeq uint64, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, errors.Wrapf(err, "wal: open %s for replay", path)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return 0, 0, errors.Wrap(err, "wal: read segment")
	}

	var pending []*Record
	var wantBatch uint32
	batchStart := -1 // file offset of the open BatchBegin frame, or -1 if none
	offset := 0
	for offset < len(data) {
		if len(data)-offset < headerLen {
			break // torn: not even a full header left
		}
		payloadLen := binary.LittleEndian.Uint32(data[offset : offset+4])
		wantCRC := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		end := offset + headerLen + int(payloadLen)
		if end > len(data) || end < offset {
			break // torn: declared length runs past EOF
		}
		payload := data[offset+headerLen : end]
		if checksum.Value(payload) != wantCRC {
			break // torn: checksum mismatch on the tail frame
		}
		rec, decodeErr := decodeRecord(payload)
		if decodeErr != nil {
			break
		}

		switch rec.Kind {
		case RecordBatchBegin:
			pending = nil
			wantBatch = rec.BatchCount
			batchStart = offset
		case RecordBatchCommit:
			if uint32(len(pending)) == wantBatch {
				for _, p := range pending {
					if verr := visit(p); verr != nil {
						return 0, 0, verr
					}
					if uint64(p.Sequence) > maxSeq {
						maxSeq = uint64(p.Sequence)
					}
				}
			}
			if uint64(rec.Sequence) > maxSeq {
				maxSeq = uint64(rec.Sequence)
			}
			pending = nil
			wantBatch = 0
			batchStart = -1
		default:
			if wantBatch > 0 {
				pending = append(pending, rec)
			} else {
				if verr := visit(rec); verr != nil {
					return 0, 0, verr
				}
				if uint64(rec.Sequence) > maxSeq {
					maxSeq = uint64(rec.Sequence)
				}
			}
		}

		offset = end
	}

	// A BatchBegin with no matching BatchCommit by EOF is a dangling
	// batch, even though every one of its frames validated cleanly: the
	// valid boundary is where that batch started, not where the scan
	// stopped, so the next Writer.Append doesn't build on top of it.
	if wantBatch > 0 && batchStart >= 0 {
		offset = batchStart
	}

	if offset < len(data) {
		if err := f.Truncate(int64(offset)); err != nil {
			return 0, 0, errors.Wrap(err, "wal: truncate torn tail")
		}
	}
	return int64(offset), maxSeq, nil
}
