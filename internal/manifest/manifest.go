// Package manifest persists the engine's durable control state: which SSTs
// are live, the sequence watermark recovery should resume from, and the
// name of the WAL segment currently receiving writes.
//
// Unlike rockyardkv's MANIFEST (a log of VersionEdit deltas with dozens of
// RocksDB-specific tags), firelocal has no column families, levels, or
// blob files to track, so the whole state fits in one small snapshot file
// that is rewritten, not appended to, on every publish.
package manifest

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/firelocal/firelocal-go/internal/checksum"
	"github.com/pkg/errors"
)

const (
	magic         = "FLM1"
	formatVersion = 1
)

// ErrNotManifest is returned when a file's magic does not match.
var ErrNotManifest = errors.New("manifest: not a valid manifest file")

// ErrCorrupt is returned when a manifest's checksum fails to validate.
var ErrCorrupt = errors.New("manifest: corrupt file")

// Manifest is the engine's complete durable control state.
type Manifest struct {
	// LiveSSTIDs lists the file numbers of every SST currently part of the
	// database, in no particular order.
	LiveSSTIDs []uint64
	// SequenceWatermark is the highest sequence number known to be durable;
	// recovery resumes sequence allocation above this value.
	SequenceWatermark uint64
	// WALSegment is the file name (relative to the database directory) of
	// the WAL segment currently receiving appends.
	WALSegment string
	// NextSSTID is the file number to assign to the next SST produced by a
	// flush or compaction.
	NextSSTID uint64
}

// Load reads the manifest at path. A missing file is not an error: it
// reports an empty Manifest with ok=false, matching an empty database
// directory.
func Load(path string) (m *Manifest, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, false, nil
		}
		return nil, false, errors.Wrapf(err, "manifest: read %s", path)
	}

	m, err = decode(data)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// Save publishes m to path. The write is atomic with respect to crash: the
// new content is written to a temp file in the same directory, fsynced,
// then renamed over path.
func (m *Manifest) Save(path string) error {
	data := encode(m)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "*.manifest.tmp")
	if err != nil {
		return errors.Wrap(err, "manifest: create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "manifest: publish via rename")
	}
	return nil
}

func encode(m *Manifest) []byte {
	buf := make([]byte, 0, 64+len(m.WALSegment)+8*len(m.LiveSSTIDs))
	buf = append(buf, magic...)
	buf = append(buf, formatVersion)
	buf = binary.LittleEndian.AppendUint64(buf, m.SequenceWatermark)
	buf = binary.LittleEndian.AppendUint64(buf, m.NextSSTID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.WALSegment)))
	buf = append(buf, m.WALSegment...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.LiveSSTIDs)))
	for _, id := range m.LiveSSTIDs {
		buf = binary.LittleEndian.AppendUint64(buf, id)
	}
	crc := checksum.Value(buf)
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	return buf
}

func decode(data []byte) (*Manifest, error) {
	if len(data) < 5 {
		return nil, ErrNotManifest
	}
	if string(data[:4]) != magic {
		return nil, ErrNotManifest
	}
	if len(data) < 4 {
		return nil, ErrCorrupt
	}
	body := data[:len(data)-4]
	wantCRC := binary.LittleEndian.Uint32(data[len(data)-4:])
	if checksum.Value(body) != wantCRC {
		return nil, ErrCorrupt
	}

	rest := body[5:]
	if len(rest) < 18 {
		return nil, ErrCorrupt
	}
	m := &Manifest{}
	m.SequenceWatermark = binary.LittleEndian.Uint64(rest[0:8])
	m.NextSSTID = binary.LittleEndian.Uint64(rest[8:16])
	walLen := int(binary.LittleEndian.Uint16(rest[16:18]))
	rest = rest[18:]
	if len(rest) < walLen+4 {
		return nil, ErrCorrupt
	}
	m.WALSegment = string(rest[:walLen])
	rest = rest[walLen:]
	count := int(binary.LittleEndian.Uint32(rest[:4]))
	rest = rest[4:]
	if len(rest) < count*8 {
		return nil, ErrCorrupt
	}
	m.LiveSSTIDs = make([]uint64, count)
	for i := 0; i < count; i++ {
		m.LiveSSTIDs[i] = binary.LittleEndian.Uint64(rest[:8])
		rest = rest[8:]
	}
	return m, nil
}
