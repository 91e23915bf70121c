package firelocal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/firelocal/firelocal-go/internal/batch"
	"github.com/firelocal/firelocal-go/internal/compaction"
	"github.com/firelocal/firelocal-go/internal/dbformat"
	"github.com/firelocal/firelocal-go/internal/fieldvalue"
	"github.com/firelocal/firelocal-go/internal/listener"
	"github.com/firelocal/firelocal-go/internal/logging"
	"github.com/firelocal/firelocal-go/internal/manifest"
	"github.com/firelocal/firelocal-go/internal/memtable"
	"github.com/firelocal/firelocal-go/internal/rules"
	"github.com/firelocal/firelocal-go/internal/sst"
	"github.com/firelocal/firelocal-go/internal/validate"
	"github.com/firelocal/firelocal-go/internal/vfs"
	"github.com/firelocal/firelocal-go/internal/wal"
)

const manifestFileName = "MANIFEST"

// Engine composes the write-ahead log, memtable, and SSTs into one
// consistent, crash-recoverable view, fronted by the rules gate,
// field-value rewriter, OCC transaction protocol, and listener
// dispatcher. An Engine is safe for concurrent use by multiple
// goroutines: writes (Put, Delete, CommitBatch, transaction commits) are
// serialized by an internal writer mutex; reads (Get) sample a
// published, immutable view and never block on a write in progress.
type Engine struct {
	dir  string
	opts Options

	lock io.Closer

	mu        sync.Mutex // serializes all writers: put/delete/batch/txn/flush/compaction
	view      atomic.Pointer[view]
	seq       uint64 // next sequence number to allocate; mu-guarded
	walW      *wal.Writer
	walSeg    uint64
	nextSST   uint64
	fault     atomic.Pointer[Error] // set on a fatal I/O error; further writes rejected

	rulesEval atomic.Pointer[rules.Evaluator]
	dispatch  *listener.Dispatcher
	logger    logging.Logger
}

// Open opens the database directory at dir, performing crash recovery,
// and returns a ready Engine. The directory is created if it doesn't
// exist. Opening a directory already held by another Engine (in this or
// another process) returns a LockHeld error.
func Open(dir string, opts Options) (*Engine, error) {
	opts.fillDefaults()

	if err := os.MkdirAll(filepath.Join(dir, "wal"), 0o755); err != nil {
		return nil, newError(IoError, dir, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sst"), 0o755); err != nil {
		return nil, newError(IoError, dir, err)
	}

	lock, err := vfs.Lock(dir)
	if err != nil {
		return nil, newError(LockHeld, dir, err)
	}

	eng := &Engine{
		dir:      dir,
		opts:     opts,
		lock:     lock,
		dispatch: listener.New(),
		logger:   opts.Logger,
	}

	eval := opts.RulesEvaluator
	if eval == nil {
		eval = rules.NewStaticEvaluator(opts.RulesMode)
	}
	eng.rulesEval.Store(&eval)

	if err := eng.recover(); err != nil {
		lock.Close()
		return nil, err
	}
	return eng, nil
}

func (e *Engine) manifestPath() string {
	return filepath.Join(e.dir, manifestFileName)
}

func (e *Engine) walSegmentPath(seg uint64) string {
	return filepath.Join(e.dir, "wal", fmt.Sprintf("%06d.log", seg))
}

func (e *Engine) sstPath(id uint64) string {
	return filepath.Join(e.dir, "sst", fmt.Sprintf("%06d.sst", id))
}

// recover implements Open / recovery per the engine's contract: acquire
// the lock (already done by the caller), load the manifest, replay the
// WAL into a fresh memtable, and open readers for every live SST.
func (e *Engine) recover() error {
	m, ok, err := manifest.Load(e.manifestPath())
	if err != nil {
		return newError(CorruptManifest, e.manifestPath(), err)
	}

	mem := memtable.New()
	var ssts []sstEntry

	if !ok {
		e.walSeg = 1
		e.nextSST = 1
	} else {
		e.seq = m.SequenceWatermark
		e.nextSST = m.NextSSTID
		for _, id := range m.LiveSSTIDs {
			r, err := sst.Open(e.sstPath(id))
			if err != nil {
				return newError(CorruptSst, e.sstPath(id), err)
			}
			ssts = append(ssts, sstEntry{id: id, reader: r})
		}
		seg, parseErr := parseSegmentName(m.WALSegment)
		if parseErr != nil {
			return newError(CorruptManifest, m.WALSegment, parseErr)
		}
		e.walSeg = seg
	}

	_, maxSeq, err := wal.Replay(e.walSegmentPath(e.walSeg), func(r *wal.Record) error {
		var kind dbformat.Kind
		switch r.Kind {
		case wal.RecordPut:
			kind = dbformat.KindPut
		case wal.RecordTombstone:
			kind = dbformat.KindTombstone
		default:
			return nil
		}
		mem.Insert(r.Path, r.Sequence, kind, r.Value)
		return nil
	})
	if err != nil {
		return newError(IoError, e.walSegmentPath(e.walSeg), err)
	}
	if maxSeq > e.seq {
		e.seq = maxSeq
	}

	sort.Slice(ssts, func(i, j int) bool { return ssts[i].id > ssts[j].id })

	w, err := wal.OpenWriter(e.walSegmentPath(e.walSeg))
	if err != nil {
		return newError(IoError, e.walSegmentPath(e.walSeg), err)
	}
	e.walW = w

	e.view.Store(&view{mem: mem, ssts: ssts})
	return nil
}

func parseSegmentName(name string) (uint64, error) {
	var n uint64
	base := filepath.Base(name)
	if _, err := fmt.Sscanf(base, "%06d.log", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *Engine) evaluator() rules.Evaluator {
	return *e.rulesEval.Load()
}

// checkFault returns the recorded fatal error, if any, wrapped as an
// EngineFault so callers can distinguish "this operation failed" from
// "this engine is permanently stopped".
func (e *Engine) checkFault() error {
	if f := e.fault.Load(); f != nil {
		return newError(EngineFault, e.dir, f)
	}
	return nil
}

func (e *Engine) setFault(err *Error) {
	e.fault.Store(err)
	e.logger.Fatalf("%s", err.Error())
}

// Get returns path's current value, or nil if the document is absent or
// has been deleted. A rules-gate denial is reported as PermissionDenied.
func (e *Engine) Get(path string) ([]byte, error) {
	if err := e.checkFault(); err != nil {
		return nil, err
	}
	if err := validate.Path(path, e.opts.MaxPathBytes); err != nil {
		return nil, newError(InvalidPath, path, err)
	}
	if e.evaluator().Evaluate(rules.OpRead, path, nil, rules.AuthContext{}) != rules.Allow {
		return nil, newError(PermissionDenied, path, nil)
	}
	return e.getInternal([]byte(path))
}

// getInternal looks up path's current value without consulting the
// rules gate, for use by the field-value rewriter's pre-image read and
// mergeUpdate.
func (e *Engine) getInternal(path []byte) ([]byte, error) {
	v := e.view.Load()
	value, kind, _, found := v.lookup(path)
	if !found || kind == dbformat.KindTombstone {
		return nil, nil
	}
	return value, nil
}

// Put writes value at path, rewriting any top-level field-value
// sentinels first (§4.6). Put returns once the write is durable.
func (e *Engine) Put(path string, value []byte) error {
	if err := e.checkFault(); err != nil {
		return err
	}
	if err := validate.Path(path, e.opts.MaxPathBytes); err != nil {
		return newError(InvalidPath, path, err)
	}
	if err := validate.Payload(value, e.opts.MaxDocumentBytes); err != nil {
		return newError(PayloadTooLarge, path, err)
	}
	if e.evaluator().Evaluate(rules.OpWrite, path, value, rules.AuthContext{}) != rules.Allow {
		return newError(PermissionDenied, path, nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFault(); err != nil {
		return err
	}

	rewritten, err := e.rewriteForWrite([]byte(path), value)
	if err != nil {
		return newError(InvalidBatch, path, err)
	}

	seq := e.allocSeq()
	rec := &wal.Record{Kind: wal.RecordPut, Sequence: seq, Path: []byte(path), Value: rewritten, HasValue: true}
	if err := e.walW.Append(rec); err != nil {
		fe := newError(IoError, path, err)
		e.setFault(fe)
		return fe
	}

	e.view.Load().mem.Insert([]byte(path), seq, dbformat.KindPut, rewritten)
	e.dispatch.Dispatch([]listener.ChangedDoc{{Path: path, Kind: listener.ChangePut, Value: rewritten}})
	e.maybeFlushAndCompact()
	return nil
}

// Delete removes path. Delete returns once the tombstone is durable.
func (e *Engine) Delete(path string) error {
	if err := e.checkFault(); err != nil {
		return err
	}
	if err := validate.Path(path, e.opts.MaxPathBytes); err != nil {
		return newError(InvalidPath, path, err)
	}
	if e.evaluator().Evaluate(rules.OpDelete, path, nil, rules.AuthContext{}) != rules.Allow {
		return newError(PermissionDenied, path, nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFault(); err != nil {
		return err
	}

	seq := e.allocSeq()
	rec := &wal.Record{Kind: wal.RecordTombstone, Sequence: seq, Path: []byte(path)}
	if err := e.walW.Append(rec); err != nil {
		fe := newError(IoError, path, err)
		e.setFault(fe)
		return fe
	}

	e.view.Load().mem.Insert([]byte(path), seq, dbformat.KindTombstone, nil)
	e.dispatch.Dispatch([]listener.ChangedDoc{{Path: path, Kind: listener.ChangeDelete}})
	e.maybeFlushAndCompact()
	return nil
}

// rewriteForWrite applies the field-value rewriter to value if it
// contains a sentinel, reading path's current value as the pre-image.
// Callers must hold e.mu (or otherwise know no concurrent writer is
// active) since it consults getInternal.
func (e *Engine) rewriteForWrite(path []byte, value []byte) ([]byte, error) {
	existing, _ := e.getInternal(path)
	return fieldvalue.Rewrite(value, existing, e.opts.Clock())
}

// allocSeq assigns the next sequence number. Callers must hold e.mu.
func (e *Engine) allocSeq() dbformat.SequenceNumber {
	e.seq++
	return dbformat.SequenceNumber(e.seq)
}

// NewBatch returns an empty batch builder.
func (e *Engine) NewBatch() *batch.Batch {
	return batch.New()
}

// CommitBatch validates and journals every operation in b as a single
// atomic unit: either all entries become visible, or (on a crash before
// the commit marker is durable) none do. Validation failure on any
// entry aborts the whole batch before any WAL bytes are written.
func (e *Engine) CommitBatch(b *batch.Batch) error {
	if err := e.checkFault(); err != nil {
		return err
	}
	if err := e.validateOps(b.Ops()); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFault(); err != nil {
		return err
	}
	return e.commitBatchLocked(b)
}

// validateOps checks path syntax, payload size, and the rules gate for
// every staged operation, before any of it reaches the WAL.
func (e *Engine) validateOps(ops []batch.Op) error {
	for _, op := range ops {
		if err := validate.Path(op.Path, e.opts.MaxPathBytes); err != nil {
			return newError(InvalidBatch, op.Path, err)
		}
		if op.Kind != batch.OpDelete {
			if err := validate.Payload(op.Value, e.opts.MaxDocumentBytes); err != nil {
				return newError(PayloadTooLarge, op.Path, err)
			}
		}
		want := rules.OpWrite
		if op.Kind == batch.OpDelete {
			want = rules.OpDelete
		}
		if e.evaluator().Evaluate(want, op.Path, op.Value, rules.AuthContext{}) != rules.Allow {
			return newError(PermissionDenied, op.Path, nil)
		}
	}
	return nil
}

// commitBatchLocked journals and applies b's operations. Callers must
// hold e.mu and must have already validated every op via validateOps.
func (e *Engine) commitBatchLocked(b *batch.Batch) error {
	ops := b.Ops()
	if len(ops) == 0 {
		return nil
	}

	begin := dbformat.SequenceNumber(e.seq + 1)
	records := make([]*wal.Record, 0, len(ops)+2)
	changed := make([]listener.ChangedDoc, 0, len(ops))

	beginRec := &wal.Record{Kind: wal.RecordBatchBegin, Sequence: begin, BatchCount: uint32(len(ops))}
	records = append(records, beginRec)

	var last dbformat.SequenceNumber
	for _, op := range ops {
		seq := e.allocSeq()
		last = seq
		switch op.Kind {
		case batch.OpDelete:
			records = append(records, &wal.Record{Kind: wal.RecordTombstone, Sequence: seq, Path: []byte(op.Path)})
			changed = append(changed, listener.ChangedDoc{Path: op.Path, Kind: listener.ChangeDelete})
		case batch.OpSet:
			rewritten, err := e.rewriteForWrite([]byte(op.Path), op.Value)
			if err != nil {
				return newError(InvalidBatch, op.Path, err)
			}
			records = append(records, &wal.Record{Kind: wal.RecordPut, Sequence: seq, Path: []byte(op.Path), Value: rewritten, HasValue: true})
			changed = append(changed, listener.ChangedDoc{Path: op.Path, Kind: listener.ChangePut, Value: rewritten})
		case batch.OpUpdate:
			merged, err := e.mergeUpdate([]byte(op.Path), op.Value)
			if err != nil {
				return newError(InvalidBatch, op.Path, err)
			}
			rewritten, err := e.rewriteForWrite([]byte(op.Path), merged)
			if err != nil {
				return newError(InvalidBatch, op.Path, err)
			}
			records = append(records, &wal.Record{Kind: wal.RecordPut, Sequence: seq, Path: []byte(op.Path), Value: rewritten, HasValue: true})
			changed = append(changed, listener.ChangedDoc{Path: op.Path, Kind: listener.ChangePut, Value: rewritten})
		}
	}
	records = append(records, &wal.Record{Kind: wal.RecordBatchCommit, Sequence: last})

	if err := e.walW.Append(records...); err != nil {
		fe := newError(IoError, "batch", err)
		e.setFault(fe)
		return fe
	}

	mem := e.view.Load().mem
	for i, rec := range records {
		if i == 0 || i == len(records)-1 {
			continue // BatchBegin / BatchCommit markers carry no document
		}
		if rec.Kind == wal.RecordTombstone {
			mem.Insert(rec.Path, rec.Sequence, dbformat.KindTombstone, nil)
		} else {
			mem.Insert(rec.Path, rec.Sequence, dbformat.KindPut, rec.Value)
		}
	}

	e.dispatch.Dispatch(changed)
	e.maybeFlushAndCompact()
	return nil
}

// mergeUpdate implements Update as sugar over read-modify-write: the
// partial object's top-level fields are unioned over the current
// document, new values overwriting existing ones, absent keys
// untouched. Callers must hold e.mu.
func (e *Engine) mergeUpdate(path []byte, partial []byte) ([]byte, error) {
	existing, _ := e.getInternal(path)

	var base map[string]json.RawMessage
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &base); err != nil {
			base = nil
		}
	}
	if base == nil {
		base = make(map[string]json.RawMessage)
	}

	var patch map[string]json.RawMessage
	if err := json.Unmarshal(partial, &patch); err != nil {
		return nil, fmt.Errorf("update: partial value must be a JSON object: %w", err)
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}

// LoadRules installs text as the active rules document. Subsequent
// operations are gated by the path-prefix rules it parses, falling back
// to Options.RulesMode for unmatched paths.
func (e *Engine) LoadRules(text []byte) error {
	eval, err := rules.Load(text, e.opts.RulesMode)
	if err != nil {
		return newError(InvalidRules, "rules", err)
	}
	var asEvaluator rules.Evaluator = eval
	e.rulesEval.Store(&asEvaluator)
	return nil
}

// Listen registers a subscription matching query; cb is invoked with the
// changed documents from every future commit that matches. It returns a
// subscription id usable with Unlisten.
func (e *Engine) Listen(query listener.Query, cb listener.Callback) string {
	return e.dispatch.Listen(query, cb)
}

// Unlisten removes a subscription registered by Listen.
func (e *Engine) Unlisten(id string) {
	e.dispatch.Unlisten(id)
}

// Flush forces the active memtable to a new SST immediately, regardless
// of FlushThresholdBytes. Intended for operator tooling (cmd/firelocal-cli);
// the engine itself only flushes automatically via maybeFlushAndCompact.
func (e *Engine) Flush() error {
	if err := e.checkFault(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFault(); err != nil {
		return err
	}
	if e.view.Load().mem.Count() == 0 {
		return nil
	}
	if err := e.flushLocked(); err != nil {
		e.setFault(err.(*Error))
		return err
	}
	return nil
}

// Compact forces a merge of every live SST into one, regardless of
// CompactionSSTThreshold. Intended for operator tooling.
func (e *Engine) Compact() error {
	if err := e.checkFault(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFault(); err != nil {
		return err
	}
	if err := e.compactLocked(); err != nil {
		e.setFault(err.(*Error))
		return err
	}
	return nil
}

// flushLocked forces the active memtable to a new SST immediately,
// regardless of FlushThresholdBytes. Callers must hold e.mu.
func (e *Engine) flushLocked() error {
	v := e.view.Load()
	v.mem.Seal()

	var records []sst.Record
	v.mem.IterSorted(func(path []byte, ent memtable.Entry) bool {
		records = append(records, sst.Record{Path: path, Sequence: ent.Sequence, Kind: ent.Kind, Value: ent.Value})
		return true
	})

	id := e.nextSST
	e.nextSST++
	if err := sst.Write(e.sstPath(id), records, sst.BuilderOptions{Compression: e.opts.Compression}); err != nil {
		return newError(IoError, e.sstPath(id), err)
	}
	reader, err := sst.Open(e.sstPath(id))
	if err != nil {
		return newError(CorruptSst, e.sstPath(id), err)
	}

	newSSTs := make([]sstEntry, 0, len(v.ssts)+1)
	newSSTs = append(newSSTs, sstEntry{id: id, reader: reader})
	newSSTs = append(newSSTs, v.ssts...)

	oldSeg := e.walSeg
	e.walSeg++
	newW, err := wal.Rotate(e.walW, e.walSegmentPath(e.walSeg))
	if err != nil {
		return newError(IoError, e.walSegmentPath(e.walSeg), err)
	}
	e.walW = newW

	m := &manifest.Manifest{
		SequenceWatermark: e.seq,
		NextSSTID:         e.nextSST,
		WALSegment:        filepath.Base(e.walSegmentPath(e.walSeg)),
	}
	for _, entry := range newSSTs {
		m.LiveSSTIDs = append(m.LiveSSTIDs, entry.id)
	}
	if err := m.Save(e.manifestPath()); err != nil {
		return newError(IoError, e.manifestPath(), err)
	}

	if err := os.Remove(e.walSegmentPath(oldSeg)); err != nil && !os.IsNotExist(err) {
		e.logger.Warnf("%sfailed to remove retired segment %s: %v", logging.NSFlush, e.walSegmentPath(oldSeg), err)
	}

	e.view.Store(&view{mem: memtable.New(), ssts: newSSTs})
	e.logger.Infof("%sflushed %d entries to sst %d", logging.NSFlush, len(records), id)

	if compaction.ShouldCompact(len(newSSTs), e.opts.CompactionSSTThreshold) {
		if err := e.compactLocked(); err != nil {
			return err
		}
	}
	return nil
}

// compactLocked merges every live SST into one and republishes the view.
// Callers must hold e.mu.
func (e *Engine) compactLocked() error {
	v := e.view.Load()
	if len(v.ssts) < 2 {
		return nil
	}
	readers := make([]*sst.Reader, len(v.ssts))
	for i, entry := range v.ssts {
		readers[i] = entry.reader
	}

	merged, stats := compaction.Merge(readers)

	id := e.nextSST
	e.nextSST++
	if err := sst.Write(e.sstPath(id), merged, sst.BuilderOptions{Compression: e.opts.Compression}); err != nil {
		return newError(IoError, e.sstPath(id), err)
	}
	reader, err := sst.Open(e.sstPath(id))
	if err != nil {
		return newError(CorruptSst, e.sstPath(id), err)
	}

	retired := v.ssts
	newSSTs := []sstEntry{{id: id, reader: reader}}

	m := &manifest.Manifest{
		SequenceWatermark: e.seq,
		NextSSTID:         e.nextSST,
		WALSegment:        filepath.Base(e.walSegmentPath(e.walSeg)),
		LiveSSTIDs:        []uint64{id},
	}
	if err := m.Save(e.manifestPath()); err != nil {
		return newError(IoError, e.manifestPath(), err)
	}

	e.view.Store(&view{mem: v.mem, ssts: newSSTs})

	for _, entry := range retired {
		if err := os.Remove(e.sstPath(entry.id)); err != nil && !os.IsNotExist(err) {
			e.logger.Warnf("%sfailed to remove retired sst %d: %v", logging.NSCompact, entry.id, err)
		}
	}
	e.logger.Infof("%smerged %d files into 1 (%d entries, %d tombstones dropped)",
		logging.NSCompact, stats.FilesBefore, stats.EntriesAfter, stats.TombstonesRemoved)
	return nil
}

// maybeFlushAndCompact flushes the active memtable if it has grown past
// FlushThresholdBytes. Callers must hold e.mu.
func (e *Engine) maybeFlushAndCompact() {
	if e.view.Load().mem.ByteCharge() <= e.opts.FlushThresholdBytes {
		return
	}
	if err := e.flushLocked(); err != nil {
		e.setFault(err.(*Error))
	}
}

// Close flushes any outstanding memtable content and releases the
// directory lock. After Close, the Engine must not be used again.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.view.Load().mem.Count() > 0 {
		if err := e.flushLocked(); err != nil {
			return err
		}
	}
	e.dispatch.Close()
	if err := e.walW.Close(); err != nil {
		return newError(IoError, e.dir, err)
	}
	if err := e.lock.Close(); err != nil {
		return newError(IoError, e.dir, err)
	}
	return nil
}
