package firelocal

import (
	"github.com/firelocal/firelocal-go/internal/batch"
	"github.com/firelocal/firelocal-go/internal/dbformat"
	"github.com/firelocal/firelocal-go/internal/rules"
)

// readRecord pins what Get observed for a path at its first read within an
// attempt: the version for Commit's conflict check, and the value itself so
// a second Get of the same path returns what the first one saw rather than
// re-querying the engine's memtable, which mutates entries in place and so
// cannot otherwise answer "as of S0" for a path touched by a concurrent
// write mid-attempt.
type readRecord struct {
	version uint64
	value   []byte
	found   bool
}

// Transaction stages reads and writes for optimistic-concurrency commit:
// Get records the version and value of every path it touches, and Commit
// succeeds only if none of those versions have changed since Begin. A
// transaction body should be idempotent, since RunTransaction may invoke
// it more than once on conflict.
type Transaction struct {
	eng      *Engine
	snapshot *view // captured once at Begin; every Get's first read of a path reads from this
	reads    map[string]readRecord
	staged   *batch.Batch
}

// Begin starts a new transaction, capturing the engine's current view as
// this attempt's read snapshot. Most callers should use RunTransaction
// instead of calling Begin and Commit directly, since a bare Commit does
// not retry on conflict.
func (e *Engine) Begin() *Transaction {
	return &Transaction{
		eng:      e,
		snapshot: e.view.Load(),
		reads:    make(map[string]readRecord),
		staged:   batch.New(),
	}
}

// Get returns path's value from the view captured at Begin, recording
// its version and value for Commit's conflict check. The captured view's
// SST set is fixed, but its memtable keeps receiving commits until it is
// flushed, so a path's first read can observe a write committed after
// Begin. A path read more
// than once within the same attempt is resolved against its first read,
// so two Gets of the same path within one attempt always agree even if a
// concurrent writer commits to that path in between.
func (t *Transaction) Get(path string) ([]byte, error) {
	if err := t.eng.checkFault(); err != nil {
		return nil, err
	}
	if e := t.eng.evaluator().Evaluate(rules.OpRead, path, nil, rules.AuthContext{}); e != rules.Allow {
		return nil, newError(PermissionDenied, path, nil)
	}

	if rec, seen := t.reads[path]; seen {
		if !rec.found {
			return nil, nil
		}
		return rec.value, nil
	}

	value, kind, seq, found := t.snapshot.lookup([]byte(path))
	var rec readRecord
	if found {
		rec.version = uint64(seq)
		rec.found = kind != dbformat.KindTombstone
		rec.value = value
	}
	t.reads[path] = rec
	if !rec.found {
		return nil, nil
	}
	return rec.value, nil
}

// Set stages a full-document write, visible only after Commit succeeds.
func (t *Transaction) Set(path string, value []byte) *Transaction {
	t.staged.Set(path, value)
	return t
}

// Update stages a partial-document merge, visible only after Commit
// succeeds.
func (t *Transaction) Update(path string, partial []byte) *Transaction {
	t.staged.Update(path, partial)
	return t
}

// Delete stages a document removal, visible only after Commit succeeds.
func (t *Transaction) Delete(path string) *Transaction {
	t.staged.Delete(path)
	return t
}

// Commit validates the transaction's read set against the engine's
// current version for every path read, and if nothing has changed,
// applies the staged writes as a single atomic batch. A read-set
// mismatch returns TxnConflict without writing anything; the caller (or
// RunTransaction) must retry.
func (t *Transaction) Commit() error {
	if err := t.eng.checkFault(); err != nil {
		return err
	}

	e := t.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFault(); err != nil {
		return err
	}

	v := e.view.Load()
	for path, rec := range t.reads {
		if v.version([]byte(path)) != rec.version {
			return newError(TxnConflict, path, nil)
		}
	}

	if t.staged.Len() == 0 {
		return nil
	}
	if err := e.validateOps(t.staged.Ops()); err != nil {
		return err
	}
	return e.commitBatchLocked(t.staged)
}

// RunTransaction executes fn against a fresh Transaction, committing and
// retrying on conflict up to Options.TxnRetryBound times. It returns the
// last TxnConflict if every attempt conflicts, or any non-conflict error
// fn or Commit produces immediately, without retrying.
func (e *Engine) RunTransaction(fn func(tx *Transaction) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.opts.TxnRetryBound; attempt++ {
		tx := e.Begin()
		if err := fn(tx); err != nil {
			return err
		}
		err := tx.Commit()
		if err == nil {
			return nil
		}
		if !IsKind(err, TxnConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
