// Package firelocal is an embedded, offline-first document database with
// a hierarchical, slash-path key space, modeled after a well-known cloud
// document store.
//
// An Engine composes a write-ahead log, an in-memory memtable, and a set
// of immutable on-disk SSTs (internal/wal, internal/memtable,
// internal/sst) into one consistent, crash-recoverable view, fronted by
// a rules gate (internal/rules), a field-value rewriter
// (internal/fieldvalue), optimistic-concurrency transactions, and a
// change-notification dispatcher (internal/listener).
//
//	eng, err := firelocal.Open("./data", firelocal.DefaultOptions())
//	if err != nil { ... }
//	defer eng.Close()
//	err = eng.Put("users/alice", []byte(`{"name":"Alice"}`))
//	val, err := eng.Get("users/alice")
package firelocal
