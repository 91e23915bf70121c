package firelocal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/firelocal/firelocal-go/internal/listener"
)

func openTest(t *testing.T, opts Options) *Engine {
	t.Helper()
	opts.RulesMode = RulesAllowAll
	eng, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestPutGetRoundTrip(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	if err := eng.Put("users/alice", []byte(`{"name":"Alice"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := eng.Get("users/alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"name":"Alice"}` {
		t.Fatalf("Get = %s, want literal payload", got)
	}
}

func TestGetAbsentPathReturnsNil(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	got, err := eng.Get("users/nobody")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("Get = %v, want nil", got)
	}
}

func TestDeleteShadowsPut(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	if err := eng.Put("users/alice", []byte(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := eng.Delete("users/alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := eng.Get("users/alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("Get after Delete = %v, want nil", got)
	}
}

func TestPutRejectsInvalidPath(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	err := eng.Put("/leading/slash", []byte(`{}`))
	if !IsKind(err, InvalidPath) {
		t.Fatalf("Put: got %v, want InvalidPath", err)
	}
}

func TestPutRejectsOversizedPayload(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDocumentBytes = 8
	eng := openTest(t, opts)

	err := eng.Put("users/alice", []byte(`{"name":"far too long"}`))
	if !IsKind(err, PayloadTooLarge) {
		t.Fatalf("Put: got %v, want PayloadTooLarge", err)
	}
}

func TestDefaultRulesModeDeniesUntilLoaded(t *testing.T) {
	eng, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	err = eng.Put("users/alice", []byte(`{}`))
	if !IsKind(err, PermissionDenied) {
		t.Fatalf("Put: got %v, want PermissionDenied", err)
	}
}

func TestLoadRulesGrantsPrefixAccess(t *testing.T) {
	eng, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	doc := []byte("service firelocal;\nallow read, write: users/;\n")
	if err := eng.LoadRules(doc); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if err := eng.Put("users/alice", []byte(`{}`)); err != nil {
		t.Fatalf("Put after LoadRules: %v", err)
	}
	if err := eng.Put("admin/config", []byte(`{}`)); !IsKind(err, PermissionDenied) {
		t.Fatalf("Put outside prefix: got %v, want PermissionDenied", err)
	}
}

func TestCommitBatchIsAtomicAndOrdersLastWriteWins(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	b := eng.NewBatch().
		Set("users/alice", []byte(`{"v":1}`)).
		Set("users/bob", []byte(`{"v":1}`)).
		Set("users/alice", []byte(`{"v":2}`))
	if err := eng.CommitBatch(b); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	alice, err := eng.Get("users/alice")
	if err != nil {
		t.Fatalf("Get alice: %v", err)
	}
	if string(alice) != `{"v":2}` {
		t.Fatalf("alice = %s, want last write to win", alice)
	}
	bob, err := eng.Get("users/bob")
	if err != nil {
		t.Fatalf("Get bob: %v", err)
	}
	if string(bob) != `{"v":1}` {
		t.Fatalf("bob = %s", bob)
	}
}

func TestCommitBatchRejectsInvalidEntryBeforeWriting(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	b := eng.NewBatch().
		Set("users/alice", []byte(`{"v":1}`)).
		Set("/bad/path", []byte(`{}`))
	if err := eng.CommitBatch(b); !IsKind(err, InvalidBatch) {
		t.Fatalf("CommitBatch: got %v, want InvalidBatch", err)
	}

	got, err := eng.Get("users/alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("Get = %v, want nil (no partial batch effect)", got)
	}
}

func TestBatchUpdateMergesPartialDocument(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	if err := eng.Put("users/alice", []byte(`{"name":"Alice","age":30}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b := eng.NewBatch().Update("users/alice", []byte(`{"age":31}`))
	if err := eng.CommitBatch(b); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	got, err := eng.Get("users/alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(got, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["name"] != "Alice" || doc["age"].(float64) != 31 {
		t.Fatalf("merged doc = %v", doc)
	}
}

func TestPutServerTimestampRewritesToFixedClock(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	opts := DefaultOptions()
	opts.Clock = func() time.Time { return fixed }
	eng := openTest(t, opts)

	if err := eng.Put("posts/1", []byte(`{"createdAt":{"_firelocal_field_value":"serverTimestamp"}}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := eng.Get("posts/1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(got, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["createdAt"] != float64(fixed.UnixMilli()) {
		t.Fatalf("createdAt = %v, want %d", doc["createdAt"], fixed.UnixMilli())
	}
}

func TestPutIncrementAccumulatesAcrossWrites(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	inc := []byte(`{"count":{"_firelocal_field_value":"increment","value":1}}`)
	for i := 0; i < 3; i++ {
		if err := eng.Put("counters/visits", inc); err != nil {
			t.Fatalf("Put #%d: %v", i, err)
		}
	}
	got, err := eng.Get("counters/visits")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var doc map[string]float64
	if err := json.Unmarshal(got, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["count"] != 3 {
		t.Fatalf("count = %v, want 3", doc["count"])
	}
}

func TestFlushMakesDocumentsVisibleAfterReopen(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.RulesMode = RulesAllowAll

	eng, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.Put("users/alice", []byte(`{"name":"Alice"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	eng.mu.Lock()
	if err := eng.flushLocked(); err != nil {
		eng.mu.Unlock()
		t.Fatalf("flushLocked: %v", err)
	}
	eng.mu.Unlock()
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("users/alice")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != `{"name":"Alice"}` {
		t.Fatalf("Get after reopen = %s", got)
	}
}

func TestRecoveryReplaysUnflushedWritesAfterCrash(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.RulesMode = RulesAllowAll

	eng, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.Put("users/alice", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// No Close: simulate a crash, leaving the lock file and WAL segment
	// behind exactly as an unclean shutdown would.
	eng.walW.Close()
	eng.lock.Close()

	reopened, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("users/alice")
	if err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Fatalf("Get after recovery = %s, want replayed write", got)
	}
}

func TestListenReceivesPutNotification(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	received := make(chan listener.ChangedDoc, 1)
	id := eng.Listen(listener.Query{PathPrefix: "users/"}, func(docs []listener.ChangedDoc) {
		for _, d := range docs {
			received <- d
		}
	})
	defer eng.Unlisten(id)

	if err := eng.Put("users/alice", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case doc := <-received:
		if doc.Path != "users/alice" || doc.Kind != listener.ChangePut {
			t.Fatalf("got %+v", doc)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestUnlistenStopsFurtherNotifications(t *testing.T) {
	eng := openTest(t, DefaultOptions())

	received := make(chan listener.ChangedDoc, 4)
	id := eng.Listen(listener.Query{PathPrefix: "users/"}, func(docs []listener.ChangedDoc) {
		for _, d := range docs {
			received <- d
		}
	})

	if err := eng.Put("users/alice", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	<-received

	eng.Unlisten(id)
	if err := eng.Put("users/alice", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case doc := <-received:
		t.Fatalf("unexpected notification after Unlisten: %+v", doc)
	case <-time.After(50 * time.Millisecond):
	}
}
