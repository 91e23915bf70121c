// Package listener dispatches post-commit change notifications to
// registered subscribers.
//
// Each subscription owns a buffered channel drained by a single
// goroutine, grounded on AndrewTheMaster's generic Listener[T]
// (pkg/listener.Listener): a channel in, a handler, a start/stop
// lifecycle. Unlike that worker, a subscription's handler here is the
// caller's own callback — the dispatcher never hands it a live engine
// reference, only an owned slice of ChangedDoc values, so a callback can
// never observe engine internals or block the writer.
package listener

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ChangeKind identifies what happened to a document.
type ChangeKind int

const (
	// ChangePut means the document was created or overwritten.
	ChangePut ChangeKind = iota
	// ChangeDelete means the document was removed.
	ChangeDelete
)

// ChangedDoc is one document's change within a committed batch.
type ChangedDoc struct {
	Path  string
	Kind  ChangeKind
	Value []byte // nil for ChangeDelete
}

// Query selects which changes a subscription receives. Exactly one of
// PathPrefix or Predicate should be set; Predicate is supplied by an
// external index collaborator and is never constructed by this package.
type Query struct {
	PathPrefix string
	Predicate  func(path string) bool
}

func (q Query) matches(path string) bool {
	if q.Predicate != nil {
		return q.Predicate(path)
	}
	return strings.HasPrefix(path, q.PathPrefix)
}

// Callback receives the set of changed documents matching a
// subscription's query, for one committed batch.
type Callback func(docs []ChangedDoc)

type subscription struct {
	id       string
	query    Query
	callback Callback
	in       chan []ChangedDoc
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Dispatcher owns the set of active subscriptions and fans out each
// commit to the ones whose query matches.
type Dispatcher struct {
	mu   sync.Mutex
	subs map[string]*subscription
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{subs: make(map[string]*subscription)}
}

// Listen registers cb to be invoked, on its own goroutine, with the
// matching subset of every future commit. It returns a subscription id
// usable with Unlisten.
func (d *Dispatcher) Listen(query Query, cb Callback) string {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:       uuid.NewString(),
		query:    query,
		callback: cb,
		in:       make(chan []ChangedDoc, 64),
		cancel:   cancel,
	}
	sub.wg.Add(1)
	go sub.run(ctx)

	d.mu.Lock()
	d.subs[sub.id] = sub
	d.mu.Unlock()
	return sub.id
}

// Unlisten removes a subscription and stops its goroutine. Pending
// buffered notifications are dropped.
func (d *Dispatcher) Unlisten(id string) {
	d.mu.Lock()
	sub, ok := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	sub.wg.Wait()
}

// Dispatch notifies every subscription whose query matches at least one
// path in docs, in the order subscriptions were registered within this
// call is not guaranteed, but delivery to any single subscription is
// commit-ordered because Dispatch is only ever called from the writer's
// single critical section.
func (d *Dispatcher) Dispatch(docs []ChangedDoc) {
	if len(docs) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subs {
		var matched []ChangedDoc
		for _, doc := range docs {
			if sub.query.matches(doc.Path) {
				matched = append(matched, doc)
			}
		}
		if len(matched) == 0 {
			continue
		}
		select {
		case sub.in <- matched:
		default:
			// Subscriber is falling behind; drop rather than block the
			// writer. A slow consumer should not stall commits.
		}
	}
}

// Close stops every active subscription.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.subs = make(map[string]*subscription)
	d.mu.Unlock()

	for _, s := range subs {
		s.cancel()
		s.wg.Wait()
	}
}

func (s *subscription) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case docs := <-s.in:
			s.safeInvoke(docs)
		case <-ctx.Done():
			return
		}
	}
}

// safeInvoke recovers a panicking callback so a broken subscriber can
// never affect engine correctness or other subscriptions.
func (s *subscription) safeInvoke(docs []ChangedDoc) {
	defer func() {
		_ = recover()
	}()
	s.callback(docs)
}
