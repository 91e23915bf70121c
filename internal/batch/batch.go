// Package batch collects a sequence of document mutations to be applied
// atomically: either every operation becomes visible, or none do.
package batch

// OpKind identifies the kind of mutation a single batch entry performs.
type OpKind int

const (
	// OpSet replaces a document's value entirely.
	OpSet OpKind = iota
	// OpUpdate merges a partial document's top-level fields over the
	// current value (read-modify-write, materialized as a Set at commit).
	OpUpdate
	// OpDelete removes a document.
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "Set"
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Op is a single staged mutation.
type Op struct {
	Kind  OpKind
	Path  string
	Value []byte // full document for OpSet, partial object for OpUpdate
}

// Batch is an ordered list of staged mutations. Duplicate paths are
// allowed: every entry is journaled, but only the last entry for a given
// path determines the document's final value, per the later-wins contract.
type Batch struct {
	ops []Op
}

// New returns an empty Batch.
func New() *Batch {
	return &Batch{}
}

// Set stages a full-document write.
func (b *Batch) Set(path string, value []byte) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSet, Path: path, Value: value})
	return b
}

// Update stages a partial-document merge.
func (b *Batch) Update(path string, partial []byte) *Batch {
	b.ops = append(b.ops, Op{Kind: OpUpdate, Path: path, Value: partial})
	return b
}

// Delete stages a document removal.
func (b *Batch) Delete(path string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Path: path})
	return b
}

// Ops returns the staged operations in the order they were added.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}
