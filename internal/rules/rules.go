// Package rules implements the engine's side of the rules gate: a thin
// interface the engine consults before every read, write, and delete,
// plus a static evaluator covering the allow-all/deny-all/path-prefix
// cases the embedded engine needs without a full rules-language
// interpreter.
//
// A richer Firestore-syntax evaluator (parser, AST, condition
// expressions) is an external collaborator per the core's scope; this
// package only defines the seam it plugs into and installs a signature
// check grounded on the original implementation's validate_rules,
// generalized from its "service cloud.firestore" literal to a
// "service firelocal;" signature line.
package rules

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Operation names one of the three checks the engine gates.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
)

// Decision is the outcome of evaluating a rule for one operation.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// AuthContext carries the caller identity the evaluator may condition
// on. The embedded engine has no notion of sessions or tokens; callers
// populate this from whatever auth layer sits above the engine.
type AuthContext struct {
	UID    string
	Claims map[string]string
}

// Evaluator is the interface the engine consults before every
// operation. payload is nil for read and delete.
type Evaluator interface {
	Evaluate(op Operation, path string, payload []byte, auth AuthContext) Decision
}

// DefaultMode selects the behavior when no rule set has been installed.
type DefaultMode int

const (
	// DenyAll rejects every operation until rules are loaded. The
	// production default.
	DenyAll DefaultMode = iota
	// AllowAll permits every operation until rules are loaded. Intended
	// for local development only.
	AllowAll
)

// StaticEvaluator is a rules evaluator covering allow-all, deny-all, and
// a list of path-prefix rules, without a condition-expression
// interpreter. It satisfies Evaluator and is the default gate an Engine
// opens with.
type StaticEvaluator struct {
	mode  DefaultMode
	rules []prefixRule
}

type prefixRule struct {
	prefix string
	ops    map[Operation]bool
}

// NewStaticEvaluator returns an evaluator that falls back to mode when
// no path-prefix rule matches.
func NewStaticEvaluator(mode DefaultMode) *StaticEvaluator {
	return &StaticEvaluator{mode: mode}
}

// AllowPrefix grants every operation in ops to any path with the given
// prefix, taking precedence over the default mode. Rules only grant, so
// with overlapping prefixes an operation is allowed if any matching rule
// grants it.
func (e *StaticEvaluator) AllowPrefix(prefix string, ops ...Operation) {
	set := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		set[op] = true
	}
	e.rules = append(e.rules, prefixRule{prefix: prefix, ops: set})
}

// Evaluate implements Evaluator.
func (e *StaticEvaluator) Evaluate(op Operation, path string, _ []byte, _ AuthContext) Decision {
	for i := len(e.rules) - 1; i >= 0; i-- {
		r := e.rules[i]
		if strings.HasPrefix(path, r.prefix) && r.ops[op] {
			return Allow
		}
	}
	switch e.mode {
	case AllowAll:
		return Allow
	default:
		return Deny
	}
}

// signature is the marker every installed rules document must contain,
// generalized from the original's literal "service cloud.firestore"
// check to firelocal's own service name.
const signature = "service firelocal;"

// MaxDocumentBytes is the maximum size of a rules document accepted by
// Validate.
const MaxDocumentBytes = 1024 * 1024

var (
	// ErrEmpty is returned for an empty rules document.
	ErrEmpty = errors.New("rules: document is empty")
	// ErrTooLarge is returned when a rules document exceeds MaxDocumentBytes.
	ErrTooLarge = errors.New("rules: document exceeds maximum size")
	// ErrMissingSignature is returned when a rules document lacks the
	// required "service firelocal;" line.
	ErrMissingSignature = errors.New("rules: document missing 'service firelocal;' signature")
)

// Validate checks a rules document's signature and size. It does not
// require rule-line syntax to be well-formed — that's Load's job — since
// a caller may just want to confirm a document is installable.
func Validate(text []byte) error {
	if len(text) == 0 {
		return ErrEmpty
	}
	if len(text) > MaxDocumentBytes {
		return errors.Wrapf(ErrTooLarge, "%d bytes", len(text))
	}
	if !strings.Contains(string(text), signature) {
		return ErrMissingSignature
	}
	return nil
}

// ruleLine matches "allow read, write, delete: <path-prefix>;", the small
// grammar StaticEvaluator understands in lieu of the full Firestore-syntax
// rules language (an external collaborator per the core's scope).
var ruleLine = regexp.MustCompile(`(?m)^\s*allow\s+([a-z,\s]+?)\s*:\s*(\S+?)\s*;\s*$`)

// Load validates text's signature, then parses every "allow ops: prefix;"
// line into a StaticEvaluator falling back to defaultMode when no line
// matches. Lines that aren't rule lines (including the signature line
// itself and any surrounding match/service syntax) are ignored rather
// than rejected, since this package only understands its own small
// subset of the rules grammar.
func Load(text []byte, defaultMode DefaultMode) (*StaticEvaluator, error) {
	if err := Validate(text); err != nil {
		return nil, err
	}
	eval := NewStaticEvaluator(defaultMode)
	for _, m := range ruleLine.FindAllStringSubmatch(string(text), -1) {
		var ops []Operation
		for _, raw := range strings.Split(m[1], ",") {
			switch Operation(strings.TrimSpace(raw)) {
			case OpRead:
				ops = append(ops, OpRead)
			case OpWrite:
				ops = append(ops, OpWrite)
			case OpDelete:
				ops = append(ops, OpDelete)
			default:
				return nil, errors.Errorf("rules: unknown operation %q", raw)
			}
		}
		eval.AllowPrefix(m[2], ops...)
	}
	return eval, nil
}
