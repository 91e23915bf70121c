// Package fieldvalue rewrites a put's payload to materialize structural
// field-value operators (serverTimestamp, increment, arrayUnion,
// arrayRemove, fieldDelete) before the document reaches durable storage.
//
// The core engine keeps a document's payload an opaque byte string end
// to end; JSON structure is only ever inspected here, at the write-path
// boundary, and in validators that need it. A sentinel is represented
// internally as the tagged Op type rather than passed around as the raw
// marker map, mirroring the original implementation's FieldValue enum.
package fieldvalue

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// sentinelTag is the key that marks a field's value as a field-value
// operator rather than literal JSON.
const sentinelTag = "_firelocal_field_value"

// Kind names one of the five structural operators.
type Kind string

const (
	ServerTimestamp Kind = "serverTimestamp"
	Increment       Kind = "increment"
	ArrayUnion      Kind = "arrayUnion"
	ArrayRemove     Kind = "arrayRemove"
	FieldDelete     Kind = "fieldDelete"
)

// Op is a parsed field-value sentinel: a Kind plus its argument, if any.
type Op struct {
	Kind Kind
	Arg  json.RawMessage
}

var errNotSentinel = errors.New("fieldvalue: not a sentinel")

// parseOp recognizes raw as a {"_firelocal_field_value": <op>, "value"?:
// <arg>} sentinel object. It returns errNotSentinel (unwrapped) for any
// value that isn't a sentinel, which callers treat as "leave as-is".
func parseOp(raw json.RawMessage) (Op, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Op{}, errNotSentinel
	}
	tagRaw, ok := probe[sentinelTag]
	if !ok {
		return Op{}, errNotSentinel
	}
	var tag string
	if err := json.Unmarshal(tagRaw, &tag); err != nil {
		return Op{}, errors.Wrap(err, "fieldvalue: sentinel tag must be a string")
	}
	kind := Kind(tag)
	switch kind {
	case ServerTimestamp, Increment, ArrayUnion, ArrayRemove, FieldDelete:
	default:
		return Op{}, errors.Errorf("fieldvalue: unknown operator %q", tag)
	}
	return Op{Kind: kind, Arg: probe["value"]}, nil
}

// Rewrite applies field-value operators found at the top level of
// payload, consulting existing for each affected field's pre-image.
// existing may be nil, treated as an empty object. now is the commit
// timestamp used for serverTimestamp. Rewrite returns payload unchanged
// (same bytes) if it doesn't parse as a JSON object, or if it parses but
// contains no sentinel at the top level.
func Rewrite(payload []byte, existing []byte, now time.Time) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload, nil
	}

	var pre map[string]json.RawMessage
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &pre); err != nil {
			pre = nil
		}
	}

	hasSentinel := false
	for field, v := range doc {
		_, err := parseOp(v)
		if err == nil {
			hasSentinel = true
			continue
		}
		if err != errNotSentinel {
			return nil, errors.Wrapf(err, "fieldvalue: field %q", field)
		}
	}
	if !hasSentinel {
		return payload, nil
	}

	out := make(map[string]json.RawMessage, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	for field, raw := range doc {
		op, err := parseOp(raw)
		if err != nil {
			continue
		}
		var preVal json.RawMessage
		if pre != nil {
			preVal = pre[field]
		}
		resolved, remove, err := apply(op, preVal, now)
		if err != nil {
			return nil, errors.Wrapf(err, "fieldvalue: field %q", field)
		}
		if remove {
			delete(out, field)
			continue
		}
		out[field] = resolved
	}

	return json.Marshal(out)
}

func apply(op Op, preVal json.RawMessage, now time.Time) (json.RawMessage, bool, error) {
	switch op.Kind {
	case ServerTimestamp:
		return json.RawMessage(numberLiteral(float64(now.UnixMilli()))), false, nil
	case Increment:
		return applyIncrement(op.Arg, preVal)
	case ArrayUnion:
		return applyArrayUnion(op.Arg, preVal)
	case ArrayRemove:
		return applyArrayRemove(op.Arg, preVal)
	case FieldDelete:
		return nil, true, nil
	default:
		return nil, false, errors.Errorf("fieldvalue: unhandled operator %q", op.Kind)
	}
}

func applyIncrement(arg json.RawMessage, preVal json.RawMessage) (json.RawMessage, bool, error) {
	var n float64
	if err := json.Unmarshal(arg, &n); err != nil {
		return nil, false, errors.Wrap(err, "increment: argument must be numeric")
	}
	var existing float64
	if len(preVal) > 0 {
		if err := json.Unmarshal(preVal, &existing); err != nil {
			existing = 0
		}
	}
	return json.RawMessage(numberLiteral(existing + n)), false, nil
}

func applyArrayUnion(arg json.RawMessage, preVal json.RawMessage) (json.RawMessage, bool, error) {
	var xs []json.RawMessage
	if err := json.Unmarshal(arg, &xs); err != nil {
		return nil, false, errors.Wrap(err, "arrayUnion: argument must be an array")
	}
	var existing []json.RawMessage
	if len(preVal) > 0 {
		if err := json.Unmarshal(preVal, &existing); err != nil {
			existing = nil
		}
	}
	result := append([]json.RawMessage(nil), existing...)
	for _, x := range xs {
		if !containsJSON(result, x) {
			result = append(result, x)
		}
	}
	return marshalSlice(result)
}

func applyArrayRemove(arg json.RawMessage, preVal json.RawMessage) (json.RawMessage, bool, error) {
	var xs []json.RawMessage
	if err := json.Unmarshal(arg, &xs); err != nil {
		return nil, false, errors.Wrap(err, "arrayRemove: argument must be an array")
	}
	var existing []json.RawMessage
	if len(preVal) > 0 {
		if err := json.Unmarshal(preVal, &existing); err != nil {
			existing = nil
		}
	}
	result := make([]json.RawMessage, 0, len(existing))
	for _, e := range existing {
		if !containsJSON(xs, e) {
			result = append(result, e)
		}
	}
	return marshalSlice(result)
}

func marshalSlice(xs []json.RawMessage) (json.RawMessage, bool, error) {
	if xs == nil {
		xs = []json.RawMessage{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return nil, false, errors.Wrap(err, "marshal array result")
	}
	return json.RawMessage(b), false, nil
}

// containsJSON reports whether set contains an element structurally
// equal to target, per Go's canonical JSON unmarshal-then-compare.
func containsJSON(set []json.RawMessage, target json.RawMessage) bool {
	var tv any
	if err := json.Unmarshal(target, &tv); err != nil {
		return false
	}
	for _, s := range set {
		var sv any
		if err := json.Unmarshal(s, &sv); err != nil {
			continue
		}
		if equalJSON(sv, tv) {
			return true
		}
	}
	return false
}

func equalJSON(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !equalJSON(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalJSON(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func numberLiteral(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
