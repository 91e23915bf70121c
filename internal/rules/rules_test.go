package rules

import "testing"

func TestStaticEvaluatorDenyAllDefault(t *testing.T) {
	e := NewStaticEvaluator(DenyAll)
	if got := e.Evaluate(OpRead, "users/alice", nil, AuthContext{}); got != Deny {
		t.Fatalf("got %v, want Deny", got)
	}
}

func TestStaticEvaluatorAllowAllDefault(t *testing.T) {
	e := NewStaticEvaluator(AllowAll)
	if got := e.Evaluate(OpWrite, "users/alice", []byte("{}"), AuthContext{}); got != Allow {
		t.Fatalf("got %v, want Allow", got)
	}
}

func TestStaticEvaluatorPrefixOverridesDefault(t *testing.T) {
	e := NewStaticEvaluator(DenyAll)
	e.AllowPrefix("public/", OpRead, OpWrite)

	if got := e.Evaluate(OpRead, "public/announcement", nil, AuthContext{}); got != Allow {
		t.Fatalf("got %v, want Allow for matching prefix", got)
	}
	if got := e.Evaluate(OpDelete, "public/announcement", nil, AuthContext{}); got != Deny {
		t.Fatalf("got %v, want Deny for unlisted op on matching prefix", got)
	}
	if got := e.Evaluate(OpRead, "private/secret", nil, AuthContext{}); got != Deny {
		t.Fatalf("got %v, want Deny for non-matching prefix", got)
	}
}

func TestStaticEvaluatorOverlappingPrefixesCombine(t *testing.T) {
	e := NewStaticEvaluator(DenyAll)
	e.AllowPrefix("users/", OpRead)
	e.AllowPrefix("users/admin", OpDelete)

	if got := e.Evaluate(OpDelete, "users/admin/1", nil, AuthContext{}); got != Allow {
		t.Fatalf("got %v, want Allow from more specific prefix", got)
	}
	if got := e.Evaluate(OpRead, "users/admin/1", nil, AuthContext{}); got != Allow {
		t.Fatalf("got %v, want Allow from earlier broader prefix", got)
	}
}

func TestValidateAcceptsSignedDocument(t *testing.T) {
	doc := []byte(`service firelocal; match /{doc=**} { allow read, write: if true; }`)
	if err := Validate(doc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	if err := Validate(nil); err != ErrEmpty {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
}

func TestValidateRejectsMissingSignature(t *testing.T) {
	if err := Validate([]byte("not a rules document")); err != ErrMissingSignature {
		t.Fatalf("got %v, want ErrMissingSignature", err)
	}
}

func TestLoadParsesAllowLines(t *testing.T) {
	doc := []byte(`service firelocal;
allow read, write: public/;
allow delete: public/drafts/;
`)
	e, err := Load(doc, DenyAll)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := e.Evaluate(OpWrite, "public/post1", nil, AuthContext{}); got != Allow {
		t.Fatalf("got %v, want Allow", got)
	}
	if got := e.Evaluate(OpDelete, "private/x", nil, AuthContext{}); got != Deny {
		t.Fatalf("got %v, want Deny", got)
	}
	if got := e.Evaluate(OpDelete, "public/drafts/1", nil, AuthContext{}); got != Allow {
		t.Fatalf("got %v, want Allow", got)
	}
}

func TestLoadRejectsUnknownOperation(t *testing.T) {
	doc := []byte("service firelocal;\nallow fly: public/;\n")
	if _, err := Load(doc, DenyAll); err == nil {
		t.Fatal("expected error for unknown operation in rule line")
	}
}

func TestValidateRejectsOversized(t *testing.T) {
	big := make([]byte, MaxDocumentBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	if err := Validate(big); err == nil {
		t.Fatal("expected error for oversized document")
	}
}
