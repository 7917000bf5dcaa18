package core

import "testing"

func TestDigestIdempotentForStrings(t *testing.T) {
	d1, err := Digest("hello")
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d1 != "hello" {
		t.Fatalf("Digest of a bare string must be itself, got %q", d1)
	}
}

func TestDigestMatchesDocumentedLiteral(t *testing.T) {
	// original_source/json-digest/src/digest.rs's own test fixture:
	// digesting canonical {"a":2,"b":1} yields this exact literal. The
	// multibase self-describing prefix char ('u') is part of the hash,
	// not stripped, which is why "cj" is immediately followed by "u".
	const want = "cjumTq1s6Tn6xkXolxHj4LmAo7DAb-zoPLhEa1BvpovAFU"
	v := map[string]interface{}{"a": 2, "b": 1}
	got, err := Digest(v)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if got != want {
		t.Fatalf("expected digest %q, got %q", want, got)
	}
}

func TestDigestIsDeterministicAcrossKeyOrder(t *testing.T) {
	a := map[string]interface{}{"b": "2", "a": "1"}
	b := map[string]interface{}{"a": "1", "b": "2"}

	da, err := Digest(a)
	if err != nil {
		t.Fatalf("Digest(a): %v", err)
	}
	db, err := Digest(b)
	if err != nil {
		t.Fatalf("Digest(b): %v", err)
	}
	if da != db {
		t.Fatalf("digest must be independent of map key insertion order: %q != %q", da, db)
	}
	if !IsDigest(da) {
		t.Fatalf("digest output %q does not look like a digest", da)
	}
}

func TestDigestRejectsNonCanonicalKey(t *testing.T) {
	// "é" (precomposed é) is not NFKD-normalized; NFKD decomposes it into
	// "e" + combining acute accent.
	v := map[string]interface{}{"é": "value"}
	if _, err := Digest(v); err == nil {
		t.Fatalf("expected a non-canonical-key error, got nil")
	}
}

func TestMaskDigestMatchesFullDigest(t *testing.T) {
	doc := map[string]interface{}{
		"name":   "alice",
		"secret": map[string]interface{}{"ssn": "123-45-6789"},
		"nested": map[string]interface{}{"a": "1", "b": "2"},
	}
	full, err := Digest(doc)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	masked, err := Mask(doc, ".name")
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	maskedDigest, err := Digest(masked)
	if err != nil {
		t.Fatalf("Digest(masked): %v", err)
	}
	if maskedDigest != full {
		t.Fatalf("digest(mask(v, p)) must equal digest(v): %q != %q", maskedDigest, full)
	}
}

func TestMaskRevealsOnlyKeptPaths(t *testing.T) {
	doc := map[string]interface{}{
		"name":   "alice",
		"secret": map[string]interface{}{"ssn": "123-45-6789"},
	}
	masked, err := Mask(doc, ".name")
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	m, ok := masked.(map[string]interface{})
	if !ok {
		t.Fatalf("expected masked result to be an object, got %T", masked)
	}
	if m["name"] != "alice" {
		t.Fatalf("kept field must be revealed in full, got %v", m["name"])
	}
	if hidden, ok := m["secret"].(string); !ok || !IsDigest(hidden) {
		t.Fatalf("unmatched composite field must be replaced by its digest, got %v", m["secret"])
	}
}
