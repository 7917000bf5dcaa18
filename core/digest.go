package core

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/multiformats/go-multibase"
	"golang.org/x/crypto/sha3"
	"golang.org/x/text/unicode/norm"
)

// digestHashPrefix labels a multibase-encoded SHA3-256 content hash of a
// canonical JSON value. 'c' stands for content hash, 'j' for "of a JSON
// value". Grounded on original_source/json-digest/src/digest.rs hash_str.
const digestHashPrefix = "cj"

// normalizeUnicode returns the NFKD normalized form of s.
func normalizeUnicode(s string) string {
	return norm.NFKD.String(s)
}

// hashBytes returns the multibase(base64url, sha3_256(content)) string used
// throughout canonical()/mask(). The multibase self-describing prefix
// character ('u' for base64url) is part of the encoding and is kept, not
// stripped — original_source/json-digest/src/digest.rs's default_hasher
// calls multibase::encode directly with no stripping, and its own test
// fixture asserts the literal hash of canonical `{"a":2,"b":1}` as
// "cjumTq1s6Tn6xkXolxHj4LmAo7DAb-zoPLhEa1BvpovAFU" — the 'u' right after
// "cj" is that kept prefix character.
func hashBytes(content []byte) (string, error) {
	sum := sha3.Sum256(content)
	encoded, err := multibase.Encode(multibase.Base64url, sum[:])
	if err != nil {
		return "", malformedf("multibase encode: %v", err)
	}
	return encoded, nil
}

// hashString prefixes the multibase hash of content's UTF-8 bytes with "cj".
func hashString(content string) (string, error) {
	h, err := hashBytes([]byte(content))
	if err != nil {
		return "", err
	}
	return digestHashPrefix + h, nil
}

// IsDigest reports whether s already has the "cj" content-hash shape, used to
// implement the idempotence law digest(digest(v)) = digest(v) for strings.
func IsDigest(s string) bool {
	return strings.HasPrefix(s, digestHashPrefix) && len(s) > len(digestHashPrefix)
}

// Canonical renders v (decoded from JSON, so map[string]interface{}, []interface{},
// string, json.Number, bool or nil) in canonical JSON form: minimal
// whitespace, NFKD-normalized strings, object keys sorted by byte-compared
// UTF-8 after NFKD normalization. Returns ErrMalformed wrapping
// "NonCanonicalKey" semantics if any object key is not already in NFKD form.
//
// Grounded on original_source/json-digest/src/digest.rs canonical_json.
func Canonical(v interface{}) (string, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil

	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if k != normalizeUnicode(k) {
				return malformedf("NonCanonicalKey: object key %q is not NFKD-normalized", k)
			}
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, err := writeCanonicalScalar(k)
			if err != nil {
				return err
			}
			b.WriteString(keyJSON)
			b.WriteByte(':')
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil

	default:
		s, err := writeCanonicalScalar(val)
		if err != nil {
			return err
		}
		b.WriteString(s)
		return nil
	}
}

// writeCanonicalScalar renders a non-composite JSON value (string, number,
// bool, nil) in minimal form, NFKD-normalizing string output.
func writeCanonicalScalar(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", malformedf("cannot marshal scalar %v: %v", v, err)
	}
	return normalizeUnicode(string(raw)), nil
}

// Digest returns the full content digest of v. For a bare string value the
// digest is the string itself (idempotence law: digest(digest(s)) =
// digest(s)). For objects and arrays, digest(v) is defined as mask(v, "")
// with an empty keep set: every composite descendant is hashed before its
// parent is hashed, so digest is a Merkle-style recursive hash, not a flat
// hash of the whole canonical document. This is what makes the selective
// mask law digest(mask(v, p)) = digest(v) hold for every keep pattern —
// verified against original_source/json-digest/src/digest.rs's
// test_selective_digesting, where digesting a partially revealed object
// reproduces the exact same root hash as digesting it fully masked.
func Digest(v interface{}) (string, error) {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return MaskDigest(v, "")
	case string:
		return v.(string), nil
	default:
		return "", malformedf("digest is only defined for objects, arrays and strings")
	}
}

// DigestJSON parses raw JSON and returns its full digest. A convenience
// wrapper around Digest for callers holding serialized JSON rather than a
// decoded value.
func DigestJSON(raw []byte) (string, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		return "", err
	}
	return Digest(v)
}

// decodeJSON decodes raw into the dynamic value representation used
// throughout core: map[string]interface{}, []interface{}, string,
// json.Number, bool or nil. UseNumber avoids float64 rounding of integer
// block heights and prices embedded in arbitrary domain data.
func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, malformedf("invalid JSON: %v", err)
	}
	return v, nil
}
