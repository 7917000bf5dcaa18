package core

import (
	"sort"
	"strings"
)

// splitAlternatives splits a keepPaths pattern on top-level commas, trimming
// whitespace around each alternative. An empty pattern yields no
// alternatives (mask everything).
//
// Grounded on original_source/morpheus-core/src/util/json_path.rs
// split_alternatives.
func splitAlternatives(pattern string) []string {
	if strings.TrimSpace(pattern) == "" {
		return nil
	}
	parts := strings.Split(pattern, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// splitHeadTail splits a single ".a.b.c" path into its first edge and the
// remaining tail (nil if none). Every path must start with '.'.
//
// Grounded on original_source/morpheus-core/src/util/json_path.rs
// split_head_tail.
func splitHeadTail(path string) (head string, tail string, hasTail bool, err error) {
	if !strings.HasPrefix(path, ".") {
		return "", "", false, malformedf("path must start with '.' but it's %q", path)
	}
	rest := path[1:]
	if idx := strings.IndexByte(rest, '.'); idx >= 0 {
		return rest[:idx], rest[idx:], true, nil
	}
	return rest, "", false, nil
}

// Mask selectively replaces subtrees of v not matched by keepPaths with their
// content hash, leaving matched subtrees intact. keepPaths is a comma
// separated set of "." prefixed JSON paths (see splitAlternatives); an empty
// pattern masks the entire value.
//
// Grounded on original_source/json-digest/src/digest.rs mask_json_subtree.
func Mask(v interface{}, keepPaths string) (interface{}, error) {
	return maskValue(v, splitAlternatives(keepPaths))
}

// MaskDigest behaves like Mask but renders the result as a string: the
// "cj..." hash string when the whole value is masked, or the canonical JSON
// text of the partially revealed object when keepPaths keeps part of it,
// matching original_source/json-digest/src/digest.rs selective_digest_json.
func MaskDigest(v interface{}, keepPaths string) (string, error) {
	masked, err := Mask(v, keepPaths)
	if err != nil {
		return "", err
	}
	switch m := masked.(type) {
	case string:
		return m, nil
	case map[string]interface{}:
		canon, err := Canonical(m)
		if err != nil {
			return "", err
		}
		return canon, nil
	default:
		return "", malformedf("mask digest is only defined for composite or string values")
	}
}

func maskValue(v interface{}, keepPaths []string) (interface{}, error) {
	switch val := v.(type) {
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			masked, err := maskValue(item, nil)
			if err != nil {
				return nil, err
			}
			s, err := writeCanonicalScalarOrString(masked)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		joined := "[" + strings.Join(parts, ",") + "]"
		h, err := hashString(joined)
		if err != nil {
			return nil, err
		}
		return h, nil

	case map[string]interface{}:
		headTails := make(map[string][]string)
		for _, p := range keepPaths {
			head, tail, hasTail, err := splitHeadTail(p)
			if err != nil {
				return nil, err
			}
			if hasTail {
				headTails[head] = append(headTails[head], tail)
			} else if _, ok := headTails[head]; !ok {
				headTails[head] = nil
			}
		}

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		anyMatched := false
		kept := make(map[string]interface{}, len(val))
		entries := make([]string, 0, len(val))
		for _, k := range keys {
			if k != normalizeUnicode(k) {
				return nil, malformedf("NonCanonicalKey: object key %q is not NFKD-normalized", k)
			}
			value := val[k]
			tails, matched := headTails[k]
			var resultVal interface{}
			var err error
			if matched {
				anyMatched = true
				if len(tails) == 0 {
					resultVal = value
				} else {
					resultVal, err = maskValue(value, tails)
				}
			} else {
				resultVal, err = maskValue(value, nil)
			}
			if err != nil {
				return nil, err
			}
			kept[k] = resultVal

			keyJSON, err := writeCanonicalScalar(k)
			if err != nil {
				return nil, err
			}
			valJSON, err := writeCanonicalScalarOrString(resultVal)
			if err != nil {
				return nil, err
			}
			entries = append(entries, keyJSON+":"+valJSON)
		}

		if !anyMatched {
			flattened := "{" + strings.Join(entries, ",") + "}"
			return hashString(flattened)
		}
		return kept, nil

	default:
		return val, nil
	}
}

// writeCanonicalScalarOrString renders a masked sub-result: if it is already
// a hash/kept string, it is a JSON string literal; if it is a (partially)
// kept object, it must be canonicalized recursively so the joined
// representation stays well formed.
func writeCanonicalScalarOrString(v interface{}) (string, error) {
	if m, ok := v.(map[string]interface{}); ok {
		return Canonical(m)
	}
	return writeCanonicalScalar(v)
}
