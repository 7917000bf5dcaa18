package core

import "strings"

// PrincipalKind distinguishes the three shapes a Principal can take.
//
// Grounded on original_source/coeus-core/src/principal.rs's Principal enum
// (System/PublicKey/Did, untagged in its own string serialization).
type PrincipalKind int

const (
	PrincipalSystem PrincipalKind = iota
	PrincipalPublicKey
	PrincipalDid
)

const systemPrincipalRepr = "system"

// Principal identifies who owns, registered, or authorized something:
// the chain itself (System), a bare public key, or a DID. Equality and the
// hash key used by maps are both derived from the canonical string form
// (String), matching the Rust Hash impl that delegates to Display.
type Principal struct {
	kind PrincipalKind
	pk   PublicKey
	did  Did
}

// SystemPrincipal is the singleton chain-owned principal. It can never be
// impersonated, since it never corresponds to any signing key.
func SystemPrincipal() Principal { return Principal{kind: PrincipalSystem} }

// NewPublicKeyPrincipal wraps a public key as a principal.
func NewPublicKeyPrincipal(pk PublicKey) Principal {
	return Principal{kind: PrincipalPublicKey, pk: pk}
}

// NewDidPrincipal wraps a DID as a principal.
func NewDidPrincipal(did Did) Principal {
	return Principal{kind: PrincipalDid, did: did}
}

func (p Principal) Kind() PrincipalKind { return p.kind }

func (p Principal) IsSystem() bool { return p.kind == PrincipalSystem }

// PublicKey returns the wrapped key and true iff Kind() == PrincipalPublicKey.
func (p Principal) PublicKey() (PublicKey, bool) {
	if p.kind != PrincipalPublicKey {
		return nil, false
	}
	return p.pk, true
}

// Did returns the wrapped DID and true iff Kind() == PrincipalDid.
func (p Principal) Did() (Did, bool) {
	if p.kind != PrincipalDid {
		return Did{}, false
	}
	return p.did, true
}

// String is the canonical textual form used for equality, map keys and JSON
// serialization: "system", a key's own textual encoding, or a DID string.
func (p Principal) String() string {
	switch p.kind {
	case PrincipalSystem:
		return systemPrincipalRepr
	case PrincipalPublicKey:
		return p.pk.String()
	case PrincipalDid:
		return p.did.String()
	default:
		return ""
	}
}

// Equal compares principals by canonical string form, matching the Rust
// Principal's derived PartialEq/Hash (both keyed off Display).
func (p Principal) Equal(other Principal) bool {
	return p.String() == other.String()
}

// ValidateImpersonation reports whether pk is authorized to act as p. A
// System principal can never be impersonated — it never corresponds to any
// signing key. A PublicKey principal requires an exact key match. A Did
// principal always fails here, since Principal itself has no access to DID
// document state; no caller in this package checks a Did principal against
// its DidDocument instead.
//
// Grounded on original_source/coeus-core/src/principal.rs's
// validate_impersonation.
func (p Principal) ValidateImpersonation(pk PublicKey) error {
	switch p.kind {
	case PrincipalSystem:
		return unauthorizedf("system principal cannot be impersonated")
	case PrincipalPublicKey:
		if !p.pk.Equal(pk) {
			return unauthorizedf("public key principal %s cannot be impersonated by %s", p.pk, pk)
		}
		return nil
	case PrincipalDid:
		return unauthorizedf("DID principal impersonation must be validated against its DidDocument")
	default:
		return unauthorizedf("unknown principal kind")
	}
}

// ParsePrincipal parses the textual form produced by Principal.String.
// "system" parses as SystemPrincipal; anything starting with
// "did:morpheus:" parses as a DID; anything else is parsed as a public key
// via store.
func ParsePrincipal(s string, store KeyStore) (Principal, error) {
	if s == systemPrincipalRepr {
		return SystemPrincipal(), nil
	}
	if strings.HasPrefix(s, didPrefix) {
		did, err := ParseDid(s)
		if err != nil {
			return Principal{}, err
		}
		return NewDidPrincipal(did), nil
	}
	pk, err := store.ParsePublicKey(s)
	if err != nil {
		return Principal{}, err
	}
	return NewPublicKeyPrincipal(pk), nil
}
