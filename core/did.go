package core

import "strings"

// didPrefix starts every absolute DID string. Grounded on
// original_source/morpheus-core/src/crypto/hd/did.rs test fixtures, e.g.
// "did:morpheus:ezbeWGSY2dqcUBqT8K7R14xr".
const didPrefix = "did:morpheus:"

// did:morpheus:<suffix> is always a KeyId's own textual encoding with its
// one-character key-id type prefix stripped off (a KeyId renders as e.g.
// "iez25N5WZ1Q6TQpgpyYgiu9gTX", its owning DID as
// "did:morpheus:ez25N5WZ1Q6TQpgpyYgiu9gTX").
const keyIdTextPrefix = "i"

// Did identifies a subject by the key id of the key that originally
// registered it: the "default key". Every DID therefore implicitly owns
// one key entry from birth, with no explicit registration transaction.
type Did struct {
	suffix string
}

// NewDidFromKeyId derives the DID whose default key is id.
func NewDidFromKeyId(id KeyId) Did {
	s := id.String()
	return Did{suffix: strings.TrimPrefix(s, keyIdTextPrefix)}
}

// ParseDid parses an absolute "did:morpheus:..." string.
func ParseDid(s string) (Did, error) {
	if !strings.HasPrefix(s, didPrefix) {
		return Did{}, malformedf("DID must start with %q, got %q", didPrefix, s)
	}
	suffix := strings.TrimPrefix(s, didPrefix)
	if suffix == "" {
		return Did{}, malformedf("DID suffix must not be empty")
	}
	return Did{suffix: suffix}, nil
}

func (d Did) String() string { return didPrefix + d.suffix }

func (d Did) Equal(other Did) bool { return d.suffix == other.suffix }

// DefaultKeyId returns the KeyId of the key this DID was implicitly
// registered with, by re-attaching the KeyId type prefix to the DID's
// suffix and parsing it through store.
func (d Did) DefaultKeyId(store KeyStore) (KeyId, error) {
	return store.ParseKeyId(keyIdTextPrefix + d.suffix)
}

// AuthenticationKind distinguishes the two ways a DidDocState key entry can
// reference a key: directly by KeyId, or by an embedded PublicKey (used
// when the public key itself isn't resolvable ahead of time, e.g. it was
// never seen on chain before).
type AuthenticationKind int

const (
	AuthByKeyId AuthenticationKind = iota
	AuthByPublicKey
)

// Authentication references a key either by KeyId or by embedding its
// PublicKey directly. Grounded on
// original_source/morpheus-core/src/data/auth.rs's Authentication enum
// (KeyId(MKeyId) | PublicKey(MPublicKey)).
type Authentication struct {
	kind AuthenticationKind
	id   KeyId
	pk   PublicKey
}

func NewAuthenticationByKeyId(id KeyId) Authentication {
	return Authentication{kind: AuthByKeyId, id: id}
}

func NewAuthenticationByPublicKey(pk PublicKey) Authentication {
	return Authentication{kind: AuthByPublicKey, pk: pk}
}

func (a Authentication) Kind() AuthenticationKind { return a.kind }

// Matches reports whether a candidate public key/key-id pair authenticates
// as a. When a references a bare KeyId, any public key whose derived id
// matches is accepted (ValidatesId); when a embeds a PublicKey directly, an
// exact key match is required.
func (a Authentication) Matches(pk PublicKey) bool {
	switch a.kind {
	case AuthByKeyId:
		return pk.ValidatesId(a.id)
	case AuthByPublicKey:
		return a.pk.Equal(pk)
	default:
		return false
	}
}

func (a Authentication) String() string {
	switch a.kind {
	case AuthByKeyId:
		return a.id.String()
	case AuthByPublicKey:
		return a.pk.String()
	default:
		return ""
	}
}

// Equal reports whether a and other reference the same key, whether or not
// they were each built by KeyId or by embedded PublicKey — a DID's implicit
// default key is registered AuthByKeyId, but every signer presents itself as
// AuthByPublicKey (see core/morpheus.go's doAttempt), so same-kind string
// comparison alone would make the default key permanently unable to satisfy
// any right check.
func (a Authentication) Equal(other Authentication) bool {
	if a.kind == other.kind {
		return a.String() == other.String()
	}
	keyIdAuth, pkAuth := a, other
	if a.kind != AuthByKeyId {
		keyIdAuth, pkAuth = other, a
	}
	if keyIdAuth.kind != AuthByKeyId || pkAuth.kind != AuthByPublicKey {
		return false
	}
	return pkAuth.pk.ValidatesId(keyIdAuth.id)
}
