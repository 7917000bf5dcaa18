package core

// This file defines the multi-cipher key abstraction the rest of core
// consumes but never implements. A concrete suite-tagged implementation
// lives in package keyvault; core only depends on these interfaces, per
// original_source/keyvault/src/multicipher/pk.rs's MPublicKey/MPrivateKey/
// MSignature/MKeyId (one enum per concept, tagged by CipherSuite) — Go has
// no tagged-union enums, so the suite tag is carried by the concrete
// keyvault type instead, and core only ever sees the interface.

// CipherSuite identifies which asymmetric cryptosystem a key or signature
// belongs to.
type CipherSuite byte

const (
	SuiteEd25519 CipherSuite = 'e'
	SuiteSecp256k1 CipherSuite = 's'
)

func (s CipherSuite) String() string {
	switch s {
	case SuiteEd25519:
		return "ed25519"
	case SuiteSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

// KeyId identifies a public key (directly, or via a derived scheme) without
// revealing the key material itself. Implementations must support stable
// equality and a textual encoding suitable for use as a DID document
// authentication reference.
type KeyId interface {
	Suite() CipherSuite
	String() string
	Equal(other KeyId) bool
}

// PublicKey verifies signatures produced by the matching PrivateKey and
// derives the KeyId that documents should reference it by.
//
// Grounded on original_source/keyvault/src/multicipher/pk.rs's
// PublicKey<MultiCipher> impl for MPublicKey (key_id/validate_id/verify).
type PublicKey interface {
	Suite() CipherSuite
	KeyId() KeyId
	ValidatesId(id KeyId) bool
	Verify(data []byte, sig Signature) bool
	String() string
	Equal(other PublicKey) bool
}

// PrivateKey signs data and exposes its PublicKey. core never stores or
// transmits a PrivateKey; it is strictly a keyvault/caller-side concept.
type PrivateKey interface {
	Suite() CipherSuite
	PublicKey() PublicKey
	Sign(data []byte) (Signature, error)
}

// Signature is an opaque, suite-tagged signature value.
type Signature interface {
	Suite() CipherSuite
	String() string
	Bytes() []byte
}

// KeyStore is the capability surface core relies on to resolve an
// authentication reference to something it can Verify against, without ever
// handling private key material. A concrete implementation is provided by
// package keyvault.
type KeyStore interface {
	Resolve(id KeyId) (PublicKey, bool)
	// ParsePublicKey decodes a public key's textual form (suite-tagged,
	// e.g. "p" + suite char + multibase base58btc payload) back into a
	// PublicKey.
	ParsePublicKey(s string) (PublicKey, error)
	// ParseKeyId decodes a key id's textual form back into a KeyId.
	ParseKeyId(s string) (KeyId, error)
}
