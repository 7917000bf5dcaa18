package keyvault

import (
	stded25519 "crypto/ed25519"

	"ssichain/core"
)

// EdKeyId is the Ed25519 concrete KeyId, wrapping the fixed-size hash of its
// owning public key. Grounded on
// original_source/keyvault/src/multicipher/id.rs's MKeyId::Ed25519 variant.
type EdKeyId struct {
	hash [keyIdHashSize]byte
}

func (id EdKeyId) Suite() core.CipherSuite { return core.SuiteEd25519 }

func (id EdKeyId) String() string {
	return encodeTagged(keyIdPrefix, core.SuiteEd25519, id.hash[:])
}

func (id EdKeyId) Equal(other core.KeyId) bool {
	o, ok := other.(EdKeyId)
	return ok && id.hash == o.hash
}

// ParseEdKeyId decodes the textual form produced by EdKeyId.String.
func ParseEdKeyId(s string) (EdKeyId, error) {
	suite, payload, err := decodeTagged(keyIdPrefix, s)
	if err != nil {
		return EdKeyId{}, err
	}
	if suite != core.SuiteEd25519 || len(payload) != keyIdHashSize {
		return EdKeyId{}, core.ErrMalformed
	}
	var id EdKeyId
	copy(id.hash[:], payload)
	return id, nil
}

// EdPublicKey is the Ed25519 concrete PublicKey. Grounded on
// original_source/keyvault/src/multicipher/pk.rs's MPublicKey::Ed25519
// variant and its Display/FromStr wire form (prefix + suite char +
// multibase(base58btc, raw 32-byte key)).
type EdPublicKey struct {
	pk stded25519.PublicKey
}

func NewEdPublicKeyFromBytes(b []byte) (EdPublicKey, error) {
	if len(b) != stded25519.PublicKeySize {
		return EdPublicKey{}, core.ErrMalformed
	}
	pk := make(stded25519.PublicKey, stded25519.PublicKeySize)
	copy(pk, b)
	return EdPublicKey{pk: pk}, nil
}

func (k EdPublicKey) Suite() core.CipherSuite { return core.SuiteEd25519 }

func (k EdPublicKey) KeyId() core.KeyId {
	var id EdKeyId
	copy(id.hash[:], deriveKeyIdHash(k.pk))
	return id
}

func (k EdPublicKey) ValidatesId(id core.KeyId) bool { return k.KeyId().Equal(id) }

func (k EdPublicKey) Verify(data []byte, sig core.Signature) bool {
	s, ok := sig.(EdSignature)
	if !ok {
		return false
	}
	return stded25519.Verify(k.pk, data, s.sig[:])
}

func (k EdPublicKey) String() string {
	return encodeTagged(publicKeyPrefix, core.SuiteEd25519, k.pk)
}

func (k EdPublicKey) Equal(other core.PublicKey) bool {
	o, ok := other.(EdPublicKey)
	return ok && string(k.pk) == string(o.pk)
}

// ParseEdPublicKey decodes the textual form produced by EdPublicKey.String.
func ParseEdPublicKey(s string) (EdPublicKey, error) {
	suite, payload, err := decodeTagged(publicKeyPrefix, s)
	if err != nil {
		return EdPublicKey{}, err
	}
	if suite != core.SuiteEd25519 {
		return EdPublicKey{}, core.ErrMalformed
	}
	return NewEdPublicKeyFromBytes(payload)
}

// EdSignature is the Ed25519 concrete Signature.
type EdSignature struct {
	sig [stded25519.SignatureSize]byte
}

func (s EdSignature) Suite() core.CipherSuite { return core.SuiteEd25519 }

func (s EdSignature) String() string {
	return encodeTagged(signaturePrefix, core.SuiteEd25519, s.sig[:])
}

func (s EdSignature) Bytes() []byte { return append([]byte(nil), s.sig[:]...) }

// EdPrivateKey is the Ed25519 concrete PrivateKey. Never serialized or
// handed to core; callers only ever expose it to the keyvault Store that
// derived it.
type EdPrivateKey struct {
	sk stded25519.PrivateKey
}

func NewEdPrivateKeyFromSeed(seed []byte) EdPrivateKey {
	return EdPrivateKey{sk: stded25519.NewKeyFromSeed(seed)}
}

func (k EdPrivateKey) Suite() core.CipherSuite { return core.SuiteEd25519 }

func (k EdPrivateKey) PublicKey() core.PublicKey {
	pub := k.sk.Public().(stded25519.PublicKey)
	return EdPublicKey{pk: pub}
}

func (k EdPrivateKey) Sign(data []byte) (core.Signature, error) {
	var sig EdSignature
	copy(sig.sig[:], stded25519.Sign(k.sk, data))
	return sig, nil
}
