package keyvault

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"ssichain/core"
)

// hashMessage is the digest ecdsa.Sign/Verify operate over. Grounded on
// original_source/keyvault/src/secp256k1/pk.rs's verify() calling
// Secp256k1::hash_message(data) before the underlying libsecp256k1 verify —
// that hashing function's own definition wasn't in the retrieved source, so
// sha3-256 is used here for consistency with the rest of this module's
// hashing (core/digest.go).
func hashMessage(data []byte) []byte {
	sum := sha3.Sum256(data)
	return sum[:]
}

// SecpKeyId is the Secp256k1 concrete KeyId. Grounded on
// original_source/keyvault/src/multicipher/id.rs's MKeyId::Secp256k1 variant.
type SecpKeyId struct {
	hash [keyIdHashSize]byte
}

func (id SecpKeyId) Suite() core.CipherSuite { return core.SuiteSecp256k1 }

func (id SecpKeyId) String() string {
	return encodeTagged(keyIdPrefix, core.SuiteSecp256k1, id.hash[:])
}

func (id SecpKeyId) Equal(other core.KeyId) bool {
	o, ok := other.(SecpKeyId)
	return ok && id.hash == o.hash
}

// ParseSecpKeyId decodes the textual form produced by SecpKeyId.String.
func ParseSecpKeyId(s string) (SecpKeyId, error) {
	suite, payload, err := decodeTagged(keyIdPrefix, s)
	if err != nil {
		return SecpKeyId{}, err
	}
	if suite != core.SuiteSecp256k1 || len(payload) != keyIdHashSize {
		return SecpKeyId{}, core.ErrMalformed
	}
	var id SecpKeyId
	copy(id.hash[:], payload)
	return id, nil
}

// SecpPublicKey is the Secp256k1 concrete PublicKey, stored in compressed
// form. Grounded on original_source/keyvault/src/secp256k1/pk.rs.
type SecpPublicKey struct {
	pk *secp256k1.PublicKey
}

func NewSecpPublicKeyFromBytes(b []byte) (SecpPublicKey, error) {
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return SecpPublicKey{}, core.ErrMalformed
	}
	return SecpPublicKey{pk: pk}, nil
}

func (k SecpPublicKey) Suite() core.CipherSuite { return core.SuiteSecp256k1 }

func (k SecpPublicKey) KeyId() core.KeyId {
	var id SecpKeyId
	copy(id.hash[:], deriveKeyIdHash(k.pk.SerializeCompressed()))
	return id
}

func (k SecpPublicKey) ValidatesId(id core.KeyId) bool { return k.KeyId().Equal(id) }

func (k SecpPublicKey) Verify(data []byte, sig core.Signature) bool {
	s, ok := sig.(SecpSignature)
	if !ok {
		return false
	}
	return s.sig.Verify(hashMessage(data), k.pk)
}

func (k SecpPublicKey) String() string {
	return encodeTagged(publicKeyPrefix, core.SuiteSecp256k1, k.pk.SerializeCompressed())
}

func (k SecpPublicKey) Equal(other core.PublicKey) bool {
	o, ok := other.(SecpPublicKey)
	return ok && k.pk.IsEqual(o.pk)
}

// ParseSecpPublicKey decodes the textual form produced by
// SecpPublicKey.String.
func ParseSecpPublicKey(s string) (SecpPublicKey, error) {
	suite, payload, err := decodeTagged(publicKeyPrefix, s)
	if err != nil {
		return SecpPublicKey{}, err
	}
	if suite != core.SuiteSecp256k1 {
		return SecpPublicKey{}, core.ErrMalformed
	}
	return NewSecpPublicKeyFromBytes(payload)
}

// SecpSignature is the Secp256k1 concrete Signature, holding an ECDSA
// signature whose Bytes and String forms use its DER serialization.
type SecpSignature struct {
	sig *ecdsa.Signature
}

func (s SecpSignature) Suite() core.CipherSuite { return core.SuiteSecp256k1 }

func (s SecpSignature) String() string {
	return encodeTagged(signaturePrefix, core.SuiteSecp256k1, s.sig.Serialize())
}

func (s SecpSignature) Bytes() []byte { return s.sig.Serialize() }

// SecpPrivateKey is the Secp256k1 concrete PrivateKey.
type SecpPrivateKey struct {
	sk *secp256k1.PrivateKey
}

func NewSecpPrivateKeyFromBytes(b []byte) SecpPrivateKey {
	priv := secp256k1.PrivKeyFromBytes(b)
	return SecpPrivateKey{sk: priv}
}

func (k SecpPrivateKey) Suite() core.CipherSuite { return core.SuiteSecp256k1 }

func (k SecpPrivateKey) PublicKey() core.PublicKey {
	return SecpPublicKey{pk: k.sk.PubKey()}
}

func (k SecpPrivateKey) Sign(data []byte) (core.Signature, error) {
	sig := ecdsa.Sign(k.sk, hashMessage(data))
	return SecpSignature{sig: sig}, nil
}
