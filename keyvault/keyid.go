package keyvault

import (
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160-style key id derivation, not used for signatures
	"golang.org/x/crypto/sha3"
)

// keyIdHashSize is the length of a derived key id's raw payload, matching
// the 20-byte RIPEMD160(SHA3-256(pubkey)) "hash160" shape the secp256k1
// ecosystem (and the teacher's own address derivation) uses for compact key
// identifiers. original_source/keyvault's own EdKeyId/SecpKeyId hash
// functions weren't present in the retrieved source tree (only their
// `key_id()` call sites were), so this scheme is chosen by that ecosystem
// convention rather than grounded in a retrieved definition.
const keyIdHashSize = 20

// deriveKeyIdHash hashes a suite's raw public key bytes down to the fixed
// payload every KeyId wraps.
func deriveKeyIdHash(pubkeyBytes []byte) []byte {
	sum := sha3.Sum256(pubkeyBytes)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}
