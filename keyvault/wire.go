// Package keyvault provides the concrete, suite-tagged implementation of
// core's PublicKey/PrivateKey/Signature/KeyId/KeyStore interfaces: Ed25519
// and Secp256k1 today, following the same type-erased multicipher shape as
// original_source/keyvault/src/multicipher (one Go type per concept, suite
// carried at the value level since Go has no tagged-union enums).
package keyvault

import (
	"github.com/multiformats/go-multibase"
	"ssichain/core"
)

// Wire-format type prefixes, one per concept, matching
// original_source/keyvault/src/multicipher's MPublicKey::PREFIX ('p') and
// MKeyId::PREFIX ('i'). MSignature's own prefix wasn't present in the
// retrieved source tree; 'g' is chosen by the same one-letter-per-concept
// convention (p=public key, i=identifier, g=signature).
const (
	publicKeyPrefix = 'p'
	keyIdPrefix     = 'i'
	signaturePrefix = 'g'
)

func suiteChar(s core.CipherSuite) byte {
	return byte(s)
}

func suiteFromChar(c byte) (core.CipherSuite, error) {
	switch c {
	case byte(core.SuiteEd25519):
		return core.SuiteEd25519, nil
	case byte(core.SuiteSecp256k1):
		return core.SuiteSecp256k1, nil
	default:
		return 0, core.ErrMalformed
	}
}

// encodeTagged renders typePrefix + suite char + multibase(base58btc, payload),
// matching MPublicKey/MKeyId's `impl From<&M...> for String`.
func encodeTagged(typePrefix byte, suite core.CipherSuite, payload []byte) string {
	body, err := multibase.Encode(multibase.Base58BTC, payload)
	if err != nil {
		// Base58BTC encoding of an in-memory byte slice never fails.
		panic("keyvault: multibase encode: " + err.Error())
	}
	return string([]byte{typePrefix, suiteChar(suite)}) + body
}

// decodeTagged parses typePrefix + suite char + multibase(payload) back into
// its suite and raw payload bytes.
func decodeTagged(wantPrefix byte, s string) (core.CipherSuite, []byte, error) {
	if len(s) < 2 || s[0] != wantPrefix {
		return 0, nil, core.ErrMalformed
	}
	suite, err := suiteFromChar(s[1])
	if err != nil {
		return 0, nil, err
	}
	rest := s[2:]
	if rest == "" {
		return 0, nil, core.ErrMalformed
	}
	_, payload, err := multibase.Decode(rest)
	if err != nil {
		return 0, nil, err
	}
	return suite, payload, nil
}

