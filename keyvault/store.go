package keyvault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"

	"ssichain/core"
)

// hardenedOffset marks a derivation index as hardened, the only kind ed25519
// HD derivation supports (it has no public-key-only child derivation).
// Grounded on the teacher's HD wallet (core/wallet.go's hardenedOffset /
// derivePrivate), itself a SLIP-0010-style scheme. This Store intentionally
// stops at a flat account'/index' path: original_source/keyvault/src/
// ed25519/morpheus.rs layers a much richer BIP43 purpose/DID-kind/subtree
// hierarchy (MorpheusRoot/MorpheusKind/DidKind/MorpheusSubtree) on top of
// the same hardened-HMAC primitive, but spec.md scopes KeyAbstractions as
// "consumed, not defined" with a capability surface of just
// {verify, sign, deriveId, encode/decode} and no inheritance — so the
// Morpheus-specific path hierarchy is a deliberate scope reduction, not an
// oversight.
const hardenedOffset uint32 = 0x80000000

const masterHMACKey = "ed25519 seed"

// Store is the concrete core.KeyStore: it resolves previously-registered
// public keys by their KeyId (KeyId is a one-way hash, so resolution needs a
// registry, not an inverse function) and derives Ed25519 signing keys from a
// bip39 mnemonic seed via hardened HMAC-SHA512 derivation.
type Store struct {
	log *zap.Logger

	mu   sync.RWMutex
	byId map[string]core.PublicKey

	seed        []byte
	masterKey   []byte
	masterChain []byte
}

// NewStore builds an empty key store with no derivation seed. Resolve only
// ever succeeds for keys explicitly registered via Register or RegisterAll.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log, byId: make(map[string]core.PublicKey)}
}

// NewRandomMnemonic generates a fresh bip39 mnemonic with entropyBits bits of
// entropy (128 or 256). Callers must store the returned phrase securely; it
// is the only way to recover any key later derived from it.
func NewRandomMnemonic(entropyBits int) (string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return "", errors.New("keyvault: unsupported entropy size")
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// NewStoreFromMnemonic builds a Store whose Derive calls are seeded from a
// bip39 mnemonic phrase and optional passphrase.
func NewStoreFromMnemonic(mnemonic, passphrase string, log *zap.Logger) (*Store, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("keyvault: invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return newStoreFromSeed(seed, log)
}

func newStoreFromSeed(seed []byte, log *zap.Logger) (*Store, error) {
	if len(seed) < 16 {
		return nil, errors.New("keyvault: seed too short")
	}
	if log == nil {
		log = zap.NewNop()
	}
	i := hmacSHA512([]byte(masterHMACKey), seed)
	s := &Store{
		log:         log,
		byId:        make(map[string]core.PublicKey),
		seed:        append([]byte(nil), seed...),
		masterKey:   i[:32],
		masterChain: i[32:],
	}
	log.Info("keyvault: master key initialized", zap.Int("seed_bytes", len(seed)))
	return s, nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func derivePrivate(parentKey, parentChain []byte, index uint32) (key, chain []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("keyvault: non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)
	i := hmacSHA512(parentChain, data)
	return i[:32], i[32:], nil
}

// Derive returns the Ed25519 private key at hardened path m/account'/index'.
// The derived key is registered into the store's resolve registry (by its
// public key's KeyId) before being returned.
func (s *Store) Derive(account, index uint32) (EdPrivateKey, error) {
	if s.masterKey == nil {
		return EdPrivateKey{}, errors.New("keyvault: store has no derivation seed")
	}
	k1, c1, err := derivePrivate(s.masterKey, s.masterChain, account|hardenedOffset)
	if err != nil {
		return EdPrivateKey{}, err
	}
	k2, _, err := derivePrivate(k1, c1, index|hardenedOffset)
	if err != nil {
		return EdPrivateKey{}, err
	}
	priv := NewEdPrivateKeyFromSeed(k2)
	s.Register(priv.PublicKey())
	return priv, nil
}

// GenerateEd25519 creates a random, unregistered-path Ed25519 key pair, for
// callers that don't need HD recoverability (e.g. short-lived test fixtures).
func GenerateEd25519() (EdPrivateKey, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return EdPrivateKey{}, err
	}
	return NewEdPrivateKeyFromSeed(seed), nil
}

// Register adds a public key to the resolve registry, keyed by its KeyId.
// Call this for any key the store must later resolve signatures against,
// whether derived here or received from another party.
func (s *Store) Register(pub core.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byId[pub.KeyId().String()] = pub
}

// RegisterAll registers every key in pubs.
func (s *Store) RegisterAll(pubs []core.PublicKey) {
	for _, pub := range pubs {
		s.Register(pub)
	}
}

func (s *Store) Resolve(id core.KeyId) (core.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pub, ok := s.byId[id.String()]
	return pub, ok
}

func (s *Store) ParsePublicKey(str string) (core.PublicKey, error) {
	if len(str) < 2 {
		return nil, core.ErrMalformed
	}
	switch str[0] {
	case publicKeyPrefix:
		suite, err := suiteFromChar(str[1])
		if err != nil {
			return nil, err
		}
		switch suite {
		case core.SuiteEd25519:
			return ParseEdPublicKey(str)
		case core.SuiteSecp256k1:
			return ParseSecpPublicKey(str)
		}
	}
	return nil, core.ErrMalformed
}

func (s *Store) ParseKeyId(str string) (core.KeyId, error) {
	if len(str) < 2 {
		return nil, core.ErrMalformed
	}
	switch str[0] {
	case keyIdPrefix:
		suite, err := suiteFromChar(str[1])
		if err != nil {
			return nil, err
		}
		switch suite {
		case core.SuiteEd25519:
			return ParseEdKeyId(str)
		case core.SuiteSecp256k1:
			return ParseSecpKeyId(str)
		}
	}
	return nil, core.ErrMalformed
}
