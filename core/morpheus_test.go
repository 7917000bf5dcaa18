package core

import (
	"bytes"
	"strings"
	"testing"
)

// Fake crypto for exercising MorpheusState's own state-machine logic
// (registration, atomicity, right checks, tombstoning, lastTxId chaining)
// without depending on package keyvault's real suites — those are covered
// separately by keyvault's own tests and core/envelope_test.go.

type fakeMKeyId struct{ id string }

func (f fakeMKeyId) Suite() CipherSuite     { return SuiteEd25519 }
func (f fakeMKeyId) String() string         { return "ifake" + f.id }
func (f fakeMKeyId) Equal(other KeyId) bool { o, ok := other.(fakeMKeyId); return ok && o.id == f.id }

type fakeMPublicKey struct{ id string }

func (f fakeMPublicKey) Suite() CipherSuite { return SuiteEd25519 }
func (f fakeMPublicKey) KeyId() KeyId       { return fakeMKeyId{id: f.id} }
func (f fakeMPublicKey) ValidatesId(id KeyId) bool {
	o, ok := id.(fakeMKeyId)
	return ok && o.id == f.id
}
func (f fakeMPublicKey) Verify(data []byte, sig Signature) bool {
	s, ok := sig.(fakeMSignature)
	return ok && s.signer == f.id && bytes.Equal(s.data, data)
}
func (f fakeMPublicKey) String() string             { return "pfake" + f.id }
func (f fakeMPublicKey) Equal(other PublicKey) bool { o, ok := other.(fakeMPublicKey); return ok && o.id == f.id }

type fakeMSignature struct {
	signer string
	data   []byte
}

func (s fakeMSignature) Suite() CipherSuite { return SuiteEd25519 }
func (s fakeMSignature) String() string     { return "gfake" + s.signer }
func (s fakeMSignature) Bytes() []byte      { return s.data }

type fakeMPrivateKey struct{ id string }

func (k fakeMPrivateKey) Suite() CipherSuite { return SuiteEd25519 }
func (k fakeMPrivateKey) PublicKey() PublicKey { return fakeMPublicKey{id: k.id} }
func (k fakeMPrivateKey) Sign(data []byte) (Signature, error) {
	return fakeMSignature{signer: k.id, data: append([]byte(nil), data...)}, nil
}

type fakeMKeyStore struct{}

func (fakeMKeyStore) Resolve(id KeyId) (PublicKey, bool) {
	k, ok := id.(fakeMKeyId)
	if !ok {
		return nil, false
	}
	return fakeMPublicKey{id: k.id}, true
}

func (fakeMKeyStore) ParsePublicKey(s string) (PublicKey, error) {
	if !strings.HasPrefix(s, "pfake") {
		return nil, ErrMalformed
	}
	return fakeMPublicKey{id: strings.TrimPrefix(s, "pfake")}, nil
}

func (fakeMKeyStore) ParseKeyId(s string) (KeyId, error) {
	if !strings.HasPrefix(s, "ifake") {
		return nil, ErrMalformed
	}
	return fakeMKeyId{id: strings.TrimPrefix(s, "ifake")}, nil
}

// signAttempts builds a SignedAttempts whose signature validates against
// signer, computed by signing the exact content ApplyTransaction/Verify will
// re-derive (SignedAttempts.envelope's content-to-sign), so tests don't have
// to replicate the wire digest by hand.
func signAttempts(t *testing.T, signer fakeMPrivateKey, attempts AttemptList) SignedAttempts {
	t.Helper()
	sa := SignedAttempts{Attempts: attempts, PublicKey: signer.PublicKey()}
	data, err := sa.envelope().Content.ContentToSign()
	if err != nil {
		t.Fatalf("ContentToSign: %v", err)
	}
	sig, err := signer.Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sa.Signature = sig
	return sa
}

func newTestMorpheus() (*MorpheusState, fakeMPrivateKey, Did) {
	signer := fakeMPrivateKey{id: "root"}
	did := NewDidFromKeyId(signer.PublicKey().KeyId())
	return NewMorpheusState(fakeMKeyStore{}), signer, did
}

func TestMorpheusSetBlockHeightMustStrictlyIncrease(t *testing.T) {
	s, _, _ := newTestMorpheus()
	if err := s.SetBlockHeight(5); err != nil {
		t.Fatalf("SetBlockHeight: %v", err)
	}
	if err := s.SetBlockHeight(5); err == nil {
		t.Fatalf("expected a non-increasing height to be rejected")
	}
	if s.IsCorrupted() {
		t.Fatalf("an ordinary SetBlockHeight validation failure must not corrupt state")
	}
	if err := s.SetBlockHeight(6); err != nil {
		t.Fatalf("SetBlockHeight after a rejected call must still succeed: %v", err)
	}
}

func TestMorpheusRevertBlockHeightRoundTrip(t *testing.T) {
	s, _, _ := newTestMorpheus()
	if err := s.SetBlockHeight(5); err != nil {
		t.Fatalf("SetBlockHeight: %v", err)
	}
	if err := s.RevertBlockHeight(5, 0); err != nil {
		t.Fatalf("RevertBlockHeight: %v", err)
	}
	if s.LastSeenHeight() != 0 {
		t.Fatalf("expected height 0 after revert, got %d", s.LastSeenHeight())
	}
}

func TestMorpheusRevertBlockHeightMismatchCorrupts(t *testing.T) {
	s, _, _ := newTestMorpheus()
	if err := s.SetBlockHeight(5); err != nil {
		t.Fatalf("SetBlockHeight: %v", err)
	}
	if err := s.RevertBlockHeight(999, 0); err == nil {
		t.Fatalf("expected a mismatched currentHeight to be rejected")
	}
	if !s.IsCorrupted() {
		t.Fatalf("a failed RevertBlockHeight must corrupt state (reverse-direction failures are never ordinary)")
	}
}

func TestMorpheusApplyTransactionAddsNewKey(t *testing.T) {
	s, root, did := newTestMorpheus()
	newKey := fakeMPrivateKey{id: "second"}

	attempt := SignableAttempt{
		Did: did,
		Op:  AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil),
	}
	signed := signAttempts(t, root, AttemptList{attempt})
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}

	if err := s.ApplyTransaction("tx1", 10, asset); err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}

	doc, ok := s.DidDocumentAt(did, 10)
	if !ok {
		t.Fatalf("expected the DID to be known after a confirmed transaction")
	}
	if len(doc.Keys) != 2 {
		t.Fatalf("expected 2 keys after AddKey, got %d", len(doc.Keys))
	}
}

func TestMorpheusApplyTransactionRejectsUnauthorizedSigner(t *testing.T) {
	s, _, did := newTestMorpheus()
	outsider := fakeMPrivateKey{id: "outsider"}
	newKey := fakeMPrivateKey{id: "second"}

	attempt := SignableAttempt{
		Did: did,
		Op:  AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil),
	}
	signed := signAttempts(t, outsider, AttemptList{attempt})
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}

	if err := s.ApplyTransaction("tx1", 10, asset); err == nil {
		t.Fatalf("expected a signer with no update right to be rejected")
	}
	if s.IsCorrupted() {
		t.Fatalf("a rejected transaction must not corrupt state")
	}
	// The rejected transaction must not become the DID's last confirmed one.
	if s.lastConfirmedTxId(did) != nil {
		t.Fatalf("a rejected transaction must not be confirmed")
	}
}

func TestMorpheusApplyTransactionRejectsTamperedSignature(t *testing.T) {
	s, root, did := newTestMorpheus()
	newKey := fakeMPrivateKey{id: "second"}

	attempt := SignableAttempt{
		Did: did,
		Op:  AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil),
	}
	signed := signAttempts(t, root, AttemptList{attempt})
	// Tamper with the signed attempt list after signing.
	signed.Attempts[0].Op = AddKeyOp(NewAuthenticationByPublicKey(fakeMPrivateKey{id: "mallory"}.PublicKey()), nil)
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}

	if err := s.ApplyTransaction("tx1", 10, asset); err == nil {
		t.Fatalf("expected a tampered attempt list to fail signature verification")
	}
}

func TestMorpheusApplyTransactionAtomicRejectsWholeAsset(t *testing.T) {
	s, root, did := newTestMorpheus()
	newKey := fakeMPrivateKey{id: "second"}

	addAttempt := SignableAttempt{
		Did: did,
		Op:  AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil),
	}
	// A second attempt in the same transaction targets a DID the root key
	// cannot update (no update right over it), so phase B must fail and the
	// whole transaction (including the otherwise-valid AddKey) must revert.
	otherDid := NewDidFromKeyId(fakeMPrivateKey{id: "unrelated"}.PublicKey().KeyId())
	badAttempt := SignableAttempt{
		Did: otherDid,
		Op:  TombstoneDidOp(),
	}
	signed := signAttempts(t, root, AttemptList{addAttempt, badAttempt})
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}

	if err := s.ApplyTransaction("tx1", 10, asset); err == nil {
		t.Fatalf("expected the transaction to fail because of the second attempt")
	}

	doc, ok := s.DidDocumentAt(did, 10)
	if ok && len(doc.Keys) != 1 {
		t.Fatalf("expected the AddKey half of a failed transaction to have been rolled back, got %d keys", len(doc.Keys))
	}
}

func TestMorpheusLastTxIdChaining(t *testing.T) {
	s, root, did := newTestMorpheus()
	other := fakeMPrivateKey{id: "second"}

	first := SignableAttempt{Did: did, Op: AddKeyOp(NewAuthenticationByPublicKey(other.PublicKey()), nil)}
	signed1 := signAttempts(t, root, AttemptList{first})
	asset1 := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed1)}}
	if err := s.ApplyTransaction("tx1", 10, asset1); err != nil {
		t.Fatalf("ApplyTransaction tx1: %v", err)
	}

	staleLastTxId := "nonexistent"
	second := SignableAttempt{Did: did, LastTxId: &staleLastTxId, Op: RevokeKeyOp(NewAuthenticationByPublicKey(other.PublicKey()))}
	signed2 := signAttempts(t, root, AttemptList{second})
	asset2 := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed2)}}
	if err := s.ApplyTransaction("tx2", 11, asset2); err == nil {
		t.Fatalf("expected an attempt naming a stale lastTxId to be rejected")
	}

	correctLastTxId := "tx1"
	third := SignableAttempt{Did: did, LastTxId: &correctLastTxId, Op: RevokeKeyOp(NewAuthenticationByPublicKey(other.PublicKey()))}
	signed3 := signAttempts(t, root, AttemptList{third})
	asset3 := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed3)}}
	if err := s.ApplyTransaction("tx3", 12, asset3); err != nil {
		t.Fatalf("ApplyTransaction tx3 with the correct lastTxId: %v", err)
	}
}

func TestMorpheusRevertTransactionUndoesConfirmedTransaction(t *testing.T) {
	s, root, did := newTestMorpheus()
	newKey := fakeMPrivateKey{id: "second"}

	attempt := SignableAttempt{Did: did, Op: AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil)}
	signed := signAttempts(t, root, AttemptList{attempt})
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}

	if err := s.ApplyTransaction("tx1", 10, asset); err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	if err := s.RevertTransaction("tx1", 10, asset); err != nil {
		t.Fatalf("RevertTransaction: %v", err)
	}

	doc, ok := s.DidDocumentAt(did, 10)
	if !ok || len(doc.Keys) != 1 {
		t.Fatalf("expected only the default key to remain after reverting the confirmed transaction")
	}
	if s.lastConfirmedTxId(did) != nil {
		t.Fatalf("expected no confirmed transaction to remain for the DID after revert")
	}
}

func TestMorpheusRevertTransactionUndoesRejectedTransactionRegistration(t *testing.T) {
	s, _, did := newTestMorpheus()
	outsider := fakeMPrivateKey{id: "outsider"}
	newKey := fakeMPrivateKey{id: "second"}

	attempt := SignableAttempt{Did: did, Op: AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil)}
	signed := signAttempts(t, outsider, AttemptList{attempt})
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}

	if err := s.ApplyTransaction("tx1", 10, asset); err == nil {
		t.Fatalf("expected the transaction to be rejected")
	}
	if err := s.RevertTransaction("tx1", 10, asset); err != nil {
		t.Fatalf("RevertTransaction of a rejected transaction: %v", err)
	}
	if len(s.didTxns[did.String()]) != 0 {
		t.Fatalf("expected the rejected transaction's attempt registration to be reverted")
	}
}

func TestMorpheusTombstoneBlocksFurtherAttempts(t *testing.T) {
	s, root, did := newTestMorpheus()
	newKey := fakeMPrivateKey{id: "second"}

	tombstone := SignableAttempt{Did: did, Op: TombstoneDidOp()}
	signed := signAttempts(t, root, AttemptList{tombstone})
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}
	if err := s.ApplyTransaction("tx1", 10, asset); err != nil {
		t.Fatalf("ApplyTransaction (tombstone): %v", err)
	}

	lastTxId := "tx1"
	addAfterTombstone := SignableAttempt{Did: did, LastTxId: &lastTxId, Op: AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil)}
	signed2 := signAttempts(t, root, AttemptList{addAfterTombstone})
	asset2 := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed2)}}
	if err := s.ApplyTransaction("tx2", 11, asset2); err == nil {
		t.Fatalf("expected an attempt against a tombstoned DID to be rejected")
	}
}

func TestMorpheusBeforeProofRegistrationRejectsDuplicate(t *testing.T) {
	s, _, _ := newTestMorpheus()
	asset := MorpheusAsset{Attempts: []OperationAttempt{RegisterBeforeProofOp("content-1")}}

	if err := s.ApplyTransaction("tx1", 10, asset); err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	rec, ok := s.BeforeProof("content-1")
	if !ok || rec.TxId != "tx1" || rec.Height != 10 {
		t.Fatalf("expected a registered before-proof record, got %+v ok=%v", rec, ok)
	}

	if err := s.ApplyTransaction("tx2", 11, asset); err == nil {
		t.Fatalf("expected a duplicate before-proof registration to be rejected")
	}
}

func TestMorpheusDryRunDoesNotMutateState(t *testing.T) {
	s, root, did := newTestMorpheus()
	newKey := fakeMPrivateKey{id: "second"}

	attempt := SignableAttempt{Did: did, Op: AddKeyOp(NewAuthenticationByPublicKey(newKey.PublicKey()), nil)}
	signed := signAttempts(t, root, AttemptList{attempt})
	asset := MorpheusAsset{Attempts: []OperationAttempt{SignedAttemptsOp(signed)}}

	if errs := s.DryRun("tx1", 10, asset); len(errs) != 0 {
		t.Fatalf("expected DryRun to report no errors for a valid attempt, got %v", errs)
	}
	if _, ok := s.DidDocumentAt(did, 10); ok {
		t.Fatalf("expected DryRun to leave the live state untouched")
	}
}
