package core_test

import (
	"testing"

	"ssichain/core"
)

type fakeKeyId struct{ id string }

func (f fakeKeyId) Suite() core.CipherSuite      { return core.SuiteEd25519 }
func (f fakeKeyId) String() string               { return "itestkey" + f.id }
func (f fakeKeyId) Equal(other core.KeyId) bool  { o, ok := other.(fakeKeyId); return ok && o.id == f.id }

func freshDoc(id string) (core.Did, *core.DidDocState) {
	kid := fakeKeyId{id: id}
	did := core.NewDidFromKeyId(kid)
	return did, core.NewDidDocState(kid)
}

func TestNewDidDocStateGrantsDefaultKeyBothRights(t *testing.T) {
	did, s := freshDoc("1")
	doc := s.AtHeight(did, 5)
	auth := core.NewAuthenticationByKeyId(fakeKeyId{id: "1"})

	hasUpdate, err := doc.HasRightAt(auth, core.RightUpdate, 5)
	if err != nil {
		t.Fatalf("HasRightAt: %v", err)
	}
	if !hasUpdate {
		t.Fatalf("expected the default key to hold the update right from birth")
	}

	hasImpersonation, err := doc.HasRightAt(auth, core.RightImpersonation, 5)
	if err != nil {
		t.Fatalf("HasRightAt: %v", err)
	}
	if !hasImpersonation {
		t.Fatalf("expected the default key to hold the impersonation right from birth")
	}
}

func TestAddKeyThenRevokeKeyRoundTrip(t *testing.T) {
	did, s := freshDoc("1")
	signer := core.NewAuthenticationByKeyId(fakeKeyId{id: "1"})
	newKeyAuth := core.NewAuthenticationByKeyId(fakeKeyId{id: "2"})

	op := core.AddKeyOp(newKeyAuth, nil)
	if err := s.Apply(did, 10, signer, op); err != nil {
		t.Fatalf("Apply(AddKey): %v", err)
	}

	doc := s.AtHeight(did, 10)
	hasUpdate, err := doc.HasRightAt(newKeyAuth, core.RightUpdate, 10)
	if err != nil {
		t.Fatalf("HasRightAt: %v", err)
	}
	if hasUpdate {
		t.Fatalf("a freshly added key must start with no rights granted")
	}

	revoke := core.RevokeKeyOp(newKeyAuth)
	if err := s.Apply(did, 11, signer, revoke); err != nil {
		t.Fatalf("Apply(RevokeKey): %v", err)
	}
	doc = s.AtHeight(did, 11)
	if valid := doc.Keys[len(doc.Keys)-1].Valid; valid {
		t.Fatalf("expected the revoked key to be invalid after revocation")
	}

	if err := s.Revert(did, 11, signer, revoke); err != nil {
		t.Fatalf("Revert(RevokeKey): %v", err)
	}
	doc = s.AtHeight(did, 11)
	if valid := doc.Keys[len(doc.Keys)-1].Valid; !valid {
		t.Fatalf("expected the key to be valid again after reverting its revocation")
	}

	if err := s.Revert(did, 10, signer, op); err != nil {
		t.Fatalf("Revert(AddKey): %v", err)
	}
	doc = s.AtHeight(did, 11)
	if len(doc.Keys) != 1 {
		t.Fatalf("expected only the default key to remain after reverting AddKey, got %d", len(doc.Keys))
	}
}

func TestKeyCannotModifyItsOwnAuthorization(t *testing.T) {
	did, s := freshDoc("1")
	signer := core.NewAuthenticationByKeyId(fakeKeyId{id: "1"})

	op := core.RevokeKeyOp(signer)
	if err := s.Apply(did, 10, signer, op); err == nil {
		t.Fatalf("expected a key revoking its own authorization to be rejected")
	}
}

func TestAddKeyBeforeMinHeightIsRejected(t *testing.T) {
	did, s := freshDoc("1")
	signer := core.NewAuthenticationByKeyId(fakeKeyId{id: "1"})
	op := core.AddKeyOp(core.NewAuthenticationByKeyId(fakeKeyId{id: "2"}), nil)
	if err := s.Apply(did, 1, signer, op); err == nil {
		t.Fatalf("expected AddKey at height 1 to be rejected (keys cannot be added before height 2)")
	}
}

func TestTombstoneBlocksFurtherUpdates(t *testing.T) {
	did, s := freshDoc("1")
	signer := core.NewAuthenticationByKeyId(fakeKeyId{id: "1"})

	if err := s.Apply(did, 10, signer, core.TombstoneDidOp()); err != nil {
		t.Fatalf("Apply(TombstoneDid): %v", err)
	}

	doc := s.AtHeight(did, 10)
	tombstoned, err := doc.IsTombstonedAt(10)
	if err != nil {
		t.Fatalf("IsTombstonedAt: %v", err)
	}
	if !tombstoned {
		t.Fatalf("expected the DID to be tombstoned at its tombstoning height")
	}

	op := core.AddKeyOp(core.NewAuthenticationByKeyId(fakeKeyId{id: "2"}), nil)
	if err := s.Apply(did, 11, signer, op); err == nil {
		t.Fatalf("expected AddKey on a tombstoned DID to be rejected")
	}
}

func TestDidDocStateCloneIsIndependent(t *testing.T) {
	did, s := freshDoc("1")
	signer := core.NewAuthenticationByKeyId(fakeKeyId{id: "1"})
	clone := s.Clone()

	op := core.AddKeyOp(core.NewAuthenticationByKeyId(fakeKeyId{id: "2"}), nil)
	if err := s.Apply(did, 10, signer, op); err != nil {
		t.Fatalf("Apply(AddKey): %v", err)
	}

	if got := len(clone.AtHeight(did, 10).Keys); got != 1 {
		t.Fatalf("mutating the original after Clone must not affect the clone, got %d keys", got)
	}
	if got := len(s.AtHeight(did, 10).Keys); got != 2 {
		t.Fatalf("expected the original to have 2 keys after AddKey, got %d", got)
	}
}
