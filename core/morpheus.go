package core

import "go.uber.org/zap"

// TransactionIdWithHeight is one entry of a DID's attempt log: every txid
// that ever tried to mutate the DID, whether or not it was ultimately
// confirmed. Grounded on original_source/morpheus-node/src/state.rs's
// DidTransactionsState.
type TransactionIdWithHeight struct {
	TxId   string
	Height BlockHeight
}

// BeforeProofRecord is the height and confirming transaction of a
// previously registered before-proof content id. Grounded on
// original_source/morpheus-node/src/state.rs's BeforeProofState.
type BeforeProofRecord struct {
	Height BlockHeight
	TxId   string
}

// SignableAttempt is one DID mutation covered by a SignedAttempts'
// signature: the DID it targets, the signer's view of the last confirmed
// transaction for that DID (nil for a DID's first ever operation), and the
// mutation itself.
//
// Grounded on original_source/morpheus-node/src/state.rs's did_state_mut,
// which rejects an attempt whose last_tx_id doesn't match the chain's
// actual last confirmed txid for the DID.
type SignableAttempt struct {
	Did      Did
	LastTxId *string
	Op       DidDocOp
}

func (a SignableAttempt) toJSONValue() interface{} {
	v := map[string]interface{}{
		"did":       a.Did.String(),
		"operation": didDocOpJSONValue(a.Op),
	}
	if a.LastTxId != nil {
		v["lastTxId"] = *a.LastTxId
	} else {
		v["lastTxId"] = nil
	}
	return v
}

func didDocOpJSONValue(op DidDocOp) interface{} {
	switch op.Kind {
	case OpAddKey:
		v := map[string]interface{}{"type": "addKey", "auth": op.Auth.String()}
		if op.ExpiresAtHeight != nil {
			v["expiresAtHeight"] = *op.ExpiresAtHeight
		} else {
			v["expiresAtHeight"] = nil
		}
		return v
	case OpRevokeKey:
		return map[string]interface{}{"type": "revokeKey", "auth": op.Auth.String()}
	case OpAddRight:
		return map[string]interface{}{"type": "addRight", "auth": op.Auth.String(), "right": op.Right.String()}
	case OpRevokeRight:
		return map[string]interface{}{"type": "revokeRight", "auth": op.Auth.String(), "right": op.Right.String()}
	case OpTombstoneDid:
		return map[string]interface{}{"type": "tombstoneDid"}
	default:
		return map[string]interface{}{"type": "unknown"}
	}
}

// AttemptList is the signed payload of a SignedAttempts: a batch of
// SignableAttempt, digested as one JSON array so a single signature covers
// all of them at once.
type AttemptList []SignableAttempt

func (a AttemptList) toJSONValue() interface{} {
	out := make([]interface{}, len(a))
	for i, at := range a {
		out[i] = at.toJSONValue()
	}
	return out
}

// SignedAttempts binds a public key and signature to an AttemptList via the
// same digest-of-content convention as core/envelope.go's SignedEnvelope
// (unlike Coeus's SignedBundle, which signs canonical JSON text directly).
type SignedAttempts struct {
	Attempts  AttemptList
	PublicKey PublicKey
	Signature Signature
}

func (s SignedAttempts) envelope() *SignedEnvelope {
	return &SignedEnvelope{
		PublicKey: s.PublicKey,
		Content:   JSONContent{Value: s.Attempts.toJSONValue()},
		Signature: s.Signature,
	}
}

// Verify checks the signature over the canonical digest of s.Attempts.
func (s SignedAttempts) Verify() (bool, error) { return s.envelope().Validate() }

// OperationAttemptKind tags the two things a MorpheusAsset can carry.
type OperationAttemptKind int

const (
	AttemptSigned OperationAttemptKind = iota
	AttemptRegisterBeforeProof
)

// OperationAttempt is one entry of a transaction's asset: either a batch of
// signed DID mutations, or a single before-proof content-id registration
// (which needs no signature — registering a hash costs no DID authority).
type OperationAttempt struct {
	Kind      OperationAttemptKind
	Signed    SignedAttempts
	ContentId string
}

func SignedAttemptsOp(signed SignedAttempts) OperationAttempt {
	return OperationAttempt{Kind: AttemptSigned, Signed: signed}
}

func RegisterBeforeProofOp(contentId string) OperationAttempt {
	return OperationAttempt{Kind: AttemptRegisterBeforeProof, ContentId: contentId}
}

// MorpheusAsset is the payload of one Morpheus transaction: an ordered list
// of operation attempts applied together, atomically.
type MorpheusAsset struct {
	Attempts []OperationAttempt
}

// MorpheusState is the DID state machine: a DidDocState per observed DID, a
// before-proof registry, and an append-only per-DID attempt log used to
// chain signed operations against the last confirmed transaction.
//
// Grounded on original_source/morpheus-node/src/state.rs (State, Mutation,
// apply/revert, check_state, did_state_mut) and
// original_source/morpheus-node/src/state_holder.rs (StateHolder's
// clone-then-commit-or-discard transaction atomicity, corrupted flag).
type MorpheusState struct {
	corrupted bool

	lastSeenHeight BlockHeight

	keys KeyStore

	didStates map[string]*DidDocState
	didTxns   map[string][]TransactionIdWithHeight

	// txnConfirmed records every transaction this state has ever seen a
	// status for: true once confirmed (committed), false once rejected.
	// Absence means "never seen".
	txnConfirmed map[string]bool

	beforeProofs map[string]BeforeProofRecord

	log *zap.Logger
}

// NewMorpheusState creates an empty MorpheusState. keys resolves a DID's
// implicit default key id the first time that DID is referenced.
func NewMorpheusState(keys KeyStore) *MorpheusState {
	return &MorpheusState{
		keys:         keys,
		didStates:    make(map[string]*DidDocState),
		didTxns:      make(map[string][]TransactionIdWithHeight),
		txnConfirmed: make(map[string]bool),
		beforeProofs: make(map[string]BeforeProofRecord),
		log:          zap.NewNop(),
	}
}

func (s *MorpheusState) IsCorrupted() bool { return s.corrupted }

func (s *MorpheusState) ensureNotCorrupted() error {
	if s.corrupted {
		return stateCorruptf("morpheus state is corrupt")
	}
	return nil
}

func (s *MorpheusState) LastSeenHeight() BlockHeight { return s.lastSeenHeight }

// setCorruptedOnErr runs fn; any error it returns marks the state corrupt,
// mirroring state_holder.rs's may_corrupt_state wrapper.
func (s *MorpheusState) setCorruptedOnErr(fn func() error) error {
	if err := fn(); err != nil {
		s.corrupted = true
		return err
	}
	return nil
}

// clone returns a deep copy of s for the try-then-commit-or-discard path of
// ApplyTransaction. log and keys are shared (stateless/immutable from the
// state machine's point of view).
func (s *MorpheusState) clone() *MorpheusState {
	out := &MorpheusState{
		corrupted:      s.corrupted,
		lastSeenHeight: s.lastSeenHeight,
		keys:           s.keys,
		log:            s.log,
		didStates:      make(map[string]*DidDocState, len(s.didStates)),
		didTxns:        make(map[string][]TransactionIdWithHeight, len(s.didTxns)),
		txnConfirmed:   make(map[string]bool, len(s.txnConfirmed)),
		beforeProofs:   make(map[string]BeforeProofRecord, len(s.beforeProofs)),
	}
	for k, v := range s.didStates {
		out.didStates[k] = v.Clone()
	}
	for k, v := range s.didTxns {
		cp := make([]TransactionIdWithHeight, len(v))
		copy(cp, v)
		out.didTxns[k] = cp
	}
	for k, v := range s.txnConfirmed {
		out.txnConfirmed[k] = v
	}
	for k, v := range s.beforeProofs {
		out.beforeProofs[k] = v
	}
	return out
}

func (s *MorpheusState) didState(did Did) (*DidDocState, error) {
	ds, ok := s.didStates[did.String()]
	if ok {
		return ds, nil
	}
	keyID, err := did.DefaultKeyId(s.keys)
	if err != nil {
		return nil, err
	}
	ds = NewDidDocState(keyID)
	s.didStates[did.String()] = ds
	return ds, nil
}

// lastConfirmedTxId returns the most recently registered txid for did that
// has since been confirmed, scanning the attempt log newest-first. Grounded
// on original_source/morpheus-node/src/state.rs's last_tx_id, which filters
// get_tx_ids(did, include_attempts=false, ...) through is_confirmed.
func (s *MorpheusState) lastConfirmedTxId(did Did) *string {
	entries := s.didTxns[did.String()]
	for i := len(entries) - 1; i >= 0; i-- {
		if confirmed, ok := s.txnConfirmed[entries[i].TxId]; ok && confirmed {
			txid := entries[i].TxId
			return &txid
		}
	}
	return nil
}

func lastTxIdEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SetBlockHeight advances the last seen height, mirroring CoeusState's
// StartBlock/StartBlockOp and Mutation::SetBlockHeight's apply.
func (s *MorpheusState) SetBlockHeight(height BlockHeight) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	if height <= s.lastSeenHeight {
		return conflictf("block height must strictly increase: %d is not after %d", height, s.lastSeenHeight)
	}
	s.lastSeenHeight = height
	return nil
}

// RevertBlockHeight undoes exactly the last SetBlockHeight call. Reverting
// is expected to only ever be called in exact historical reverse order, so
// any failure here — unlike SetBlockHeight's ordinary validation failure —
// corrupts the state, mirroring CoeusState.RevertBlock's block_reverting.
func (s *MorpheusState) RevertBlockHeight(currentHeight, previousHeight BlockHeight) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	return s.setCorruptedOnErr(func() error {
		if s.lastSeenHeight != currentHeight {
			return conflictf("cannot revert block at height %d, state is currently at height %d", currentHeight, s.lastSeenHeight)
		}
		s.lastSeenHeight = previousHeight
		return nil
	})
}

// registerAttempt appends (txid, height) to did's attempt log. Unconditional
// and, per state_holder.rs's apply_transaction, applied directly against
// live state before any cloning happens — it is never rolled back merely
// because a later DoAttempt in the same transaction fails.
func (s *MorpheusState) registerAttempt(did Did, txid string, height BlockHeight) {
	key := did.String()
	s.didTxns[key] = append(s.didTxns[key], TransactionIdWithHeight{TxId: txid, Height: height})
}

func (s *MorpheusState) revertRegisterAttempt(did Did, txid string) error {
	key := did.String()
	entries := s.didTxns[key]
	if len(entries) == 0 || entries[len(entries)-1].TxId != txid {
		return conflictf("cannot revert attempt registration for DID %s: txid %s is not the most recent entry", did, txid)
	}
	s.didTxns[key] = entries[:len(entries)-1]
	return nil
}

// doAttempt applies one signed DID mutation against s (the transaction
// clone during ApplyTransaction, or DryRun's disposable clone). Grounded on state.rs's check_state: not
// tombstoned, and the signer holds Right::Update at height — a single
// blanket gate, not a per-operation self/other split (that finer
// distinction is internal to DidDocState.Apply's ensureDifferentAuth).
func (s *MorpheusState) doAttempt(txid string, height BlockHeight, signerPK PublicKey, at SignableAttempt) error {
	ds, err := s.didState(at.Did)
	if err != nil {
		return err
	}

	actualLastTxId := s.lastConfirmedTxId(at.Did)
	if !lastTxIdEqual(actualLastTxId, at.LastTxId) {
		return conflictf("attempt for DID %s names a stale lastTxId", at.Did)
	}

	doc := ds.AtHeight(at.Did, height)
	tombstoned, err := doc.IsTombstonedAt(height)
	if err != nil {
		return err
	}
	if tombstoned {
		return conflictf("DID %s is tombstoned, cannot be updated", at.Did)
	}

	signer := NewAuthenticationByPublicKey(signerPK)
	hasRight, err := doc.HasRightAt(signer, RightUpdate, height)
	if err != nil {
		return err
	}
	if !hasRight {
		return unauthorizedf("signer does not hold the update right over DID %s at height %d", at.Did, height)
	}

	return ds.Apply(at.Did, height, signer, at.Op)
}

func (s *MorpheusState) revertDoAttempt(height BlockHeight, signerPK PublicKey, at SignableAttempt) error {
	ds, err := s.didState(at.Did)
	if err != nil {
		return err
	}
	signer := NewAuthenticationByPublicKey(signerPK)
	return ds.Revert(at.Did, height, signer, at.Op)
}

func (s *MorpheusState) registerBeforeProof(txid string, height BlockHeight, contentId string) error {
	if _, exists := s.beforeProofs[contentId]; exists {
		return conflictf("content id %s already has a registered before-proof", contentId)
	}
	s.beforeProofs[contentId] = BeforeProofRecord{Height: height, TxId: txid}
	return nil
}

func (s *MorpheusState) revertRegisterBeforeProof(contentId string, expect BeforeProofRecord) error {
	cur, ok := s.beforeProofs[contentId]
	if !ok || cur != expect {
		return conflictf("cannot revert before-proof registration for %s: recorded entry does not match", contentId)
	}
	delete(s.beforeProofs, contentId)
	return nil
}

// BeforeProof looks up a previously registered before-proof by content id.
func (s *MorpheusState) BeforeProof(contentId string) (BeforeProofRecord, bool) {
	rec, ok := s.beforeProofs[contentId]
	return rec, ok
}

// DidDocumentAt returns the point-in-time view of did as of height. Returns
// ok=false if the DID has never been referenced.
func (s *MorpheusState) DidDocumentAt(did Did, height BlockHeight) (*DidDocument, bool) {
	ds, ok := s.didStates[did.String()]
	if !ok {
		return nil, false
	}
	return ds.AtHeight(did, height), true
}

// runPhaseB applies every attempt's state-mutating half (DoAttempt /
// RegisterBeforeProof) against s in order, stopping at the first failure.
// Called only against a transaction's clone.
func (s *MorpheusState) runPhaseB(txid string, height BlockHeight, asset MorpheusAsset) error {
	for _, a := range asset.Attempts {
		switch a.Kind {
		case AttemptSigned:
			for _, at := range a.Signed.Attempts {
				if err := s.doAttempt(txid, height, a.Signed.PublicKey, at); err != nil {
					return err
				}
			}
		case AttemptRegisterBeforeProof:
			if err := s.registerBeforeProof(txid, height, a.ContentId); err != nil {
				return err
			}
		default:
			return malformedf("unknown operation attempt kind %d", a.Kind)
		}
	}
	return nil
}

// ApplyTransaction applies every attempt in asset atomically. Phase A
// (registering every signed attempt's txid against its DID, and verifying
// each signature) runs directly against live state and is never undone
// merely because phase B fails. Phase B (the actual DID/before-proof
// mutations) runs against a full clone of s; the clone replaces s only on
// complete success, otherwise s only records the rejection.
//
// Grounded on original_source/morpheus-node/src/state_holder.rs's
// apply_transaction.
func (s *MorpheusState) ApplyTransaction(txid string, height BlockHeight, asset MorpheusAsset) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	if _, seen := s.txnConfirmed[txid]; seen {
		return conflictf("transaction %s already has a recorded status", txid)
	}

	for _, a := range asset.Attempts {
		if a.Kind != AttemptSigned {
			continue
		}
		valid, err := a.Signed.Verify()
		if err != nil {
			return err
		}
		if !valid {
			return signatureInvalidf("signature invalid for transaction %s", txid)
		}
		for _, at := range a.Signed.Attempts {
			s.registerAttempt(at.Did, txid, height)
		}
	}

	clone := s.clone()
	if err := clone.runPhaseB(txid, height, asset); err != nil {
		s.txnConfirmed[txid] = false
		return err
	}

	clone.txnConfirmed[txid] = true
	*s = *clone
	return nil
}

// RevertTransaction undoes exactly the effect of ApplyTransaction(txid,
// height, asset). A confirmed transaction has its phase-B mutations
// reverted (newest first) before its phase-A attempt registrations; a
// rejected transaction only has its phase-A registrations reverted, since
// phase B never touched live state in that case.
func (s *MorpheusState) RevertTransaction(txid string, height BlockHeight, asset MorpheusAsset) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	return s.setCorruptedOnErr(func() error {
		confirmed, ok := s.txnConfirmed[txid]
		if !ok {
			return notFoundf("no transaction status recorded for txid %s", txid)
		}

		if confirmed {
			for i := len(asset.Attempts) - 1; i >= 0; i-- {
				a := asset.Attempts[i]
				switch a.Kind {
				case AttemptSigned:
					for j := len(a.Signed.Attempts) - 1; j >= 0; j-- {
						if err := s.revertDoAttempt(height, a.Signed.PublicKey, a.Signed.Attempts[j]); err != nil {
							return err
						}
					}
				case AttemptRegisterBeforeProof:
					if err := s.revertRegisterBeforeProof(a.ContentId, BeforeProofRecord{Height: height, TxId: txid}); err != nil {
						return err
					}
				default:
					return malformedf("unknown operation attempt kind %d", a.Kind)
				}
			}
		}

		delete(s.txnConfirmed, txid)

		for i := len(asset.Attempts) - 1; i >= 0; i-- {
			a := asset.Attempts[i]
			if a.Kind != AttemptSigned {
				continue
			}
			for j := len(a.Signed.Attempts) - 1; j >= 0; j-- {
				if err := s.revertRegisterAttempt(a.Signed.Attempts[j].Did, txid); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DryRun applies asset against a disposable clone of s and reports every
// attempt that would fail, without mutating s. Grounded on
// original_source/morpheus-node/src/state_holder.rs's dry_run.
func (s *MorpheusState) DryRun(txid string, height BlockHeight, asset MorpheusAsset) []error {
	clone := s.clone()
	var errs []error
	for _, a := range asset.Attempts {
		switch a.Kind {
		case AttemptSigned:
			valid, err := a.Signed.Verify()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !valid {
				errs = append(errs, signatureInvalidf("signature invalid for transaction %s", txid))
				continue
			}
			for _, at := range a.Signed.Attempts {
				clone.registerAttempt(at.Did, txid, height)
				if err := clone.doAttempt(txid, height, a.Signed.PublicKey, at); err != nil {
					errs = append(errs, err)
				}
			}
		case AttemptRegisterBeforeProof:
			if err := clone.registerBeforeProof(txid, height, a.ContentId); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}
