package core

import (
	"github.com/sirupsen/logrus"
)

// TxnStatus records, for a transaction id CoeusState has seen, the version
// the chain was at before it started and whether it committed. Grounded on
// original_source/coeus-core/src/state.rs's TxnStatus.
type TxnStatus struct {
	VersionBeforeTxn uint64
	Success          bool
}

// CoeusState is the hierarchical naming system's state machine: a domain
// tree plus an undo log, per-signer nonces and per-transaction status.
// Grounded on original_source/coeus-core/src/state.rs's State.
type CoeusState struct {
	corrupted          bool
	root               *Domain
	lastSeenHeight     BlockHeight
	versionOfFirstUndo uint64
	undo               []UndoEntry
	nonces             map[string]Nonce
	txnStatuses        map[string]TxnStatus
	gracePeriod        BlockHeight
	log                *logrus.Logger
}

// NewCoeusState builds a fresh state rooted at the synthetic root domain.
// gracePeriod of 0 falls back to DefaultGracePeriod, per spec.md §9's
// "allow parameterization behind the same name" instruction.
func NewCoeusState(gracePeriod BlockHeight) *CoeusState {
	if gracePeriod == 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &CoeusState{
		root:        NewRootDomain(),
		nonces:      map[string]Nonce{},
		txnStatuses: map[string]TxnStatus{},
		gracePeriod: gracePeriod,
		log:         logrus.StandardLogger(),
	}
}

func (s *CoeusState) IsCorrupted() bool { return s.corrupted }

func (s *CoeusState) ensureNotCorrupted() error {
	if s.corrupted {
		return stateCorruptf("coeus state is corrupt, all incoming changes are rejected")
	}
	return nil
}

func (s *CoeusState) Root() *Domain                { return s.root }
func (s *CoeusState) LastSeenHeight() BlockHeight  { return s.lastSeenHeight }
func (s *CoeusState) GracePeriod() BlockHeight     { return s.gracePeriod }
func (s *CoeusState) Version() uint64              { return s.versionOfFirstUndo + uint64(len(s.undo)) }
func (s *CoeusState) Nonce(pk PublicKey) Nonce      { return s.nonces[pk.String()] }

func (s *CoeusState) GetTxnStatus(txid string) (TxnStatus, error) {
	st, ok := s.txnStatuses[txid]
	if !ok {
		return TxnStatus{}, notFoundf("no such transaction %q", txid)
	}
	return st, nil
}

// domain walks name from the root, failing if any edge is missing.
func (s *CoeusState) domain(name DomainName) (*Domain, error) {
	cur := s.root
	for _, edge := range name.Edges() {
		child, ok := cur.Child(edge)
		if !ok {
			return nil, notFoundf("no such domain %s", name)
		}
		cur = child
	}
	return cur, nil
}

// domainMut is domain's mutable counterpart; Domain is already
// reference-typed in Go, so the two are identical, kept as a separate name
// to mirror the teacher-language distinction at call sites.
func (s *CoeusState) domainMut(name DomainName) (*Domain, error) { return s.domain(name) }

// ResolveData walks name from the root, failing with KindExpired the
// moment any edge along the path is expired at lastSeenHeight. Grounded on
// original_source/coeus-core/src/state.rs's resolve_data.
func (s *CoeusState) ResolveData(name DomainName) (interface{}, error) {
	if err := s.ensureNotCorrupted(); err != nil {
		return nil, err
	}
	cur := s.root
	for _, edge := range name.Edges() {
		child, ok := cur.Child(edge)
		if !ok {
			return nil, notFoundf("edge %s was not found for domain %s", edge, name)
		}
		if child.IsExpiredAt(s.lastSeenHeight) {
			return nil, expiredf("edge %s in domain %s expired", edge, name)
		}
		cur = child
	}
	return cur.Data(), nil
}

// validateSubtreePolicies walks every prefix of name from the root down to
// and including name itself, applying each prefix's own SubtreePolicies
// against the (already inserted) target domain. Grounded on
// original_source/coeus-core/src/state.rs's validate_subtree_policies.
func (s *CoeusState) validateSubtreePolicies(name DomainName) error {
	target, err := s.domain(name)
	if err != nil {
		return err
	}
	policyDomain := s.root
	if err := policyDomain.SubtreePolicies().Validate(policyDomain.Name().Depth(), s.lastSeenHeight, target); err != nil {
		return err
	}
	for _, edge := range name.Edges() {
		child, ok := policyDomain.Child(edge)
		if !ok {
			return malformedf("implementation error: validating nonexistent domain data for %s", name)
		}
		policyDomain = child
		if err := policyDomain.SubtreePolicies().Validate(policyDomain.Name().Depth(), s.lastSeenHeight, target); err != nil {
			return err
		}
	}
	return nil
}

// StartBlock advances lastSeenHeight; it is the only path to change it.
// Grounded on original_source/coeus-core/src/state.rs's block_applying.
func (s *CoeusState) StartBlock(height BlockHeight) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	_, err := s.applyOperations([]Command{StartBlockOp{Height: height}})
	return err
}

// RevertBlock undoes the most recent StartBlock, requiring it to match the
// height currently recorded. Grounded on
// original_source/coeus-core/src/state.rs's block_reverted.
func (s *CoeusState) RevertBlock(height BlockHeight) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	before := s.lastSeenHeight
	return s.setCorruptedOnErr(func() error {
		if before != height {
			return conflictf("cannot revert block at height %d, state is currently at height %d", height, before)
		}
		if err := s.undoOperation(); err != nil {
			return err
		}
		if !(before > s.lastSeenHeight) {
			return conflictf("cannot revert block at height %d, the undone operation did not reduce the block height", height)
		}
		return nil
	})
}

func (s *CoeusState) setCorruptedOnErr(fn func() error) error {
	if err := fn(); err != nil {
		s.corrupted = true
		return err
	}
	return nil
}

// applyOperations executes cmds in order as one atomic unit: on any
// failure, already-executed undos are replayed in reverse and the error is
// returned with no net effect; on full success the undo entries are
// appended to the log. Grounded on
// original_source/coeus-core/src/state.rs's apply_operations.
func (s *CoeusState) applyOperations(cmds []Command) (uint64, error) {
	undos := make([]UndoEntry, 0, len(cmds))
	for _, cmd := range cmds {
		undo, err := cmd.Execute(s)
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				if rerr := undos[i].Execute(s); rerr != nil {
					s.corrupted = true
					return 0, rerr
				}
			}
			return 0, err
		}
		undos = append(undos, undo)
	}
	s.undo = append(s.undo, undos...)
	return s.Version(), nil
}

func (s *CoeusState) undoOperation() error {
	if len(s.undo) == 0 {
		return conflictf("cannot undo past version %d", s.versionOfFirstUndo)
	}
	last := s.undo[len(s.undo)-1]
	if err := last.Execute(s); err != nil {
		s.corrupted = true
		return err
	}
	s.undo = s.undo[:len(s.undo)-1]
	return nil
}

// undoOperations pops and reverses undo entries until Version() ==
// toVersion.
func (s *CoeusState) undoOperations(toVersion uint64) error {
	for s.Version() > toVersion {
		if err := s.undoOperation(); err != nil {
			return err
		}
	}
	return nil
}

// ApplySignedBundle verifies ops's signature, authorizes every inner
// operation against the signer, enforces the nonce, and applies the
// operations atomically. Grounded on
// original_source/coeus-core/src/state.rs's apply_signed_bundle /
// apply_nonced_bundle.
func (s *CoeusState) ApplySignedBundle(ops SignedBundle) (uint64, error) {
	if err := s.ensureNotCorrupted(); err != nil {
		return 0, err
	}
	if !ops.Verify() {
		return 0, signatureInvalidf("invalid signature or the operations were tampered with")
	}
	for _, op := range ops.Bundle.Operations {
		if err := op.ValidateAuth(s, ops.PublicKey); err != nil {
			return 0, err
		}
	}
	return s.applyNoncedBundle(ops.Bundle, ops.PublicKey)
}

func (s *CoeusState) applyNoncedBundle(bundle NoncedBundle, pk PublicKey) (uint64, error) {
	key := pk.String()
	old := s.nonces[key]
	if bundle.Nonce != old+1 {
		return 0, badNoncef("invalid nonce %d, expected %d", bundle.Nonce, old+1)
	}
	cmds := make([]Command, len(bundle.Operations))
	for i, op := range bundle.Operations {
		cmds[i] = op
	}
	version, err := s.applyOperations(cmds)
	if err != nil {
		return 0, err
	}
	s.nonces[key] = old + 1
	return version, nil
}

// ApplyTransaction applies a list of signed bundles in order, atomically
// per bundle; any bundle failure rolls back every earlier bundle of this
// transaction and records a failed TxnStatus. Grounded on
// original_source/coeus-core/src/state.rs's apply_transaction.
func (s *CoeusState) ApplyTransaction(txid string, bundles []SignedBundle) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	versionBeforeTxn := s.Version()
	for _, bundle := range bundles {
		if _, err := s.ApplySignedBundle(bundle); err != nil {
			if uerr := s.undoOperations(versionBeforeTxn); uerr != nil {
				return uerr
			}
			s.txnStatuses[txid] = TxnStatus{VersionBeforeTxn: versionBeforeTxn, Success: false}
			return err
		}
	}
	s.txnStatuses[txid] = TxnStatus{VersionBeforeTxn: versionBeforeTxn, Success: true}
	return nil
}

// RevertTransaction reverses exactly what a prior ApplyTransaction did,
// verifying the recorded operation count matches before popping undo
// entries. A count mismatch corrupts the state. Grounded on
// original_source/coeus-core/src/state.rs's revert_transaction.
func (s *CoeusState) RevertTransaction(txid string, bundles []SignedBundle) error {
	if err := s.ensureNotCorrupted(); err != nil {
		return err
	}
	return s.setCorruptedOnErr(func() error {
		status, ok := s.txnStatuses[txid]
		if !ok {
			return notFoundf("transaction %q has not been applied previously", txid)
		}
		delete(s.txnStatuses, txid)
		if !status.Success {
			// A failed transaction was already rolled back when applied.
			return nil
		}

		operationCount := 0
		for _, b := range bundles {
			operationCount += len(b.Bundle.Operations)
		}
		currentVersion := s.Version()
		if status.VersionBeforeTxn+uint64(operationCount) != currentVersion {
			return conflictf("number of operations in transaction %q do not match recorded history", txid)
		}
		return s.undoOperations(status.VersionBeforeTxn)
	})
}

// --- Command / AuthorizedCommand implementations ---

func (op StartBlockOp) Execute(s *CoeusState) (UndoEntry, error) {
	if op.Height <= s.lastSeenHeight {
		return UndoEntry{}, conflictf("start-block height %d does not exceed current height %d", op.Height, s.lastSeenHeight)
	}
	before := s.lastSeenHeight
	s.lastSeenHeight = op.Height
	return undoStartBlock(before), nil
}

// ValidateAuth authorizes the signer of a UserOperation against the
// domain(s) it touches. Register checks the parent's RegistrationPolicy;
// every other operation requires the signer to be the domain's current
// owner. Grounded on original_source/coeus-core/src/operations/register.rs's
// validate_auth and original_source/coeus-core/src/state.rs's
// validate_domain_owner.
func (op UserOperation) ValidateAuth(s *CoeusState, pk PublicKey) error {
	switch op.kind {
	case OpRegister:
		parentName, ok := op.name.Parent()
		if !ok {
			return malformedf("cannot register the root domain")
		}
		parent, err := s.domain(parentName)
		if err != nil {
			return err
		}
		if !parent.RegistrationPolicy().Authorizes(NewPublicKeyPrincipal(pk), parent.Owner()) {
			return unauthorizedf("only %s can register a child of %s", parent.RegistrationPolicy(), parent.Name())
		}
		return nil
	default:
		domain, err := s.domain(op.name)
		if err != nil {
			return err
		}
		return domain.Owner().ValidateImpersonation(pk)
	}
}

func (op UserOperation) Execute(s *CoeusState) (UndoEntry, error) {
	switch op.kind {
	case OpRegister:
		return op.executeRegister(s)
	case OpUpdate:
		return op.executeUpdate(s)
	case OpRenew:
		return op.executeRenew(s)
	case OpTransfer:
		return op.executeTransfer(s)
	case OpDelete:
		return op.executeDelete(s)
	default:
		return UndoEntry{}, malformedf("unknown operation kind")
	}
}

// executeRegister inserts (or replaces an expired-and-past-grace) domain
// under its parent, then validates subtree policies along the whole path;
// on failure it undoes the insertion itself and returns the error.
// Grounded on original_source/coeus-core/src/operations/register.rs.
func (op UserOperation) executeRegister(s *CoeusState) (UndoEntry, error) {
	parentName, ok := op.name.Parent()
	if !ok {
		return UndoEntry{}, malformedf("cannot register the root domain")
	}
	parent, err := s.domain(parentName)
	if err != nil {
		return UndoEntry{}, err
	}
	if op.owner.IsSystem() {
		return UndoEntry{}, unauthorizedf("cannot register system domains")
	}

	edge, _ := op.name.LastEdge()
	if existing, ok := parent.Child(edge); ok {
		if !existing.IsExpiredAt(s.lastSeenHeight) {
			return UndoEntry{}, conflictf("name %s is already taken", op.name)
		}
		if !existing.IsGracePeriodOverAt(s.lastSeenHeight, s.gracePeriod) {
			return UndoEntry{}, inGracef("expired domain %s is still in its grace period", op.name)
		}
	}

	child := NewDomain(op.name, op.owner, op.subtreePolicies, op.registrationPolicy, op.data, op.expiresAtHeight)
	old, err := parent.InsertOrReplaceChild(child)
	if err != nil {
		return UndoEntry{}, err
	}
	undo := undoRegister(op.name, old)

	if err := s.validateSubtreePolicies(op.name); err != nil {
		if uerr := undo.Execute(s); uerr != nil {
			s.corrupted = true
			return UndoEntry{}, uerr
		}
		return UndoEntry{}, err
	}
	return undo, nil
}

func (op UserOperation) executeUpdate(s *CoeusState) (UndoEntry, error) {
	domain, err := s.domain(op.name)
	if err != nil {
		return UndoEntry{}, err
	}
	previous := domain.Data()
	domain.SetData(op.data)
	if err := s.validateSubtreePolicies(op.name); err != nil {
		domain.SetData(previous)
		return UndoEntry{}, err
	}
	return undoUpdate(op.name, previous), nil
}

// executeRenew requires the new height to strictly extend the current
// expiresAtHeight, and rejects renewing a domain already past its grace
// period (spec.md §9's explicit Open Question resolution: rejected, not
// re-owned).
func (op UserOperation) executeRenew(s *CoeusState) (UndoEntry, error) {
	domain, err := s.domain(op.name)
	if err != nil {
		return UndoEntry{}, err
	}
	if domain.IsGracePeriodOverAt(s.lastSeenHeight, s.gracePeriod) {
		return UndoEntry{}, inGracef("domain %s is past grace, renew is rejected", op.name)
	}
	if op.expiresAtHeight <= domain.ExpiresAtHeight() {
		return UndoEntry{}, conflictf("renew must strictly extend expiresAtHeight (currently %d)", domain.ExpiresAtHeight())
	}
	previous := domain.ExpiresAtHeight()
	domain.SetExpiresAtHeight(op.expiresAtHeight)
	if err := s.validateSubtreePolicies(op.name); err != nil {
		domain.SetExpiresAtHeight(previous)
		return UndoEntry{}, err
	}
	return undoRenew(op.name, previous), nil
}

func (op UserOperation) executeTransfer(s *CoeusState) (UndoEntry, error) {
	domain, err := s.domain(op.name)
	if err != nil {
		return UndoEntry{}, err
	}
	if op.toOwner.IsSystem() {
		return UndoEntry{}, unauthorizedf("cannot transfer domain %s to the system principal", op.name)
	}
	previous := domain.Owner()
	domain.SetOwner(op.toOwner)
	return undoTransfer(op.name, previous), nil
}

func (op UserOperation) executeDelete(s *CoeusState) (UndoEntry, error) {
	parentName, ok := op.name.Parent()
	if !ok {
		return UndoEntry{}, malformedf("cannot delete the root domain")
	}
	parent, err := s.domain(parentName)
	if err != nil {
		return UndoEntry{}, err
	}
	edge, _ := op.name.LastEdge()
	removed, err := parent.RemoveChild(edge)
	if err != nil {
		return UndoEntry{}, err
	}
	return undoDelete(op.name, removed), nil
}
