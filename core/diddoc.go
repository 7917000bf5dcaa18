package core

import "strconv"

// Right is a capability a key entry can hold over time: updating the DID
// document itself, or impersonating the DID (signing on its behalf).
type Right int

const (
	RightUpdate Right = iota
	RightImpersonation
)

func (r Right) String() string {
	switch r {
	case RightUpdate:
		return "update"
	case RightImpersonation:
		return "impersonate"
	default:
		return "unknown"
	}
}

// allRights enumerates Right for building the rights map of a fresh key
// entry and for walking every right of a DID document view.
var allRights = [...]Right{RightUpdate, RightImpersonation}

func systemRights(valid bool) map[Right]TimeSeries {
	state := NewTimeSeries(valid)
	return map[Right]TimeSeries{
		RightUpdate:        state,
		RightImpersonation: state,
	}
}

func minOfSomes(vals ...*BlockHeight) *BlockHeight {
	var min *BlockHeight
	for _, v := range vals {
		if v == nil {
			continue
		}
		if min == nil || *v < *min {
			min = v
		}
	}
	return min
}

// isHeightInRangeExcUntil reports fromInc <= height < untilExc, treating a
// nil bound as unbounded on that side.
func isHeightInRangeExcUntil(height BlockHeight, fromInc, untilExc *BlockHeight) bool {
	if fromInc != nil && height < *fromInc {
		return false
	}
	if untilExc != nil && height >= *untilExc {
		return false
	}
	return true
}

// keyEntry is one historical key registration within a DidDocState. The
// same Authentication may appear in multiple entries over the DID's
// lifetime (added, revoked, re-added); lastByAuth always resolves to the
// most recent one.
//
// Grounded on original_source/morpheus-node/src/docs.rs's KeyEntry.
type keyEntry struct {
	auth           Authentication
	addedAtHeight  *BlockHeight
	expiresAtHeight *BlockHeight
	revokedAt      *BlockHeight
	rights         map[Right]TimeSeries
}

func (k *keyEntry) validUntil(tombstonedAtHeight *BlockHeight) *BlockHeight {
	return minOfSomes(k.expiresAtHeight, k.revokedAt, tombstonedAtHeight)
}

func (k *keyEntry) isValidAt(tombstonedAtHeight *BlockHeight, height BlockHeight) bool {
	return isHeightInRangeExcUntil(height, k.addedAtHeight, k.validUntil(tombstonedAtHeight))
}

// DidDocOpKind tags the five mutations a DidDocState accepts.
type DidDocOpKind int

const (
	OpAddKey DidDocOpKind = iota
	OpRevokeKey
	OpAddRight
	OpRevokeRight
	OpTombstoneDid
)

// DidDocOp is the tagged union of DidDocState mutations, mirroring
// original_source/morpheus-node's SignableOperationDetails enum.
type DidDocOp struct {
	Kind            DidDocOpKind
	Auth            Authentication
	ExpiresAtHeight *BlockHeight
	Right           Right
}

func AddKeyOp(auth Authentication, expiresAtHeight *BlockHeight) DidDocOp {
	return DidDocOp{Kind: OpAddKey, Auth: auth, ExpiresAtHeight: expiresAtHeight}
}

func RevokeKeyOp(auth Authentication) DidDocOp {
	return DidDocOp{Kind: OpRevokeKey, Auth: auth}
}

func AddRightOp(auth Authentication, right Right) DidDocOp {
	return DidDocOp{Kind: OpAddRight, Auth: auth, Right: right}
}

func RevokeRightOp(auth Authentication, right Right) DidDocOp {
	return DidDocOp{Kind: OpRevokeRight, Auth: auth, Right: right}
}

func TombstoneDidOp() DidDocOp { return DidDocOp{Kind: OpTombstoneDid} }

// DidDocState is the append-only per-DID history of key entries and their
// right time series. Apply/Revert are exact inverses of each other.
//
// Grounded on original_source/morpheus-node/src/docs.rs's DidDocumentState.
type DidDocState struct {
	keyEntries         []*keyEntry
	tombstonedAtHeight *BlockHeight
}

// NewDidDocState creates the implicit document state for a freshly observed
// DID: one key entry for defaultKeyID, valid from birth (no added height)
// with both rights already granted.
func NewDidDocState(defaultKeyID KeyId) *DidDocState {
	return &DidDocState{
		keyEntries: []*keyEntry{{
			auth:   NewAuthenticationByKeyId(defaultKeyID),
			rights: systemRights(true),
		}},
	}
}

// Clone returns a deep copy, used by MorpheusState.clone when entering the
// try-then-commit path of ApplyTransaction.
func (s *DidDocState) Clone() *DidDocState {
	out := &DidDocState{tombstonedAtHeight: s.tombstonedAtHeight}
	out.keyEntries = make([]*keyEntry, len(s.keyEntries))
	for i, k := range s.keyEntries {
		rights := make(map[Right]TimeSeries, len(k.rights))
		for r, h := range k.rights {
			rights[r] = h.Clone()
		}
		out.keyEntries[i] = &keyEntry{
			auth:            k.auth,
			addedAtHeight:   k.addedAtHeight,
			expiresAtHeight: k.expiresAtHeight,
			revokedAt:       k.revokedAt,
			rights:          rights,
		}
	}
	return out
}

func (s *DidDocState) lastByAuth(auth Authentication) *keyEntry {
	for i := len(s.keyEntries) - 1; i >= 0; i-- {
		if s.keyEntries[i].auth.Equal(auth) {
			return s.keyEntries[i]
		}
	}
	return nil
}

func (s *DidDocState) rightHistory(did Did, height BlockHeight, auth Authentication, right Right) (*TimeSeries, error) {
	entry := s.lastByAuth(auth)
	if entry == nil {
		return nil, notFoundf("DID %s has no key matching %s", did, auth)
	}
	if !entry.isValidAt(s.tombstonedAtHeight, height) {
		return nil, conflictf("key matching %s of DID %s is invalid at height %d", auth, did, height)
	}
	history, ok := entry.rights[right]
	if !ok {
		return nil, conflictf("key matching %s of DID %s has no right history of right %s", auth, did, right)
	}
	return &history, nil
}

func (s *DidDocState) ensureMinHeight(height BlockHeight) error {
	if height <= 1 {
		return malformedf("keys cannot be added before height 2")
	}
	return nil
}

func (s *DidDocState) ensureNotTombstoned() error {
	if s.tombstonedAtHeight != nil {
		return conflictf("DID is tombstoned at height %d, cannot be updated anymore", *s.tombstonedAtHeight)
	}
	return nil
}

func ensureDifferentAuth(signer, auth Authentication) error {
	if signer.Equal(auth) {
		return unauthorizedf("%s cannot modify its own authorization (as %s)", signer, auth)
	}
	return nil
}

// Apply mutates the state according to op, as authorized by signer.
func (s *DidDocState) Apply(did Did, height BlockHeight, signer Authentication, op DidDocOp) error {
	switch op.Kind {
	case OpAddKey:
		if err := s.ensureMinHeight(height); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		if existing := s.lastByAuth(op.Auth); existing != nil && existing.isValidAt(nil, height) {
			return conflictf("DID %s already has a still valid key matching %s", did, op.Auth)
		}
		h := height
		s.keyEntries = append(s.keyEntries, &keyEntry{
			auth:            op.Auth,
			rights:          systemRights(false),
			addedAtHeight:   &h,
			expiresAtHeight: op.ExpiresAtHeight,
		})
		return nil

	case OpRevokeKey:
		if err := ensureDifferentAuth(signer, op.Auth); err != nil {
			return err
		}
		if err := s.ensureMinHeight(height); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		existing := s.lastByAuth(op.Auth)
		if existing == nil {
			return notFoundf("DID %s does not have a key matching %s", did, op.Auth)
		}
		if !existing.isValidAt(nil, height) {
			return conflictf("DID %s has a key matching %s, but it's already invalidated", did, op.Auth)
		}
		if existing.revokedAt != nil {
			return conflictf("key matching %s in DID %s was already revoked", op.Auth, did)
		}
		h := height
		existing.revokedAt = &h
		return nil

	case OpAddRight:
		if err := ensureDifferentAuth(signer, op.Auth); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		history, err := s.rightHistory(did, height, op.Auth, op.Right)
		if err != nil {
			return err
		}
		if err := history.Apply(height, true); err != nil {
			return err
		}
		s.setRightHistory(op.Auth, op.Right, *history)
		return nil

	case OpRevokeRight:
		if err := ensureDifferentAuth(signer, op.Auth); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		history, err := s.rightHistory(did, height, op.Auth, op.Right)
		if err != nil {
			return err
		}
		if err := history.Apply(height, false); err != nil {
			return err
		}
		s.setRightHistory(op.Auth, op.Right, *history)
		return nil

	case OpTombstoneDid:
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		h := height
		s.tombstonedAtHeight = &h
		return nil

	default:
		return malformedf("unknown DidDocOp kind %d", op.Kind)
	}
}

func (s *DidDocState) setRightHistory(auth Authentication, right Right, history TimeSeries) {
	entry := s.lastByAuth(auth)
	if entry == nil {
		return
	}
	entry.rights[right] = history
}

// Revert undoes exactly the mutation Apply(did, height, signer, op) made.
func (s *DidDocState) Revert(did Did, height BlockHeight, signer Authentication, op DidDocOp) error {
	switch op.Kind {
	case OpAddKey:
		if err := s.ensureMinHeight(height); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		if len(s.keyEntries) == 0 {
			return conflictf("cannot revert addKey in DID %s, because there are no keys", did)
		}
		last := s.keyEntries[len(s.keyEntries)-1]
		if !last.auth.Equal(op.Auth) {
			return conflictf("cannot revert addKey in DID %s, because the key does not match the last added one", did)
		}
		if last.addedAtHeight == nil || *last.addedAtHeight != height {
			return conflictf("cannot revert addKey in DID %s, because it was not added at the specified height", did)
		}
		if !blockHeightPtrEqual(last.expiresAtHeight, op.ExpiresAtHeight) {
			return conflictf("cannot revert addKey in DID %s, because it was not added with the same expiration", did)
		}
		s.keyEntries = s.keyEntries[:len(s.keyEntries)-1]
		return nil

	case OpRevokeKey:
		if err := ensureDifferentAuth(signer, op.Auth); err != nil {
			return err
		}
		if err := s.ensureMinHeight(height); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		existing := s.lastByAuth(op.Auth)
		if existing == nil {
			return notFoundf("cannot revert revokeKey in DID %s because it does not have a key matching %s", did, op.Auth)
		}
		if existing.revokedAt == nil {
			return conflictf("cannot revert revokeKey in DID %s because key matching %s was not revoked", did, op.Auth)
		}
		existing.revokedAt = nil
		if !existing.isValidAt(nil, height) {
			return conflictf("failed to revert revokeKey in DID %s for key matching %s: still invalid after reverted revoking", did, op.Auth)
		}
		return nil

	case OpAddRight:
		if err := ensureDifferentAuth(signer, op.Auth); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		history, err := s.rightHistory(did, height, op.Auth, op.Right)
		if err != nil {
			return err
		}
		if err := history.Revert(height, true); err != nil {
			return err
		}
		s.setRightHistory(op.Auth, op.Right, *history)
		return nil

	case OpRevokeRight:
		if err := ensureDifferentAuth(signer, op.Auth); err != nil {
			return err
		}
		if err := s.ensureNotTombstoned(); err != nil {
			return err
		}
		history, err := s.rightHistory(did, height, op.Auth, op.Right)
		if err != nil {
			return err
		}
		if err := history.Revert(height, false); err != nil {
			return err
		}
		s.setRightHistory(op.Auth, op.Right, *history)
		return nil

	case OpTombstoneDid:
		if s.tombstonedAtHeight == nil {
			return conflictf("failed to revert tombstoning DID %s: it was not tombstoned yet", did)
		}
		s.tombstonedAtHeight = nil
		return nil

	default:
		return malformedf("unknown DidDocOp kind %d", op.Kind)
	}
}

func blockHeightPtrEqual(a, b *BlockHeight) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// KeyData is one entry of a point-in-time DidDocument view.
type KeyData struct {
	Authentication  Authentication
	ValidFromHeight *BlockHeight
	ValidUntilHeight *BlockHeight
	Valid           bool
}

// KeyRightHistoryItem is one recorded change of a right's validity.
type KeyRightHistoryItem struct {
	Height *BlockHeight
	Valid  bool
}

// KeyRightHistory is the full history of one key's standing for one right.
type KeyRightHistory struct {
	KeyLink string
	History []KeyRightHistoryItem
	Valid   bool
}

// DidDocument is the derived, point-in-time view of a DidDocState: exactly
// what a SignedEnvelope validates against.
//
// Grounded on original_source/morpheus-core/src/data/diddoc.rs's
// DidDocument.
type DidDocument struct {
	Did              Did
	Keys             []KeyData
	Rights           map[Right][]KeyRightHistory
	TombstonedAtHeight *BlockHeight
	Tombstoned       bool
	QueriedAtHeight  BlockHeight
}

// AtHeight builds the DidDocument view of s as of height.
func (s *DidDocState) AtHeight(did Did, height BlockHeight) *DidDocument {
	var keysAtHeight []*keyEntry
	for _, k := range s.keyEntries {
		if k.addedAtHeight == nil || *k.addedAtHeight <= height {
			keysAtHeight = append(keysAtHeight, k)
		}
	}

	keys := make([]KeyData, len(keysAtHeight))
	for i, k := range keysAtHeight {
		keys[i] = KeyData{
			Authentication:   k.auth,
			ValidFromHeight:  k.addedAtHeight,
			ValidUntilHeight: k.validUntil(s.tombstonedAtHeight),
			Valid:            k.isValidAt(s.tombstonedAtHeight, height),
		}
	}

	rights := make(map[Right][]KeyRightHistory, len(allRights))
	for _, r := range allRights {
		histories := make([]KeyRightHistory, len(keysAtHeight))
		for i, k := range keysAtHeight {
			histories[i] = keyRightHistoryFor(k, i, height, r)
		}
		rights[r] = histories
	}

	return &DidDocument{
		Did:                did,
		Keys:               keys,
		Rights:             rights,
		TombstonedAtHeight: s.tombstonedAtHeight,
		Tombstoned:         s.tombstonedAtHeight != nil,
		QueriedAtHeight:    height,
	}
}

func keyRightHistoryFor(k *keyEntry, idx int, height BlockHeight, right Right) KeyRightHistory {
	var items []KeyRightHistoryItem
	valid := false
	if history, ok := k.rights[right]; ok {
		for _, e := range history.History() {
			items = append(items, KeyRightHistoryItem{Height: e.Height, Valid: e.Value})
		}
		valid = history.At(height)
	}
	return KeyRightHistory{
		KeyLink: keyLink(idx),
		History: items,
		Valid:   valid,
	}
}

func keyLink(idx int) string {
	return "#" + strconv.Itoa(idx)
}

// HasRightAt reports whether auth currently holds right at height, per
// original_source/morpheus-core/src/data/diddoc.rs's has_right_at.
func (d *DidDocument) HasRightAt(auth Authentication, right Right, height BlockHeight) (bool, error) {
	if d.QueriedAtHeight < height {
		return false, malformedf("queried future height %d, present is %d", height, d.QueriedAtHeight)
	}
	if d.TombstonedAtHeight != nil && *d.TombstonedAtHeight <= height {
		return false, nil
	}
	for i, k := range d.Keys {
		if !k.Authentication.Equal(auth) {
			continue
		}
		if k.ValidFromHeight != nil && *k.ValidFromHeight > height {
			continue
		}
		if k.ValidUntilHeight != nil && *k.ValidUntilHeight <= height {
			continue
		}
		for _, h := range d.Rights[right] {
			if h.KeyLink == keyLink(i) {
				return rightTrueAt(h, height), nil
			}
		}
	}
	return false, nil
}

func rightTrueAt(h KeyRightHistory, height BlockHeight) bool {
	valid := false
	for _, item := range h.History {
		itemHeight := BlockHeight(0)
		if item.Height != nil {
			itemHeight = *item.Height
		}
		if itemHeight <= height {
			valid = item.Valid
		}
	}
	return valid
}

// IsTombstonedAt reports whether the DID was tombstoned at or before height.
func (d *DidDocument) IsTombstonedAt(height BlockHeight) (bool, error) {
	if d.QueriedAtHeight < height {
		return false, malformedf("queried future height %d, present is %d", height, d.QueriedAtHeight)
	}
	if d.TombstonedAtHeight == nil {
		return false, nil
	}
	return *d.TombstonedAtHeight <= height, nil
}

func isBetween(height, afterExc, untilExc BlockHeight) bool {
	from := afterExc + 1
	return isHeightInRangeExcUntil(height, &from, &untilExc)
}

// ValidateRight builds the detailed ValidationResult describing whether
// auth held right throughout [from, until). Used by SignedEnvelope's
// validateWithDidDoc.
//
// Grounded on original_source/morpheus-core/src/data/diddoc.rs's
// validate_right.
func (d *DidDocument) ValidateRight(auth Authentication, right Right, from, until BlockHeight) (*ValidationResult, error) {
	if from < 1 {
		return nil, malformedf("range must not predate genesis block")
	}
	if from >= until {
		return nil, malformedf("invalid block range %d-%d", from, until)
	}
	if d.QueriedAtHeight < until {
		return nil, malformedf("queried future height %d, present is %d", until, d.QueriedAtHeight)
	}

	result := &ValidationResult{}

	tombstonedBefore, _ := d.IsTombstonedAt(from)
	if tombstonedBefore {
		result.addIssue(SeverityError, "DID was tombstoned before given period")
	}
	if d.TombstonedAtHeight != nil && isBetween(*d.TombstonedAtHeight, from, until) {
		result.addIssue(SeverityWarning, "DID was tombstoned during given period")
	}

	histories, ok := d.Rights[right]
	if !ok || len(histories) == 0 {
		result.addIssue(SeverityError, "right was never granted to given authentication")
		return result, nil
	}

	var matched *KeyRightHistory
	var matchedKey *KeyData
	for i := range d.Keys {
		if !d.Keys[i].Authentication.Equal(auth) {
			continue
		}
		for j := range histories {
			if histories[j].KeyLink == keyLink(i) {
				matched = &histories[j]
				matchedKey = &d.Keys[i]
				break
			}
		}
		if matched != nil {
			break
		}
	}
	if matched == nil {
		result.addIssue(SeverityError, "no matching authentication found in DID")
		return result, nil
	}

	if matchedKey.ValidFromHeight != nil {
		if until < *matchedKey.ValidFromHeight {
			result.addIssue(SeverityError, "key was enabled only after given period")
		}
		if isBetween(*matchedKey.ValidFromHeight, from, until) {
			result.addIssue(SeverityWarning, "key was enabled during given period")
		}
	}
	if matchedKey.ValidUntilHeight != nil {
		if *matchedKey.ValidUntilHeight < from {
			result.addIssue(SeverityError, "key expired before given period")
		}
		if isBetween(*matchedKey.ValidUntilHeight, from, until) {
			result.addIssue(SeverityWarning, "key expired during given period")
		}
	}

	var changesInRange bool
	for _, item := range matched.History {
		h := BlockHeight(0)
		if item.Height != nil {
			h = *item.Height
		}
		if isBetween(h, from, until) {
			changesInRange = true
			break
		}
	}
	if changesInRange {
		result.addIssue(SeverityWarning, "required right changed during given period")
	} else if !rightTrueAt(*matched, from) {
		result.addIssue(SeverityError, "required right was never granted for key")
	}

	return result, nil
}
