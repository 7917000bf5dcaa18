// Package core implements the SSI state-transition layer: canonical JSON
// digesting, signed envelopes, the DID-document state machine (Morpheus) and
// the Coeus naming-system state machine.
package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the taxonomy every public mutator commits to.
// Callers should branch on Kind (via errors.Is against the Err* sentinels
// below, or As against a *KindError) rather than matching error strings.
type Kind int

const (
	// KindMalformed covers structural/encoding errors: bad names, bad
	// base-encoding, non-NFKD keys.
	KindMalformed Kind = iota
	// KindNotFound covers a missing domain, DID key entry or txn id.
	KindNotFound
	// KindUnauthorized covers a wrong signer, system impersonation, or a
	// registration-policy mismatch.
	KindUnauthorized
	// KindConflict covers a duplicate key, name-taken, duplicate before-proof
	// or duplicate right state.
	KindConflict
	// KindBadNonce covers a nonce that isn't exactly expected+1.
	KindBadNonce
	// KindExpired covers an expiration failure.
	KindExpired
	// KindInGrace covers a grace-period failure.
	KindInGrace
	// KindPolicyViolation covers a schema mismatch, expiration-policy
	// mismatch, or exceeded depth.
	KindPolicyViolation
	// KindSignatureInvalid covers signature verification failure. Never
	// reclassified as KindUnauthorized (spec requirement).
	KindSignatureInvalid
	// KindStateCorrupt is sticky: once set, every subsequent public mutator
	// on that state must fail with it until explicit operator intervention.
	KindStateCorrupt
	// KindImplementationBug marks a violated invariant. Reserved for panics
	// in tests; never expected to surface in production use.
	KindImplementationBug
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindBadNonce:
		return "bad_nonce"
	case KindExpired:
		return "expired"
	case KindInGrace:
		return "in_grace"
	case KindPolicyViolation:
		return "policy_violation"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindStateCorrupt:
		return "state_corrupt"
	case KindImplementationBug:
		return "implementation_bug"
	default:
		return "unknown"
	}
}

// KindError pairs a Kind with a message, supporting both errors.Is (against
// the package sentinels) and plain %v/%s formatting.
type KindError struct {
	Kind Kind
	Msg  string
}

func (e *KindError) Error() string { return e.Msg }

// Is lets errors.Is(err, ErrNotFound) work without per-call allocation of a
// matching sentinel: KindError.Is compares Kind against the target sentinel's
// own Kind when the target is also a *KindError.
func (e *KindError) Is(target error) bool {
	var ke *KindError
	if errors.As(target, &ke) {
		return e.Kind == ke.Kind
	}
	return false
}

func newErr(k Kind, format string, args ...interface{}) error {
	return &KindError{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Sentinels usable with errors.Is. Each carries only a generic message for
// its Kind; they exist as Kind-matching targets, mirroring the teacher's per-file
// `var ErrX = errors.New(...)` convention generalized with a Kind.
var (
	ErrMalformed        = &KindError{Kind: KindMalformed, Msg: "malformed input"}
	ErrNotFound         = &KindError{Kind: KindNotFound, Msg: "not found"}
	ErrUnauthorized     = &KindError{Kind: KindUnauthorized, Msg: "unauthorized"}
	ErrConflict         = &KindError{Kind: KindConflict, Msg: "conflict"}
	ErrBadNonce         = &KindError{Kind: KindBadNonce, Msg: "bad nonce"}
	ErrExpired          = &KindError{Kind: KindExpired, Msg: "expired"}
	ErrInGrace          = &KindError{Kind: KindInGrace, Msg: "in grace period"}
	ErrPolicyViolation  = &KindError{Kind: KindPolicyViolation, Msg: "policy violation"}
	ErrSignatureInvalid = &KindError{Kind: KindSignatureInvalid, Msg: "invalid signature"}
	ErrStateCorrupt     = &KindError{Kind: KindStateCorrupt, Msg: "state is corrupt"}
	ErrImplementationBug = &KindError{Kind: KindImplementationBug, Msg: "implementation invariant violated"}
)

func malformedf(format string, args ...interface{}) error  { return newErr(KindMalformed, format, args...) }
func notFoundf(format string, args ...interface{}) error    { return newErr(KindNotFound, format, args...) }
func unauthorizedf(format string, args ...interface{}) error {
	return newErr(KindUnauthorized, format, args...)
}
func conflictf(format string, args ...interface{}) error { return newErr(KindConflict, format, args...) }
func badNoncef(format string, args ...interface{}) error { return newErr(KindBadNonce, format, args...) }
func expiredf(format string, args ...interface{}) error  { return newErr(KindExpired, format, args...) }
func inGracef(format string, args ...interface{}) error  { return newErr(KindInGrace, format, args...) }
func policyViolationf(format string, args ...interface{}) error {
	return newErr(KindPolicyViolation, format, args...)
}
func stateCorruptf(format string, args ...interface{}) error {
	return newErr(KindStateCorrupt, format, args...)
}
func signatureInvalidf(format string, args ...interface{}) error {
	return newErr(KindSignatureInvalid, format, args...)
}
