package core

// Severity classifies a ValidationIssue. An Error always makes the overall
// ValidationResult invalid; a Warning only downgrades it to maybeValid.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// ValidationStatus is the overall verdict of a ValidationResult.
type ValidationStatus int

const (
	StatusValid ValidationStatus = iota
	StatusMaybeValid
	StatusInvalid
)

func (s ValidationStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusMaybeValid:
		return "maybeValid"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Issue is one reason a ValidationResult might not be fully valid.
type Issue struct {
	Severity Severity
	Reason   string
}

// ValidationResult accumulates issues found while checking a signature
// against a DidDocument. Grounded on
// original_source/morpheus-core/src/data/validation.rs's ValidationResult
// (status derived from the worst issue present).
type ValidationResult struct {
	Issues []Issue
}

func (r *ValidationResult) addIssue(severity Severity, reason string) {
	r.Issues = append(r.Issues, Issue{Severity: severity, Reason: reason})
}

// Status reports invalid if any Error issue is present, maybeValid if only
// Warnings are present, else valid.
func (r *ValidationResult) Status() ValidationStatus {
	hasError := false
	hasWarning := false
	for _, i := range r.Issues {
		switch i.Severity {
		case SeverityError:
			hasError = true
		case SeverityWarning:
			hasWarning = true
		}
	}
	switch {
	case hasError:
		return StatusInvalid
	case hasWarning:
		return StatusMaybeValid
	default:
		return StatusValid
	}
}

// Signable is content a SignedEnvelope can wrap: anything that can produce
// the exact bytes a signature was computed over. The default for JSON
// content is its digest, matching
// original_source/morpheus-core/src/crypto/sign.rs's Signable trait default
// impl (content_to_sign = content_id, i.e. the content's digest).
type Signable interface {
	ContentToSign() ([]byte, error)
}

// JSONContent adapts a decoded JSON value (map[string]interface{},
// []interface{} or string) to Signable by digesting it.
type JSONContent struct {
	Value interface{}
}

func (c JSONContent) ContentToSign() ([]byte, error) {
	d, err := Digest(c.Value)
	if err != nil {
		return nil, err
	}
	return []byte(d), nil
}

// RawBytes adapts an already-encoded byte string to Signable by signing it
// verbatim, matching sign.rs's Signable impl for Vec<u8>/Box<[u8]>.
type RawBytes []byte

func (b RawBytes) ContentToSign() ([]byte, error) { return []byte(b), nil }

// SignedEnvelope binds a public key, content and signature together, with
// an optional anti-replay nonce. Grounded on
// original_source/morpheus-core/src/crypto/sign.rs's Signed<T>.
type SignedEnvelope struct {
	PublicKey PublicKey
	Content   Signable
	Signature Signature
	Nonce     string
}

// Validate checks the signature over Content.ContentToSign() alone.
func (e *SignedEnvelope) Validate() (bool, error) {
	data, err := e.Content.ContentToSign()
	if err != nil {
		return false, err
	}
	return e.PublicKey.Verify(data, e.Signature), nil
}

// ValidateWithKeyId additionally requires the envelope's public key to
// derive exactly the expected key id.
func (e *SignedEnvelope) ValidateWithKeyId(expected KeyId) (bool, error) {
	valid, err := e.Validate()
	if err != nil {
		return false, err
	}
	return valid && e.PublicKey.ValidatesId(expected), nil
}

// ValidateWithDidDoc checks the envelope's signer held Right impersonation
// (rather than a caller-supplied right — callers that need a different
// right call DidDocument.ValidateRight directly) throughout [from, until)
// against onBehalfOf, and folds in an invalid-signature issue. from
// defaults to 1 (genesis) and until defaults to the document's queried
// height when nil.
//
// Grounded on original_source/morpheus-core/src/crypto/sign.rs's
// validate_with_did_doc.
func (e *SignedEnvelope) ValidateWithDidDoc(onBehalfOf *DidDocument, from, until *BlockHeight) (*ValidationResult, error) {
	fromHeight := BlockHeight(1)
	if from != nil {
		fromHeight = *from
	}
	untilHeight := onBehalfOf.QueriedAtHeight
	if until != nil {
		untilHeight = *until
	}

	auth := NewAuthenticationByPublicKey(e.PublicKey)
	result, err := onBehalfOf.ValidateRight(auth, RightImpersonation, fromHeight, untilHeight)
	if err != nil {
		return nil, err
	}

	valid, err := e.Validate()
	if err != nil {
		return nil, err
	}
	if !valid {
		result.addIssue(SeverityError, "signature is invalid")
	}
	return result, nil
}
