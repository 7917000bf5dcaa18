package core

// Nonce is a per-PublicKey monotonically increasing replay counter. The
// zero value means "no operations accepted yet"; the first accepted
// signed bundle must carry nonce 1.
type Nonce uint64

// Command is anything CoeusState can execute and later undo. Grounded on
// original_source/coeus-core/src/operations/mod.rs's Command trait.
type Command interface {
	Execute(s *CoeusState) (UndoEntry, error)
}

// AuthorizedCommand additionally knows how to check that pk is allowed to
// perform it against the current state, before execution. Grounded on
// original_source/coeus-core/src/operations/mod.rs's AuthorizedCommand
// trait.
type AuthorizedCommand interface {
	Command
	ValidateAuth(s *CoeusState, pk PublicKey) error
}

// OperationKind tags the five user-signed Coeus operations.
type OperationKind int

const (
	OpRegister OperationKind = iota
	OpUpdate
	OpRenew
	OpTransfer
	OpDelete
)

func (k OperationKind) String() string {
	switch k {
	case OpRegister:
		return "register"
	case OpUpdate:
		return "update"
	case OpRenew:
		return "renew"
	case OpTransfer:
		return "transfer"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// UserOperation is one of Register/Update/Renew/Transfer/Delete, carrying
// only the fields its kind uses. Grounded on
// original_source/coeus-core/src/operations/mod.rs's UserOperation enum
// and coeus-proto/src/operations.rs's wire shape.
type UserOperation struct {
	kind               OperationKind
	name               DomainName
	owner              Principal
	subtreePolicies    SubtreePolicies
	registrationPolicy RegistrationPolicy
	data               interface{}
	expiresAtHeight    BlockHeight
	toOwner            Principal
}

func RegisterOp(name DomainName, owner Principal, subtreePolicies SubtreePolicies, registrationPolicy RegistrationPolicy, data interface{}, expiresAtHeight BlockHeight) UserOperation {
	return UserOperation{
		kind:               OpRegister,
		name:               name,
		owner:              owner,
		subtreePolicies:    subtreePolicies,
		registrationPolicy: registrationPolicy,
		data:               data,
		expiresAtHeight:    expiresAtHeight,
	}
}

func UpdateOp(name DomainName, data interface{}) UserOperation {
	return UserOperation{kind: OpUpdate, name: name, data: data}
}

func RenewOp(name DomainName, expiresAtHeight BlockHeight) UserOperation {
	return UserOperation{kind: OpRenew, name: name, expiresAtHeight: expiresAtHeight}
}

func TransferOp(name DomainName, toOwner Principal) UserOperation {
	return UserOperation{kind: OpTransfer, name: name, toOwner: toOwner}
}

func DeleteOp(name DomainName) UserOperation {
	return UserOperation{kind: OpDelete, name: name}
}

func (op UserOperation) Kind() OperationKind { return op.kind }
func (op UserOperation) Name() DomainName    { return op.name }

// Price returns the fixed fee for op's kind. Grounded on
// original_source/coeus-core/src/operations/mod.rs's Priced impl for
// UserOperation (Register > Renew > Transfer > Update > Delete). The core
// exposes this for callers to sum; it does not enforce or deduct it.
func (op UserOperation) Price() Price {
	switch op.kind {
	case OpRegister:
		return 100_000_000
	case OpRenew:
		return 50_000_000
	case OpTransfer:
		return 25_000_000
	case OpUpdate:
		return 10_000_000
	case OpDelete:
		return 1_000_000
	default:
		return 0
	}
}

// toJSONValue renders op the way it is signed over: a plain JSON value
// with a "type" discriminator and camelCase fields, matching spec.md §6's
// UserOperation wire format. Used only to build the canonical bytes a
// signature covers, never for persistence.
func (op UserOperation) toJSONValue() interface{} {
	switch op.kind {
	case OpRegister:
		return map[string]interface{}{
			"type":               "register",
			"name":               op.name.String(),
			"owner":              op.owner.String(),
			"subtreePolicies":    subtreePoliciesJSONValue(op.subtreePolicies),
			"registrationPolicy": op.registrationPolicy.String(),
			"data":               op.data,
			"expiresAtHeight":    uint32(op.expiresAtHeight),
		}
	case OpUpdate:
		return map[string]interface{}{
			"type": "update",
			"name": op.name.String(),
			"data": op.data,
		}
	case OpRenew:
		return map[string]interface{}{
			"type":            "renew",
			"name":            op.name.String(),
			"expiresAtHeight": uint32(op.expiresAtHeight),
		}
	case OpTransfer:
		return map[string]interface{}{
			"type":    "transfer",
			"name":    op.name.String(),
			"toOwner": op.toOwner.String(),
		}
	case OpDelete:
		return map[string]interface{}{
			"type": "delete",
			"name": op.name.String(),
		}
	default:
		return map[string]interface{}{}
	}
}

func subtreePoliciesJSONValue(p SubtreePolicies) interface{} {
	v := map[string]interface{}{}
	if p.Schema != nil {
		v["schema"] = p.Schema
	}
	if p.Expiration != nil {
		v["expiration"] = uint32(*p.Expiration)
	}
	if p.MaxSubtreeDepth != nil {
		v["maxSubtreeDepth"] = *p.MaxSubtreeDepth
	}
	return v
}

// NoncedBundle is an ordered list of UserOperations together with the
// replay nonce they must be accepted under.
type NoncedBundle struct {
	Operations []UserOperation
	Nonce      Nonce
}

func (b NoncedBundle) toJSONValue() interface{} {
	ops := make([]interface{}, len(b.Operations))
	for i, op := range b.Operations {
		ops[i] = op.toJSONValue()
	}
	return map[string]interface{}{
		"operations": ops,
		"nonce":      uint64(b.Nonce),
	}
}

// Bytes returns the exact bytes a SignedBundle's signature must cover:
// the canonical JSON of {operations, nonce}. Grounded on
// original_source/coeus-core/src/signed.rs's
// NoncedOperations::serialize, which signs canonical_json(self) directly
// rather than its digest.
func (b NoncedBundle) Bytes() ([]byte, error) {
	s, err := Canonical(b.toJSONValue())
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// SignedBundle is a NoncedBundle together with the signature of the
// public key that produced it.
type SignedBundle struct {
	Bundle    NoncedBundle
	PublicKey PublicKey
	Signature Signature
}

// Verify checks the signature over the bundle's canonical bytes.
func (b SignedBundle) Verify() bool {
	data, err := b.Bundle.Bytes()
	if err != nil {
		return false
	}
	return b.PublicKey.Verify(data, b.Signature)
}

// StartBlockOp is the sole system operation: it advances CoeusState's
// lastSeenHeight. It is never user-signed (spec.md §4.6).
type StartBlockOp struct {
	Height BlockHeight
}
