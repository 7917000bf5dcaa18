package core

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// BlockHeight is a non-negative 32-bit block height.
type BlockHeight uint32

// MaxBlockHeight is the sentinel "never expires" height used for the
// system-seeded root and .schema domains.
const MaxBlockHeight BlockHeight = 1<<32 - 1

// DefaultGracePeriod is the number of blocks after a domain expires during
// which nobody can re-register its name (~1 month at ~5 blocks/min). The
// domain's data does not resolve during this period; it is already expired.
// Grounded on original_source/coeus-core/src/domain.rs's
// GRACE_PERIOD_BLOCKS = 5*60*24*30. Kept as a named constant per spec.md's
// §9 open-question resolution so a host can override it without renaming.
const DefaultGracePeriod BlockHeight = 5 * 60 * 24 * 30

// Edge is one atomic, non-empty path component of a DomainName: lowercase
// ASCII letters and digits only, no dots. Grounded on
// original_source/coeus-proto/src/domain_name.rs's Edge.
type Edge string

// NewEdge validates and constructs an Edge.
func NewEdge(s string) (Edge, error) {
	if s == "" {
		return "", malformedf("edge name must not be empty")
	}
	for _, r := range s {
		if r > 127 {
			return "", malformedf("edge name %q must only contain ASCII characters", s)
		}
		if !isLowerAlnum(r) {
			return "", malformedf("edge name %q must contain only lowercase alphanumeric characters", s)
		}
	}
	return Edge(s), nil
}

func isLowerAlnum(r rune) bool {
	return ('a' <= r && r <= 'z') || ('0' <= r && r <= '9')
}

func (e Edge) String() string { return string(e) }

// DomainName is an ordered, absolute sequence of Edges rooted at the domain
// tree's synthetic root. Grounded on
// original_source/coeus-proto/src/domain_name.rs's DomainName.
type DomainName struct {
	edges []Edge
}

// RootDomainName is the empty, absolute name of the synthetic tree root.
func RootDomainName() DomainName { return DomainName{} }

// NewDomainName builds a DomainName from an already-validated edge sequence.
func NewDomainName(edges []Edge) DomainName {
	cp := make([]Edge, len(edges))
	copy(cp, edges)
	return DomainName{edges: cp}
}

// ParseDomainName parses the absolute ".a.b.c" string form. The root parses
// from the empty string.
func ParseDomainName(s string) (DomainName, error) {
	if s == "" {
		return RootDomainName(), nil
	}
	if !strings.HasPrefix(s, ".") {
		return DomainName{}, malformedf("domain name must be absolute and start with '.', got %q", s)
	}
	parts := strings.Split(s[1:], ".")
	edges := make([]Edge, 0, len(parts))
	for _, p := range parts {
		e, err := NewEdge(p)
		if err != nil {
			return DomainName{}, err
		}
		edges = append(edges, e)
	}
	return NewDomainName(edges), nil
}

func (n DomainName) Edges() []Edge { return n.edges }

func (n DomainName) IsRoot() bool { return len(n.edges) == 0 }

// Parent drops the last edge. Returns (name, false) for the root.
func (n DomainName) Parent() (DomainName, bool) {
	if n.IsRoot() {
		return DomainName{}, false
	}
	return NewDomainName(n.edges[:len(n.edges)-1]), true
}

// LastEdge returns the name's final edge. Returns (edge, false) for the
// root, which has none.
func (n DomainName) LastEdge() (Edge, bool) {
	if n.IsRoot() {
		return "", false
	}
	return n.edges[len(n.edges)-1], true
}

// Child returns the DomainName of edge directly beneath n.
func (n DomainName) Child(edge Edge) DomainName {
	edges := make([]Edge, len(n.edges)+1)
	copy(edges, n.edges)
	edges[len(n.edges)] = edge
	return NewDomainName(edges)
}

// Depth is the number of edges from the root to n.
func (n DomainName) Depth() int { return len(n.edges) }

func (n DomainName) String() string {
	if n.IsRoot() {
		return ""
	}
	var b strings.Builder
	for _, e := range n.edges {
		b.WriteByte('.')
		b.WriteString(string(e))
	}
	return b.String()
}

func (n DomainName) Equal(other DomainName) bool { return n.String() == other.String() }

// Price is a non-negative fee amount.
type Price uint64

// Schema is a JSON Schema draft-6 document, stored as decoded JSON.
type Schema = interface{}

// RegistrationPolicy controls who may register a direct child under a
// domain. Grounded on original_source/coeus-core/src/state.rs's usage
// (RegistrationPolicy::Owner, ::Any) and domain.rs's ".wallet.joe" fixture,
// which shows Default::default() rendering as "owner" on the wire — the
// RegistrationPolicy type itself was not present in the retrieved source,
// so its three-value shape is taken from spec.md §3 plus these usage
// sites. The Go zero value of this type is RegistrationAny, not
// RegistrationOwner.
type RegistrationPolicy int

const (
	RegistrationAny RegistrationPolicy = iota
	RegistrationOwner
	RegistrationSystem
)

func (p RegistrationPolicy) String() string {
	switch p {
	case RegistrationAny:
		return "any"
	case RegistrationOwner:
		return "owner"
	case RegistrationSystem:
		return "system"
	default:
		return "unknown"
	}
}

func (p RegistrationPolicy) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *RegistrationPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "any":
		*p = RegistrationAny
	case "owner":
		*p = RegistrationOwner
	case "system":
		*p = RegistrationSystem
	default:
		return malformedf("unknown registration policy %q", s)
	}
	return nil
}

// Authorizes reports whether signer may register a direct child of a domain
// carrying this policy, given that domain's owner.
func (p RegistrationPolicy) Authorizes(signer Principal, parentOwner Principal) bool {
	switch p {
	case RegistrationAny:
		return true
	case RegistrationOwner:
		return signer.Equal(parentOwner)
	case RegistrationSystem:
		return signer.IsSystem()
	default:
		return false
	}
}

// SubtreePolicies constrains every descendant of the domain it is attached
// to: an optional schema new data must validate against, an optional
// maximum block-height distance a child's expiresAtHeight may sit from the
// current height, and an optional maximum subtree depth. Absent fields
// serialize as missing and an empty policy set serializes as "{}". Like
// RegistrationPolicy, this type's field set is taken from spec.md §3 (no
// struct definition was found in the retrieved original_source/ pack —
// only call sites such as state.rs's SubtreePolicies::new().with_schema(...)
// / .with_expiration(...) builder chain).
type SubtreePolicies struct {
	Schema          Schema       `json:"schema,omitempty"`
	Expiration      *BlockHeight `json:"expiration,omitempty"`
	MaxSubtreeDepth *int         `json:"maxSubtreeDepth,omitempty"`
}

func NewSubtreePolicies() SubtreePolicies { return SubtreePolicies{} }

func (p SubtreePolicies) WithSchema(schema Schema) SubtreePolicies {
	p.Schema = schema
	return p
}

func (p SubtreePolicies) WithExpiration(maxDistance BlockHeight) SubtreePolicies {
	p.Expiration = &maxDistance
	return p
}

func (p SubtreePolicies) WithMaxSubtreeDepth(depth int) SubtreePolicies {
	p.MaxSubtreeDepth = &depth
	return p
}

// ExpirationPolicy collects the named block-height distances spec.md and
// the original source use as SubtreePolicies.expiration values. YEAR
// approximates one calendar year at ~5 blocks/minute (5*60*24*365),
// matching original_source/coeus-core/src/state.rs's ExpirationPolicy::YEAR
// usage (its own definition wasn't retrieved either).
const ExpirationPolicyYear BlockHeight = 5 * 60 * 24 * 365

//go:embed schema/draft-06.json
var draft6SchemaBytes []byte

var draft6Schema Schema

func init() {
	if err := json.Unmarshal(draft6SchemaBytes, &draft6Schema); err != nil {
		panic("core: embedded draft-6 schema is invalid JSON: " + err.Error())
	}
}

// Domain is one node of the domain tree: name, owner, children addressed by
// edge, the policies it imposes on its own children, its own data payload
// and expiration height. Grounded on original_source/coeus-core/src/domain.rs.
type Domain struct {
	name               DomainName
	owner              Principal
	children           map[Edge]*Domain
	subtreePolicies    SubtreePolicies
	registrationPolicy RegistrationPolicy
	data               interface{}
	expiresAtHeight    BlockHeight
}

// NewDomain constructs a leaf domain with no children.
func NewDomain(name DomainName, owner Principal, subtreePolicies SubtreePolicies, registrationPolicy RegistrationPolicy, data interface{}, expiresAtHeight BlockHeight) *Domain {
	return &Domain{
		name:               name,
		owner:              owner,
		children:           map[Edge]*Domain{},
		subtreePolicies:    subtreePolicies,
		registrationPolicy: registrationPolicy,
		data:               data,
		expiresAtHeight:    expiresAtHeight,
	}
}

func (d *Domain) Name() DomainName                   { return d.name }
func (d *Domain) Owner() Principal                   { return d.owner }
func (d *Domain) SetOwner(owner Principal)            { d.owner = owner }
func (d *Domain) Data() interface{}                  { return d.data }
func (d *Domain) SetData(data interface{})           { d.data = data }
func (d *Domain) ExpiresAtHeight() BlockHeight       { return d.expiresAtHeight }
func (d *Domain) SetExpiresAtHeight(h BlockHeight)   { d.expiresAtHeight = h }
func (d *Domain) SubtreePolicies() SubtreePolicies    { return d.subtreePolicies }
func (d *Domain) RegistrationPolicy() RegistrationPolicy { return d.registrationPolicy }

func (d *Domain) Child(edge Edge) (*Domain, bool) {
	c, ok := d.children[edge]
	return c, ok
}

func (d *Domain) ChildEdges() []Edge {
	out := make([]Edge, 0, len(d.children))
	for e := range d.children {
		out = append(out, e)
	}
	return out
}

// InsertOrReplaceChild inserts domain as a direct child, keyed by its own
// last edge, returning whatever domain previously occupied that edge (if
// any). domain must not be the root.
func (d *Domain) InsertOrReplaceChild(domain *Domain) (*Domain, error) {
	edge, ok := domain.name.LastEdge()
	if !ok {
		return nil, malformedf("attempt to insert root node as a child entry")
	}
	old := d.children[edge]
	d.children[edge] = domain
	return old, nil
}

// RemoveChild deletes and returns the child at edge.
func (d *Domain) RemoveChild(edge Edge) (*Domain, error) {
	child, ok := d.children[edge]
	if !ok {
		return nil, notFoundf("no such child domain %q", edge)
	}
	delete(d.children, edge)
	return child, nil
}

// IsExpiredAt reports whether d has expired as of height.
func (d *Domain) IsExpiredAt(height BlockHeight) bool { return d.expiresAtHeight <= height }

// IsGracePeriodOverAt reports whether d's grace period has elapsed as of
// height. Overridable grace period lives on the caller (CoeusState); this
// method accepts it explicitly rather than hard-coding DefaultGracePeriod.
func (d *Domain) IsGracePeriodOverAt(height BlockHeight, grace BlockHeight) bool {
	return d.expiresAtHeight+grace <= height
}

// Clone deep-copies d and its entire subtree, used to snapshot the tree for
// undo/rollback at transaction granularity.
func (d *Domain) Clone() *Domain {
	cp := &Domain{
		name:               d.name,
		owner:              d.owner,
		children:           make(map[Edge]*Domain, len(d.children)),
		subtreePolicies:    d.subtreePolicies,
		registrationPolicy: d.registrationPolicy,
		data:               cloneJSONValue(d.data),
		expiresAtHeight:    d.expiresAtHeight,
	}
	for e, c := range d.children {
		cp.children[e] = c.Clone()
	}
	return cp
}

func cloneJSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(t))
		for k, val := range t {
			cp[k] = cloneJSONValue(val)
		}
		return cp
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, val := range t {
			cp[i] = cloneJSONValue(val)
		}
		return cp
	default:
		return v
	}
}

// ValidateAgainstSchema validates data against the policy's schema, if any,
// using draft-6 semantics. Grounded on
// original_source/coeus-core/src/domain.rs's json_schema_draft6 comment
// ("Valico supports Json Schema Draft 6"); gojsonschema is the draft-6
// capable validator wired in from the rest of the example pack (no suitable
// validator exists in the teacher's own dependency graph).
//
// Two distinct failure modes are reported separately, matching
// original_source/coeus-core/src/state.rs's schema_validation test: a
// schema that itself fails to compile ("has invalid schema") versus data
// that fails to satisfy an otherwise-valid schema ("data does not match
// schema of ...").
func (p SubtreePolicies) ValidateAgainstSchema(name DomainName, data interface{}) error {
	if p.Schema == nil {
		return nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(p.Schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return policyViolationf("domain %s has invalid schema", name)
	}
	if !result.Valid() {
		return policyViolationf("domain %s data does not match schema of %s", name, name)
	}
	return nil
}

// ValidateExpiration checks that a child's expiresAtHeight sits no further
// than p.Expiration blocks beyond currentHeight.
func (p SubtreePolicies) ValidateExpiration(currentHeight, childExpiresAtHeight BlockHeight) error {
	if p.Expiration == nil {
		return nil
	}
	if childExpiresAtHeight > currentHeight+*p.Expiration {
		return policyViolationf("expiresAtHeight %d exceeds the subtree's maximum distance of %d blocks from height %d", childExpiresAtHeight, *p.Expiration, currentHeight)
	}
	return nil
}

// ValidateDepth checks that depth (measured from the domain carrying this
// policy) does not exceed p.MaxSubtreeDepth.
func (p SubtreePolicies) ValidateDepth(depth int) error {
	if p.MaxSubtreeDepth == nil {
		return nil
	}
	if depth > *p.MaxSubtreeDepth {
		return policyViolationf("subtree depth %d exceeds the configured maximum of %d", depth, *p.MaxSubtreeDepth)
	}
	return nil
}

// Validate runs all three subtree policy checks a single policy-bearing
// ancestor imposes on target: schema (against target's data), expiration
// (target's expiresAtHeight relative to currentHeight) and max subtree
// depth (target's distance below the domain carrying this policy).
// Grounded on original_source/coeus-core/src/domain.rs's
// validate_subtree_policies / original_source/coeus-core/src/state.rs's
// validate_subtree_policies walk (root through the target inclusive).
func (p SubtreePolicies) Validate(policyDepth int, currentHeight BlockHeight, target *Domain) error {
	if err := p.ValidateAgainstSchema(target.Name(), target.Data()); err != nil {
		return err
	}
	if err := p.ValidateExpiration(currentHeight, target.ExpiresAtHeight()); err != nil {
		return err
	}
	if err := p.ValidateDepth(target.Name().Depth() - policyDepth); err != nil {
		return err
	}
	return nil
}

// NewRootDomain builds the synthetic root of the domain tree: name "",
// owned by System, with a pre-seeded ".schema" child (also owned by
// System) whose subtree schema policy is the embedded draft-6 meta-schema,
// used to validate any schema-typed field registered anywhere in the tree.
// Grounded on original_source/coeus-core/src/domain.rs's new_root().
func NewRootDomain() *Domain {
	schemaDomain := NewDomain(
		RootDomainName().Child("schema"),
		SystemPrincipal(),
		NewSubtreePolicies().WithSchema(draft6Schema),
		RegistrationAny,
		map[string]interface{}{},
		MaxBlockHeight,
	)
	root := NewDomain(
		RootDomainName(),
		SystemPrincipal(),
		NewSubtreePolicies().WithExpiration(2*ExpirationPolicyYear),
		RegistrationOwner,
		map[string]interface{}{},
		MaxBlockHeight,
	)
	if _, err := root.InsertOrReplaceChild(schemaDomain); err != nil {
		panic("core: failed to seed root domain: " + err.Error())
	}
	return root
}
