package core

import "testing"

func TestParseDomainNameRoundTrip(t *testing.T) {
	n, err := ParseDomainName(".wallet.joe")
	if err != nil {
		t.Fatalf("ParseDomainName: %v", err)
	}
	if n.String() != ".wallet.joe" {
		t.Fatalf("expected round-tripped string \".wallet.joe\", got %q", n.String())
	}
	if n.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", n.Depth())
	}
}

func TestParseDomainNameRoot(t *testing.T) {
	n, err := ParseDomainName("")
	if err != nil {
		t.Fatalf("ParseDomainName(\"\"): %v", err)
	}
	if !n.IsRoot() {
		t.Fatalf("expected the empty string to parse as the root")
	}
}

func TestParseDomainNameRejectsNonAbsolute(t *testing.T) {
	if _, err := ParseDomainName("wallet.joe"); err == nil {
		t.Fatalf("expected a non-absolute domain name to be rejected")
	}
}

func TestNewEdgeRejectsInvalidCharacters(t *testing.T) {
	cases := []string{"", "Wallet", "wallet.joe", "wallet_joe", "wàllet"}
	for _, c := range cases {
		if _, err := NewEdge(c); err == nil {
			t.Fatalf("expected edge %q to be rejected", c)
		}
	}
}

func TestDomainNameParentAndLastEdge(t *testing.T) {
	n, err := ParseDomainName(".wallet.joe")
	if err != nil {
		t.Fatalf("ParseDomainName: %v", err)
	}
	last, ok := n.LastEdge()
	if !ok || last.String() != "joe" {
		t.Fatalf("expected last edge \"joe\", got %q ok=%v", last, ok)
	}
	parent, ok := n.Parent()
	if !ok || parent.String() != ".wallet" {
		t.Fatalf("expected parent \".wallet\", got %q ok=%v", parent.String(), ok)
	}

	root := RootDomainName()
	if _, ok := root.Parent(); ok {
		t.Fatalf("expected the root to have no parent")
	}
	if _, ok := root.LastEdge(); ok {
		t.Fatalf("expected the root to have no last edge")
	}
}

func TestDomainNameChild(t *testing.T) {
	root := RootDomainName()
	wallet := root.Child(Edge("wallet"))
	joe := wallet.Child(Edge("joe"))
	if joe.String() != ".wallet.joe" {
		t.Fatalf("expected \".wallet.joe\", got %q", joe.String())
	}
}

func TestRegistrationPolicyAuthorizes(t *testing.T) {
	owner := NewPublicKeyPrincipal(fakePPublicKey{id: "owner"})
	other := NewPublicKeyPrincipal(fakePPublicKey{id: "other"})
	sys := SystemPrincipal()

	if !RegistrationAny.Authorizes(other, owner) {
		t.Fatalf("expected RegistrationAny to authorize anyone")
	}
	if !RegistrationOwner.Authorizes(owner, owner) {
		t.Fatalf("expected RegistrationOwner to authorize the owner")
	}
	if RegistrationOwner.Authorizes(other, owner) {
		t.Fatalf("expected RegistrationOwner to reject a non-owner")
	}
	if !RegistrationSystem.Authorizes(sys, owner) {
		t.Fatalf("expected RegistrationSystem to authorize the system principal")
	}
	if RegistrationSystem.Authorizes(owner, owner) {
		t.Fatalf("expected RegistrationSystem to reject a non-system principal")
	}
}

func TestRegistrationPolicyJSONRoundTrip(t *testing.T) {
	for _, p := range []RegistrationPolicy{RegistrationAny, RegistrationOwner, RegistrationSystem} {
		data, err := p.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON: %v", err)
		}
		var got RegistrationPolicy
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON: %v", err)
		}
		if got != p {
			t.Fatalf("expected %v to round-trip through JSON, got %v", p, got)
		}
	}
}

func TestSubtreePoliciesValidateExpiration(t *testing.T) {
	p := NewSubtreePolicies().WithExpiration(100)
	if err := p.ValidateExpiration(50, 150); err != nil {
		t.Fatalf("expected an expiration exactly at the max distance to be accepted: %v", err)
	}
	if err := p.ValidateExpiration(50, 151); err == nil {
		t.Fatalf("expected an expiration beyond the max distance to be rejected")
	}
}

func TestSubtreePoliciesValidateDepth(t *testing.T) {
	p := NewSubtreePolicies().WithMaxSubtreeDepth(2)
	if err := p.ValidateDepth(2); err != nil {
		t.Fatalf("expected depth exactly at the max to be accepted: %v", err)
	}
	if err := p.ValidateDepth(3); err == nil {
		t.Fatalf("expected depth beyond the max to be rejected")
	}
}

func TestSubtreePoliciesValidateAgainstSchema(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
	}
	p := NewSubtreePolicies().WithSchema(schema)

	name, _ := ParseDomainName(".joe")
	if err := p.ValidateAgainstSchema(name, map[string]interface{}{"name": "joe"}); err != nil {
		t.Fatalf("expected matching data to validate: %v", err)
	}
	if err := p.ValidateAgainstSchema(name, map[string]interface{}{}); err == nil {
		t.Fatalf("expected data missing a required field to fail validation")
	}
}

func TestSubtreePoliciesValidateAgainstSchemaNoSchemaIsNoOp(t *testing.T) {
	p := NewSubtreePolicies()
	name, _ := ParseDomainName(".joe")
	if err := p.ValidateAgainstSchema(name, "anything"); err != nil {
		t.Fatalf("expected no-schema policy to accept any data: %v", err)
	}
}

func TestDomainIsExpiredAndGracePeriod(t *testing.T) {
	name, _ := ParseDomainName(".joe")
	d := NewDomain(name, SystemPrincipal(), NewSubtreePolicies(), RegistrationOwner, nil, 100)

	if d.IsExpiredAt(99) {
		t.Fatalf("expected the domain not to be expired before its expiry height")
	}
	if !d.IsExpiredAt(100) {
		t.Fatalf("expected the domain to be expired at its own expiry height")
	}
	if d.IsGracePeriodOverAt(150, 60) {
		t.Fatalf("expected the grace period not to be over before expiry+grace")
	}
	if !d.IsGracePeriodOverAt(160, 60) {
		t.Fatalf("expected the grace period to be over at exactly expiry+grace")
	}
}

func TestDomainChildInsertRemoveAndClone(t *testing.T) {
	rootName := RootDomainName()
	root := NewDomain(rootName, SystemPrincipal(), NewSubtreePolicies(), RegistrationOwner, nil, MaxBlockHeight)
	walletName := rootName.Child(Edge("wallet"))
	wallet := NewDomain(walletName, SystemPrincipal(), NewSubtreePolicies(), RegistrationOwner, map[string]interface{}{"k": "v"}, MaxBlockHeight)

	if _, err := root.InsertOrReplaceChild(wallet); err != nil {
		t.Fatalf("InsertOrReplaceChild: %v", err)
	}
	got, ok := root.Child(Edge("wallet"))
	if !ok || !got.Name().Equal(walletName) {
		t.Fatalf("expected to find the inserted child")
	}

	clone := root.Clone()
	clonedChild, ok := clone.Child(Edge("wallet"))
	if !ok {
		t.Fatalf("expected the clone to carry a copy of the child")
	}
	clonedChild.Data().(map[string]interface{})["k"] = "mutated"
	if wallet.Data().(map[string]interface{})["k"] != "v" {
		t.Fatalf("expected Clone to deep-copy a domain's JSON data, original was mutated")
	}

	removed, err := root.RemoveChild(Edge("wallet"))
	if err != nil || !removed.Name().Equal(walletName) {
		t.Fatalf("RemoveChild: %v", err)
	}
	if _, ok := root.Child(Edge("wallet")); ok {
		t.Fatalf("expected the child to be gone after RemoveChild")
	}
}

func TestNewRootDomainSeedsSchemaChild(t *testing.T) {
	root := NewRootDomain()
	if !root.Owner().IsSystem() {
		t.Fatalf("expected the root domain to be owned by the system principal")
	}
	schemaChild, ok := root.Child(Edge("schema"))
	if !ok {
		t.Fatalf("expected the root to have a pre-seeded \".schema\" child")
	}
	if !schemaChild.Owner().IsSystem() {
		t.Fatalf("expected the schema child to be owned by the system principal")
	}
}
