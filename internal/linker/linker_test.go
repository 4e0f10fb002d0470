package linker_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/folder"
	"github.com/gatewaykit/gwbundle/internal/linker"
)

const wirePolicy = `<?xml version="1.0" encoding="UTF-8"?>
<wsp:Policy xmlns:L7p="http://www.layer7tech.com/ws/policy" xmlns:wsp="http://schemas.xmlsoap.org/ws/2002/12/policy">
    <wsp:All wsp:Usage="Required">
        <L7p:SetVariable>
            <L7p:Base64Expression stringValue="aGVsbG8="/>
            <L7p:VariableToSet stringValue="greeting"/>
        </L7p:SetVariable>
        <L7p:Include>
            <L7p:PolicyGuid stringValue="8e3c2e4a-helper"/>
        </L7p:Include>
        <L7p:Encapsulated>
            <L7p:EncapsulatedAssertionConfigGuid stringValue="1f0d-lookup"/>
            <L7p:EncapsulatedAssertionConfigName stringValue="Lookup"/>
        </L7p:Encapsulated>
        <L7p:Authentication>
            <L7p:IdentityProviderOid goidValue="00000000000000000000000000000111"/>
        </L7p:Authentication>
        <L7p:Authentication>
            <L7p:IdentityProviderOid goidValue="0000000000000000fffffffffffffffe"/>
        </L7p:Authentication>
        <L7p:HardcodedResponse>
            <L7p:Base64ResponseBody stringValue="eyJzdGF0dXMiOiJvayJ9"/>
        </L7p:HardcodedResponse>
    </wsp:All>
</wsp:Policy>`

const simplePolicy = `<?xml version="1.0" encoding="UTF-8"?>
<wsp:Policy xmlns:L7p="http://www.layer7tech.com/ws/policy" xmlns:wsp="http://schemas.xmlsoap.org/ws/2002/12/policy">
    <wsp:All wsp:Usage="Required">
        <L7p:SetVariable>
            <L7p:Expression><![CDATA[hello]]></L7p:Expression>
            <L7p:VariableToSet stringValue="greeting"/>
        </L7p:SetVariable>
        <L7p:Include>
            <L7p:PolicyPath stringValue="lib/helper"/>
        </L7p:Include>
        <L7p:Encapsulated>
            <L7p:EncassPath stringValue="lib/lookup_¯impl"/>
        </L7p:Encapsulated>
        <L7p:Authentication>
            <L7p:IdentityProviderName stringValue="corp ldap"/>
        </L7p:Authentication>
        <L7p:Authentication>
            <L7p:IdentityProviderName stringValue="Internal Identity Provider"/>
        </L7p:Authentication>
        <L7p:HardcodedResponse>
            <L7p:ResponseBody><![CDATA[{"status":"ok"}]]></L7p:ResponseBody>
        </L7p:HardcodedResponse>
    </wsp:All>
</wsp:Policy>`

func fixture(t *testing.T) *entity.Bundle {
	t.Helper()

	b := entity.NewBundle("")
	for _, e := range []*entity.Entity{
		{Kind: entity.KindFolder, ID: entity.RootFolderID, Name: entity.RootFolderName},
		{Kind: entity.KindFolder, ID: "f1", FolderID: entity.RootFolderID, Name: "lib"},
		{Kind: entity.KindPolicy, ID: "p1", FolderID: "f1", GUID: "8e3c2e4a-helper", Name: "helper", Policy: "<wsp:Policy/>"},
		{Kind: entity.KindPolicy, ID: "p2", FolderID: "f1", GUID: "77aa-lookup-impl", Name: "lookup/impl", Policy: "<wsp:Policy/>"},
		{Kind: entity.KindEncapsulatedAssertion, ID: "e1", GUID: "1f0d-lookup", Name: "Lookup", Fields: map[string]any{"policyId": "p2"}},
		{Kind: entity.KindIdentityProvider, ID: "00000000000000000000000000000111", Name: "corp ldap"},
	} {
		if err := b.Add(e); err != nil {
			t.Fatal(err)
		}
	}

	tree, err := folder.Build(b.Folders())
	if err != nil {
		t.Fatal(err)
	}
	b.Tree = tree
	return b
}

func newLinker(t *testing.T, bundles ...*entity.Bundle) *linker.Linker {
	t.Helper()
	ix, err := linker.NewIndex(bundles...)
	if err != nil {
		t.Fatal(err)
	}
	return linker.New(ix)
}

func TestSimplify(t *testing.T) {
	l := newLinker(t, fixture(t))

	got, warnings, err := l.Simplify(wirePolicy)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if diff := cmp.Diff(simplePolicy, got); diff != "" {
		t.Fatal("unexpected simplified policy (-want,+got):", diff)
	}
}

func TestRestoreIsInverse(t *testing.T) {
	const (
		pre  = `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p">`
		post = `</wsp:All>`
	)

	tests := []struct {
		note     string
		policy   string
		warnings int
	}{
		{
			note:   "all fragments",
			policy: wirePolicy,
		},
		{
			note:     "crlf line endings are kept encoded",
			policy:   pre + `<L7p:SetVariable><L7p:Base64Expression stringValue="bGluZTENCmxpbmUy"/></L7p:SetVariable>` + post,
			warnings: 1,
		},
		{
			note:     "trailing carriage return is kept encoded",
			policy:   pre + `<L7p:HardcodedResponse><L7p:Base64ResponseBody stringValue="dGFpbA0="/></L7p:HardcodedResponse>` + post,
			warnings: 1,
		},
		{
			note:     "control character is kept encoded",
			policy:   pre + `<L7p:SetVariable><L7p:Base64Expression stringValue="YmVsbAFjaGFy"/></L7p:SetVariable>` + post,
			warnings: 1,
		},
		{
			note:   "encass without name",
			policy: pre + `<L7p:Encapsulated><L7p:EncapsulatedAssertionConfigGuid stringValue="1f0d-lookup"/></L7p:Encapsulated>` + post,
		},
		{
			note:   "encass with name",
			policy: pre + `<L7p:Encapsulated><L7p:EncapsulatedAssertionConfigGuid stringValue="1f0d-lookup"/><L7p:EncapsulatedAssertionConfigName stringValue="Lookup"/></L7p:Encapsulated>` + post,
		},
	}

	l := newLinker(t, fixture(t))

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			simple, warnings, err := l.Simplify(tc.policy)
			if err != nil {
				t.Fatal(err)
			}
			if len(warnings) != tc.warnings {
				t.Fatalf("expected %d simplify warnings, got %v", tc.warnings, warnings)
			}

			got, warnings, err := l.Restore(simple)
			if err != nil {
				t.Fatal(err)
			}
			if len(warnings) != 0 {
				t.Fatalf("unexpected warnings: %v", warnings)
			}
			if diff := cmp.Diff(tc.policy, got); diff != "" {
				t.Fatal("restore(simplify(x)) != x (-want,+got):", diff)
			}
		})
	}
}

func TestSimplifyEncassWithoutName(t *testing.T) {
	l := newLinker(t, fixture(t))
	in := `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p"><L7p:Encapsulated><L7p:EncapsulatedAssertionConfigGuid stringValue="1f0d-lookup"/></L7p:Encapsulated></wsp:All>`

	got, _, err := l.Simplify(in)
	if err != nil {
		t.Fatal(err)
	}
	exp := `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p"><L7p:Encapsulated><L7p:EncassPath stringValue="lib/lookup_¯impl" omitName="true"/></L7p:Encapsulated></wsp:All>`
	if got != exp {
		t.Fatalf("unexpected simplified policy:\n%s", got)
	}

	// Hand written paths get the name added.
	restored, _, err := l.Restore(`<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p"><L7p:Encapsulated><L7p:EncassPath stringValue="lib/lookup_¯impl"/></L7p:Encapsulated></wsp:All>`)
	if err != nil {
		t.Fatal(err)
	}
	exp = `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p"><L7p:Encapsulated><L7p:EncapsulatedAssertionConfigGuid stringValue="1f0d-lookup"/><L7p:EncapsulatedAssertionConfigName stringValue="Lookup"/></L7p:Encapsulated></wsp:All>`
	if restored != exp {
		t.Fatalf("unexpected restored policy:\n%s", restored)
	}
}

func TestSetVariableHello(t *testing.T) {
	const in = `<L7p:SetVariable xmlns:L7p="http://www.layer7tech.com/ws/policy"><L7p:Base64Expression stringValue="aGVsbG8="/></L7p:SetVariable>`
	l := newLinker(t)

	// SetVariable is the document root here, so wrap it.
	wrapped := `<wsp:All xmlns:wsp="http://schemas.xmlsoap.org/ws/2002/12/policy">` + in + `</wsp:All>`

	simple, _, err := l.Simplify(wrapped)
	if err != nil {
		t.Fatal(err)
	}
	exp := `<wsp:All xmlns:wsp="http://schemas.xmlsoap.org/ws/2002/12/policy"><L7p:SetVariable xmlns:L7p="http://www.layer7tech.com/ws/policy"><L7p:Expression><![CDATA[hello]]></L7p:Expression></L7p:SetVariable></wsp:All>`
	if simple != exp {
		t.Fatalf("unexpected simplified policy:\n%s", simple)
	}

	restored, _, err := l.Restore(simple)
	if err != nil {
		t.Fatal(err)
	}
	if restored != wrapped {
		t.Fatalf("restore is not byte identical:\n%s", restored)
	}
}

func TestRestorePlainText(t *testing.T) {
	l := newLinker(t)
	in := `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p"><L7p:SetVariable><L7p:Expression>a &amp; b</L7p:Expression></L7p:SetVariable></wsp:All>`

	got, _, err := l.Restore(in)
	if err != nil {
		t.Fatal(err)
	}
	exp := `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p"><L7p:SetVariable><L7p:Base64Expression stringValue="YSAmIGI="/></L7p:SetVariable></wsp:All>`
	if got != exp {
		t.Fatalf("unexpected restored policy:\n%s", got)
	}
}

func TestUnresolvedReferencesAreKept(t *testing.T) {
	l := newLinker(t, fixture(t))
	in := `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p"><L7p:Include><L7p:PolicyGuid stringValue="unknown"/></L7p:Include><L7p:Encapsulated><L7p:EncassPath stringValue="nowhere"/></L7p:Encapsulated></wsp:All>`

	got, warnings, err := l.Simplify(in)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Fatalf("expected policy untouched, got:\n%s", got)
	}
	if len(warnings) != 1 || warnings[0].Ref != "unknown" {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	got, warnings, err = l.Restore(in)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Fatalf("expected policy untouched, got:\n%s", got)
	}
	if len(warnings) != 1 || warnings[0].Ref != "nowhere" {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestSimplifyRejectsMalformed(t *testing.T) {
	l := newLinker(t)
	if _, _, err := l.Simplify("<wsp:All>"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFields(t *testing.T) {
	b := fixture(t)
	l := newLinker(t, b)

	ea, _ := b.Get(entity.KindEncapsulatedAssertion, "e1")
	simple, warnings := l.SimplifyFields(ea)
	if len(warnings) != 0 {
		t.Fatal(warnings)
	}
	if diff := cmp.Diff(map[string]any{"policy": "lib/lookup_¯impl"}, simple.Fields); diff != "" {
		t.Fatal("unexpected fields (-want,+got):", diff)
	}
	if ea.StringField("policyId") != "p2" {
		t.Fatal("SimplifyFields modified its input")
	}

	restored, warnings := l.RestoreFields(simple)
	if len(warnings) != 0 {
		t.Fatal(warnings)
	}
	if diff := cmp.Diff(ea.Fields, restored.Fields); diff != "" {
		t.Fatal("unexpected fields (-want,+got):", diff)
	}

	// other kinds pass through
	p, _ := b.Get(entity.KindPolicy, "p1")
	if out, _ := l.SimplifyFields(p); out != p {
		t.Fatal("expected policy to pass through")
	}
}

func TestSimplifyBundle(t *testing.T) {
	b := fixture(t)
	if err := b.Add(&entity.Entity{Kind: entity.KindPolicy, ID: "p3", FolderID: "f1", Name: "main", Policy: wirePolicy}); err != nil {
		t.Fatal(err)
	}
	l := newLinker(t, b)

	if _, err := l.SimplifyBundle(b); err != nil {
		t.Fatal(err)
	}
	p, _ := b.Get(entity.KindPolicy, "p3")
	if p.Policy != simplePolicy {
		t.Fatalf("policy not simplified:\n%s", p.Policy)
	}
	ea, _ := b.Get(entity.KindEncapsulatedAssertion, "e1")
	if ea.StringField("policy") != "lib/lookup_¯impl" {
		t.Fatalf("encass not simplified: %v", ea.Fields)
	}

	if _, err := l.RestoreBundle(b); err != nil {
		t.Fatal(err)
	}
	p, _ = b.Get(entity.KindPolicy, "p3")
	if p.Policy != wirePolicy {
		t.Fatalf("policy not restored:\n%s", p.Policy)
	}
}

func TestReferences(t *testing.T) {
	withSecrets := `<wsp:All xmlns:wsp="urn:wsp" xmlns:L7p="urn:l7p">
		<L7p:SetVariable><L7p:Base64Expression stringValue="QmVhcmVyICR7c2VjcGFzcy5hcGkta2V5LnBsYWludGV4dH0gb24gJHtnYXRld2F5LnJlZ2lvbn0="/></L7p:SetVariable>
		<L7p:JdbcQuery><L7p:ConnectionName stringValue="orders"/></L7p:JdbcQuery>
		<L7p:HttpRoutingAssertion><L7p:Login stringValue="${secpass.backend.plaintext}"/></L7p:HttpRoutingAssertion>
	</wsp:All>`

	cases := []struct {
		note   string
		policy string
		exp    []linker.Reference
	}{
		{
			note:   "wire form",
			policy: wirePolicy,
			exp: []linker.Reference{
				{Kind: entity.KindPolicy, GUID: "8e3c2e4a-helper"},
				{Kind: entity.KindEncapsulatedAssertion, GUID: "1f0d-lookup"},
				{Kind: entity.KindIdentityProvider, ID: "00000000000000000000000000000111"},
			},
		},
		{
			note:   "simplified form",
			policy: simplePolicy,
			exp: []linker.Reference{
				{Kind: entity.KindPolicy, Path: "lib/helper"},
				{Kind: entity.KindEncapsulatedAssertion, Path: "lib/lookup_¯impl"},
				{Kind: entity.KindIdentityProvider, Name: "corp ldap"},
			},
		},
		{
			note:   "variables",
			policy: withSecrets,
			exp: []linker.Reference{
				{Kind: entity.KindJDBCConnection, Name: "orders"},
				{Kind: entity.KindSecurePassword, Name: "backend"},
				{Kind: entity.KindSecurePassword, Name: "api-key"},
				{Kind: entity.KindClusterProperty, Name: "region"},
			},
		},
		{
			note: "empty",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			got, err := linker.References(tc.policy)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Fatal("unexpected references (-want,+got):", diff)
			}
		})
	}
}

func TestIndexResolve(t *testing.T) {
	local := fixture(t)
	dep := entity.NewBundle("dep.bundle")
	if err := dep.Add(&entity.Entity{Kind: entity.KindIdentityProvider, ID: "other", Name: "corp ldap"}); err != nil {
		t.Fatal(err)
	}

	ix, err := linker.NewIndex(local, dep)
	if err != nil {
		t.Fatal(err)
	}

	for _, ref := range []linker.Reference{
		{Kind: entity.KindPolicy, GUID: "8e3c2e4a-helper"},
		{Kind: entity.KindPolicy, Path: "lib/helper"},
		{Kind: entity.KindEncapsulatedAssertion, GUID: "1f0d-lookup"},
		{Kind: entity.KindEncapsulatedAssertion, Path: "lib/lookup_¯impl"},
		{Kind: entity.KindIdentityProvider, Name: "corp ldap"},
	} {
		hit, ok := ix.Resolve(ref)
		if !ok {
			t.Fatalf("%v did not resolve", ref)
		}
		if hit.Bundle != local {
			t.Fatalf("%v resolved to the dependency bundle", ref)
		}
	}

	if _, ok := ix.Resolve(linker.Reference{Kind: entity.KindPolicy, Path: "lib/missing"}); ok {
		t.Fatal("expected no match")
	}
}
