package linker

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/beevik/etree"

	"github.com/gatewaykit/gwbundle/internal/entity"
)

// Reference is a pointer from a policy to another entity. Exactly one of ID,
// GUID, Path and Name is set, depending on how the policy spells it.
type Reference struct {
	Kind entity.Kind
	ID   string
	GUID string
	Path string
	Name string
}

func (r Reference) String() string {
	switch {
	case r.ID != "":
		return fmt.Sprintf("%s id %s", r.Kind, r.ID)
	case r.GUID != "":
		return fmt.Sprintf("%s guid %s", r.Kind, r.GUID)
	case r.Path != "":
		return fmt.Sprintf("%s path %s", r.Kind, r.Path)
	}
	return fmt.Sprintf("%s %q", r.Kind, r.Name)
}

var (
	securePasswordRef  = regexp.MustCompile(`\$\{secpass\.([^.}\s]+)\.plaintext\}`)
	clusterPropertyRef = regexp.MustCompile(`\$\{gateway\.([^}\s]+)\}`)
)

// References returns the entities referenced from a policy, in document
// order and without duplicates. Both the wire and the simplified spelling of
// each reference are recognized. Context variable references inside base64
// encoded expressions are found as well.
func References(policy string) ([]Reference, error) {
	if strings.TrimSpace(policy) == "" {
		return nil, nil
	}

	doc, err := parse(policy)
	if err != nil {
		return nil, err
	}

	var refs []Reference
	add := func(r Reference) {
		if !slices.Contains(refs, r) {
			refs = append(refs, r)
		}
	}
	text := []string{policy}

	for parent, el := range elements(doc) {
		switch parent.Tag + "/" + el.Tag {
		case "Include/PolicyGuid":
			add(Reference{Kind: entity.KindPolicy, GUID: el.SelectAttrValue(valueAttr, "")})
		case "Include/PolicyPath":
			add(Reference{Kind: entity.KindPolicy, Path: el.SelectAttrValue(valueAttr, "")})
		case "Encapsulated/EncapsulatedAssertionConfigGuid":
			add(Reference{Kind: entity.KindEncapsulatedAssertion, GUID: el.SelectAttrValue(valueAttr, "")})
		case "Encapsulated/EncassPath":
			add(Reference{Kind: entity.KindEncapsulatedAssertion, Path: el.SelectAttrValue(valueAttr, "")})
		case "Authentication/IdentityProviderOid":
			if id := el.SelectAttrValue(goidAttr, ""); id != entity.InternalIdentityProviderID {
				add(Reference{Kind: entity.KindIdentityProvider, ID: id})
			}
		case "Authentication/IdentityProviderName":
			if name := el.SelectAttrValue(valueAttr, ""); name != entity.InternalIdentityProviderName {
				add(Reference{Kind: entity.KindIdentityProvider, Name: name})
			}
		case "JdbcQuery/ConnectionName":
			add(Reference{Kind: entity.KindJDBCConnection, Name: el.SelectAttrValue(valueAttr, "")})
		case "SetVariable/Base64Expression", "HardcodedResponse/Base64ResponseBody":
			if bs, err := base64.StdEncoding.DecodeString(el.SelectAttrValue(valueAttr, "")); err == nil {
				text = append(text, string(bs))
			}
		}
	}

	for _, s := range text {
		for _, m := range securePasswordRef.FindAllStringSubmatch(s, -1) {
			add(Reference{Kind: entity.KindSecurePassword, Name: m[1]})
		}
		for _, m := range clusterPropertyRef.FindAllStringSubmatch(s, -1) {
			add(Reference{Kind: entity.KindClusterProperty, Name: m[1]})
		}
	}

	return refs, nil
}

func parse(policy string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromString(policy); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return doc, nil
}

// elements yields every element of doc below the root along with its parent,
// in document order.
func elements(doc *etree.Document) func(yield func(parent, el *etree.Element) bool) {
	return func(yield func(parent, el *etree.Element) bool) {
		root := doc.Root()
		if root == nil {
			return
		}
		var visit func(p *etree.Element) bool
		visit = func(p *etree.Element) bool {
			for _, c := range p.ChildElements() {
				if !yield(p, c) || !visit(c) {
					return false
				}
			}
			return true
		}
		visit(root)
	}
}
