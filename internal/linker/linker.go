// Package linker converts policy scripts between their wire form, in which
// cross references are opaque ids and literal text is base64 encoded, and a
// human editable form using folder paths, names and plain text. Simplify and
// Restore are inverses over the fragments they rewrite.
package linker

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/gatewaykit/gwbundle/internal/entity"
)

const (
	valueAttr = "stringValue"
	goidAttr  = "goidValue"
)

// Warning reports a fragment that was left untouched.
type Warning struct {
	Assertion string
	Ref       string
	Reason    string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %q: %s", w.Assertion, w.Ref, w.Reason)
}

type Linker struct {
	ix *Index
}

func New(ix *Index) *Linker {
	return &Linker{ix: ix}
}

type rewriteFunc func(l *Linker, parent, el *etree.Element) *Warning

var simplifiers = map[string]rewriteFunc{
	"SetVariable/Base64Expression":                 decodeText("Expression"),
	"HardcodedResponse/Base64ResponseBody":         decodeText("ResponseBody"),
	"Include/PolicyGuid":                           (*Linker).simplifyInclude,
	"Encapsulated/EncapsulatedAssertionConfigGuid": (*Linker).simplifyEncass,
	"Authentication/IdentityProviderOid":           (*Linker).simplifyIdentityProvider,
}

var restorers = map[string]rewriteFunc{
	"SetVariable/Expression":              encodeText("Base64Expression"),
	"HardcodedResponse/ResponseBody":      encodeText("Base64ResponseBody"),
	"Include/PolicyPath":                  (*Linker).restoreInclude,
	"Encapsulated/EncassPath":             (*Linker).restoreEncass,
	"Authentication/IdentityProviderName": (*Linker).restoreIdentityProvider,
}

// Simplify rewrites a wire form policy into its editable form.
func (l *Linker) Simplify(policy string) (string, []Warning, error) {
	return l.rewrite(policy, simplifiers)
}

// Restore rewrites an editable policy back into wire form.
func (l *Linker) Restore(policy string) (string, []Warning, error) {
	return l.rewrite(policy, restorers)
}

func (l *Linker) rewrite(policy string, rules map[string]rewriteFunc) (string, []Warning, error) {
	if strings.TrimSpace(policy) == "" {
		return policy, nil, nil
	}

	doc, err := parse(policy)
	if err != nil {
		return "", nil, err
	}

	type match struct {
		parent, el *etree.Element
		fn         rewriteFunc
	}
	var matches []match
	for parent, el := range elements(doc) {
		if fn, ok := rules[parent.Tag+"/"+el.Tag]; ok {
			matches = append(matches, match{parent, el, fn})
		}
	}
	if len(matches) == 0 {
		return policy, nil, nil
	}

	var warnings []Warning
	changed := false
	for _, m := range matches {
		if w := m.fn(l, m.parent, m.el); w != nil {
			warnings = append(warnings, *w)
			continue
		}
		changed = true
	}
	if !changed {
		return policy, warnings, nil
	}

	out, err := doc.WriteToString()
	if err != nil {
		return "", nil, err
	}
	return out, warnings, nil
}

func decodeText(tag string) rewriteFunc {
	return func(_ *Linker, _, el *etree.Element) *Warning {
		enc := el.SelectAttrValue(valueAttr, "")
		bs, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return &Warning{Assertion: el.Tag, Ref: enc, Reason: "invalid base64"}
		}
		if !utf8.Valid(bs) {
			return &Warning{Assertion: el.Tag, Ref: enc, Reason: "decoded value is not UTF-8 text"}
		}
		if !xmlText(string(bs)) {
			return &Warning{Assertion: el.Tag, Ref: enc, Reason: "decoded value cannot be carried as XML text"}
		}
		// The encoding must reproduce the original attribute exactly.
		if base64.StdEncoding.EncodeToString(bs) != enc {
			return &Warning{Assertion: el.Tag, Ref: enc, Reason: "non-canonical base64"}
		}

		el.Tag = tag
		el.RemoveAttr(valueAttr)
		if s := string(bs); strings.Contains(s, "]]>") {
			el.SetText(s)
		} else {
			el.CreateCData(s)
		}
		return nil
	}
}

// xmlText reports whether s survives an XML round trip unchanged. Parsers
// normalize carriage returns, and control characters outside the XML 1.0
// Char production are rejected.
func xmlText(s string) bool {
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

func encodeText(tag string) rewriteFunc {
	return func(_ *Linker, _, el *etree.Element) *Warning {
		s := el.Text()
		for len(el.Child) > 0 {
			el.RemoveChildAt(0)
		}
		el.Tag = tag
		el.CreateAttr(valueAttr, base64.StdEncoding.EncodeToString([]byte(s)))
		return nil
	}
}

func (l *Linker) simplifyInclude(_, el *etree.Element) *Warning {
	guid := el.SelectAttrValue(valueAttr, "")
	hit, ok := l.ix.PolicyByGUID(guid)
	if !ok {
		return &Warning{Assertion: "Include", Ref: guid, Reason: "unknown policy guid"}
	}
	p, ok := l.ix.PolicyPath(hit.Entity.ID)
	if !ok {
		return &Warning{Assertion: "Include", Ref: guid, Reason: "policy has no folder path"}
	}
	el.Tag = "PolicyPath"
	el.CreateAttr(valueAttr, p)
	return nil
}

func (l *Linker) restoreInclude(_, el *etree.Element) *Warning {
	p := el.SelectAttrValue(valueAttr, "")
	hit, ok := l.ix.PolicyByPath(p)
	if !ok {
		return &Warning{Assertion: "Include", Ref: p, Reason: "unknown policy path"}
	}
	if hit.Entity.GUID == "" {
		return &Warning{Assertion: "Include", Ref: p, Reason: "policy has no guid"}
	}
	el.Tag = "PolicyGuid"
	el.CreateAttr(valueAttr, hit.Entity.GUID)
	return nil
}

const (
	encassNameTag = "EncapsulatedAssertionConfigName"
	// omitNameAttr marks an encass path whose wire fragment carried no name.
	omitNameAttr = "omitName"
)

func (l *Linker) simplifyEncass(parent, el *etree.Element) *Warning {
	guid := el.SelectAttrValue(valueAttr, "")
	hit, ok := l.ix.EncassByGUID(guid)
	if !ok {
		return &Warning{Assertion: "Encapsulated", Ref: guid, Reason: "unknown encapsulated assertion guid"}
	}
	p, ok := l.ix.EncassPath(hit.Entity)
	if !ok {
		return &Warning{Assertion: "Encapsulated", Ref: guid, Reason: "backing policy not found"}
	}
	el.Tag = "EncassPath"
	el.CreateAttr(valueAttr, p)

	if !slices.ContainsFunc(parent.ChildElements(), func(c *etree.Element) bool { return c.Tag == encassNameTag }) {
		el.CreateAttr(omitNameAttr, "true")
		return nil
	}

	// The name is derived from the path on restore, so it is dropped when it
	// directly follows the guid with the same indentation.
	i := el.Index()
	lead := whitespaceAt(parent, i-1)
	next := i + 1
	if lead != nil {
		if ws := whitespaceAt(parent, next); ws == nil || ws.Data != lead.Data {
			return nil
		}
		next++
	}
	if next >= len(parent.Child) {
		return nil
	}
	name, ok := parent.Child[next].(*etree.Element)
	if !ok || name.Tag != encassNameTag || name.SelectAttrValue(valueAttr, "") != hit.Entity.Name || len(name.Attr) != 1 {
		return nil
	}
	for j := next; j > i; j-- {
		parent.RemoveChildAt(j)
	}
	return nil
}

func (l *Linker) restoreEncass(parent, el *etree.Element) *Warning {
	p := el.SelectAttrValue(valueAttr, "")
	hit, ok := l.ix.EncassByPolicyPath(p)
	if !ok {
		return &Warning{Assertion: "Encapsulated", Ref: p, Reason: "no encapsulated assertion backed by policy"}
	}
	el.Tag = "EncapsulatedAssertionConfigGuid"
	el.CreateAttr(valueAttr, hit.Entity.GUID)

	if el.SelectAttr(omitNameAttr) != nil {
		el.RemoveAttr(omitNameAttr)
		return nil
	}

	for _, c := range parent.ChildElements() {
		if c.Tag == encassNameTag {
			return nil
		}
	}

	name := etree.NewElement(encassNameTag)
	name.Space = el.Space
	name.CreateAttr(valueAttr, hit.Entity.Name)

	i := el.Index()
	if lead := whitespaceAt(parent, i-1); lead != nil {
		parent.InsertChildAt(i+1, etree.NewText(lead.Data))
		i++
	}
	parent.InsertChildAt(i+1, name)
	return nil
}

func (l *Linker) simplifyIdentityProvider(_, el *etree.Element) *Warning {
	id := el.SelectAttrValue(goidAttr, "")
	name := entity.InternalIdentityProviderName
	if id != entity.InternalIdentityProviderID {
		hit, ok := l.ix.ByID(entity.KindIdentityProvider, id)
		if !ok {
			return &Warning{Assertion: "Authentication", Ref: id, Reason: "unknown identity provider"}
		}
		name = hit.Entity.Name
	}
	el.Tag = "IdentityProviderName"
	renameAttr(el, goidAttr, valueAttr, name)
	return nil
}

func (l *Linker) restoreIdentityProvider(_, el *etree.Element) *Warning {
	name := el.SelectAttrValue(valueAttr, "")
	id := entity.InternalIdentityProviderID
	if name != entity.InternalIdentityProviderName {
		hit, ok := l.ix.ByName(entity.KindIdentityProvider, name)
		if !ok {
			return &Warning{Assertion: "Authentication", Ref: name, Reason: "unknown identity provider"}
		}
		id = hit.Entity.ID
	}
	el.Tag = "IdentityProviderOid"
	renameAttr(el, valueAttr, goidAttr, id)
	return nil
}

func whitespaceAt(el *etree.Element, i int) *etree.CharData {
	if i < 0 || i >= len(el.Child) {
		return nil
	}
	if cd, ok := el.Child[i].(*etree.CharData); ok && cd.IsWhitespace() {
		return cd
	}
	return nil
}

// renameAttr changes the key and value of an attribute without moving it.
func renameAttr(el *etree.Element, from, to, value string) {
	for i := range el.Attr {
		if el.Attr[i].Space == "" && el.Attr[i].Key == from {
			el.Attr[i].Key = to
			el.Attr[i].Value = value
			return
		}
	}
	el.CreateAttr(to, value)
}
