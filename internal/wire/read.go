package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/beevik/etree"

	"github.com/gatewaykit/gwbundle/internal/entity"
)

// Read parses a bundle document.
func Read(r io.Reader) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, err
	}

	root := doc.Root()
	if root == nil || root.Tag != "Bundle" {
		return nil, &FormatError{Reason: "missing Bundle element"}
	}

	var d Document
	if refs := child(root, "References"); refs != nil {
		for _, item := range children(refs, "Item") {
			e, err := readItem(item)
			if err != nil {
				return nil, err
			}
			d.Items = append(d.Items, e)
		}
	}

	if mappings := child(root, "Mappings"); mappings != nil {
		for _, el := range children(mappings, "Mapping") {
			m, err := readMapping(el)
			if err != nil {
				return nil, err
			}
			d.Mappings = append(d.Mappings, m)
		}
	}

	return &d, nil
}

func readItem(item *etree.Element) (*entity.Entity, error) {
	typ := text(child(item, "Type"))
	kind, err := entity.ParseKind(typ)
	if err != nil {
		return nil, &FormatError{Reason: err.Error()}
	}

	resource := child(item, "Resource")
	if resource == nil {
		return nil, &FormatError{Reason: fmt.Sprintf("item %q has no resource", text(child(item, "Name")))}
	}
	res := child(resource, kind.Element())
	if res == nil {
		return nil, &FormatError{Reason: fmt.Sprintf("item %q of type %s has no %s resource", text(child(item, "Name")), kind, kind.Element())}
	}

	e := &entity.Entity{
		Kind:     kind,
		ID:       res.SelectAttrValue("id", text(child(item, "Id"))),
		Name:     text(child(res, "Name")),
		FolderID: res.SelectAttrValue("folderId", ""),
		GUID:     res.SelectAttrValue("guid", ""),
	}
	if e.Name == "" {
		e.Name = text(child(item, "Name"))
	}

	if props := child(res, "Properties"); props != nil {
		for _, p := range children(props, "Property") {
			key := p.SelectAttrValue("key", "")
			v, err := readValue(p)
			if err != nil {
				return nil, fmt.Errorf("%s: property %q: %w", e, key, err)
			}
			e.SetField(key, v)
		}
	}

	if kind.PolicyBearing() {
		e.Policy = text(child(res, "PolicyXml"))
	}
	return e, nil
}

func readValue(p *etree.Element) (any, error) {
	for _, v := range p.ChildElements() {
		switch v.Tag {
		case "StringValue":
			return v.Text(), nil
		case "BooleanValue":
			return strconv.ParseBool(v.Text())
		case "IntegerValue":
			return strconv.ParseInt(v.Text(), 10, 64)
		case "JsonValue":
			var out any
			if err := json.Unmarshal([]byte(v.Text()), &out); err != nil {
				return nil, err
			}
			return out, nil
		}
	}
	return nil, &FormatError{Reason: fmt.Sprintf("property %q has no value", p.SelectAttrValue("key", ""))}
}

func readMapping(el *etree.Element) (Mapping, error) {
	kind, err := entity.ParseKind(el.SelectAttrValue("type", ""))
	if err != nil {
		return Mapping{}, &FormatError{Reason: err.Error()}
	}
	m := Mapping{
		Action: Action(el.SelectAttrValue("action", "")),
		SrcID:  el.SelectAttrValue("srcId", ""),
		Type:   kind,
	}
	if props := child(el, "Properties"); props != nil {
		for _, p := range children(props, "Property") {
			v, err := readValue(p)
			if err != nil {
				return Mapping{}, err
			}
			switch p.SelectAttrValue("key", "") {
			case "FailOnNew":
				m.FailOnNew, _ = v.(bool)
			case "MapBy":
				m.MapBy, _ = v.(string)
			case "MapTo":
				m.MapTo, _ = v.(string)
			}
		}
	}
	return m, nil
}

// child returns the first child element with the given local name, whatever
// its namespace prefix.
func child(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

func children(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

func text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return el.Text()
}
