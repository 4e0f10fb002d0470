// Package wire reads and writes the XML bundle document understood by the
// gateway's management interface: an ordered list of items followed by the
// mapping directives telling the installer how to apply each of them.
package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/beevik/etree"

	"github.com/gatewaykit/gwbundle/internal/entity"
)

// Namespace is the XML namespace of the bundle document, bound to the "l7"
// prefix.
const Namespace = "http://ns.l7tech.com/2010/04/gateway-management"

const prefix = "l7:"

// Action tells the installer what to do with an item.
type Action string

const (
	// ActionNewOrExisting creates the item unless a match already exists, in
	// which case the existing entity is left untouched.
	ActionNewOrExisting Action = "NewOrExisting"
	// ActionNewOrUpdate creates the item or overwrites the matching entity.
	ActionNewOrUpdate Action = "NewOrUpdate"
)

// MapByName makes the installer match an item against existing entities by
// name rather than by id.
const MapByName = "name"

// Mapping is the installer directive for one item.
type Mapping struct {
	Action    Action
	SrcID     string
	Type      entity.Kind
	FailOnNew bool
	MapBy     string
	MapTo     string
}

// Document is a bundle document: items in emission order and their
// mappings.
type Document struct {
	Items    []*entity.Entity
	Mappings []Mapping
}

// FormatError reports a bundle document that does not have the expected
// structure.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid bundle document: " + e.Reason
}

// Bundle converts the document's items into an entity bundle. Items mapped
// with NewOrExisting and no FailOnNew are marked reusable.
func (d *Document) Bundle(origin string) (*entity.Bundle, error) {
	reusable := make(map[entity.Dependency]bool)
	for _, m := range d.Mappings {
		if m.Action == ActionNewOrExisting && !m.FailOnNew {
			reusable[entity.Dependency{ID: m.SrcID, Kind: m.Type}] = true
		}
	}

	b := entity.NewBundle(origin)
	for _, item := range d.Items {
		e := item.Clone()
		e.Source = origin
		if reusable[e.Key()] {
			e.Annotations.Reusable = true
		}
		if err := b.Add(e); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Mapping returns the mapping for the item with the given kind and id.
func (d *Document) Mapping(k entity.Kind, id string) (Mapping, bool) {
	for _, m := range d.Mappings {
		if m.Type == k && m.SrcID == id {
			return m, true
		}
	}
	return Mapping{}, false
}

// WriteTo serializes the document as indented XML.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	doc, err := d.xml()
	if err != nil {
		return 0, err
	}
	return doc.WriteTo(w)
}

// String renders the document, panicking on values that cannot be encoded.
func (d *Document) String() string {
	doc, err := d.xml()
	if err != nil {
		panic(err)
	}
	s, err := doc.WriteToString()
	if err != nil {
		panic(err)
	}
	return s
}

func (d *Document) xml() (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(prefix + "Bundle")
	root.CreateAttr("xmlns:l7", Namespace)

	refs := root.CreateElement(prefix + "References")
	for _, e := range d.Items {
		if err := writeItem(refs.CreateElement(prefix+"Item"), e); err != nil {
			return nil, err
		}
	}

	mappings := root.CreateElement(prefix + "Mappings")
	for _, m := range d.Mappings {
		writeMapping(mappings.CreateElement(prefix+"Mapping"), m)
	}

	doc.Indent(2)
	return doc, nil
}

func writeItem(item *etree.Element, e *entity.Entity) error {
	item.CreateElement(prefix + "Name").SetText(e.Name)
	item.CreateElement(prefix + "Id").SetText(e.ID)
	item.CreateElement(prefix + "Type").SetText(string(e.Kind))

	res := item.CreateElement(prefix + "Resource").CreateElement(prefix + e.Kind.Element())
	res.CreateAttr("id", e.ID)
	if e.FolderID != "" {
		res.CreateAttr("folderId", e.FolderID)
	}
	if e.GUID != "" {
		res.CreateAttr("guid", e.GUID)
	}
	res.CreateElement(prefix + "Name").SetText(e.Name)

	if len(e.Fields) > 0 {
		props := res.CreateElement(prefix + "Properties")
		for _, key := range slices.Sorted(maps.Keys(e.Fields)) {
			p := props.CreateElement(prefix + "Property")
			p.CreateAttr("key", key)
			if err := writeValue(p, e.Fields[key]); err != nil {
				return fmt.Errorf("%s: property %q: %w", e, key, err)
			}
		}
	}

	if e.Kind.PolicyBearing() {
		res.CreateElement(prefix + "PolicyXml").SetText(e.Policy)
	}
	return nil
}

func writeValue(p *etree.Element, v any) error {
	switch v := v.(type) {
	case string:
		p.CreateElement(prefix + "StringValue").SetText(v)
	case bool:
		p.CreateElement(prefix + "BooleanValue").SetText(strconv.FormatBool(v))
	case int:
		p.CreateElement(prefix + "IntegerValue").SetText(strconv.Itoa(v))
	case int64:
		p.CreateElement(prefix + "IntegerValue").SetText(strconv.FormatInt(v, 10))
	case uint64:
		p.CreateElement(prefix + "IntegerValue").SetText(strconv.FormatUint(v, 10))
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			p.CreateElement(prefix + "IntegerValue").SetText(strconv.FormatInt(int64(v), 10))
			return nil
		}
		return writeJSON(p, v)
	default:
		return writeJSON(p, v)
	}
	return nil
}

func writeJSON(p *etree.Element, v any) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.CreateElement(prefix + "JsonValue").SetText(string(bs))
	return nil
}

func writeMapping(el *etree.Element, m Mapping) {
	el.CreateAttr("action", string(m.Action))
	el.CreateAttr("srcId", m.SrcID)
	el.CreateAttr("type", string(m.Type))

	if !m.FailOnNew && m.MapBy == "" && m.MapTo == "" {
		return
	}
	props := el.CreateElement(prefix + "Properties")
	if m.FailOnNew {
		writeProperty(props, "FailOnNew", "BooleanValue", "true")
	}
	if m.MapBy != "" {
		writeProperty(props, "MapBy", "StringValue", m.MapBy)
	}
	if m.MapTo != "" {
		writeProperty(props, "MapTo", "StringValue", m.MapTo)
	}
}

func writeProperty(props *etree.Element, key, typ, value string) {
	p := props.CreateElement(prefix + "Property")
	p.CreateAttr("key", key)
	p.CreateElement(prefix + typ).SetText(value)
}
