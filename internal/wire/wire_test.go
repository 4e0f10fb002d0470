package wire_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/wire"
)

const policyXML = `<?xml version="1.0" encoding="UTF-8"?>
<wsp:Policy xmlns:L7p="http://www.layer7tech.com/ws/policy" xmlns:wsp="http://schemas.xmlsoap.org/ws/2002/12/policy">
    <wsp:All wsp:Usage="Required">
        <L7p:AuditDetailAssertion>
            <L7p:Detail stringValue="a &amp; b"/>
        </L7p:AuditDetailAssertion>
    </wsp:All>
</wsp:Policy>`

func sampleDocument() *wire.Document {
	return &wire.Document{
		Items: []*entity.Entity{
			{Kind: entity.KindFolder, ID: entity.RootFolderID, Name: entity.RootFolderName},
			{Kind: entity.KindFolder, ID: "f1", FolderID: entity.RootFolderID, Name: "apis"},
			{Kind: entity.KindClusterProperty, ID: "c1", Name: "gateway.mode", Fields: map[string]any{
				"value":   "strict",
				"enabled": true,
				"retries": int64(3),
				"tags":    []any{"a", "b"},
			}},
			{Kind: entity.KindPolicy, ID: "p1", FolderID: "f1", GUID: "0b5d2f36-6f6e-4b8e-8a57-3d0a3c1e9e53", Name: "audit", Policy: policyXML},
		},
		Mappings: []wire.Mapping{
			{Action: wire.ActionNewOrExisting, SrcID: entity.RootFolderID, Type: entity.KindFolder, FailOnNew: true},
			{Action: wire.ActionNewOrUpdate, SrcID: "f1", Type: entity.KindFolder, MapBy: wire.MapByName, MapTo: "apis"},
			{Action: wire.ActionNewOrExisting, SrcID: "c1", Type: entity.KindClusterProperty, MapBy: wire.MapByName},
			{Action: wire.ActionNewOrUpdate, SrcID: "p1", Type: entity.KindPolicy, MapBy: wire.MapByName, MapTo: "audit"},
		},
	}
}

func TestRoundtrip(t *testing.T) {
	exp := sampleDocument()

	var buf bytes.Buffer
	if _, err := exp.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := wire.Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatal("unexpected document (-want,+got):", diff)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	a, b := sampleDocument().String(), sampleDocument().String()
	if a != b {
		t.Fatal("rendering the same document twice differs")
	}
	if !strings.Contains(a, `<l7:Mapping action="NewOrExisting" srcId="`+entity.RootFolderID+`" type="FOLDER">`) {
		t.Fatalf("unexpected mapping rendering:\n%s", a)
	}
}

func TestBundleMarksReusable(t *testing.T) {
	b, err := sampleDocument().Bundle("in.bundle")
	if err != nil {
		t.Fatal(err)
	}

	c, ok := b.Get(entity.KindClusterProperty, "c1")
	if !ok || !c.Annotations.Reusable {
		t.Fatalf("expected reusable cluster property, got %+v", c)
	}
	root, _ := b.Get(entity.KindFolder, entity.RootFolderID)
	if root.Annotations.Reusable {
		t.Fatal("root folder must not be reusable")
	}
	if b.Len() != 4 {
		t.Fatalf("expected 4 entities, got %d", b.Len())
	}
}

func TestReadErrors(t *testing.T) {
	cases := []struct {
		note string
		doc  string
	}{
		{
			note: "wrong root",
			doc:  `<l7:Item xmlns:l7="` + wire.Namespace + `"/>`,
		},
		{
			note: "unknown type",
			doc: `<l7:Bundle xmlns:l7="` + wire.Namespace + `"><l7:References><l7:Item>
				<l7:Name>x</l7:Name><l7:Id>1</l7:Id><l7:Type>GADGET</l7:Type>
			</l7:Item></l7:References></l7:Bundle>`,
		},
		{
			note: "missing resource",
			doc: `<l7:Bundle xmlns:l7="` + wire.Namespace + `"><l7:References><l7:Item>
				<l7:Name>x</l7:Name><l7:Id>1</l7:Id><l7:Type>POLICY</l7:Type>
			</l7:Item></l7:References></l7:Bundle>`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := wire.Read(strings.NewReader(tc.doc))
			var fe *wire.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %v", err)
			}
		})
	}
}
