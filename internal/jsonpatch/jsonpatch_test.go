package jsonpatch

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyToFields(t *testing.T) {
	tests := []struct {
		note   string
		fields map[string]any
		ops    []map[string]any
		exp    map[string]any
		err    bool
	}{
		{
			note:   "replace",
			fields: map[string]any{"jdbcUrl": "jdbc:mysql://dev/orders", "user": "app"},
			ops:    []map[string]any{{"op": "replace", "path": "/jdbcUrl", "value": "jdbc:mysql://prod/orders"}},
			exp:    map[string]any{"jdbcUrl": "jdbc:mysql://prod/orders", "user": "app"},
		},
		{
			note:   "add creates nested paths",
			fields: nil,
			ops:    []map[string]any{{"op": "add", "path": "/properties/timeout", "value": 30}},
			exp:    map[string]any{"properties": map[string]any{"timeout": float64(30)}},
		},
		{
			note:   "remove missing is ok",
			fields: map[string]any{"a": "b"},
			ops:    []map[string]any{{"op": "remove", "path": "/nope"}},
			exp:    map[string]any{"a": "b"},
		},
		{
			note:   "unsupported op",
			fields: map[string]any{"a": "b"},
			ops:    []map[string]any{{"op": "move", "from": "/a", "path": "/c"}},
			err:    true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			p, err := Decode(tc.ops)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ApplyToFields(p, tc.fields)
			if tc.err {
				var pe *PatchError
				if !errors.As(err, &pe) {
					t.Fatalf("expected patch error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Fatalf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyToFieldsDoesNotModifyInput(t *testing.T) {
	fields := map[string]any{"a": "b"}
	p, err := Decode([]map[string]any{{"op": "replace", "path": "/a", "value": "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ApplyToFields(p, fields); err != nil {
		t.Fatal(err)
	}
	if fields["a"] != "b" {
		t.Fatal("input modified")
	}
}
