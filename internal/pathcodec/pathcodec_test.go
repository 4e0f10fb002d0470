package pathcodec_test

import (
	"errors"
	"testing"

	"github.com/gatewaykit/gwbundle/internal/pathcodec"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	for _, name := range []string{
		"",
		"plain",
		"a/b",
		`a\b`,
		`/leading/and/trailing/`,
		`mixed/\/\`,
		"spaces and ünïcödé",
		"_ and ¯ alone",
		"¯ ¯ _ _",
		"¯x/y_",
		`\¯`,
		"dots/../..",
	} {
		t.Run(name, func(t *testing.T) {
			enc, err := pathcodec.Encode(name)
			if err != nil {
				t.Fatal(err)
			}
			if dec := pathcodec.Decode(enc); dec != name {
				t.Fatalf("expected %q, got %q (encoded %q)", name, dec, enc)
			}
		})
	}
}

func TestEncodeRejectsMarkers(t *testing.T) {
	for _, name := range []string{"a_¯b", "a¯_b", "_¯", "x/¯_", "¯/", `_\`} {
		t.Run(name, func(t *testing.T) {
			_, err := pathcodec.Encode(name)
			var invalid *pathcodec.InvalidNameError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidNameError, got %v", err)
			}
			if invalid.Name != name {
				t.Fatalf("expected name %q in error, got %q", name, invalid.Name)
			}
		})
	}
}

func TestEncodeNoSeparators(t *testing.T) {
	enc, err := pathcodec.Encode(`a/b\c`)
	if err != nil {
		t.Fatal(err)
	}
	if exp := "a_¯b¯_c"; enc != exp {
		t.Fatalf("expected %q, got %q", exp, enc)
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, exp string
	}{
		{in: "bundle", exp: "bundle"},
		{in: "a/b", exp: "a_b"},
		{in: "a//b", exp: "a_b"},
		{in: `a<>:'/\|?*b`, exp: "a_b"},
		{in: "x\x00y", exp: "x_y"},
		{in: "?lead", exp: "_lead"},
		{in: "trail*", exp: "trail_"},
		{in: "a?b?c", exp: "a_b_c"},
	}
	for _, tc := range cases {
		if act := pathcodec.Sanitize(tc.in); act != tc.exp {
			t.Errorf("Sanitize(%q): expected %q, got %q", tc.in, tc.exp, act)
		}
	}
}
