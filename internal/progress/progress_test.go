package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestNilBar(t *testing.T) {
	var b *Bar
	b.Add(1)
	b.Describe("x")
	b.Finish()

	if New(nil, 10, "files") != nil {
		t.Fatal("expected nil bar without writer")
	}
}

func TestBar(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, 2, "writing")
	b.Add(1)
	b.Add(1)
	b.Finish()

	if !strings.Contains(buf.String(), "writing") {
		t.Fatalf("expected description in output, got %q", buf.String())
	}
}
