package ids

import (
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateFormat(t *testing.T) {
	g := New()
	id := g.Generate()
	if len(id) != 32 {
		t.Fatalf("expected 32 characters, got %d: %q", len(id), id)
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("unexpected character %q in %q", r, id)
		}
	}

	high, err := strconv.ParseUint(id[:16], 16, 64)
	if err != nil {
		t.Fatal(err)
	}
	if high < reservedPrefix {
		t.Fatalf("high word %x falls into the reserved range", high)
	}
}

func TestGenerateIncreasing(t *testing.T) {
	g := New()
	g.low.Store(10) // keep clear of the wrap-around point

	prev := g.Generate()
	for range 1000 {
		next := g.Generate()
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		if next[:16] != prev[:16] {
			t.Fatalf("high word changed: %s vs %s", next[:16], prev[:16])
		}
		prev = next
	}
}

func TestGenerateConcurrentUnique(t *testing.T) {
	gens := []*Generator{New(), New()}

	const perWorker = 500
	const workers = 8

	var mu sync.Mutex
	seen := make(map[string]struct{}, len(gens)*workers*perWorker)

	var wg sync.WaitGroup
	for _, g := range gens {
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				local := make([]string, 0, perWorker)
				for range perWorker {
					local = append(local, g.Generate())
				}
				mu.Lock()
				defer mu.Unlock()
				for _, id := range local {
					seen[id] = struct{}{}
				}
			}()
		}
	}
	wg.Wait()

	if exp, act := len(gens)*workers*perWorker, len(seen); exp != act {
		t.Fatalf("expected %d distinct ids, got %d", exp, act)
	}
}

func TestDerive(t *testing.T) {
	space := uuid.NewSHA1(uuid.NameSpaceURL, []byte("test"))

	tests := []struct {
		note string
		a, b string
		same bool
	}{
		{note: "same name", a: "a/common", b: "a/common", same: true},
		{note: "same leaf, other parent", a: "a/common", b: "b/common"},
		{note: "encoded separator", a: "a_¯b", b: "a/b"},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			a, b := Derive(space, tc.a), Derive(space, tc.b)
			if (a == b) != tc.same {
				t.Fatalf("Derive(%q) = %s, Derive(%q) = %s", tc.a, a, tc.b, b)
			}
			for _, id := range []string{a, b} {
				high, err := strconv.ParseUint(id[:16], 16, 64)
				if err != nil {
					t.Fatal(err)
				}
				if len(id) != 32 || high < reservedPrefix {
					t.Fatalf("unexpected id %q", id)
				}
			}
		})
	}
}
