//go:build e2e

package cli

import (
	"cmp"
	"fmt"
	"os"
	"strings"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/rogpeppe/go-internal/testscript"

	"github.com/gatewaykit/gwbundle/internal/wire"
)

func TestScript(t *testing.T) {
	gwbundle := cmp.Or(os.Getenv("GWBUNDLE"), "gwbundle")

	testscript.Run(t, testscript.Params{
		Dir: ".",
		Setup: func(e *testscript.Env) error {
			e.Vars = append(e.Vars, "GWBUNDLE="+gwbundle)
			for _, kv := range os.Environ() {
				if strings.HasPrefix(kv, "E2E_") {
					e.Vars = append(e.Vars, kv)
				}
			}
			return nil
		},
		Condition: func(cond string) (bool, error) {
			args := strings.Split(cond, ":")
			name := args[0]
			switch name {
			case "env":
				if len(args) < 2 {
					return false, fmt.Errorf("syntax: [env:SOME_VAR]")
				}
				return os.Getenv(args[1]) != "", nil
			default:
				return false, fmt.Errorf("unknown condition %s", name)
			}
		},
		Cmds: map[string]func(*testscript.TestScript, bool, []string){
			"cmpbundle": cmpBundleCmd,
		},
		// NB: To quickly update expectations in txtar files, try re-running the tests with
		// E2E_UPDATE=y, for example:
		//   E2E_UPDATE=y go test -tags e2e ./e2e/cli -run TestScript/roundtrip -v -count=1
		UpdateScripts: os.Getenv("E2E_UPDATE") != "",
	})
}

type item struct {
	Kind   string
	Name   string
	Action string
	Policy string
}

// cmpBundleCmd compares the items of two bundle documents in emission order.
// Ids are generated per build, so items are compared by kind, name, mapping
// action and policy markup.
func cmpBundleCmd(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 2 {
		ts.Fatalf("usage: cmpbundle want.bundle got.bundle")
	}

	want, got := readItems(ts, args[0]), readItems(ts, args[1])
	diff := gocmp.Diff(want, got)
	switch {
	case neg && diff == "":
		ts.Fatalf("bundles %s and %s are equivalent", args[0], args[1])
	case !neg && diff != "":
		ts.Fatalf("bundles %s and %s differ (-want, +got):\n%s", args[0], args[1], diff)
	}
}

func readItems(ts *testscript.TestScript, name string) []item {
	f, err := os.Open(ts.MkAbs(name))
	ts.Check(err)
	defer f.Close()

	doc, err := wire.Read(f)
	ts.Check(err)

	items := make([]item, 0, len(doc.Items))
	for _, e := range doc.Items {
		m, _ := doc.Mapping(e.Kind, e.ID)
		items = append(items, item{
			Kind:   e.Kind.String(),
			Name:   e.Name,
			Action: string(m.Action),
			Policy: stripIDs(e.Policy, doc),
		})
	}
	return items
}

// stripIDs removes the ids of the document's items from policy markup.
func stripIDs(policy string, doc *wire.Document) string {
	for _, e := range doc.Items {
		if e.ID != "" {
			policy = strings.ReplaceAll(policy, e.ID, "<id>")
		}
	}
	return policy
}
