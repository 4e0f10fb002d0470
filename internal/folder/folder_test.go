package folder_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/folder"
	"github.com/gatewaykit/gwbundle/internal/pathcodec"
)

func f(id, parent, name string) *entity.Entity {
	return &entity.Entity{Kind: entity.KindFolder, ID: id, FolderID: parent, Name: name}
}

func sampleFolders() []*entity.Entity {
	return []*entity.Entity{
		f(entity.RootFolderID, "", entity.RootFolderName),
		f("a", entity.RootFolderID, "apis"),
		f("b", "a", "v1/v2"),
		f("c", "b", `win\dows`),
		f("d", entity.RootFolderID, "lib"),
	}
}

func TestPathOf(t *testing.T) {
	tree, err := folder.Build(sampleFolders())
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		id  string
		exp []string
	}{
		{"", []string{}},
		{entity.RootFolderID, []string{}},
		{"a", []string{"apis"}},
		{"b", []string{"apis", "v1_¯v2"}},
		{"c", []string{"apis", "v1_¯v2", "win¯_dows"}},
		{"d", []string{"lib"}},
	}

	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			got, err := tree.PathOf(tc.id)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Fatal("unexpected path (-want,+got):", diff)
			}
		})
	}
}

func TestPathOfStableUnderConcurrency(t *testing.T) {
	tree, err := folder.Build(sampleFolders())
	if err != nil {
		t.Fatal(err)
	}

	first, err := tree.PathOf("c")
	if err != nil {
		t.Fatal(err)
	}
	// mutating the result must not corrupt the cache
	first[0] = "mutated"

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := tree.PathOf("c")
			if err != nil {
				t.Error(err)
				return
			}
			if diff := cmp.Diff([]string{"apis", "v1_¯v2", "win¯_dows"}, p); diff != "" {
				t.Error("unexpected path (-want,+got):", diff)
			}
		}()
	}
	wg.Wait()
}

func TestBuildErrors(t *testing.T) {
	cases := []struct {
		note    string
		folders []*entity.Entity
		check   func(error) bool
	}{
		{
			note: "cycle",
			folders: []*entity.Entity{
				f(entity.RootFolderID, "", entity.RootFolderName),
				f("x", "y", "x"),
				f("y", "x", "y"),
			},
			check: func(err error) bool {
				var ce *folder.CyclicFolderTreeError
				return errors.As(err, &ce)
			},
		},
		{
			note: "unknown parent",
			folders: []*entity.Entity{
				f(entity.RootFolderID, "", entity.RootFolderName),
				f("x", "missing", "x"),
			},
			check: func(err error) bool {
				var ue *folder.UnknownFolderError
				return errors.As(err, &ue) && ue.Parent == "missing"
			},
		},
		{
			note: "two roots",
			folders: []*entity.Entity{
				f(entity.RootFolderID, "", entity.RootFolderName),
				f("x", "", "x"),
			},
			check: func(err error) bool {
				var re *folder.RootFolderError
				return errors.As(err, &re) && len(re.Roots) == 2
			},
		},
		{
			note:    "no root",
			folders: nil,
			check: func(err error) bool {
				var re *folder.RootFolderError
				return errors.As(err, &re)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := folder.Build(tc.folders)
			if !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPathOfRejectsMarkerNames(t *testing.T) {
	tree, err := folder.Build([]*entity.Entity{
		f(entity.RootFolderID, "", entity.RootFolderName),
		f("x", entity.RootFolderID, "a_¯b"),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tree.PathOf("x")
	var ie *pathcodec.InvalidNameError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidNameError, got %v", err)
	}
}

func TestEntityPath(t *testing.T) {
	tree, err := folder.Build(sampleFolders())
	if err != nil {
		t.Fatal(err)
	}

	p, err := tree.EntityPath(&entity.Entity{Kind: entity.KindPolicy, ID: "p", FolderID: "b", Name: "get/item"})
	if err != nil {
		t.Fatal(err)
	}
	if p != "apis/v1_¯v2/get_¯item" {
		t.Fatalf("unexpected path %q", p)
	}

	p, err = tree.EntityPath(&entity.Entity{Kind: entity.KindPolicy, ID: "p", Name: "top"})
	if err != nil {
		t.Fatal(err)
	}
	if p != "top" {
		t.Fatalf("unexpected path %q", p)
	}
}

func TestWalkOrder(t *testing.T) {
	tree, err := folder.Build(sampleFolders())
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	err = tree.Walk(func(f *entity.Entity, depth int) error {
		got = append(got, f.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{entity.RootFolderID, "a", "d", "b", "c"}, got); diff != "" {
		t.Fatal("unexpected walk order (-want,+got):", diff)
	}
}

func TestFolderByPath(t *testing.T) {
	tree, err := folder.Build(sampleFolders())
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{entity.RootFolderID, "a", "b", "c", "d"} {
		p, err := tree.PathOf(id)
		if err != nil {
			t.Fatal(err)
		}
		got, ok := tree.FolderByPath(p)
		if !ok || got.ID != id {
			t.Fatalf("path %v resolved to %v, want %s", p, got, id)
		}
	}

	if _, ok := tree.FolderByPath([]string{"apis", "missing"}); ok {
		t.Fatal("expected no folder")
	}
}
