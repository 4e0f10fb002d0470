// Package entity holds the in-memory model of gateway configuration: typed
// entity records and the Bundle aggregate they are collected in.
package entity

import (
	"fmt"
	"maps"
)

const (
	// RootFolderID is the id of the folder every folder tree is rooted at.
	RootFolderID = "0000000000000000ffffffffffffec76"
	// RootFolderName is the display name of the root folder.
	RootFolderName = "Root Node"

	// InternalIdentityProviderID is the id of the gateway's built-in
	// identity provider. It is never part of a bundle.
	InternalIdentityProviderID = "0000000000000000fffffffffffffffe"
	// InternalIdentityProviderName is the display name of the built-in
	// identity provider.
	InternalIdentityProviderName = "Internal Identity Provider"
)

// Entity is a single configuration object.
type Entity struct {
	Kind Kind
	ID   string
	Name string

	// FolderID is the id of the containing folder. An empty FolderID places
	// the entity at the root of the folder tree; for folders it marks the
	// root itself.
	FolderID string

	// GUID is the secondary, content-independent identifier carried by
	// policies and encapsulated assertions.
	GUID string

	// Fields is the structured payload.
	Fields map[string]any

	// Policy is the markup payload of policy-bearing kinds.
	Policy string

	Annotations Annotations

	// Excluded is the resolved inclusion decision: excluded entities are
	// only emitted when something selected for output depends on them.
	Excluded bool

	// Source names the file the entity was read from, for error messages.
	Source string
}

// Dependency identifies an entity as the target of a reference.
type Dependency struct {
	ID   string
	Kind Kind
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s %s", d.Kind, d.ID)
}

func (e *Entity) Key() Dependency {
	return Dependency{ID: e.ID, Kind: e.Kind}
}

func (e *Entity) IsRootFolder() bool {
	return e.Kind == KindFolder && e.ID == RootFolderID
}

// StringField returns the string value stored under key, or "".
func (e *Entity) StringField(key string) string {
	if v, ok := e.Fields[key].(string); ok {
		return v
	}
	return ""
}

// SetField stores value under key, allocating Fields if needed.
func (e *Entity) SetField(key string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
}

// Clone returns a copy of the entity whose Fields map may be modified
// without affecting the original.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Fields = maps.Clone(e.Fields)
	c.Annotations.Hints = maps.Clone(e.Annotations.Hints)
	return &c
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s %q (%s)", e.Kind, e.Name, e.ID)
}
