package entity

import (
	"fmt"
	"slices"
)

const (
	AnnotationBundle       = "@bundle"
	AnnotationReusable     = "@reusable"
	AnnotationRedeployable = "@redeployable"
	AnnotationExclude      = "@exclude"
	AnnotationBundleHints  = "@bundle-hints"
)

// Annotations are the directives attached to an entity in its source file.
type Annotations struct {
	// Bundle lists the entity in the bundle metadata as defined by the
	// bundle, whatever its kind.
	Bundle bool
	// Reusable entities are matched by name and never overwritten on the
	// target.
	Reusable bool
	// Redeployable entities are always updated in place on the target,
	// even when they are reusable.
	Redeployable bool
	// Exclude removes the entity from the output unless another selected
	// entity depends on it.
	Exclude bool
	// Hints are free-form values copied into the bundle metadata.
	Hints map[string]any
}

func (a Annotations) IsZero() bool {
	return !a.Bundle && !a.Reusable && !a.Redeployable && !a.Exclude && len(a.Hints) == 0
}

// ParseAnnotations reads an annotation list as found in source files:
//
//	annotations:
//	  - "@reusable"
//	  - "@bundle-hints": {owner: team-a}
func ParseAnnotations(raw any) (Annotations, error) {
	var a Annotations
	if raw == nil {
		return a, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return a, fmt.Errorf("annotations must be a list, got %T", raw)
	}

	for _, item := range list {
		switch v := item.(type) {
		case string:
			if err := a.set(v, nil); err != nil {
				return a, err
			}
		case map[string]any:
			for key, value := range v {
				if err := a.set(key, value); err != nil {
					return a, err
				}
			}
		default:
			return a, fmt.Errorf("unsupported annotation %v", item)
		}
	}
	return a, nil
}

func (a *Annotations) set(name string, value any) error {
	switch name {
	case AnnotationBundle:
		a.Bundle = true
	case AnnotationReusable:
		a.Reusable = true
	case AnnotationRedeployable:
		a.Redeployable = true
	case AnnotationExclude:
		a.Exclude = true
	case AnnotationBundleHints:
		if value == nil {
			return nil
		}
		hints, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s expects a mapping, got %T", AnnotationBundleHints, value)
		}
		a.Hints = hints
	default:
		return fmt.Errorf("unknown annotation %q", name)
	}
	return nil
}

// List renders the annotations in the form accepted by ParseAnnotations.
func (a Annotations) List() []any {
	var out []any
	for _, flag := range []struct {
		set  bool
		name string
	}{
		{a.Bundle, AnnotationBundle},
		{a.Reusable, AnnotationReusable},
		{a.Redeployable, AnnotationRedeployable},
		{a.Exclude, AnnotationExclude},
	} {
		if flag.set {
			out = append(out, flag.name)
		}
	}
	if len(a.Hints) > 0 {
		out = append(out, map[string]any{AnnotationBundleHints: a.Hints})
	}
	return slices.Clip(out)
}
