package linker

import (
	"fmt"
	"slices"

	"github.com/gatewaykit/gwbundle/internal/entity"
)

// policyOwners are the kinds whose structured payload points at a policy.
var policyOwners = []entity.Kind{entity.KindEncapsulatedAssertion, entity.KindScheduledTask}

// SimplifyFields returns a copy of e whose policyId field is replaced by the
// folder path of that policy. Entities of other kinds are returned as is.
func (l *Linker) SimplifyFields(e *entity.Entity) (*entity.Entity, []Warning) {
	id := e.StringField("policyId")
	if !slices.Contains(policyOwners, e.Kind) || id == "" {
		return e, nil
	}
	p, ok := l.ix.PolicyPath(id)
	if !ok {
		return e, []Warning{{Assertion: string(e.Kind), Ref: id, Reason: "unknown policy id"}}
	}
	out := e.Clone()
	delete(out.Fields, "policyId")
	out.SetField("policy", p)
	return out, nil
}

// RestoreFields is the inverse of SimplifyFields.
func (l *Linker) RestoreFields(e *entity.Entity) (*entity.Entity, []Warning) {
	p := e.StringField("policy")
	if !slices.Contains(policyOwners, e.Kind) || p == "" {
		return e, nil
	}
	hit, ok := l.ix.PolicyByPath(p)
	if !ok {
		return e, []Warning{{Assertion: string(e.Kind), Ref: p, Reason: "unknown policy path"}}
	}
	out := e.Clone()
	delete(out.Fields, "policy")
	out.SetField("policyId", hit.Entity.ID)
	return out, nil
}

// SimplifyBundle rewrites every policy and policy reference field of b into
// editable form and stores the results back into b.
func (l *Linker) SimplifyBundle(b *entity.Bundle) ([]Warning, error) {
	return l.apply(b, l.Simplify, l.SimplifyFields)
}

// RestoreBundle rewrites every policy and policy reference field of b into
// wire form and stores the results back into b.
func (l *Linker) RestoreBundle(b *entity.Bundle) ([]Warning, error) {
	return l.apply(b, l.Restore, l.RestoreFields)
}

func (l *Linker) apply(
	b *entity.Bundle,
	policyFn func(string) (string, []Warning, error),
	fieldsFn func(*entity.Entity) (*entity.Entity, []Warning),
) ([]Warning, error) {
	var warnings []Warning
	for _, k := range entity.Kinds() {
		for _, e := range b.Entities(k) {
			if k.PolicyBearing() {
				policy, ws, err := policyFn(e.Policy)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", e, err)
				}
				warnings = append(warnings, ws...)
				if policy != e.Policy {
					out := e.Clone()
					out.Policy = policy
					b.Replace(out)
				}
				continue
			}

			out, ws := fieldsFn(e)
			warnings = append(warnings, ws...)
			if out != e {
				b.Replace(out)
			}
		}
	}
	return warnings, nil
}
