package builder

import (
	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/wire"
)

// mappingFor decides how the installer applies a selected entity. Re-applying
// the same bundle must leave the target unchanged, so everything except the
// root folder and environment references is matched by name. Folder names are
// only unique within their parent; folders carry path derived ids instead and
// are matched by id.
func mappingFor(s *Selection, mode Mode) wire.Mapping {
	e := s.Entity
	m := wire.Mapping{SrcID: e.ID, Type: e.Kind}

	mapBy, mapTo := wire.MapByName, e.Name
	if e.Kind == entity.KindFolder {
		mapBy, mapTo = "", ""
	}

	switch {
	case e.IsRootFolder():
		m.Action = wire.ActionNewOrExisting
		m.FailOnNew = true
	case mode == ModeDeployment && e.Kind.Environment():
		m.Action = wire.ActionNewOrExisting
		m.FailOnNew = true
	case s.FromDependency:
		m.Action = wire.ActionNewOrExisting
		m.MapBy = mapBy
		m.MapTo = mapTo
	case e.Annotations.Reusable && !e.Annotations.Redeployable:
		m.Action = wire.ActionNewOrExisting
		m.MapBy = mapBy
	default:
		m.Action = wire.ActionNewOrUpdate
		m.MapBy = mapBy
		m.MapTo = mapTo
	}
	return m
}
