package service

// BuildState is the outcome of a bundle build, named after the stage that
// failed.
type BuildState int

const (
	BuildStateSuccess BuildState = iota
	BuildStateConfigError
	BuildStateLoadFailed
	BuildStateLinkFailed
	BuildStateResolveFailed
	BuildStateBuildFailed
	BuildStatePackageFailed
	BuildStateInternalError
)

func (s BuildState) String() string {
	switch s {
	case BuildStateSuccess:
		return "success"
	case BuildStateConfigError:
		return "config_error"
	case BuildStateLoadFailed:
		return "load_failed"
	case BuildStateLinkFailed:
		return "link_failed"
	case BuildStateResolveFailed:
		return "resolve_failed"
	case BuildStateBuildFailed:
		return "build_failed"
	case BuildStatePackageFailed:
		return "package_failed"
	default:
		return "internal_error"
	}
}

// Status summarizes a bundle build.
type Status struct {
	State      BuildState
	Message    string
	Version    string
	Items      int
	Unresolved []string
	Notes      []string
	Warnings   []string
	Files      []string
}
