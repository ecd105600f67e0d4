package csvimport

import (
	"sort"
	"strings"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
)

// Registry resolves profile names to parsers.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry loads the built-in profiles plus extra ones. Extra profiles
// replace built-ins of the same name.
func NewRegistry(extra ...Profile) (*Registry, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, err
	}
	registry := &Registry{profiles: make(map[string]Profile, len(builtin)+len(extra))}
	for _, profile := range append(builtin, extra...) {
		if err := profile.normalize(); err != nil {
			return nil, err
		}
		registry.profiles[profile.Name] = profile
	}
	return registry, nil
}

// Parser returns the named profile; an empty name means generic.
func (r *Registry) Parser(name string) (banking.StatementParser, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "generic"
	}
	profile, ok := r.profiles[name]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeImportProfileUnknown, "unknown import profile "+name, map[string]string{"Profile": name})
	}
	return profile, nil
}

// Names lists the known profiles.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
