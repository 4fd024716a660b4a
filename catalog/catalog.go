// Package catalog lists the models a session should register.
package catalog

import (
	"context"
	"slices"

	"github.com/hupe1980/lodstream/config"
	"github.com/hupe1980/lodstream/registry"
)

// Catalog yields registry entries in registration order.
type Catalog interface {
	Entries(ctx context.Context) ([]registry.Entry, error)
}

// Static is a fixed list of entries.
type Static []registry.Entry

// Entries returns a copy of the list.
func (s Static) Entries(context.Context) ([]registry.Entry, error) {
	return slices.Clone(s), nil
}

// FromSettings lists the models of a .vis file in file order. Each model is
// keyed by its path.
func FromSettings(s *config.Settings) Static {
	out := make(Static, 0, len(s.Models))
	for _, m := range s.Models {
		out = append(out, registry.Entry{Path: m, Key: m})
	}

	return out
}

// FromConfig lists the statically configured models.
func FromConfig(models []config.ModelConfig) Static {
	out := make(Static, 0, len(models))
	for _, m := range models {
		out = append(out, registry.Entry{Path: m.Path, Key: m.Key})
	}

	return out
}
