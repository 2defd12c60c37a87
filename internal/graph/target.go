package graph

import (
	"fmt"

	"github.com/laebshade/pants/internal/address"
	"github.com/zclconf/go-cty/cty"
)

// Target is a resolved build entity declared by a `target` block. Targets
// are shared by pointer across subjects, plans, and promise keys; they are
// never mutated after loading.
type Target struct {
	// Address names the target, without configuration selector.
	Address address.Address
	// BuildDir is the on-disk directory of the declaring build file.
	BuildDir string
	// Deps are the declared dependency addresses, possibly carrying
	// configuration selectors.
	Deps []address.Address
	// Sources are the source glob patterns, relative to BuildDir.
	Sources []string
	// Configurations are the target's configuration blocks in declaration
	// order.
	Configurations []*Configuration
	// Attrs holds the free-form attributes of the target block.
	Attrs map[string]cty.Value
}

// Identity implements engine.Identifiable.
func (t *Target) Identity() string {
	return t.Address.String()
}

func (t *Target) String() string {
	return t.Address.String()
}

// Configuration returns the named configuration block. A missing name is a
// hard error, never a silent fallback.
func (t *Target) Configuration(name string) (*Configuration, error) {
	for _, c := range t.Configurations {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("target %s has no configuration %q", t.Address, name)
}

// Configuration is a named configuration block on a target. A configuration
// is itself a native product of its owning target.
type Configuration struct {
	Name  string
	Owner *Target
	// Deps overrides the owner's dependency list when declared (nil means
	// not declared, which falls back to the owner's deps).
	Deps []address.Address
	// Attrs holds the free-form attributes of the configuration block.
	Attrs map[string]cty.Value
}

// Identity implements engine.Identifiable.
func (c *Configuration) Identity() string {
	return c.Owner.Address.String() + "@" + c.Name
}

func (c *Configuration) String() string {
	return c.Identity()
}
