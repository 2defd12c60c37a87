// Package graph loads BUILD.hcl files into resolved build targets and
// implements the build-graph accessor the planning core navigates entities
// through.
package graph

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/laebshade/pants/internal/address"
	"github.com/laebshade/pants/internal/ctxlog"
	"github.com/laebshade/pants/internal/engine"
	"github.com/laebshade/pants/internal/fsutil"
	"github.com/laebshade/pants/internal/schema"
)

// BuildFileName is the file name targets are declared in.
const BuildFileName = "BUILD.hcl"

// Graph indexes every target declared under a build root and resolves
// addresses to entities.
type Graph struct {
	root    string
	targets map[address.Address]*Target
	order   []*Target
}

// Load discovers and parses every build file under the given root.
// Duplicate target addresses and malformed dependency addresses fail the
// load.
func Load(ctx context.Context, root string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.FindFilesByName(root, BuildFileName)
	if err != nil {
		return nil, fmt.Errorf("discovering build files under %s: %w", root, err)
	}
	logger.Debug("Discovered build files.", "root", root, "count", len(files))

	g := &Graph{root: root, targets: make(map[address.Address]*Target)}
	parser := hclparse.NewParser()
	for _, path := range files {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", path, diags)
		}
		var bf schema.BuildFile
		if diags := gohcl.DecodeBody(file.Body, nil, &bf); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", path, diags)
		}

		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		dir := filepath.ToSlash(rel)
		if dir == "." {
			dir = ""
		}

		for _, st := range bf.Targets {
			target, err := g.translateTarget(st, dir, filepath.Dir(path))
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", path, err)
			}
			if _, exists := g.targets[target.Address]; exists {
				return nil, fmt.Errorf("in %s: duplicate target %s", path, target.Address)
			}
			g.targets[target.Address] = target
			g.order = append(g.order, target)
		}
	}
	logger.Debug("Build graph loaded.", "targets", len(g.order))
	return g, nil
}

// translateTarget converts the HCL schema form into the resolved Target.
func (g *Graph) translateTarget(st *schema.Target, dir, buildDir string) (*Target, error) {
	addr := address.Address{Dir: dir, Name: st.Name}
	deps, err := parseDeps(st.Deps)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", addr, err)
	}
	attrs, err := bodyAttributes(st.Body)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", addr, err)
	}
	target := &Target{
		Address:  addr,
		BuildDir: buildDir,
		Deps:     deps,
		Sources:  st.Sources,
		Attrs:    attrs,
	}
	for _, sc := range st.Configurations {
		cfgDeps, err := parseDeps(sc.Deps)
		if err != nil {
			return nil, fmt.Errorf("target %s configuration %q: %w", addr, sc.Name, err)
		}
		// An explicitly empty deps list still overrides the owner's deps.
		if sc.Deps != nil && cfgDeps == nil {
			cfgDeps = []address.Address{}
		}
		cfgAttrs, err := bodyAttributes(sc.Body)
		if err != nil {
			return nil, fmt.Errorf("target %s configuration %q: %w", addr, sc.Name, err)
		}
		target.Configurations = append(target.Configurations, &Configuration{
			Name:  sc.Name,
			Owner: target,
			Deps:  cfgDeps,
			Attrs: cfgAttrs,
		})
	}
	return target, nil
}

func parseDeps(specs []string) ([]address.Address, error) {
	var deps []address.Address
	for _, spec := range specs {
		addr, err := address.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", spec, err)
		}
		deps = append(deps, addr)
	}
	return deps, nil
}

// bodyAttributes evaluates the free attributes remaining in a block body.
// Only literal expressions are supported; build files have no evaluation
// context.
func bodyAttributes(body hcl.Body) (map[string]cty.Value, error) {
	if body == nil {
		return nil, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("reading attributes: %w", diags)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		value, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluating attribute %q: %w", name, diags)
		}
		values[name] = value
	}
	return values, nil
}

// Targets returns every loaded target in build-file order.
func (g *Graph) Targets() []*Target {
	return g.order
}

// Resolve implements the accessor contract: it returns the target at the
// address, or, when the address carries a configuration selector, the
// selected configuration. A selector naming a missing configuration is a
// hard error rather than a silent fallback.
func (g *Graph) Resolve(addr address.Address) (any, error) {
	target, ok := g.targets[addr.Base()]
	if !ok {
		return nil, fmt.Errorf("no target at address %s", addr.Base())
	}
	if addr.Config == "" {
		return target, nil
	}
	return target.Configuration(addr.Config)
}

// ConfiguredDependencies implements the accessor contract: the declared
// dependencies of the entity, each paired with the configuration its address
// selected.
func (g *Graph) ConfiguredDependencies(entity any, configuration string) ([]engine.Dependency, error) {
	var owner *Target
	var depAddrs []address.Address
	switch e := entity.(type) {
	case *Target:
		owner = e
		depAddrs = e.Deps
		if configuration != "" {
			cfg, err := e.Configuration(configuration)
			if err != nil {
				return nil, err
			}
			if cfg.Deps != nil {
				depAddrs = cfg.Deps
			}
		}
	case *Configuration:
		owner = e.Owner
		depAddrs = e.Deps
		if depAddrs == nil {
			depAddrs = e.Owner.Deps
		}
	default:
		// Entities other than targets and configurations have no declared
		// dependencies.
		return nil, nil
	}

	deps := make([]engine.Dependency, 0, len(depAddrs))
	for _, addr := range depAddrs {
		depTarget, ok := g.targets[addr.Base()]
		if !ok {
			return nil, fmt.Errorf("dependency %s of %s does not exist", addr.Base(), owner.Address)
		}
		dep := engine.Dependency{Entity: depTarget}
		if addr.Config != "" {
			cfg, err := depTarget.Configuration(addr.Config)
			if err != nil {
				return nil, fmt.Errorf("dependency of %s on %s selects configuration %q: %w",
					owner.Address, addr.Base(), addr.Config, err)
			}
			dep.Configuration = cfg
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// NativeProducts implements the accessor contract. A target natively carries
// itself and each of its configurations; any other entity is itself a
// product.
func (g *Graph) NativeProducts(entity any) []any {
	switch e := entity.(type) {
	case *Target:
		products := make([]any, 0, 1+len(e.Configurations))
		products = append(products, e)
		for _, c := range e.Configurations {
			products = append(products, c)
		}
		return products
	default:
		return []any{entity}
	}
}
