// Package builtin contributes the built-in goals and task rules: source
// listing and recursive bundling. They double as the reference for wiring
// new capabilities into the planner registry.
package builtin

import (
	"context"
	"fmt"
	"path"

	"github.com/laebshade/pants/internal/engine"
	"github.com/laebshade/pants/internal/fsutil"
	"github.com/laebshade/pants/internal/graph"
)

// FileSet is the product of the filegroup task: the source files owned by a
// single target, as build-root-relative paths in stable order.
type FileSet struct {
	Owner *graph.Target
	Files []string
}

func (f *FileSet) String() string {
	return fmt.Sprintf("FileSet(%s, %d files)", f.Owner, len(f.Files))
}

// Bundle is the product of the bundle task: a target's own files plus the
// bundles of every dependency, deduplicated, order-stable.
type Bundle struct {
	Owner *graph.Target
	Files []string
}

func (b *Bundle) String() string {
	return fmt.Sprintf("Bundle(%s, %d files)", b.Owner, len(b.Files))
}

// ListSources resolves a target's source globs against its build directory.
func ListSources(ctx context.Context, inputs map[string]any) (any, error) {
	target, ok := inputs["target"].(*graph.Target)
	if !ok {
		return nil, fmt.Errorf("filegroup: expected a target input, got %T", inputs["target"])
	}
	matches, err := fsutil.Glob(target.BuildDir, target.Sources)
	if err != nil {
		return nil, fmt.Errorf("filegroup: globbing sources of %s: %w", target, err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, path.Join(target.Address.Dir, m))
	}
	return &FileSet{Owner: target, Files: files}, nil
}

// BundleTask merges a target's file set with the bundles of its
// dependencies.
type BundleTask struct{}

// Execute implements engine.Task.
func (BundleTask) Execute(ctx context.Context, inputs map[string]any) (any, error) {
	fileSet, ok := inputs["fileset"].(*FileSet)
	if !ok {
		return nil, fmt.Errorf("bundle: expected a fileset input, got %T", inputs["fileset"])
	}
	depBundles, _ := inputs["bundle"].([]any)

	seen := make(map[string]struct{})
	var files []string
	add := func(paths []string) {
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	add(fileSet.Files)
	for _, v := range depBundles {
		dep, ok := v.(*Bundle)
		if !ok {
			return nil, fmt.Errorf("bundle: expected a bundle dependency, got %T", v)
		}
		add(dep.Files)
	}
	return &Bundle{Owner: fileSet.Owner, Files: files}, nil
}

// Module implements engine.Module for this package.
type Module struct{}

// Register contributes the built-in goals and rules to the registry.
func (Module) Register(p *engine.Planners) {
	p.RegisterGoal("sources", engine.Product[*FileSet]())
	p.RegisterGoal("bundle", engine.Product[*Bundle]())

	p.RegisterRule(
		engine.Product[*FileSet](),
		[]engine.Select{engine.SelectSubject(engine.Product[*graph.Target]())},
		ListSources,
	)
	p.RegisterRule(
		engine.Product[*Bundle](),
		[]engine.Select{
			engine.SelectSubject(engine.Product[*FileSet]()),
			engine.SelectDependencies(engine.Product[*Bundle](), ""),
		},
		BundleTask{},
	)
}
