// Package schema defines the HCL structures of BUILD.hcl files.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Configuration represents a `configuration` block on a target. It carries
// an alternate dependency list and free-form attributes that become a native
// product of the target.
type Configuration struct {
	Name string   `hcl:"name,label"`
	Deps []string `hcl:"deps,optional"`
	Body hcl.Body `hcl:",remain"`
}

// Target represents a `target` block from a BUILD.hcl file.
type Target struct {
	Name           string           `hcl:"name,label"`
	Deps           []string         `hcl:"deps,optional"`
	Sources        []string         `hcl:"sources,optional"`
	Configurations []*Configuration `hcl:"configuration,block"`
	Body           hcl.Body         `hcl:",remain"`
}

// BuildFile represents the top-level structure of a BUILD.hcl file.
type BuildFile struct {
	Targets []*Target `hcl:"target,block"`
	Body    hcl.Body  `hcl:",remain"`
}
