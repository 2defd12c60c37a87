// Package address defines the build address grammar used to name targets.
//
// An address takes the form `//dir/path:name@config`. The leading `//` is
// optional, `:name` defaults to the last path segment, and `@config` selects
// a named configuration on the addressed target.
package address

import (
	"fmt"
	"path"
	"strings"
)

// Address identifies a target within the build graph, optionally narrowed to
// one of its configurations. It is a comparable value type.
type Address struct {
	// Dir is the directory of the build file declaring the target, relative
	// to the build root, using forward slashes.
	Dir string
	// Name is the target name within the build file.
	Name string
	// Config is the optional configuration selector (the `@config` suffix).
	Config string
}

// Parse parses the textual form of an address.
func Parse(spec string) (Address, error) {
	if spec == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if strings.ContainsAny(spec, " \t\n") {
		return Address{}, fmt.Errorf("invalid address %q: contains whitespace", spec)
	}

	rest := strings.TrimPrefix(spec, "//")

	var config string
	if i := strings.Index(rest, "@"); i >= 0 {
		config = rest[i+1:]
		rest = rest[:i]
		if config == "" {
			return Address{}, fmt.Errorf("invalid address %q: empty configuration selector", spec)
		}
		if strings.Contains(config, "@") {
			return Address{}, fmt.Errorf("invalid address %q: repeated configuration selector", spec)
		}
	}

	dir := rest
	var name string
	if i := strings.Index(rest, ":"); i >= 0 {
		dir = rest[:i]
		name = rest[i+1:]
		if name == "" || strings.Contains(name, ":") {
			return Address{}, fmt.Errorf("invalid address %q: malformed target name", spec)
		}
	} else {
		// Default the name to the last path segment.
		name = path.Base(rest)
	}
	if name == "" || name == "." || name == "/" {
		return Address{}, fmt.Errorf("invalid address %q: missing target name", spec)
	}

	return Address{Dir: path.Clean("/" + dir)[1:], Name: name, Config: config}, nil
}

// MustParse parses the given spec and panics on error. Intended for
// registration-time literals.
func MustParse(spec string) Address {
	a, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return a
}

// Base returns the address with any configuration selector stripped.
func (a Address) Base() Address {
	a.Config = ""
	return a
}

// String renders the canonical textual form.
func (a Address) String() string {
	s := "//" + a.Dir + ":" + a.Name
	if a.Config != "" {
		s += "@" + a.Config
	}
	return s
}
