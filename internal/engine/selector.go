package engine

import (
	"fmt"

	"github.com/laebshade/pants/internal/address"
)

// SelectKind enumerates the closed set of subject-derivation instructions.
type SelectKind int

const (
	// SelectBySubject uses the subject itself.
	SelectBySubject SelectKind = iota
	// SelectByDependencies uses the configured dependency subjects of the
	// subject.
	SelectByDependencies
	// SelectByLiteralAddress resolves an absolute address independent of the
	// input subject.
	SelectByLiteralAddress
)

func (k SelectKind) String() string {
	switch k {
	case SelectBySubject:
		return "subject"
	case SelectByDependencies:
		return "dependencies"
	case SelectByLiteralAddress:
		return "literal"
	default:
		return fmt.Sprintf("SelectKind(%d)", int(k))
	}
}

// Select is an immutable graph-expansion instruction pairing a derivation
// kind with the product type required from the derived subjects.
type Select struct {
	product       ProductType
	kind          SelectKind
	configuration string
	addr          address.Address
}

// SelectSubject requires the given product from the subject itself.
func SelectSubject(product ProductType) Select {
	return Select{product: product, kind: SelectBySubject}
}

// SelectDependencies requires the given product from each configured
// dependency of the subject. A non-empty configuration name narrows the
// dependency list to the named configuration block of the subject.
func SelectDependencies(product ProductType, configuration string) Select {
	return Select{product: product, kind: SelectByDependencies, configuration: configuration}
}

// SelectLiteral requires the given product from the entity at a literal
// address.
func SelectLiteral(product ProductType, addr address.Address) Select {
	return Select{product: product, kind: SelectByLiteralAddress, addr: addr}
}

// Product returns the required product type.
func (s Select) Product() ProductType { return s.product }

// Kind returns the derivation kind.
func (s Select) Kind() SelectKind { return s.kind }

// ConfigurationName returns the configuration narrowing a dependencies
// select, or "".
func (s Select) ConfigurationName() string { return s.configuration }

// Address returns the literal address of a literal select.
func (s Select) Address() address.Address { return s.addr }

func (s Select) String() string {
	switch s.kind {
	case SelectByDependencies:
		if s.configuration != "" {
			return fmt.Sprintf("Select(dependencies@%s -> %s)", s.configuration, s.product)
		}
		return fmt.Sprintf("Select(dependencies -> %s)", s.product)
	case SelectByLiteralAddress:
		return fmt.Sprintf("Select(%s -> %s)", s.addr, s.product)
	default:
		return fmt.Sprintf("Select(subject -> %s)", s.product)
	}
}
