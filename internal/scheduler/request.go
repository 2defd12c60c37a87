package scheduler

import (
	"fmt"

	"github.com/laebshade/pants/internal/address"
)

// BuildRequest describes the user-requested build: the goal names and the
// root addresses the goals apply to. It is an immutable value.
type BuildRequest struct {
	goals     []string
	addresses []address.Address
}

// NewBuildRequest builds a request from goal names and root addresses.
func NewBuildRequest(goals []string, addresses []address.Address) BuildRequest {
	return BuildRequest{
		goals:     append([]string(nil), goals...),
		addresses: append([]address.Address(nil), addresses...),
	}
}

// Goals returns the requested goal names.
func (r BuildRequest) Goals() []string {
	return append([]string(nil), r.goals...)
}

// Addresses returns the requested root addresses.
func (r BuildRequest) Addresses() []address.Address {
	return append([]address.Address(nil), r.addresses...)
}

func (r BuildRequest) String() string {
	return fmt.Sprintf("BuildRequest(goals=%v, roots=%v)", r.goals, r.addresses)
}
