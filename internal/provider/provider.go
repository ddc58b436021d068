// Package provider defines the authorities that simulate vehicle motion.
// The registry offers a new actor to each provider in priority order; the
// first provider that accepts it owns its motion until the next handoff.
package provider

import (
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// Provider is an external authority that can simulate vehicle motion.
type Provider interface {
	// Source names the provider for vehicle states and logs.
	Source() string
	// Actions lists the action spaces the provider can actuate.
	Actions() []core.ActionSpace
	// CanAcceptActor reports whether the provider will take responsibility
	// for the actor in the given state.
	CanAcceptActor(state core.VehicleState) bool
	// AddActor registers the actor with the provider.
	AddActor(state core.VehicleState) error
	// ManagesActor reports whether the provider currently owns the actor's
	// motion.
	ManagesActor(actorID string) bool
	// StopManaging removes the actor from the provider.
	StopManaging(actorID string)
}

// LocationReserver is implemented by stateful traffic authorities that need
// space held for a vehicle while it is torn down and rebuilt under the same
// id.
type LocationReserver interface {
	ReserveLocation(actorID string, footprint geom.Polygon)
}

// Accepts reports whether the provider handles the given action space.
func Accepts(p Provider, space core.ActionSpace) bool {
	for _, a := range p.Actions() {
		if a == space {
			return true
		}
	}
	return false
}
