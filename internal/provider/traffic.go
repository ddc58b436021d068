package provider

import (
	"fmt"
	"sync"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/rs/zerolog"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// TrafficProvider is a stateful traffic authority. It distinguishes a
// vehicle joining its flow (handoff of an existing vehicle) from a new
// entry, which is why an in-place chassis swap is not always safe for it:
// the recreate handoff path deregisters the old vehicle and registers the
// rebuilt one so this internal state stays consistent.
type TrafficProvider struct {
	log zerolog.Logger

	mu           sync.Mutex
	managed      map[string]core.VehicleState
	joined       map[string]bool // actors that joined mid-life rather than entering fresh
	reservations map[string]geom.Polygon
	routes       map[string][]string
}

// NewTrafficProvider creates a traffic provider.
func NewTrafficProvider(log zerolog.Logger) *TrafficProvider {
	return &TrafficProvider{
		log:          log.With().Str("provider", "traffic").Logger(),
		managed:      make(map[string]core.VehicleState),
		joined:       make(map[string]bool),
		reservations: make(map[string]geom.Polygon),
		routes:       make(map[string][]string),
	}
}

func (p *TrafficProvider) Source() string { return "traffic" }

func (p *TrafficProvider) Actions() []core.ActionSpace {
	return []core.ActionSpace{core.ActionSpaceEmpty}
}

func (p *TrafficProvider) CanAcceptActor(state core.VehicleState) bool {
	return state.Role == core.RoleTraffic
}

func (p *TrafficProvider) AddActor(state core.VehicleState) error {
	if state.Role != core.RoleTraffic {
		return fmt.Errorf("traffic provider cannot manage role %s", state.Role)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.managed[state.ActorID] = state
	if _, reserved := p.reservations[state.ActorID]; reserved {
		// A reserved actor re-enters at its held location; treat as a join.
		p.joined[state.ActorID] = true
		delete(p.reservations, state.ActorID)
	}
	p.log.Debug().Str("actorId", state.ActorID).Msg("Managing actor")
	return nil
}

// AcceptReturningActor takes back a vehicle an agent relinquished, along
// with the remainder of its planned route.
func (p *TrafficProvider) AcceptReturningActor(state core.VehicleState, route []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state.Role = core.RoleTraffic
	p.managed[state.ActorID] = state
	p.joined[state.ActorID] = true
	p.routes[state.ActorID] = route
}

func (p *TrafficProvider) ManagesActor(actorID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.managed[actorID]
	return ok
}

func (p *TrafficProvider) StopManaging(actorID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.managed, actorID)
	delete(p.joined, actorID)
	delete(p.routes, actorID)
}

// ReserveLocation holds space for a vehicle that is being rebuilt under the
// same id, so the authority does not route other vehicles through it.
func (p *TrafficProvider) ReserveLocation(actorID string, footprint geom.Polygon) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reservations[actorID] = footprint
	p.log.Debug().Str("actorId", actorID).Msg("Reserved traffic location")
}

// HasJoined reports whether the actor joined the flow mid-life.
func (p *TrafficProvider) HasJoined(actorID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joined[actorID]
}

// RouteFor returns the remaining planned route for an actor, if known.
func (p *TrafficProvider) RouteFor(actorID string) ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	route, ok := p.routes[actorID]
	return route, ok
}
