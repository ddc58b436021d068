// Package registry is the single source of truth for vehicle ownership.
// Every live vehicle has exactly one control record naming its owning
// authority and at most one shadowing observer; every ownership change in
// the simulation goes through one of the operations here.
//
// The registry is tick-synchronous: mutations happen only between ticks and
// reads within a tick see one consistent snapshot, so no locking is done on
// the record table itself.
package registry

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/olegsinavski/SMARTS/internal/chassis"
	"github.com/olegsinavski/SMARTS/internal/provider"
	"github.com/olegsinavski/SMARTS/internal/sensor"
	"github.com/olegsinavski/SMARTS/internal/sim"
	"github.com/olegsinavski/SMARTS/internal/vehicle"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

// HandoffListener observes ownership transitions, e.g. to persist them.
type HandoffListener func(core.HandoffEvent)

// Option configures a VehicleRegistry.
type Option func(*VehicleRegistry)

// WithHandoffListener registers a listener for ownership transitions.
func WithHandoffListener(l HandoffListener) Option {
	return func(r *VehicleRegistry) {
		r.listeners = append(r.listeners, l)
	}
}

// VehicleRegistry associates owners with vehicles.
type VehicleRegistry struct {
	log zerolog.Logger

	records      map[string]*core.ControlRecord
	vehicles     map[string]*vehicle.Vehicle
	actionSpaces map[string]core.ActionSpace // per observed/controlled vehicle

	listeners []HandoffListener
	metrics   *metrics
}

// New creates an empty registry.
func New(log zerolog.Logger, opts ...Option) (*VehicleRegistry, error) {
	r := &VehicleRegistry{
		log:          log.With().Str("component", "vehicle-registry").Logger(),
		records:      make(map[string]*core.ControlRecord),
		vehicles:     make(map[string]*vehicle.Vehicle),
		actionSpaces: make(map[string]core.ActionSpace),
	}
	for _, opt := range opts {
		opt(r)
	}

	m, err := newMetrics(r)
	if err != nil {
		return nil, fmt.Errorf("creating registry metrics: %w", err)
	}
	r.metrics = m
	return r, nil
}

func (r *VehicleRegistry) emit(ev core.HandoffEvent) {
	r.metrics.recordHandoff(ev.Kind)
	for _, l := range r.listeners {
		l(ev)
	}
}

// SpawnOptions tune RegisterOwnedVehicle beyond its required arguments.
type SpawnOptions struct {
	Boid         bool
	InitialSpeed float64
	VehicleID    string // defaults to the agent id
}

// RegisterOwnedVehicle builds an entirely new vehicle for an agent, attaches
// its sensors, and registers it with the first provider that accepts it.
// The role is ego for trainable agents and social otherwise.
func (r *VehicleRegistry) RegisterOwnedVehicle(ctx *sim.Context, agentID string, iface core.AgentInterface, mission core.Mission, trainable bool, opts SpawnOptions) (*vehicle.Vehicle, error) {
	vehicleID := opts.VehicleID
	if vehicleID == "" {
		vehicleID = agentID
	}
	if _, exists := r.records[vehicleID]; exists {
		return nil, fmt.Errorf("%w: vehicle %s already registered", core.ErrInvariantViolation, vehicleID)
	}

	v := vehicle.BuildAgentVehicle(vehicleID, iface, mission, opts.InitialSpeed)

	role := core.RoleSocialAgent
	if trainable {
		role = core.RoleEgoAgent
	}

	r.enfranchiseAgent(ctx, agentID, iface, mission, v, role, opts.Boid, false)

	if err := r.registerWithProvider(ctx, v, role, iface.ActionSpace); err != nil {
		// Roll back so a misconfigured provider set does not leave a
		// half-registered vehicle behind.
		r.removeVehicle(ctx, vehicleID)
		return nil, err
	}

	r.emit(core.HandoffEvent{
		VehicleID: vehicleID,
		Kind:      core.HandoffSpawn,
		OwnerID:   agentID,
		Role:      role,
		IsBoid:    opts.Boid,
		Position:  v.Position(),
	})
	return v, nil
}

// RegisterSocialVehicle builds a new non-agent vehicle from a
// provider-supplied state. Agent roles are invalid input here; agent
// vehicles go through RegisterOwnedVehicle.
func (r *VehicleRegistry) RegisterSocialVehicle(ctx *sim.Context, state core.VehicleState, ownerID string) (*vehicle.Vehicle, error) {
	if state.Role.IsAgent() {
		return nil, fmt.Errorf("social vehicle cannot have agent role %s (source %s)", state.Role, state.Source)
	}

	vehicleID := state.ActorID
	if vehicleID == "" {
		vehicleID = vehicle.GenID()
	}
	if _, exists := r.records[vehicleID]; exists {
		return nil, fmt.Errorf("%w: vehicle %s already registered", core.ErrInvariantViolation, vehicleID)
	}

	role := state.Role
	if role == core.RoleNone && ownerID == "" {
		role = core.RoleTraffic
	}
	// A traffic vehicle never has an owner; an externally owned vehicle
	// (e.g. history replay) keeps RoleNone.
	if role == core.RoleTraffic {
		ownerID = ""
	}

	v := vehicle.BuildTrafficVehicle(vehicleID, state)
	r.vehicles[vehicleID] = v
	r.records[vehicleID] = &core.ControlRecord{
		VehicleID: vehicleID,
		OwnerID:   ownerID,
		Role:      role,
		Position:  v.Position(),
	}
	return v, nil
}

// BeginShadow attaches agent-required sensors to a vehicle without
// transferring ownership, and marks the agent as its shadower.
func (r *VehicleRegistry) BeginShadow(ctx *sim.Context, vehicleID, agentID string, iface core.AgentInterface, mission core.Mission, boid bool) (*vehicle.Vehicle, error) {
	rec, ok := r.records[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: cannot shadow unknown vehicle %s", core.ErrInvariantViolation, vehicleID)
	}

	v := r.vehicles[vehicleID]
	ctx.Sensors.AddSensorState(vehicleID, &sensor.State{
		MaxEpisodeSteps: iface.MaxEpisodeSteps,
		Plan:            mission,
	})
	r.actionSpaces[vehicleID] = iface.ActionSpace

	rec.ShadowerID = agentID
	rec.IsBoid = boid

	r.emit(core.HandoffEvent{
		VehicleID: vehicleID,
		Kind:      core.HandoffShadow,
		OwnerID:   rec.OwnerID,
		Role:      rec.Role,
		IsBoid:    boid,
		Position:  v.Position(),
	})
	return v, nil
}

// StopShadow removes the shadowing observer from one vehicle, or from all
// vehicles it shadows when vehicleID is empty.
func (r *VehicleRegistry) StopShadow(shadowerID, vehicleID string) {
	for id, rec := range r.records {
		if rec.ShadowerID != shadowerID {
			continue
		}
		if vehicleID != "" && id != vehicleID {
			continue
		}
		rec.ShadowerID = ""
	}
}

// TransferOwnership gives control of a vehicle to an agent, swapping the
// chassis in place to whatever the target action space needs. Pose and
// speed carry over exactly. Transferring an owned vehicle without the
// hijacking flag is a duplicate-owner violation and fatal.
func (r *VehicleRegistry) TransferOwnership(ctx *sim.Context, vehicleID, newOwnerID string, hijacking, boid bool, targetSpace core.ActionSpace) (*vehicle.Vehicle, error) {
	rec, ok := r.records[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: cannot transfer unknown vehicle %s", core.ErrInvariantViolation, vehicleID)
	}
	if rec.OwnerID != "" && rec.OwnerID != newOwnerID && !hijacking {
		return nil, fmt.Errorf("%w: vehicle %s already owned by %s", core.ErrInvariantViolation, vehicleID, rec.OwnerID)
	}

	r.log.Debug().Str("vehicleId", vehicleID).Str("agentId", newOwnerID).
		Bool("hijacking", hijacking).Msg("Switching control")

	v := r.vehicles[vehicleID]
	prevOwner := rec.OwnerID

	role := core.RoleEgoAgent
	kind := core.HandoffTakeover
	if hijacking {
		role = core.RoleSocialAgent
		kind = core.HandoffHijack
	}

	// The provider handoff goes first: a failing provider set must leave
	// the record, chassis and action space untouched.
	if err := r.handOverToProvider(ctx, v, role, targetSpace); err != nil {
		prevSpace, ok := r.actionSpaces[vehicleID]
		if !ok {
			prevSpace = core.ActionSpaceEmpty
		}
		if rerr := r.registerWithProvider(ctx, v, rec.Role, prevSpace); rerr != nil {
			r.log.Error().Err(rerr).Str("vehicleId", vehicleID).
				Msg("Failed to restore previous provider after handoff failure")
		}
		return nil, err
	}

	c := chassis.ForActionSpace(targetSpace, v.Pose(), v.Speed(), v.Dimensions())
	v.SwapChassis(c)
	r.actionSpaces[vehicleID] = targetSpace

	rec.Role = role
	rec.OwnerID = newOwnerID
	rec.ShadowerID = ""
	rec.IsBoid = boid
	rec.IsHijacked = hijacking

	r.emit(core.HandoffEvent{
		VehicleID:  vehicleID,
		Kind:       kind,
		OwnerID:    newOwnerID,
		PrevOwner:  prevOwner,
		Role:       role,
		IsBoid:     boid,
		IsHijacked: hijacking,
		Position:   v.Position(),
	})
	return v, nil
}

// TransferOwnershipRecreate is the alternate handoff used when the in-place
// swap is unsafe for a stateful traffic authority that distinguishes a
// vehicle joining its flow from a new entry: the vehicle is destroyed and
// rebuilt under the same id, physical state is copied over explicitly, and
// the authority sees a deregister/register pair instead of a silent swap.
// More costly than TransferOwnership; use only against such authorities.
func (r *VehicleRegistry) TransferOwnershipRecreate(ctx *sim.Context, vehicleID, newOwnerID string, hijacking, boid bool, iface core.AgentInterface) (*vehicle.Vehicle, error) {
	rec, ok := r.records[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: cannot transfer unknown vehicle %s", core.ErrInvariantViolation, vehicleID)
	}
	if rec.OwnerID != "" && rec.OwnerID != newOwnerID && !hijacking {
		return nil, fmt.Errorf("%w: vehicle %s already owned by %s", core.ErrInvariantViolation, vehicleID, rec.OwnerID)
	}

	old := r.vehicles[vehicleID]
	oldChassis := old.Chassis()
	prevOwner := rec.OwnerID

	// Keep the sensor state so episode progress survives the rebuild.
	ss, hadSensors := ctx.Sensors.SensorStateFor(vehicleID)

	mission := core.Mission{StartPose: old.Pose(), VehicleType: old.VehicleType()}
	if hadSensors {
		mission = ss.Plan
		mission.StartPose = old.Pose()
	}

	// Hold the vehicle's space in every traffic authority that manages it,
	// then remove the old vehicle from the index and from those
	// authorities before re-registering the rebuilt one.
	for _, p := range ctx.Providers {
		if !p.ManagesActor(vehicleID) {
			continue
		}
		if reserver, ok := p.(provider.LocationReserver); ok {
			reserver.ReserveLocation(vehicleID, oldChassis.Footprint())
		}
	}
	r.removeVehicle(ctx, vehicleID)
	for _, p := range ctx.Providers {
		if p.ManagesActor(vehicleID) {
			p.StopManaging(vehicleID)
		}
	}

	newVehicle := vehicle.BuildAgentVehicle(vehicleID, iface, mission, old.Speed())
	if ack, ok := newVehicle.Chassis().(*chassis.AckermannChassis); ok {
		ack.InheritPhysicalValues(oldChassis)
	} else {
		newVehicle.Chassis().SetPose(oldChassis.Pose())
		newVehicle.Chassis().SetSpeed(oldChassis.Speed())
	}

	role := core.RoleEgoAgent
	if hijacking {
		role = core.RoleSocialAgent
	}
	r.enfranchiseAgent(ctx, newOwnerID, iface, mission, newVehicle, role, boid, hijacking)
	if hadSensors {
		ctx.Sensors.AddSensorState(vehicleID, ss)
	}

	if err := r.registerWithProvider(ctx, newVehicle, role, iface.ActionSpace); err != nil {
		return nil, err
	}

	r.emit(core.HandoffEvent{
		VehicleID:  vehicleID,
		Kind:       core.HandoffHijack,
		OwnerID:    newOwnerID,
		PrevOwner:  prevOwner,
		Role:       role,
		IsBoid:     boid,
		IsHijacked: hijacking,
		Position:   newVehicle.Position(),
	})
	return newVehicle, nil
}

// Relinquish returns a vehicle to the traffic authority: sensors come off,
// the chassis reverts to kinematic, and the record is cleared back to the
// traffic role. The returned state and remaining route let the caller hand
// the vehicle to the traffic authority.
func (r *VehicleRegistry) Relinquish(ctx *sim.Context, vehicleID string) (core.VehicleState, []string, error) {
	rec, ok := r.records[vehicleID]
	if !ok {
		return core.VehicleState{}, nil, fmt.Errorf("%w: cannot relinquish unknown vehicle %s", core.ErrInvariantViolation, vehicleID)
	}

	r.log.Debug().Str("vehicleId", vehicleID).Msg("Relinquishing agent control")

	v := r.vehicles[vehicleID]
	prevOwner := rec.OwnerID

	var route []string
	if ss, ok := ctx.Sensors.SensorStateFor(vehicleID); ok {
		route = ss.Plan.Route
	}
	ctx.Sensors.DetachSensors(vehicleID)
	delete(r.actionSpaces, vehicleID)

	v.SwapChassis(chassis.NewBox(v.Pose(), v.Speed(), v.Dimensions()))

	rec.Role = core.RoleTraffic
	rec.OwnerID = ""
	rec.ShadowerID = ""
	rec.IsBoid = false
	rec.IsHijacked = false

	for _, p := range ctx.Providers {
		if p.ManagesActor(vehicleID) {
			p.StopManaging(vehicleID)
		}
	}

	state := v.State(core.RoleTraffic, "registry")
	r.emit(core.HandoffEvent{
		VehicleID: vehicleID,
		Kind:      core.HandoffRelinquish,
		PrevOwner: prevOwner,
		Role:      core.RoleTraffic,
		Position:  v.Position(),
		Route:     route,
	})
	return state, route, nil
}

// Teardown destroys the given vehicles, clearing sensors and records.
// Unknown ids are skipped: teardown races episode boundaries naturally.
func (r *VehicleRegistry) Teardown(ctx *sim.Context, vehicleIDs []string) {
	if len(vehicleIDs) == 0 {
		return
	}
	r.log.Debug().Strs("vehicleIds", vehicleIDs).Msg("Tearing down vehicles")

	for _, id := range vehicleIDs {
		rec, ok := r.records[id]
		if !ok {
			continue
		}
		pos := core.Position3D{}
		if v, ok := r.vehicles[id]; ok {
			pos = v.Position()
		}
		prevOwner := rec.OwnerID
		r.removeVehicle(ctx, id)
		for _, p := range ctx.Providers {
			if p.ManagesActor(id) {
				p.StopManaging(id)
			}
		}
		r.emit(core.HandoffEvent{
			VehicleID: id,
			Kind:      core.HandoffTeardown,
			PrevOwner: prevOwner,
			Position:  pos,
		})
	}
}

// TeardownByOwner destroys all vehicles associated with the given owners
// and returns the ids that were destroyed.
func (r *VehicleRegistry) TeardownByOwner(ctx *sim.Context, ownerIDs []string, includeShadowing bool) []string {
	var vehicleIDs []string
	for _, ownerID := range ownerIDs {
		vehicleIDs = append(vehicleIDs, r.VehicleIDsOfOwner(ownerID, includeShadowing)...)
	}
	r.Teardown(ctx, vehicleIDs)
	return vehicleIDs
}

// TeardownAll resets the registry, destroying every vehicle.
func (r *VehicleRegistry) TeardownAll(ctx *sim.Context) {
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	r.Teardown(ctx, ids)
}

// Sync refreshes cached positions from the live vehicles and advances trip
// meters. Call once per tick, after providers have moved their vehicles.
func (r *VehicleRegistry) Sync(ctx *sim.Context) {
	for id, v := range r.vehicles {
		pos := v.Position()
		r.records[id].Position = pos
		ctx.Sensors.Advance(id, pos)
	}
}

// Frame snapshots every live vehicle for this tick's observation reads.
func (r *VehicleRegistry) Frame() sensor.Frame {
	frame := make(sensor.Frame, len(r.vehicles))
	for id, v := range r.vehicles {
		frame[id] = v.State(r.records[id].Role, "registry")
	}
	return frame
}

func (r *VehicleRegistry) enfranchiseAgent(ctx *sim.Context, agentID string, iface core.AgentInterface, mission core.Mission, v *vehicle.Vehicle, role core.ActorRole, boid, hijacked bool) {
	vehicleID := v.ID()
	ctx.Sensors.AddSensorState(vehicleID, &sensor.State{
		MaxEpisodeSteps: iface.MaxEpisodeSteps,
		Plan:            mission,
	})
	r.actionSpaces[vehicleID] = iface.ActionSpace
	r.vehicles[vehicleID] = v
	r.records[vehicleID] = &core.ControlRecord{
		VehicleID:  vehicleID,
		OwnerID:    agentID,
		Role:       role,
		IsBoid:     boid,
		IsHijacked: hijacked,
		Position:   v.Position(),
	}
}

// registerWithProvider offers the vehicle to each provider in priority
// order; the first accepting provider gets it. No acceptor means the
// provider set cannot support this role/action-space combination.
func (r *VehicleRegistry) registerWithProvider(ctx *sim.Context, v *vehicle.Vehicle, role core.ActorRole, space core.ActionSpace) error {
	for _, p := range ctx.Providers {
		if !provider.Accepts(p, space) {
			continue
		}
		state := v.State(role, p.Source())
		if !p.CanAcceptActor(state) {
			continue
		}
		if err := p.AddActor(state); err != nil {
			return fmt.Errorf("provider %s rejected actor %s: %w", p.Source(), v.ID(), err)
		}
		return nil
	}
	return fmt.Errorf("%w: role=%s action_space=%s", core.ErrProviderUnavailable, role, space)
}

// handOverToProvider moves a vehicle's motion authority: whoever manages it
// stops, and the first provider accepting the new role takes over.
func (r *VehicleRegistry) handOverToProvider(ctx *sim.Context, v *vehicle.Vehicle, role core.ActorRole, space core.ActionSpace) error {
	for _, p := range ctx.Providers {
		if p.ManagesActor(v.ID()) {
			p.StopManaging(v.ID())
		}
	}
	return r.registerWithProvider(ctx, v, role, space)
}

func (r *VehicleRegistry) removeVehicle(ctx *sim.Context, vehicleID string) {
	ctx.Sensors.DetachSensors(vehicleID)
	delete(r.actionSpaces, vehicleID)
	delete(r.records, vehicleID)
	delete(r.vehicles, vehicleID)
}
