// Package agent runs the lifecycle of ego and social agents: spawning them
// into vehicles, producing their per-tick observations, and fanning their
// actions back out to the vehicles they own.
package agent

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/olegsinavski/SMARTS/internal/controller"
	"github.com/olegsinavski/SMARTS/internal/registry"
	"github.com/olegsinavski/SMARTS/internal/sim"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

// ObserveResult bundles everything one tick's observation pass produces.
type ObserveResult struct {
	Observations map[string]core.AgentObservation
	Rewards      map[string]core.AgentValue
	Scores       map[string]core.AgentValue
	Dones        map[string]core.AgentDone

	// AllDone is set when every ego agent is done, or on a forced reset,
	// and the episode should end regardless of per-agent flags.
	AllDone bool
}

// LifecycleManager tracks which agents are alive and drives their
// observation/action cycle against the vehicle registry.
type LifecycleManager struct {
	log  zerolog.Logger
	pool *controller.Pool

	egoIDs     map[string]struct{}
	socialIDs  map[string]struct{}
	pendingIDs map[string]struct{} // ego agents waiting on a trap or bubble

	interfaces   map[string]core.AgentInterface
	socialSpecs  map[string]core.AgentSpec
	socialModels map[string]core.SocialAgentModel
	handles      map[string]*controller.Handle

	reserved map[string]core.AgentAction // one-shot action overrides
}

// NewLifecycleManager creates a manager over the given controller pool.
func NewLifecycleManager(log zerolog.Logger, pool *controller.Pool) *LifecycleManager {
	return &LifecycleManager{
		log:          log.With().Str("component", "agent-manager").Logger(),
		pool:         pool,
		egoIDs:       make(map[string]struct{}),
		socialIDs:    make(map[string]struct{}),
		pendingIDs:   make(map[string]struct{}),
		interfaces:   make(map[string]core.AgentInterface),
		socialSpecs:  make(map[string]core.AgentSpec),
		socialModels: make(map[string]core.SocialAgentModel),
		handles:      make(map[string]*controller.Handle),
		reserved:     make(map[string]core.AgentAction),
	}
}

// AddEgoAgent registers an ego agent. Pending agents have no vehicle yet;
// they activate later, when a trap or takeover gives them one.
func (m *LifecycleManager) AddEgoAgent(agentID string, iface core.AgentInterface, pending bool) {
	m.interfaces[agentID] = iface
	if pending {
		m.pendingIDs[agentID] = struct{}{}
		return
	}
	m.egoIDs[agentID] = struct{}{}
}

// ActivatePendingAgent moves a pending ego agent into the active roster,
// e.g. once it has captured a vehicle.
func (m *LifecycleManager) ActivatePendingAgent(agentID string) {
	if _, ok := m.pendingIDs[agentID]; !ok {
		return
	}
	delete(m.pendingIDs, agentID)
	m.egoIDs[agentID] = struct{}{}
}

// SetupAgents spawns vehicles for the given ego agents from their missions.
func (m *LifecycleManager) SetupAgents(ctx *sim.Context, reg *registry.VehicleRegistry, missions map[string]core.Mission) error {
	for agentID := range m.egoIDs {
		mission, ok := missions[agentID]
		if !ok {
			continue
		}
		iface := m.interfaces[agentID]
		if _, err := reg.RegisterOwnedVehicle(ctx, agentID, iface, mission, true, registry.SpawnOptions{}); err != nil {
			return fmt.Errorf("spawning vehicle for agent %s: %w", agentID, err)
		}
	}
	return nil
}

// StartSocialAgent registers a managed social agent and boots its
// controller worker. The agent has no vehicle until one is spawned or
// transferred to it.
func (m *LifecycleManager) StartSocialAgent(agentID string, spec core.AgentSpec, model core.SocialAgentModel) error {
	if _, exists := m.socialIDs[agentID]; exists {
		return fmt.Errorf("social agent %s already started", agentID)
	}

	handle := m.pool.Acquire()
	if err := handle.Start(spec); err != nil {
		return fmt.Errorf("starting controller for %s: %w", agentID, err)
	}

	m.socialIDs[agentID] = struct{}{}
	m.interfaces[agentID] = spec.Interface
	m.socialSpecs[agentID] = spec
	m.socialModels[agentID] = model
	m.handles[agentID] = handle

	m.log.Debug().Str("agentId", agentID).Str("policy", spec.PolicyLocator).
		Bool("boid", model.IsBoid).Msg("Started social agent")
	return nil
}

// SpawnSocialAgent starts a social agent and gives it a fresh vehicle built
// from the mission. Returns false without error when the agent is already
// running, so bubble logic can call it idempotently.
func (m *LifecycleManager) SpawnSocialAgent(ctx *sim.Context, reg *registry.VehicleRegistry, agentID string, spec core.AgentSpec, model core.SocialAgentModel, mission core.Mission) (bool, error) {
	if _, exists := m.socialIDs[agentID]; exists {
		return false, nil
	}
	if err := m.StartSocialAgent(agentID, spec, model); err != nil {
		return false, err
	}
	_, err := reg.RegisterOwnedVehicle(ctx, agentID, spec.Interface, mission, false, registry.SpawnOptions{
		Boid:         model.IsBoid,
		InitialSpeed: model.InitialSpeed,
	})
	if err != nil {
		m.stopSocialAgent(agentID)
		return false, err
	}
	return true, nil
}

func (m *LifecycleManager) stopSocialAgent(agentID string) {
	if handle, ok := m.handles[agentID]; ok {
		handle.Terminate()
	}
	delete(m.handles, agentID)
	delete(m.socialIDs, agentID)
	delete(m.socialSpecs, agentID)
	delete(m.socialModels, agentID)
	delete(m.interfaces, agentID)
	delete(m.reserved, agentID)
}

// TeardownEgoAgents destroys the given ego agents and their vehicles. A nil
// filter tears down all of them. Returns the ids torn down.
func (m *LifecycleManager) TeardownEgoAgents(ctx *sim.Context, reg *registry.VehicleRegistry, filter []string) []string {
	ids := m.selectIDs(m.egoIDs, filter)
	for _, id := range ids {
		delete(m.egoIDs, id)
		delete(m.pendingIDs, id)
		delete(m.interfaces, id)
	}
	reg.TeardownByOwner(ctx, ids, true)
	return ids
}

// TeardownSocialAgents destroys the given social agents, terminating their
// controllers and their vehicles. A nil filter tears down all of them.
func (m *LifecycleManager) TeardownSocialAgents(ctx *sim.Context, reg *registry.VehicleRegistry, filter []string) []string {
	ids := m.selectIDs(m.socialIDs, filter)
	for _, id := range ids {
		m.stopSocialAgent(id)
	}
	reg.TeardownByOwner(ctx, ids, true)
	return ids
}

func (m *LifecycleManager) selectIDs(roster map[string]struct{}, filter []string) []string {
	if filter == nil {
		out := make([]string, 0, len(roster))
		for id := range roster {
			out = append(out, id)
		}
		return out
	}
	var out []string
	for _, id := range filter {
		if _, ok := roster[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Observe computes this tick's observations, rewards, scores and done flags
// for every active agent. forceReset marks every agent done and sets the
// result's AllDone flag, so one external reset signal ends the episode even
// when no ego agents are on the roster. forcedDones does the same for
// individual agents; for boid agents either override applies to every
// sub-vehicle.
func (m *LifecycleManager) Observe(ctx *sim.Context, reg *registry.VehicleRegistry, tick uint64, forceReset bool, forcedDones map[string]bool) ObserveResult {
	frame := reg.Frame()

	res := ObserveResult{
		Observations: make(map[string]core.AgentObservation),
		Rewards:      make(map[string]core.AgentValue),
		Scores:       make(map[string]core.AgentValue),
		Dones:        make(map[string]core.AgentDone),
	}

	observe := func(agentID string) {
		forced := forceReset || forcedDones[agentID]
		vehicleIDs := reg.VehicleIDsOfOwner(agentID, true)
		if len(vehicleIDs) == 0 {
			// The agent's vehicles are gone (collision teardown, bubble
			// exit). It still gets a final done so trainers can close the
			// episode.
			res.Dones[agentID] = core.AgentDone{Done: true}
			return
		}

		if m.IsBoidAgent(agentID) {
			obs, dones := ctx.Sensors.ObserveBatch(frame, tick, vehicleIDs)
			rewards := make(map[string]float64, len(vehicleIDs))
			scores := make(map[string]float64, len(vehicleIDs))
			for _, vehicleID := range vehicleIDs {
				rewards[vehicleID] = ctx.Sensors.TripMeter(vehicleID, true)
				scores[vehicleID] = ctx.Sensors.TripMeter(vehicleID, false)
			}
			if forced {
				for _, vehicleID := range vehicleIDs {
					dones[vehicleID] = true
				}
			}
			res.Observations[agentID] = core.AgentObservation{PerVehicle: obs}
			res.Rewards[agentID] = core.AgentValue{PerVehicle: rewards}
			res.Scores[agentID] = core.AgentValue{PerVehicle: scores}
			res.Dones[agentID] = core.AgentDone{PerVehicle: dones}
			return
		}

		vehicleID := vehicleIDs[0]
		obsByAgent, donesByAgent := ctx.Sensors.Observe(frame, tick, map[string]string{agentID: vehicleID})
		obs, ok := obsByAgent[agentID]
		if !ok {
			res.Dones[agentID] = core.AgentDone{Done: true}
			return
		}
		done := donesByAgent[agentID] || forced

		res.Observations[agentID] = core.AgentObservation{Single: &obs}
		res.Rewards[agentID] = core.AgentValue{Single: ctx.Sensors.TripMeter(vehicleID, true)}
		res.Scores[agentID] = core.AgentValue{Single: ctx.Sensors.TripMeter(vehicleID, false)}
		res.Dones[agentID] = core.AgentDone{Done: done}
	}

	for agentID := range m.egoIDs {
		observe(agentID)
	}
	for agentID := range m.socialIDs {
		observe(agentID)
	}

	res.AllDone = forceReset || m.allEgoDone(res.Dones)
	return res
}

func (m *LifecycleManager) allEgoDone(dones map[string]core.AgentDone) bool {
	if len(m.egoIDs) == 0 {
		return false
	}
	for agentID := range m.egoIDs {
		d, ok := dones[agentID]
		if !ok || !d.Done {
			return false
		}
	}
	return true
}

// FetchAgentActions collects this tick's actions: ego actions arrive from
// the caller, social actions come from controller workers fed the matching
// observations. Reserved one-shot actions short-circuit the controller.
// Actions are filtered to vehicles the agent owns; a merely shadowed
// vehicle never receives the shadower's action.
func (m *LifecycleManager) FetchAgentActions(reg *registry.VehicleRegistry, egoActions map[string]core.AgentAction, observations map[string]core.AgentObservation) (map[string]core.AgentAction, error) {
	results := make(map[string]controller.ActionResult)

	for agentID := range m.egoIDs {
		action, ok := egoActions[agentID]
		if !ok {
			if len(reg.VehicleIDsOfOwner(agentID, false)) > 0 {
				m.log.Warn().Str("agentId", agentID).Msg("No action provided for ego agent")
			}
			continue
		}
		results[agentID] = controller.Ready(action)
	}

	// Issue all social requests before waiting on any, so the workers
	// compute concurrently.
	for agentID := range m.socialIDs {
		if action, ok := m.reserved[agentID]; ok {
			delete(m.reserved, agentID)
			results[agentID] = controller.Ready(action)
			continue
		}
		obs, ok := observations[agentID]
		if !ok {
			if len(reg.VehicleIDsOfOwner(agentID, false)) > 0 {
				m.log.Warn().Str("agentId", agentID).Msg("No observation for social agent, skipping action")
			}
			continue
		}
		results[agentID] = controller.Pending(m.handles[agentID].Act(obs))
	}

	actions := make(map[string]core.AgentAction, len(results))
	for agentID, result := range results {
		action, err := result.Wait()
		if err != nil {
			m.log.Error().Err(err).Str("agentId", agentID).Msg("Controller failed to produce an action")
			return nil, fmt.Errorf("%w: agent %s: %v", core.ErrControllerFailure, agentID, err)
		}
		filtered, ok := m.filterToOwned(reg, agentID, action)
		if !ok {
			m.log.Warn().Str("agentId", agentID).Msg("Action targets no owned vehicles, dropping")
			continue
		}
		actions[agentID] = filtered
	}
	return actions, nil
}

// filterToOwned trims an action to the vehicles the agent actually owns.
func (m *LifecycleManager) filterToOwned(reg *registry.VehicleRegistry, agentID string, action core.AgentAction) (core.AgentAction, bool) {
	owned := reg.VehicleIDsOfOwner(agentID, false)
	if len(owned) == 0 {
		return core.AgentAction{}, false
	}

	if action.PerVehicle != nil {
		ownedSet := make(map[string]struct{}, len(owned))
		for _, id := range owned {
			ownedSet[id] = struct{}{}
		}
		filtered := make(map[string]core.Action, len(action.PerVehicle))
		for vehicleID, a := range action.PerVehicle {
			if _, ok := ownedSet[vehicleID]; ok {
				filtered[vehicleID] = a
			}
		}
		if len(filtered) == 0 {
			return core.AgentAction{}, false
		}
		return core.AgentAction{PerVehicle: filtered}, true
	}
	return action, true
}

// ReserveSocialAgentAction queues a one-shot action override for a social
// agent. It is consumed by the next FetchAgentActions and then cleared.
func (m *LifecycleManager) ReserveSocialAgentAction(agentID string, action core.AgentAction) {
	m.reserved[agentID] = action
}

// IsBoidAgent reports whether the agent controls multiple vehicles.
func (m *LifecycleManager) IsBoidAgent(agentID string) bool {
	model, ok := m.socialModels[agentID]
	return ok && model.IsBoid
}

// IsBoidKeepAlive reports whether a boid agent outlives its vehicles.
func (m *LifecycleManager) IsBoidKeepAlive(agentID string) bool {
	model, ok := m.socialModels[agentID]
	return ok && model.IsBoid && model.IsBoidKeepAlive
}

// IsBoidDone reports whether a boid agent should be torn down: it has no
// vehicles left and is not marked keep-alive. Keep-alive boids idle until
// their bubble hands them another vehicle.
func (m *LifecycleManager) IsBoidDone(reg *registry.VehicleRegistry, agentID string) bool {
	if !m.IsBoidAgent(agentID) {
		return false
	}
	if m.IsBoidKeepAlive(agentID) {
		return false
	}
	return len(reg.VehicleIDsOfOwner(agentID, true)) == 0
}

// AgentHasVehicle reports whether the agent owns or shadows any vehicle.
func (m *LifecycleManager) AgentHasVehicle(reg *registry.VehicleRegistry, agentID string) bool {
	return len(reg.VehicleIDsOfOwner(agentID, true)) > 0
}

// VehiclesForAgent returns the ids of vehicles the agent owns or shadows.
func (m *LifecycleManager) VehiclesForAgent(reg *registry.VehicleRegistry, agentID string) []string {
	return reg.VehicleIDsOfOwner(agentID, true)
}

// EgoAgentIDs returns the active ego agent roster.
func (m *LifecycleManager) EgoAgentIDs() []string {
	return m.selectIDs(m.egoIDs, nil)
}

// SocialAgentIDs returns the active social agent roster.
func (m *LifecycleManager) SocialAgentIDs() []string {
	return m.selectIDs(m.socialIDs, nil)
}

// PendingAgentIDs returns the ego agents still waiting for a vehicle.
func (m *LifecycleManager) PendingAgentIDs() []string {
	return m.selectIDs(m.pendingIDs, nil)
}

// InterfaceFor returns the registered interface of an agent.
func (m *LifecycleManager) InterfaceFor(agentID string) (core.AgentInterface, bool) {
	iface, ok := m.interfaces[agentID]
	return iface, ok
}

// Teardown destroys every agent and vehicle the manager knows about.
func (m *LifecycleManager) Teardown(ctx *sim.Context, reg *registry.VehicleRegistry) {
	m.TeardownSocialAgents(ctx, reg, nil)
	m.TeardownEgoAgents(ctx, reg, nil)
	m.reserved = make(map[string]core.AgentAction)
}
