// Package sensor computes per-vehicle observations and the trip-meter
// reward signal. Sensor state exists only for vehicles an agent observes or
// controls; traffic vehicles carry no sensors.
package sensor

import (
	"sync"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// Frame is the per-tick snapshot of every live vehicle, keyed by vehicle
// id. It is built once per tick so all reads within the tick are
// consistent.
type Frame map[string]core.VehicleState

// State tracks one vehicle's episode progress and mission plan.
type State struct {
	MaxEpisodeSteps int
	Plan            core.Mission

	stepsCompleted int
}

// StepsCompleted returns how many observation steps this sensor state has
// produced.
func (s *State) StepsCompleted() int { return s.stepsCompleted }

type tripMeter struct {
	total    float64
	pending  float64
	lastPos  core.Position3D
	hasPos   bool
}

// Manager owns sensor states and trip meters for all observed vehicles.
type Manager struct {
	mu     sync.Mutex
	states map[string]*State
	meters map[string]*tripMeter
}

// NewManager creates an empty sensor manager.
func NewManager() *Manager {
	return &Manager{
		states: make(map[string]*State),
		meters: make(map[string]*tripMeter),
	}
}

// AddSensorState attaches sensor state to a vehicle, replacing any previous
// state. A fresh trip meter is created if none exists.
func (m *Manager) AddSensorState(vehicleID string, state *State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[vehicleID] = state
	if _, ok := m.meters[vehicleID]; !ok {
		m.meters[vehicleID] = &tripMeter{}
	}
}

// SensorStateFor returns the sensor state for a vehicle, if any.
func (m *Manager) SensorStateFor(vehicleID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[vehicleID]
	return s, ok
}

// SensorStateExists reports whether a vehicle has sensor state attached.
func (m *Manager) SensorStateExists(vehicleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[vehicleID]
	return ok
}

// Advance feeds a new position into a vehicle's trip meter. Called from the
// registry's Sync between ticks.
func (m *Manager) Advance(vehicleID string, pos core.Position3D) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meter, ok := m.meters[vehicleID]
	if !ok {
		return
	}
	if meter.hasPos {
		d := meter.lastPos.DistanceTo(pos)
		meter.total += d
		meter.pending += d
	}
	meter.lastPos = pos
	meter.hasPos = true
}

// TripMeter reads a vehicle's trip meter. With increment it returns the
// distance accumulated since the last incremented read and resets that
// window (the reward); without, the episode total (the score). Unknown
// vehicles read zero: queries against torn-down vehicles occur naturally at
// episode boundaries.
func (m *Manager) TripMeter(vehicleID string, increment bool) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	meter, ok := m.meters[vehicleID]
	if !ok {
		return 0
	}
	if increment {
		d := meter.pending
		meter.pending = 0
		return d
	}
	return meter.total
}

// Observe produces observations and done flags for standard agents, keyed
// by agent id. agentVehicles maps each agent to its single vehicle.
func (m *Manager) Observe(frame Frame, tick uint64, agentVehicles map[string]string) (map[string]core.Observation, map[string]bool) {
	observations := make(map[string]core.Observation, len(agentVehicles))
	dones := make(map[string]bool, len(agentVehicles))

	for agentID, vehicleID := range agentVehicles {
		obs, done, ok := m.observeOne(frame, tick, vehicleID)
		if !ok {
			continue
		}
		observations[agentID] = obs
		dones[agentID] = done
	}
	return observations, dones
}

// ObserveBatch produces per-vehicle observations and done flags for one
// boid agent, keyed by vehicle id.
func (m *Manager) ObserveBatch(frame Frame, tick uint64, vehicleIDs []string) (map[string]core.Observation, map[string]bool) {
	observations := make(map[string]core.Observation, len(vehicleIDs))
	dones := make(map[string]bool, len(vehicleIDs))

	for _, vehicleID := range vehicleIDs {
		obs, done, ok := m.observeOne(frame, tick, vehicleID)
		if !ok {
			continue
		}
		observations[vehicleID] = obs
		dones[vehicleID] = done
	}
	return observations, dones
}

func (m *Manager) observeOne(frame Frame, tick uint64, vehicleID string) (core.Observation, bool, bool) {
	state, ok := frame[vehicleID]
	if !ok {
		return core.Observation{}, false, false
	}

	m.mu.Lock()
	ss, ok := m.states[vehicleID]
	if !ok {
		m.mu.Unlock()
		return core.Observation{}, false, false
	}
	ss.stepsCompleted++
	steps := ss.stepsCompleted
	maxSteps := ss.MaxEpisodeSteps
	plan := ss.Plan
	total := 0.0
	if meter, ok := m.meters[vehicleID]; ok {
		total = meter.total
	}
	m.mu.Unlock()

	distToGoal := state.Pose.Position.DistanceTo(plan.Goal)

	done := false
	if maxSteps > 0 && steps >= maxSteps {
		done = true
	}
	if plan.GoalRadius > 0 && distToGoal <= plan.GoalRadius {
		done = true
	}

	neighborhood := neighborsOf(frame, state, vehicleID)

	return core.Observation{
		VehicleID:         vehicleID,
		Tick:              tick,
		Pose:              state.Pose,
		Speed:             state.Speed,
		DistanceTravelled: total,
		DistanceToGoal:    distToGoal,
		Neighborhood:      neighborhood,
		StepsCompleted:    steps,
	}, done, true
}

const defaultNeighborhoodRadius = 50.0

func neighborsOf(frame Frame, self core.VehicleState, selfID string) []core.VehicleState {
	var out []core.VehicleState
	for id, other := range frame {
		if id == selfID {
			continue
		}
		if self.Pose.Position.DistanceTo(other.Pose.Position) <= defaultNeighborhoodRadius {
			out = append(out, other)
		}
	}
	return out
}

// DetachSensors removes sensor state and the trip meter for a vehicle.
func (m *Manager) DetachSensors(vehicleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, vehicleID)
	delete(m.meters, vehicleID)
}

// DetachSensorState removes only the sensor state, keeping the trip meter.
// Used when a vehicle returns to traffic but may be re-observed later.
func (m *Manager) DetachSensorState(vehicleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, vehicleID)
}

// Teardown clears all sensor state.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*State)
	m.meters = make(map[string]*tripMeter)
}
