package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/olegsinavski/SMARTS/internal/agent"
	"github.com/olegsinavski/SMARTS/internal/chassis"
	"github.com/olegsinavski/SMARTS/internal/provider"
	"github.com/olegsinavski/SMARTS/internal/recorder"
	"github.com/olegsinavski/SMARTS/internal/registry"
	"github.com/olegsinavski/SMARTS/internal/scenario"
	"github.com/olegsinavski/SMARTS/internal/sim"
	"github.com/olegsinavski/SMARTS/internal/telemetry"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

// episode drives one simulation run through the observation/action cycle.
type episode struct {
	log      zerolog.Logger
	ctx      *sim.Context
	registry *registry.VehicleRegistry
	manager  *agent.LifecycleManager
	scenario *scenario.Scenario
	traffic  *provider.TrafficProvider
	backend  recorder.Backend
	influx   *telemetry.Manager

	tickRate float64
	maxTicks uint64

	tick     uint64
	handoffs int
}

func (e *episode) run() error {
	rec := core.Episode{
		ScenarioName: e.scenario.Name,
		StartTime:    time.Now(),
		TickRate:     e.tickRate,
	}
	if err := e.backend.StartEpisode(&rec); err != nil {
		return fmt.Errorf("starting episode recording: %w", err)
	}
	defer func() {
		if err := e.backend.EndEpisode(); err != nil {
			e.log.Error().Err(err).Msg("Failed to end episode recording")
		}
	}()

	if err := e.setup(); err != nil {
		return err
	}

	dt := 1.0 / e.tickRate
	var actions map[string]core.AgentAction

	for e.tick = 1; e.tick <= e.maxTicks; e.tick++ {
		tickStart := time.Now()
		e.handoffs = 0

		e.actuate(actions, dt)
		e.stepTraffic(dt)
		e.registry.Sync(e.ctx)
		e.updateBubbles()
		e.reapBoids()

		result := e.manager.Observe(e.ctx, e.registry, e.tick, false, nil)
		e.record(tickStart, result)

		if result.AllDone {
			e.log.Info().Uint64("tick", e.tick).Msg("All ego agents done, ending episode")
			break
		}

		egoActions := e.builtinEgoActions(result)
		var err error
		actions, err = e.manager.FetchAgentActions(e.registry, egoActions, result.Observations)
		if err != nil {
			return fmt.Errorf("fetching agent actions at tick %d: %w", e.tick, err)
		}
	}

	e.log.Info().Uint64("ticks", e.tick).Msg("Episode finished")
	return nil
}

// setup spawns the scenario's actors: ego agents with missions, managed
// social agents, and initial traffic.
func (e *episode) setup() error {
	for agentID := range e.scenario.Missions {
		e.manager.AddEgoAgent(agentID, core.AgentInterface{
			ActionSpace:     core.ActionSpaceLaneFollowing,
			MaxEpisodeSteps: int(e.maxTicks),
		}, false)
	}
	if err := e.manager.SetupAgents(e.ctx, e.registry, e.scenario.Missions); err != nil {
		return err
	}

	for _, def := range e.scenario.SocialAgentModels() {
		spawned, err := e.manager.SpawnSocialAgent(e.ctx, e.registry, def.Model.ID, def.Spec, def.Model, def.Mission)
		if err != nil {
			return fmt.Errorf("spawning social agent %s: %w", def.Model.ID, err)
		}
		if !spawned {
			e.log.Warn().Str("agentId", def.Model.ID).Msg("Duplicate social agent in scenario")
		}
	}

	for _, state := range e.scenario.TrafficFlows {
		v, err := e.registry.RegisterSocialVehicle(e.ctx, state, "")
		if err != nil {
			return fmt.Errorf("registering traffic vehicle: %w", err)
		}
		if err := e.traffic.AddActor(v.State(core.RoleTraffic, e.traffic.Source())); err != nil {
			return fmt.Errorf("adding traffic vehicle: %w", err)
		}
		st := v.State(core.RoleTraffic, e.traffic.Source())
		if err := e.backend.AddVehicle(&st); err != nil {
			e.log.Error().Err(err).Msg("Failed to record traffic vehicle")
		}
	}
	return nil
}

// actuate applies last tick's actions to the vehicles their agents own.
func (e *episode) actuate(actions map[string]core.AgentAction, dt float64) {
	for agentID, action := range actions {
		for _, vehicleID := range e.registry.VehicleIDsOfOwner(agentID, false) {
			v, ok := e.registry.VehicleByID(vehicleID)
			if !ok {
				continue
			}
			a := action.Single
			if action.PerVehicle != nil {
				pv, ok := action.PerVehicle[vehicleID]
				if !ok {
					continue
				}
				a = &pv
			}
			if a == nil {
				continue
			}
			applyAction(v.Chassis(), *a, dt)
		}
	}
}

const trafficAcceleration = 3.0 // m/s^2 applied by throttle/brake

func applyAction(c chassis.Chassis, a core.Action, dt float64) {
	switch a.Space {
	case core.ActionSpaceContinuous:
		ack, ok := c.(*chassis.AckermannChassis)
		if !ok || len(a.Continuous) < 3 {
			return
		}
		ack.Control(a.Continuous[0], a.Continuous[1], a.Continuous[2])
		speed := ack.Speed() + (a.Continuous[0]-a.Continuous[1])*trafficAcceleration*dt
		if speed < 0 {
			speed = 0
		}
		ack.SetSpeed(speed)
		pose := ack.Pose()
		pose.Heading += a.Continuous[2] * dt
		advance(&pose, speed, dt)
		ack.SetPose(pose)
	case core.ActionSpaceTargetPose:
		if a.TargetPose != nil {
			c.SetPose(*a.TargetPose)
		}
	case core.ActionSpaceLaneFollowing:
		c.SetSpeed(a.Speed)
		pose := c.Pose()
		advance(&pose, a.Speed, dt)
		c.SetPose(pose)
	}
}

func advance(pose *core.Pose, speed, dt float64) {
	sin, cos := math.Sincos(pose.Heading)
	pose.Position.X += speed * dt * cos
	pose.Position.Y += speed * dt * sin
}

// stepTraffic cruises traffic vehicles straight ahead at their current
// speed. A real traffic authority would route them; the reference loop only
// needs them moving so bubbles and sensors have something to see.
func (e *episode) stepTraffic(dt float64) {
	for _, vehicleID := range e.registry.TrafficVehicleIDs() {
		v, ok := e.registry.VehicleByID(vehicleID)
		if !ok {
			continue
		}
		pose := v.Pose()
		advance(&pose, v.Speed(), dt)
		v.Chassis().SetPose(pose)
	}
}

// updateBubbles hands traffic vehicles inside a bubble to the bubble's
// social agent and returns them to traffic once they leave.
func (e *episode) updateBubbles() {
	for _, b := range e.scenario.Bubbles() {
		agentID := b.Actor.ID

		for _, vehicleID := range e.registry.TrafficVehicleIDs() {
			pos, ok := e.registry.VehiclePosition(vehicleID)
			if !ok || !b.Contains(pos) {
				continue
			}
			if err := e.captureVehicle(b, vehicleID); err != nil {
				e.log.Error().Err(err).Str("vehicleId", vehicleID).
					Str("bubble", b.ID).Msg("Bubble capture failed")
			}
		}

		for _, vehicleID := range e.registry.VehicleIDsOfOwner(agentID, false) {
			pos, ok := e.registry.VehiclePosition(vehicleID)
			if !ok || b.Contains(pos) {
				continue
			}
			state, route, err := e.registry.Relinquish(e.ctx, vehicleID)
			if err != nil {
				e.log.Error().Err(err).Str("vehicleId", vehicleID).Msg("Relinquish failed")
				continue
			}
			e.traffic.AcceptReturningActor(state, route)
		}
	}
}

func (e *episode) captureVehicle(b scenario.Bubble, vehicleID string) error {
	agentID := b.Actor.ID
	if !e.manager.AgentHasVehicle(e.registry, agentID) {
		if err := e.manager.StartSocialAgent(agentID, b.Spec, b.Actor); err != nil {
			// already running with zero vehicles is fine for keep-alive boids
			e.log.Debug().Err(err).Str("agentId", agentID).Msg("Social agent start skipped")
		}
	}

	// Shadow first so sensors are warm when control flips.
	if _, err := e.registry.BeginShadow(e.ctx, vehicleID, agentID, b.Spec.Interface, core.Mission{}, b.Actor.IsBoid); err != nil {
		return err
	}
	_, err := e.registry.TransferOwnership(e.ctx, vehicleID, agentID, true, b.Actor.IsBoid, b.Spec.Interface.ActionSpace)
	return err
}

// reapBoids tears down boid agents that ran out of vehicles and are not
// keep-alive.
func (e *episode) reapBoids() {
	var done []string
	for _, agentID := range e.manager.SocialAgentIDs() {
		if e.manager.IsBoidDone(e.registry, agentID) {
			done = append(done, agentID)
		}
	}
	if len(done) > 0 {
		e.manager.TeardownSocialAgents(e.ctx, e.registry, done)
	}
}

// builtinEgoActions keeps scenario ego agents driving their missions. An
// embedding application would supply these from its own policies.
func (e *episode) builtinEgoActions(result agent.ObserveResult) map[string]core.AgentAction {
	actions := make(map[string]core.AgentAction)
	for _, agentID := range e.manager.EgoAgentIDs() {
		obs, ok := result.Observations[agentID]
		if !ok || obs.Single == nil {
			continue
		}
		actions[agentID] = core.AgentAction{Single: &core.Action{
			Space: core.ActionSpaceLaneFollowing,
			Speed: 10,
		}}
	}
	return actions
}

func (e *episode) record(tickStart time.Time, result agent.ObserveResult) {
	frame := e.registry.Frame()

	stats := core.TickStats{
		Tick:     e.tick,
		Duration: time.Since(tickStart),
		Handoffs: e.handoffs,
	}
	for _, rec := range e.registry.Records() {
		switch rec.Role {
		case core.RoleEgoAgent:
			stats.EgoVehicles++
		case core.RoleSocialAgent:
			stats.SocialVehicles++
		case core.RoleTraffic:
			stats.TrafficVehicles++
		}
		if rec.ShadowerID != "" {
			stats.Shadowed++
		}
	}

	for vehicleID, state := range frame {
		sample := core.VehicleTickState{
			Tick:      e.tick,
			VehicleID: vehicleID,
			Role:      state.Role,
			Position:  state.Pose.Position,
			Heading:   state.Pose.Heading,
			Speed:     state.Speed,
		}
		if err := e.backend.RecordTickState(&sample); err != nil {
			e.log.Error().Err(err).Str("vehicleId", vehicleID).Msg("Failed to record tick state")
		}
		if e.influx != nil {
			if err := e.influx.WriteVehiclePosition(context.Background(), e.scenario.Name, sample); err != nil {
				e.log.Error().Err(err).Msg("Failed to write vehicle telemetry")
			}
		}
	}

	if err := e.backend.RecordTickStats(&stats); err != nil {
		e.log.Error().Err(err).Msg("Failed to record tick stats")
	}
	if e.influx != nil {
		if err := e.influx.WriteTickStats(context.Background(), e.scenario.Name, stats); err != nil {
			e.log.Error().Err(err).Msg("Failed to write tick telemetry")
		}
	}
}
