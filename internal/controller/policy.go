package controller

import (
	"fmt"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// Policy computes one agent's action from its observation.
type Policy interface {
	Act(obs core.AgentObservation) (core.AgentAction, error)
}

// policyFor resolves a policy locator from an agent spec. These reference
// policies keep managed social agents moving; real deployments register
// richer policies through RegisterPolicy.
func policyFor(spec core.AgentSpec) (Policy, error) {
	registryMu.Lock()
	factory, ok := policyRegistry[spec.PolicyLocator]
	registryMu.Unlock()
	if ok {
		return factory(spec), nil
	}

	switch spec.PolicyLocator {
	case "", "keep-lane":
		return &keepLanePolicy{space: spec.Interface.ActionSpace}, nil
	case "cruise":
		return &cruisePolicy{space: spec.Interface.ActionSpace}, nil
	default:
		return nil, fmt.Errorf("unknown policy locator %q", spec.PolicyLocator)
	}
}

// keepLanePolicy holds the current lane at a steady speed.
type keepLanePolicy struct {
	space core.ActionSpace
}

func (p *keepLanePolicy) Act(obs core.AgentObservation) (core.AgentAction, error) {
	if obs.PerVehicle != nil {
		actions := make(map[string]core.Action, len(obs.PerVehicle))
		for vehicleID := range obs.PerVehicle {
			actions[vehicleID] = p.action()
		}
		return core.AgentAction{PerVehicle: actions}, nil
	}
	a := p.action()
	return core.AgentAction{Single: &a}, nil
}

func (p *keepLanePolicy) action() core.Action {
	if p.space == core.ActionSpaceContinuous {
		return core.Action{Space: p.space, Continuous: []float64{0.3, 0, 0}}
	}
	return core.Action{Space: core.ActionSpaceLaneFollowing, Lane: 0, Speed: 10}
}

// cruisePolicy tracks a target cruising speed.
type cruisePolicy struct {
	space core.ActionSpace
}

const cruiseTargetSpeed = 13.9 // ~50 km/h

func (p *cruisePolicy) Act(obs core.AgentObservation) (core.AgentAction, error) {
	if obs.PerVehicle != nil {
		actions := make(map[string]core.Action, len(obs.PerVehicle))
		for vehicleID, vo := range obs.PerVehicle {
			actions[vehicleID] = p.action(vo.Speed)
		}
		return core.AgentAction{PerVehicle: actions}, nil
	}
	speed := 0.0
	if obs.Single != nil {
		speed = obs.Single.Speed
	}
	a := p.action(speed)
	return core.AgentAction{Single: &a}, nil
}

func (p *cruisePolicy) action(speed float64) core.Action {
	if p.space == core.ActionSpaceContinuous {
		throttle := 0.0
		brake := 0.0
		if speed < cruiseTargetSpeed {
			throttle = 0.5
		} else {
			brake = 0.2
		}
		return core.Action{Space: p.space, Continuous: []float64{throttle, brake, 0}}
	}
	return core.Action{Space: core.ActionSpaceLaneFollowing, Lane: 0, Speed: cruiseTargetSpeed}
}
