// Package vehicle holds the simulated vehicle entity. A vehicle's identity
// is stable for its whole life; its chassis is interchangeable and decided
// by whichever authority controls it.
package vehicle

import (
	"github.com/google/uuid"

	"github.com/olegsinavski/SMARTS/internal/chassis"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

// GenID returns a fresh vehicle id.
func GenID() string {
	return "vehicle-" + uuid.NewString()
}

// Vehicle is a simulated entity with identity, pose, kinematic state and an
// interchangeable chassis.
type Vehicle struct {
	id      string
	config  core.VehicleConfig
	chassis chassis.Chassis
}

// New creates a vehicle with the given chassis.
func New(id string, config core.VehicleConfig, c chassis.Chassis) *Vehicle {
	return &Vehicle{id: id, config: config, chassis: c}
}

// BuildAgentVehicle builds a vehicle for an agent at its mission start pose.
// The chassis kind follows the agent's action space.
func BuildAgentVehicle(id string, iface core.AgentInterface, mission core.Mission, initialSpeed float64) *Vehicle {
	dims := core.DefaultPassengerDimensions
	vehicleType := mission.VehicleType
	if vehicleType == "" {
		vehicleType = "passenger"
	}

	speed := initialSpeed
	if speed == 0 {
		speed = mission.InitialSpeed
	}

	c := chassis.ForActionSpace(iface.ActionSpace, mission.StartPose, speed, dims)
	return New(id, core.VehicleConfig{VehicleType: vehicleType, Dimensions: dims}, c)
}

// BuildTrafficVehicle builds a vehicle from a provider-supplied state. These
// are always kinematic; the traffic authority positions them directly.
func BuildTrafficVehicle(id string, state core.VehicleState) *Vehicle {
	dims := state.Dimensions
	if dims == (core.Dimensions{}) {
		dims = core.DefaultPassengerDimensions
	}

	vehicleType := state.ActorType
	if vehicleType == "" {
		vehicleType = "passenger"
	}

	c := chassis.NewBox(state.Pose, state.Speed, dims)
	return New(id, core.VehicleConfig{VehicleType: vehicleType, Dimensions: dims}, c)
}

// ID returns the vehicle's stable identifier.
func (v *Vehicle) ID() string { return v.id }

// VehicleType returns the configured vehicle type.
func (v *Vehicle) VehicleType() string { return v.config.VehicleType }

// Chassis returns the current chassis.
func (v *Vehicle) Chassis() chassis.Chassis { return v.chassis }

// Pose returns the current pose.
func (v *Vehicle) Pose() core.Pose { return v.chassis.Pose() }

// Position returns the current position.
func (v *Vehicle) Position() core.Position3D { return v.chassis.Pose().Position }

// Speed returns the current speed in m/s.
func (v *Vehicle) Speed() float64 { return v.chassis.Speed() }

// Dimensions returns the vehicle's bounding box.
func (v *Vehicle) Dimensions() core.Dimensions { return v.config.Dimensions }

// SwapChassis replaces the chassis. Callers construct the replacement from
// this vehicle's current pose and speed so the swap is seamless.
func (v *Vehicle) SwapChassis(c chassis.Chassis) {
	v.chassis = c
}

// State snapshots the vehicle for providers and the recorder.
func (v *Vehicle) State(role core.ActorRole, source string) core.VehicleState {
	return core.VehicleState{
		ActorID:    v.id,
		ActorType:  v.config.VehicleType,
		Source:     source,
		Role:       role,
		Pose:       v.chassis.Pose(),
		Dimensions: v.config.Dimensions,
		Speed:      v.chassis.Speed(),
	}
}
