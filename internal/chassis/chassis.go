// Package chassis models the two interchangeable vehicle bodies: a dynamic
// Ackermann chassis for action spaces that need continuous dynamics, and a
// kinematic box chassis for everything else. Swapping between them must not
// introduce any discontinuity in pose or speed.
package chassis

import (
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/olegsinavski/SMARTS/internal/geo"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

// Kind identifies the chassis implementation.
type Kind string

const (
	KindBox       Kind = "box"
	KindAckermann Kind = "ackermann"
)

// Chassis is the physical body of a vehicle.
type Chassis interface {
	Kind() Kind
	Pose() core.Pose
	Speed() float64
	Dimensions() core.Dimensions
	// Footprint is the occupied rectangle in the simulation plane.
	Footprint() geom.Polygon
	SetPose(core.Pose)
	SetSpeed(float64)
}

// BoxChassis is a kinematic body: pose and speed are set directly by its
// controlling authority.
type BoxChassis struct {
	pose  core.Pose
	speed float64
	dims  core.Dimensions
}

// NewBox creates a kinematic chassis at the given pose and speed.
func NewBox(pose core.Pose, speed float64, dims core.Dimensions) *BoxChassis {
	return &BoxChassis{pose: pose, speed: speed, dims: dims}
}

func (b *BoxChassis) Kind() Kind                  { return KindBox }
func (b *BoxChassis) Pose() core.Pose             { return b.pose }
func (b *BoxChassis) Speed() float64              { return b.speed }
func (b *BoxChassis) Dimensions() core.Dimensions { return b.dims }
func (b *BoxChassis) SetPose(p core.Pose)         { b.pose = p }
func (b *BoxChassis) SetSpeed(s float64)          { b.speed = s }

func (b *BoxChassis) Footprint() geom.Polygon {
	return geo.Footprint(b.pose, b.dims)
}

// AckermannChassis is a dynamic body actuated by throttle, brake and
// steering. Besides pose and speed it carries actuation state that must be
// copied explicitly when a vehicle is rebuilt under the same id.
type AckermannChassis struct {
	pose  core.Pose
	speed float64
	dims  core.Dimensions

	steeringAngle float64
	throttle      float64
	brake         float64
}

// NewAckermann creates a dynamic chassis at the given pose and speed.
func NewAckermann(pose core.Pose, speed float64, dims core.Dimensions) *AckermannChassis {
	return &AckermannChassis{pose: pose, speed: speed, dims: dims}
}

func (a *AckermannChassis) Kind() Kind                  { return KindAckermann }
func (a *AckermannChassis) Pose() core.Pose             { return a.pose }
func (a *AckermannChassis) Speed() float64              { return a.speed }
func (a *AckermannChassis) Dimensions() core.Dimensions { return a.dims }
func (a *AckermannChassis) SetPose(p core.Pose)         { a.pose = p }
func (a *AckermannChassis) SetSpeed(s float64)          { a.speed = s }

func (a *AckermannChassis) Footprint() geom.Polygon {
	return geo.Footprint(a.pose, a.dims)
}

// Control applies the continuous action inputs.
func (a *AckermannChassis) Control(throttle, brake, steering float64) {
	a.throttle = throttle
	a.brake = brake
	a.steeringAngle = steering
}

// SteeringAngle returns the current steering angle in radians.
func (a *AckermannChassis) SteeringAngle() float64 { return a.steeringAngle }

// InheritPhysicalValues copies pose, speed and, when the source is also
// dynamic, actuation state from another chassis. Used on the recreate
// handoff path where the vehicle object is rebuilt rather than swapped.
func (a *AckermannChassis) InheritPhysicalValues(other Chassis) {
	a.pose = other.Pose()
	a.speed = other.Speed()
	if o, ok := other.(*AckermannChassis); ok {
		a.steeringAngle = o.steeringAngle
		a.throttle = o.throttle
		a.brake = o.brake
	}
}

// ForActionSpace builds the chassis kind the action space requires,
// preserving the given pose and speed exactly.
func ForActionSpace(space core.ActionSpace, pose core.Pose, speed float64, dims core.Dimensions) Chassis {
	if space.RequiresDynamics() {
		return NewAckermann(pose, speed, dims)
	}
	return NewBox(pose, speed, dims)
}
