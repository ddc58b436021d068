// pkg/core/actor.go
package core

// ActorRole describes which kind of authority controls an actor.
type ActorRole uint8

const (
	// RoleNone marks an actor with no controlling authority, such as a
	// history-replay vehicle that is positioned but not driven.
	RoleNone ActorRole = iota
	// RoleTraffic marks a vehicle driven by an autonomous traffic backend.
	RoleTraffic
	// RoleSocialAgent marks a vehicle controlled by a social agent.
	RoleSocialAgent
	// RoleEgoAgent marks a vehicle controlled by an ego (RL) agent.
	RoleEgoAgent
)

func (r ActorRole) String() string {
	switch r {
	case RoleTraffic:
		return "traffic"
	case RoleSocialAgent:
		return "social_agent"
	case RoleEgoAgent:
		return "ego_agent"
	default:
		return "none"
	}
}

// IsAgent reports whether the role belongs to a controllable agent.
func (r ActorRole) IsAgent() bool {
	return r == RoleEgoAgent || r == RoleSocialAgent
}

// ControlRecord is the single source of truth for who controls and who
// watches one vehicle. Exactly one record exists per live vehicle.
type ControlRecord struct {
	VehicleID  string
	OwnerID    string // empty when no agent owns the vehicle
	Role       ActorRole
	ShadowerID string // empty when nobody is shadowing
	IsBoid     bool
	IsHijacked bool
	Position   Position3D // cached, refreshed by Sync between ticks
}
