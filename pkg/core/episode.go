// pkg/core/episode.go
package core

import "time"

// Episode represents one recorded simulation episode.
type Episode struct {
	ID           uint
	ScenarioName string
	StartTime    time.Time
	EndTime      time.Time
	TickRate     float64
}

// HandoffKind labels an ownership transition for the recorder.
type HandoffKind string

const (
	HandoffSpawn      HandoffKind = "spawn"
	HandoffShadow     HandoffKind = "shadow"
	HandoffHijack     HandoffKind = "hijack"
	HandoffTakeover   HandoffKind = "takeover"
	HandoffRelinquish HandoffKind = "relinquish"
	HandoffTeardown   HandoffKind = "teardown"
)

// HandoffEvent records one ownership or shadowing transition.
type HandoffEvent struct {
	Tick       uint64
	VehicleID  string
	Kind       HandoffKind
	OwnerID    string // owner after the transition, empty if none
	PrevOwner  string
	Role       ActorRole
	IsBoid     bool
	IsHijacked bool
	Position   Position3D
	Route      []string // only populated on relinquish
}

// VehicleTickState is a per-tick positional sample for the recorder.
type VehicleTickState struct {
	Tick      uint64
	VehicleID string
	Role      ActorRole
	Position  Position3D
	Heading   float64
	Speed     float64
}

// TickStats aggregates one tick for telemetry.
type TickStats struct {
	Tick            uint64
	Duration        time.Duration
	EgoVehicles     int
	SocialVehicles  int
	TrafficVehicles int
	Shadowed        int
	Handoffs        int
}
