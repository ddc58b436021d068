// pkg/core/vehicle.go
package core

// VehicleState is the provider-facing snapshot of a vehicle. Providers
// receive it when asked whether they can accept an actor and when a new
// actor is registered with them.
type VehicleState struct {
	ActorID    string     `json:"actorId"`
	ActorType  string     `json:"actorType"` // e.g. "passenger", "truck", "bus"
	Source     string     `json:"source"`    // provider that produced the state
	Role       ActorRole  `json:"role"`
	Pose       Pose       `json:"pose"`
	Dimensions Dimensions `json:"dimensions"`
	Speed      float64    `json:"speed"`
}

// VehicleConfig carries the static configuration a vehicle is built with.
type VehicleConfig struct {
	VehicleType string
	Dimensions  Dimensions
}
