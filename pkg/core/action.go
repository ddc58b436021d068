// pkg/core/action.go
package core

// Action is a single vehicle command in one of the supported encodings.
type Action struct {
	Space      ActionSpace `json:"space"`
	Continuous []float64   `json:"continuous,omitempty"` // throttle, brake, steering
	TargetPose *Pose       `json:"targetPose,omitempty"`
	Lane       int         `json:"lane,omitempty"`
	Speed      float64     `json:"speed,omitempty"`
}

// AgentAction is what one agent emits per tick. Standard agents fill
// Single; boid agents fill PerVehicle, keyed by vehicle id.
type AgentAction struct {
	Single     *Action           `json:"single,omitempty"`
	PerVehicle map[string]Action `json:"perVehicle,omitempty"`
}

// Observation is what the sensors report for one vehicle each tick.
type Observation struct {
	VehicleID         string     `json:"vehicleId"`
	Tick              uint64     `json:"tick"`
	Pose              Pose       `json:"pose"`
	Speed             float64    `json:"speed"`
	DistanceTravelled float64    `json:"distanceTravelled"`
	DistanceToGoal    float64    `json:"distanceToGoal"`
	Neighborhood      []VehicleState `json:"neighborhood,omitempty"`
	StepsCompleted    int        `json:"stepsCompleted"`
}

// AgentObservation mirrors AgentAction for the observation direction.
type AgentObservation struct {
	Single     *Observation
	PerVehicle map[string]Observation
}

// AgentValue carries a scalar (reward or score) for a standard agent, or
// one scalar per vehicle for a boid agent.
type AgentValue struct {
	Single     float64
	PerVehicle map[string]float64
}

// AgentDone carries the done flag for a standard agent, or one flag per
// vehicle for a boid agent.
type AgentDone struct {
	Done       bool
	PerVehicle map[string]bool
}
