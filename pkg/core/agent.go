// pkg/core/agent.go
package core

// ActionSpace identifies the action encoding an agent emits.
type ActionSpace string

const (
	// ActionSpaceContinuous is throttle/brake/steering; requires a dynamic
	// chassis.
	ActionSpaceContinuous ActionSpace = "continuous"
	// ActionSpaceTargetPose teleports kinematically to a target pose.
	ActionSpaceTargetPose ActionSpace = "target_pose"
	// ActionSpaceLaneFollowing is a discrete lane-change/speed command.
	ActionSpaceLaneFollowing ActionSpace = "lane_following"
	// ActionSpaceEmpty is for observation-only agents.
	ActionSpaceEmpty ActionSpace = "empty"
)

// RequiresDynamics reports whether the action space needs a dynamic chassis
// to be actuated.
func (a ActionSpace) RequiresDynamics() bool {
	return a == ActionSpaceContinuous
}

// AgentInterface declares what an agent needs from the simulation: its
// action encoding and sensor requirements.
type AgentInterface struct {
	ActionSpace     ActionSpace `json:"actionSpace" mapstructure:"actionSpace"`
	MaxEpisodeSteps int         `json:"maxEpisodeSteps" mapstructure:"maxEpisodeSteps"`
	NeighborhoodRadius float64  `json:"neighborhoodRadius" mapstructure:"neighborhoodRadius"`
}

// AgentSpec bundles the interface with the policy used to drive a social
// agent's controller worker.
type AgentSpec struct {
	Interface     AgentInterface `json:"interface" mapstructure:"interface"`
	PolicyLocator string         `json:"policyLocator" mapstructure:"policyLocator"`
}

// SocialAgentModel is the data model for a managed social agent.
type SocialAgentModel struct {
	ID              string  `json:"id" mapstructure:"id"`
	ActorName       string  `json:"actorName" mapstructure:"actorName"`
	IsBoid          bool    `json:"isBoid" mapstructure:"isBoid"`
	IsBoidKeepAlive bool    `json:"isBoidKeepAlive" mapstructure:"isBoidKeepAlive"`
	InitialSpeed    float64 `json:"initialSpeed" mapstructure:"initialSpeed"`
}

// Mission describes where an agent's vehicle starts and what it drives
// toward. Route is an ordered list of road ids for the traffic authority.
type Mission struct {
	StartPose    Pose     `json:"startPose" mapstructure:"startPose"`
	Goal         Position3D `json:"goal" mapstructure:"goal"`
	GoalRadius   float64  `json:"goalRadius" mapstructure:"goalRadius"`
	Route        []string `json:"route" mapstructure:"route"`
	VehicleType  string   `json:"vehicleType" mapstructure:"vehicleType"`
	InitialSpeed float64  `json:"initialSpeed" mapstructure:"initialSpeed"`
}
