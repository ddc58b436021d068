// Package scenario loads episode definitions: agent missions, managed
// social agents, and bubble zones where social agents capture passing
// traffic.
package scenario

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// SocialAgentDef pairs a managed social agent with its spec and optional
// spawn mission.
type SocialAgentDef struct {
	Spec    core.AgentSpec        `json:"spec" mapstructure:"spec"`
	Model   core.SocialAgentModel `json:"model" mapstructure:"model"`
	Mission core.Mission          `json:"mission" mapstructure:"mission"`
}

// Bubble is a spatial zone where a social agent takes over traffic vehicles
// that drive through it.
type Bubble struct {
	ID     string          `json:"id" mapstructure:"id"`
	Center core.Position3D `json:"center" mapstructure:"center"`
	Radius float64         `json:"radius" mapstructure:"radius"`

	Actor core.SocialAgentModel `json:"actor" mapstructure:"actor"`
	Spec  core.AgentSpec        `json:"spec" mapstructure:"spec"`
}

// Contains reports whether a position lies inside the bubble.
func (b Bubble) Contains(pos core.Position3D) bool {
	return b.Center.DistanceTo(pos) <= b.Radius
}

// Scenario is one loaded scenario definition.
type Scenario struct {
	Name         string                  `json:"name" mapstructure:"name"`
	Missions     map[string]core.Mission `json:"missions" mapstructure:"missions"`
	SocialAgents []SocialAgentDef        `json:"socialAgents" mapstructure:"socialAgents"`
	BubbleZones  []Bubble                `json:"bubbles" mapstructure:"bubbles"`
	TrafficFlows []core.VehicleState     `json:"traffic" mapstructure:"traffic"`
}

// Load reads a scenario YAML file from scenarioDir. The file is named
// scenario.yaml.
func Load(scenarioDir string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigName("scenario")
	v.SetConfigType("yaml")
	v.AddConfigPath(scenarioDir)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading scenario file: %v", err)
	}

	var s Scenario
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error decoding scenario: %v", err)
	}
	if s.Name == "" {
		s.Name = scenarioDir
	}
	return &s, nil
}

// MissionFor returns the mission assigned to an agent.
func (s *Scenario) MissionFor(agentID string) (core.Mission, bool) {
	m, ok := s.Missions[agentID]
	return m, ok
}

// SocialAgentModels returns the managed social agents of the scenario.
func (s *Scenario) SocialAgentModels() []SocialAgentDef {
	return s.SocialAgents
}

// Bubbles returns the scenario's capture zones.
func (s *Scenario) Bubbles() []Bubble {
	return s.BubbleZones
}
