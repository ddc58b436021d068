package provider

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// AgentsProvider actuates vehicles controlled by ego and social agents. It
// accepts every agent role so a correctly ordered provider set always has a
// fallback for agent vehicles.
type AgentsProvider struct {
	log zerolog.Logger

	mu      sync.Mutex
	managed map[string]core.VehicleState
}

// NewAgentsProvider creates an agents provider.
func NewAgentsProvider(log zerolog.Logger) *AgentsProvider {
	return &AgentsProvider{
		log:     log.With().Str("provider", "agents").Logger(),
		managed: make(map[string]core.VehicleState),
	}
}

func (p *AgentsProvider) Source() string { return "agents" }

func (p *AgentsProvider) Actions() []core.ActionSpace {
	return []core.ActionSpace{
		core.ActionSpaceContinuous,
		core.ActionSpaceTargetPose,
		core.ActionSpaceLaneFollowing,
		core.ActionSpaceEmpty,
	}
}

func (p *AgentsProvider) CanAcceptActor(state core.VehicleState) bool {
	return state.Role.IsAgent()
}

func (p *AgentsProvider) AddActor(state core.VehicleState) error {
	if !state.Role.IsAgent() {
		return fmt.Errorf("agents provider cannot manage role %s", state.Role)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.managed[state.ActorID] = state
	p.log.Debug().Str("actorId", state.ActorID).Str("role", state.Role.String()).
		Msg("Managing actor")
	return nil
}

func (p *AgentsProvider) ManagesActor(actorID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.managed[actorID]
	return ok
}

func (p *AgentsProvider) StopManaging(actorID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.managed, actorID)
}
