package controller

import (
	"sync"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// PolicyFactory builds a policy from an agent spec.
type PolicyFactory func(spec core.AgentSpec) Policy

var (
	registryMu     sync.Mutex
	policyRegistry = make(map[string]PolicyFactory)
)

// RegisterPolicy makes a policy available under the given locator.
// Registrations override the built-in policies of the same name.
func RegisterPolicy(locator string, factory PolicyFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	policyRegistry[locator] = factory
}
