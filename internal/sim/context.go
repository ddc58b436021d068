// Package sim carries the explicit simulation handle threaded through every
// registry and lifecycle operation. Nothing in the core reaches for global
// simulation state; whatever an operation touches arrives through this
// context.
package sim

import (
	"github.com/olegsinavski/SMARTS/internal/provider"
	"github.com/olegsinavski/SMARTS/internal/sensor"
)

// Context aggregates the external collaborators an operation may need.
// Providers are in priority order: the first provider that accepts a new
// actor wins.
type Context struct {
	Providers []provider.Provider
	Sensors   *sensor.Manager
}

// New creates a context over the given collaborators.
func New(sensors *sensor.Manager, providers ...provider.Provider) *Context {
	return &Context{Providers: providers, Sensors: sensors}
}
