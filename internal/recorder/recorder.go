// Package recorder persists episodes: every ownership handoff, per-tick
// vehicle samples, and tick aggregates, for replay and analysis.
package recorder

import "github.com/olegsinavski/SMARTS/pkg/core"

// Backend is the interface all recorder implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Episode management
	StartEpisode(episode *core.Episode) error
	EndEpisode() error

	// Entity registration (assigns ID to the passed pointer)
	AddVehicle(v *core.VehicleState) error

	// State recording
	RecordHandoff(e *core.HandoffEvent) error
	RecordTickState(s *core.VehicleTickState) error
	RecordTickStats(s *core.TickStats) error
}
