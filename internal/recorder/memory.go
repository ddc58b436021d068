package recorder

import (
	"sync"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// MemoryBackend keeps everything in process memory. Used in tests and when
// no database is configured.
type MemoryBackend struct {
	mu sync.Mutex

	Episodes   []core.Episode
	Vehicles   []core.VehicleState
	Handoffs   []core.HandoffEvent
	TickStates []core.VehicleTickState
	Stats      []core.TickStats

	nextEpisodeID uint
}

// NewMemoryBackend creates an empty in-memory recorder.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{nextEpisodeID: 1}
}

func (b *MemoryBackend) Init() error  { return nil }
func (b *MemoryBackend) Close() error { return nil }

func (b *MemoryBackend) StartEpisode(episode *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	episode.ID = b.nextEpisodeID
	b.nextEpisodeID++
	b.Episodes = append(b.Episodes, *episode)
	return nil
}

func (b *MemoryBackend) EndEpisode() error { return nil }

func (b *MemoryBackend) AddVehicle(v *core.VehicleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Vehicles = append(b.Vehicles, *v)
	return nil
}

func (b *MemoryBackend) RecordHandoff(e *core.HandoffEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Handoffs = append(b.Handoffs, *e)
	return nil
}

func (b *MemoryBackend) RecordTickState(s *core.VehicleTickState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.TickStates = append(b.TickStates, *s)
	return nil
}

func (b *MemoryBackend) RecordTickStats(s *core.TickStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Stats = append(b.Stats, *s)
	return nil
}

// HandoffsOfKind returns recorded handoffs filtered by kind.
func (b *MemoryBackend) HandoffsOfKind(kind core.HandoffKind) []core.HandoffEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []core.HandoffEvent
	for _, e := range b.Handoffs {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
