package recorder

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/olegsinavski/SMARTS/internal/database"
	"github.com/olegsinavski/SMARTS/internal/queue"
	"github.com/olegsinavski/SMARTS/pkg/core"
)

// GormBackend persists episodes through the database manager. Rows are
// queued from the tick loop and flushed in batches so recording never
// blocks the simulation on a round trip.
type GormBackend struct {
	log zerolog.Logger
	db  *database.Manager

	flushEvery time.Duration

	mu        sync.Mutex
	episodeID uint

	handoffQueue   *queue.Queue[HandoffEvent]
	tickStateQueue *queue.Queue[VehicleTickState]
	tickStatsQueue *queue.Queue[TickStats]

	flushQuit chan struct{}
	flushDone chan struct{}
}

// NewGormBackend creates a backend over an already constructed database
// manager. flushInterval is in ticks worth of milliseconds; zero uses a
// one second default.
func NewGormBackend(log zerolog.Logger, db *database.Manager, flushInterval time.Duration) *GormBackend {
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &GormBackend{
		log:            log.With().Str("component", "recorder").Logger(),
		db:             db,
		flushEvery:     flushInterval,
		handoffQueue:   queue.New[HandoffEvent](),
		tickStateQueue: queue.New[VehicleTickState](),
		tickStatsQueue: queue.New[TickStats](),
	}
}

// Init connects, migrates the schema and starts the flush loop.
func (b *GormBackend) Init() error {
	if err := b.db.Connect(); err != nil {
		return fmt.Errorf("connecting recorder database: %w", err)
	}
	if err := b.db.Migrate(DatabaseModels...); err != nil {
		return err
	}

	b.flushQuit = make(chan struct{})
	b.flushDone = make(chan struct{})
	go b.flushLoop()
	return nil
}

func (b *GormBackend) flushLoop() {
	defer close(b.flushDone)
	ticker := time.NewTicker(b.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.flushQuit:
			b.flush()
			return
		}
	}
}

func (b *GormBackend) flush() {
	if handoffs := b.handoffQueue.Drain(); len(handoffs) > 0 {
		if err := b.db.DB.Create(&handoffs).Error; err != nil {
			b.log.Error().Err(err).Int("rows", len(handoffs)).Msg("Failed to flush handoff events")
		}
	}
	if states := b.tickStateQueue.Drain(); len(states) > 0 {
		if err := b.db.DB.Create(&states).Error; err != nil {
			b.log.Error().Err(err).Int("rows", len(states)).Msg("Failed to flush tick states")
		}
	}
	if stats := b.tickStatsQueue.Drain(); len(stats) > 0 {
		if err := b.db.DB.Create(&stats).Error; err != nil {
			b.log.Error().Err(err).Int("rows", len(stats)).Msg("Failed to flush tick stats")
		}
	}
}

// Close flushes outstanding rows and closes the connection.
func (b *GormBackend) Close() error {
	if b.flushQuit != nil {
		close(b.flushQuit)
		<-b.flushDone
	}
	return b.db.Close()
}

// StartEpisode inserts the episode row and assigns its id back.
func (b *GormBackend) StartEpisode(episode *core.Episode) error {
	row := Episode{
		ScenarioName: episode.ScenarioName,
		StartTime:    episode.StartTime,
		TickRate:     episode.TickRate,
	}
	if err := b.db.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("creating episode row: %w", err)
	}

	b.mu.Lock()
	b.episodeID = row.ID
	b.mu.Unlock()

	episode.ID = row.ID
	b.log.Info().Uint("episodeId", row.ID).Str("scenario", episode.ScenarioName).Msg("Recording episode")
	return nil
}

// EndEpisode stamps the end time and flushes.
func (b *GormBackend) EndEpisode() error {
	b.flush()

	b.mu.Lock()
	episodeID := b.episodeID
	b.episodeID = 0
	b.mu.Unlock()

	if episodeID == 0 {
		return nil
	}
	return b.db.DB.Model(&Episode{}).Where("id = ?", episodeID).
		Update("end_time", time.Now()).Error
}

func (b *GormBackend) currentEpisode() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.episodeID
}

// AddVehicle registers a vehicle row for the current episode.
func (b *GormBackend) AddVehicle(v *core.VehicleState) error {
	row := Vehicle{
		EpisodeID: b.currentEpisode(),
		VehicleID: v.ActorID,
		ClassName: v.ActorType,
		Source:    v.Source,
		Role:      v.Role.String(),
	}
	return b.db.DB.Create(&row).Error
}

// RecordHandoff queues one ownership transition.
func (b *GormBackend) RecordHandoff(e *core.HandoffEvent) error {
	var route datatypes.JSON
	if len(e.Route) > 0 {
		raw, err := json.Marshal(e.Route)
		if err != nil {
			return fmt.Errorf("encoding route: %w", err)
		}
		route = datatypes.JSON(raw)
	}

	b.handoffQueue.Push(HandoffEvent{
		EpisodeID:  b.currentEpisode(),
		Tick:       e.Tick,
		VehicleID:  e.VehicleID,
		Kind:       string(e.Kind),
		OwnerID:    e.OwnerID,
		PrevOwner:  e.PrevOwner,
		Role:       e.Role.String(),
		IsBoid:     e.IsBoid,
		IsHijacked: e.IsHijacked,
		PositionX:  e.Position.X,
		PositionY:  e.Position.Y,
		PositionZ:  e.Position.Z,
		Route:      route,
	})
	return nil
}

// RecordTickState queues one positional sample.
func (b *GormBackend) RecordTickState(s *core.VehicleTickState) error {
	b.tickStateQueue.Push(VehicleTickState{
		EpisodeID: b.currentEpisode(),
		Tick:      s.Tick,
		VehicleID: s.VehicleID,
		Role:      s.Role.String(),
		PositionX: s.Position.X,
		PositionY: s.Position.Y,
		PositionZ: s.Position.Z,
		Heading:   s.Heading,
		Speed:     s.Speed,
	})
	return nil
}

// RecordTickStats queues one tick aggregate.
func (b *GormBackend) RecordTickStats(s *core.TickStats) error {
	b.tickStatsQueue.Push(TickStats{
		EpisodeID:       b.currentEpisode(),
		Tick:            s.Tick,
		DurationMicros:  s.Duration.Microseconds(),
		EgoVehicles:     s.EgoVehicles,
		SocialVehicles:  s.SocialVehicles,
		TrafficVehicles: s.TrafficVehicles,
		Shadowed:        s.Shadowed,
		Handoffs:        s.Handoffs,
	})
	return nil
}
