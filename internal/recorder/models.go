package recorder

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels lists every table the gorm backend migrates.
var DatabaseModels = []interface{}{
	&Episode{},
	&Vehicle{},
	&HandoffEvent{},
	&VehicleTickState{},
	&TickStats{},
}

// Episode is one recorded simulation run.
type Episode struct {
	gorm.Model
	ScenarioName string    `json:"scenarioName" gorm:"size:200"`
	StartTime    time.Time `json:"startTime" gorm:"index:idx_episode_start"`
	EndTime      time.Time `json:"endTime"`
	TickRate     float64   `json:"tickRate"`
}

func (*Episode) TableName() string {
	return "episodes"
}

// Vehicle registers one vehicle seen during an episode.
type Vehicle struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint           `json:"episodeId" gorm:"index:idx_vehicle_episode_id"`
	Episode   Episode        `gorm:"foreignkey:EpisodeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time      `json:"createdAt"`
	DeletedAt gorm.DeletedAt `json:"deletedAt" gorm:"index"`
	VehicleID string         `json:"vehicleId" gorm:"size:127;index:idx_vehicle_vehicle_id"`
	ClassName string         `json:"className" gorm:"size:64"` // vehicle type: passenger, bus, truck
	Source    string         `json:"source" gorm:"size:64"`    // provider that introduced the vehicle
	Role      string         `json:"role" gorm:"size:16"`
}

func (*Vehicle) TableName() string {
	return "vehicles"
}

// HandoffEvent records one ownership or shadowing transition.
type HandoffEvent struct {
	ID        uint    `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint    `json:"episodeId" gorm:"index:idx_handoff_episode_id"`
	Episode   Episode `gorm:"foreignkey:EpisodeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Tick      uint64  `json:"tick" gorm:"index:idx_handoff_tick"`

	VehicleID  string  `json:"vehicleId" gorm:"size:127;index:idx_handoff_vehicle_id"`
	Kind       string  `json:"kind" gorm:"size:16"`
	OwnerID    string  `json:"ownerId" gorm:"size:127"`
	PrevOwner  string  `json:"prevOwner" gorm:"size:127"`
	Role       string  `json:"role" gorm:"size:16"`
	IsBoid     bool    `json:"isBoid"`
	IsHijacked bool    `json:"isHijacked"`
	PositionX  float64 `json:"positionX"`
	PositionY  float64 `json:"positionY"`
	PositionZ  float64 `json:"positionZ"`

	// Route is the remaining road ids handed back on relinquish.
	Route datatypes.JSON `json:"route"`
}

func (*HandoffEvent) TableName() string {
	return "handoff_events"
}

// VehicleTickState is one positional sample of one vehicle per tick.
type VehicleTickState struct {
	ID        uint   `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint   `json:"episodeId" gorm:"index:idx_tickstate_episode_id"`
	Tick      uint64 `json:"tick" gorm:"index:idx_tickstate_tick"`

	VehicleID string  `json:"vehicleId" gorm:"size:127;index:idx_tickstate_vehicle_id"`
	Role      string  `json:"role" gorm:"size:16"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
	PositionZ float64 `json:"positionZ"`
	Heading   float64 `json:"heading"`
	Speed     float64 `json:"speed"`
}

func (*VehicleTickState) TableName() string {
	return "vehicle_tick_states"
}

// TickStats aggregates one tick of the episode.
type TickStats struct {
	ID        uint   `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID uint   `json:"episodeId" gorm:"index:idx_tickstats_episode_id"`
	Tick      uint64 `json:"tick" gorm:"index:idx_tickstats_tick"`

	DurationMicros  int64 `json:"durationMicros"`
	EgoVehicles     int   `json:"egoVehicles"`
	SocialVehicles  int   `json:"socialVehicles"`
	TrafficVehicles int   `json:"trafficVehicles"`
	Shadowed        int   `json:"shadowed"`
	Handoffs        int   `json:"handoffs"`
}

func (*TickStats) TableName() string {
	return "tick_stats"
}
