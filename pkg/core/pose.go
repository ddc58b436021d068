// pkg/core/pose.go
package core

import "math"

// Position3D represents a 3D coordinate in the simulation plane.
type Position3D struct {
	X float64 `json:"x"` // easting
	Y float64 `json:"y"` // northing
	Z float64 `json:"z"` // elevation
}

// DistanceTo returns the planar distance between two positions.
func (p Position3D) DistanceTo(other Position3D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Pose is a position plus a heading in radians, counter-clockwise from east.
type Pose struct {
	Position Position3D `json:"position"`
	Heading  float64    `json:"heading"`
}

// Dimensions describes a vehicle's bounding box in meters.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultPassengerDimensions matches a standard passenger sedan.
var DefaultPassengerDimensions = Dimensions{Length: 4.5, Width: 1.8, Height: 1.4}
