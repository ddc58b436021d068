package geo

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// Simulation coordinates are meters in a local plane treated as EPSG:3857,
// offset by the scenario origin. Telemetry and exports convert to EPSG:4326
// so points are usable without knowing the scenario.

// PointFromPosition creates a 3D point from a simulation position.
// Non-finite coordinates yield the empty point.
func PointFromPosition(p core.Position3D) geom.Point {
	pt, err := geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.X, Y: p.Y},
			Z:    p.Z,
			Type: geom.DimXYZ,
		},
	)
	if err != nil {
		return geom.Point{}
	}
	return pt
}

// LonLatFromPosition converts a simulation position to WGS84 lon/lat given
// the scenario origin (itself in lon/lat).
func LonLatFromPosition(p core.Position3D, originLon, originLat float64) (lon, lat float64) {
	epsg := wgs84.EPSG()
	toMercator := epsg.Transform(4326, 3857)
	ox, oy, _ := toMercator(originLon, originLat, 0)

	fromMercator := epsg.Transform(3857, 4326)
	lon, lat, _ = fromMercator(ox+p.X, oy+p.Y, 0)
	return lon, lat
}

// Footprint returns the rectangle a vehicle occupies in the simulation
// plane, oriented by its heading. Traffic authorities use it to reserve
// space for a vehicle that is being rebuilt under the same id.
func Footprint(pose core.Pose, dims core.Dimensions) geom.Polygon {
	sin, cos := math.Sincos(pose.Heading)
	hl, hw := dims.Length/2, dims.Width/2

	// Corners in vehicle frame, counter-clockwise, ring closed.
	local := [][2]float64{
		{hl, hw}, {-hl, hw}, {-hl, -hw}, {hl, -hw}, {hl, hw},
	}

	coords := make([]float64, 0, len(local)*2)
	for _, c := range local {
		x := pose.Position.X + c[0]*cos - c[1]*sin
		y := pose.Position.Y + c[0]*sin + c[1]*cos
		coords = append(coords, x, y)
	}

	// The ring is closed and rectangular, so construction only fails for
	// degenerate dimensions; those get the empty polygon.
	ring, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	if err != nil {
		return geom.Polygon{}
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.Polygon{}
	}
	return poly
}
