// Package tile provides Web Mercator tile coordinate math shared by the
// stores, the seeder and the HTTP handlers.
package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Scheme is the tile row orientation. XYZ has its origin at the top-left
// (Y grows southward), TMS at the bottom-left.
type Scheme string

const (
	SchemeXYZ Scheme = "xyz"
	SchemeTMS Scheme = "tms"
)

// Position selects which point of a tile a coordinate conversion refers to.
type Position string

const (
	PositionTopLeft     Position = "topLeft"
	PositionCenter      Position = "center"
	PositionBottomRight Position = "bottomRight"
)

const (
	// MaxZoom is the highest zoom level a store may contain.
	MaxZoom = 22

	// TileSize is the fixed pixel edge length of a tile.
	TileSize = 256

	// MaxLatitude is the Web Mercator latitude cutoff.
	MaxLatitude = 85.051129
)

// Coords identifies a single tile. X and Y are always in XYZ orientation
// inside the process; TMS conversion happens only at store boundaries.
type Coords struct {
	Z int
	X int
	Y int
}

// String returns the tile coordinate in "z/x/y" path form.
func (c Coords) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Path returns the relative file path for this tile in a directory store.
func (c Coords) Path(extension string) string {
	return fmt.Sprintf("%d/%d/%d.%s", c.Z, c.X, c.Y, extension)
}

// Tile returns the maptile.Tile for this coordinate.
func (c Coords) Tile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

// Valid reports whether the coordinate is inside the pyramid.
func (c Coords) Valid() bool {
	if c.Z < 0 || c.Z > MaxZoom {
		return false
	}
	n := 1 << c.Z
	return c.X >= 0 && c.X < n && c.Y >= 0 && c.Y < n
}

// FlipY converts a row index between XYZ and TMS orientation. The flip is
// its own inverse.
func FlipY(z, y int) int {
	return (1 << z) - 1 - y
}

// FromLonLat returns the tile containing the given point at zoom z.
// Longitude is clamped to [-180,180] and latitude to the Mercator cutoff,
// and the result is clamped to the valid tile range at that zoom.
func FromLonLat(lon, lat float64, z int, scheme Scheme) Coords {
	lon = clamp(lon, -180, 180)
	lat = clamp(lat, -MaxLatitude, MaxLatitude)

	// Clamp in float space before the int conversion: the fraction can
	// land just outside [0, 2^z) at the poles and the antimeridian.
	f := maptile.Fraction(orb.Point{lon, lat}, maptile.Zoom(z))
	max := (1 << z) - 1
	c := Coords{
		Z: z,
		X: clampInt(int(math.Floor(f[0])), 0, max),
		Y: clampInt(int(math.Floor(f[1])), 0, max),
	}
	if scheme == SchemeTMS {
		c.Y = FlipY(z, c.Y)
	}
	return c
}

// LonLat converts a tile coordinate back to a geographic point. The
// position selects the top-left corner, the center or the bottom-right
// corner of the tile.
func LonLat(x, y, z int, position Position, scheme Scheme) (float64, float64) {
	if scheme == SchemeTMS {
		y = FlipY(z, y)
	}

	b := (Coords{Z: z, X: x, Y: y}).Tile().Bound()
	switch position {
	case PositionCenter:
		c := b.Center()
		return c[0], c[1]
	case PositionBottomRight:
		return b.Max[0], b.Min[1]
	default:
		return b.Min[0], b.Max[1]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
