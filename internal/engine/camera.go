package engine

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// tileSize is the MapLibre world size at zoom 0, in pixels.
const tileSize = 512

// mercatorExtent is the width of the web mercator plane in meters.
const mercatorExtent = 2 * math.Pi * 6378137

// Camera is the engine's view transform.
type Camera struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
}

// DefaultCamera frames the southern states of Mexico.
func DefaultCamera() Camera {
	return Camera{
		Center: orb.Point{-95.00485, 16.64434},
		Zoom:   6.5,
		Width:  1280,
		Height: 800,
	}
}

// Project converts a geographic coordinate to a pixel position in the
// camera's viewport. Bearing and pitch are not modeled.
func (c Camera) Project(p orb.Point) ScreenPoint {
	world := tileSize * math.Exp2(c.Zoom)
	px, py := worldPixel(p, world)
	cx, cy := worldPixel(c.Center, world)
	return ScreenPoint{
		X: px - cx + c.Width/2,
		Y: py - cy + c.Height/2,
	}
}

func worldPixel(p orb.Point, world float64) (float64, float64) {
	m := project.WGS84.ToMercator(p)
	return (m.X()/mercatorExtent + 0.5) * world, (0.5 - m.Y()/mercatorExtent) * world
}
