package geo

import (
	"math"

	geojson "github.com/paulmach/go.geojson"
)

type LngLat struct {
	Lng, Lat float64
}

// Valid reports whether both coordinates are finite numbers.
func (p LngLat) Valid() bool {
	return finite(p.Lng) && finite(p.Lat)
}

// WrapLng folds a longitude back into [-180, 180).
func WrapLng(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// BBox is [west, south, east, north].
type BBox [4]float64

func NewBBox(v []float64) (BBox, bool) {
	if len(v) != 4 {
		return BBox{}, false
	}
	for _, f := range v {
		if !finite(f) {
			return BBox{}, false
		}
	}
	return BBox{v[0], v[1], v[2], v[3]}, true
}

func (b BBox) West() float64  { return b[0] }
func (b BBox) South() float64 { return b[1] }
func (b BBox) East() float64  { return b[2] }
func (b BBox) North() float64 { return b[3] }

func (b BBox) Area() float64 {
	return math.Abs(b.East()-b.West()) * math.Abs(b.North()-b.South())
}

func (b BBox) Center() LngLat {
	return LngLat{Lng: (b.West() + b.East()) / 2, Lat: (b.South() + b.North()) / 2}
}

// Ring returns the closed outline of the box, counter-clockwise from the south-west corner.
func (b BBox) Ring() [][]float64 {
	return [][]float64{
		{b.West(), b.South()},
		{b.East(), b.South()},
		{b.East(), b.North()},
		{b.West(), b.North()},
		{b.West(), b.South()},
	}
}

// Feature builds the polygon feature used for the highlight overlay.
func (b BBox) Feature() *geojson.Feature {
	return geojson.NewPolygonFeature([][][]float64{b.Ring()})
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
