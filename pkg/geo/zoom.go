// Package geo holds the pure geometry used by the globe: zoom heuristics, bounding
// boxes and projections. Nothing here touches a render engine.
package geo

import (
	"strings"

	"github.com/biter777/countries"
)

// DefaultZoom is used for unknown location types and malformed boxes.
const DefaultZoom = 4.0

var locationTypeZoom = map[string]float64{
	"continent": 2,
	"country":   4,
	"region":    5,
	"locality":  6,
	"city":      11,
	"address":   12,
}

// ZoomForLocationType maps a geocoder location type to a camera zoom level.
func ZoomForLocationType(locationType string) float64 {
	if z, ok := locationTypeZoom[strings.ToLower(strings.TrimSpace(locationType))]; ok {
		return z
	}
	return DefaultZoom
}

// Steps are checked top to bottom; the first threshold the area exceeds wins.
var areaZoomSteps = []struct {
	minArea float64
	zoom    float64
}{
	{1000, 2},
	{100, 3},
	{25, 4},
	{5, 5},
	{1, 6},
}

// ZoomForBoundingBox picks a zoom from the box's area in square degrees. Larger
// boxes never get a larger zoom. Anything that is not a 4-element box gets DefaultZoom.
func ZoomForBoundingBox(bbox []float64) float64 {
	b, ok := NewBBox(bbox)
	if !ok {
		return DefaultZoom
	}
	area := b.Area()
	for _, s := range areaZoomSteps {
		if area > s.minArea {
			return s.zoom
		}
	}
	return 7
}

// InferLocationType fills in a missing geocoder type. Country names resolve to
// "country"; everything else keeps whatever the caller had.
func InferLocationType(name, locationType string) string {
	if locationType != "" {
		return locationType
	}
	if name != "" && countries.ByName(name) != countries.Unknown {
		return "country"
	}
	return locationType
}
