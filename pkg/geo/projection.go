package geo

import "math"

// TileSize is the world width in pixels at zoom 0.
const TileSize = 512.0

const maxMercatorLat = 85.05112878

// WorldSize is the Web Mercator world width in pixels at the given zoom.
func WorldSize(zoom float64) float64 {
	return TileSize * math.Pow(2, zoom)
}

// MercatorPixel projects to Web Mercator pixel space at the given zoom. Cluster
// radii are measured here.
func MercatorPixel(lng, lat, zoom float64) (x, y float64) {
	lng = math.Max(-180, math.Min(180, lng))
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	latRad := lat * math.Pi / 180

	nx := (lng + 180) / 360
	ny := 0.5 - math.Log(math.Tan(latRad*0.5+math.Pi/4))/math.Pi*0.5

	size := WorldSize(zoom)
	return nx * size, ny * size
}

// FitZoom returns the zoom at which the box fills the viewport minus padding on each side.
func FitZoom(b BBox, width, height, padding float64) float64 {
	w := width - 2*padding
	h := height - 2*padding
	if w <= 0 || h <= 0 {
		return 0
	}
	x0, y0 := MercatorPixel(b.West(), b.North(), 0)
	x1, y1 := MercatorPixel(b.East(), b.South(), 0)
	dx, dy := math.Abs(x1-x0), math.Abs(y1-y0)
	if dx == 0 && dy == 0 {
		return 22
	}
	scale := math.Inf(1)
	if dx > 0 {
		scale = w / dx
	}
	if dy > 0 {
		scale = math.Min(scale, h/dy)
	}
	return math.Log2(scale)
}

// Orthographic is the globe projection: a sphere seen from infinitely far away,
// centered on Center, drawn at Radius pixels around the viewport midpoint.
type Orthographic struct {
	Center        LngLat
	Radius        float64
	Width, Height float64
}

// NewOrthographic sizes the sphere so its circumference matches the Mercator
// world width at the same zoom.
func NewOrthographic(center LngLat, zoom, width, height float64) Orthographic {
	return Orthographic{
		Center: center,
		Radius: WorldSize(zoom) / (2 * math.Pi),
		Width:  width,
		Height: height,
	}
}

// Project returns the screen position of a point and whether it faces the viewer.
func (o Orthographic) Project(lng, lat float64) (x, y float64, visible bool) {
	if lat > 89.5 {
		lat = 89.5
	}
	if lat < -89.5 {
		lat = -89.5
	}

	lam := (lng - o.Center.Lng) * math.Pi / 180
	phi := lat * math.Pi / 180
	phi0 := o.Center.Lat * math.Pi / 180

	cosC := math.Sin(phi0)*math.Sin(phi) + math.Cos(phi0)*math.Cos(phi)*math.Cos(lam)
	px := o.Radius * math.Cos(phi) * math.Sin(lam)
	py := o.Radius * (math.Cos(phi0)*math.Sin(phi) - math.Sin(phi0)*math.Cos(phi)*math.Cos(lam))

	x = o.Width/2 + px
	y = o.Height/2 - py
	return x, y, cosC >= 0
}

// Unproject maps a screen position back to the globe. ok is false off the sphere.
func (o Orthographic) Unproject(x, y float64) (p LngLat, ok bool) {
	px := x - o.Width/2
	py := o.Height/2 - y
	rho := math.Hypot(px, py)
	if rho > o.Radius || o.Radius == 0 {
		return LngLat{}, false
	}
	if rho == 0 {
		return o.Center, true
	}

	c := math.Asin(rho / o.Radius)
	phi0 := o.Center.Lat * math.Pi / 180
	phi := math.Asin(math.Cos(c)*math.Sin(phi0) + py*math.Sin(c)*math.Cos(phi0)/rho)
	lam := math.Atan2(px*math.Sin(c), rho*math.Cos(c)*math.Cos(phi0)-py*math.Sin(c)*math.Sin(phi0))

	return LngLat{
		Lng: WrapLng(o.Center.Lng + lam*180/math.Pi),
		Lat: phi * 180 / math.Pi,
	}, true
}
