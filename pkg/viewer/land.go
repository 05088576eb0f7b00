package viewer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sort"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/sources"
	"github.com/sudorandom/event-globe/pkg/utils"
)

// LoadLand fetches the land outline, going through the on-disk cache when cacheDir is set.
func LoadLand(ctx context.Context, client *http.Client, cacheDir string) (*geojson.FeatureCollection, error) {
	r, err := utils.GetCachedReader(ctx, client, sources.WorldLandURL, cacheDir, "[LAND]")
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse land outline: %w", err)
	}
	log.Printf("[LAND] Loaded %d land features", len(fc.Features))
	return fc, nil
}

type point struct{ x, y float64 }

// raster draws the globe body into a CPU image. It is redrawn whenever the camera moves.
type raster struct {
	img  *image.RGBA
	proj geo.Orthographic
	w, h int
}

func newRaster(w, h int) *raster {
	return &raster{img: image.NewRGBA(image.Rect(0, 0, w, h)), w: w, h: h}
}

// ring projects a lng/lat ring. Points on the far side are pulled onto the limb so
// a polygon that crosses the horizon is clipped to the visible disc. ok is false
// when no point of the ring faces the viewer.
func (r *raster) ring(coords [][]float64) (pts []point, ok bool) {
	pts = make([]point, 0, len(coords))
	cx, cy := r.proj.Width/2, r.proj.Height/2
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		x, y, visible := r.proj.Project(c[0], c[1])
		if visible {
			ok = true
		} else {
			dx, dy := x-cx, y-cy
			if d := math.Hypot(dx, dy); d > 0 {
				x, y = cx+dx/d*r.proj.Radius, cy+dy/d*r.proj.Radius
			}
		}
		pts = append(pts, point{x, y})
	}
	return pts, ok
}

func (r *raster) background(f mapengine.Fog) {
	draw.Draw(r.img, r.img.Bounds(), &image.Uniform{f.SpaceColor}, image.Point{}, draw.Src)

	if f.StarIntensity > 0 {
		rnd := rand.New(rand.NewSource(7))
		a := uint8(math.Min(1, f.StarIntensity) * 255)
		for i := 0; i < r.w*r.h/3000; i++ {
			x, y := rnd.Intn(r.w), rnd.Intn(r.h)
			r.blend(x, y, color.RGBA{255, 255, 255, uint8(float64(a) * rnd.Float64())})
		}
	}

	cx, cy, rad := r.proj.Width/2, r.proj.Height/2, r.proj.Radius
	glow := rad * (1 + 0.08*f.AtmosphereGlow)
	minX, maxX := int(math.Max(0, cx-glow)), int(math.Min(float64(r.w-1), cx+glow))
	minY, maxY := int(math.Max(0, cy-glow)), int(math.Min(float64(r.h-1), cy+glow))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			switch {
			case d <= rad:
				// Blend toward the high color near the horizon.
				t := 0.0
				if edge := rad * (1 - f.HorizonBlend); d > edge && rad > edge {
					t = (d - edge) / (rad - edge)
				}
				r.set(x, y, mix(f.Color, f.HighColor, t))
			case d <= glow:
				t := 1 - (d-rad)/(glow-rad)
				c := f.HighColor
				c.A = uint8(t * t * 200)
				r.blend(x, y, c)
			}
		}
	}
}

func mix(a, b color.RGBA, t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	l := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{l(a.R, b.R), l(a.G, b.G), l(a.B, b.B), 255}
}

func (r *raster) set(x, y int, c color.RGBA) {
	off := y*r.img.Stride + x*4
	r.img.Pix[off], r.img.Pix[off+1], r.img.Pix[off+2], r.img.Pix[off+3] = c.R, c.G, c.B, 255
}

func (r *raster) blend(x, y int, c color.RGBA) {
	if x < 0 || x >= r.w || y < 0 || y >= r.h {
		return
	}
	if c.A == 255 {
		r.set(x, y, c)
		return
	}
	off := y*r.img.Stride + x*4
	a := float64(c.A) / 255
	p := r.img.Pix[off : off+3 : off+3]
	p[0] = uint8(float64(p[0])*(1-a) + float64(c.R)*a)
	p[1] = uint8(float64(p[1])*(1-a) + float64(c.G)*a)
	p[2] = uint8(float64(p[2])*(1-a) + float64(c.B)*a)
}

// land fills each polygon and traces its outline.
func (r *raster) land(fc *geojson.FeatureCollection, fill, outline color.RGBA) {
	if fc == nil {
		return
	}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		switch {
		case f.Geometry.IsPolygon():
			r.polygon(f.Geometry.Polygon, fill, outline)
		case f.Geometry.IsMultiPolygon():
			for _, poly := range f.Geometry.MultiPolygon {
				r.polygon(poly, fill, outline)
			}
		}
	}
}

func (r *raster) polygon(rings [][][]float64, fill, outline color.RGBA) {
	var projected [][]point
	for _, ring := range rings {
		if pts, ok := r.ring(ring); ok {
			projected = append(projected, pts)
		}
	}
	if len(projected) == 0 {
		return
	}
	r.fill(projected, fill)
	if outline.A > 0 {
		for _, pts := range projected {
			r.stroke(pts, outline)
		}
	}
}

// fill is an even-odd scanline fill.
func (r *raster) fill(rings [][]point, c color.RGBA) {
	minY, maxY := float64(r.h), 0.0
	for _, ring := range rings {
		for _, p := range ring {
			minY = math.Min(minY, p.y)
			maxY = math.Max(maxY, p.y)
		}
	}
	minY, maxY = math.Max(0, minY), math.Min(float64(r.h-1), maxY)
	var nodes []int
	for y := int(minY); y <= int(maxY); y++ {
		nodes = nodes[:0]
		fy := float64(y)
		for _, ring := range rings {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					nodes = append(nodes, int(nodeX))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := nodes[i], nodes[i+1]
			if xs < 0 {
				xs = 0
			}
			if xe >= r.w {
				xe = r.w - 1
			}
			for x := xs; x < xe; x++ {
				r.blend(x, y, c)
			}
		}
	}
}

// segmentVisible rejects segments that cannot touch a w x h screen, or that are
// too long to walk. Deep zooms put most outlines far off screen.
func segmentVisible(a, b point, w, h float64) bool {
	if (a.x < 0 && b.x < 0) || (a.y < 0 && b.y < 0) || (a.x >= w && b.x >= w) || (a.y >= h && b.y >= h) {
		return false
	}
	return math.Abs(a.x-b.x)+math.Abs(a.y-b.y) <= 4*(w+h)
}

func (r *raster) stroke(pts []point, c color.RGBA) {
	for i := 0; i < len(pts)-1; i++ {
		if !segmentVisible(pts[i], pts[i+1], float64(r.w), float64(r.h)) {
			continue
		}
		r.line(int(pts[i].x), int(pts[i].y), int(pts[i+1].x), int(pts[i+1].y), c)
	}
}

// line is Bresenham.
func (r *raster) line(x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := math.Abs(float64(x2-x1)), math.Abs(float64(y2-y1))
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		r.blend(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}
