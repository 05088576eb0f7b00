package viewer

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/globe"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/mapengine/memmap"
)

const dashOn, dashOff = 6.0, 4.0

var (
	boxFill   = color.RGBA{0, 0, 0, 170}
	boxStroke = color.RGBA{36, 42, 53, 255}
)

// withOpacity scales a straight-alpha color into the premultiplied form ebiten draws with.
func withOpacity(c color.RGBA, opacity float64) color.RGBA {
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	a := float64(c.A) / 255 * opacity
	return color.RGBA{uint8(float64(c.R) * a), uint8(float64(c.G) * a), uint8(float64(c.B) * a), uint8(a * 255)}
}

// drawBackground repaints the globe body only when the camera, fog or land changed.
func (v *Viewer) drawBackground(screen *ebiten.Image, snap memmap.Snapshot) {
	key := rasterKey{center: snap.Center, zoom: snap.Zoom, fog: snap.Fog, land: v.landData()}
	if !v.bgPainted || key != v.bgKey {
		v.raster.proj = geo.NewOrthographic(snap.Center, snap.Zoom, float64(v.raster.w), float64(v.raster.h))
		v.raster.background(snap.Fog)
		fill, outline := landDark, outlineDark
		if v.g != nil && v.g.Theme() == categories.ThemeLight {
			fill, outline = landLight, outlineLight
		}
		v.raster.land(key.land, fill, outline)
		v.bgImage.WritePixels(v.raster.img.Pix)
		v.bgKey, v.bgPainted = key, true
	}
	screen.DrawImage(v.bgImage, nil)
}

func clipRing(proj geo.Orthographic, coords [][]float64) ([]point, bool) {
	r := raster{proj: proj}
	return r.ring(coords)
}

func polygonRings(f *geojson.Feature) [][][]float64 {
	if f.Geometry == nil {
		return nil
	}
	switch {
	case f.Geometry.IsPolygon():
		return f.Geometry.Polygon
	case f.Geometry.IsMultiPolygon():
		var out [][][]float64
		for _, p := range f.Geometry.MultiPolygon {
			out = append(out, p...)
		}
		return out
	}
	return nil
}

// drawFill fans each outer ring into triangles. Good enough for the convex boxes
// the highlight overlay draws.
func (v *Viewer) drawFill(screen *ebiten.Image, proj geo.Orthographic, rl memmap.RenderedLayer) {
	c := withOpacity(rl.Layer.Paint.Color, rl.Layer.Paint.Opacity)
	cr, cg, cb, ca := float32(c.R)/255, float32(c.G)/255, float32(c.B)/255, float32(c.A)/255
	for _, f := range rl.Features {
		rings := polygonRings(f)
		if len(rings) == 0 {
			continue
		}
		pts, ok := clipRing(proj, rings[0])
		if !ok || len(pts) < 3 {
			continue
		}
		vs := make([]ebiten.Vertex, 0, len(pts))
		for _, p := range pts {
			vs = append(vs, ebiten.Vertex{
				DstX: float32(p.x), DstY: float32(p.y),
				SrcX: 1, SrcY: 1,
				ColorR: cr, ColorG: cg, ColorB: cb, ColorA: ca,
			})
		}
		is := make([]uint16, 0, 3*(len(pts)-2))
		for i := 1; i < len(pts)-1; i++ {
			is = append(is, 0, uint16(i), uint16(i+1))
		}
		screen.DrawTriangles(vs, is, v.white, &ebiten.DrawTrianglesOptions{})
	}
}

func (v *Viewer) drawLine(screen *ebiten.Image, proj geo.Orthographic, rl memmap.RenderedLayer) {
	p := rl.Layer.Paint
	c := withOpacity(p.Color, p.Opacity)
	width := p.Width
	if width <= 0 {
		width = 1
	}
	for _, f := range rl.Features {
		for _, ring := range polygonRings(f) {
			pts, ok := clipRing(proj, ring)
			if !ok {
				continue
			}
			for i := 0; i < len(pts)-1; i++ {
				if !segmentVisible(pts[i], pts[i+1], proj.Width, proj.Height) {
					continue
				}
				if p.Dashed {
					dashedLine(screen, pts[i], pts[i+1], width, c)
				} else {
					vector.StrokeLine(screen, float32(pts[i].x), float32(pts[i].y), float32(pts[i+1].x), float32(pts[i+1].y), float32(width), c, true)
				}
			}
		}
	}
}

func dashedLine(screen *ebiten.Image, a, b point, width float64, c color.RGBA) {
	length := math.Hypot(b.x-a.x, b.y-a.y)
	if length == 0 {
		return
	}
	ux, uy := (b.x-a.x)/length, (b.y-a.y)/length
	for d := 0.0; d < length; d += dashOn + dashOff {
		e := math.Min(d+dashOn, length)
		vector.StrokeLine(screen,
			float32(a.x+ux*d), float32(a.y+uy*d),
			float32(a.x+ux*e), float32(a.y+uy*e),
			float32(width), c, true)
	}
}

func pointOf(proj geo.Orthographic, f *geojson.Feature) (x, y float64, ok bool) {
	if f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
		return 0, 0, false
	}
	return proj.Project(f.Geometry.Point[0], f.Geometry.Point[1])
}

func (v *Viewer) drawCircles(screen *ebiten.Image, proj geo.Orthographic, rl memmap.RenderedLayer) {
	c := withOpacity(rl.Layer.Paint.Color, rl.Layer.Paint.Opacity)
	rim := withOpacity(color.RGBA{255, 255, 255, 255}, 0.6)
	for _, f := range rl.Features {
		x, y, ok := pointOf(proj, f)
		if !ok {
			continue
		}
		r := float32(memmap.HitRadius(rl.Layer, f))
		vector.DrawFilledCircle(screen, float32(x), float32(y), r, c, true)
		vector.StrokeCircle(screen, float32(x), float32(y), r, 1.5, rim, true)
	}
}

func (v *Viewer) icon(id string) *ebiten.Image {
	src, ok := v.m.Image(id)
	if !ok {
		return nil
	}
	if e, ok := v.icons[id]; ok && e.src == src {
		return e.img
	}
	img := ebiten.NewImageFromImage(src)
	v.icons[id] = iconEntry{src: src, img: img}
	return img
}

func drawIcon(screen, img *ebiten.Image, x, y, size float64, alpha float32) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(-float64(w)/2, -float64(h)/2)
	op.GeoM.Scale(size/float64(w), size/float64(h))
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleAlpha(alpha)
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(img, op)
}

func (v *Viewer) drawSymbols(screen *ebiten.Image, proj geo.Orthographic, rl memmap.RenderedLayer) {
	img := v.icon(rl.Layer.Paint.IconID)
	if img == nil {
		return
	}
	alpha := float32(1)
	if o := rl.Layer.Paint.Opacity; o > 0 && o < 1 {
		alpha = float32(o)
	}
	for _, f := range rl.Features {
		if x, y, ok := pointOf(proj, f); ok {
			drawIcon(screen, img, x, y, iconSize, alpha)
		}
	}
}

func clusterLabel(f *geojson.Feature) string {
	if s, ok := f.Properties["point_count_abbreviated"].(string); ok && s != "" {
		return s
	}
	if n, ok := f.Properties[mapengine.PropPointCount].(int); ok {
		return strconv.Itoa(n)
	}
	return ""
}

func (v *Viewer) drawLabels(screen *ebiten.Image, proj geo.Orthographic, rl memmap.RenderedLayer) {
	if v.fontSource == nil {
		return
	}
	face := &text.GoTextFace{Source: v.fontSource, Size: 12}
	for _, f := range rl.Features {
		label := clusterLabel(f)
		x, y, ok := pointOf(proj, f)
		if label == "" || !ok {
			continue
		}
		op := &text.DrawOptions{}
		op.GeoM.Translate(x, y)
		op.LayoutOptions.PrimaryAlign = text.AlignCenter
		op.LayoutOptions.SecondaryAlign = text.AlignCenter
		text.Draw(screen, label, face, op)
	}
}

func (v *Viewer) measure(s string, size float64) float64 {
	if v.fontSource == nil {
		return float64(len(s)) * size * 0.55
	}
	w, _ := text.Measure(s, &text.GoTextFace{Source: v.fontSource, Size: size}, 0)
	return w
}

// drawBox is the panel style shared by popups and the legend: a translucent body,
// a thin outline and a colored accent strip.
func drawBox(screen *ebiten.Image, r rect, accent color.RGBA) {
	vector.DrawFilledRect(screen, float32(r.x), float32(r.y), float32(r.w), float32(r.h), boxFill, false)
	vector.StrokeRect(screen, float32(r.x), float32(r.y), float32(r.w), float32(r.h), 1, boxStroke, false)
	vector.DrawFilledRect(screen, float32(r.x), float32(r.y), 4, float32(r.h), accent, false)
}

func (v *Viewer) drawPopups(screen *ebiten.Image, snap memmap.Snapshot) {
	v.boxes = v.boxes[:0]
	for _, p := range snap.Popups {
		anchor, ok := v.m.ScreenPosition(p.At)
		if !ok {
			continue
		}
		v.boxes = append(v.boxes, layoutPopup(p, anchor, snap.Width, snap.Height, v.measure))
	}
	if v.fontSource == nil {
		return
	}

	cx, cy := ebiten.CursorPosition()
	for _, b := range v.boxes {
		drawBox(screen, b.frame, b.accent)
		for _, l := range b.lines {
			alpha := l.alpha
			if l.item != notClickable && l.area.contains(float64(cx), float64(cy)) {
				vector.DrawFilledRect(screen, float32(l.area.x+4), float32(l.area.y), float32(l.area.w-4), float32(l.area.h), color.RGBA{255, 255, 255, 20}, false)
				alpha = 1
			}
			op := &text.DrawOptions{}
			op.GeoM.Translate(l.area.x+popupPad, l.area.y+(l.area.h-l.size)/2)
			op.ColorScale.ScaleAlpha(alpha)
			text.Draw(screen, l.text, &text.GoTextFace{Source: v.fontSource, Size: l.size}, op)
		}
	}
}

type legendEntry struct {
	Key     string
	Label   string
	Color   color.RGBA
	IconID  string
	Visible bool
}

func legendEntries(reg *categories.Registry, theme categories.Theme, visibility map[string]bool) []legendEntry {
	var out []legendEntry
	for i, c := range reg.All() {
		key := ""
		if i < len(categoryKeys) {
			key = strconv.Itoa(i + 1)
		}
		visible, ok := visibility[c.Name]
		out = append(out, legendEntry{
			Key:     key,
			Label:   c.Name,
			Color:   c.Color(theme),
			IconID:  c.IconID,
			Visible: !ok || visible,
		})
	}
	return out
}

func (v *Viewer) drawLegend(screen *ebiten.Image) {
	if v.fontSource == nil || v.g == nil {
		return
	}
	margin, fontSize := 30.0, 15.0
	spacing, swatchSize := 26.0, 16.0
	if v.Width > 2000 {
		margin, fontSize = 60.0, 30.0
		spacing, swatchSize = 52.0, 32.0
	}

	entries := legendEntries(v.reg, v.g.Theme(), v.g.Visibility())
	boxH := float64(len(entries))*spacing + 20
	lx := margin
	ly := float64(v.Height) - margin - boxH
	drawBox(screen, rect{lx - 10, ly - 10, 200 * fontSize / 15, boxH}, boxStroke)

	face := &text.GoTextFace{Source: v.fontSource, Size: fontSize}
	for i, e := range entries {
		ty := ly + float64(i)*spacing
		alpha := float32(0.9)
		if !e.Visible {
			alpha = 0.3
		}
		cx, cy := lx+swatchSize/2+4, ty+swatchSize/2
		if img := v.icon(e.IconID); img != nil {
			drawIcon(screen, img, cx, cy, swatchSize, alpha)
		} else {
			vector.DrawFilledCircle(screen, float32(cx), float32(cy), float32(swatchSize/2), withOpacity(e.Color, float64(alpha)), true)
		}

		top := &text.DrawOptions{}
		top.GeoM.Translate(lx+swatchSize+15, ty+(swatchSize/2)-(fontSize/2))
		top.ColorScale.ScaleAlpha(alpha)
		text.Draw(screen, e.Key+"  "+e.Label, face, top)
	}
}

func stateLabel(s globe.CameraState, touring bool) string {
	if touring {
		return "touring"
	}
	return s.String()
}

func (v *Viewer) drawStatus(screen *ebiten.Image) {
	if v.monoSource == nil || v.g == nil {
		return
	}
	fontSize := 13.0
	if v.Width > 2000 {
		fontSize = 26.0
	}
	face := &text.GoTextFace{Source: v.monoSource, Size: fontSize}
	c := v.m.Center()
	parts := []string{
		stateLabel(v.g.CameraState(), v.g.Touring()),
		v.g.Theme().String(),
		strconv.FormatFloat(c.Lat, 'f', 2, 64) + "," + strconv.FormatFloat(c.Lng, 'f', 2, 64),
		"z" + strconv.FormatFloat(v.m.Zoom(), 'f', 1, 64),
	}
	lines := []string{strings.Join(parts, "  "), "T tour  L theme  R reload  S spin  1-8 layers"}
	if s := v.currentStatus(); s != "" {
		lines = append([]string{s}, lines...)
	}
	for i, l := range lines {
		w, _ := text.Measure(l, face, 0)
		op := &text.DrawOptions{}
		op.GeoM.Translate(float64(v.Width)-w-20, float64(v.Height)-20-float64(len(lines)-i)*fontSize*1.5)
		op.ColorScale.ScaleAlpha(0.6)
		text.Draw(screen, l, face, op)
	}
}
