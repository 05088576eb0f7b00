package viewer

import (
	"context"
	"image/color"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/mapengine/memmap"
	"github.com/sudorandom/event-globe/pkg/popup"
)

// fixedMeasure treats every rune as half the font size wide.
func fixedMeasure(s string, size float64) float64 {
	return float64(len([]rune(s))) * size * 0.5
}

func samplePopup() mapengine.Popup {
	return mapengine.Popup{
		ID: "cluster-1",
		Content: popup.Content{
			Kind:         popup.KindClusterBreakdown,
			Color:        color.RGBA{255, 0, 0, 255},
			Header:       "War · 12 locations",
			HeaderAction: &popup.Action{Kind: popup.ActionZoom, Zoom: 6},
			Items: []popup.Item{
				{Title: "Kyiv", Subtitle: "3 items", Action: &popup.Action{Kind: popup.ActionNavigate}},
				{Title: "Kharkiv", Subtitle: "1 item", Action: &popup.Action{Kind: popup.ActionNavigate}},
				{Title: "Odesa"},
			},
			Overflow: 9,
		},
	}
}

func TestLayoutPopup(t *testing.T) {
	b := layoutPopup(samplePopup(), mapengine.ScreenPoint{X: 400, Y: 300}, 800, 600, fixedMeasure)

	wantItems := []int{headerItem, 0, 1, notClickable, notClickable}
	if len(b.lines) != len(wantItems) {
		t.Fatalf("Expected %d lines, got %d", len(wantItems), len(b.lines))
	}
	for i, want := range wantItems {
		if b.lines[i].item != want {
			t.Errorf("line %d (%q): expected item %d, got %d", i, b.lines[i].text, want, b.lines[i].item)
		}
	}
	if b.lines[1].text != "Kyiv · 3 items" || b.lines[4].text != "and 9 more" {
		t.Errorf("Unexpected lines %q / %q", b.lines[1].text, b.lines[4].text)
	}
	if b.frame.y+b.frame.h > 300-popupGap+1e-9 {
		t.Errorf("Expected popup above its anchor, got %+v", b.frame)
	}
	if math.Abs(b.frame.x+b.frame.w/2-400) > 1e-9 {
		t.Errorf("Expected popup centered on its anchor, got %+v", b.frame)
	}
	for i := 1; i < len(b.lines); i++ {
		if b.lines[i].area.y < b.lines[i-1].area.y+b.lines[i-1].area.h-1e-9 {
			t.Errorf("Lines %d and %d overlap", i-1, i)
		}
	}
}

func TestLayoutPopupStaysOnScreen(t *testing.T) {
	b := layoutPopup(samplePopup(), mapengine.ScreenPoint{X: 5, Y: 5}, 800, 600, fixedMeasure)
	if b.frame.x < 0 || b.frame.y < 5 {
		t.Errorf("Expected popup pushed on screen below the anchor, got %+v", b.frame)
	}
	b = layoutPopup(samplePopup(), mapengine.ScreenPoint{X: 795, Y: 595}, 800, 600, fixedMeasure)
	if b.frame.x+b.frame.w > 800 || b.frame.y+b.frame.h > 600 {
		t.Errorf("Expected popup inside the screen, got %+v", b.frame)
	}
}

func TestLayoutEmptyPopup(t *testing.T) {
	p := mapengine.Popup{ID: "hover-1", Content: popup.Content{Header: "Protests @ 📍 Tbilisi · 0 items", Empty: true}}
	b := layoutPopup(p, mapengine.ScreenPoint{X: 400, Y: 300}, 800, 600, fixedMeasure)
	if len(b.lines) != 2 || b.lines[1].text != "No content available" {
		t.Errorf("Unexpected lines %+v", b.lines)
	}
	if b.lines[0].item != notClickable {
		t.Error("Header without an action must not be clickable")
	}
	if b.accent != defaultAccent {
		t.Errorf("Expected default accent, got %v", b.accent)
	}
}

func TestHitPopup(t *testing.T) {
	lower := layoutPopup(samplePopup(), mapengine.ScreenPoint{X: 400, Y: 300}, 800, 600, fixedMeasure)
	upperSrc := samplePopup()
	upperSrc.ID = "hover-2"
	upper := layoutPopup(upperSrc, mapengine.ScreenPoint{X: 420, Y: 300}, 800, 600, fixedMeasure)
	boxes := []popupBox{lower, upper}

	l := upper.lines[1]
	id, item, inside := hitPopup(boxes, l.area.x+l.area.w/2, l.area.y+l.area.h/2)
	if !inside || id != "hover-2" || item != 0 {
		t.Errorf("Expected the topmost popup's first item, got %q %d %v", id, item, inside)
	}

	pad := upper.lines[len(upper.lines)-1]
	if id, item, _ := hitPopup(boxes, pad.area.x+pad.area.w/2, pad.area.y+1); id != "hover-2" || item != notClickable {
		t.Errorf("Expected a non-clickable hit, got %q %d", id, item)
	}
	if _, _, inside := hitPopup(boxes, 1, 1); inside {
		t.Error("Unexpected hit outside every popup")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10, 100, fixedMeasure); got != "short" {
		t.Errorf("Unexpected %q", got)
	}
	got := truncate("a very long location name indeed", 10, 60, fixedMeasure)
	if fixedMeasure(got, 10) > 60 || got[len(got)-len(ellipsis):] != ellipsis {
		t.Errorf("Unexpected truncation %q", got)
	}
}

func TestLegendEntries(t *testing.T) {
	reg := categories.Default()
	entries := legendEntries(reg, categories.ThemeDark, map[string]bool{"War": false})
	if len(entries) != reg.Len() {
		t.Fatalf("Expected %d entries, got %d", reg.Len(), len(entries))
	}
	if entries[0].Label != "War" || entries[0].Key != "1" || entries[0].Visible {
		t.Errorf("Unexpected first entry %+v", entries[0])
	}
	war, _ := reg.ByName("War")
	if entries[0].Color != war.Color(categories.ThemeDark) || entries[0].IconID != war.IconID {
		t.Errorf("Unexpected styling %+v", entries[0])
	}
	for _, e := range entries[1:] {
		if !e.Visible {
			t.Errorf("%s should default to visible", e.Label)
		}
	}
}

func TestWithOpacity(t *testing.T) {
	tests := []struct {
		in      color.RGBA
		opacity float64
		want    color.RGBA
	}{
		{color.RGBA{200, 100, 50, 255}, 1, color.RGBA{200, 100, 50, 255}},
		{color.RGBA{200, 100, 50, 255}, 0.5, color.RGBA{100, 50, 25, 127}},
		{color.RGBA{200, 100, 50, 255}, 0, color.RGBA{200, 100, 50, 255}},
	}
	for _, tt := range tests {
		if got := withOpacity(tt.in, tt.opacity); got != tt.want {
			t.Errorf("withOpacity(%v, %v) = %v, want %v", tt.in, tt.opacity, got, tt.want)
		}
	}
}

func TestRingClipsToLimb(t *testing.T) {
	proj := geo.NewOrthographic(geo.LngLat{}, 1, 800, 600)
	pts, ok := clipRing(proj, [][]float64{{0, 0}, {170, 0}, {0, 10}})
	if !ok || len(pts) != 3 {
		t.Fatalf("Expected a visible ring of 3 points, got %v %v", pts, ok)
	}
	if d := math.Hypot(pts[1].x-400, pts[1].y-300); math.Abs(d-proj.Radius) > 1e-6 {
		t.Errorf("Expected far-side point on the limb, distance %v radius %v", d, proj.Radius)
	}
	if _, ok := clipRing(proj, [][]float64{{170, 0}, {175, 5}, {-175, 0}}); ok {
		t.Error("Expected a ring entirely on the far side to be dropped")
	}
}

func TestRasterFill(t *testing.T) {
	r := newRaster(20, 20)
	r.fill([][]point{{{5, 5}, {15, 5}, {15, 15}, {5, 15}, {5, 5}}}, color.RGBA{255, 0, 0, 255})
	if c := r.img.RGBAAt(10, 10); c != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("Expected inside filled, got %v", c)
	}
	if c := r.img.RGBAAt(2, 2); c.A != 0 {
		t.Errorf("Expected outside untouched, got %v", c)
	}

	r.fill([][]point{{{0, 0}, {20, 0}, {20, 20}, {0, 20}, {0, 0}}}, color.RGBA{0, 0, 255, 128})
	if c := r.img.RGBAAt(10, 10); c.B == 0 || c.R == 0 {
		t.Errorf("Expected translucent fill to blend, got %v", c)
	}
}

func TestSegmentVisible(t *testing.T) {
	tests := []struct {
		a, b point
		want bool
	}{
		{point{10, 10}, point{50, 50}, true},
		{point{-10, 10}, point{50, 50}, true},
		{point{-10, 10}, point{-50, 50}, false},
		{point{10, 700}, point{50, 900}, false},
		{point{-1e9, 10}, point{1e9, 50}, false},
	}
	for _, tt := range tests {
		if got := segmentVisible(tt.a, tt.b, 640, 480); got != tt.want {
			t.Errorf("segmentVisible(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLoadLandFromCache(t *testing.T) {
	dir := t.TempDir()
	data := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}}]}`
	if err := os.WriteFile(filepath.Join(dir, "LAND_ne_110m_land.geojson"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fc, err := LoadLand(ctx, http.DefaultClient, dir)
	if err != nil {
		t.Fatalf("LoadLand: %v", err)
	}
	if len(fc.Features) != 1 || !fc.Features[0].Geometry.IsPolygon() {
		t.Errorf("Unexpected land %+v", fc.Features)
	}
}

func TestClusterLabel(t *testing.T) {
	f := geo.BBox{0, 0, 1, 1}.Feature()
	if clusterLabel(f) != "" {
		t.Error("Expected no label for a plain feature")
	}
	f.Properties[mapengine.PropPointCount] = 42
	if clusterLabel(f) != "42" {
		t.Errorf("Unexpected label %q", clusterLabel(f))
	}
	f.Properties["point_count_abbreviated"] = "1.2k"
	if clusterLabel(f) != "1.2k" {
		t.Errorf("Unexpected label %q", clusterLabel(f))
	}
}

// BenchmarkDraw measures one frame with a populated map. Allocation spikes here
// usually mean something is rebuilt every frame.
func BenchmarkDraw(b *testing.B) {
	width, height := 1280, 720
	m := memmap.New(memmap.Options{Width: float64(width), Height: float64(height), Zoom: 2})
	v := New(context.Background(), Config{Width: width, Height: height, Map: m})
	land := geojson.NewFeatureCollection()
	land.AddFeature(geo.BBox{-20, -20, 20, 20}.Feature())
	v.SetLand(land)

	points := geojson.NewFeatureCollection()
	for i := 0; i < 500; i++ {
		points.AddFeature(geojson.NewPointFeature([]float64{float64(i%60) - 30, float64(i/60) - 4}))
	}
	if err := m.AddSource("events", mapengine.SourceSpec{Data: points, Cluster: true, ClusterRadius: 50, ClusterMaxZoom: 14}); err != nil {
		b.Fatal(err)
	}
	for _, l := range []mapengine.Layer{
		{ID: "clusters", Source: "events", Kind: mapengine.LayerCircle, Filter: mapengine.FilterClusters, Paint: mapengine.Paint{Color: color.RGBA{255, 0, 0, 255}, Opacity: 0.8}, Visible: true},
		{ID: "counts", Source: "events", Kind: mapengine.LayerLabel, Filter: mapengine.FilterClusters, Z: 1, Visible: true},
	} {
		if err := m.AddLayer(l); err != nil {
			b.Fatal(err)
		}
	}

	screen := ebiten.NewImage(width, height)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		v.Draw(screen)
	}
}
