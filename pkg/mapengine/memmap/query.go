package memmap

import (
	"math"
	"sort"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/popup"
)

// RenderedLayer is a layer together with the features it draws at the current zoom.
type RenderedLayer struct {
	Layer    mapengine.Layer
	Features []*geojson.Feature
}

// Snapshot is everything a host needs to draw one frame.
type Snapshot struct {
	Center        geo.LngLat
	Zoom          float64
	Width, Height float64
	Layers        []RenderedLayer // bottom to top
	Popups        []mapengine.Popup
	Fog           mapengine.Fog
	Cursor        string
}

func (m *Map) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Center: m.center,
		Zoom:   m.zoom,
		Width:  m.width,
		Height: m.height,
		Fog:    m.fog,
		Cursor: m.cursor,
	}
	for _, id := range m.sortedLayerIDsLocked() {
		l := m.layers[id]
		if !l.Visible {
			continue
		}
		s.Layers = append(s.Layers, RenderedLayer{Layer: l, Features: m.renderedLocked(l)})
	}
	for _, id := range m.popupOrder {
		s.Popups = append(s.Popups, m.popups[id])
	}
	return s
}

func (m *Map) renderedLocked(l mapengine.Layer) []*geojson.Feature {
	src, ok := m.sources[l.Source]
	if !ok {
		return nil
	}
	var all []*geojson.Feature
	if src.index != nil {
		all = src.index.features(m.zoom)
	} else if src.spec.Data != nil {
		all = src.spec.Data.Features
	}
	if l.Filter == mapengine.FilterAll {
		return all
	}
	out := make([]*geojson.Feature, 0, len(all))
	for _, f := range all {
		if isCluster(f) == (l.Filter == mapengine.FilterClusters) {
			out = append(out, f)
		}
	}
	return out
}

func isCluster(f *geojson.Feature) bool {
	v, _ := f.Properties[mapengine.PropCluster].(bool)
	return v
}

// HitRadius is how close, in pixels, the pointer must be to a feature drawn by the
// layer. Cluster circles grow with their point count.
func HitRadius(l mapengine.Layer, f *geojson.Feature) float64 {
	switch l.Kind {
	case mapengine.LayerCircle:
		if n, ok := f.Properties[mapengine.PropPointCount].(int); ok {
			switch {
			case n >= 750:
				return 25
			case n >= 100:
				return 20
			}
			return 15
		}
		if l.Paint.Radius > 0 {
			return l.Paint.Radius
		}
		return pointHitRadius
	case mapengine.LayerSymbol:
		return pointHitRadius
	}
	return 0
}

type hit struct {
	dist float64
	q    mapengine.QueriedFeature
}

// hitsLocked returns hits grouped per layer, layers topmost first, features nearest first.
func (m *Map) hitsLocked(pt mapengine.ScreenPoint, layerIDs []string) [][]mapengine.QueriedFeature {
	var want map[string]bool
	if len(layerIDs) > 0 {
		want = make(map[string]bool, len(layerIDs))
		for _, id := range layerIDs {
			want[id] = true
		}
	}
	proj := m.projectionLocked()
	ids := m.sortedLayerIDsLocked()

	var out [][]mapengine.QueriedFeature
	for i := len(ids) - 1; i >= 0; i-- {
		l := m.layers[ids[i]]
		if !l.Visible || (want != nil && !want[l.ID]) {
			continue
		}
		var hits []hit
		for _, f := range m.renderedLocked(l) {
			r := HitRadius(l, f)
			if r <= 0 || f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
				continue
			}
			x, y, visible := proj.Project(f.Geometry.Point[0], f.Geometry.Point[1])
			if !visible {
				continue
			}
			if d := math.Hypot(x-pt.X, y-pt.Y); d <= r {
				hits = append(hits, hit{dist: d, q: mapengine.QueriedFeature{LayerID: l.ID, SourceID: l.Source, Feature: f}})
			}
		}
		if len(hits) == 0 {
			continue
		}
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].dist < hits[b].dist })
		group := make([]mapengine.QueriedFeature, len(hits))
		for j, h := range hits {
			group[j] = h.q
		}
		out = append(out, group)
	}
	return out
}

// QueryFeaturesAt returns the features under a screen point, topmost layer first.
// An empty layerIDs queries every layer.
func (m *Map) QueryFeaturesAt(pt mapengine.ScreenPoint, layerIDs []string) []mapengine.QueriedFeature {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mapengine.QueriedFeature
	for _, g := range m.hitsLocked(pt, layerIDs) {
		out = append(out, g...)
	}
	return out
}

type dispatch struct {
	fns []func(mapengine.LayerEvent)
	ev  mapengine.LayerEvent
}

func run(ds []dispatch) {
	for _, d := range ds {
		for _, fn := range d.fns {
			fn(d.ev)
		}
	}
}

// PointerMove updates hover state. Every layer the pointer leaves gets a
// MouseLeave, and every layer it enters (or whose nearest feature changed) gets a
// MouseEnter, topmost first.
func (m *Map) PointerMove(pt mapengine.ScreenPoint) {
	m.mu.Lock()
	lngLat, _ := m.projectionLocked().Unproject(pt.X, pt.Y)
	groups := m.hitsLocked(pt, nil)

	now := make(map[string]*geojson.Feature, len(groups))
	for _, g := range groups {
		now[g[0].LayerID] = g[0].Feature
	}

	var leaves, enters []dispatch
	for _, id := range m.hoveredOrder {
		if f, ok := now[id]; !ok || f != m.hovered[id] {
			leaves = append(leaves, dispatch{
				fns: m.layerFns(mapengine.MouseLeave, id),
				ev:  mapengine.LayerEvent{Kind: mapengine.MouseLeave, LayerID: id, Point: pt, LngLat: lngLat},
			})
		}
	}
	order := make([]string, 0, len(groups))
	for _, g := range groups {
		id := g[0].LayerID
		order = append(order, id)
		if prev, ok := m.hovered[id]; !ok || prev != g[0].Feature {
			enters = append(enters, dispatch{
				fns: m.layerFns(mapengine.MouseEnter, id),
				ev:  mapengine.LayerEvent{Kind: mapengine.MouseEnter, LayerID: id, Point: pt, LngLat: lngLat, Features: g},
			})
		}
	}
	m.hovered = now
	m.hoveredOrder = order
	m.mu.Unlock()

	run(leaves)
	run(enters)
}

// Click delivers a Click to every layer with a feature under the point, topmost
// first. Each event carries only that layer's features.
func (m *Map) Click(pt mapengine.ScreenPoint) {
	m.mu.Lock()
	lngLat, _ := m.projectionLocked().Unproject(pt.X, pt.Y)
	var ds []dispatch
	for _, g := range m.hitsLocked(pt, nil) {
		id := g[0].LayerID
		ds = append(ds, dispatch{
			fns: m.layerFns(mapengine.Click, id),
			ev:  mapengine.LayerEvent{Kind: mapengine.Click, LayerID: id, Point: pt, LngLat: lngLat, Features: g},
		})
	}
	m.mu.Unlock()
	run(ds)
}

// ScreenPosition projects a coordinate for the current camera.
func (m *Map) ScreenPosition(p geo.LngLat) (mapengine.ScreenPoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, y, ok := m.projectionLocked().Project(p.Lng, p.Lat)
	return mapengine.ScreenPoint{X: x, Y: y}, ok
}

// Trigger activates the header or item action of an open popup, as a click on it would.
func (m *Map) Trigger(popupID string, item int) bool {
	m.mu.Lock()
	p, ok := m.popups[popupID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	var a *popup.Action
	if item < 0 {
		a = p.Content.HeaderAction
	} else if item < len(p.Content.Items) {
		a = p.Content.Items[item].Action
	}
	if a == nil {
		return false
	}
	m.ActivatePopup(popupID, *a)
	return true
}
