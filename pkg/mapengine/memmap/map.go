// Package memmap is an in-memory render engine. It keeps sources, layers, images
// and popups in maps, clusters points itself, animates the camera on Tick and
// answers hit tests with an orthographic projection. A host (the ebiten viewer, or
// a test) feeds it input and draws its Snapshot.
package memmap

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/popup"
)

var (
	ErrUnknownSource   = errors.New("unknown source")
	ErrDuplicateSource = errors.New("source already exists")
	ErrDuplicateLayer  = errors.New("layer already exists")
	ErrUnknownCluster  = errors.New("unknown cluster")
)

const (
	MinZoom = 0.0
	MaxZoom = 22.0

	pointHitRadius = 12.0
)

type Options struct {
	Width, Height float64
	Center        geo.LngLat
	Zoom          float64
	// Instant completes FlyTo and FitBounds immediately instead of animating on Tick.
	Instant bool
}

type source struct {
	spec  mapengine.SourceSpec
	index *clusterIndex
}

type animation struct {
	fromCenter, toCenter geo.LngLat
	fromZoom, toZoom     float64
	start                time.Time
	duration             time.Duration
}

type layerListener struct {
	id      int
	kind    mapengine.EventKind
	layerID string
	fn      func(mapengine.LayerEvent)
}

type mapListener struct {
	id   int
	kind mapengine.MapEventKind
	fn   func()
}

type frame struct {
	id int
	fn func()
}

type Map struct {
	mu sync.Mutex

	width, height float64
	center        geo.LngLat
	zoom          float64
	instant       bool
	anim          *animation

	sources    map[string]*source
	layers     map[string]mapengine.Layer
	layerOrder []string
	images     map[string]image.Image
	missing    map[string]bool
	popups     map[string]mapengine.Popup
	popupOrder []string
	cursor     string
	fog        mapengine.Fog

	nextID         int
	layerListeners []layerListener
	mapListeners   []mapListener
	imageListeners map[int]func(string)
	frames         []frame

	hovered      map[string]*geojson.Feature
	hoveredOrder []string
}

var _ mapengine.Map = (*Map)(nil)

func New(opts Options) *Map {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	return &Map{
		width:          opts.Width,
		height:         opts.Height,
		center:         opts.Center,
		zoom:           clampZoom(opts.Zoom),
		instant:        opts.Instant,
		sources:        make(map[string]*source),
		layers:         make(map[string]mapengine.Layer),
		images:         make(map[string]image.Image),
		missing:        make(map[string]bool),
		popups:         make(map[string]mapengine.Popup),
		imageListeners: make(map[int]func(string)),
		hovered:        make(map[string]*geojson.Feature),
	}
}

func clampZoom(z float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// Sources

func (m *Map) AddSource(id string, spec mapengine.SourceSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("add source %q: %w", id, ErrDuplicateSource)
	}
	s := &source{spec: spec}
	if spec.Cluster {
		s.index = newClusterIndex(spec.Data, spec.ClusterRadius, spec.ClusterMaxZoom)
	}
	m.sources[id] = s
	return nil
}

func (m *Map) RemoveSource(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
}

func (m *Map) HasSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[id]
	return ok
}

// Sources returns the installed source ids, sorted.
func (m *Map) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sources))
	for id := range m.sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Layers

func (m *Map) AddLayer(l mapengine.Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layers[l.ID]; ok {
		return fmt.Errorf("add layer %q: %w", l.ID, ErrDuplicateLayer)
	}
	if _, ok := m.sources[l.Source]; !ok {
		return fmt.Errorf("add layer %q: source %q: %w", l.ID, l.Source, ErrUnknownSource)
	}
	m.layers[l.ID] = l
	m.layerOrder = append(m.layerOrder, l.ID)
	if l.Kind == mapengine.LayerSymbol && l.Paint.IconID != "" {
		if _, ok := m.images[l.Paint.IconID]; !ok {
			m.missing[l.Paint.IconID] = true
		}
	}
	return nil
}

func (m *Map) RemoveLayer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layers[id]; !ok {
		return
	}
	delete(m.layers, id)
	for i, lid := range m.layerOrder {
		if lid == id {
			m.layerOrder = append(m.layerOrder[:i], m.layerOrder[i+1:]...)
			break
		}
	}
	delete(m.hovered, id)
}

func (m *Map) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.layers[id]
	return ok
}

func (m *Map) SetLayerVisibility(id string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.layers[id]; ok {
		l.Visible = visible
		m.layers[id] = l
	}
}

// Layer returns a copy of an installed layer.
func (m *Map) Layer(id string) (mapengine.Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	return l, ok
}

// Layers returns layer ids bottom to top.
func (m *Map) Layers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLayerIDsLocked()
}

// sortedLayerIDsLocked orders by Z, then insertion, bottom to top.
func (m *Map) sortedLayerIDsLocked() []string {
	ids := make([]string, len(m.layerOrder))
	copy(ids, m.layerOrder)
	sort.SliceStable(ids, func(i, j int) bool { return m.layers[ids[i]].Z < m.layers[ids[j]].Z })
	return ids
}

// Images

func (m *Map) AddImage(id string, img image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[id] = img
	delete(m.missing, id)
}

func (m *Map) RemoveImage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, id)
}

func (m *Map) HasImage(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[id]
	return ok
}

func (m *Map) Image(id string) (image.Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	return img, ok
}

// Popups, cursor, fog

func (m *Map) AddPopup(p mapengine.Popup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.popups[p.ID]; !ok {
		m.popupOrder = append(m.popupOrder, p.ID)
	}
	m.popups[p.ID] = p
}

func (m *Map) RemovePopup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.popups[id]; !ok {
		return
	}
	delete(m.popups, id)
	for i, pid := range m.popupOrder {
		if pid == id {
			m.popupOrder = append(m.popupOrder[:i], m.popupOrder[i+1:]...)
			break
		}
	}
}

// Popups returns the open popups in the order they were added.
func (m *Map) Popups() []mapengine.Popup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mapengine.Popup, 0, len(m.popupOrder))
	for _, id := range m.popupOrder {
		out = append(out, m.popups[id])
	}
	return out
}

// PopupPointer relays the pointer entering or leaving a popup panel.
func (m *Map) PopupPointer(id string, inside bool) {
	m.mu.Lock()
	p, ok := m.popups[id]
	m.mu.Unlock()
	if ok && p.OnPointer != nil {
		p.OnPointer(inside)
	}
}

// ActivatePopup relays a click on a popup's header or item.
func (m *Map) ActivatePopup(id string, a popup.Action) {
	m.mu.Lock()
	p, ok := m.popups[id]
	m.mu.Unlock()
	if ok && p.OnAction != nil {
		p.OnAction(a)
	}
}

func (m *Map) SetCursor(cursor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
}

func (m *Map) Cursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *Map) SetFog(f mapengine.Fog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fog = f
}

func (m *Map) Fog() mapengine.Fog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fog
}

// Clusters

func (m *Map) ClusterLeaves(sourceID string, clusterID, limit, offset int) ([]*geojson.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok || s.index == nil {
		return nil, fmt.Errorf("cluster leaves %q: %w", sourceID, ErrUnknownSource)
	}
	leaves, ok := s.index.leaves(clusterID, limit, offset)
	if !ok {
		return nil, fmt.Errorf("cluster leaves %q/%d: %w", sourceID, clusterID, ErrUnknownCluster)
	}
	return leaves, nil
}

func (m *Map) ClusterExpansionZoom(sourceID string, clusterID int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok || s.index == nil {
		return 0, fmt.Errorf("cluster expansion zoom %q: %w", sourceID, ErrUnknownSource)
	}
	z, ok := s.index.expansionZoom(clusterID)
	if !ok {
		return 0, fmt.Errorf("cluster expansion zoom %q/%d: %w", sourceID, clusterID, ErrUnknownCluster)
	}
	return z, nil
}

// Listeners

func (m *Map) On(kind mapengine.EventKind, layerID string, fn func(mapengine.LayerEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.layerListeners = append(m.layerListeners, layerListener{id: id, kind: kind, layerID: layerID, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.layerListeners {
			if l.id == id {
				m.layerListeners = append(m.layerListeners[:i], m.layerListeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Map) OnMapEvent(kind mapengine.MapEventKind, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.mapListeners = append(m.mapListeners, mapListener{id: id, kind: kind, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.mapListeners {
			if l.id == id {
				m.mapListeners = append(m.mapListeners[:i], m.mapListeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Map) OnImageMissing(fn func(id string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.imageListeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.imageListeners, id)
	}
}

// ListenerCount reports how many layer and map listeners are registered.
func (m *Map) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.layerListeners) + len(m.mapListeners)
}

// Emit fires a map-wide event, as the host does for raw input.
func (m *Map) Emit(kind mapengine.MapEventKind) {
	m.mu.Lock()
	var fns []func()
	for _, l := range m.mapListeners {
		if l.kind == kind {
			fns = append(fns, l.fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *Map) layerFns(kind mapengine.EventKind, layerID string) []func(mapengine.LayerEvent) {
	var fns []func(mapengine.LayerEvent)
	for _, l := range m.layerListeners {
		if l.kind == kind && l.layerID == layerID {
			fns = append(fns, l.fn)
		}
	}
	return fns
}

// Frames

func (m *Map) RequestFrame(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.frames = append(m.frames, frame{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, f := range m.frames {
			if f.id == id {
				m.frames = append(m.frames[:i], m.frames[i+1:]...)
				return
			}
		}
	}
}

// PendingFrames reports how many frame callbacks are waiting for the next Tick.
func (m *Map) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Tick runs one animation frame: queued frame callbacks, camera animation and
// missing-image notifications. Callbacks scheduled during the tick run on the next.
func (m *Map) Tick(now time.Time) {
	m.mu.Lock()
	frames := m.frames
	m.frames = nil
	m.mu.Unlock()

	for _, f := range frames {
		f.fn()
	}

	m.mu.Lock()
	moveEnded := m.stepAnimationLocked(now)
	var missing []string
	for id := range m.missing {
		missing = append(missing, id)
	}
	m.missing = make(map[string]bool)
	var imageFns []func(string)
	if len(missing) > 0 {
		sort.Strings(missing)
		for _, fn := range m.imageListeners {
			imageFns = append(imageFns, fn)
		}
	}
	m.mu.Unlock()

	for _, id := range missing {
		for _, fn := range imageFns {
			fn(id)
		}
	}
	if moveEnded {
		m.Emit(mapengine.MoveEnd)
	}
}
