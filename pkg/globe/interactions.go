package globe

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/events"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/popup"
)

// SelectFunc receives the location a user picked.
type SelectFunc func(locationName, categoryName string)

// ClusterHandle is read from a cluster feature for the duration of one interaction.
type ClusterHandle struct {
	ClusterID   int
	PointCount  int
	Coordinates [2]float64
}

// ParseClusterHandle accepts the numeric types engines and JSON decoders produce.
func ParseClusterHandle(f *geojson.Feature) (ClusterHandle, bool) {
	var h ClusterHandle
	if f == nil || f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
		return h, false
	}
	id, ok := toInt(f.Properties[mapengine.PropClusterID])
	if !ok {
		return h, false
	}
	count, _ := toInt(f.Properties[mapengine.PropPointCount])
	h.ClusterID = id
	h.PointCount = count
	h.Coordinates = [2]float64{f.Geometry.Point[0], f.Geometry.Point[1]}
	return h, true
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

type popupClass int

const (
	classHover popupClass = iota
	classCluster
)

func (c popupClass) String() string {
	if c == classCluster {
		return "cluster"
	}
	return "hover"
}

type InteractionOptions struct {
	Limits       popup.Limits
	HoverTimeout time.Duration
	LeaveTimeout time.Duration
	// OnOpen follows a content link. Nil drops the action.
	OnOpen func(url string)
}

func DefaultInteractionOptions() InteractionOptions {
	return InteractionOptions{
		Limits:       popup.DefaultLimits(),
		HoverTimeout: 15 * time.Second,
		LeaveTimeout: 4500 * time.Millisecond,
	}
}

type openPopup struct {
	id    string
	timer *time.Timer
}

// Interactions turns layer events into popups and selections. There is at most one
// popup per class; opening another replaces it.
type Interactions struct {
	m        mapengine.Map
	reg      *categories.Registry
	onSelect SelectFunc
	opts     InteractionOptions
	hitIDs   []string

	mu        sync.Mutex
	theme     categories.Theme
	suspended bool
	closed    bool
	seq       int
	popups    map[popupClass]*openPopup
}

func NewInteractions(m mapengine.Map, reg *categories.Registry, onSelect SelectFunc, opts InteractionOptions) *Interactions {
	i := &Interactions{
		m:        m,
		reg:      reg,
		onSelect: onSelect,
		opts:     opts,
		popups:   make(map[popupClass]*openPopup),
	}
	for _, c := range reg.All() {
		i.hitIDs = append(i.hitIDs, c.ClusterLayerID, c.PointLayerID)
	}
	return i
}

// Bind attaches the six listeners for a category: enter, leave and click on both
// its cluster and point layers.
func (i *Interactions) Bind(cat categories.Category) []func() {
	return []func(){
		i.m.On(mapengine.MouseEnter, cat.ClusterLayerID, func(ev mapengine.LayerEvent) { i.clusterEnter(cat, ev) }),
		i.m.On(mapengine.MouseLeave, cat.ClusterLayerID, func(ev mapengine.LayerEvent) { i.leave() }),
		i.m.On(mapengine.Click, cat.ClusterLayerID, func(ev mapengine.LayerEvent) { i.clusterClick(cat, ev) }),
		i.m.On(mapengine.MouseEnter, cat.PointLayerID, func(ev mapengine.LayerEvent) { i.pointEnter(cat, ev) }),
		i.m.On(mapengine.MouseLeave, cat.PointLayerID, func(ev mapengine.LayerEvent) { i.leave() }),
		i.m.On(mapengine.Click, cat.PointLayerID, func(ev mapengine.LayerEvent) { i.pointClick(cat, ev) }),
	}
}

func (i *Interactions) SetTheme(t categories.Theme) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.theme = t
}

func (i *Interactions) active() (categories.Theme, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.theme, !i.suspended && !i.closed
}

// topmost reports whether the event's own layer owns the topmost feature under
// the pointer, and returns that feature.
func (i *Interactions) topmost(ev mapengine.LayerEvent) (*geojson.Feature, bool) {
	hits := i.m.QueryFeaturesAt(ev.Point, i.hitIDs)
	if len(hits) == 0 || hits[0].LayerID != ev.LayerID {
		return nil, false
	}
	return hits[0].Feature, true
}

// leaves reads a cluster's members. ok is false when the engine could not list
// them, in which case no popup should claim to describe the cluster.
func (i *Interactions) leaves(cat categories.Category, h ClusterHandle, limit int) ([]events.EventFeature, bool) {
	fs, err := i.m.ClusterLeaves(cat.SourceID, h.ClusterID, limit, 0)
	if err != nil {
		log.Printf("[INTERACT] Cluster %d leaves for %s: %v", h.ClusterID, cat.Name, err)
		return nil, false
	}
	out := make([]events.EventFeature, 0, len(fs))
	for _, f := range fs {
		out = append(out, events.FromFeature(f))
	}
	return out, true
}

func (i *Interactions) clusterEnter(cat categories.Category, ev mapengine.LayerEvent) {
	theme, ok := i.active()
	if !ok {
		return
	}
	f, ok := i.topmost(ev)
	if !ok {
		return
	}
	h, ok := ParseClusterHandle(f)
	if !ok {
		return
	}
	i.m.SetCursor("pointer")
	leaves, ok := i.leaves(cat, h, i.opts.Limits.PreviewSample)
	if !ok {
		return
	}
	content := popup.ClusterPreview(cat, theme, leaves, h.PointCount, i.opts.Limits)
	i.show(classHover, cat, h.Coordinates, content, i.opts.HoverTimeout)
}

func (i *Interactions) clusterClick(cat categories.Category, ev mapengine.LayerEvent) {
	theme, ok := i.active()
	if !ok {
		return
	}
	f, ok := i.topmost(ev)
	if !ok {
		return
	}
	h, ok := ParseClusterHandle(f)
	if !ok {
		return
	}
	leaves, ok := i.leaves(cat, h, 0)
	if !ok {
		return
	}
	zoom, err := i.m.ClusterExpansionZoom(cat.SourceID, h.ClusterID)
	if err != nil {
		log.Printf("[INTERACT] Cluster %d expansion zoom for %s: %v", h.ClusterID, cat.Name, err)
		zoom = 0
	}
	content := popup.ClusterBreakdown(cat, theme, leaves, h.PointCount, h.Coordinates, zoom, i.opts.Limits)
	i.remove(classHover)
	i.show(classCluster, cat, h.Coordinates, content, 0)
}

func (i *Interactions) pointEnter(cat categories.Category, ev mapengine.LayerEvent) {
	theme, ok := i.active()
	if !ok {
		return
	}
	f, ok := i.topmost(ev)
	if !ok {
		return
	}
	i.m.SetCursor("pointer")
	e := events.FromFeature(f)
	i.show(classHover, cat, e.Coordinates, popup.Single(cat, theme, e, i.opts.Limits), i.opts.HoverTimeout)
}

func (i *Interactions) pointClick(cat categories.Category, ev mapengine.LayerEvent) {
	if _, ok := i.active(); !ok {
		return
	}
	f, ok := i.topmost(ev)
	if !ok {
		return
	}
	i.selectLocation(events.FromFeature(f).LocationName, cat.Name)
}

func (i *Interactions) leave() {
	if _, ok := i.active(); !ok {
		return
	}
	i.m.SetCursor("")
}

func (i *Interactions) selectLocation(location, category string) {
	if i.onSelect != nil && location != "" {
		i.onSelect(location, category)
	}
}

func (i *Interactions) show(class popupClass, cat categories.Category, at [2]float64, content popup.Content, timeout time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.suspended || i.closed {
		return
	}
	i.removeLocked(class)

	i.seq++
	id := fmt.Sprintf("%s-%d", class, i.seq)
	op := &openPopup{id: id}
	i.popups[class] = op
	i.m.AddPopup(mapengine.Popup{
		ID:        id,
		At:        geo.LngLat{Lng: at[0], Lat: at[1]},
		Content:   content,
		OnAction:  func(a popup.Action) { i.action(class, id, a) },
		OnPointer: func(inside bool) { i.popupPointer(class, id, inside) },
	})
	if timeout > 0 {
		op.timer = time.AfterFunc(timeout, func() { i.expire(class, id) })
	}
}

func (i *Interactions) removeLocked(class popupClass) {
	op, ok := i.popups[class]
	if !ok {
		return
	}
	if op.timer != nil {
		op.timer.Stop()
	}
	i.m.RemovePopup(op.id)
	delete(i.popups, class)
}

func (i *Interactions) remove(class popupClass) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.removeLocked(class)
}

func (i *Interactions) expire(class popupClass, id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if op, ok := i.popups[class]; ok && op.id == id {
		i.removeLocked(class)
	}
}

// popupPointer holds a timed popup open while the pointer is over it and gives it
// LeaveTimeout more once the pointer leaves.
func (i *Interactions) popupPointer(class popupClass, id string, inside bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	op, ok := i.popups[class]
	if !ok || op.id != id || op.timer == nil {
		return
	}
	op.timer.Stop()
	if !inside {
		op.timer = time.AfterFunc(i.opts.LeaveTimeout, func() { i.expire(class, id) })
	}
}

func (i *Interactions) action(class popupClass, id string, a popup.Action) {
	switch a.Kind {
	case popup.ActionSelect:
		i.selectLocation(a.LocationName, a.Category)
	case popup.ActionNavigate:
		i.remove(class)
		i.selectLocation(a.LocationName, a.Category)
	case popup.ActionZoom:
		i.remove(class)
		i.m.FlyTo(mapengine.FlyToOptions{
			Center: geo.LngLat{Lng: a.Coordinates[0], Lat: a.Coordinates[1]},
			Zoom:   a.Zoom,
		})
	case popup.ActionOpen:
		if i.opts.OnOpen != nil && a.URL != "" {
			i.opts.OnOpen(a.URL)
		}
	}
}

// Suspend closes every popup and ignores layer events until Resume.
func (i *Interactions) Suspend() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.suspended = true
	i.removeLocked(classHover)
	i.removeLocked(classCluster)
	i.m.SetCursor("")
}

func (i *Interactions) Resume() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.suspended = false
}

func (i *Interactions) Suspended() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.suspended
}

// Close removes every popup and stops their timers.
func (i *Interactions) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.removeLocked(classHover)
	i.removeLocked(classCluster)
}
