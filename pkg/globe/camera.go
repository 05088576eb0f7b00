package globe

import (
	"image/color"
	"log"
	"math"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
)

type CameraState int

const (
	StateIdleSpinning CameraState = iota
	StateInteracting
	StateTouring
)

func (s CameraState) String() string {
	switch s {
	case StateIdleSpinning:
		return "idle-spinning"
	case StateInteracting:
		return "interacting"
	case StateTouring:
		return "touring"
	}
	return "unknown"
}

// Bounding-box overlay identifiers.
const (
	HighlightSourceID    = "bbox-highlight"
	HighlightFillLayerID = "bbox-highlight-fill"
	HighlightLineLayerID = "bbox-highlight-line"
)

type CameraOptions struct {
	SpinStep       float64 // degrees of longitude per frame
	FlyDuration    time.Duration
	Padding        float64
	MinZoomDelta   float64
	HighlightColor color.RGBA
}

func DefaultCameraOptions() CameraOptions {
	return CameraOptions{
		SpinStep:       0.05,
		FlyDuration:    2 * time.Second,
		Padding:        60,
		MinZoomDelta:   1.5,
		HighlightColor: color.RGBA{255, 255, 255, 255},
	}
}

// Camera owns the camera state machine. User input stops the idle spin for good;
// only an explicit Spin starts it again.
type Camera struct {
	m    mapengine.Map
	opts CameraOptions

	mu          sync.Mutex
	state       CameraState
	spinEnabled bool
	spinGen     uint64
	cancelFrame func()
	offs        []func()
	closed      bool
}

// NewCamera subscribes to the map's interaction events. A nil map gives a camera
// whose operations do nothing.
func NewCamera(m mapengine.Map, opts CameraOptions) *Camera {
	c := &Camera{m: m, opts: opts, state: StateInteracting}
	if m == nil {
		return c
	}
	for _, kind := range mapengine.InteractionEvents {
		kind := kind
		c.offs = append(c.offs, m.OnMapEvent(kind, func() { c.onInteraction(kind) }))
	}
	return c
}

func (c *Camera) State() CameraState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Camera) SpinEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spinEnabled
}

func (c *Camera) onInteraction(kind mapengine.MapEventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spinEnabled {
		log.Printf("[CAMERA] %s: stopping idle spin", kind)
	}
	c.stopLocked()
}

// Spin enables idle rotation. While touring it only takes effect once the tour ends.
func (c *Camera) Spin() {
	if c.m == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.spinEnabled = true
	if c.state == StateTouring {
		return
	}
	if c.state != StateIdleSpinning || c.cancelFrame == nil {
		c.state = StateIdleSpinning
		c.scheduleLocked()
	}
}

// Stop disables idle rotation.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Camera) stopLocked() {
	c.spinEnabled = false
	c.cancelSpinLocked()
	if c.state == StateIdleSpinning {
		c.state = StateInteracting
	}
}

func (c *Camera) cancelSpinLocked() {
	c.spinGen++
	if c.cancelFrame != nil {
		c.cancelFrame()
		c.cancelFrame = nil
	}
}

func (c *Camera) scheduleLocked() {
	c.cancelSpinLocked()
	gen := c.spinGen
	c.cancelFrame = c.m.RequestFrame(func() { c.spinFrame(gen) })
}

func (c *Camera) spinFrame(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.spinGen || c.state != StateIdleSpinning {
		return
	}
	center := c.m.Center()
	center.Lng = geo.WrapLng(center.Lng + c.opts.SpinStep)
	c.m.JumpTo(center, c.m.Zoom())
	c.cancelFrame = c.m.RequestFrame(func() { c.spinFrame(gen) })
}

// BeginTour hands the camera to the route player and pauses the spin.
func (c *Camera) BeginTour() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelSpinLocked()
	c.state = StateTouring
}

// EndTour resumes spinning if nothing disabled it during the tour.
func (c *Camera) EndTour() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateTouring {
		return
	}
	c.state = StateInteracting
	if c.spinEnabled && !c.closed && c.m != nil {
		c.state = StateIdleSpinning
		c.scheduleLocked()
	}
}

// FlyToLocation stops the spin and flies to the point. Non-finite coordinates are
// ignored; a missing zoom comes from the location type.
func (c *Camera) FlyToLocation(lng, lat, zoom float64, locationType string) {
	p := geo.LngLat{Lng: lng, Lat: lat}
	if c.m == nil || !p.Valid() {
		return
	}
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		zoom = geo.ZoomForLocationType(locationType)
	}
	c.Stop()
	c.m.FlyTo(mapengine.FlyToOptions{Center: p, Zoom: zoom, Duration: c.opts.FlyDuration})
}

// HighlightBoundingBox outlines bbox and frames it. With dynamicZoom the zoom
// ceiling comes from the box's size, otherwise from the location type; the floor
// sits MinZoomDelta below the box-derived zoom.
func (c *Camera) HighlightBoundingBox(bbox []float64, locationType string, dynamicZoom bool) {
	b, ok := geo.NewBBox(bbox)
	if c.m == nil || !ok {
		return
	}
	c.Stop()
	c.ClearHighlight()

	fc := geojson.NewFeatureCollection()
	fc.AddFeature(b.Feature())
	if err := c.m.AddSource(HighlightSourceID, mapengine.SourceSpec{Data: fc}); err != nil {
		log.Printf("[CAMERA] Failed to add highlight: %v", err)
		return
	}
	overlay := []mapengine.Layer{
		{
			ID: HighlightFillLayerID, Source: HighlightSourceID, Kind: mapengine.LayerFill, Z: 1000, Visible: true,
			Paint: mapengine.Paint{Color: c.opts.HighlightColor, Opacity: 0.08},
		},
		{
			ID: HighlightLineLayerID, Source: HighlightSourceID, Kind: mapengine.LayerLine, Z: 1001, Visible: true,
			Paint: mapengine.Paint{Color: c.opts.HighlightColor, Opacity: 0.8, Width: 2, Dashed: true},
		},
	}
	for _, l := range overlay {
		if err := c.m.AddLayer(l); err != nil {
			log.Printf("[CAMERA] Failed to add highlight layer %s: %v", l.ID, err)
		}
	}

	boxZoom := geo.ZoomForBoundingBox(bbox)
	maxZoom := boxZoom
	if !dynamicZoom {
		maxZoom = geo.ZoomForLocationType(locationType)
	}
	minZoom := math.Min(boxZoom-c.opts.MinZoomDelta, maxZoom)
	c.m.FitBounds(b, mapengine.FitOptions{
		Padding:  c.opts.Padding,
		MinZoom:  minZoom,
		MaxZoom:  maxZoom,
		Duration: c.opts.FlyDuration,
	})
}

func (c *Camera) ClearHighlight() {
	if c.m == nil {
		return
	}
	for _, id := range []string{HighlightLineLayerID, HighlightFillLayerID} {
		if c.m.HasLayer(id) {
			c.m.RemoveLayer(id)
		}
	}
	if c.m.HasSource(HighlightSourceID) {
		c.m.RemoveSource(HighlightSourceID)
	}
}

// Close stops the spin, removes the overlay and unsubscribes from the map.
func (c *Camera) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopLocked()
	offs := c.offs
	c.offs = nil
	c.mu.Unlock()

	for _, off := range offs {
		off()
	}
	c.ClearHighlight()
}
