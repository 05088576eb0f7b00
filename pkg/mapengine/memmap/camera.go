package memmap

import (
	"math"
	"time"

	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
)

const defaultFlyDuration = 1500 * time.Millisecond

func (m *Map) Center() geo.LngLat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *Map) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

// Size returns the viewport in pixels.
func (m *Map) Size() (w, h float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

// Animating reports whether a FlyTo or FitBounds is still in flight.
func (m *Map) Animating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anim != nil
}

// JumpTo moves the camera without animation. It only signals move-end when it
// cuts an animation short.
func (m *Map) JumpTo(center geo.LngLat, zoom float64) {
	if !center.Valid() || math.IsNaN(zoom) {
		return
	}
	m.mu.Lock()
	interrupted := m.interruptLocked()
	m.center = geo.LngLat{Lng: geo.WrapLng(center.Lng), Lat: clampLat(center.Lat)}
	m.zoom = clampZoom(zoom)
	m.mu.Unlock()
	m.endInterrupted(interrupted)
}

// interruptLocked drops the animation in flight and reports whether there was one.
func (m *Map) interruptLocked() bool {
	interrupted := m.anim != nil
	m.anim = nil
	return interrupted
}

// endInterrupted closes out a move the user cut short. Waiters on move-end
// would otherwise never hear about it.
func (m *Map) endInterrupted(interrupted bool) {
	if interrupted {
		m.Emit(mapengine.MoveEnd)
	}
}

func (m *Map) FlyTo(opts mapengine.FlyToOptions) {
	if !opts.Center.Valid() {
		return
	}
	zoom := opts.Zoom
	if math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		zoom = m.Zoom()
	}
	m.animateTo(opts.Center, zoom, opts.Duration)
}

func (m *Map) FitBounds(b geo.BBox, opts mapengine.FitOptions) {
	w, h := m.Size()
	zoom := geo.FitZoom(b, w, h, opts.Padding)
	if opts.MaxZoom > 0 && zoom > opts.MaxZoom {
		zoom = opts.MaxZoom
	}
	if opts.MinZoom > 0 && zoom < opts.MinZoom {
		zoom = opts.MinZoom
	}
	m.animateTo(b.Center(), zoom, opts.Duration)
}

func (m *Map) animateTo(center geo.LngLat, zoom float64, d time.Duration) {
	center = geo.LngLat{Lng: geo.WrapLng(center.Lng), Lat: clampLat(center.Lat)}
	zoom = clampZoom(zoom)
	if d <= 0 {
		d = defaultFlyDuration
	}

	m.mu.Lock()
	if m.instant {
		m.anim = nil
		m.center, m.zoom = center, zoom
		m.mu.Unlock()
		m.Emit(mapengine.MoveEnd)
		return
	}
	// A replaced animation gets no move-end of its own; the new one ends the move.
	m.anim = &animation{
		fromCenter: m.center,
		toCenter:   center,
		fromZoom:   m.zoom,
		toZoom:     zoom,
		duration:   d,
	}
	m.mu.Unlock()
}

// stepAnimationLocked advances the camera and reports whether the animation finished.
func (m *Map) stepAnimationLocked(now time.Time) bool {
	a := m.anim
	if a == nil {
		return false
	}
	if a.start.IsZero() {
		a.start = now
	}
	t := float64(now.Sub(a.start)) / float64(a.duration)
	if t >= 1 {
		m.center, m.zoom = a.toCenter, a.toZoom
		m.anim = nil
		return true
	}
	e := easeInOut(t)

	dLng := geo.WrapLng(a.toCenter.Lng - a.fromCenter.Lng)
	m.center = geo.LngLat{
		Lng: geo.WrapLng(a.fromCenter.Lng + dLng*e),
		Lat: a.fromCenter.Lat + (a.toCenter.Lat-a.fromCenter.Lat)*e,
	}
	// Pull back mid-flight for long hops, like a fly-to arc.
	arc := math.Min(2, math.Hypot(dLng, a.toCenter.Lat-a.fromCenter.Lat)/45)
	m.zoom = clampZoom(a.fromZoom + (a.toZoom-a.fromZoom)*e - arc*math.Sin(math.Pi*t))
	return false
}

func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}

func clampLat(lat float64) float64 {
	return math.Max(-85, math.Min(85, lat))
}

// Pan drags the globe by a screen delta, as a mouse drag does.
func (m *Map) Pan(dx, dy float64) {
	m.mu.Lock()
	interrupted := m.interruptLocked()
	deg := 180 / math.Pi / (geo.WorldSize(m.zoom) / (2 * math.Pi))
	m.center = geo.LngLat{
		Lng: geo.WrapLng(m.center.Lng - dx*deg),
		Lat: clampLat(m.center.Lat + dy*deg),
	}
	m.mu.Unlock()
	m.endInterrupted(interrupted)
}

// ZoomBy changes the zoom by delta levels, as a wheel notch does.
func (m *Map) ZoomBy(delta float64) {
	m.mu.Lock()
	interrupted := m.interruptLocked()
	m.zoom = clampZoom(m.zoom + delta)
	m.mu.Unlock()
	m.endInterrupted(interrupted)
}

func (m *Map) projectionLocked() geo.Orthographic {
	return geo.NewOrthographic(m.center, m.zoom, m.width, m.height)
}
