package globe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sudorandom/event-globe/pkg/events"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/popup"
)

var (
	ErrAlreadyPlaying = errors.New("a tour is already playing")
	ErrUnknownRoute   = errors.New("unknown route")
)

type ContentLoader interface {
	LoadContents(ctx context.Context, name string) ([]events.ContentSummary, error)
}

type RouteOptions struct {
	Zoom        float64 // used when a waypoint has none
	FlyDuration time.Duration
	Speed       float64
	Curve       float64
	Dwell       time.Duration
	Limits      popup.Limits
}

func DefaultRouteOptions() RouteOptions {
	return RouteOptions{
		Zoom:        5,
		FlyDuration: 4 * time.Second,
		Speed:       0.6,
		Curve:       1.4,
		Dwell:       5 * time.Second,
		Limits:      popup.DefaultLimits(),
	}
}

// StepEvent is reported once a waypoint's popup is showing.
type StepEvent struct {
	Route    string
	Index    int
	Waypoint Waypoint
	PopupID  string
}

// RoutePlayer flies through a route's waypoints one at a time, showing a popup at
// each and dwelling before moving on. While it plays, idle spin and cluster
// interactions are suspended.
type RoutePlayer struct {
	m        mapengine.Map
	camera   *Camera
	inter    *Interactions
	contents ContentLoader
	opts     RouteOptions

	// OnStep, if set, is called from the playing goroutine. It must not call Stop.
	OnStep func(StepEvent)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	playing string
}

func NewRoutePlayer(m mapengine.Map, camera *Camera, inter *Interactions, contents ContentLoader, opts RouteOptions) *RoutePlayer {
	return &RoutePlayer{m: m, camera: camera, inter: inter, contents: contents, opts: opts}
}

// Playing returns the name of the route in progress.
func (p *RoutePlayer) Playing() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing, p.cancel != nil
}

func (p *RoutePlayer) begin(ctx context.Context, r Route) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil, ErrAlreadyPlaying
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.playing = r.Name
	return ctx, nil
}

func (p *RoutePlayer) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel()
	p.cancel = nil
	p.playing = ""
	close(p.done)
}

// Start plays r in the background.
func (p *RoutePlayer) Start(ctx context.Context, r Route) error {
	ctx, err := p.begin(ctx, r)
	if err != nil {
		return err
	}
	go func() {
		if err := p.play(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[ROUTE] %s stopped: %v", r.Name, err)
		}
	}()
	return nil
}

// Play plays r and returns when it finishes or ctx is done.
func (p *RoutePlayer) Play(ctx context.Context, r Route) error {
	ctx, err := p.begin(ctx, r)
	if err != nil {
		return err
	}
	return p.play(ctx, r)
}

// Stop cancels the tour in progress and waits until its popup is gone and its
// listener is released.
func (p *RoutePlayer) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *RoutePlayer) play(ctx context.Context, r Route) error {
	defer p.end()

	log.Printf("[ROUTE] Starting %s (%d waypoints)", r.Name, len(r.Waypoints))
	if p.camera != nil {
		p.camera.BeginTour()
		defer p.camera.EndTour()
	}
	if p.inter != nil {
		p.inter.Suspend()
		defer p.inter.Resume()
	}

	for i, wp := range r.Waypoints {
		if err := p.step(ctx, r, i, wp); err != nil {
			return err
		}
	}
	log.Printf("[ROUTE] Finished %s", r.Name)
	return nil
}

type contentsResult struct {
	contents []events.ContentSummary
	err      error
}

func (p *RoutePlayer) step(ctx context.Context, r Route, i int, wp Waypoint) error {
	loaded := make(chan contentsResult, 1)
	if p.contents != nil {
		go func() {
			c, err := p.contents.LoadContents(ctx, wp.Name)
			loaded <- contentsResult{contents: c, err: err}
		}()
	} else {
		loaded <- contentsResult{}
	}

	moved := make(chan struct{}, 1)
	off := p.m.OnMapEvent(mapengine.MoveEnd, func() {
		select {
		case moved <- struct{}{}:
		default:
		}
	})
	defer off()

	zoom := wp.Zoom
	if zoom <= 0 {
		zoom = p.opts.Zoom
	}
	p.m.FlyTo(mapengine.FlyToOptions{
		Center:   geo.LngLat{Lng: wp.Coordinates[0], Lat: wp.Coordinates[1]},
		Zoom:     zoom,
		Duration: p.opts.FlyDuration,
		Speed:    p.opts.Speed,
		Curve:    p.opts.Curve,
	})

	select {
	case <-moved:
	case <-ctx.Done():
		return ctx.Err()
	}

	var res contentsResult
	select {
	case res = <-loaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		log.Printf("[ROUTE] Contents for %s: %v", wp.Name, res.err)
	}

	id := fmt.Sprintf("route-%s-%d", r.Name, i)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.m.AddPopup(mapengine.Popup{
		ID:      id,
		At:      geo.LngLat{Lng: wp.Coordinates[0], Lat: wp.Coordinates[1]},
		Content: popup.Waypoint(wp.Name, wp.Description, res.contents, p.opts.Limits),
	})
	defer p.m.RemovePopup(id)

	if p.OnStep != nil {
		p.OnStep(StepEvent{Route: r.Name, Index: i, Waypoint: wp, PopupID: id})
	}

	t := time.NewTimer(p.opts.Dwell)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
