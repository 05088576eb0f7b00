package globe

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/mapengine/memmap"
	"github.com/sudorandom/event-globe/pkg/popup"
)

var testRoute = Route{
	Name: "test",
	Waypoints: []Waypoint{
		{Name: "Kyiv", Description: "Capital of Ukraine", Coordinates: [2]float64{30.5, 50.4}, Zoom: 5},
		{Name: "Nowhere", Coordinates: [2]float64{-10, 20}},
	},
}

type playerRig struct {
	rm       *recordingMap
	camera   *Camera
	inter    *Interactions
	contents *fakeContents
	player   *RoutePlayer
}

func newPlayerRig(t *testing.T, m *memmap.Map, dwell time.Duration) *playerRig {
	t.Helper()
	r := &playerRig{rm: &recordingMap{Map: m}, contents: &fakeContents{}}
	r.camera = NewCamera(r.rm, DefaultCameraOptions())
	r.inter = NewInteractions(r.rm, categories.Default(), nil, DefaultInteractionOptions())
	opts := DefaultRouteOptions()
	opts.Dwell = dwell
	r.player = NewRoutePlayer(r.rm, r.camera, r.inter, r.contents, opts)
	t.Cleanup(func() {
		r.player.Stop()
		r.inter.Close()
		r.camera.Close()
	})
	return r
}

func TestPlayVisitsWaypointsInOrder(t *testing.T) {
	r := newPlayerRig(t, instantMap(), 10*time.Millisecond)
	r.camera.Spin()
	baseline := r.rm.ListenerCount()

	var mu sync.Mutex
	var steps []StepEvent
	var shown []popup.Content
	r.player.OnStep = func(ev StepEvent) {
		mu.Lock()
		defer mu.Unlock()
		steps = append(steps, ev)
		for _, p := range r.rm.Popups() {
			if p.ID == ev.PopupID {
				shown = append(shown, p.Content)
			}
		}
		if r.camera.State() != StateTouring || !r.inter.Suspended() {
			t.Errorf("Expected touring with interactions suspended at step %d", ev.Index)
		}
	}

	if err := r.player.Play(context.Background(), testRoute); err != nil {
		t.Fatalf("Play: %v", err)
	}

	want := []string{
		"fly 30.5,50.4", "add route-test-0", "remove route-test-0",
		"fly -10.0,20.0", "add route-test-1", "remove route-test-1",
	}
	if got := r.rm.Log(); !reflect.DeepEqual(got, want) {
		t.Errorf("Unexpected sequence:\n got %v\nwant %v", got, want)
	}
	if r.rm.Zoom() != DefaultRouteOptions().Zoom {
		t.Errorf("Expected the default tour zoom for a waypoint without one, got %v", r.rm.Zoom())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(steps) != 2 || steps[1].Index != 1 || steps[1].Waypoint.Name != "Nowhere" {
		t.Fatalf("Unexpected steps %+v", steps)
	}
	if len(shown) != 2 {
		t.Fatalf("Expected popup content at each step, got %d", len(shown))
	}
	if shown[0].Header != "📍 Kyiv" || len(shown[0].Items) != 1 || shown[0].Items[0].Title != "About Kyiv" {
		t.Errorf("Unexpected first popup %+v", shown[0])
	}
	if !shown[1].Empty {
		t.Errorf("A failed contents load must still show an empty popup, got %+v", shown[1])
	}

	if n := len(r.rm.Popups()); n != 0 {
		t.Errorf("Expected no popups after the tour, got %d", n)
	}
	if n := r.rm.ListenerCount(); n != baseline {
		t.Errorf("Expected %d listeners after the tour, got %d", baseline, n)
	}
	if r.camera.State() != StateIdleSpinning || r.inter.Suspended() {
		t.Errorf("Expected spin and interactions restored, got %s suspended=%v", r.camera.State(), r.inter.Suspended())
	}
	if _, playing := r.player.Playing(); playing {
		t.Error("Player still reports playing")
	}
}

func TestStopBeforeArrival(t *testing.T) {
	// Without Tick the fly-to never lands, so the player is parked on move-end.
	m := memmap.New(memmap.Options{Width: 800, Height: 600, Zoom: 3})
	r := newPlayerRig(t, m, time.Minute)
	baseline := r.rm.ListenerCount()

	if err := r.player.Start(context.Background(), testRoute); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, func() bool { return len(r.rm.Log()) == 1 }, "fly-to never issued")
	if r.rm.ListenerCount() != baseline+1 {
		t.Errorf("Expected a move-end listener while flying, got %d", r.rm.ListenerCount())
	}

	r.player.Stop()
	if got := r.rm.Log(); len(got) != 1 {
		t.Errorf("Expected no popup after stopping mid-flight, got %v", got)
	}
	if n := r.rm.ListenerCount(); n != baseline {
		t.Errorf("Move-end listener leaked: %d != %d", n, baseline)
	}

	// A move-end arriving late has nobody to wake.
	for i := 0; i < 3; i++ {
		m.Tick(time.Now().Add(time.Hour))
	}
	if n := len(r.rm.Popups()); n != 0 {
		t.Errorf("Expected no popups, got %d", n)
	}
}

func TestPanDuringFlightKeepsTouring(t *testing.T) {
	m := memmap.New(memmap.Options{Width: 800, Height: 600, Zoom: 3})
	r := newPlayerRig(t, m, 10*time.Millisecond)
	baseline := r.rm.ListenerCount()

	done := make(chan error, 1)
	go func() { done <- r.player.Play(context.Background(), testRoute) }()
	eventually(t, m.Animating, "first flight never started")

	m.Pan(5, 0)

	base := time.Now()
	deadline := time.After(3 * time.Second)
	for i := 0; ; i++ {
		m.Tick(base.Add(time.Duration(i) * time.Second))
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Play: %v", err)
			}
			want := []string{
				"fly 30.5,50.4", "add route-test-0", "remove route-test-0",
				"fly -10.0,20.0", "add route-test-1", "remove route-test-1",
			}
			if got := r.rm.Log(); !reflect.DeepEqual(got, want) {
				t.Errorf("Unexpected sequence:\n got %v\nwant %v", got, want)
			}
			if n := r.rm.ListenerCount(); n != baseline {
				t.Errorf("Expected %d listeners after the tour, got %d", baseline, n)
			}
			if r.camera.State() == StateTouring || r.inter.Suspended() {
				t.Error("Expected camera and interactions released after the tour")
			}
			return
		case <-deadline:
			t.Fatalf("Tour stalled after a pan mid-flight, log %v", r.rm.Log())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopDuringDwell(t *testing.T) {
	r := newPlayerRig(t, instantMap(), time.Minute)
	stepped := make(chan struct{}, 1)
	r.player.OnStep = func(StepEvent) { stepped <- struct{}{} }

	if err := r.player.Start(context.Background(), testRoute); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-stepped:
	case <-time.After(3 * time.Second):
		t.Fatal("Never reached the first waypoint")
	}
	if name, playing := r.player.Playing(); !playing || name != "test" {
		t.Errorf("Expected test to be playing, got %q %v", name, playing)
	}

	r.player.Stop()
	if n := len(r.rm.Popups()); n != 0 {
		t.Errorf("Expected popup removed on stop, got %d", n)
	}
	log := strings.Join(r.rm.Log(), ";")
	if log != "fly 30.5,50.4;add route-test-0;remove route-test-0" {
		t.Errorf("Unexpected sequence %s", log)
	}
	if r.inter.Suspended() || r.camera.State() == StateTouring {
		t.Error("Expected camera and interactions released after stop")
	}
}

func TestAlreadyPlaying(t *testing.T) {
	r := newPlayerRig(t, instantMap(), time.Minute)
	if err := r.player.Start(context.Background(), testRoute); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.player.Start(context.Background(), testRoute); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("Expected ErrAlreadyPlaying, got %v", err)
	}
	r.player.Stop()
	r.player.Stop()
	if err := r.player.Start(context.Background(), testRoute); err != nil {
		t.Errorf("Expected a fresh start after stop, got %v", err)
	}
}

func TestPlayHonoursContext(t *testing.T) {
	r := newPlayerRig(t, instantMap(), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.player.Play(ctx, testRoute); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if n := len(r.rm.Popups()); n != 0 {
		t.Errorf("Expected no popups, got %d", n)
	}
}

func TestRouteByName(t *testing.T) {
	for _, name := range []string{"hotspots", "Capitals"} {
		if _, ok := RouteByName(Routes, name); !ok {
			t.Errorf("Expected route %s", name)
		}
	}
	if _, ok := RouteByName(Routes, "moon"); ok {
		t.Error("Unexpected route moon")
	}
	for _, r := range Routes {
		for _, wp := range r.Waypoints {
			if wp.Coordinates[0] < -180 || wp.Coordinates[0] > 180 || wp.Coordinates[1] < -90 || wp.Coordinates[1] > 90 {
				t.Errorf("%s/%s has invalid coordinates %v", r.Name, wp.Name, wp.Coordinates)
			}
		}
	}
}
