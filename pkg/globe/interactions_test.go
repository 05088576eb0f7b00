package globe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/mapengine/memmap"
	"github.com/sudorandom/event-globe/pkg/popup"
)

var center = mapengine.ScreenPoint{X: 400, Y: 300}

type selection struct{ location, category string }

type harness struct {
	m     *memmap.Map
	inter *Interactions

	mu       sync.Mutex
	selected []selection
}

func (h *harness) Selected() []selection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]selection(nil), h.selected...)
}

func newHarness(t *testing.T, f *fakeFetcher, opts InteractionOptions) *harness {
	t.Helper()
	h := &harness{m: instantMap()}
	reg := categories.Default()
	h.inter = NewInteractions(h.m, reg, func(loc, cat string) {
		h.mu.Lock()
		h.selected = append(h.selected, selection{loc, cat})
		h.mu.Unlock()
	}, opts)
	l := NewDataLoader(NewSession(h.m), reg, f, nil, h.inter, DefaultLoaderOptions())
	if err := l.Load(context.Background()).Err(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(h.inter.Close)
	return h
}

func fastOpts() InteractionOptions {
	opts := DefaultInteractionOptions()
	opts.HoverTimeout = 80 * time.Millisecond
	opts.LeaveTimeout = 80 * time.Millisecond
	return opts
}

func TestParseClusterHandle(t *testing.T) {
	f := geojson.NewPointFeature([]float64{1, 2})
	f.Properties["cluster_id"] = float64(42)
	f.Properties["point_count"] = 7
	h, ok := ParseClusterHandle(f)
	if !ok || h.ClusterID != 42 || h.PointCount != 7 || h.Coordinates != [2]float64{1, 2} {
		t.Errorf("Unexpected handle %+v (%v)", h, ok)
	}
	if _, ok := ParseClusterHandle(geojson.NewPointFeature([]float64{1, 2})); ok {
		t.Error("Expected feature without cluster_id to be rejected")
	}
	if _, ok := ParseClusterHandle(nil); ok {
		t.Error("Expected nil feature to be rejected")
	}
}

func TestHoverClusterPreview(t *testing.T) {
	f := newFakeFetcher()
	f.set("War", tightCluster(120, 0, 0))
	opts := fastOpts()
	opts.HoverTimeout = time.Minute
	opts.Limits.PreviewSample = 3
	h := newHarness(t, f, opts)

	h.m.PointerMove(center)
	popups := h.m.Popups()
	if len(popups) != 1 {
		t.Fatalf("Expected one hover popup, got %d", len(popups))
	}
	c := popups[0].Content
	if c.Kind != popup.KindClusterPreview || len(c.Items) != 3 {
		t.Errorf("Unexpected preview %+v", c)
	}
	if c.OverflowNote() != "and 117 more" {
		t.Errorf("Expected 'and 117 more', got %q", c.OverflowNote())
	}
	if h.m.Cursor() != "pointer" {
		t.Errorf("Expected pointer cursor, got %q", h.m.Cursor())
	}

	// Leaving and re-entering replaces the popup instead of stacking another.
	h.m.PointerMove(mapengine.ScreenPoint{X: 5, Y: 5})
	if h.m.Cursor() != "" {
		t.Errorf("Expected cursor reset on leave, got %q", h.m.Cursor())
	}
	h.m.PointerMove(center)
	if n := len(h.m.Popups()); n != 1 {
		t.Errorf("Expected a single hover popup, got %d", n)
	}
}

func TestHoverPopupTimers(t *testing.T) {
	f := newFakeFetcher()
	f.set("War", single("Kyiv", 0, 0))
	h := newHarness(t, f, fastOpts())

	h.m.PointerMove(center)
	popups := h.m.Popups()
	if len(popups) != 1 || popups[0].Content.Kind != popup.KindSingle {
		t.Fatalf("Expected single-point hover popup, got %+v", popups)
	}
	if popups[0].Content.Header != "War @ 📍 Kyiv · 1 item" {
		t.Errorf("Unexpected header %q", popups[0].Content.Header)
	}
	eventually(t, func() bool { return len(h.m.Popups()) == 0 }, "hover popup never expired")

	h.m.PointerMove(mapengine.ScreenPoint{X: 5, Y: 5})
	h.m.PointerMove(center)
	id := h.m.Popups()[0].ID
	h.m.PopupPointer(id, true)
	time.Sleep(200 * time.Millisecond)
	if len(h.m.Popups()) != 1 {
		t.Fatal("Popup expired while the pointer was over it")
	}
	h.m.PopupPointer(id, false)
	eventually(t, func() bool { return len(h.m.Popups()) == 0 }, "popup never expired after pointer left")
}

func TestClusterClickBreakdown(t *testing.T) {
	f := newFakeFetcher()
	f.set("War", tightCluster(25, 0, 0))
	h := newHarness(t, f, fastOpts())
	startZoom := h.m.Zoom()

	h.m.Click(center)
	popups := h.m.Popups()
	if len(popups) != 1 {
		t.Fatalf("Expected breakdown popup, got %d", len(popups))
	}
	c := popups[0].Content
	if c.Kind != popup.KindClusterBreakdown || len(c.Items) != 10 || c.Overflow != 15 {
		t.Errorf("Unexpected breakdown: kind=%s items=%d overflow=%d", c.Kind, len(c.Items), c.Overflow)
	}
	if c.HeaderAction == nil || c.HeaderAction.Kind != popup.ActionZoom || c.HeaderAction.Zoom <= startZoom {
		t.Fatalf("Expected zoom-in header action, got %+v", c.HeaderAction)
	}

	// Breakdown items re-run the point click path.
	if !h.m.Trigger(popups[0].ID, 2) {
		t.Fatal("Trigger item failed")
	}
	sel := h.Selected()
	if len(sel) != 1 || sel[0].location != c.Items[2].Title || sel[0].category != "War" {
		t.Errorf("Unexpected selection %+v", sel)
	}

	h.m.Click(center)
	id := h.m.Popups()[0].ID
	if !h.m.Trigger(id, -1) {
		t.Fatal("Trigger header failed")
	}
	if h.m.Zoom() != c.HeaderAction.Zoom {
		t.Errorf("Expected zoom %v, got %v", c.HeaderAction.Zoom, h.m.Zoom())
	}
	if len(h.m.Popups()) != 0 {
		t.Error("Expected breakdown popup to close after zooming")
	}
}

func TestTopmostLayerWins(t *testing.T) {
	f := newFakeFetcher()
	f.set("War", single("Kyiv", 0, 0))
	f.set("Crisis", single("Kyiv crisis", 0, 0))
	h := newHarness(t, f, fastOpts())

	h.m.Click(center)
	sel := h.Selected()
	if len(sel) != 1 || sel[0] != (selection{"Kyiv", "War"}) {
		t.Errorf("Expected only the War point to handle the click, got %+v", sel)
	}

	h.m.PointerMove(center)
	if popups := h.m.Popups(); len(popups) != 1 || popups[0].Content.Category != "War" {
		t.Errorf("Expected only the War popup, got %+v", popups)
	}
}

func TestSuspendIgnoresEvents(t *testing.T) {
	f := newFakeFetcher()
	f.set("War", single("Kyiv", 0, 0))
	h := newHarness(t, f, fastOpts())

	h.m.PointerMove(center)
	h.inter.Suspend()
	if len(h.m.Popups()) != 0 {
		t.Error("Suspend must close open popups")
	}
	h.m.PointerMove(mapengine.ScreenPoint{X: 5, Y: 5})
	h.m.PointerMove(center)
	h.m.Click(center)
	if len(h.m.Popups()) != 0 || len(h.Selected()) != 0 {
		t.Error("Suspended handler reacted to input")
	}

	h.inter.Resume()
	h.m.Click(center)
	if len(h.Selected()) != 1 {
		t.Error("Expected handler to react after Resume")
	}
}

func TestHeaderSelectsLocation(t *testing.T) {
	f := newFakeFetcher()
	f.set("Protests", single("Tbilisi", 0, 0))
	opts := fastOpts()
	var opened []string
	opts.OnOpen = func(url string) { opened = append(opened, url) }
	h := newHarness(t, f, opts)

	h.m.PointerMove(center)
	id := h.m.Popups()[0].ID
	h.m.Trigger(id, -1)
	if sel := h.Selected(); len(sel) != 1 || sel[0] != (selection{"Tbilisi", "Protests"}) {
		t.Errorf("Unexpected selection %+v", sel)
	}
	h.m.ActivatePopup(id, popup.Action{Kind: popup.ActionOpen, URL: "https://example.com/a"})
	if len(opened) != 1 {
		t.Errorf("Expected link to open, got %v", opened)
	}
}

// unlistedLeaves is an engine whose clusters cannot list their members.
type unlistedLeaves struct {
	*memmap.Map
}

func (unlistedLeaves) ClusterLeaves(string, int, int, int) ([]*geojson.Feature, error) {
	return nil, errors.New("leaves unavailable")
}

func TestClusterWithoutLeavesShowsNoPopup(t *testing.T) {
	f := newFakeFetcher()
	f.set("War", tightCluster(120, 0, 0))
	m := instantMap()
	em := unlistedLeaves{m}
	reg := categories.Default()
	inter := NewInteractions(em, reg, nil, fastOpts())
	t.Cleanup(inter.Close)
	l := NewDataLoader(NewSession(em), reg, f, nil, inter, DefaultLoaderOptions())
	if err := l.Load(context.Background()).Err(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.PointerMove(center)
	if n := len(m.Popups()); n != 0 {
		t.Errorf("Expected no hover popup for an unreadable cluster, got %+v", m.Popups()[0].Content)
	}
	if m.Cursor() != "pointer" {
		t.Errorf("Expected the cluster to stay clickable, got cursor %q", m.Cursor())
	}

	m.Click(center)
	if n := len(m.Popups()); n != 0 {
		t.Errorf("Expected no breakdown popup for an unreadable cluster, got %d", n)
	}
}
