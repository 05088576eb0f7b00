package globe

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/events"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/mapengine/memmap"
	"github.com/sudorandom/event-globe/pkg/sources"
)

type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string]*geojson.FeatureCollection
	fail  map[string]error
	gates map[string]chan struct{}
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data:  make(map[string]*geojson.FeatureCollection),
		fail:  make(map[string]error),
		gates: make(map[string]chan struct{}),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) FetchCategory(ctx context.Context, name string) (*geojson.FeatureCollection, error) {
	f.mu.Lock()
	f.calls[name]++
	gate := f.gates[name]
	err := f.fail[name]
	fc := f.data[name]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	return events.Normalize(fc), nil
}

func (f *fakeFetcher) set(name string, fc *geojson.FeatureCollection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[name] = fc
}

func pointFeature(name string, lng, lat float64, count int) *geojson.Feature {
	f := geojson.NewPointFeature([]float64{lng, lat})
	f.Properties["location_name"] = name
	f.Properties["content_count"] = count
	return f
}

func single(name string, lng, lat float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.AddFeature(pointFeature(name, lng, lat, 1))
	return fc
}

// tightCluster puts n points within a few hundredths of a degree of (lng, lat).
func tightCluster(n int, lng, lat float64) *geojson.FeatureCollection {
	r := rand.New(rand.NewSource(int64(n)))
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		fc.AddFeature(pointFeature(fmt.Sprintf("loc-%d", i), lng+(r.Float64()-0.5)*0.05, lat+(r.Float64()-0.5)*0.05, i%4))
	}
	return fc
}

type fakeGeocoder struct {
	res sources.GeocodeResult
	err error
}

func (g fakeGeocoder) Geocode(ctx context.Context, q string) (sources.GeocodeResult, error) {
	return g.res, g.err
}

type fakeContents struct {
	mu    sync.Mutex
	asked []string
}

func (c *fakeContents) LoadContents(ctx context.Context, name string) ([]events.ContentSummary, error) {
	c.mu.Lock()
	c.asked = append(c.asked, name)
	c.mu.Unlock()
	if name == "Nowhere" {
		return nil, errors.New("no such place")
	}
	return []events.ContentSummary{{URL: "u-" + name, Title: "About " + name, InsertionDate: "2024-01-01"}}, nil
}

// recordingMap logs camera moves and popup changes in order.
type recordingMap struct {
	*memmap.Map

	mu  sync.Mutex
	log []string
}

func (r *recordingMap) record(s string) {
	r.mu.Lock()
	r.log = append(r.log, s)
	r.mu.Unlock()
}

func (r *recordingMap) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *recordingMap) FlyTo(opts mapengine.FlyToOptions) {
	r.record(fmt.Sprintf("fly %.1f,%.1f", opts.Center.Lng, opts.Center.Lat))
	r.Map.FlyTo(opts)
}

func (r *recordingMap) AddPopup(p mapengine.Popup) {
	r.record("add " + p.ID)
	r.Map.AddPopup(p)
}

func (r *recordingMap) RemovePopup(id string) {
	r.record("remove " + id)
	r.Map.RemovePopup(id)
}

func instantMap() *memmap.Map {
	return memmap.New(memmap.Options{Width: 800, Height: 600, Zoom: 3, Instant: true})
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
