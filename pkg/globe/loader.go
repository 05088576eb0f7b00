package globe

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"
	"sort"
	"sync"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/mapengine"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrStaleLoad       = errors.New("load superseded")
)

type Fetcher interface {
	FetchCategory(ctx context.Context, name string) (*geojson.FeatureCollection, error)
}

type IconWaiter interface {
	Wait(ctx context.Context, id string) error
}

// Binder attaches the interaction listeners for a category's layers and returns
// the functions that detach them.
type Binder interface {
	Bind(cat categories.Category) []func()
}

type LoaderOptions struct {
	ClusterRadius  float64
	ClusterMaxZoom float64
}

func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{ClusterRadius: 50, ClusterMaxZoom: 14}
}

// LoadResult reports how each requested category settled. A category missing from
// Loaded failed or was superseded, and Errors says why.
type LoadResult struct {
	Loaded []string
	Errors map[string]error
}

func (r LoadResult) Err() error {
	names := make([]string, 0, len(r.Errors))
	for name := range r.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, r.Errors[name])
	}
	return errors.Join(errs...)
}

type DataLoader struct {
	session *Session
	reg     *categories.Registry
	fetch   Fetcher
	icons   IconWaiter
	binder  Binder
	opts    LoaderOptions

	mu         sync.Mutex
	theme      categories.Theme
	gens       map[string]uint64
	offs       map[string][]func()
	installed  map[string]bool
	visibility map[string]bool
}

func NewDataLoader(session *Session, reg *categories.Registry, fetch Fetcher, icons IconWaiter, binder Binder, opts LoaderOptions) *DataLoader {
	return &DataLoader{
		session:    session,
		reg:        reg,
		fetch:      fetch,
		icons:      icons,
		binder:     binder,
		opts:       opts,
		gens:       make(map[string]uint64),
		offs:       make(map[string][]func()),
		installed:  make(map[string]bool),
		visibility: make(map[string]bool),
	}
}

func (l *DataLoader) SetTheme(t categories.Theme) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.theme = t
}

// Load fetches and installs every category.
func (l *DataLoader) Load(ctx context.Context) LoadResult {
	return l.Reload(ctx, l.reg.Names()...)
}

// Reload fetches the named categories in parallel and reinstalls each one as soon
// as its data and icon are ready. Categories settle independently: one failing
// leaves the others and its own previous install untouched.
func (l *DataLoader) Reload(ctx context.Context, names ...string) LoadResult {
	res := LoadResult{Errors: make(map[string]error)}
	if len(names) == 0 {
		names = l.reg.Names()
	}

	var (
		wg    sync.WaitGroup
		resMu sync.Mutex
	)
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		cat, ok := l.reg.ByName(name)
		if !ok {
			res.Errors[name] = fmt.Errorf("reload %s: %w", name, ErrUnknownCategory)
			continue
		}
		if seen[cat.Name] {
			continue
		}
		seen[cat.Name] = true

		l.mu.Lock()
		l.gens[cat.Name]++
		gen := l.gens[cat.Name]
		l.mu.Unlock()
		sessionGen := l.session.Generation()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.loadOne(ctx, cat, gen, sessionGen)
			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				res.Errors[cat.Name] = err
				return
			}
			res.Loaded = append(res.Loaded, cat.Name)
		}()
	}
	wg.Wait()
	sort.Strings(res.Loaded)
	return res
}

func (l *DataLoader) loadOne(ctx context.Context, cat categories.Category, gen, sessionGen uint64) error {
	fc, err := l.fetch.FetchCategory(ctx, cat.Name)
	if err != nil {
		log.Printf("[LOADER] Failed to load %s: %v", cat.Name, err)
		return err
	}

	if l.icons != nil {
		if err := l.icons.Wait(ctx, cat.IconID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[LOADER] Icon %s for %s not ready: %v", cat.IconID, cat.Name, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.session.Live(sessionGen) || l.gens[cat.Name] != gen {
		return fmt.Errorf("load %s: %w", cat.Name, ErrStaleLoad)
	}
	if err := l.installLocked(cat, fc); err != nil {
		log.Printf("[LOADER] Failed to install %s: %v", cat.Name, err)
		l.uninstallLocked(cat)
		return err
	}
	log.Printf("[LOADER] Installed %s (%d features)", cat.Name, len(fc.Features))
	return nil
}

func (l *DataLoader) layers(cat categories.Category) []mapengine.Layer {
	c := cat.Color(l.theme)
	label := color.RGBA{255, 255, 255, 255}
	if l.theme == categories.ThemeLight {
		label = color.RGBA{20, 20, 20, 255}
	}
	z := cat.ZOrder * 10
	return []mapengine.Layer{
		{
			ID: cat.ClusterLayerID, Source: cat.SourceID, Kind: mapengine.LayerCircle,
			Filter: mapengine.FilterClusters, Z: z, Visible: true,
			Paint: mapengine.Paint{Color: c, Opacity: 0.8, Radius: 15},
		},
		{
			ID: cat.PointLayerID, Source: cat.SourceID, Kind: mapengine.LayerSymbol,
			Filter: mapengine.FilterUnclustered, Z: z + 1, Visible: true,
			Paint: mapengine.Paint{Color: c, Opacity: 1, IconID: cat.IconID},
		},
		{
			ID: cat.CountLayerID, Source: cat.SourceID, Kind: mapengine.LayerLabel,
			Filter: mapengine.FilterClusters, Z: z + 2, Visible: true,
			Paint: mapengine.Paint{Color: label, Opacity: 1},
		},
	}
}

func (l *DataLoader) installLocked(cat categories.Category, fc *geojson.FeatureCollection) error {
	m := l.session.Map
	l.uninstallLocked(cat)

	err := m.AddSource(cat.SourceID, mapengine.SourceSpec{
		Data:           fc,
		Cluster:        true,
		ClusterRadius:  l.opts.ClusterRadius,
		ClusterMaxZoom: l.opts.ClusterMaxZoom,
	})
	if err != nil {
		return fmt.Errorf("install %s: %w", cat.Name, err)
	}
	for _, layer := range l.layers(cat) {
		if err := m.AddLayer(layer); err != nil {
			return fmt.Errorf("install %s: %w", cat.Name, err)
		}
	}
	if l.binder != nil {
		l.offs[cat.Name] = l.binder.Bind(cat)
	}
	l.installed[cat.Name] = true
	l.applyVisibilityLocked(cat)
	return nil
}

// uninstallLocked removes whatever is present for the category. It is safe to call
// when nothing is installed.
func (l *DataLoader) uninstallLocked(cat categories.Category) {
	m := l.session.Map
	for _, off := range l.offs[cat.Name] {
		off()
	}
	delete(l.offs, cat.Name)
	ids := cat.LayerIDs()
	for i := len(ids) - 1; i >= 0; i-- {
		if m.HasLayer(ids[i]) {
			m.RemoveLayer(ids[i])
		}
	}
	if m.HasSource(cat.SourceID) {
		m.RemoveSource(cat.SourceID)
	}
	delete(l.installed, cat.Name)
}

func (l *DataLoader) applyVisibilityLocked(cat categories.Category) {
	if !l.installed[cat.Name] {
		return
	}
	visible, ok := l.visibility[cat.Name]
	if !ok {
		visible = true
	}
	for _, id := range cat.LayerIDs() {
		l.session.Map.SetLayerVisibility(id, visible)
	}
}

// SetVisible records the category's visibility and applies it to all three layers
// if they are installed. It is re-applied after every install.
func (l *DataLoader) SetVisible(name string, visible bool) error {
	cat, ok := l.reg.ByName(name)
	if !ok {
		return fmt.Errorf("set visibility %s: %w", name, ErrUnknownCategory)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visibility[cat.Name] = visible
	l.applyVisibilityLocked(cat)
	return nil
}

func (l *DataLoader) SetVisibility(v map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, visible := range v {
		if cat, ok := l.reg.ByName(name); ok {
			l.visibility[cat.Name] = visible
			l.applyVisibilityLocked(cat)
		}
	}
}

// Visibility returns every category's visibility. Categories never toggled are visible.
func (l *DataLoader) Visibility() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool, l.reg.Len())
	for _, name := range l.reg.Names() {
		v, ok := l.visibility[name]
		out[name] = !ok || v
	}
	return out
}

func (l *DataLoader) Installed(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.installed[name]
}

// Teardown removes every category from the map and invalidates loads in flight.
func (l *DataLoader) Teardown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, cat := range l.reg.All() {
		l.gens[cat.Name]++
		l.uninstallLocked(cat)
	}
}
