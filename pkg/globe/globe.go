package globe

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"
	"sync"

	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/icons"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/sources"
)

var ErrNotMounted = errors.New("globe is not mounted")

type Geocoder interface {
	Geocode(ctx context.Context, q string) (sources.GeocodeResult, error)
}

type Options struct {
	Categories *categories.Registry
	Fetcher    Fetcher
	Icons      icons.Source
	Geocoder   Geocoder
	Contents   ContentLoader
	OnSelect   SelectFunc
	Theme      categories.Theme
	Routes     []Route

	Loader       LoaderOptions
	Camera       CameraOptions
	Interactions InteractionOptions
	Route        RouteOptions
}

func DefaultOptions() Options {
	return Options{
		Categories:   categories.Default(),
		Theme:        categories.ThemeDark,
		Routes:       Routes,
		Loader:       DefaultLoaderOptions(),
		Camera:       DefaultCameraOptions(),
		Interactions: DefaultInteractionOptions(),
		Route:        DefaultRouteOptions(),
	}
}

// FogFor is the atmosphere drawn around the globe for a theme.
func FogFor(t categories.Theme) mapengine.Fog {
	if t == categories.ThemeLight {
		return mapengine.Fog{
			Color:          color.RGBA{220, 230, 240, 255},
			HighColor:      color.RGBA{160, 190, 230, 255},
			SpaceColor:     color.RGBA{235, 240, 248, 255},
			HorizonBlend:   0.08,
			StarIntensity:  0,
			AtmosphereGlow: 0.4,
		}
	}
	return mapengine.Fog{
		Color:          color.RGBA{20, 24, 32, 255},
		HighColor:      color.RGBA{36, 92, 223, 255},
		SpaceColor:     color.RGBA{8, 10, 15, 255},
		HorizonBlend:   0.05,
		StarIntensity:  0.6,
		AtmosphereGlow: 0.8,
	}
}

// Globe is the handle the host holds. It wires the loader, camera, interactions,
// icons and route player to one mounted map at a time.
type Globe struct {
	opts Options

	mu         sync.Mutex
	theme      categories.Theme
	visibility map[string]bool

	session *Session
	loader  *DataLoader
	camera  *Camera
	inter   *Interactions
	icons   *icons.Loader
	player  *RoutePlayer
	offs    []func()
	cancel  context.CancelFunc
	ctx     context.Context
}

func New(opts Options) *Globe {
	if opts.Categories == nil {
		opts.Categories = categories.Default()
	}
	if opts.Routes == nil {
		opts.Routes = Routes
	}
	return &Globe{opts: opts, theme: opts.Theme, visibility: make(map[string]bool)}
}

func (g *Globe) iconIDs() []string {
	var ids []string
	for _, c := range g.opts.Categories.All() {
		ids = append(ids, c.IconID)
	}
	return ids
}

// Mount attaches the globe to m, starts the idle spin and loads every category.
// It returns once each category has settled. ctx bounds the lifetime of the mount.
func (g *Globe) Mount(ctx context.Context, m mapengine.Map) (LoadResult, error) {
	if m == nil {
		return LoadResult{}, fmt.Errorf("mount: %w", ErrNotMounted)
	}
	g.Unmount()

	g.mu.Lock()
	g.ctx, g.cancel = context.WithCancel(ctx)
	ctx = g.ctx
	theme := g.theme
	g.session = NewSession(m)
	g.inter = NewInteractions(m, g.opts.Categories, g.opts.OnSelect, g.opts.Interactions)
	g.inter.SetTheme(theme)
	g.camera = NewCamera(m, g.opts.Camera)
	var waiter IconWaiter
	if g.opts.Icons != nil {
		g.icons = icons.NewLoader(g.opts.Icons, m)
		waiter = g.icons
	}
	g.loader = NewDataLoader(g.session, g.opts.Categories, g.opts.Fetcher, waiter, g.inter, g.opts.Loader)
	g.loader.SetTheme(theme)
	g.loader.SetVisibility(g.visibility)
	g.player = NewRoutePlayer(m, g.camera, g.inter, g.opts.Contents, g.opts.Route)
	g.offs = append(g.offs, m.OnImageMissing(g.HandleImageMissing))
	loader, camera, iconLoader := g.loader, g.camera, g.icons
	g.mu.Unlock()

	log.Printf("[GLOBE] Mounting with %d categories (%s theme)", g.opts.Categories.Len(), theme)
	m.SetFog(FogFor(theme))
	camera.Spin()
	if iconLoader != nil {
		iconLoader.Resolve(ctx, theme, g.iconIDs())
	}
	if g.opts.Fetcher == nil {
		return LoadResult{Errors: map[string]error{}}, nil
	}
	res := loader.Load(ctx)
	if err := res.Err(); err != nil {
		log.Printf("[GLOBE] Loaded %d categories, %d failed", len(res.Loaded), len(res.Errors))
	}
	return res, nil
}

// Unmount tears everything down. Loads still in flight are dropped when they land.
func (g *Globe) Unmount() {
	g.mu.Lock()
	if g.session == nil {
		g.mu.Unlock()
		return
	}
	session, loader, camera, inter, iconLoader, player := g.session, g.loader, g.camera, g.inter, g.icons, g.player
	offs, cancel := g.offs, g.cancel
	g.visibility = loader.Visibility()
	g.session, g.loader, g.camera, g.inter, g.icons, g.player = nil, nil, nil, nil, nil, nil
	g.offs, g.cancel, g.ctx = nil, nil, nil
	g.mu.Unlock()

	player.Stop()
	session.Close()
	cancel()
	for _, off := range offs {
		off()
	}
	inter.Close()
	camera.Close()
	loader.Teardown()
	if iconLoader != nil {
		iconLoader.Close()
	}
	log.Printf("[GLOBE] Unmounted")
}

func (g *Globe) Mounted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}

type mounted struct {
	ctx    context.Context
	loader *DataLoader
	camera *Camera
	inter  *Interactions
	icons  *icons.Loader
	player *RoutePlayer
	m      mapengine.Map
}

func (g *Globe) current() (mounted, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return mounted{}, false
	}
	return mounted{
		ctx:    g.ctx,
		loader: g.loader,
		camera: g.camera,
		inter:  g.inter,
		icons:  g.icons,
		player: g.player,
		m:      g.session.Map,
	}, true
}

// ZoomToLocation frames bbox when it is well formed and flies to the point otherwise.
func (g *Globe) ZoomToLocation(lat, lng float64, bbox []float64, locationType string, dynamicZoom bool) error {
	cur, ok := g.current()
	if !ok {
		return ErrNotMounted
	}
	if _, ok := geo.NewBBox(bbox); ok {
		cur.camera.HighlightBoundingBox(bbox, locationType, dynamicZoom)
		return nil
	}
	cur.camera.ClearHighlight()
	cur.camera.FlyToLocation(lng, lat, 0, locationType)
	return nil
}

// GoTo geocodes query and zooms to the answer.
func (g *Globe) GoTo(ctx context.Context, query string) error {
	if g.opts.Geocoder == nil {
		return errors.New("goto: no geocoder configured")
	}
	res, err := g.opts.Geocoder.Geocode(ctx, query)
	if err != nil {
		log.Printf("[GLOBE] Geocoding %q failed: %v", query, err)
		return err
	}
	log.Printf("[GLOBE] %q resolved to %.4f,%.4f (%s)", query, res.Latitude, res.Longitude, res.Type)
	return g.ZoomToLocation(res.Latitude, res.Longitude, res.BBox, res.Type, true)
}

func (g *Globe) Theme() categories.Theme {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.theme
}

// SetTheme restyles fog, re-resolves icons and reinstalls every category for the
// new theme.
func (g *Globe) SetTheme(ctx context.Context, t categories.Theme) (LoadResult, error) {
	g.mu.Lock()
	g.theme = t
	g.mu.Unlock()

	cur, ok := g.current()
	if !ok {
		return LoadResult{}, nil
	}
	log.Printf("[GLOBE] Switching to %s theme", t)
	cur.m.SetFog(FogFor(t))
	cur.inter.SetTheme(t)
	cur.loader.SetTheme(t)
	if cur.icons != nil {
		cur.icons.Resolve(cur.ctx, t, g.iconIDs())
	}
	if g.opts.Fetcher == nil {
		return LoadResult{Errors: map[string]error{}}, nil
	}
	return cur.loader.Load(ctx), nil
}

func (g *Globe) SetCategoryVisible(name string, visible bool) error {
	cur, ok := g.current()
	if !ok {
		cat, found := g.opts.Categories.ByName(name)
		if !found {
			return fmt.Errorf("set visibility %s: %w", name, ErrUnknownCategory)
		}
		g.mu.Lock()
		g.visibility[cat.Name] = visible
		g.mu.Unlock()
		return nil
	}
	return cur.loader.SetVisible(name, visible)
}

func (g *Globe) Visibility() map[string]bool {
	if cur, ok := g.current(); ok {
		return cur.loader.Visibility()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]bool)
	for _, name := range g.opts.Categories.Names() {
		v, ok := g.visibility[name]
		out[name] = !ok || v
	}
	return out
}

// Reload refetches the named categories, or all of them when none are named.
func (g *Globe) Reload(ctx context.Context, names ...string) (LoadResult, error) {
	cur, ok := g.current()
	if !ok {
		return LoadResult{}, ErrNotMounted
	}
	if g.opts.Fetcher == nil {
		return LoadResult{Errors: map[string]error{}}, nil
	}
	return cur.loader.Reload(ctx, names...), nil
}

func (g *Globe) StartTour(ctx context.Context, name string) error {
	cur, ok := g.current()
	if !ok {
		return ErrNotMounted
	}
	r, ok := RouteByName(g.opts.Routes, name)
	if !ok {
		return fmt.Errorf("start tour %s: %w", name, ErrUnknownRoute)
	}
	return cur.player.Start(ctx, r)
}

func (g *Globe) StopTour() {
	if cur, ok := g.current(); ok {
		cur.player.Stop()
	}
}

func (g *Globe) Touring() bool {
	cur, ok := g.current()
	if !ok {
		return false
	}
	_, playing := cur.player.Playing()
	return playing
}

// Spin re-enables idle rotation after user input stopped it.
func (g *Globe) Spin() {
	if cur, ok := g.current(); ok {
		cur.camera.Spin()
	}
}

func (g *Globe) StopSpin() {
	if cur, ok := g.current(); ok {
		cur.camera.Stop()
	}
}

func (g *Globe) CameraState() CameraState {
	cur, ok := g.current()
	if !ok {
		return StateInteracting
	}
	return cur.camera.State()
}

func (g *Globe) HandleImageMissing(id string) {
	if cur, ok := g.current(); ok && cur.icons != nil {
		cur.icons.HandleMissing(id)
	}
}
