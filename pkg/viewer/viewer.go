// Package viewer draws a memmap globe with ebiten and feeds mouse, touch and
// keyboard input back into it.
package viewer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/globe"
	"github.com/sudorandom/event-globe/pkg/mapengine"
	"github.com/sudorandom/event-globe/pkg/mapengine/memmap"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dragThreshold = 4.0
	wheelStep     = 0.25
	iconSize      = 22.0
	statusTTL     = 6 * time.Second
)

var categoryKeys = []ebiten.Key{
	ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3,
	ebiten.KeyDigit4, ebiten.KeyDigit5, ebiten.KeyDigit6,
	ebiten.KeyDigit7, ebiten.KeyDigit8, ebiten.KeyDigit9,
}

var (
	landDark     = color.RGBA{26, 29, 35, 255}
	outlineDark  = color.RGBA{36, 42, 53, 255}
	landLight    = color.RGBA{236, 238, 240, 255}
	outlineLight = color.RGBA{180, 188, 198, 255}
)

type Config struct {
	Width, Height int
	Map           *memmap.Map
	Globe         *globe.Globe
	Categories    *categories.Registry
	// Tour is the route the T key starts.
	Tour string
}

type iconEntry struct {
	src image.Image
	img *ebiten.Image
}

type rasterKey struct {
	center geo.LngLat
	zoom   float64
	fog    mapengine.Fog
	land   *geojson.FeatureCollection
}

type Viewer struct {
	Width, Height int

	ctx  context.Context
	m    *memmap.Map
	g    *globe.Globe
	reg  *categories.Registry
	tour string

	fontSource *text.GoTextFaceSource
	monoSource *text.GoTextFaceSource
	white      *ebiten.Image

	landMu sync.Mutex
	land   *geojson.FeatureCollection

	raster    *raster
	bgImage   *ebiten.Image
	bgKey     rasterKey
	bgPainted bool

	icons map[string]iconEntry
	boxes []popupBox

	hoverPopup   string
	pressed      bool
	pressOnPopup bool
	dragging     bool
	pressAt      mapengine.ScreenPoint
	lastDrag     mapengine.ScreenPoint
	touchIDs     []ebiten.TouchID

	statusMu sync.Mutex
	status   string
	statusAt time.Time
}

func New(ctx context.Context, cfg Config) *Viewer {
	regular, _ := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	mono, _ := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))

	white := ebiten.NewImage(3, 3)
	white.Fill(color.White)

	reg := cfg.Categories
	if reg == nil {
		reg = categories.Default()
	}
	return &Viewer{
		Width:      cfg.Width,
		Height:     cfg.Height,
		ctx:        ctx,
		m:          cfg.Map,
		g:          cfg.Globe,
		reg:        reg,
		tour:       cfg.Tour,
		fontSource: regular,
		monoSource: mono,
		white:      white.SubImage(image.Rect(1, 1, 2, 2)).(*ebiten.Image),
		raster:     newRaster(cfg.Width, cfg.Height),
		bgImage:    ebiten.NewImage(cfg.Width, cfg.Height),
		icons:      make(map[string]iconEntry),
	}
}

// SetLand swaps in the land outline. Safe to call from any goroutine.
func (v *Viewer) SetLand(fc *geojson.FeatureCollection) {
	v.landMu.Lock()
	defer v.landMu.Unlock()
	v.land = fc
}

func (v *Viewer) landData() *geojson.FeatureCollection {
	v.landMu.Lock()
	defer v.landMu.Unlock()
	return v.land
}

// Select is the selection callback: it reports the pick and frames the location.
func (v *Viewer) Select(location, category string) {
	v.setStatus("Selected %s (%s)", location, category)
	if v.g == nil {
		return
	}
	go func() {
		if err := v.g.GoTo(v.ctx, location); err != nil {
			v.setStatus("Could not find %s", location)
		}
	}()
}

// Open is the content-link callback.
func (v *Viewer) Open(url string) {
	v.setStatus("Open %s", url)
}

func (v *Viewer) setStatus(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[VIEWER] %s", msg)
	v.statusMu.Lock()
	defer v.statusMu.Unlock()
	v.status = msg
	v.statusAt = time.Now()
}

func (v *Viewer) currentStatus() string {
	v.statusMu.Lock()
	defer v.statusMu.Unlock()
	if time.Since(v.statusAt) > statusTTL {
		return ""
	}
	return v.status
}

func (v *Viewer) Layout(w, h int) (int, int) { return v.Width, v.Height }

func (v *Viewer) Update() error {
	v.m.Tick(time.Now())
	v.handleKeys()
	v.handlePointer()
	v.handleTouch()
	return nil
}

func (v *Viewer) handleKeys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyT):
		if v.g.Touring() {
			v.g.StopTour()
			v.setStatus("Tour stopped")
		} else if err := v.g.StartTour(v.ctx, v.tour); err != nil {
			v.setStatus("Tour %s: %v", v.tour, err)
		} else {
			v.setStatus("Touring %s", v.tour)
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		v.g.StopTour()
	case inpututil.IsKeyJustPressed(ebiten.KeyL):
		next := categories.ThemeLight
		if v.g.Theme() == categories.ThemeLight {
			next = categories.ThemeDark
		}
		go func() {
			res, err := v.g.SetTheme(v.ctx, next)
			if err == nil {
				err = res.Err()
			}
			if err != nil {
				v.setStatus("Theme %s: %v", next, err)
				return
			}
			v.setStatus("Switched to %s theme", next)
		}()
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		go func() {
			res, err := v.g.Reload(v.ctx)
			if err != nil {
				v.setStatus("Reload: %v", err)
				return
			}
			v.setStatus("Reloaded %d categories, %d failed", len(res.Loaded), len(res.Errors))
		}()
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		if v.g.CameraState() == globe.StateIdleSpinning {
			v.g.StopSpin()
		} else {
			v.g.Spin()
		}
	}

	cats := v.reg.All()
	for i := 0; i < len(cats) && i < len(categoryKeys); i++ {
		if !inpututil.IsKeyJustPressed(categoryKeys[i]) {
			continue
		}
		name := cats[i].Name
		visible := !v.g.Visibility()[name]
		if err := v.g.SetCategoryVisible(name, visible); err != nil {
			v.setStatus("%s: %v", name, err)
		}
	}
}

func (v *Viewer) handlePointer() {
	cx, cy := ebiten.CursorPosition()
	pt := mapengine.ScreenPoint{X: float64(cx), Y: float64(cy)}

	id, item, onPopup := hitPopup(v.boxes, pt.X, pt.Y)
	if id != v.hoverPopup {
		if v.hoverPopup != "" {
			v.m.PopupPointer(v.hoverPopup, false)
		}
		if id != "" {
			v.m.PopupPointer(id, true)
		}
		v.hoverPopup = id
	}

	if _, wy := ebiten.Wheel(); wy != 0 {
		v.m.Emit(mapengine.Wheel)
		v.m.ZoomBy(wy * wheelStep)
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		v.pressed, v.dragging = true, false
		v.pressAt, v.lastDrag = pt, pt
		v.pressOnPopup = onPopup
		if !onPopup {
			v.m.Emit(mapengine.PointerDown)
		}
	}

	if v.pressed && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) && !v.pressOnPopup {
		if !v.dragging && math.Hypot(pt.X-v.pressAt.X, pt.Y-v.pressAt.Y) > dragThreshold {
			v.dragging = true
			v.m.Emit(mapengine.DragStart)
		}
		if v.dragging {
			v.m.Pan(pt.X-v.lastDrag.X, pt.Y-v.lastDrag.Y)
			v.lastDrag = pt
		}
	}

	if v.pressed && inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		switch {
		case v.pressOnPopup && onPopup && item != notClickable:
			v.m.Trigger(id, item)
		case !v.pressOnPopup && !v.dragging:
			v.m.Click(pt)
		}
		v.pressed, v.dragging, v.pressOnPopup = false, false, false
	}

	if !onPopup && !v.dragging {
		v.m.PointerMove(pt)
	}

	if v.m.Cursor() == "pointer" || (onPopup && item != notClickable) {
		ebiten.SetCursorShape(ebiten.CursorShapePointer)
	} else {
		ebiten.SetCursorShape(ebiten.CursorShapeDefault)
	}
}

// handleTouch treats a tap as a click. Touch gestures beyond that are left to the mouse path.
func (v *Viewer) handleTouch() {
	v.touchIDs = inpututil.AppendJustPressedTouchIDs(v.touchIDs[:0])
	for _, tid := range v.touchIDs {
		x, y := ebiten.TouchPosition(tid)
		pt := mapengine.ScreenPoint{X: float64(x), Y: float64(y)}
		v.m.Emit(mapengine.TouchStart)
		if id, item, ok := hitPopup(v.boxes, pt.X, pt.Y); ok {
			if item != notClickable {
				v.m.Trigger(id, item)
			}
			continue
		}
		v.m.PointerMove(pt)
		v.m.Click(pt)
	}
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	snap := v.m.Snapshot()
	v.drawBackground(screen, snap)

	proj := geo.NewOrthographic(snap.Center, snap.Zoom, snap.Width, snap.Height)
	for _, rl := range snap.Layers {
		switch rl.Layer.Kind {
		case mapengine.LayerFill:
			v.drawFill(screen, proj, rl)
		case mapengine.LayerLine:
			v.drawLine(screen, proj, rl)
		case mapengine.LayerCircle:
			v.drawCircles(screen, proj, rl)
		case mapengine.LayerSymbol:
			v.drawSymbols(screen, proj, rl)
		case mapengine.LayerLabel:
			v.drawLabels(screen, proj, rl)
		}
	}

	v.drawPopups(screen, snap)
	v.drawLegend(screen)
	v.drawStatus(screen)
}
