// Package mapengine is the contract between the globe orchestration and whatever
// renders the map. The engine owns projection, tile drawing, spatial clustering and
// hit testing; callers only see sources, layers, images, popups and the camera.
//
// Implementations must be safe for concurrent use and must invoke listeners
// without holding their own locks, since listeners call back into the map.
package mapengine

import (
	"image"
	"image/color"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/popup"
)

// Feature properties set by clustered sources.
const (
	PropCluster    = "cluster"
	PropClusterID  = "cluster_id"
	PropPointCount = "point_count"
)

type ScreenPoint struct {
	X, Y float64
}

type SourceSpec struct {
	Data           *geojson.FeatureCollection
	Cluster        bool
	ClusterRadius  float64 // pixels
	ClusterMaxZoom float64
}

type LayerKind int

const (
	LayerCircle LayerKind = iota
	LayerSymbol
	LayerLabel
	LayerFill
	LayerLine
)

// Filter selects which of a clustered source's rendered features a layer draws.
type Filter int

const (
	FilterAll Filter = iota
	FilterClusters
	FilterUnclustered
)

type Paint struct {
	Color   color.RGBA
	Opacity float64
	IconID  string
	Radius  float64
	Width   float64
	Dashed  bool
}

type Layer struct {
	ID      string
	Source  string
	Kind    LayerKind
	Filter  Filter
	Paint   Paint
	Z       int
	Visible bool
}

type QueriedFeature struct {
	LayerID  string
	SourceID string
	Feature  *geojson.Feature
}

type EventKind int

const (
	MouseEnter EventKind = iota
	MouseLeave
	Click
)

type LayerEvent struct {
	Kind     EventKind
	LayerID  string
	Point    ScreenPoint
	LngLat   geo.LngLat
	Features []QueriedFeature
}

// MapEventKind covers map-wide signals that are not tied to a layer.
type MapEventKind int

const (
	PointerDown MapEventKind = iota
	TouchStart
	DragStart
	Wheel
	BoxZoom
	MoveEnd
)

func (k MapEventKind) String() string {
	switch k {
	case PointerDown:
		return "pointerdown"
	case TouchStart:
		return "touchstart"
	case DragStart:
		return "dragstart"
	case Wheel:
		return "wheel"
	case BoxZoom:
		return "boxzoomstart"
	case MoveEnd:
		return "moveend"
	}
	return "unknown"
}

// InteractionEvents are the user inputs that take the camera away from idle spin.
var InteractionEvents = []MapEventKind{PointerDown, TouchStart, DragStart, Wheel, BoxZoom}

type FlyToOptions struct {
	Center   geo.LngLat
	Zoom     float64
	Duration time.Duration
	// Speed and Curve mirror the usual fly-to tuning knobs; engines may ignore them
	// when Duration is set.
	Speed float64
	Curve float64
}

type FitOptions struct {
	Padding  float64
	MinZoom  float64
	MaxZoom  float64
	Duration time.Duration
}

type Fog struct {
	Color          color.RGBA
	HighColor      color.RGBA
	SpaceColor     color.RGBA
	HorizonBlend   float64
	StarIntensity  float64
	AtmosphereGlow float64
}

// Popup is an engine-rendered panel anchored at a coordinate. OnAction fires when
// the user activates the header or an item; OnPointer reports the pointer moving
// in (true) or out (false) of the panel.
type Popup struct {
	ID        string
	At        geo.LngLat
	Content   popup.Content
	OnAction  func(popup.Action)
	OnPointer func(inside bool)
}

type Map interface {
	AddSource(id string, spec SourceSpec) error
	RemoveSource(id string)
	HasSource(id string) bool

	AddLayer(l Layer) error
	RemoveLayer(id string)
	HasLayer(id string) bool
	SetLayerVisibility(id string, visible bool)

	AddImage(id string, img image.Image)
	RemoveImage(id string)
	HasImage(id string) bool

	Center() geo.LngLat
	Zoom() float64
	JumpTo(center geo.LngLat, zoom float64)
	FlyTo(opts FlyToOptions)
	FitBounds(b geo.BBox, opts FitOptions)

	QueryFeaturesAt(pt ScreenPoint, layerIDs []string) []QueriedFeature
	ClusterLeaves(sourceID string, clusterID, limit, offset int) ([]*geojson.Feature, error)
	ClusterExpansionZoom(sourceID string, clusterID int) (float64, error)

	AddPopup(p Popup)
	RemovePopup(id string)

	SetCursor(cursor string)
	SetFog(f Fog)

	// RequestFrame schedules fn for the next animation frame. The returned func
	// cancels it if it has not run yet.
	RequestFrame(fn func()) (cancel func())

	On(kind EventKind, layerID string, fn func(LayerEvent)) (off func())
	OnMapEvent(kind MapEventKind, fn func()) (off func())
	OnImageMissing(fn func(id string)) (off func())
}
