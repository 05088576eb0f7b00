// Package popup builds the structured content shown in map popups. Everything here
// is a pure function of its inputs; rendering is the engine's job.
package popup

import (
	"fmt"
	"image/color"

	"github.com/sudorandom/event-globe/pkg/categories"
	"github.com/sudorandom/event-globe/pkg/events"
)

type Kind int

const (
	KindSingle Kind = iota
	KindClusterPreview
	KindClusterBreakdown
	KindWaypoint
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindClusterPreview:
		return "cluster-preview"
	case KindClusterBreakdown:
		return "cluster-breakdown"
	case KindWaypoint:
		return "waypoint"
	}
	return "unknown"
}

type ActionKind int

const (
	// ActionSelect hands a location to the external selection callback.
	ActionSelect ActionKind = iota
	// ActionNavigate re-runs the single-point click path for one cluster leaf.
	ActionNavigate
	// ActionZoom expands a cluster by zooming the camera in.
	ActionZoom
	// ActionOpen follows a content URL.
	ActionOpen
)

type Action struct {
	Kind         ActionKind
	LocationName string
	Category     string
	Coordinates  [2]float64
	Zoom         float64
	URL          string
}

type Item struct {
	Title    string
	Subtitle string
	Action   *Action
}

// Content is what a popup shows. Empty (nothing displayable) and Overflow > 0
// (list was truncated) are separate states and can never both be set.
type Content struct {
	Kind         Kind
	Category     string
	Color        color.RGBA
	Header       string
	HeaderAction *Action
	Description  string
	Items        []Item
	Overflow     int
	Empty        bool
}

// OverflowNote is the trailing "and N more" line, or "" when nothing was cut.
func (c Content) OverflowNote() string {
	if c.Overflow <= 0 {
		return ""
	}
	return fmt.Sprintf("and %d more", c.Overflow)
}

// EmptyNote is the placeholder line for popups with nothing to list.
func (c Content) EmptyNote() string {
	if !c.Empty {
		return ""
	}
	return "No content available"
}

// Limits caps list lengths. The zero value falls back to the defaults.
type Limits struct {
	PreviewSample int
	BreakdownCap  int
	ContentCap    int
}

func DefaultLimits() Limits {
	return Limits{PreviewSample: 5, BreakdownCap: 10, ContentCap: 10}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.PreviewSample <= 0 {
		l.PreviewSample = d.PreviewSample
	}
	if l.BreakdownCap <= 0 {
		l.BreakdownCap = d.BreakdownCap
	}
	if l.ContentCap <= 0 {
		l.ContentCap = d.ContentCap
	}
	return l
}

func itemsLabel(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}

func locationsLabel(n int) string {
	if n == 1 {
		return "1 location"
	}
	return fmt.Sprintf("%d locations", n)
}

// SingleHeader is "<Category> @ 📍 <Location> · N items".
func SingleHeader(category, location string, count int) string {
	return fmt.Sprintf("%s @ 📍 %s · %s", category, location, itemsLabel(count))
}

func contentItems(contents []events.ContentSummary, limit int) ([]Item, int) {
	shown := contents
	overflow := 0
	if len(shown) > limit {
		overflow = len(shown) - limit
		shown = shown[:limit]
	}
	items := make([]Item, 0, len(shown))
	for _, c := range shown {
		sub := c.InsertionDate
		if c.Source != "" {
			sub = c.Source + " · " + sub
		}
		items = append(items, Item{
			Title:    c.Title,
			Subtitle: sub,
			Action:   &Action{Kind: ActionOpen, URL: c.URL},
		})
	}
	return items, overflow
}

// Single describes one feature: a clickable heading plus its displayable contents.
func Single(cat categories.Category, theme categories.Theme, ev events.EventFeature, limits Limits) Content {
	limits = limits.withDefaults()
	items, overflow := contentItems(ev.ValidContents(), limits.ContentCap)
	return Content{
		Kind:     KindSingle,
		Category: cat.Name,
		Color:    cat.Color(theme),
		Header:   SingleHeader(cat.Name, ev.LocationName, ev.ContentCount),
		HeaderAction: &Action{
			Kind:         ActionSelect,
			LocationName: ev.LocationName,
			Category:     cat.Name,
			Coordinates:  ev.Coordinates,
		},
		Items:    items,
		Overflow: overflow,
		Empty:    len(items) == 0,
	}
}

func leafItem(cat categories.Category, ev events.EventFeature, navigable bool) Item {
	it := Item{Title: ev.LocationName, Subtitle: itemsLabel(ev.ContentCount)}
	if navigable {
		it.Action = &Action{
			Kind:         ActionNavigate,
			LocationName: ev.LocationName,
			Category:     cat.Name,
			Coordinates:  ev.Coordinates,
		}
	}
	return it
}

// ClusterPreview lists a sample of leaves. pointCount is the cluster's full size,
// so the overflow counts everything that was not sampled.
func ClusterPreview(cat categories.Category, theme categories.Theme, leaves []events.EventFeature, pointCount int, limits Limits) Content {
	limits = limits.withDefaults()
	sample := leaves
	if len(sample) > limits.PreviewSample {
		sample = sample[:limits.PreviewSample]
	}
	if pointCount < len(sample) {
		pointCount = len(sample)
	}
	items := make([]Item, 0, len(sample))
	for _, ev := range sample {
		items = append(items, leafItem(cat, ev, false))
	}
	return settle(Content{
		Kind:     KindClusterPreview,
		Category: cat.Name,
		Color:    cat.Color(theme),
		Header:   fmt.Sprintf("%s · %s", cat.Name, locationsLabel(pointCount)),
		Items:    items,
		Overflow: pointCount - len(items),
	})
}

// ClusterBreakdown lists every leaf up to the cap, each one navigable. expansionZoom
// <= 0 leaves the header without a zoom action.
func ClusterBreakdown(cat categories.Category, theme categories.Theme, leaves []events.EventFeature, pointCount int, at [2]float64, expansionZoom float64, limits Limits) Content {
	limits = limits.withDefaults()
	shown := leaves
	if len(shown) > limits.BreakdownCap {
		shown = shown[:limits.BreakdownCap]
	}
	if pointCount < len(leaves) {
		pointCount = len(leaves)
	}
	items := make([]Item, 0, len(shown))
	for _, ev := range shown {
		items = append(items, leafItem(cat, ev, true))
	}
	c := Content{
		Kind:     KindClusterBreakdown,
		Category: cat.Name,
		Color:    cat.Color(theme),
		Header:   fmt.Sprintf("%s · %s", cat.Name, locationsLabel(pointCount)),
		Items:    items,
		Overflow: pointCount - len(items),
	}
	if expansionZoom > 0 {
		c.HeaderAction = &Action{Kind: ActionZoom, Category: cat.Name, Coordinates: at, Zoom: expansionZoom}
	}
	return settle(c)
}

// settle derives Empty from the item list. A popup with nothing listed reports
// empty, never truncated, even when the cluster claims more points.
func settle(c Content) Content {
	c.Empty = len(c.Items) == 0
	if c.Empty {
		c.Overflow = 0
	}
	return c
}

// Waypoint is the tour popup: the stop's name and description plus whatever
// content was loaded for it.
func Waypoint(name, description string, contents []events.ContentSummary, limits Limits) Content {
	limits = limits.withDefaults()
	valid := make([]events.ContentSummary, 0, len(contents))
	for _, c := range contents {
		if c.Valid() {
			valid = append(valid, c)
		}
	}
	items, overflow := contentItems(valid, limits.ContentCap)
	return Content{
		Kind:        KindWaypoint,
		Header:      "📍 " + name,
		Description: description,
		Items:       items,
		Overflow:    overflow,
		Empty:       len(items) == 0,
	}
}
