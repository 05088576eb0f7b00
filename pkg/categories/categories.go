// Package categories holds the static registry of event categories plotted on the globe.
package categories

import (
	"image/color"
	"sort"
	"strings"
)

type Theme int

const (
	ThemeDark Theme = iota
	ThemeLight
)

func (t Theme) String() string {
	if t == ThemeLight {
		return "light"
	}
	return "dark"
}

// ParseTheme accepts "light" or "dark" (case-insensitive). Anything else is dark.
func ParseTheme(s string) Theme {
	if strings.EqualFold(strings.TrimSpace(s), "light") {
		return ThemeLight
	}
	return ThemeDark
}

// Category is one typed grouping of events. The source and layer identifiers are
// derived once, when the registry is built, and never concatenated at call sites.
type Category struct {
	Name   string
	IconID string
	ZOrder int

	Dark  color.RGBA
	Light color.RGBA

	SourceID       string
	ClusterLayerID string
	PointLayerID   string
	CountLayerID   string
}

func (c Category) Color(t Theme) color.RGBA {
	if t == ThemeLight {
		return c.Light
	}
	return c.Dark
}

// LayerIDs returns the three render layers owned by the category, bottom to top.
func (c Category) LayerIDs() []string {
	return []string{c.ClusterLayerID, c.PointLayerID, c.CountLayerID}
}

func newCategory(name, icon string, z int, dark, light color.RGBA) Category {
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	return Category{
		Name:           name,
		IconID:         icon,
		ZOrder:         z,
		Dark:           dark,
		Light:          light,
		SourceID:       "events-" + slug,
		ClusterLayerID: "events-" + slug + "-clusters",
		PointLayerID:   "events-" + slug + "-points",
		CountLayerID:   "events-" + slug + "-count",
	}
}

// Registry is immutable once built. All iteration is in descending ZOrder so the
// highest-priority categories are installed (and drawn) last, on top.
type Registry struct {
	list   []Category
	byName map[string]int
	layers map[string]int
}

func NewRegistry(cats ...Category) *Registry {
	list := make([]Category, 0, len(cats))
	for _, c := range cats {
		list = append(list, newCategory(c.Name, c.IconID, c.ZOrder, c.Dark, c.Light))
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ZOrder > list[j].ZOrder })

	r := &Registry{
		list:   list,
		byName: make(map[string]int, len(list)),
		layers: make(map[string]int, len(list)*3),
	}
	for i, c := range list {
		r.byName[strings.ToLower(c.Name)] = i
		for _, id := range c.LayerIDs() {
			r.layers[id] = i
		}
	}
	return r
}

// All returns a copy of the categories in descending ZOrder.
func (r *Registry) All() []Category {
	out := make([]Category, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) Len() int { return len(r.list) }

func (r *Registry) ByName(name string) (Category, bool) {
	i, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Category{}, false
	}
	return r.list[i], true
}

// ByLayer maps any of a category's layer ids back to the category.
func (r *Registry) ByLayer(layerID string) (Category, bool) {
	i, ok := r.layers[layerID]
	if !ok {
		return Category{}, false
	}
	return r.list[i], true
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.list))
	for i, c := range r.list {
		names[i] = c.Name
	}
	return names
}

var (
	ColorWar       = color.RGBA{255, 50, 50, 255}   // Red
	ColorCrisis    = color.RGBA{255, 140, 0, 255}   // Orange
	ColorProtests  = color.RGBA{255, 215, 0, 255}   // Gold
	ColorElections = color.RGBA{0, 191, 255, 255}   // Sky Blue
	ColorDisaster  = color.RGBA{148, 0, 211, 255}   // Violet
	ColorDiplomacy = color.RGBA{173, 255, 47, 255}  // Lime Green
	ColorEconomy   = color.RGBA{64, 224, 208, 255}  // Turquoise
	ColorOther     = color.RGBA{200, 200, 200, 255} // Grey
)

// Default is the compiled-in category list.
func Default() *Registry {
	return NewRegistry(
		Category{Name: "War", IconID: "marker-war", ZOrder: 8, Dark: ColorWar, Light: color.RGBA{190, 20, 20, 255}},
		Category{Name: "Crisis", IconID: "marker-crisis", ZOrder: 7, Dark: ColorCrisis, Light: color.RGBA{200, 100, 0, 255}},
		Category{Name: "Disaster", IconID: "marker-disaster", ZOrder: 6, Dark: ColorDisaster, Light: color.RGBA{110, 0, 160, 255}},
		Category{Name: "Protests", IconID: "marker-protests", ZOrder: 5, Dark: ColorProtests, Light: color.RGBA{170, 130, 0, 255}},
		Category{Name: "Elections", IconID: "marker-elections", ZOrder: 4, Dark: ColorElections, Light: color.RGBA{0, 110, 190, 255}},
		Category{Name: "Diplomacy", IconID: "marker-diplomacy", ZOrder: 3, Dark: ColorDiplomacy, Light: color.RGBA{60, 140, 20, 255}},
		Category{Name: "Economy", IconID: "marker-economy", ZOrder: 2, Dark: ColorEconomy, Light: color.RGBA{0, 130, 120, 255}},
		Category{Name: "Other", IconID: "marker-other", ZOrder: 1, Dark: ColorOther, Light: color.RGBA{100, 100, 100, 255}},
	)
}
