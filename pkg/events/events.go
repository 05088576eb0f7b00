// Package events is the event data model: one EventFeature per plotted location,
// parsed out of the backend's GeoJSON properties.
package events

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	geojson "github.com/paulmach/go.geojson"
)

const (
	PropLocationName = "location_name"
	PropName         = "name"
	PropContentCount = "content_count"
	PropContents     = "contents"
)

type ContentSummary struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	InsertionDate string `json:"insertion_date"`
	Source        string `json:"source,omitempty"`
}

// Valid reports whether the entry can be shown in a popup.
func (c ContentSummary) Valid() bool {
	return c.URL != "" && c.Title != "" && c.InsertionDate != ""
}

type EventFeature struct {
	LocationName string
	Coordinates  [2]float64 // lng, lat
	ContentCount int
	Contents     []ContentSummary
}

// ValidContents drops the entries a popup cannot display. ContentCount is left alone.
func (e EventFeature) ValidContents() []ContentSummary {
	out := make([]ContentSummary, 0, len(e.Contents))
	for _, c := range e.Contents {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// FromFeature reads an EventFeature out of a point feature. It never fails: missing
// or malformed properties fall back to zero values.
func FromFeature(f *geojson.Feature) EventFeature {
	var ev EventFeature
	if f == nil {
		return ev
	}
	if f.Geometry != nil && f.Geometry.IsPoint() && len(f.Geometry.Point) >= 2 {
		ev.Coordinates = [2]float64{f.Geometry.Point[0], f.Geometry.Point[1]}
	}

	ev.LocationName = stringProp(f, PropLocationName)
	if ev.LocationName == "" {
		ev.LocationName = stringProp(f, PropName)
	}
	ev.Contents = ParseContents(f.Properties[PropContents])

	if n, ok := intProp(f, PropContentCount); ok {
		ev.ContentCount = n
	} else {
		ev.ContentCount = len(ev.Contents)
	}
	return ev
}

// ParseContents accepts either an already-decoded array or a JSON-encoded string.
// Anything it cannot make sense of becomes an empty slice.
func ParseContents(raw interface{}) []ContentSummary {
	switch v := raw.(type) {
	case nil:
		return []ContentSummary{}
	case string:
		var items []map[string]interface{}
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return []ContentSummary{}
		}
		return fromMaps(items)
	case []ContentSummary:
		out := make([]ContentSummary, len(v))
		copy(out, v)
		return out
	case []map[string]interface{}:
		return fromMaps(v)
	case []interface{}:
		items := make([]map[string]interface{}, 0, len(v))
		for _, it := range v {
			if m, ok := it.(map[string]interface{}); ok {
				items = append(items, m)
			}
		}
		return fromMaps(items)
	default:
		return []ContentSummary{}
	}
}

func fromMaps(items []map[string]interface{}) []ContentSummary {
	out := make([]ContentSummary, 0, len(items))
	for _, m := range items {
		if m == nil {
			continue
		}
		out = append(out, ContentSummary{
			URL:           str(m["url"]),
			Title:         str(m["title"]),
			InsertionDate: firstNonEmpty(str(m["insertion_date"]), str(m["insertionDate"])),
			Source:        str(m["source"]),
		})
	}
	return out
}

// Normalize rewrites every feature's properties in place so that location_name,
// content_count and contents are always present and contents is a decoded array.
// The engine hands these properties back on hover, so parsing happens once here.
func Normalize(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return geojson.NewFeatureCollection()
	}
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
			continue
		}
		ev := FromFeature(f)
		if f.Properties == nil {
			f.Properties = make(map[string]interface{})
		}
		f.Properties[PropLocationName] = ev.LocationName
		f.Properties[PropContentCount] = ev.ContentCount
		f.Properties[PropContents] = ev.Contents
		kept = append(kept, f)
	}
	fc.Features = kept
	return fc
}

func stringProp(f *geojson.Feature, key string) string {
	if f.Properties == nil {
		return ""
	}
	return strings.TrimSpace(str(f.Properties[key]))
}

func intProp(f *geojson.Feature, key string) (int, bool) {
	if f.Properties == nil {
		return 0, false
	}
	switch v := f.Properties[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func str(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
