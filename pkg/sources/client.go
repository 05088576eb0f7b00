// Package sources talks to the event backend: per-category GeoJSON, geocoding,
// per-location contents and the live reload stream.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/event-globe/pkg/events"
	"github.com/sudorandom/event-globe/pkg/geo"
	"github.com/sudorandom/event-globe/pkg/utils"
)

var ErrNotFound = utils.ErrNotFound

const DefaultGeocodeTTL = 24 * time.Hour

type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Cache holds geocoder answers when set.
	Cache    *utils.KV
	CacheTTL time.Duration
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		CacheTTL: DefaultGeocodeTTL,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: bad status: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FetchCategory returns the normalized feature collection for one category.
func (c *Client) FetchCategory(ctx context.Context, name string) (*geojson.FeatureCollection, error) {
	body, err := c.get(ctx, EventsPath, url.Values{"category": {name}})
	if err != nil {
		return nil, fmt.Errorf("fetch category %s: %w", name, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode category %s: %w", name, err)
	}
	return events.Normalize(fc), nil
}

type GeocodeResult struct {
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
	BBox      []float64 `json:"bbox,omitempty"`
	Type      string    `json:"type,omitempty"`
}

func geocodeKey(q string) string {
	return "geocode:" + strings.ToLower(strings.TrimSpace(q))
}

// Geocode resolves a free-text place name. Answers are cached for CacheTTL when a
// cache is configured; cache failures are logged and otherwise ignored.
func (c *Client) Geocode(ctx context.Context, q string) (GeocodeResult, error) {
	var res GeocodeResult
	q = strings.TrimSpace(q)
	if q == "" {
		return res, errors.New("geocode: empty query")
	}

	key := geocodeKey(q)
	if c.Cache != nil {
		if b, err := c.Cache.Get(key); err != nil {
			log.Printf("[GEOCODE] Cache read for %q failed: %v", q, err)
		} else if b != nil && json.Unmarshal(b, &res) == nil {
			return res, nil
		}
	}

	body, err := c.get(ctx, GeocodePath, url.Values{"q": {q}})
	if err != nil {
		return res, fmt.Errorf("geocode %q: %w", q, err)
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return res, fmt.Errorf("decode geocode %q: %w", q, err)
	}
	res.Type = geo.InferLocationType(q, res.Type)

	if c.Cache != nil {
		b, _ := json.Marshal(res)
		if err := c.Cache.Put(key, b, c.CacheTTL); err != nil {
			log.Printf("[GEOCODE] Cache write for %q failed: %v", q, err)
		}
	}
	return res, nil
}

// LoadContents returns the content summaries for a location. The backend may answer
// with a bare array or with {"contents": [...]}; anything else yields an empty list.
func (c *Client) LoadContents(ctx context.Context, name string) ([]events.ContentSummary, error) {
	body, err := c.get(ctx, LocationsPath+"/"+url.PathEscape(name)+"/contents", nil)
	if err != nil {
		return nil, fmt.Errorf("load contents %s: %w", name, err)
	}
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode contents %s: %w", name, err)
	}
	if m, ok := raw.(map[string]interface{}); ok {
		raw = m[events.PropContents]
	}
	return events.ParseContents(raw), nil
}
