package sources

const (
	// WorldLandURL is the low-resolution Natural Earth land outline drawn under the markers.
	WorldLandURL = "https://raw.githubusercontent.com/nvkelso/natural-earth-vector/master/geojson/ne_110m_land.geojson"

	EventsPath    = "/api/events"
	GeocodePath   = "/api/geocode"
	LocationsPath = "/api/locations"
	ReloadsPath   = "/api/reloads"
)
