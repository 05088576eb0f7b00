package globe

import "strings"

type Waypoint struct {
	Name        string
	Description string
	Coordinates [2]float64 // lng, lat
	Zoom        float64
}

type Route struct {
	Name        string
	Description string
	Waypoints   []Waypoint
}

// Routes are the compiled-in tours.
var Routes = []Route{
	{
		Name:        "hotspots",
		Description: "Places that have dominated recent coverage",
		Waypoints: []Waypoint{
			{Name: "Kyiv", Description: "Capital of Ukraine", Coordinates: [2]float64{30.5234, 50.4501}, Zoom: 5},
			{Name: "Gaza", Description: "Coastal strip on the eastern Mediterranean", Coordinates: [2]float64{34.4668, 31.5017}, Zoom: 6},
			{Name: "Khartoum", Description: "Capital of Sudan, at the confluence of the Niles", Coordinates: [2]float64{32.5599, 15.5007}, Zoom: 5},
			{Name: "Port-au-Prince", Description: "Capital of Haiti", Coordinates: [2]float64{-72.3388, 18.5944}, Zoom: 6},
			{Name: "Taipei", Description: "Capital of Taiwan", Coordinates: [2]float64{121.5654, 25.0330}, Zoom: 5},
		},
	},
	{
		Name:        "capitals",
		Description: "A lap of the diplomatic capitals",
		Waypoints: []Waypoint{
			{Name: "Washington", Description: "United States", Coordinates: [2]float64{-77.0369, 38.9072}, Zoom: 5},
			{Name: "Brussels", Description: "Seat of the European Union and NATO", Coordinates: [2]float64{4.3517, 50.8503}, Zoom: 5},
			{Name: "Geneva", Description: "European seat of the United Nations", Coordinates: [2]float64{6.1432, 46.2044}, Zoom: 6},
			{Name: "Addis Ababa", Description: "Seat of the African Union", Coordinates: [2]float64{38.7578, 8.9806}, Zoom: 5},
			{Name: "Beijing", Description: "China", Coordinates: [2]float64{116.4074, 39.9042}, Zoom: 5},
			{Name: "New York", Description: "United Nations headquarters", Coordinates: [2]float64{-74.0060, 40.7128}, Zoom: 6},
		},
	},
}

// RouteByName looks a route up case-insensitively.
func RouteByName(routes []Route, name string) (Route, bool) {
	for _, r := range routes {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Route{}, false
}
