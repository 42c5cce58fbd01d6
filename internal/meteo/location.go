package meteo

import "time"

// Location describes a place to fetch weather data for.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	Timezone  *time.Location
}

// Built-in locations from the original weather page.
var (
	Geneva = Location{Name: "Geneva", Latitude: 46.2052193, Longitude: 6.1471942, Timezone: mustLoad("Europe/Zurich")}
	Bern   = Location{Name: "Bern", Latitude: 46.9546812, Longitude: 7.3125359, Timezone: mustLoad("Europe/Zurich")}
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// tz returns the location's timezone, defaulting to UTC.
func (l Location) tz() *time.Location {
	if l.Timezone == nil {
		return time.UTC
	}
	return l.Timezone
}
