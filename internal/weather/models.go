package weather

import (
	"fmt"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String formats coordinates as "lat,lon".
func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// Location identifies a place for weather lookup.
// It is either a manual location (free text entered by the user) or a location
// resolved from device coordinates, optionally with a reverse-geocoded place name.
// Build it with NewManualLocation or NewResolvedLocation.
type Location struct {
	Manual    string       `json:"manual,omitempty"`
	Coords    *Coordinates `json:"coordinates,omitempty"`
	PlaceName string       `json:"placeName,omitempty"`
}

// NewManualLocation returns a location identified by free text.
func NewManualLocation(text string) Location {
	return Location{Manual: text}
}

// NewResolvedLocation returns a location resolved from coordinates.
// placeName may be empty when reverse geocoding was not possible.
func NewResolvedLocation(coords Coordinates, placeName string) Location {
	c := coords
	return Location{Coords: &c, PlaceName: placeName}
}

// IsManual reports whether the location was entered by the user.
func (l Location) IsManual() bool {
	return l.Coords == nil
}

// Coordinates returns the coordinates of a resolved location.
func (l Location) Coordinates() (Coordinates, bool) {
	if l.Coords == nil {
		return Coordinates{}, false
	}
	return *l.Coords, true
}

// Text returns the display text of the location.
func (l Location) Text() string {
	switch {
	case l.Coords == nil:
		return l.Manual
	case l.PlaceName != "":
		return l.PlaceName
	default:
		return l.Coords.String()
	}
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.Text()
}

// Weather is the normalized, aggregated weather view at a point in time.
type Weather struct {
	Location    Location  `json:"location"`
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Empty       bool      `json:"empty"`
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeed"`
	Pressure    float64   `json:"pressureHpa"`
	PrecipMM    float64   `json:"precipMm"`
	Condition   Condition `json:"condition"`

	// Providers contributing to this reading.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// IsEmpty reports whether the source answered without usable data.
func (w Weather) IsEmpty() bool {
	return w.Empty
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
}
