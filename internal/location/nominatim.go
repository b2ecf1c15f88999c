package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-notification/internal/weather"
)

// API Docs: https://nominatim.org/release-docs/develop/api/Reverse/
// Sample request: https://nominatim.openstreetmap.org/reverse?lat=39.11&lon=-107.65&format=json
const nominatimURL = "https://nominatim.openstreetmap.org/reverse"

// ErrNoPlace is returned when the geocoder answers without a usable name.
var ErrNoPlace = errors.New("no place found for coordinates")

type nominatimResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
}

// NominatimGeocoder reverse geocodes through OpenStreetMap Nominatim.
type NominatimGeocoder struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	circuit    *gobreaker.CircuitBreaker
}

// NewNominatimGeocoder creates a client. Nominatim's usage policy requires an
// identifying User-Agent.
func NewNominatimGeocoder(client *http.Client, userAgent string) *NominatimGeocoder {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &NominatimGeocoder{
		httpClient: client,
		baseURL:    nominatimURL,
		userAgent:  userAgent,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "nominatim",
			MaxRequests: 1,
			Timeout:     time.Minute,
		}),
	}
}

// ReverseGeocode returns the most specific settlement name for coords.
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, coords weather.Coordinates) (string, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("lat", fmt.Sprintf("%f", coords.Latitude))
	q.Set("lon", fmt.Sprintf("%f", coords.Longitude))
	q.Set("format", "json")
	q.Set("zoom", "10")
	u.RawQuery = q.Encode()

	result, err := g.circuit.Execute(func() (interface{}, error) {
		return g.lookup(ctx, u.String())
	})
	if err != nil {
		return "", err
	}

	resp := result.(*nominatimResponse)
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrNoPlace, resp.Error)
	}
	for _, name := range []string{resp.Address.City, resp.Address.Town, resp.Address.Village, resp.Name, resp.DisplayName} {
		if name != "" {
			return name, nil
		}
	}
	return "", ErrNoPlace
}

func (g *NominatimGeocoder) lookup(ctx context.Context, rawURL string) (*nominatimResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &apiResp, nil
}
