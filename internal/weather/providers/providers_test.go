package providers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-notification/internal/weather"
)

// RoundTripperFunc allows us to easily mock http.Client responses in tests.
type RoundTripperFunc func(*http.Request) *http.Response

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func newMockHTTPClient(fn func(req *http.Request) *http.Response) *http.Client {
	return &http.Client{Transport: RoundTripperFunc(fn)}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func fastBackoff(cfg *HTTPClientConfig) {
	cfg.Backoff.InitialInterval = time.Millisecond
	cfg.Backoff.MaxInterval = 2 * time.Millisecond
}

func TestOpenWeatherFetch_ManualLocation(t *testing.T) {
	var query string
	client := newMockHTTPClient(func(req *http.Request) *http.Response {
		query = req.URL.RawQuery
		return jsonResponse(http.StatusOK, `{
			"dt": 1700000000,
			"main": {"temp": 12.5, "humidity": 80, "pressure": 1012},
			"wind": {"speed": 3.2},
			"rain": {"3h": 1.5},
			"weather": [{"main": "Rain"}]
		}`)
	})

	p := NewOpenWeatherProvider(client, "key")
	r, err := p.Fetch(context.Background(), weather.NewManualLocation("Paris"))
	require.NoError(t, err)

	assert.Contains(t, query, "q=Paris")
	assert.Contains(t, query, "appid=key")
	assert.False(t, r.Empty)
	assert.Equal(t, 12.5, r.TemperatureC)
	assert.Equal(t, 1.5, r.PrecipMm)
	assert.Equal(t, weather.ConditionRain, r.Condition)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), r.Timestamp)
}

func TestOpenWeatherFetch_CoordinatesAndEmpty(t *testing.T) {
	var query string
	client := newMockHTTPClient(func(req *http.Request) *http.Response {
		query = req.URL.RawQuery
		return jsonResponse(http.StatusOK, `{"weather": []}`)
	})

	p := NewOpenWeatherProvider(client, "key")
	loc := weather.NewResolvedLocation(weather.Coordinates{Latitude: 48.85, Longitude: 2.35}, "Paris")
	r, err := p.Fetch(context.Background(), loc)
	require.NoError(t, err)

	assert.Contains(t, query, "lat=48.850000")
	assert.NotContains(t, query, "q=")
	assert.True(t, r.Empty)
}

func TestOpenWeatherFetch_MissingKey(t *testing.T) {
	p := NewOpenWeatherProvider(http.DefaultClient, "")
	_, err := p.Fetch(context.Background(), weather.NewManualLocation("Paris"))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestWeatherAPIFetch(t *testing.T) {
	var query string
	client := newMockHTTPClient(func(req *http.Request) *http.Response {
		query = req.URL.RawQuery
		return jsonResponse(http.StatusOK, `{
			"location": {"localtime_epoch": 1700000000},
			"current": {"temp_c": 20, "humidity": 50, "wind_kph": 36, "pressure_mb": 1000,
				"precip_mm": 0, "condition": {"text": "Partly cloudy"}}
		}`)
	})

	p := NewWeatherAPIProvider(client, "key")
	loc := weather.NewResolvedLocation(weather.Coordinates{Latitude: 1, Longitude: 2}, "")
	r, err := p.Fetch(context.Background(), loc)
	require.NoError(t, err)

	assert.Contains(t, query, "q=1.000000%2C2.000000")
	assert.InDelta(t, 10.0, r.WindSpeedMS, 0.001)
	assert.Equal(t, weather.ConditionCloudy, r.Condition)
}

func TestOpenMeteoFetch_RequiresCoordinates(t *testing.T) {
	p := NewOpenMeteoProvider(http.DefaultClient)
	_, err := p.Fetch(context.Background(), weather.NewManualLocation("Paris"))
	assert.ErrorIs(t, err, ErrNeedCoordinates)
}

func TestOpenMeteoFetch(t *testing.T) {
	client := newMockHTTPClient(func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"current_weather": {"temperature": -3, "windspeed": 4, "time": "2024-01-10T06:00", "weathercode": 73}}`)
	})

	p := NewOpenMeteoProvider(client)
	r, err := p.Fetch(context.Background(), weather.NewResolvedLocation(weather.Coordinates{Latitude: 60, Longitude: 30}, ""))
	require.NoError(t, err)

	assert.Equal(t, weather.ConditionSnow, r.Condition)
	assert.Equal(t, time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC), r.Timestamp)
}

func TestDoRequestWithResilience_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newMockHTTPClient(func(req *http.Request) *http.Response {
		if calls.Add(1) < 3 {
			return jsonResponse(http.StatusBadGateway, ``)
		}
		return jsonResponse(http.StatusOK, `{"current_weather": {"temperature": 1, "time": "2024-01-10T06:00"}}`)
	})

	p := NewOpenMeteoProvider(client)
	fastBackoff(&p.httpCfg)

	_, err := p.Fetch(context.Background(), weather.NewResolvedLocation(weather.Coordinates{}, ""))
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoRequestWithResilience_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	client := newMockHTTPClient(func(req *http.Request) *http.Response {
		calls.Add(1)
		return jsonResponse(http.StatusNotFound, `{"message": "city not found"}`)
	})

	p := NewOpenWeatherProvider(client, "key")
	fastBackoff(&p.httpCfg)

	_, err := p.Fetch(context.Background(), weather.NewManualLocation("Nowhere"))
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.EqualValues(t, 1, calls.Load())
}

func TestMapWeatherAPICondition(t *testing.T) {
	tests := map[string]weather.Condition{
		"":                        weather.ConditionUnknown,
		"Sunny":                   weather.ConditionClear,
		"Patchy light drizzle":    weather.ConditionRain,
		"Moderate snow":           weather.ConditionSnow,
		"Thundery outbreaks rain": weather.ConditionStorm,
		"Freezing fog":            weather.ConditionMist,
		"Overcast":                weather.ConditionCloudy,
	}
	for text, want := range tests {
		assert.Equal(t, want, mapWeatherAPICondition(text), text)
	}
}
