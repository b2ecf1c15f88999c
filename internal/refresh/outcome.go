package refresh

import (
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/weather-notification/internal/weather"
)

var (
	// ErrNoNetwork is reported when a trigger is skipped because the network is down.
	ErrNoNetwork = errors.New("no network")
	// ErrUnknownLocation is reported when no location could be resolved.
	ErrUnknownLocation = errors.New("unknown location")
)

// QueryError wraps any failure of the weather source.
type QueryError struct {
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("weather query failed: %v", e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Kind tags an Outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindUnknownLocation
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindUnknownLocation:
		return "unknown_location"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one refresh attempt.
type Outcome struct {
	Kind     Kind
	Location weather.Location
	Weather  weather.Weather // set for KindSuccess
	Err      error           // *QueryError for KindFailure, ErrUnknownLocation for KindUnknownLocation
}

// Success builds a successful outcome.
func Success(loc weather.Location, w weather.Weather) Outcome {
	return Outcome{Kind: KindSuccess, Location: loc, Weather: w}
}

// Failure builds a failed outcome from the weather source error.
func Failure(loc weather.Location, err error) Outcome {
	return Outcome{Kind: KindFailure, Location: loc, Err: &QueryError{Cause: err}}
}

// UnknownLocation builds the outcome for an attempt without a location.
func UnknownLocation() Outcome {
	return Outcome{Kind: KindUnknownLocation, Err: ErrUnknownLocation}
}

// Cause returns the underlying weather source error of a failed outcome.
func (o Outcome) Cause() error {
	var qe *QueryError
	if errors.As(o.Err, &qe) {
		return qe.Cause
	}
	return o.Err
}

// Settings is the configuration snapshot a refresh runs with.
type Settings struct {
	AutoLocation bool
	Location     string
}

// SettingsReader returns the current settings; it is read once per refresh.
type SettingsReader interface {
	Settings() Settings
}

// SettingsFunc adapts a function to SettingsReader.
type SettingsFunc func() Settings

func (f SettingsFunc) Settings() Settings { return f() }

// RunContext describes one trigger invocation. It is created by Trigger,
// completed by the worker run and read by the dispatcher.
type RunContext struct {
	ID        string
	Verbose   bool
	StartedAt time.Time
	Settings  Settings
	Location  weather.Location
}
