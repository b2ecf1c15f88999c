package refresh

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/i474232898/weather-notification/internal/weather"
)

// WeatherSource answers weather queries for a location.
type WeatherSource interface {
	Query(ctx context.Context, loc weather.Location) (weather.Weather, error)
}

// LocationResolver picks the location for a refresh.
type LocationResolver interface {
	Resolve(ctx context.Context, useAuto bool, manualText string) (weather.Location, bool)
}

// Worker performs one refresh attempt. It only produces an Outcome; all
// persistence and notices belong to the Dispatcher.
type Worker struct {
	resolver LocationResolver
	source   WeatherSource
	logger   *zap.SugaredLogger
}

// NewWorker creates a Worker.
func NewWorker(resolver LocationResolver, source WeatherSource, logger *zap.SugaredLogger) *Worker {
	return &Worker{
		resolver: resolver,
		source:   source,
		logger:   logger,
	}
}

// Run resolves the location from rc.Settings and queries the weather source.
// A panic in a collaborator is reported as a failed outcome.
func (w *Worker) Run(ctx context.Context, rc RunContext) (out Outcome) {
	var loc weather.Location
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorw("refresh worker panicked", "run", rc.ID, "panic", r)
			out = Failure(loc, fmt.Errorf("panic: %v", r))
		}
	}()

	loc, ok := w.resolver.Resolve(ctx, rc.Settings.AutoLocation, rc.Settings.Location)
	if !ok {
		return UnknownLocation()
	}

	w.logger.Debugw("querying weather source", "run", rc.ID, "location", loc.Text())
	result, err := w.source.Query(ctx, loc)
	if err != nil {
		return Failure(loc, err)
	}
	return Success(loc, result)
}
