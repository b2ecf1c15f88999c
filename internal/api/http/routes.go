package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-notification/internal/config"
	"github.com/i474232898/weather-notification/internal/notify"
	"github.com/i474232898/weather-notification/internal/refresh"
	"github.com/i474232898/weather-notification/internal/store"
	"github.com/i474232898/weather-notification/internal/weather"
)

var validate = validator.New()

// Refresher starts refreshes and reports whether one is in flight.
type Refresher interface {
	Trigger(verbose bool)
	State() refresh.State
}

// LocationUpdater records a new device position.
type LocationUpdater interface {
	Update(coords weather.Coordinates) error
}

// PreferenceStore reads and writes user preferences.
type PreferenceStore interface {
	Snapshot() config.UserPreferences
	Update(p config.UserPreferences) error
}

// NoticeLister lists recent notices.
type NoticeLister interface {
	List() []notify.Notice
}

// Deps are the components the HTTP handlers talk to.
type Deps struct {
	Refresher   Refresher
	Store       store.Reader
	Location    LocationUpdater
	Preferences PreferenceStore
	Notices     NoticeLister
	Limiter     *RateLimiter
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/api/v1")

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if d.Limiter != nil {
		limit = d.Limiter.Handler()
	}

	v1.Post("/refresh", limit, func(c *fiber.Ctx) error {
		verbose := c.QueryBool("verbose", false)
		d.Refresher.Trigger(verbose)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		resp := fiber.Map{"state": d.Refresher.State().String(), "updatedAt": nil}
		updated, err := d.Store.UpdatedAt(c.UserContext())
		switch {
		case err == nil:
			resp["updatedAt"] = updated
		case !errors.Is(err, store.ErrNotFound):
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read update time")
		}
		return c.JSON(resp)
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		w, err := d.Store.Latest(c.UserContext())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}
		return c.JSON(w)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := d.Store.Range(c.UserContext(), req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"from":     req.From,
			"to":       req.To,
			"readings": readings,
		})
	})

	v1.Put("/location", func(c *fiber.Ctx) error {
		var req locationBody
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		coords := weather.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if err := d.Location.Update(coords); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(coords)
	})

	v1.Get("/preferences", func(c *fiber.Ctx) error {
		return c.JSON(d.Preferences.Snapshot())
	})

	v1.Put("/preferences", func(c *fiber.Ctx) error {
		var req preferencesBody
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		prefs := config.UserPreferences{AutoLocation: *req.AutoLocation, Location: req.Location}
		if err := d.Preferences.Update(prefs); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to save preferences")
		}
		return c.JSON(d.Preferences.Snapshot())
	})

	v1.Get("/notices", func(c *fiber.Ctx) error {
		return c.JSON(d.Notices.List())
	})
}

// locationBody is the device position reported by the client.
type locationBody struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

type preferencesBody struct {
	AutoLocation *bool  `json:"autoLocation" validate:"required"`
	Location     string `json:"location" validate:"max=200"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
