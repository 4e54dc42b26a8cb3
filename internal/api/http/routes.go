package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-city-tracker/internal/trigger"
	"github.com/i474232898/weather-city-tracker/internal/weather"
)

var validate = validator.New()

// triggerTimeout bounds searches started by POST /trigger, which outlive the request.
var triggerTimeout = 30 * time.Second

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/cities", func(c *fiber.Ctx) error {
		st, err := service.List(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(newStateResponse(st))
	})

	v1.Get("/cities/:name", func(c *fiber.Ctx) error {
		name, err := cityParam(c)
		if err != nil {
			return err
		}
		city, ok, err := service.Lookup(c.UserContext(), name)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "city is not tracked")
		}
		return c.JSON(city)
	})

	v1.Post("/cities", func(c *fiber.Ctx) error {
		var req searchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		req.City = strings.TrimSpace(req.City)
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summary, added, err := service.Search(c.UserContext(), req.City)
		if err != nil {
			return fetchError(err)
		}
		if !added {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Status(fiber.StatusCreated).JSON(summary)
	})

	v1.Delete("/cities/:name", func(c *fiber.Ctx) error {
		name, err := cityParam(c)
		if err != nil {
			return err
		}
		n, err := service.Delete(c.UserContext(), name)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(fiber.Map{
			"cityName": name,
			"deleted":  n,
		})
	})

	v1.Get("/units", func(c *fiber.Ctx) error {
		units, err := service.Units(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(fiber.Map{"units": units.String()})
	})

	v1.Post("/units/switch", func(c *fiber.Ctx) error {
		units, dataErrs, err := service.SwitchUnits(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		skipped := make([]string, 0, len(dataErrs))
		for _, de := range dataErrs {
			skipped = append(skipped, de.Error())
		}
		return c.JSON(fiber.Map{
			"units":   units.String(),
			"skipped": skipped,
		})
	})

	// External "update weather" signal; same path as a search, result not awaited.
	v1.Post("/trigger", func(c *fiber.Ctx) error {
		city, err := trigger.ParseCityName(c.Body())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
			defer cancel()
			if _, _, err := service.Search(ctx, city); err != nil {
				log.Printf("ERROR: trigger for %s failed: %v", city, err)
			}
		}()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"cityName": city})
	})

	v1.Get("/events", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")

		updates, unsubscribe := service.Subscribe()
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer unsubscribe()
			streamStates(w, updates, 15*time.Second)
		}))
		return nil
	})
}

// streamStates writes one SSE "state" event per snapshot until the channel closes
// or the client goes away. Idle periods get a comment line so disconnects are noticed.
func streamStates(w *bufio.Writer, updates <-chan weather.State, keepAlive time.Duration) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(newStateResponse(st))
			if err != nil {
				log.Printf("ERROR: encoding state event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload)
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

type searchRequest struct {
	City string `json:"city" validate:"required,max=100"`
}

type stateResponse struct {
	Units   string                `json:"units"`
	Version uint64                `json:"version"`
	Cities  []weather.CitySummary `json:"cities"`
}

func newStateResponse(st weather.State) stateResponse {
	cities := st.Cities
	if cities == nil {
		cities = []weather.CitySummary{}
	}
	return stateResponse{
		Units:   st.Units.String(),
		Version: st.Version,
		Cities:  cities,
	}
}

func cityParam(c *fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || strings.TrimSpace(name) == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid city name")
	}
	return name, nil
}

// fetchError maps fetch-path failures onto HTTP statuses.
func fetchError(err error) error {
	var apiErr *weather.APIError
	switch {
	case errors.Is(err, weather.ErrEmptyCityName):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusNotFound:
		return fiber.NewError(fiber.StatusNotFound, "city not found upstream")
	case errors.Is(err, weather.ErrAPI), errors.Is(err, weather.ErrDecode):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, weather.ErrMissingAPIKey):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, weather.ErrNetwork):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
}
