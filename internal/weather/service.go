package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrEmptyCityName is returned when a search is issued without a city.
var ErrEmptyCityName = errors.New("city name is required")

// Service runs the fetch -> aggregate -> store pipeline.
type Service struct {
	store  CityStore
	client ForecastClient
}

// NewService creates a new Service.
func NewService(store CityStore, client ForecastClient) *Service {
	return &Service{
		store:  store,
		client: client,
	}
}

// Search fetches the forecast for cityName and appends a summary to the store.
// added is false when the upstream returned no samples; the list is unchanged then.
// Fetch errors are returned as-is and leave the list unchanged.
func (s *Service) Search(ctx context.Context, cityName string) (summary CitySummary, added bool, err error) {
	cityName = strings.TrimSpace(cityName)
	if cityName == "" {
		return CitySummary{}, false, ErrEmptyCityName
	}

	units, err := s.store.Units(ctx)
	if err != nil {
		return CitySummary{}, false, err
	}

	samples, err := s.fetch(ctx, cityName, units)
	if err != nil {
		return CitySummary{}, false, err
	}
	if len(samples) == 0 {
		log.Printf("INFO: no forecast samples for %s; list unchanged", cityName)
		return CitySummary{}, false, nil
	}

	summary, err = s.store.AddOrAppend(ctx, cityName, units, samples[0], AggregateDaily(samples))
	if err != nil {
		return CitySummary{}, false, err
	}
	return summary, true, nil
}

// Refresh re-fetches every tracked city and rewrites its entries in place.
// Failures are logged per city; the first one is returned after all cities are tried.
func (s *Service) Refresh(ctx context.Context) error {
	st, err := s.store.State(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var firstErr error
	for _, c := range st.Cities {
		if seen[c.CityName] {
			continue
		}
		seen[c.CityName] = true

		samples, err := s.fetch(ctx, c.CityName, st.Units)
		if err != nil {
			log.Printf("ERROR: refresh failed for %s: %v", c.CityName, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(samples) == 0 {
			continue
		}
		if _, err := s.store.Refresh(ctx, c.CityName, st.Units, samples[0], AggregateDaily(samples)); err != nil {
			return err
		}
	}
	return firstErr
}

func (s *Service) fetch(ctx context.Context, cityName string, units UnitMode) ([]ForecastSample, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no forecast client configured")
	}
	log.Printf("DEBUG: fetching %s forecast for %s from %s", units.APIUnits(), cityName, s.client.Name())
	return s.client.FetchForecast(ctx, cityName, units)
}

// SwitchUnits flips the unit mode. Entries that could not be converted are
// returned as DataErrors and left untouched.
func (s *Service) SwitchUnits(ctx context.Context) (UnitMode, []error, error) {
	units, dataErrs, err := s.store.SwitchUnits(ctx)
	for _, de := range dataErrs {
		log.Printf("ERROR: unit switch skipped entry: %v", de)
	}
	return units, dataErrs, err
}

// Delete removes every entry named cityName.
func (s *Service) Delete(ctx context.Context, cityName string) (int, error) {
	return s.store.Delete(ctx, cityName)
}

// List returns the current state.
func (s *Service) List(ctx context.Context) (State, error) {
	return s.store.State(ctx)
}

// Lookup returns the first entry named cityName.
func (s *Service) Lookup(ctx context.Context, cityName string) (CitySummary, bool, error) {
	st, err := s.store.State(ctx)
	if err != nil {
		return CitySummary{}, false, err
	}
	for _, c := range st.Cities {
		if c.CityName == cityName {
			return c, true, nil
		}
	}
	return CitySummary{}, false, nil
}

// Units returns the current unit mode.
func (s *Service) Units(ctx context.Context) (UnitMode, error) {
	return s.store.Units(ctx)
}

// Subscribe delegates to the underlying store.
func (s *Service) Subscribe() (<-chan State, func()) {
	return s.store.Subscribe()
}
