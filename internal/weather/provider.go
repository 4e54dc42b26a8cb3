package weather

import (
	"context"
)

// ForecastClient abstracts the upstream forecast source (OpenWeatherMap).
type ForecastClient interface {
	Name() string
	FetchForecast(ctx context.Context, cityName string, units UnitMode) ([]ForecastSample, error)
}

// State is an immutable snapshot of the tracked cities.
type State struct {
	Cities  []CitySummary `json:"cities"`
	Units   UnitMode      `json:"-"`
	Version uint64        `json:"version"`
}

// CityStore is the contract the city list container must satisfy.
// Samples and averages passed in are expressed in fetchedIn units.
type CityStore interface {
	AddOrAppend(ctx context.Context, cityName string, fetchedIn UnitMode, first ForecastSample, daily []DailyAverage) (CitySummary, error)
	Refresh(ctx context.Context, cityName string, fetchedIn UnitMode, first ForecastSample, daily []DailyAverage) (int, error)
	SwitchUnits(ctx context.Context) (UnitMode, []error, error)
	Delete(ctx context.Context, cityName string) (int, error)
	State(ctx context.Context) (State, error)
	Units(ctx context.Context) (UnitMode, error)
	Subscribe() (<-chan State, func())
}
