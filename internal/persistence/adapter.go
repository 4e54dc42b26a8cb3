package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/weather-city-tracker/internal/weather"
)

const (
	// CitiesKey is the key the city list is stored under.
	CitiesKey = "cities"
	// UnitsKey holds the unit mode the stored temperatures are displayed in.
	UnitsKey = "units"
)

// Adapter saves and loads the city list as one blob in a KV store.
type Adapter struct {
	kv    KV
	codec Codec
}

// NewAdapter creates an Adapter writing with codec. A nil codec means JSONCodec.
func NewAdapter(kv KV, codec Codec) *Adapter {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Adapter{kv: kv, codec: codec}
}

// Save encodes cities and writes them under CitiesKey.
func (a *Adapter) Save(ctx context.Context, cities []weather.CitySummary) error {
	blob, err := a.codec.Encode(cities)
	if err != nil {
		return err
	}
	return a.kv.Set(ctx, CitiesKey, blob)
}

// Load reads the city list. A missing key yields an empty list.
// Blobs written by either codec are accepted.
func (a *Adapter) Load(ctx context.Context) ([]weather.CitySummary, error) {
	blob, err := a.kv.Get(ctx, CitiesKey)
	if errors.Is(err, ErrKeyNotFound) {
		return []weather.CitySummary{}, nil
	}
	if err != nil {
		return nil, err
	}
	return DetectCodec(blob).Decode(blob)
}

// SaveState writes the city list and the unit mode in one atomic batch,
// so stored temperatures never disagree with the stored unit.
func (a *Adapter) SaveState(ctx context.Context, st weather.State) error {
	blob, err := a.codec.Encode(st.Cities)
	if err != nil {
		return err
	}
	return a.kv.SetMany(ctx, map[string]string{
		CitiesKey: blob,
		UnitsKey:  st.Units.String(),
	})
}

// LoadState reads the city list and the unit mode (Celsius when never saved).
func (a *Adapter) LoadState(ctx context.Context) (weather.State, error) {
	cities, err := a.Load(ctx)
	if err != nil {
		return weather.State{}, err
	}

	st := weather.State{Cities: cities, Units: weather.Celsius}
	raw, err := a.kv.Get(ctx, UnitsKey)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return weather.State{}, err
	default:
		units, err := weather.ParseUnitMode(raw)
		if err != nil {
			return weather.State{}, fmt.Errorf("restoring units: %w", err)
		}
		st.Units = units
	}
	return st, nil
}
