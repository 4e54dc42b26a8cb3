package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-city-tracker/internal/weather"
)

var (
	// ErrClosed is returned by operations issued after Close.
	ErrClosed = errors.New("city store closed")
)

// Persister receives the full state after every mutation.
type Persister interface {
	SaveState(ctx context.Context, st weather.State) error
}

// Options tunes a CityStore.
type Options struct {
	// Dedupe makes the city name a unique key: adding a tracked city replaces it in place.
	Dedupe bool
	// Units is the initial unit mode.
	Units weather.UnitMode
	// Now is used for the fetched date; defaults to time.Now.
	Now func() time.Time
	// PersistTimeout bounds a single background save; defaults to 10s.
	PersistTimeout time.Duration
}

type state struct {
	cities  []weather.CitySummary
	units   weather.UnitMode
	version uint64
}

func (st *state) snapshot() weather.State {
	cities := make([]weather.CitySummary, len(st.cities))
	copy(cities, st.cities)
	return weather.State{Cities: cities, Units: st.units, Version: st.version}
}

// CityStore holds the ordered list of tracked cities.
// All reads and writes run on a single owner goroutine, one operation at a time.
type CityStore struct {
	opts Options

	ops  chan func(*state)
	quit chan struct{}
	done chan struct{}

	persister   Persister
	persistCh   chan weather.State
	persistDone chan struct{}

	mu      sync.Mutex
	subs    map[int]chan weather.State
	nextSub int

	closeOnce sync.Once
}

var _ weather.CityStore = (*CityStore)(nil)

// NewCityStore starts a store. persister may be nil for a memory-only store.
func NewCityStore(persister Persister, opts Options) *CityStore {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}

	s := &CityStore{
		opts:        opts,
		ops:         make(chan func(*state)),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		persister:   persister,
		persistCh:   make(chan weather.State, 1),
		persistDone: make(chan struct{}),
		subs:        make(map[int]chan weather.State),
	}

	go s.run(&state{units: opts.Units})
	go s.persistLoop()
	return s
}

func (s *CityStore) run(st *state) {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op(st)
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it to finish.
func (s *CityStore) do(ctx context.Context, fn func(*state)) error {
	finished := make(chan struct{})
	op := func(st *state) {
		defer close(finished)
		fn(st)
	}

	select {
	case s.ops <- op:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// mutated bumps the version, notifies subscribers and queues a save.
// Must run on the owner goroutine.
func (s *CityStore) mutated(st *state, persist bool) {
	st.version++
	snap := st.snapshot()
	s.publish(snap)
	if persist && s.persister != nil {
		select {
		case <-s.persistCh:
		default:
		}
		s.persistCh <- snap
	}
}

func (s *CityStore) persistLoop() {
	defer close(s.persistDone)
	for snap := range s.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
		if err := s.persister.SaveState(ctx, snap); err != nil {
			log.Printf("ERROR: store: persisting %d cities failed: %v", len(snap.Cities), err)
		}
		cancel()
	}
}

func (s *CityStore) publish(snap weather.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		// Slow subscribers only ever see the latest snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// AddOrAppend appends a summary built from the first sample and the daily averages.
// Repeated searches for the same city create duplicate entries unless Dedupe is set.
func (s *CityStore) AddOrAppend(ctx context.Context, cityName string, fetchedIn weather.UnitMode, first weather.ForecastSample, daily []weather.DailyAverage) (weather.CitySummary, error) {
	var out weather.CitySummary
	err := s.do(ctx, func(st *state) {
		out = s.buildSummary(st.units, cityName, fetchedIn, first, daily)

		if s.opts.Dedupe {
			if idx := indexOf(st.cities, cityName); idx >= 0 {
				out.ID = st.cities[idx].ID
				st.cities[idx] = out
				st.cities = removeFrom(st.cities, cityName, idx+1)
				s.mutated(st, true)
				return
			}
		}

		st.cities = append(st.cities, out)
		s.mutated(st, true)
	})
	return out, err
}

// Refresh rewrites every entry named cityName in place, keeping IDs and order.
func (s *CityStore) Refresh(ctx context.Context, cityName string, fetchedIn weather.UnitMode, first weather.ForecastSample, daily []weather.DailyAverage) (int, error) {
	var n int
	err := s.do(ctx, func(st *state) {
		fresh := s.buildSummary(st.units, cityName, fetchedIn, first, daily)
		for i := range st.cities {
			if st.cities[i].CityName != cityName {
				continue
			}
			id := st.cities[i].ID
			st.cities[i] = fresh
			st.cities[i].ID = id
			n++
		}
		if n > 0 {
			s.mutated(st, true)
		}
	})
	return n, err
}

// SwitchUnits flips the unit mode and rewrites every displayed temperature.
// Entries whose temperature cannot be parsed keep their old value and are reported.
func (s *CityStore) SwitchUnits(ctx context.Context) (weather.UnitMode, []error, error) {
	var (
		units    weather.UnitMode
		dataErrs []error
	)
	err := s.do(ctx, func(st *state) {
		to := st.units.Toggle()
		for i := range st.cities {
			c := &st.cities[i]
			display, err := weather.ConvertDisplay(c.TemperatureDisplay, to)
			if err != nil {
				var de *weather.DataError
				if errors.As(err, &de) {
					de.CityName = c.CityName
				}
				dataErrs = append(dataErrs, err)
				continue
			}
			c.TemperatureDisplay = display
			c.Forecast = convertDaily(c.Forecast, st.units, to)
		}
		st.units = to
		units = to
		s.mutated(st, true)
	})
	return units, dataErrs, err
}

// Delete removes every entry named cityName. Unknown names are a no-op.
func (s *CityStore) Delete(ctx context.Context, cityName string) (int, error) {
	var n int
	err := s.do(ctx, func(st *state) {
		before := len(st.cities)
		st.cities = removeFrom(st.cities, cityName, 0)
		n = before - len(st.cities)
		if n > 0 {
			s.mutated(st, true)
		}
	})
	return n, err
}

// Restore replaces the whole list, typically with the persisted one at startup.
// It does not trigger a save. Entries without an ID get a fresh one.
func (s *CityStore) Restore(ctx context.Context, cities []weather.CitySummary) error {
	return s.do(ctx, func(st *state) {
		restored := make([]weather.CitySummary, len(cities))
		copy(restored, cities)
		for i := range restored {
			if restored[i].ID == "" {
				restored[i].ID = uuid.NewString()
			}
		}
		st.cities = restored
		s.mutated(st, false)
	})
}

// State returns a snapshot of the list.
func (s *CityStore) State(ctx context.Context) (weather.State, error) {
	var snap weather.State
	err := s.do(ctx, func(st *state) {
		snap = st.snapshot()
	})
	return snap, err
}

// Units returns the current unit mode.
func (s *CityStore) Units(ctx context.Context) (weather.UnitMode, error) {
	var u weather.UnitMode
	err := s.do(ctx, func(st *state) {
		u = st.units
	})
	return u, err
}

// Subscribe returns a channel receiving the current snapshot and then one snapshot
// per mutation. Call the returned func to unsubscribe.
func (s *CityStore) Subscribe() (<-chan weather.State, func()) {
	ch := make(chan weather.State, 1)
	var id int

	err := s.do(context.Background(), func(st *state) {
		s.mu.Lock()
		id = s.nextSub
		s.nextSub++
		s.subs[id] = ch
		s.mu.Unlock()
		ch <- st.snapshot()
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// Close stops the owner goroutine, flushes the pending save and closes subscriptions.
func (s *CityStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		close(s.persistCh)
		<-s.persistDone

		s.CloseSubscriptions()
	})
	return nil
}

// CloseSubscriptions ends every open subscription. The store keeps serving operations,
// so streams can be drained before the rest of the process shuts down.
func (s *CityStore) CloseSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *CityStore) buildSummary(current weather.UnitMode, cityName string, fetchedIn weather.UnitMode, first weather.ForecastSample, daily []weather.DailyAverage) weather.CitySummary {
	temp := first.Temperature
	if fetchedIn != current {
		temp = convert(temp, current)
	}

	condition := first.Condition
	if condition == "" {
		condition = "N/A"
	}

	forecast := make([]weather.DailyAverage, len(daily))
	copy(forecast, daily)

	return weather.CitySummary{
		ID:                 uuid.NewString(),
		CityName:           cityName,
		TemperatureDisplay: weather.FormatTemperature(temp, current),
		Condition:          condition,
		FetchedDate:        s.opts.Now().Format(weather.FetchedDateLayout),
		IconURL:            weather.IconURL(first.Icon),
		Forecast:           convertDaily(forecast, fetchedIn, current),
	}
}

func convert(v float64, to weather.UnitMode) float64 {
	if to == weather.Fahrenheit {
		return weather.CelsiusToFahrenheit(v)
	}
	return weather.FahrenheitToCelsius(v)
}

// convertDaily returns a new slice when from != to; stored slices are never mutated.
func convertDaily(daily []weather.DailyAverage, from, to weather.UnitMode) []weather.DailyAverage {
	if from == to || len(daily) == 0 {
		return daily
	}
	out := make([]weather.DailyAverage, len(daily))
	for i, d := range daily {
		out[i] = weather.DailyAverage{Date: d.Date, MeanTemperature: convert(d.MeanTemperature, to)}
	}
	return out
}

func indexOf(cities []weather.CitySummary, name string) int {
	for i, c := range cities {
		if c.CityName == name {
			return i
		}
	}
	return -1
}

// removeFrom drops entries named name at or after index from.
func removeFrom(cities []weather.CitySummary, name string, from int) []weather.CitySummary {
	out := make([]weather.CitySummary, 0, len(cities))
	for i, c := range cities {
		if i >= from && c.CityName == name {
			continue
		}
		out = append(out, c)
	}
	return out
}
