package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-city-tracker/internal/weather"
)

type recordingPersister struct {
	mu    sync.Mutex
	saves []weather.State
}

func (p *recordingPersister) SaveState(_ context.Context, st weather.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, st)
	return nil
}

func (p *recordingPersister) last() (weather.State, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) == 0 {
		return weather.State{}, 0
	}
	return p.saves[len(p.saves)-1], len(p.saves)
}

func fixedNow() time.Time { return time.Date(2024, 6, 30, 8, 0, 0, 0, time.UTC) }

func sample(temp float64) weather.ForecastSample {
	return weather.ForecastSample{Timestamp: "2024-06-30 09:00:00", Temperature: temp, Condition: "clear sky", Icon: "01d"}
}

func newTestStore(t *testing.T, p Persister, opts Options) *CityStore {
	t.Helper()
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	s := NewCityStore(p, opts)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddOrAppendKeepsInsertionOrderAndDuplicates(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()

	for _, name := range []string{"Paris", "Berlin", "Paris"} {
		if _, err := s.AddOrAppend(ctx, name, weather.Celsius, sample(20), nil); err != nil {
			t.Fatalf("AddOrAppend(%s) failed: %v", name, err)
		}
	}

	st, err := s.State(ctx)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if len(st.Cities) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(st.Cities))
	}
	names := []string{st.Cities[0].CityName, st.Cities[1].CityName, st.Cities[2].CityName}
	if names[0] != "Paris" || names[1] != "Berlin" || names[2] != "Paris" {
		t.Fatalf("unexpected order %v", names)
	}
	if st.Cities[0].ID == st.Cities[2].ID {
		t.Fatal("duplicate entries must have distinct IDs")
	}
	c := st.Cities[0]
	if c.TemperatureDisplay != "20.0 °C" || c.FetchedDate != "30/06/2024" || c.IconURL != "https://openweathermap.org/img/wn/01d.png" {
		t.Fatalf("unexpected summary %+v", c)
	}
}

func TestAddOrAppendDedupeReplacesInPlace(t *testing.T) {
	s := newTestStore(t, nil, Options{Dedupe: true})
	ctx := context.Background()

	first, _ := s.AddOrAppend(ctx, "Paris", weather.Celsius, sample(10), nil)
	_, _ = s.AddOrAppend(ctx, "Berlin", weather.Celsius, sample(5), nil)
	second, _ := s.AddOrAppend(ctx, "Paris", weather.Celsius, sample(12), nil)

	if second.ID != first.ID {
		t.Fatalf("expected replaced entry to keep id %s, got %s", first.ID, second.ID)
	}
	st, _ := s.State(ctx)
	if len(st.Cities) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(st.Cities))
	}
	if st.Cities[0].CityName != "Paris" || st.Cities[0].TemperatureDisplay != "12.0 °C" {
		t.Fatalf("unexpected first entry %+v", st.Cities[0])
	}
}

func TestAddOrAppendDefaultsMissingCondition(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	c, err := s.AddOrAppend(context.Background(), "Quito", weather.Celsius, weather.ForecastSample{Temperature: 14}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Condition != "N/A" || c.IconURL != "" {
		t.Fatalf("unexpected summary %+v", c)
	}
}

func TestAddOrAppendConvertsStaleUnits(t *testing.T) {
	s := newTestStore(t, nil, Options{Units: weather.Fahrenheit})
	daily := []weather.DailyAverage{{Date: "2024-06-30", MeanTemperature: 100}}

	c, err := s.AddOrAppend(context.Background(), "Cairo", weather.Celsius, sample(20), daily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TemperatureDisplay != "68.0 °F" {
		t.Fatalf("expected conversion to current units, got %q", c.TemperatureDisplay)
	}
	if c.Forecast[0].MeanTemperature != 212 {
		t.Fatalf("expected forecast converted, got %v", c.Forecast[0].MeanTemperature)
	}
	if daily[0].MeanTemperature != 100 {
		t.Fatal("caller slice must not be modified")
	}
}

func TestSwitchUnitsExample(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	_ = s.Restore(ctx, []weather.CitySummary{{CityName: "Paris", TemperatureDisplay: "20.0 °C"}})

	units, dataErrs, err := s.SwitchUnits(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units != weather.Fahrenheit || len(dataErrs) != 0 {
		t.Fatalf("unexpected result: %v %v", units, dataErrs)
	}
	st, _ := s.State(ctx)
	if st.Cities[0].TemperatureDisplay != "68.0 °F" {
		t.Fatalf("expected 68.0 °F, got %q", st.Cities[0].TemperatureDisplay)
	}
}

func TestSwitchUnitsTwiceRestoresValues(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	temps := []float64{-7.4, 0, 12.3, 29.9}
	for _, v := range temps {
		_, _ = s.AddOrAppend(ctx, "X", weather.Celsius, sample(v), []weather.DailyAverage{{Date: "d", MeanTemperature: v}})
	}

	_, _, _ = s.SwitchUnits(ctx)
	units, _, _ := s.SwitchUnits(ctx)
	if units != weather.Celsius {
		t.Fatalf("expected celsius, got %v", units)
	}

	st, _ := s.State(ctx)
	for i, c := range st.Cities {
		got, err := weather.ParseTemperature(c.TemperatureDisplay)
		if err != nil {
			t.Fatalf("unexpected parse error: %v", err)
		}
		if math.Abs(got-temps[i]) > 0.1 {
			t.Fatalf("entry %d: expected ~%v, got %v", i, temps[i], got)
		}
		if math.Abs(c.Forecast[0].MeanTemperature-temps[i]) > 1e-9 {
			t.Fatalf("entry %d: forecast drifted to %v", i, c.Forecast[0].MeanTemperature)
		}
	}
}

func TestSwitchUnitsReportsCorruptEntries(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	_ = s.Restore(ctx, []weather.CitySummary{
		{CityName: "Good", TemperatureDisplay: "10.0 °C"},
		{CityName: "Bad", TemperatureDisplay: "warm"},
	})

	units, dataErrs, err := s.SwitchUnits(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units != weather.Fahrenheit {
		t.Fatalf("expected units to flip, got %v", units)
	}
	if len(dataErrs) != 1 {
		t.Fatalf("expected 1 data error, got %d", len(dataErrs))
	}
	var de *weather.DataError
	if !errors.As(dataErrs[0], &de) || de.CityName != "Bad" {
		t.Fatalf("expected DataError for Bad, got %v", dataErrs[0])
	}

	st, _ := s.State(ctx)
	if st.Cities[0].TemperatureDisplay != "50.0 °F" {
		t.Fatalf("good entry not converted: %q", st.Cities[0].TemperatureDisplay)
	}
	if st.Cities[1].TemperatureDisplay != "warm" {
		t.Fatalf("bad entry should be untouched, got %q", st.Cities[1].TemperatureDisplay)
	}
}

func TestSwitchUnitsKeepsEntriesAlreadyInTargetUnit(t *testing.T) {
	s := newTestStore(t, nil, Options{Units: weather.Celsius})
	ctx := context.Background()
	_ = s.Restore(ctx, []weather.CitySummary{
		{CityName: "Paris", TemperatureDisplay: "20.0 °C"},
		{CityName: "NYC", TemperatureDisplay: "68.0 °F"},
	})

	_, dataErrs, err := s.SwitchUnits(ctx)
	if err != nil || len(dataErrs) != 0 {
		t.Fatalf("unexpected errors: %v %v", err, dataErrs)
	}
	st, _ := s.State(ctx)
	for _, c := range st.Cities {
		if c.TemperatureDisplay != "68.0 °F" {
			t.Fatalf("%s: expected 68.0 °F, got %q", c.CityName, c.TemperatureDisplay)
		}
	}
}

func TestDeleteRemovesAllMatches(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	for _, name := range []string{"Paris", "Rome", "Paris"} {
		_, _ = s.AddOrAppend(ctx, name, weather.Celsius, sample(1), nil)
	}

	n, err := s.Delete(ctx, "Paris")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	st, _ := s.State(ctx)
	if len(st.Cities) != 1 || st.Cities[0].CityName != "Rome" {
		t.Fatalf("unexpected list %+v", st.Cities)
	}

	version := st.Version
	n, err = s.Delete(ctx, "Tokyo")
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
	st, _ = s.State(ctx)
	if st.Version != version {
		t.Fatal("deleting an unknown name must not count as a mutation")
	}
}

func TestMutationsArePersisted(t *testing.T) {
	p := &recordingPersister{}
	s := NewCityStore(p, Options{Now: fixedNow})
	ctx := context.Background()

	_ = s.Restore(ctx, []weather.CitySummary{{CityName: "Old", TemperatureDisplay: "1.0 °C"}})
	_, _ = s.AddOrAppend(ctx, "Paris", weather.Celsius, sample(20), nil)
	_, _, _ = s.SwitchUnits(ctx)
	_, _ = s.Delete(ctx, "Old")
	s.Close()

	last, n := p.last()
	if n == 0 {
		t.Fatal("expected at least one save")
	}
	if last.Units != weather.Fahrenheit {
		t.Fatalf("expected last save in fahrenheit, got %v", last.Units)
	}
	if len(last.Cities) != 1 || last.Cities[0].CityName != "Paris" || last.Cities[0].TemperatureDisplay != "68.0 °F" {
		t.Fatalf("unexpected last save %+v", last.Cities)
	}
}

func TestRestoreDoesNotPersist(t *testing.T) {
	p := &recordingPersister{}
	s := NewCityStore(p, Options{})
	_ = s.Restore(context.Background(), []weather.CitySummary{{CityName: "A"}})
	s.Close()

	if _, n := p.last(); n != 0 {
		t.Fatalf("expected no saves, got %d", n)
	}
}

func TestRestoreAssignsMissingIDs(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	_ = s.Restore(ctx, []weather.CitySummary{{CityName: "A"}, {ID: "keep", CityName: "B"}})

	st, _ := s.State(ctx)
	if st.Cities[0].ID == "" {
		t.Fatal("expected generated id")
	}
	if st.Cities[1].ID != "keep" {
		t.Fatalf("expected id to be kept, got %q", st.Cities[1].ID)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	initial := <-updates
	if len(initial.Cities) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(initial.Cities))
	}

	_, _ = s.AddOrAppend(ctx, "Paris", weather.Celsius, sample(20), nil)

	select {
	case st := <-updates:
		if len(st.Cities) != 1 || st.Version <= initial.Version {
			t.Fatalf("unexpected snapshot %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestSubscribeKeepsOnlyLatest(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		_, _ = s.AddOrAppend(ctx, "City", weather.Celsius, sample(float64(i)), nil)
	}

	st := <-updates
	if len(st.Cities) != 5 {
		t.Fatalf("expected latest snapshot with 5 cities, got %d", len(st.Cities))
	}
}

func TestCloseSubscriptionsEndsStreams(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()

	updates, unsubscribe := s.Subscribe()
	<-updates

	s.CloseSubscriptions()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
	unsubscribe()

	if _, err := s.AddOrAppend(ctx, "Paris", weather.Celsius, sample(20), nil); err != nil {
		t.Fatalf("store should keep working, got %v", err)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()
	_, _ = s.AddOrAppend(ctx, "Paris", weather.Celsius, sample(20), nil)

	st, _ := s.State(ctx)
	st.Cities[0].CityName = "mutated"

	again, _ := s.State(ctx)
	if again.Cities[0].CityName != "Paris" {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestOperationsAfterClose(t *testing.T) {
	s := NewCityStore(nil, Options{})
	s.Close()

	if _, err := s.State(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()
	if _, ok := <-updates; ok {
		t.Fatal("expected closed channel after Close")
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := newTestStore(t, nil, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddOrAppend(ctx, "City", weather.Celsius, sample(1), nil)
		}()
	}
	wg.Wait()

	st, _ := s.State(ctx)
	if len(st.Cities) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(st.Cities))
	}
	if st.Version != 50 {
		t.Fatalf("expected version 50, got %d", st.Version)
	}
}
