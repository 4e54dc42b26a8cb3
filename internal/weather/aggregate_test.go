package weather

import (
	"math"
	"testing"
)

func TestAggregateDailyExample(t *testing.T) {
	samples := []ForecastSample{
		{Temperature: 20.0, Timestamp: "2024-01-01 09:00:00"},
		{Temperature: 22.0, Timestamp: "2024-01-01 15:00:00"},
		{Temperature: 10.0, Timestamp: "2024-01-02 09:00:00"},
	}

	got := AggregateDaily(samples)
	want := []DailyAverage{
		{Date: "2024-01-01", MeanTemperature: 21.0},
		{Date: "2024-01-02", MeanTemperature: 10.0},
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d days, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].Date != want[i].Date {
			t.Fatalf("day %d: expected date %s, got %s", i, want[i].Date, got[i].Date)
		}
		if math.Abs(got[i].MeanTemperature-want[i].MeanTemperature) > 1e-9 {
			t.Fatalf("day %d: expected mean %v, got %v", i, want[i].MeanTemperature, got[i].MeanTemperature)
		}
	}
}

// Days must come out in order of first appearance, not sorted.
func TestAggregateDailyKeepsFirstAppearanceOrder(t *testing.T) {
	samples := []ForecastSample{
		{Temperature: 5, Timestamp: "2024-03-02 00:00:00"},
		{Temperature: 1, Timestamp: "2024-03-01 21:00:00"},
		{Temperature: 7, Timestamp: "2024-03-02 03:00:00"},
		{Temperature: 3, Timestamp: "2024-03-01 18:00:00"},
	}

	got := AggregateDaily(samples)
	if len(got) != 2 {
		t.Fatalf("expected 2 days, got %d", len(got))
	}
	if got[0].Date != "2024-03-02" || got[1].Date != "2024-03-01" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].MeanTemperature != 6 || got[1].MeanTemperature != 2 {
		t.Fatalf("unexpected means: %+v", got)
	}
}

func TestAggregateDailyCoversDistinctDates(t *testing.T) {
	var samples []ForecastSample
	dates := []string{"2024-05-01", "2024-05-02", "2024-05-03", "2024-05-04", "2024-05-05"}
	sums := map[string]float64{}
	counts := map[string]int{}
	for i := 0; i < 40; i++ {
		d := dates[i/8]
		temp := float64(i%8) * 1.25
		samples = append(samples, ForecastSample{
			Timestamp:   d + " 00:00:00",
			Temperature: temp,
		})
		sums[d] += temp
		counts[d]++
	}

	got := AggregateDaily(samples)
	if len(got) != len(dates) {
		t.Fatalf("expected %d days, got %d", len(dates), len(got))
	}
	for _, day := range got {
		want := sums[day.Date] / float64(counts[day.Date])
		if math.Abs(day.MeanTemperature-want) > 1e-9 {
			t.Fatalf("%s: expected mean %v, got %v", day.Date, want, day.MeanTemperature)
		}
	}
}

func TestAggregateDailyEmpty(t *testing.T) {
	got := AggregateDaily(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestAggregateDailyTimestampWithoutTime(t *testing.T) {
	got := AggregateDaily([]ForecastSample{{Timestamp: "2024-01-01", Temperature: 4}})
	if len(got) != 1 || got[0].Date != "2024-01-01" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
