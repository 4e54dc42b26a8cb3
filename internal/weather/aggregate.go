package weather

import "github.com/i474232898/weather-city-tracker/internal/common"

// AggregateDaily groups samples by the date part of their timestamp and averages
// the temperature of each group. Days appear in order of first appearance.
func AggregateDaily(samples []ForecastSample) []DailyAverage {
	if len(samples) == 0 {
		return []DailyAverage{}
	}

	type bucket struct {
		sum   float64
		count int
	}

	var order []string
	buckets := make(map[string]*bucket)

	for _, s := range samples {
		date := common.FirstField(s.Timestamp, " ")
		b, ok := buckets[date]
		if !ok {
			b = &bucket{}
			buckets[date] = b
			order = append(order, date)
		}
		b.sum += s.Temperature
		b.count++
	}

	out := make([]DailyAverage, 0, len(order))
	for _, date := range order {
		b := buckets[date]
		out = append(out, DailyAverage{
			Date:            date,
			MeanTemperature: b.sum / float64(b.count),
		})
	}
	return out
}
