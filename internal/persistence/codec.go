package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/i474232898/weather-city-tracker/internal/common"
	"github.com/i474232898/weather-city-tracker/internal/weather"
)

const (
	fieldSep  = "|"
	recordSep = ";"

	jsonVersion = 1
)

// Codec turns the city list into a single string and back.
// Only the summary fields are durable; decoded entries have an empty forecast.
type Codec interface {
	Encode(cities []weather.CitySummary) (string, error)
	Decode(blob string) ([]weather.CitySummary, error)
}

// LegacyCodec is the delimited format: name|temp|description|date|iconUrl records joined by ';'.
type LegacyCodec struct{}

func (LegacyCodec) Encode(cities []weather.CitySummary) (string, error) {
	records := make([]string, 0, len(cities))
	for _, c := range cities {
		fields := []string{c.CityName, c.TemperatureDisplay, c.Condition, c.FetchedDate, c.IconURL}
		for _, f := range fields {
			if common.HasAny(f, fieldSep, recordSep) {
				return "", &weather.DataError{CityName: c.CityName, Value: f, Err: fmt.Errorf("contains a delimiter")}
			}
		}
		records = append(records, strings.Join(fields, fieldSep))
	}
	return strings.Join(records, recordSep), nil
}

// Decode drops records that do not split into exactly five fields.
func (LegacyCodec) Decode(blob string) ([]weather.CitySummary, error) {
	out := []weather.CitySummary{}
	if blob == "" {
		return out, nil
	}
	for _, record := range strings.Split(blob, recordSep) {
		parts := strings.Split(record, fieldSep)
		if len(parts) != 5 {
			log.Printf("INFO: dropping malformed persisted record %q", record)
			continue
		}
		out = append(out, weather.CitySummary{
			CityName:           parts[0],
			TemperatureDisplay: parts[1],
			Condition:          parts[2],
			FetchedDate:        parts[3],
			IconURL:            parts[4],
			Forecast:           []weather.DailyAverage{},
		})
	}
	return out, nil
}

// JSONCodec writes a versioned JSON envelope, free of delimiter collisions.
type JSONCodec struct{}

type jsonEnvelope struct {
	Version int          `json:"version"`
	Cities  []jsonRecord `json:"cities"`
}

type jsonRecord struct {
	ID          string `json:"id,omitempty"`
	CityName    string `json:"cityName"`
	Temperature string `json:"temperature"`
	Description string `json:"description"`
	Date        string `json:"date"`
	IconURL     string `json:"iconUrl"`
}

func (JSONCodec) Encode(cities []weather.CitySummary) (string, error) {
	env := jsonEnvelope{Version: jsonVersion, Cities: make([]jsonRecord, 0, len(cities))}
	for _, c := range cities {
		env.Cities = append(env.Cities, jsonRecord{
			ID:          c.ID,
			CityName:    c.CityName,
			Temperature: c.TemperatureDisplay,
			Description: c.Condition,
			Date:        c.FetchedDate,
			IconURL:     c.IconURL,
		})
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding cities: %w", err)
	}
	return string(b), nil
}

// Decode drops records without a city name.
func (JSONCodec) Decode(blob string) ([]weather.CitySummary, error) {
	var env jsonEnvelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return nil, &weather.DataError{Value: truncate(blob, 64), Err: err}
	}
	if env.Version > jsonVersion {
		return nil, &weather.DataError{Value: fmt.Sprint(env.Version), Err: fmt.Errorf("unsupported format version")}
	}

	out := make([]weather.CitySummary, 0, len(env.Cities))
	for _, r := range env.Cities {
		if r.CityName == "" {
			log.Printf("INFO: dropping persisted record without city name")
			continue
		}
		out = append(out, weather.CitySummary{
			ID:                 r.ID,
			CityName:           r.CityName,
			TemperatureDisplay: r.Temperature,
			Condition:          r.Description,
			FetchedDate:        r.Date,
			IconURL:            r.IconURL,
			Forecast:           []weather.DailyAverage{},
		})
	}
	return out, nil
}

// DetectCodec picks the codec a stored blob was written with.
func DetectCodec(blob string) Codec {
	if strings.HasPrefix(strings.TrimSpace(blob), "{") {
		return JSONCodec{}
	}
	return LegacyCodec{}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
