package weather

import "errors"

// UnitMode is the process-wide temperature unit used for display and for new fetches.
type UnitMode int

const (
	Celsius UnitMode = iota
	Fahrenheit
)

// String returns the unit name used in API payloads.
func (u UnitMode) String() string {
	if u == Fahrenheit {
		return "fahrenheit"
	}
	return "celsius"
}

// ParseUnitMode reads back the value produced by String.
func ParseUnitMode(s string) (UnitMode, error) {
	switch s {
	case "celsius":
		return Celsius, nil
	case "fahrenheit":
		return Fahrenheit, nil
	default:
		return Celsius, &DataError{Value: s, Err: errors.New("unknown unit mode")}
	}
}

// Glyph returns the suffix appended to displayed temperatures.
func (u UnitMode) Glyph() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// APIUnits returns the value of the upstream "units" query parameter.
func (u UnitMode) APIUnits() string {
	if u == Fahrenheit {
		return "imperial"
	}
	return "metric"
}

// Toggle returns the other unit.
func (u UnitMode) Toggle() UnitMode {
	if u == Fahrenheit {
		return Celsius
	}
	return Fahrenheit
}

// ForecastSample is one time slot returned by the forecast endpoint.
type ForecastSample struct {
	Timestamp   string  `json:"timestamp"` // "2006-01-02 15:04:05"
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Icon        string  `json:"icon"`
}

// DailyAverage is the mean temperature of all samples sharing a calendar date.
type DailyAverage struct {
	Date            string  `json:"date"` // "2006-01-02"
	MeanTemperature float64 `json:"meanTemperature"`
}

// CitySummary is the displayable record for one tracked city.
// Only the summary fields survive a restart; Forecast is rebuilt on the next fetch.
type CitySummary struct {
	ID                 string         `json:"id"`
	CityName           string         `json:"cityName"`
	TemperatureDisplay string         `json:"temperature"`
	Condition          string         `json:"description"`
	FetchedDate        string         `json:"date"`
	IconURL            string         `json:"iconUrl"`
	Forecast           []DailyAverage `json:"forecast"`
}

// FetchedDateLayout is the layout of CitySummary.FetchedDate.
const FetchedDateLayout = "02/01/2006"

// IconBaseURL is the prefix of condition icon URLs.
const IconBaseURL = "https://openweathermap.org/img/wn/"

// IconURL builds the image URL for an upstream icon id.
func IconURL(icon string) string {
	if icon == "" {
		return ""
	}
	return IconBaseURL + icon + ".png"
}
