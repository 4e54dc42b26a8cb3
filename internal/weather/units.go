package weather

import (
	"fmt"
	"strconv"
	"strings"
)

// CelsiusToFahrenheit converts a temperature from °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FahrenheitToCelsius converts a temperature from °F to °C.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// FormatTemperature renders a value with one decimal and the unit glyph, e.g. "20.0 °C".
func FormatTemperature(v float64, unit UnitMode) string {
	return fmt.Sprintf("%.1f %s", v, unit.Glyph())
}

// ParseTemperature reads back the numeric part of a displayed temperature.
func ParseTemperature(display string) (float64, error) {
	fields := strings.Fields(display)
	if len(fields) == 0 {
		return 0, &DataError{Value: display, Err: fmt.Errorf("empty temperature")}
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, &DataError{Value: display, Err: err}
	}
	return v, nil
}

// ConvertDisplay rewrites a displayed temperature into the target unit.
// A display already carrying the target glyph is returned unchanged; one without a
// glyph is taken to be in the other unit.
func ConvertDisplay(display string, to UnitMode) (string, error) {
	v, err := ParseTemperature(display)
	if err != nil {
		return "", err
	}
	if fields := strings.Fields(display); len(fields) > 1 {
		switch fields[1] {
		case to.Glyph():
			return display, nil
		case to.Toggle().Glyph():
		default:
			return "", &DataError{Value: display, Err: fmt.Errorf("unknown unit %q", fields[1])}
		}
	}
	if to == Fahrenheit {
		v = CelsiusToFahrenheit(v)
	} else {
		v = FahrenheitToCelsius(v)
	}
	return FormatTemperature(v, to), nil
}
