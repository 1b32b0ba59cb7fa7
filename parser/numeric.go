package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ToFloat converts a locale formatted number to float64. Both "2,24" and "2.24"
// yield 2.24. Integers are widened, floats pass through unchanged.
func ToFloat(value any) (float64, error) {
	switch v := value.(type) {
	case string:
		text := strings.TrimSpace(v)
		if strings.ContainsAny(text, ",.") {
			text = strings.ReplaceAll(text, ",", ".")
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, ConversionError{Value: v, Err: err}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, ConversionError{Value: v, Err: errNotFinite}
		}
		return f, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return finite(value, float64(v))
	case float64:
		return finite(value, v)
	default:
		return 0, ConversionError{Value: value}
	}
}

var errNotFinite = errors.New("value is not a finite number")

func finite(value any, f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ConversionError{Value: value, Err: errNotFinite}
	}
	return f, nil
}

// IsConvertible reports whether ToFloat accepts value.
func IsConvertible(value any) bool {
	_, err := ToFloat(value)
	return err == nil
}

// ToInt parses a whole number such as a stock quantity.
func ToInt(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, ConversionError{Value: value, Err: err}
	}
	return n, nil
}
