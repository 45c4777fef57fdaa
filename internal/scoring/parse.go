package scoring

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	groupingChars = strings.NewReplacer("$", "", ",", "", "%", "")
	numeralRe     = regexp.MustCompile(`-?\d+\.?\d*`)
)

// ParseNumber converts a loosely formatted value such as "$12,000",
// "120 days" or "15%" into a float. It reports false when no numeral is
// present. NaN and infinities are treated as missing.
func ParseNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return parseText(v.String())
		}
		return finite(f)
	case string:
		return parseText(v)
	default:
		return 0, false
	}
}

func parseText(s string) (float64, bool) {
	s = groupingChars.Replace(strings.TrimSpace(s))
	match := numeralRe.FindString(s)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
