// Package docfields reads loosely shaped store documents. Records written
// by older clients use different key spellings and value types for the
// same field; these helpers accept every known variant.
package docfields

import (
	"strconv"
	"strings"
	"time"

	"backend-pilanitrails/internal/shared/geo"
)

// String returns the first non-empty string stored under any of keys.
func String(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Text is String that also joins list values, as tags were once stored.
func Text(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, x := range v {
				if s, ok := x.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func Int(v any) int {
	f, _ := Float(v)
	return int(f)
}

// Coordinates reads location{lat,lng}, then latitude/longitude, then
// lat/lng. Nil means no usable pair was found.
func Coordinates(fields map[string]any) *geo.Coordinates {
	if loc, ok := fields["location"].(map[string]any); ok {
		if c := pair(loc, "lat", "lng"); c != nil {
			return c
		}
	}
	if c := pair(fields, "latitude", "longitude"); c != nil {
		return c
	}
	return pair(fields, "lat", "lng")
}

func pair(fields map[string]any, latKey, lngKey string) *geo.Coordinates {
	lat, ok := Float(fields[latKey])
	if !ok {
		return nil
	}
	lng, ok := Float(fields[lngKey])
	if !ok {
		return nil
	}
	c := geo.Coordinates{Lat: lat, Lng: lng}
	if !c.Valid() {
		return nil
	}
	return &c
}

// CoordinatesValue is the stored form of c.
func CoordinatesValue(c geo.Coordinates) map[string]any {
	return map[string]any{"lat": c.Lat, "lng": c.Lng}
}

// Time parses an RFC 3339 timestamp; the zero time means absent.
func Time(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
