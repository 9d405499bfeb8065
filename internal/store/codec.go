package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock() *clock {
	return &clock{now: time.Now}
}

// next returns a UTC reading at microsecond precision that is strictly
// after every earlier reading.
func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

func resolveTimestamps(v any, ts time.Time) any {
	switch t := v.(type) {
	case serverTimestamp:
		return ts
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = resolveTimestamps(x, ts)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = resolveTimestamps(x, ts)
		}
		return out
	default:
		return v
	}
}

// encodeFields resolves ServerTimestamp sentinels and returns the JSON form
// together with its decoded canonical map.
func encodeFields(fields map[string]any, ts time.Time) ([]byte, map[string]any, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	resolved := resolveTimestamps(fields, ts)
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	canonical, err := decodeFields(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, canonical, nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

func lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// canonicalValue maps a Go value to what it becomes after a JSON round trip.
func canonicalValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func matches(fields map[string]any, path string, value any, orMissing bool) bool {
	got, ok := lookup(fields, path)
	if !ok || got == nil {
		return orMissing
	}
	return reflect.DeepEqual(got, canonicalValue(value))
}

// textValue renders a filter value the way Postgres' #>> operator renders
// the stored JSON value.
func textValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
