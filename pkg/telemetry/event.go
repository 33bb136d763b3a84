// Package telemetry defines the wire vocabulary shared by the Layout
// Tracker, the Event Pipeline, and the Batcher: the Event type, its
// bijective array projection, and the closed set of instrumentation event
// kinds. It has no dependency on any other agent package so every layer can
// import it without a cycle.
package telemetry

import (
	"fmt"
	"sort"
)

// Origin identifies which plugin (or the pipeline itself) produced an
// event. It is an open set — reference plugins and third-party plugins
// alike stamp their own identity here.
type Origin string

const (
	OriginInstrumentation Origin = "Instrumentation"
	OriginLayout          Origin = "Layout"
)

// Event is the structured form of a single telemetry record. Data carries
// kind-specific fields (e.g. a layout state, a JS error message) and is
// itself array-projected on the wire — see dataToArray/dataFromArray.
type Event struct {
	ID     uint64
	Origin Origin
	Type   string
	Time   float64 // epoch milliseconds, or session-relative milliseconds
	Data   map[string]any
}

// ToArray renders the event as its positional wire form:
// [id, origin, type, time, data].
func (e Event) ToArray() []any {
	return []any{e.ID, string(e.Origin), e.Type, e.Time, dataToArray(e.Data)}
}

// EventFromArray reconstructs an Event from its positional wire form. It is
// the exact inverse of ToArray: round-tripping through these two functions
// always yields an equal Event (spec invariant 6).
func EventFromArray(arr []any) (Event, error) {
	if len(arr) != 5 {
		return Event{}, fmt.Errorf("telemetry: event array must have 5 elements, got %d", len(arr))
	}

	id, err := toUint64(arr[0])
	if err != nil {
		return Event{}, fmt.Errorf("telemetry: id: %w", err)
	}
	origin, ok := arr[1].(string)
	if !ok {
		return Event{}, fmt.Errorf("telemetry: origin: not a string")
	}
	typ, ok := arr[2].(string)
	if !ok {
		return Event{}, fmt.Errorf("telemetry: type: not a string")
	}
	tm, err := toFloat64(arr[3])
	if err != nil {
		return Event{}, fmt.Errorf("telemetry: time: %w", err)
	}
	dataArr, ok := arr[4].([]any)
	if !ok {
		return Event{}, fmt.Errorf("telemetry: data: not an array")
	}
	data, err := dataFromArray(dataArr)
	if err != nil {
		return Event{}, fmt.Errorf("telemetry: data: %w", err)
	}

	return Event{ID: id, Origin: Origin(origin), Type: typ, Time: tm, Data: data}, nil
}

// dataToArray projects a data map into a bijective array form: a
// lexicographically-sorted list of [key, value] pairs. Sorting makes the
// projection deterministic regardless of Go's randomized map iteration
// order, which is what makes it invertible.
func dataToArray(data map[string]any) []any {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, []any{k, data[k]})
	}
	return out
}

func dataFromArray(arr []any) (map[string]any, error) {
	out := make(map[string]any, len(arr))
	for _, entry := range arr {
		pair, ok := entry.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("malformed data entry %v", entry)
		}
		key, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("data key is not a string: %v", pair[0])
		}
		out[key] = pair[1]
	}
	return out, nil
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
