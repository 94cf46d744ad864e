package introspect

import (
	"encoding/json"
	"fmt"
	"math"
)

// StatsSource tells where normalization statistics came from.
type StatsSource int

const (
	// StatsDefault means no usable statistics were found and means=[0], stds=[1] apply.
	StatsDefault StatsSource = iota
	// StatsExplicit means statistics were read from the graph or the job config.
	StatsExplicit
)

// String returns a human-readable source name.
func (s StatsSource) String() string {
	switch s {
	case StatsDefault:
		return "default"
	case StatsExplicit:
		return "explicit"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Stats holds per-channel normalization statistics.
// A pixel p of channel c becomes (p - Means[c]) / Stds[c]; single-element
// slices apply to every channel.
type Stats struct {
	Means  []float32
	Stds   []float32
	Source StatsSource
	Reason string // why defaults were used, empty for explicit stats
}

// DefaultStats returns the identity normalization.
func DefaultStats(reason string) Stats {
	return Stats{
		Means:  []float32{0},
		Stds:   []float32{1},
		Source: StatsDefault,
		Reason: reason,
	}
}

// ParseStats reads statistics from a graph doc string of the form
// {"means": [...], "vars": [...]}. "stds" is accepted in place of "vars".
// Malformed input never fails; it yields DefaultStats with a reason.
func ParseStats(doc string) Stats {
	if doc == "" {
		return DefaultStats("graph doc string is empty")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		return DefaultStats(fmt.Sprintf("graph doc string is not a JSON object: %v", err))
	}

	means, err := floatList(fields, "means")
	if err != nil {
		return DefaultStats(err.Error())
	}
	key := "vars"
	if _, ok := fields[key]; !ok {
		key = "stds"
	}
	stds, err := floatList(fields, key)
	if err != nil {
		return DefaultStats(err.Error())
	}

	stats := Stats{Means: means, Stds: stds, Source: StatsExplicit}
	if err := stats.check(); err != nil {
		return DefaultStats(err.Error())
	}
	return stats
}

func floatList(fields map[string]json.RawMessage, key string) ([]float32, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("graph doc string has no %q key", key)
	}

	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%q is not a list of numbers", key)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%q is empty", key)
	}
	return toFloat32(values), nil
}

// check rejects statistics that cannot be broadcast together, are not
// finite in float32 or would divide by zero.
func (s Stats) check() error {
	if len(s.Means) != len(s.Stds) && len(s.Means) != 1 && len(s.Stds) != 1 {
		return fmt.Errorf("means has %d values but stds has %d", len(s.Means), len(s.Stds))
	}
	for i, mean := range s.Means {
		if !finite(mean) {
			return fmt.Errorf("mean at index %d is %v", i, mean)
		}
	}
	for i, std := range s.Stds {
		if std == 0 || !finite(std) {
			return fmt.Errorf("std at index %d is %v", i, std)
		}
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
