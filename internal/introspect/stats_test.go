package introspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatsExplicit(t *testing.T) {
	s := ParseStats(`{"means": [123.675, 116.28, 103.53], "vars": [58.395, 57.12, 57.375]}`)
	assert.Equal(t, StatsExplicit, s.Source)
	assert.Empty(t, s.Reason)
	assert.InDeltaSlice(t, []float32{123.675, 116.28, 103.53}, s.Means, 1e-4)
	assert.InDeltaSlice(t, []float32{58.395, 57.12, 57.375}, s.Stds, 1e-4)
}

func TestParseStatsStdsAlias(t *testing.T) {
	s := ParseStats(`{"means": [0.5], "stds": [0.25]}`)
	assert.Equal(t, StatsExplicit, s.Source)
	assert.Equal(t, []float32{0.25}, s.Stds)
}

func TestParseStatsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not json", "trained on imagenet"},
		{"json array", "[1, 2]"},
		{"missing means", `{"vars": [1]}`},
		{"missing vars", `{"means": [0]}`},
		{"wrong type", `{"means": "0", "vars": [1]}`},
		{"non numeric entries", `{"means": ["a"], "vars": [1]}`},
		{"empty lists", `{"means": [], "vars": []}`},
		{"length mismatch", `{"means": [1, 2, 3], "vars": [1, 2]}`},
		{"zero std", `{"means": [0], "vars": [0]}`},
		{"mean overflows float32", `{"means": [1e39], "vars": [1]}`},
		{"std overflows float32", `{"means": [0], "vars": [1, -1e39, 1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseStats(tt.doc)
			assert.Equal(t, StatsDefault, s.Source)
			assert.Equal(t, []float32{0}, s.Means)
			assert.Equal(t, []float32{1}, s.Stds)
			assert.NotEmpty(t, s.Reason)
		})
	}
}

func TestParseStatsBroadcastableLengths(t *testing.T) {
	s := ParseStats(`{"means": [127.5], "vars": [1, 2, 3]}`)
	assert.Equal(t, StatsExplicit, s.Source)
}

func TestStatsSourceString(t *testing.T) {
	assert.Equal(t, "default", StatsDefault.String())
	assert.Equal(t, "explicit", StatsExplicit.String())
	assert.Equal(t, "unknown(7)", StatsSource(7).String())
}
