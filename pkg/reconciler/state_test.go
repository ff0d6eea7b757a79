package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/port"
)

func TestCountEOL(t *testing.T) {
	states := StateMap{
		"react":   "EOL",
		"angular": "EOL",
		"vue":     "Active",
		"ember":   "eol",
		"jquery":  "EOL ",
	}

	tests := []struct {
		name string
		ids  []string
		want int
	}{
		{name: "nil", ids: nil, want: 0},
		{name: "empty", ids: []string{}, want: 0},
		{name: "one eol one active", ids: []string{"react", "vue"}, want: 1},
		{name: "duplicates count each time", ids: []string{"react", "react"}, want: 2},
		{name: "all eol", ids: []string{"react", "angular"}, want: 2},
		{name: "unknown ids count zero", ids: []string{"svelte", "react"}, want: 1},
		{name: "lowercase is not eol", ids: []string{"ember"}, want: 0},
		{name: "no trimming", ids: []string{"jquery"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountEOL(tt.ids, states))
		})
	}
}

func TestCountEOLMatchesFilterLaw(t *testing.T) {
	states := StateMap{"a": "EOL", "b": "Active", "c": "EOL"}
	ids := []string{"a", "b", "c", "a", "d", "b", "c", "c"}

	want := 0
	for _, id := range ids {
		if states[id] == "EOL" {
			want++
		}
	}
	got := CountEOL(ids, states)
	assert.Equal(t, want, got)
	assert.LessOrEqual(t, got, len(ids))
}

func TestBuildStateMap(t *testing.T) {
	frameworks := []port.Entity{
		{Identifier: "react", Blueprint: "framework", Properties: map[string]any{"state": "EOL"}},
		{Identifier: "vue", Blueprint: "framework", Properties: map[string]any{"state": "Active"}},
		{Identifier: "react", Blueprint: "framework", Properties: map[string]any{"state": "Active"}},
	}

	states, err := BuildStateMap(frameworks, "state")
	require.NoError(t, err)
	assert.Equal(t, StateMap{"react": "Active", "vue": "Active"}, states)
}

func TestBuildStateMapErrors(t *testing.T) {
	tests := []struct {
		name      string
		framework port.Entity
		field     string
	}{
		{
			name:      "missing identifier",
			framework: port.Entity{Blueprint: "framework", Properties: map[string]any{"state": "EOL"}},
			field:     "identifier",
		},
		{
			name:      "missing state",
			framework: port.Entity{Identifier: "react", Blueprint: "framework", Properties: map[string]any{}},
			field:     "properties.state",
		},
		{
			name:      "non-string state",
			framework: port.Entity{Identifier: "react", Blueprint: "framework", Properties: map[string]any{"state": 1.0}},
			field:     "properties.state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildStateMap([]port.Entity{tt.framework}, "state")
			require.Error(t, err)

			var se *errors.SchemaError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.field, se.Field)
			assert.Equal(t, "framework", se.Blueprint)
		})
	}
}

func TestStateMapIsEOL(t *testing.T) {
	states := StateMap{"react": "EOL", "vue": "Active"}
	assert.True(t, states.IsEOL("react"))
	assert.False(t, states.IsEOL("vue"))
	assert.False(t, states.IsEOL("missing"))
}
