package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(grp []Stage) []string {
	out := make([]string, len(grp))
	for i, s := range grp {
		out[i] = s.Name
	}
	return out
}

func TestNewGraph_Groups(t *testing.T) {
	t.Parallel()

	g, err := NewGraph(
		Stage{Name: "finalize", DependsOn: []string{"transport", "lodging", "itinerary"}},
		Stage{Name: "itinerary", DependsOn: []string{"feasibility"}},
		Stage{Name: "lodging", DependsOn: []string{"feasibility"}},
		Stage{Name: "transport", DependsOn: []string{"feasibility"}},
		Stage{Name: "feasibility", AbortOnNegative: true},
	)
	require.NoError(t, err)

	groups := g.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"feasibility"}, names(groups[0]))
	assert.Equal(t, []string{"itinerary", "lodging", "transport"}, names(groups[1]))
	assert.Equal(t, []string{"finalize"}, names(groups[2]))

	assert.Equal(t, "finalize", g.Final())
	gate, ok := g.Gate()
	require.True(t, ok)
	assert.Equal(t, "feasibility", gate.Name)

	s, ok := g.Stage("lodging")
	require.True(t, ok)
	assert.Equal(t, 1, s.Group)
}

func TestNewGraph_OrderRespectsDependencies(t *testing.T) {
	t.Parallel()

	g, err := NewGraph(
		Stage{Name: "c", DependsOn: []string{"b"}},
		Stage{Name: "b", DependsOn: []string{"a"}},
		Stage{Name: "a"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, g.Order())
	assert.Len(t, g.Groups(), 3)
	_, ok := g.Gate()
	assert.False(t, ok)
}

func TestNewGraph_IndependentStageRunsAfterGate(t *testing.T) {
	t.Parallel()

	g, err := NewGraph(
		Stage{Name: "gate", AbortOnNegative: true},
		Stage{Name: "weather"},
	)
	require.NoError(t, err)
	groups := g.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"weather"}, names(groups[1]))
}

func TestNewGraph_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stages  []Stage
		wantErr string
	}{
		{"empty", nil, "no stages"},
		{"unnamed", []Stage{{}}, "without a name"},
		{"duplicate", []Stage{{Name: "a"}, {Name: "a"}}, "duplicate"},
		{"unknown dep", []Stage{{Name: "a", DependsOn: []string{"ghost"}}}, "unknown stage"},
		{"cycle", []Stage{{Name: "a", DependsOn: []string{"b"}}, {Name: "b", DependsOn: []string{"a"}}}, "cycle"},
		{"self cycle", []Stage{{Name: "a", DependsOn: []string{"a"}}}, "cycle"},
		{"two gates", []Stage{{Name: "a", AbortOnNegative: true}, {Name: "b", AbortOnNegative: true}}, "abort on negative"},
		{"gate with deps", []Stage{{Name: "a"}, {Name: "b", AbortOnNegative: true, DependsOn: []string{"a"}}}, "must not have dependencies"},
		{"two finals", []Stage{{Name: "g", AbortOnNegative: true}, {Name: "a"}, {Name: "b"}}, "more than one final stage: a, b"},
		{"dangling branch", []Stage{{Name: "a"}, {Name: "b", DependsOn: []string{"a"}}, {Name: "c", DependsOn: []string{"a"}}}, "more than one final stage: b, c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewGraph(tt.stages...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewGraph_SingleFinalStage(t *testing.T) {
	t.Parallel()

	g, err := NewGraph(
		Stage{Name: "gate", AbortOnNegative: true},
		Stage{Name: "weather"},
		Stage{Name: "summary", DependsOn: []string{"weather"}},
	)
	require.NoError(t, err)
	assert.Equal(t, "summary", g.Final())

	solo, err := NewGraph(Stage{Name: "gate", AbortOnNegative: true})
	require.NoError(t, err)
	assert.Equal(t, "gate", solo.Final())
}

func TestGraph_GroupsReturnsCopies(t *testing.T) {
	t.Parallel()

	g, err := NewGraph(Stage{Name: "a"}, Stage{Name: "b", DependsOn: []string{"a"}})
	require.NoError(t, err)

	groups := g.Groups()
	groups[0][0].Name = "mutated"
	assert.Equal(t, "a", g.Groups()[0][0].Name)
}
