// Package stage defines the generation stages of a planning run, their
// dependency graph and the immutable role and task catalog behind them.
package stage

import (
	"errors"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/rotisserie/eris"
)

// Stage is one generation step.
type Stage struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on"`
	// AbortOnNegative marks the gate stage: a negative verdict ends the run.
	AbortOnNegative bool `yaml:"abort_on_negative"`
	// ParseRetries is how many times the stage is re-invoked when its output
	// cannot be extracted.
	ParseRetries int `yaml:"parse_retries"`
	// Group is the stage's dependency level, filled by NewGraph.
	Group int `yaml:"-"`
}

// Graph is a validated stage DAG partitioned into dependency levels.
type Graph struct {
	stages map[string]Stage
	groups [][]Stage
	order  []string
	gate   string
}

// NewGraph validates stages and computes their groups. Dependencies must
// name known stages and may not form a cycle. At most one stage may abort
// on a negative verdict and it must not depend on anything. Exactly one
// stage may be left without dependents; its output is the run's result.
func NewGraph(stages ...Stage) (*Graph, error) {
	if len(stages) == 0 {
		return nil, eris.New("stage: graph has no stages")
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.Acyclic(), graph.PreventCycles())
	out := &Graph{stages: make(map[string]Stage, len(stages))}

	for _, s := range stages {
		if s.Name == "" {
			return nil, eris.New("stage: stage without a name")
		}
		if err := g.AddVertex(s.Name); err != nil {
			if errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil, eris.Errorf("stage: duplicate stage %q", s.Name)
			}
			return nil, eris.Wrapf(err, "stage: add %s", s.Name)
		}
		s.DependsOn = append([]string(nil), s.DependsOn...)
		out.stages[s.Name] = s

		if s.AbortOnNegative {
			if out.gate != "" {
				return nil, eris.Errorf("stage: both %q and %q abort on negative", out.gate, s.Name)
			}
			if len(s.DependsOn) > 0 {
				return nil, eris.Errorf("stage: gate %q must not have dependencies", s.Name)
			}
			out.gate = s.Name
		}
	}

	for _, s := range stages {
		for _, dep := range s.DependsOn {
			if _, ok := out.stages[dep]; !ok {
				return nil, eris.Errorf("stage: %q depends on unknown stage %q", s.Name, dep)
			}
			if err := g.AddEdge(dep, s.Name); err != nil {
				switch {
				case errors.Is(err, graph.ErrEdgeCreatesCycle):
					return nil, eris.Errorf("stage: dependency %s -> %s creates a cycle", dep, s.Name)
				case errors.Is(err, graph.ErrEdgeAlreadyExists):
					continue
				default:
					return nil, eris.Wrapf(err, "stage: add dependency %s -> %s", dep, s.Name)
				}
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, eris.Wrap(err, "stage: sort")
	}
	out.order = order

	// The gate implicitly precedes every other stage.
	consumed := make(map[string]bool, len(stages))
	for _, s := range stages {
		for _, dep := range s.DependsOn {
			consumed[dep] = true
		}
	}
	var finals []string
	for _, name := range order {
		if consumed[name] || (name == out.gate && len(order) > 1) {
			continue
		}
		finals = append(finals, name)
	}
	if len(finals) > 1 {
		return nil, eris.Errorf("stage: more than one final stage: %s", strings.Join(finals, ", "))
	}

	for _, name := range order {
		s := out.stages[name]
		level := 0
		for _, dep := range s.DependsOn {
			if l := out.stages[dep].Group + 1; l > level {
				level = l
			}
		}
		// Every stage runs after the gate, even without a declared dependency.
		if out.gate != "" && name != out.gate && level == 0 {
			level = 1
		}
		s.Group = level
		out.stages[name] = s
	}

	for _, name := range order {
		s := out.stages[name]
		for len(out.groups) <= s.Group {
			out.groups = append(out.groups, nil)
		}
		out.groups[s.Group] = append(out.groups[s.Group], s)
	}
	for _, grp := range out.groups {
		sort.Slice(grp, func(i, j int) bool { return grp[i].Name < grp[j].Name })
	}
	return out, nil
}

// Groups returns the stages partitioned by dependency level. Stages in a
// group depend only on stages in earlier groups.
func (g *Graph) Groups() [][]Stage {
	out := make([][]Stage, 0, len(g.groups))
	for _, grp := range g.groups {
		if len(grp) == 0 {
			continue
		}
		out = append(out, append([]Stage(nil), grp...))
	}
	return out
}

// Order returns stage names in a deterministic topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Stage looks up a stage by name.
func (g *Graph) Stage(name string) (Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Gate returns the stage that aborts on a negative verdict, if any.
func (g *Graph) Gate() (Stage, bool) {
	if g.gate == "" {
		return Stage{}, false
	}
	return g.stages[g.gate], true
}

// Final returns the name of the only stage nothing depends on.
func (g *Graph) Final() string {
	return g.order[len(g.order)-1]
}
