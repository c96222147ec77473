package stage

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Role describes the persona a stage's generation call adopts.
type Role struct {
	Name        string   `yaml:"name"`
	Goal        string   `yaml:"goal"`
	Backstory   string   `yaml:"backstory"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int64    `yaml:"max_tokens"`
}

// Task is the instruction template for a stage. Description and
// ExpectedOutput are text/template sources.
type Task struct {
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
	// Schema names a document type whose JSON schema is appended to the
	// prompt ("itinerary" is the only one known).
	Schema string `yaml:"schema"`
}

type catalogFile struct {
	Stages []struct {
		Stage `yaml:",inline"`
		Role  Role `yaml:"role"`
		Task  Task `yaml:"task"`
	} `yaml:"stages"`
}

// Catalog is the role and task configuration for every stage. It is loaded
// once and never modified.
type Catalog struct {
	graph *Graph
	roles map[string]Role
	tasks map[string]Task
}

// LoadCatalog reads a catalog file. An empty path loads the built-in one.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stage: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "stage: parse catalog")
	}

	c := &Catalog{
		roles: make(map[string]Role, len(f.Stages)),
		tasks: make(map[string]Task, len(f.Stages)),
	}
	stages := make([]Stage, 0, len(f.Stages))
	for _, s := range f.Stages {
		if strings.TrimSpace(s.Task.Description) == "" {
			return nil, eris.Errorf("stage: %q has no task description", s.Name)
		}
		if s.ParseRetries < 0 {
			return nil, eris.Errorf("stage: %q has negative parse_retries", s.Name)
		}
		stages = append(stages, s.Stage)
		c.roles[s.Name] = s.Role
		c.tasks[s.Name] = s.Task
	}

	g, err := NewGraph(stages...)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Gate(); !ok {
		return nil, eris.New("stage: catalog has no gate stage")
	}
	c.graph = g
	return c, nil
}

// Graph returns the validated stage graph.
func (c *Catalog) Graph() *Graph { return c.graph }

// Role returns the role for a stage.
func (c *Catalog) Role(stage string) (Role, bool) {
	r, ok := c.roles[stage]
	return r, ok
}

// Task returns the task for a stage.
func (c *Catalog) Task(stage string) (Task, bool) {
	t, ok := c.tasks[stage]
	return t, ok
}
