package agent

import (
	"context"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/credential"
	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/stage"
)

const jsonOnly = "Respond with a single JSON object and nothing else."

// prompt holds the parsed templates of one stage.
type prompt struct {
	role      stage.Role
	goal      *template.Template
	backstory *template.Template
	task      *template.Template
	expected  *template.Template
	schema    string
}

// Invoker renders stage prompts from the catalog and sends them to a Backend.
// It is safe for concurrent use.
type Invoker struct {
	backend Backend
	prompts map[string]*prompt
}

// NewInvoker parses every template in the catalog up front.
func NewInvoker(backend Backend, catalog *stage.Catalog) (*Invoker, error) {
	inv := &Invoker{backend: backend, prompts: make(map[string]*prompt)}
	for _, name := range catalog.Graph().Order() {
		role, _ := catalog.Role(name)
		task, _ := catalog.Task(name)

		p := &prompt{role: role}
		var err error
		if p.goal, err = parse(name+".goal", role.Goal); err != nil {
			return nil, err
		}
		if p.backstory, err = parse(name+".backstory", role.Backstory); err != nil {
			return nil, err
		}
		if p.task, err = parse(name+".description", task.Description); err != nil {
			return nil, err
		}
		if p.expected, err = parse(name+".expected_output", task.ExpectedOutput); err != nil {
			return nil, err
		}
		if task.Schema != "" {
			if p.schema, err = SchemaFor(task.Schema); err != nil {
				return nil, eris.Wrapf(err, "agent: stage %s", name)
			}
		}
		inv.prompts[name] = p
	}
	return inv, nil
}

func parse(name, src string) (*template.Template, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(src)
	if err != nil {
		return nil, eris.Wrapf(err, "agent: parse template %s", name)
	}
	return t, nil
}

// Provider names the backend the invoker calls.
func (i *Invoker) Provider() string { return i.backend.Provider() }

// Render builds the completion for stage from data without calling the
// backend.
func (i *Invoker) Render(stageName string, data map[string]any) (Completion, error) {
	p, ok := i.prompts[stageName]
	if !ok {
		return Completion{}, eris.Errorf("agent: unknown stage %q", stageName)
	}

	goal, err := execute(p.goal, data)
	if err != nil {
		return Completion{}, err
	}
	backstory, err := execute(p.backstory, data)
	if err != nil {
		return Completion{}, err
	}
	desc, err := execute(p.task, data)
	if err != nil {
		return Completion{}, err
	}
	expected, err := execute(p.expected, data)
	if err != nil {
		return Completion{}, err
	}

	var sys strings.Builder
	if p.role.Name != "" {
		sys.WriteString("You are the " + p.role.Name + ".\n")
	}
	if goal != "" {
		sys.WriteString("Goal: " + goal + "\n")
	}
	if backstory != "" {
		sys.WriteString("\n" + backstory + "\n")
	}
	sys.WriteString("\n" + jsonOnly)

	var user strings.Builder
	user.WriteString(desc)
	if expected != "" {
		user.WriteString("\n\nExpected output:\n" + expected)
	}
	if p.schema != "" {
		user.WriteString("\n\nJSON schema:\n```json\n" + p.schema + "\n```")
	}

	return Completion{
		Model:       p.role.Model,
		System:      strings.TrimSpace(sys.String()),
		Prompt:      strings.TrimSpace(user.String()),
		Temperature: p.role.Temperature,
		MaxTokens:   p.role.MaxTokens,
		JSONMode:    true,
	}, nil
}

// Invoke renders stage and performs one generation call with cred.
func (i *Invoker) Invoke(ctx context.Context, cred credential.Credential, stageName string, data map[string]any) (*Reply, error) {
	c, err := i.Render(stageName, data)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("agent: invoking stage",
		zap.String("stage", stageName),
		zap.String("provider", i.backend.Provider()),
		zap.Stringer("credential", cred),
		zap.Int("prompt_len", len(c.Prompt)),
	)

	reply, err := i.backend.Complete(ctx, cred.Secret(), c)
	if err != nil {
		return nil, eris.Wrapf(err, "agent: %s", stageName)
	}
	return reply, nil
}

func execute(t *template.Template, data map[string]any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", eris.Wrapf(err, "agent: render %s", t.Name())
	}
	return strings.TrimSpace(b.String()), nil
}

// SchemaFor returns the indented JSON schema of a named document type.
func SchemaFor(name string) (string, error) {
	var v any
	switch name {
	case "itinerary":
		v = &model.Itinerary{}
	default:
		return "", eris.Errorf("agent: unknown schema %q", name)
	}

	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "agent: marshal schema")
	}
	return string(b), nil
}
