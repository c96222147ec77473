// Package recovery classifies pipeline failures, records fatal ones to an
// append-only diagnostic log and keeps internal detail out of caller-facing
// errors.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/trip-planner/internal/credential"
	"github.com/sells-group/trip-planner/internal/extract"
)

// Kind is a failure classification.
type Kind string

const (
	KindConfiguration        Kind = "configuration"
	KindParse                Kind = "parse"
	KindFeasibilityRejection Kind = "feasibility_rejection"
	KindStageExecution       Kind = "stage_execution"
	KindEnrichmentLookup     Kind = "enrichment_lookup"
)

// Fatal reports whether a failure of this kind ends the run as failed.
// A rejection is a terminal outcome, not a failure; lookup misses degrade.
func (k Kind) Fatal() bool {
	switch k {
	case KindConfiguration, KindParse, KindStageExecution:
		return true
	default:
		return false
	}
}

// Failure is a classified error raised while executing a stage.
type Failure struct {
	Kind  Kind
	Stage string
	// Raw is the model text involved, if any. Never shown to callers.
	Raw string
	Err error
}

func (f *Failure) Error() string {
	if f.Stage == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s in stage %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Classify maps err raised by stage into a Failure. An err that already is
// a Failure is returned as is.
func Classify(stage string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, credential.ErrNoCredentials) {
		return &Failure{Kind: KindConfiguration, Stage: stage, Err: err}
	}
	var pe *extract.ParseError
	if errors.As(err, &pe) {
		return &Failure{Kind: KindParse, Stage: stage, Raw: pe.Raw, Err: err}
	}
	return &Failure{Kind: KindStageExecution, Stage: stage, Err: err}
}

// NewLookupFailure classifies an enrichment lookup error.
func NewLookupFailure(query string, err error) *Failure {
	return &Failure{Kind: KindEnrichmentLookup, Stage: "enrich", Raw: query, Err: err}
}

// ExecutionError is the only error a fatal failure surfaces to callers. It
// names the run so operators can find the diagnostic entry.
type ExecutionError struct {
	RunID string
	Kind  Kind
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("trip planning failed (run %s)", e.RunID)
}

type runIDKey struct{}

// WithRunID returns a context carrying the run id for failure reports made
// below the executor.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id stored by WithRunID, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
