package pipeline

import (
	"errors"

	"github.com/sells-group/trip-planner/internal/extract"
)

// OutputKind tags the variant of a StageOutput.
type OutputKind int

const (
	// OutputRawText is text from which a JSON object was recovered.
	OutputRawText OutputKind = iota
	// OutputExtractionFailure is text with no recoverable JSON object.
	OutputExtractionFailure
)

func (k OutputKind) String() string {
	if k == OutputExtractionFailure {
		return "extraction_failure"
	}
	return "raw_text"
}

// StageOutput is what a generation call produced. The two variants are
// RawText and ExtractionFailure; switch on Kind or a type switch.
type StageOutput interface {
	Kind() OutputKind
	Text() string
	stageOutput()
}

// RawText is a successfully parsed stage output.
type RawText struct {
	text  string
	Value extract.Value
}

// Kind implements StageOutput.
func (RawText) Kind() OutputKind { return OutputRawText }

// Text returns the model text exactly as received.
func (r RawText) Text() string { return r.text }

func (RawText) stageOutput() {}

// ExtractionFailure is stage output the extractor could not parse.
type ExtractionFailure struct {
	text string
	Err  *extract.ParseError
}

// Kind implements StageOutput.
func (ExtractionFailure) Kind() OutputKind { return OutputExtractionFailure }

// Text returns the model text exactly as received.
func (f ExtractionFailure) Text() string { return f.text }

func (ExtractionFailure) stageOutput() {}

// Classify runs the extractor over text and returns the matching variant.
func Classify(text string) StageOutput {
	v, err := extract.Extract(text)
	if err != nil {
		var pe *extract.ParseError
		if !errors.As(err, &pe) {
			pe = &extract.ParseError{Raw: text, Reason: err.Error(), Err: err}
		}
		return ExtractionFailure{text: text, Err: pe}
	}
	return RawText{text: text, Value: v}
}
