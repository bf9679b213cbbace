package threat

import (
	"fmt"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// ValidationError is returned when an analysis request is malformed.
// Callers surface it as a 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation error: " + e.Msg }

// StageError reports a failed processing step of a methodology engine.
// Steps is the pipeline timeline at the moment of failure.
type StageError struct {
	Methodology string
	Stage       string
	Steps       []tm.ProcessingStep
	Err         error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage %q: %v", e.Methodology, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// DreadRangeError reports a DREAD dimension outside [1,10].
type DreadRangeError struct {
	Dimension string
	Value     float64
}

func (e *DreadRangeError) Error() string {
	return fmt.Sprintf("dread %s score %.2f out of range [1,10]", e.Dimension, e.Value)
}
