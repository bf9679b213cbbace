package threat

import (
	"context"
	"fmt"
	"time"

	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

// StepRecorder times the sequential stages of a pipeline. Stages are
// registered up front as pending; Run moves one through running to
// completed or failed.
type StepRecorder struct {
	methodology string
	steps       []tm.ProcessingStep
	now         func() time.Time
}

// NewStepRecorder registers the named stages as pending.
func NewStepRecorder(methodology string, names ...string) *StepRecorder {
	r := &StepRecorder{methodology: methodology, now: time.Now}
	for _, n := range names {
		r.steps = append(r.steps, tm.ProcessingStep{Name: n, Status: tm.StepPending})
	}
	return r
}

// Run executes fn as the named stage. A stage that was not registered is
// appended. A cancelled context fails the stage without calling fn.
// Errors are returned as *StageError.
func (r *StepRecorder) Run(ctx context.Context, name string, fn func() error) error {
	i := r.index(name)
	step := &r.steps[i]
	step.Status = tm.StepRunning
	step.StartedAt = r.now()

	err := ctx.Err()
	if err == nil {
		err = safeCall(fn)
	}

	step.CompletedAt = r.now()
	step.DurationMs = step.CompletedAt.Sub(step.StartedAt).Milliseconds()
	if err != nil {
		step.Status = tm.StepFailed
		step.Error = err.Error()
		return &StageError{Methodology: r.methodology, Stage: name, Steps: r.Steps(), Err: err}
	}
	step.Status = tm.StepCompleted
	return nil
}

// Steps returns a copy of the recorded steps.
func (r *StepRecorder) Steps() []tm.ProcessingStep {
	return append([]tm.ProcessingStep(nil), r.steps...)
}

func (r *StepRecorder) index(name string) int {
	for i := range r.steps {
		if r.steps[i].Name == name {
			return i
		}
	}
	r.steps = append(r.steps, tm.ProcessingStep{Name: name, Status: tm.StepPending})
	return len(r.steps) - 1
}

// safeCall turns a panic inside a stage into an error so the step is
// marked failed and the analysis fails as a whole.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
