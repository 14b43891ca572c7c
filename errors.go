package sagachain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrCompensationDeclined is reported when a compensation returns false
	// without raising an error of its own.
	ErrCompensationDeclined = errors.New("compensation reported failure")

	// ErrUnknownStepType is returned when a step type has no registered constructor.
	ErrUnknownStepType = errors.New("step type not registered")

	// ErrStepTypeRegistered is returned when a step type is registered twice.
	ErrStepTypeRegistered = errors.New("step type already registered")

	// ErrBuilderFinalized is recorded when a builder is used after Build.
	ErrBuilderFinalized = errors.New("builder already built")

	// ErrNilAction is returned when a step is created without an action.
	ErrNilAction = errors.New("step has no action")
)

// StepError represents a failure of a step's forward action.
type StepError struct {
	Step StepName
	Err  error
}

// ActionFailed wraps err in a StepError for the given step.
func ActionFailed(step StepName, err error) *StepError {
	return &StepError{Step: step, Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// UndoError represents the failure of a single step's compensation.
type UndoError struct {
	Step StepName
	Err  error
}

// UndoFailed wraps err in an UndoError for the given step.
func UndoFailed(step StepName, err error) *UndoError {
	return &UndoError{Step: step, Err: err}
}

func (e *UndoError) Error() string {
	return fmt.Sprintf("compensation %s failed: %v", e.Step, e.Err)
}

func (e *UndoError) Unwrap() error {
	return e.Err
}

// CompensationError aggregates every compensation failure of one execution, in
// the order the compensations ran.
type CompensationError struct {
	errs *multierror.Error
}

// Append adds a compensation failure to the aggregate.
func (e *CompensationError) Append(err *UndoError) {
	e.errs = multierror.Append(e.errs, err)
}

// Len returns the number of collected failures.
func (e *CompensationError) Len() int {
	return len(e.Errors())
}

// Errors returns the collected failures. Each element is an *UndoError.
func (e *CompensationError) Errors() []error {
	if e == nil || e.errs == nil {
		return nil
	}
	return append([]error(nil), e.errs.Errors...)
}

// Steps returns the names of the steps whose compensation failed.
func (e *CompensationError) Steps() []StepName {
	var steps []StepName
	for _, err := range e.Errors() {
		var undoErr *UndoError
		if errors.As(err, &undoErr) {
			steps = append(steps, undoErr.Step)
		}
	}
	return steps
}

func (e *CompensationError) Error() string {
	errs := e.Errors()
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d compensation(s) failed: %s", len(errs), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected failures to errors.Is and errors.As.
func (e *CompensationError) Unwrap() []error {
	return e.Errors()
}
