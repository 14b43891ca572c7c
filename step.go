package sagachain

import (
	"context"
	"fmt"
)

// StepName identifies a step within a saga.
type StepName string

// String returns the string representation of the StepName.
func (n StepName) String() string {
	return string(n)
}

// Action represents the building block of sagas: a forward action paired with
// the compensation that undoes its side effects.
type Action interface {
	// Do performs the forward action with the merged step arguments and returns
	// the values it wants to hand to later steps. A nil mapping is treated as empty.
	Do(ctx context.Context, args Args) (Args, error)

	// Undo attempts to reverse the side effects of Do. It may run even when Do
	// failed partway, so it must tolerate partial or absent results. Returning
	// false without an error reports a failed compensation.
	Undo(ctx context.Context, args Args) (bool, error)
}

// Step binds an Action to its name and stored argument mapping.
//
// A Step is not safe for concurrent use: Act merges into the stored mapping.
// Saga.Execute runs on per-execution copies of its steps, but the Action value is
// shared between copies and any state it keeps is the author's concern.
type Step struct {
	name   StepName
	action Action
	args   Args
}

// NewStep creates a step around action. The step keeps its own copy of args.
func NewStep(name StepName, action Action, args Args) (*Step, error) {
	if action == nil {
		return nil, fmt.Errorf("step %s: %w", name, ErrNilAction)
	}
	return &Step{
		name:   name,
		action: action,
		args:   args.Clone(),
	}, nil
}

// NewLambdaStep creates a step from a pair of functions.
func NewLambdaStep(name StepName, do DoFunc, undo UndoFunc, args Args) (*Step, error) {
	if do == nil {
		return nil, fmt.Errorf("step %s: %w", name, ErrNilAction)
	}
	return NewStep(name, NewActionFuncs(do, undo), args)
}

// Name returns the name of the step.
func (s *Step) Name() StepName {
	return s.name
}

// Action returns the action the step runs.
func (s *Step) Action() Action {
	return s.action
}

// Args returns a copy of the step's stored arguments.
func (s *Step) Args() Args {
	return s.args.Clone()
}

// Act merges kwargs into the stored arguments, kwargs winning on conflicts, and
// runs the forward action with the result. Failures, panics included, are
// returned as a *StepError.
func (s *Step) Act(ctx context.Context, kwargs Args) (out Args, err error) {
	s.args = MergeArgs(s.args, kwargs)

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, ActionFailed(s.name, fmt.Errorf("panic: %v", r))
		}
	}()

	result, doErr := s.action.Do(ctx, s.args.Clone())
	if doErr != nil {
		return nil, ActionFailed(s.name, doErr)
	}
	if result == nil {
		result = Args{}
	}
	return result, nil
}

// Compensate runs the compensation with the stored arguments, as last merged by
// Act. An error, a panic or a false report are all returned as an *UndoError.
func (s *Step) Compensate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = UndoFailed(s.name, fmt.Errorf("panic: %v", r))
		}
	}()

	ok, undoErr := s.action.Undo(ctx, s.args.Clone())
	if undoErr != nil {
		return UndoFailed(s.name, undoErr)
	}
	if !ok {
		return UndoFailed(s.name, ErrCompensationDeclined)
	}
	return nil
}

// clone returns a copy with its own argument mapping, sharing the action.
func (s *Step) clone() *Step {
	return &Step{
		name:   s.name,
		action: s.action,
		args:   s.args.Clone(),
	}
}

// String implements the fmt.Stringer interface for Step.
func (s *Step) String() string {
	return fmt.Sprintf("Step[%s]", s.name)
}
