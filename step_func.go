package sagachain

import (
	"context"
	"fmt"
)

// DoFunc is the function form of Action.Do.
type DoFunc func(ctx context.Context, args Args) (Args, error)

// UndoFunc is the function form of Action.Undo.
type UndoFunc func(ctx context.Context, args Args) (bool, error)

// ActionFuncs is an implementation of Action that uses ordinary functions.
type ActionFuncs struct {
	doFunc   DoFunc
	undoFunc UndoFunc
}

// NewActionFuncs constructs a new ActionFuncs from a pair of functions.
// A nil undo is replaced by NoOpUndo.
func NewActionFuncs(do DoFunc, undo UndoFunc) *ActionFuncs {
	if undo == nil {
		undo = NoOpUndo
	}
	return &ActionFuncs{
		doFunc:   do,
		undoFunc: undo,
	}
}

// NoOpUndo is a compensation that does nothing and reports success.
func NoOpUndo(_ context.Context, _ Args) (bool, error) {
	return true, nil
}

// Do implements the Action interface for ActionFuncs.
func (af *ActionFuncs) Do(ctx context.Context, args Args) (Args, error) {
	return af.doFunc(ctx, args)
}

// Undo implements the Action interface for ActionFuncs.
func (af *ActionFuncs) Undo(ctx context.Context, args Args) (bool, error) {
	return af.undoFunc(ctx, args)
}

// String implements the fmt.Stringer interface for ActionFuncs.
func (af *ActionFuncs) String() string {
	return fmt.Sprintf("ActionFuncs[%p]", af)
}
