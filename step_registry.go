package sagachain

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// StepType names a kind of step that can be constructed from arguments.
type StepType string

// StepConstructor builds the Action of a step from its merged arguments.
type StepConstructor func(args Args) (Action, error)

// Registry is a registry of step constructors that can be shared across builders.
//
// Steps are added to a saga by type rather than by value so the builder can merge
// its default arguments with the call-specific ones before the step exists. The
// constructor receives the merged mapping and returns a fresh Action.
type Registry struct {
	constructors *xsync.MapOf[StepType, StepConstructor]
}

// NewRegistry creates a new, empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: xsync.NewMapOf[StepType, StepConstructor](),
	}
}

// Register adds a constructor for the given step type.
func (r *Registry) Register(stepType StepType, ctor StepConstructor) error {
	if ctor == nil {
		return fmt.Errorf("step type '%s': nil constructor", stepType)
	}
	if _, loaded := r.constructors.LoadOrStore(stepType, ctor); loaded {
		return fmt.Errorf("step type '%s': %w", stepType, ErrStepTypeRegistered)
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(stepType StepType, ctor StepConstructor) {
	if err := r.Register(stepType, ctor); err != nil {
		panic(err)
	}
}

// Get retrieves the constructor for a step type.
func (r *Registry) Get(stepType StepType) (StepConstructor, error) {
	ctor, ok := r.constructors.Load(stepType)
	if !ok {
		return nil, fmt.Errorf("step type '%s': %w", stepType, ErrUnknownStepType)
	}
	return ctor, nil
}

// Types returns the registered step types in sorted order.
func (r *Registry) Types() []StepType {
	types := make([]StepType, 0, r.constructors.Size())
	r.constructors.Range(func(stepType StepType, _ StepConstructor) bool {
		types = append(types, stepType)
		return true
	})
	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})
	return types
}

// New constructs a step of the given type with args.
func (r *Registry) New(stepType StepType, name StepName, args Args) (*Step, error) {
	ctor, err := r.Get(stepType)
	if err != nil {
		return nil, err
	}

	action, err := ctor(args.Clone())
	if err != nil {
		return nil, fmt.Errorf("constructing step type '%s': %w", stepType, err)
	}
	return NewStep(name, action, args)
}
