package sagachain

import (
	"fmt"

	"github.com/fortressi/sagachain/set"
	"go.uber.org/zap"
)

// DefaultRegistry is the registry used by builders created without WithRegistry.
var DefaultRegistry = NewRegistry()

// Register adds a step constructor to DefaultRegistry.
func Register(stepType StepType, ctor StepConstructor) error {
	return DefaultRegistry.Register(stepType, ctor)
}

// lambdaStepName is the name given to steps added with LambdaAction.
const lambdaStepName StepName = "lambda"

// Builder assembles the ordered steps of a Saga.
//
// Every step the builder constructs receives the builder's default arguments
// overridden by the arguments given for that step. The builder is not safe for
// concurrent use. Errors are sticky: the first one is kept and returned by Build,
// and the calls in between are no-ops, so calls can be chained freely.
type Builder struct {
	name     SagaName
	steps    []*Step
	defaults Args
	registry *Registry
	logger   *zap.Logger
	observer Observer

	stepNames *set.Set[StepName]
	err       error
	built     bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithName sets the name of the built saga, used in logs and metrics.
func WithName(name SagaName) BuilderOption {
	return func(b *Builder) {
		b.name = name
	}
}

// WithDefaultArgs sets the arguments shared by every step the builder
// constructs. The mapping is copied; later changes to it have no effect.
func WithDefaultArgs(args Args) BuilderOption {
	return func(b *Builder) {
		b.defaults = args.Clone()
	}
}

// WithSteps seeds the builder with ready-made steps, in order.
func WithSteps(steps ...*Step) BuilderOption {
	return func(b *Builder) {
		for _, step := range steps {
			if step == nil {
				b.fail(fmt.Errorf("seed step: %w", ErrNilAction))
				return
			}
			b.append(step)
		}
	}
}

// WithRegistry sets the registry Action looks step types up in.
func WithRegistry(registry *Registry) BuilderOption {
	return func(b *Builder) {
		b.registry = registry
	}
}

// WithLogger sets the logger of the built saga.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithObserver sets the observer notified while the built saga executes.
func WithObserver(observer Observer) BuilderOption {
	return func(b *Builder) {
		b.observer = observer
	}
}

// NewBuilder creates a new Builder, used for method chaining:
//
//	saga, err := sagachain.NewBuilder(sagachain.WithDefaultArgs(sagachain.Args{"override": true})).
//		Action("upload_file", nil).
//		Action("execute_file", sagachain.Args{"file_type": "sh"}).
//		LambdaAction(notify, nil, nil).
//		Build()
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		name:      "saga",
		steps:     []*Step{},
		defaults:  Args{},
		registry:  DefaultRegistry,
		logger:    zap.NewNop(),
		observer:  NopObserver{},
		stepNames: &set.Set[StepName]{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Action adds a step of a registered type. The step is constructed with the
// builder defaults overridden by args, and named after its type.
func (b *Builder) Action(stepType StepType, args Args) *Builder {
	if !b.usable() {
		return b
	}

	step, err := b.registry.New(stepType, StepName(stepType), b.merged(args))
	if err != nil {
		b.fail(err)
		return b
	}
	b.append(step)
	return b
}

// LambdaAction adds a step built from a pair of functions. A nil undo is a
// compensation that always succeeds.
func (b *Builder) LambdaAction(do DoFunc, undo UndoFunc, args Args) *Builder {
	if !b.usable() {
		return b
	}

	step, err := NewLambdaStep(lambdaStepName, do, undo, b.merged(args))
	if err != nil {
		b.fail(err)
		return b
	}
	b.append(step)
	return b
}

// Step adds a step around a ready Action under the given name.
func (b *Builder) Step(name StepName, action Action, args Args) *Builder {
	if !b.usable() {
		return b
	}

	step, err := NewStep(name, action, b.merged(args))
	if err != nil {
		b.fail(err)
		return b
	}
	b.append(step)
	return b
}

// Err returns the first error recorded by the builder, if any.
func (b *Builder) Err() error {
	return b.err
}

// Build finalizes the builder and returns a Saga over the accumulated steps.
// The builder cannot be used afterwards.
func (b *Builder) Build() (*Saga, error) {
	if b.built {
		return nil, ErrBuilderFinalized
	}
	b.built = true

	if b.err != nil {
		return nil, b.err
	}

	steps := b.steps
	b.steps = nil
	return newSaga(b.name, steps, b.logger, b.observer), nil
}

func (b *Builder) usable() bool {
	if b.built {
		b.fail(ErrBuilderFinalized)
		return false
	}
	return b.err == nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) merged(args Args) Args {
	return MergeArgs(b.defaults, args)
}

// append adds step, renaming a copy of it when its name is already taken so
// every step of a saga has a distinct name.
func (b *Builder) append(step *Step) {
	name := step.Name()
	for n := 2; b.stepNames.Contains(name); n++ {
		name = StepName(fmt.Sprintf("%s#%d", step.Name(), n))
	}
	b.stepNames.Insert(name)

	if name != step.Name() {
		step = step.clone()
		step.name = name
	}
	b.steps = append(b.steps, step)
}
