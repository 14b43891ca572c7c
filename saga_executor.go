package sagachain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Saga is an immutable, ordered sequence of steps built by a Builder.
//
// Execute may be called any number of times, including concurrently: every call
// works on its own copies of the steps and its own running arguments.
type Saga struct {
	name     SagaName
	steps    []*Step
	logger   *zap.Logger
	observer Observer
}

func newSaga(name SagaName, steps []*Step, logger *zap.Logger, observer Observer) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Saga{
		name:     name,
		steps:    steps,
		logger:   logger,
		observer: observer,
	}
}

// Name returns the saga name.
func (s *Saga) Name() SagaName {
	return s.name
}

// Len returns the number of steps.
func (s *Saga) Len() int {
	return len(s.steps)
}

// Steps returns the step names in execution order.
func (s *Saga) Steps() []StepName {
	names := make([]StepName, len(s.steps))
	for i, step := range s.steps {
		names[i] = step.Name()
	}
	return names
}

// execution holds the per-call state of Execute.
type execution struct {
	saga    *Saga
	result  *Result
	logger  *zap.Logger
	running Args
	entered []*Step
}

// Execute runs the steps in order. Each step receives the initial arguments
// merged with the outputs of every step before it. When a step fails, every
// step entered so far, the failing one included, is compensated in reverse order.
//
// Execute never returns an error: failures are reported through the Result. ctx
// is passed to each action and compensation as is; Execute itself never cancels
// or times out a step.
func (s *Saga) Execute(ctx context.Context, initial Args) *Result {
	id := NewSagaID()
	e := &execution{
		saga:    s,
		result:  newResult(id, s.name),
		logger:  s.logger.With(zap.String("saga", string(s.name)), zap.Stringer("saga_id", id)),
		running: initial.Clone(),
		entered: make([]*Step, 0, len(s.steps)),
	}

	e.logger.Debug("saga started", zap.Int("steps", len(s.steps)))

	for index, template := range s.steps {
		step := template.clone()
		// Entered before acting so a step that fails partway is compensated too.
		e.entered = append(e.entered, step)

		if err := e.act(ctx, index, step); err != nil {
			e.result.Outcome = OutcomeFailed
			e.result.Err = err
			e.compensate(ctx)
			return e.finish()
		}
	}

	e.result.Outcome = OutcomeSucceeded
	return e.finish()
}

// act runs a single step and propagates its output.
func (e *execution) act(ctx context.Context, index int, step *Step) *StepError {
	log := e.logger.With(zap.String("step", string(step.Name())), zap.Int("index", index))
	e.record(index, step, EventStarted)
	log.Debug("acting")

	start := time.Now()
	out, err := step.Act(ctx, e.running)
	e.saga.observer.StepActed(e.saga.name, step.Name(), err, time.Since(start))

	if err != nil {
		e.record(index, step, EventFailed)
		log.Warn("action failed", zap.Error(err))
		stepErr, ok := err.(*StepError)
		if !ok {
			stepErr = ActionFailed(step.Name(), err)
		}
		return stepErr
	}

	e.record(index, step, EventSucceeded)
	e.running = MergeArgs(e.running, out)
	e.result.Args = MergeArgs(e.result.Args, out)
	log.Debug("action succeeded", zap.Strings("outputs", out.Keys()))
	return nil
}

// compensate undoes the entered steps in reverse order. It never stops early.
func (e *execution) compensate(ctx context.Context) {
	var compErr *CompensationError

	for index := len(e.entered) - 1; index >= 0; index-- {
		step := e.entered[index]
		log := e.logger.With(zap.String("step", string(step.Name())), zap.Int("index", index))
		e.record(index, step, EventUndoStarted)

		start := time.Now()
		err := step.Compensate(ctx)
		e.saga.observer.StepCompensated(e.saga.name, step.Name(), err, time.Since(start))

		if err == nil {
			e.record(index, step, EventUndoFinished)
			log.Debug("compensated")
			continue
		}

		// TODO: hook a retry policy for failed compensations in here.
		e.record(index, step, EventUndoFailed)
		log.Error("compensation failed", zap.Error(err))
		undoErr, ok := err.(*UndoError)
		if !ok {
			undoErr = UndoFailed(step.Name(), err)
		}
		if compErr == nil {
			compErr = &CompensationError{}
		}
		compErr.Append(undoErr)
	}

	if compErr != nil {
		e.result.CompensationsSucceeded = false
		e.result.CompensationErr = compErr
	}
}

func (e *execution) record(index int, step *Step, eventType StepEventType) {
	err := e.result.Log.Record(&StepEvent{
		SagaID:    e.result.ID,
		Index:     index,
		Step:      step.Name(),
		EventType: eventType,
	})
	if err != nil {
		e.logger.Warn("failed to record saga event", zap.Error(err))
	}
}

func (e *execution) finish() *Result {
	e.result.EndTime = time.Now()

	fields := []zap.Field{
		zap.Stringer("outcome", e.result.Outcome),
		zap.Duration("duration", e.result.Duration()),
	}
	switch {
	case e.result.Succeeded():
		e.logger.Info("saga succeeded", fields...)
	case e.result.CompensationsSucceeded:
		e.logger.Info("saga failed and was compensated", append(fields, zap.Error(e.result.Err))...)
	default:
		e.logger.Error("saga failed and compensation was incomplete",
			append(fields, zap.Error(e.result.Err), zap.NamedError("compensation_error", e.result.CompensationErr))...)
	}

	e.saga.observer.SagaFinished(e.saga.name, e.result)
	return e.result
}
