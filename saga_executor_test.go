package sagachain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// callRecorder keeps the order in which actions and compensations ran.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// recordingAction is a test Action with configurable behaviour.
type recordingAction struct {
	name     string
	recorder *callRecorder
	output   Args
	doErr    error
	undoOK   bool
	undoErr  error

	doArgs   Args
	undoArgs Args
}

func newRecordingAction(name string, recorder *callRecorder, output Args) *recordingAction {
	return &recordingAction{
		name:     name,
		recorder: recorder,
		output:   output,
		undoOK:   true,
	}
}

func (a *recordingAction) Do(ctx context.Context, args Args) (Args, error) {
	a.recorder.add("do:" + a.name)
	a.doArgs = args
	if a.doErr != nil {
		return nil, a.doErr
	}
	return a.output, nil
}

func (a *recordingAction) Undo(ctx context.Context, args Args) (bool, error) {
	a.recorder.add("undo:" + a.name)
	a.undoArgs = args
	return a.undoOK, a.undoErr
}

func buildSaga(t *testing.T, actions ...*recordingAction) *Saga {
	t.Helper()
	builder := NewBuilder(WithName("test"))
	for _, action := range actions {
		builder.Step(StepName(action.name), action, nil)
	}
	saga, err := builder.Build()
	require.NoError(t, err)
	return saga
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	recorder := &callRecorder{}

	saga, err := NewBuilder(WithName("upload_run")).
		LambdaAction(
			func(ctx context.Context, args Args) (Args, error) {
				recorder.add("do:upload")
				file, ok := Lookup[string](args, "file")
				require.True(t, ok)
				return Args{"uploaded_file": file}, nil
			},
			func(ctx context.Context, args Args) (bool, error) {
				recorder.add("undo:upload")
				return true, nil
			},
			nil,
		).
		LambdaAction(
			func(ctx context.Context, args Args) (Args, error) {
				recorder.add("do:run")
				uploaded, ok := Lookup[string](args, "uploaded_file")
				require.True(t, ok, "uploaded_file should be propagated")
				return Args{"running_file": uploaded}, nil
			},
			func(ctx context.Context, args Args) (bool, error) {
				recorder.add("undo:run")
				return true, nil
			},
			nil,
		).
		Build()
	require.NoError(t, err)

	result := saga.Execute(context.Background(), Args{"file": "f"})

	assert.True(t, result.Succeeded())
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.Equal(t, Args{"uploaded_file": "f", "running_file": "f"}, result.Args)
	assert.Nil(t, result.Err)
	assert.True(t, result.CompensationsSucceeded)
	assert.Nil(t, result.CompensationErr)
	assert.NoError(t, result.Validate())
	assert.Equal(t, []string{"do:upload", "do:run"}, recorder.Calls(), "no compensation should run")

	assert.False(t, result.Log.Unwinding())
	assert.Len(t, result.Log.Events(), 4)
	assert.Equal(t, StatusActSucceeded, result.Log.StatusOf(0))
	assert.Equal(t, StatusActSucceeded, result.Log.StatusOf(1))
	assert.False(t, result.StartTime.After(result.EndTime))
}

func TestExecuteMidFailureCompensatesInReverse(t *testing.T) {
	recorder := &callRecorder{}
	cause := errors.New("run failed")

	first := newRecordingAction("first", recorder, Args{"uploaded_file": "f"})
	second := newRecordingAction("second", recorder, nil)
	second.doErr = cause

	result := buildSaga(t, first, second).Execute(context.Background(), Args{"file": "f"})

	assert.False(t, result.Succeeded())
	assert.Equal(t, OutcomeFailed, result.Outcome)
	require.NotNil(t, result.Err)
	assert.Equal(t, StepName("second"), result.Err.Step)
	assert.ErrorIs(t, result.Err, cause)

	assert.Equal(t, []string{"do:first", "do:second", "undo:second", "undo:first"}, recorder.Calls())
	assert.True(t, result.CompensationsSucceeded)
	assert.Nil(t, result.CompensationErr)
	assert.NoError(t, result.Validate())

	// Only successful outputs are accumulated.
	assert.Equal(t, Args{"uploaded_file": "f"}, result.Args)

	assert.True(t, result.Log.Unwinding())
	assert.Equal(t, StatusUndoFinished, result.Log.StatusOf(0))
	assert.Equal(t, StatusUndoFinished, result.Log.StatusOf(1))
}

func TestExecuteCompensationFailure(t *testing.T) {
	recorder := &callRecorder{}
	undoCause := errors.New("cannot delete file")

	first := newRecordingAction("first", recorder, Args{"uploaded_file": "f"})
	first.undoErr = undoCause
	second := newRecordingAction("second", recorder, nil)
	second.doErr = errors.New("run failed")

	result := buildSaga(t, first, second).Execute(context.Background(), nil)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.False(t, result.CompensationsSucceeded)
	require.NotNil(t, result.CompensationErr)
	assert.Equal(t, 1, result.CompensationErr.Len())
	assert.ErrorIs(t, result.CompensationErr, undoCause)
	assert.Equal(t, []StepName{"first"}, result.CompensationErr.Steps())
	assert.NoError(t, result.Validate())

	assert.Equal(t, StatusUndoFinished, result.Log.StatusOf(1))
	assert.Equal(t, StatusUndoFailed, result.Log.StatusOf(0))
}

func TestExecuteFailureAtEachStep(t *testing.T) {
	const steps = 4

	for k := 0; k < steps; k++ {
		t.Run(fmt.Sprintf("fail at step %d", k), func(t *testing.T) {
			recorder := &callRecorder{}
			actions := make([]*recordingAction, steps)
			for i := range actions {
				actions[i] = newRecordingAction(fmt.Sprintf("s%d", i), recorder, Args{fmt.Sprintf("out%d", i): i})
			}
			actions[k].doErr = fmt.Errorf("step %d failed", k)

			result := buildSaga(t, actions...).Execute(context.Background(), Args{})

			var expected []string
			for i := 0; i <= k; i++ {
				expected = append(expected, fmt.Sprintf("do:s%d", i))
			}
			for i := k; i >= 0; i-- {
				expected = append(expected, fmt.Sprintf("undo:s%d", i))
			}
			assert.Equal(t, expected, recorder.Calls())

			for i := k + 1; i < steps; i++ {
				assert.Nil(t, actions[i].doArgs, "step %d should never act", i)
				assert.Nil(t, actions[i].undoArgs, "step %d should never compensate", i)
				assert.Equal(t, StatusNeverStarted, result.Log.StatusOf(i))
			}
			assert.Len(t, result.Args, k)
			assert.NoError(t, result.Validate())
		})
	}
}

func TestExecuteCompensationIsExhaustive(t *testing.T) {
	recorder := &callRecorder{}

	first := newRecordingAction("first", recorder, nil)
	first.undoErr = errors.New("first undo failed")
	second := newRecordingAction("second", recorder, nil)
	second.undoOK = false
	third := newRecordingAction("third", recorder, nil)
	third.doErr = errors.New("third failed")

	result := buildSaga(t, first, second, third).Execute(context.Background(), nil)

	assert.Equal(t, []string{"do:first", "do:second", "do:third", "undo:third", "undo:second", "undo:first"}, recorder.Calls())
	require.NotNil(t, result.CompensationErr)
	assert.Equal(t, []StepName{"second", "first"}, result.CompensationErr.Steps())
	assert.ErrorIs(t, result.CompensationErr, ErrCompensationDeclined)
	assert.False(t, result.CompensationsSucceeded)
}

func TestExecuteContainsPanics(t *testing.T) {
	saga, err := NewBuilder().
		LambdaAction(
			func(ctx context.Context, args Args) (Args, error) {
				return Args{"ok": true}, nil
			},
			func(ctx context.Context, args Args) (bool, error) {
				panic("undo exploded")
			},
			nil,
		).
		LambdaAction(
			func(ctx context.Context, args Args) (Args, error) {
				panic("do exploded")
			},
			nil,
			nil,
		).
		Build()
	require.NoError(t, err)

	var result *Result
	require.NotPanics(t, func() {
		result = saga.Execute(context.Background(), nil)
	})

	require.NotNil(t, result.Err)
	assert.Equal(t, StepName("lambda#2"), result.Err.Step)
	assert.Contains(t, result.Err.Error(), "do exploded")

	require.NotNil(t, result.CompensationErr)
	assert.Equal(t, []StepName{"lambda"}, result.CompensationErr.Steps())
	assert.Contains(t, result.CompensationErr.Error(), "undo exploded")
	assert.NoError(t, result.Validate())
}

func TestExecuteArgumentPropagation(t *testing.T) {
	recorder := &callRecorder{}
	s1 := newRecordingAction("s1", recorder, Args{"a": 1})
	s2 := newRecordingAction("s2", recorder, Args{"b": 2})

	result := buildSaga(t, s1, s2).Execute(context.Background(), Args{})

	assert.Equal(t, 1, s2.doArgs["a"], "s2 should receive the output of s1")
	assert.Equal(t, Args{"a": 1, "b": 2}, result.Args)
}

func TestExecuteArgumentPrecedence(t *testing.T) {
	recorder := &callRecorder{}
	s1 := newRecordingAction("s1", recorder, Args{"w": "s1"})
	s2 := newRecordingAction("s2", recorder, nil)

	saga, err := NewBuilder(WithDefaultArgs(Args{"v": "default", "w": "default", "x": "default", "y": "default"})).
		Step("s1", s1, nil).
		Step("s2", s2, Args{"w": "step", "x": "step", "y": "step"}).
		Build()
	require.NoError(t, err)

	saga.Execute(context.Background(), Args{"y": "execute"})

	assert.Equal(t, "default", s2.doArgs["v"], "builder default")
	assert.Equal(t, "step", s2.doArgs["x"], "step arguments override defaults")
	assert.Equal(t, "execute", s2.doArgs["y"], "execute arguments override step arguments")
	assert.Equal(t, "s1", s2.doArgs["w"], "propagated outputs override step arguments")
}

func TestExecuteLaterOutputsOverrideEarlier(t *testing.T) {
	recorder := &callRecorder{}
	s1 := newRecordingAction("s1", recorder, Args{"k": "first", "a": 1})
	s2 := newRecordingAction("s2", recorder, Args{"k": "second"})

	result := buildSaga(t, s1, s2).Execute(context.Background(), nil)

	assert.Equal(t, Args{"k": "second", "a": 1}, result.Args)
}

func TestExecuteNilOutputIsEmpty(t *testing.T) {
	recorder := &callRecorder{}
	s1 := newRecordingAction("s1", recorder, nil)
	s2 := newRecordingAction("s2", recorder, nil)

	result := buildSaga(t, s1, s2).Execute(context.Background(), Args{"in": 1})

	assert.True(t, result.Succeeded())
	assert.Empty(t, result.Args)
	assert.Equal(t, Args{"in": 1}, s2.doArgs)
}

func TestExecuteCompensationSeesActArgs(t *testing.T) {
	recorder := &callRecorder{}
	s1 := newRecordingAction("s1", recorder, Args{"resource": "r-1"})
	s2 := newRecordingAction("s2", recorder, nil)
	s2.doErr = errors.New("boom")

	saga, err := NewBuilder().
		Step("s1", s1, Args{"configured": true}).
		Step("s2", s2, nil).
		Build()
	require.NoError(t, err)

	saga.Execute(context.Background(), Args{"file": "f"})

	assert.Equal(t, Args{"configured": true, "file": "f"}, s1.undoArgs)
	assert.Equal(t, Args{"file": "f", "resource": "r-1"}, s2.undoArgs)
}

func TestExecuteRunsAreIsolated(t *testing.T) {
	recorder := &callRecorder{}
	s1 := newRecordingAction("s1", recorder, nil)
	saga := buildSaga(t, s1)

	first := saga.Execute(context.Background(), Args{"secret": 1})
	assert.Equal(t, Args{"secret": 1}, s1.doArgs)

	second := saga.Execute(context.Background(), Args{})
	assert.Empty(t, s1.doArgs, "arguments of an earlier run must not leak")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestExecuteConcurrently(t *testing.T) {
	saga, err := NewBuilder().
		LambdaAction(func(ctx context.Context, args Args) (Args, error) {
			n, _ := Lookup[int](args, "n")
			return Args{"double": n * 2}, nil
		}, nil, nil).
		LambdaAction(func(ctx context.Context, args Args) (Args, error) {
			d, _ := Lookup[int](args, "double")
			return Args{"quad": d * 2}, nil
		}, nil, nil).
		Build()
	require.NoError(t, err)

	const runs = 16
	results := make([]*Result, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = saga.Execute(context.Background(), Args{"n": i})
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		assert.Equal(t, Args{"double": 2 * i, "quad": 4 * i}, result.Args)
	}
}

func TestExecuteEmptySaga(t *testing.T) {
	saga, err := NewBuilder().Build()
	require.NoError(t, err)

	result := saga.Execute(context.Background(), Args{"file": "f"})
	assert.True(t, result.Succeeded())
	assert.Empty(t, result.Args)
	assert.NoError(t, result.Validate())
}

func TestExecutePassesContextThrough(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "value")

	var seen any
	saga, err := NewBuilder().
		LambdaAction(func(ctx context.Context, args Args) (Args, error) {
			seen = ctx.Value(ctxKey{})
			return nil, nil
		}, nil, nil).
		Build()
	require.NoError(t, err)

	saga.Execute(ctx, nil)
	assert.Equal(t, "value", seen)
}

func TestExecuteLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	recorder := &callRecorder{}

	first := newRecordingAction("first", recorder, nil)
	first.undoErr = errors.New("undo failed")
	second := newRecordingAction("second", recorder, nil)
	second.doErr = errors.New("do failed")

	saga, err := NewBuilder(WithName("logged"), WithLogger(zap.New(core))).
		Step("first", first, nil).
		Step("second", second, nil).
		Build()
	require.NoError(t, err)

	saga.Execute(context.Background(), nil)

	warn := logs.FilterMessage("action failed").All()
	require.Len(t, warn, 1)
	assert.Equal(t, zapcore.WarnLevel, warn[0].Level)
	assert.Equal(t, "second", warn[0].ContextMap()["step"])
	assert.Equal(t, "logged", warn[0].ContextMap()["saga"])

	undo := logs.FilterMessage("compensation failed").All()
	require.Len(t, undo, 1)
	assert.Equal(t, "first", undo[0].ContextMap()["step"])

	assert.Equal(t, 1, logs.FilterMessage("saga failed and compensation was incomplete").Len())
}

// fakeObserver records observer notifications.
type fakeObserver struct {
	acted       []StepName
	compensated []StepName
	finished    []*Result
}

func (o *fakeObserver) StepActed(_ SagaName, step StepName, _ error, _ time.Duration) {
	o.acted = append(o.acted, step)
}

func (o *fakeObserver) StepCompensated(_ SagaName, step StepName, _ error, _ time.Duration) {
	o.compensated = append(o.compensated, step)
}

func (o *fakeObserver) SagaFinished(_ SagaName, result *Result) {
	o.finished = append(o.finished, result)
}

func TestExecuteNotifiesObservers(t *testing.T) {
	recorder := &callRecorder{}
	first := newRecordingAction("first", recorder, nil)
	second := newRecordingAction("second", recorder, nil)
	second.doErr = errors.New("do failed")

	a, b := &fakeObserver{}, &fakeObserver{}
	saga, err := NewBuilder(WithObserver(Observers{a, b})).
		Step("first", first, nil).
		Step("second", second, nil).
		Build()
	require.NoError(t, err)

	result := saga.Execute(context.Background(), nil)

	for _, obs := range []*fakeObserver{a, b} {
		assert.Equal(t, []StepName{"first", "second"}, obs.acted)
		assert.Equal(t, []StepName{"second", "first"}, obs.compensated)
		require.Len(t, obs.finished, 1)
		assert.Same(t, result, obs.finished[0])
	}
}

func TestResultString(t *testing.T) {
	recorder := &callRecorder{}
	failing := newRecordingAction("failing", recorder, nil)
	failing.doErr = errors.New("bad input")
	failing.undoOK = false

	result := buildSaga(t, failing).Execute(context.Background(), nil)

	s := result.String()
	assert.Contains(t, s, "failed")
	assert.Contains(t, s, "bad input")
	assert.Contains(t, s, "compensation failing failed")
}
