package sagachain

import "time"

// Observer receives notifications as a saga executes. Implementations must not
// block; they run on the executing goroutine.
type Observer interface {
	// StepActed is called after a step's forward action returns. err is nil on success.
	StepActed(saga SagaName, step StepName, err error, d time.Duration)
	// StepCompensated is called after a step's compensation returns.
	StepCompensated(saga SagaName, step StepName, err error, d time.Duration)
	// SagaFinished is called once with the final result of an execution.
	SagaFinished(saga SagaName, result *Result)
}

// NopObserver is an Observer that ignores every notification.
type NopObserver struct{}

func (NopObserver) StepActed(SagaName, StepName, error, time.Duration)       {}
func (NopObserver) StepCompensated(SagaName, StepName, error, time.Duration) {}
func (NopObserver) SagaFinished(SagaName, *Result)                           {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) StepActed(saga SagaName, step StepName, err error, d time.Duration) {
	for _, obs := range o {
		obs.StepActed(saga, step, err, d)
	}
}

func (o Observers) StepCompensated(saga SagaName, step StepName, err error, d time.Duration) {
	for _, obs := range o {
		obs.StepCompensated(saga, step, err, d)
	}
}

func (o Observers) SagaFinished(saga SagaName, result *Result) {
	for _, obs := range o {
		obs.SagaFinished(saga, result)
	}
}
