package sagachain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SagaID represents a unique identifier for a single saga execution.
type SagaID struct {
	UUID uuid.UUID
}

// NewSagaID returns a fresh random SagaID.
func NewSagaID() SagaID {
	return SagaID{UUID: uuid.New()}
}

// String returns the string representation of the SagaID.
func (s SagaID) String() string {
	return s.UUID.String()
}

// SagaName represents a human-readable name for a particular saga.
type SagaName string

// String returns the string representation of the SagaName.
func (s SagaName) String() string {
	return string(s)
}

// Outcome is the tri-state success indicator of an execution.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome record of one Saga.Execute call.
//
// Err is set if and only if Outcome is OutcomeFailed. CompensationErr is set if
// and only if CompensationsSucceeded is false.
type Result struct {
	ID      SagaID
	Saga    SagaName
	Outcome Outcome

	// Args accumulates the outputs of every successful step, later steps
	// overriding earlier ones.
	Args Args

	// Err is the action failure that stopped the saga.
	Err *StepError

	CompensationsSucceeded bool
	CompensationErr        *CompensationError

	Log       *SagaLog
	StartTime time.Time
	EndTime   time.Time
}

func newResult(id SagaID, name SagaName) *Result {
	return &Result{
		ID:                     id,
		Saga:                   name,
		Outcome:                OutcomePending,
		Args:                   Args{},
		CompensationsSucceeded: true,
		Log:                    NewSagaLog(id),
		StartTime:              time.Now(),
	}
}

// Succeeded reports whether every step of the saga succeeded.
func (r *Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// Duration returns how long the execution took, compensation included.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Validate checks the invariants tying the result fields together.
func (r *Result) Validate() error {
	if (r.Err != nil) != (r.Outcome == OutcomeFailed) {
		return fmt.Errorf("result %s: outcome %s inconsistent with error %v", r.ID, r.Outcome, r.Err)
	}
	if (r.CompensationErr != nil) == r.CompensationsSucceeded {
		return fmt.Errorf("result %s: compensations_succeeded=%t inconsistent with compensation error %v",
			r.ID, r.CompensationsSucceeded, r.CompensationErr)
	}
	return nil
}

// String implements the fmt.Stringer interface for Result.
func (r *Result) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Saga %s (%s) result: %s", r.Saga, r.ID, r.Outcome))
	if r.Err != nil {
		sb.WriteString(fmt.Sprintf("\n error: %v", r.Err))
	}
	if !r.CompensationsSucceeded {
		sb.WriteString(fmt.Sprintf("\n compensation error: %v", r.CompensationErr))
	}
	return sb.String()
}
