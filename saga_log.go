package sagachain

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// StepEvent represents an entry in the saga log.
type StepEvent struct {
	SagaID    SagaID
	Index     int
	Step      StepName
	EventType StepEventType
	Time      time.Time
}

// String implements the fmt.Stringer interface for StepEvent.
func (e *StepEvent) String() string {
	return fmt.Sprintf("S%03d %-12s %s", e.Index, e.EventType.String(), e.Step)
}

// StepEventType defines the types of events that can occur for a step.
type StepEventType int

const (
	EventStarted StepEventType = iota
	EventSucceeded
	EventFailed
	EventUndoStarted
	EventUndoFinished
	EventUndoFailed
)

// String returns the string representation of the StepEventType.
func (s StepEventType) String() string {
	switch s {
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventUndoStarted:
		return "undo_started"
	case EventUndoFinished:
		return "undo_finished"
	case EventUndoFailed:
		return "undo_failed"
	default:
		return fmt.Sprintf("Unknown StepEventType: %d", s)
	}
}

// StepStatus represents the status of a step within one execution.
type StepStatus int

const (
	StatusNeverStarted StepStatus = iota
	StatusStarted
	StatusActSucceeded
	StatusActFailed
	StatusUndoStarted
	StatusUndoFinished
	StatusUndoFailed
)

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string {
	switch s {
	case StatusNeverStarted:
		return "NeverStarted"
	case StatusStarted:
		return "Started"
	case StatusActSucceeded:
		return "Succeeded"
	case StatusActFailed:
		return "Failed"
	case StatusUndoStarted:
		return "UndoStarted"
	case StatusUndoFinished:
		return "UndoFinished"
	case StatusUndoFailed:
		return "UndoFailed"
	default:
		return fmt.Sprintf("Unknown StepStatus: %d", s)
	}
}

// nextStatus returns the new status for a step after recording the given event.
// A failed step can still be undone since its action may have had side effects.
func (s StepStatus) nextStatus(eventType StepEventType) (StepStatus, error) {
	switch s {
	case StatusNeverStarted:
		if eventType == EventStarted {
			return StatusStarted, nil
		}
	case StatusStarted:
		switch eventType {
		case EventSucceeded:
			return StatusActSucceeded, nil
		case EventFailed:
			return StatusActFailed, nil
		}
	case StatusActSucceeded, StatusActFailed:
		if eventType == EventUndoStarted {
			return StatusUndoStarted, nil
		}
	case StatusUndoStarted:
		switch eventType {
		case EventUndoFinished:
			return StatusUndoFinished, nil
		case EventUndoFailed:
			return StatusUndoFailed, nil
		}
	}

	return StatusNeverStarted, fmt.Errorf(
		"illegal event type %s for current status %v",
		eventType, s,
	)
}

// SagaLog represents the event log of one saga execution.
type SagaLog struct {
	mu         sync.Mutex
	sagaID     SagaID
	unwinding  bool
	events     []*StepEvent
	stepStatus btree.Map[int, StepStatus]
}

// NewSagaLog creates a new, empty SagaLog.
func NewSagaLog(sagaID SagaID) *SagaLog {
	return &SagaLog{
		sagaID: sagaID,
		events: make([]*StepEvent, 0),
	}
}

// Record adds an event to the SagaLog.
func (l *SagaLog) Record(event *StepEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.SagaID != l.sagaID {
		return fmt.Errorf(
			"event for different saga (%s) than the log (%s)",
			event.SagaID, l.sagaID,
		)
	}

	currentStatus := l.statusLocked(event.Index)
	nextStatus, err := currentStatus.nextStatus(event.EventType)
	if err != nil {
		return fmt.Errorf("step %d (%s): %w", event.Index, event.Step, err)
	}

	switch nextStatus {
	case StatusActFailed, StatusUndoStarted, StatusUndoFinished, StatusUndoFailed:
		l.unwinding = true
	}

	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	l.stepStatus.Set(event.Index, nextStatus)
	l.events = append(l.events, event)
	return nil
}

// SagaID returns the execution the log belongs to.
func (l *SagaLog) SagaID() SagaID {
	return l.sagaID
}

// Unwinding returns true once the execution has started rolling back.
func (l *SagaLog) Unwinding() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.unwinding
}

// StatusOf returns the StepStatus for a given step index.
func (l *SagaLog) StatusOf(index int) StepStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.statusLocked(index)
}

func (l *SagaLog) statusLocked(index int) StepStatus {
	status, exists := l.stepStatus.Get(index)
	if !exists {
		return StatusNeverStarted
	}
	return status
}

// Events returns a copy of the events in the SagaLog.
func (l *SagaLog) Events() []*StepEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]*StepEvent(nil), l.events...)
}

// SagaLogPretty is a helper for pretty-printing a SagaLog.
type SagaLogPretty struct {
	Log *SagaLog
}

// String implements the fmt.Stringer interface for SagaLogPretty.
func (p *SagaLogPretty) String() string {
	p.Log.mu.Lock()
	defer p.Log.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("SAGA LOG:\n")
	sb.WriteString(fmt.Sprintf("saga id:   %s\n", p.Log.sagaID))
	direction := "forward"
	if p.Log.unwinding {
		direction = "unwinding"
	}
	sb.WriteString(fmt.Sprintf("direction: %s\n", direction))
	sb.WriteString(fmt.Sprintf("events (%d total):\n", len(p.Log.events)))
	sb.WriteString("\n")
	for i, event := range p.Log.events {
		sb.WriteString(fmt.Sprintf("%03d %s\n", i+1, event.String()))
	}
	return sb.String()
}
