package app

import "snapquiz-service/internal/domain"

// EventKind enumerates everything that can move the session state machine.
type EventKind int

const (
	// EventCapture fires when the user submits a photo.
	EventCapture EventKind = iota
	// EventGenerated fires when generation succeeds with at least one item.
	EventGenerated
	// EventGenerationFailed fires when generation errors or yields zero items.
	EventGenerationFailed
	// EventAdvance fires when the user moves to the next question.
	EventAdvance
	// EventSelectHistory fires when the user reopens a past quiz set.
	EventSelectHistory
	// EventReset returns the session to idle. Reset from processing cancels
	// the outstanding generation call.
	EventReset
)

// Event is one input to the transition function.
type Event struct {
	Kind EventKind
	// LastItem marks an advance from the final question; only read for
	// EventAdvance.
	LastItem bool
}

// Transition is the session state machine as a pure function. It returns
// domain.ErrInvalidTransition, leaving the state unchanged, for any pair the
// machine does not define.
func Transition(state domain.AppState, ev Event) (domain.AppState, error) {
	switch ev.Kind {
	case EventCapture:
		if state == domain.StateIdle {
			return domain.StateProcessing, nil
		}
	case EventGenerated:
		if state == domain.StateProcessing {
			return domain.StateQuizActive, nil
		}
	case EventGenerationFailed:
		if state == domain.StateProcessing {
			return domain.StateError, nil
		}
	case EventAdvance:
		if state == domain.StateQuizActive {
			if ev.LastItem {
				return domain.StateCompleted, nil
			}
			return domain.StateQuizActive, nil
		}
	case EventSelectHistory:
		// History selection bypasses processing entirely.
		if state == domain.StateIdle {
			return domain.StateQuizActive, nil
		}
	case EventReset:
		switch state {
		case domain.StateProcessing, domain.StateCompleted, domain.StateError:
			return domain.StateIdle, nil
		}
	}
	return state, domain.ErrInvalidTransition
}
