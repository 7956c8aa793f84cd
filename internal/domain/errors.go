package domain

import "errors"

var (
	// ErrEmptyQuizSet is returned when generation yields zero items; an empty
	// quiz is a generation failure, never a valid result.
	ErrEmptyQuizSet = errors.New("generated quiz contains no items")
	// ErrNoModelOutput is returned when the remote model returns no usable text.
	ErrNoModelOutput = errors.New("model returned no usable output")
	// ErrSetNotFound indicates a history entry ID did not resolve.
	ErrSetNotFound = errors.New("quiz set not found")
	// ErrInvalidTransition is returned when an action is not legal in the
	// current session state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrHintInFlight is returned when a hint is requested for an item that
	// already has an outstanding hint request.
	ErrHintInFlight = errors.New("hint request already in flight for item")
	// ErrHintLevelInvalid indicates a hint level outside 1..3.
	ErrHintLevelInvalid = errors.New("hint level must be between 1 and 3")
)
