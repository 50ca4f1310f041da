package domain

import "fmt"

// ServerError is returned when the signaling service answers HTTP 500.
type ServerError struct {
	Op   string
	Body string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error", e.Op)
}

// PreconditionError is returned when an action is invoked in a state that
// does not allow it. Message is the guidance shown to the user.
type PreconditionError struct {
	Action  string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// MediaAccessError is returned when local audio capture cannot be acquired.
type MediaAccessError struct {
	Source string
	Err    error
}

func (e *MediaAccessError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("access microphone: %v", e.Err)
	}
	return fmt.Sprintf("access microphone %s: %v", e.Source, e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }
