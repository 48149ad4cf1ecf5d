package attendance

import "errors"

// Session state machine errors.
var (
	ErrSessionAlreadyActive = errors.New("an attendance session is already active")
	ErrNoActiveSession      = errors.New("no active attendance session")
	ErrUnknownStudent       = errors.New("student not on the session roster")
	ErrEmptyRoster          = errors.New("class roster is empty")
)
