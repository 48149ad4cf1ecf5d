package dispatch

// Message-level error replies. Each goes to the offending sender only
// and never mutates shared state.
const (
	msgInvalidFormat   = "Invalid message format"
	msgForbidden       = "Forbidden"
	msgUnknownEvent    = "Unknown event"
	msgNoActiveSession = "No active attendance session"
	msgUnknownStudent  = "Unknown student"
)
