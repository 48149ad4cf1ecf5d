package auth

import "errors"

// Token errors are connection-level: a bad token closes the transport
// at handshake and the connection is never registered.
var (
	ErrMissingToken  = errors.New("identity token missing")
	ErrInvalidToken  = errors.New("identity token invalid")
	ErrWrongPassword = errors.New("invalid password")
)
