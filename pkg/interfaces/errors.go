package interfaces

import "errors"

// Common store errors used across components.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrClassNotFound  = errors.New("class not found")
	ErrDuplicateEmail = errors.New("email already registered")
)
