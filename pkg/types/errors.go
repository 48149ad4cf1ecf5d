package types

import "errors"

// Validation errors shared across the HTTP layer and the dispatcher.
var (
	ErrInvalidUserName  = errors.New("name must be 1-100 characters")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidPassword  = errors.New("password must be 6-72 characters")
	ErrInvalidRole      = errors.New("invalid role: must be 'student' or 'teacher'")
	ErrInvalidStatus    = errors.New("invalid status: must be 'present' or 'absent'")
	ErrInvalidClassName = errors.New("class name must be 1-200 characters")
	ErrInvalidEvent     = errors.New("unknown event")
)
