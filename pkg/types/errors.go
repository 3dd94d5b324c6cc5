package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidID          = errors.New("id must be a string or number")
	ErrInvalidUserID      = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidLectureID   = errors.New("lecture ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLarge    = errors.New("message content exceeds 8KB limit")
	ErrInvalidLectureName = errors.New("lecture title must be 1-200 characters")
)
