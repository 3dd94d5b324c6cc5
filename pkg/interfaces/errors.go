package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrLectureNotFound   = errors.New("lecture not found")
	ErrClassroomNotFound = errors.New("classroom not found")
	ErrUnauthorized      = errors.New("unauthorized access")
	ErrAlreadyExists     = errors.New("record already exists")
)
