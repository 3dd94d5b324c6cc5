package lecture

import "errors"

var (
	ErrInvalidLectureID = errors.New("invalid lecture id")
	ErrLectureNotFound  = errors.New("lecture not found")
	ErrUnauthorized     = errors.New("user not authorized for this lecture")
)
