package router

import "errors"

var (
	ErrNilDependency = errors.New("router dependency is nil")
	ErrTokenRequired = errors.New("token required")
	ErrTokenMismatch = errors.New("token subject does not match user")
)
