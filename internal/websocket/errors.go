package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrBackpressure     = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrNotRegistered     = errors.New("connection not registered")
	ErrNotAuthenticated  = errors.New("connection must be authenticated")
	ErrInvalidLectureID  = errors.New("lecture id cannot be empty")
	ErrInvalidIdentity   = errors.New("user id cannot be empty")
)
