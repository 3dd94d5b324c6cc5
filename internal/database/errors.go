package database

import "errors"

var (
	ErrManagerClosed     = errors.New("database manager is closed")
	ErrWriteTimeout      = errors.New("write operation timeout")
	ErrReferenceNotFound = errors.New("referenced record does not exist")
)
