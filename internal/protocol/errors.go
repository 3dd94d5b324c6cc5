package protocol

import "errors"

// Decoding errors
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownKind       = errors.New("unknown message kind")
)

// ErrorCode is the machine-readable reason carried by an error envelope
type ErrorCode string

// Category groups error codes so clients can decide between retry and fatal
type Category string

const (
	CategoryProtocol      Category = "protocol"
	CategoryAuthorization Category = "authorization"
	CategoryNotFound      Category = "not_found"
	CategoryUnavailable   Category = "unavailable"
)

const (
	CodeMalformedEnvelope ErrorCode = "malformed_envelope"
	CodeUnknownKind       ErrorCode = "unknown_kind"
	CodeNotAuthenticated  ErrorCode = "not_authenticated"
	CodeNotInRoom         ErrorCode = "not_in_room"
	CodeForbidden         ErrorCode = "forbidden"
	CodeNotOwner          ErrorCode = "not_owner"
	CodeRoomNotFound      ErrorCode = "room_not_found"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeRecordingActive   ErrorCode = "recording_active"
	CodeRecordingInactive ErrorCode = "recording_inactive"
	CodeInternal          ErrorCode = "internal"
)

var codeCategories = map[ErrorCode]Category{
	CodeMalformedEnvelope: CategoryProtocol,
	CodeUnknownKind:       CategoryProtocol,
	CodeNotAuthenticated:  CategoryAuthorization,
	CodeNotInRoom:         CategoryAuthorization,
	CodeForbidden:         CategoryAuthorization,
	CodeNotOwner:          CategoryAuthorization,
	CodeRoomNotFound:      CategoryNotFound,
	CodeRateLimited:       CategoryUnavailable,
	CodeRecordingActive:   CategoryProtocol,
	CodeRecordingInactive: CategoryProtocol,
	CodeInternal:          CategoryUnavailable,
}

// Category returns the category of a code
func (c ErrorCode) Category() Category {
	if category, ok := codeCategories[c]; ok {
		return category
	}
	return CategoryProtocol
}

// Error is the payload of an error envelope
type Error struct {
	Code     ErrorCode `json:"code"`
	Category Category  `json:"category"`
	Message  string    `json:"message"`
	Kind     Kind      `json:"kind,omitempty"`
}

// NewError builds an error payload for the offending kind
func NewError(code ErrorCode, kind Kind, message string) Error {
	return Error{
		Code:     code,
		Category: code.Category(),
		Message:  message,
		Kind:     kind,
	}
}
