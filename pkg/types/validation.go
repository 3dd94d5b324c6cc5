package types

import (
	"regexp"
	"strings"
)

const (
	maxIDLength       = 64
	MaxChatContentLen = 8 * 1024
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements
func IsValidUserID(id UserID) bool {
	return isValidID(string(id))
}

// IsValidLectureID checks if a lecture ID meets format requirements
func IsValidLectureID(id LectureID) bool {
	return isValidID(string(id))
}

func isValidID(id string) bool {
	if len(id) < 1 || len(id) > maxIDLength {
		return false
	}
	return idRegex.MatchString(id)
}

// Validate ensures the chat message can be persisted
// FUNCTIONAL DISCOVERY: Whitespace-only content is rejected before it
// reaches the store so history never contains blank entries
func (m *ChatMessage) Validate() error {
	if !IsValidLectureID(m.LectureID) {
		return ErrInvalidLectureID
	}
	if !IsValidUserID(m.SenderID) {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if len(m.Content) > MaxChatContentLen {
		return ErrContentTooLarge
	}
	return nil
}

// Validate ensures the lecture meets all requirements
func (l *Lecture) Validate() error {
	if !IsValidLectureID(l.ID) {
		return ErrInvalidLectureID
	}
	if len(l.Title) < 1 || len(l.Title) > 200 {
		return ErrInvalidLectureName
	}
	if !IsValidUserID(l.OwnerID) {
		return ErrInvalidUserID
	}
	return nil
}
