package types

import (
	"time"
)

// UserID identifies an authenticated user. Bound to a connection after auth.
type UserID string

// LectureID identifies a lecture. A live lecture is a room.
type LectureID string

// ClassroomID identifies the classroom that owns lectures and members.
type ClassroomID string

// User roles as stored by the classroom application
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User represents a classroom user profile
// ARCHITECTURAL DISCOVERY: Profile is resolved once per chat message so
// clients can render sender names without a second lookup
type User struct {
	ID    UserID `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email,omitempty" db:"email"`
	Role  string `json:"role" db:"role"`
}

// Classroom groups members and lectures
type Classroom struct {
	ID        ClassroomID `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	OwnerID   UserID      `json:"ownerId" db:"owner_id"`
	MemberIDs []UserID    `json:"memberIds" db:"-"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

// Lecture represents one live session of a classroom
// FUNCTIONAL DISCOVERY: OwnerID is the only identity allowed to control recording
type Lecture struct {
	ID          LectureID   `json:"id" db:"id"`
	ClassroomID ClassroomID `json:"classroomId" db:"classroom_id"`
	Title       string      `json:"title" db:"title"`
	OwnerID     UserID      `json:"ownerId" db:"owner_id"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
}

// ChatMessage is an append-only chat entry of a lecture
type ChatMessage struct {
	ID        string    `json:"id" db:"id"`
	LectureID LectureID `json:"lectureId" db:"lecture_id"`
	SenderID  UserID    `json:"senderId" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// LectureNote is an AI-generated summary of a lecture transcript
// The latest note of a lecture is the current one.
type LectureNote struct {
	ID        string    `json:"id" db:"id"`
	LectureID LectureID `json:"lectureId" db:"lecture_id"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
