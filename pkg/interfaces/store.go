package interfaces

import (
	"context"

	"lecturehall/pkg/types"
)

// Store is the persistence collaborator consumed by the signaling core
// ARCHITECTURAL DISCOVERY: The core never depends on a storage technology,
// only on this interface; memory and SQLite implementations both satisfy it
type Store interface {
	// GetUser returns ErrUserNotFound when the id is unknown
	GetUser(ctx context.Context, id types.UserID) (*types.User, error)

	// GetLecture returns ErrLectureNotFound when the id is unknown
	GetLecture(ctx context.Context, id types.LectureID) (*types.Lecture, error)

	// IsLectureMember reports whether the user may enter the lecture room.
	// Owners of the lecture or its classroom are always members.
	IsLectureMember(ctx context.Context, userID types.UserID, lectureID types.LectureID) (bool, error)

	// AppendChatMessage persists a chat message; ID and Timestamp are set by the caller
	AppendChatMessage(ctx context.Context, message *types.ChatMessage) error

	// ListChatMessages returns the lecture chat ordered by timestamp ascending
	ListChatMessages(ctx context.Context, lectureID types.LectureID) ([]*types.ChatMessage, error)

	// AppendNote persists a generated lecture note
	AppendNote(ctx context.Context, note *types.LectureNote) error

	// ListNotes returns the lecture notes ordered by timestamp ascending
	ListNotes(ctx context.Context, lectureID types.LectureID) ([]*types.LectureNote, error)

	// HealthCheck verifies the backing storage is reachable
	HealthCheck(ctx context.Context) error

	// Close releases storage resources
	Close() error
}

// Seeder populates the directory data that the classroom application
// normally owns (users, classrooms, lectures)
type Seeder interface {
	CreateUser(ctx context.Context, user *types.User) error
	CreateClassroom(ctx context.Context, classroom *types.Classroom) error
	AddClassroomMember(ctx context.Context, classroomID types.ClassroomID, userID types.UserID) error
	CreateLecture(ctx context.Context, lecture *types.Lecture) error
}

// SeedableStore is implemented by every store shipped with the server
type SeedableStore interface {
	Store
	Seeder
}
