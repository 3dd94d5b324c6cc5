// Package memory is the in-process reference store. Everything is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

// Store keeps directory data and lecture history in maps
type Store struct {
	mu         sync.RWMutex
	users      map[types.UserID]types.User
	classrooms map[types.ClassroomID]*classroom
	lectures   map[types.LectureID]types.Lecture
	messages   map[types.LectureID][]types.ChatMessage
	notes      map[types.LectureID][]types.LectureNote
	closed     bool
}

type classroom struct {
	types.Classroom
	members map[types.UserID]struct{}
}

var _ interfaces.SeedableStore = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		users:      make(map[types.UserID]types.User),
		classrooms: make(map[types.ClassroomID]*classroom),
		lectures:   make(map[types.LectureID]types.Lecture),
		messages:   make(map[types.LectureID][]types.ChatMessage),
		notes:      make(map[types.LectureID][]types.LectureNote),
	}
}

func (s *Store) GetUser(ctx context.Context, id types.UserID) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return &user, nil
}

func (s *Store) GetLecture(ctx context.Context, id types.LectureID) (*types.Lecture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lecture, ok := s.lectures[id]
	if !ok {
		return nil, interfaces.ErrLectureNotFound
	}
	return &lecture, nil
}

func (s *Store) IsLectureMember(ctx context.Context, userID types.UserID, lectureID types.LectureID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lecture, ok := s.lectures[lectureID]
	if !ok {
		return false, interfaces.ErrLectureNotFound
	}
	if lecture.OwnerID == userID {
		return true, nil
	}
	room, ok := s.classrooms[lecture.ClassroomID]
	if !ok {
		return false, nil
	}
	if room.OwnerID == userID {
		return true, nil
	}
	_, member := room.members[userID]
	return member, nil
}

func (s *Store) AppendChatMessage(ctx context.Context, message *types.ChatMessage) error {
	if message == nil {
		return fmt.Errorf("chat message cannot be nil")
	}
	if err := message.Validate(); err != nil {
		return fmt.Errorf("invalid chat message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[message.LectureID] = append(s.messages[message.LectureID], *message)
	return nil
}

func (s *Store) ListChatMessages(ctx context.Context, lectureID types.LectureID) ([]*types.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[lectureID]
	out := make([]*types.ChatMessage, len(stored))
	for i := range stored {
		msg := stored[i]
		out[i] = &msg
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) AppendNote(ctx context.Context, note *types.LectureNote) error {
	if note == nil {
		return fmt.Errorf("lecture note cannot be nil")
	}
	if !types.IsValidLectureID(note.LectureID) {
		return fmt.Errorf("invalid lecture note: %w", types.ErrInvalidLectureID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes[note.LectureID] = append(s.notes[note.LectureID], *note)
	return nil
}

func (s *Store) ListNotes(ctx context.Context, lectureID types.LectureID) ([]*types.LectureNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.notes[lectureID]
	out := make([]*types.LectureNote, len(stored))
	for i := range stored {
		note := stored[i]
		out[i] = &note
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	if user == nil || !types.IsValidUserID(user.ID) {
		return types.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, interfaces.ErrAlreadyExists)
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) CreateClassroom(ctx context.Context, c *types.Classroom) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("classroom id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.classrooms[c.ID]; exists {
		return fmt.Errorf("classroom %s: %w", c.ID, interfaces.ErrAlreadyExists)
	}
	room := &classroom{Classroom: *c, members: make(map[types.UserID]struct{})}
	room.MemberIDs = nil
	for _, id := range c.MemberIDs {
		room.members[id] = struct{}{}
	}
	s.classrooms[c.ID] = room
	return nil
}

func (s *Store) AddClassroomMember(ctx context.Context, classroomID types.ClassroomID, userID types.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.classrooms[classroomID]
	if !ok {
		return interfaces.ErrClassroomNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return interfaces.ErrUserNotFound
	}
	room.members[userID] = struct{}{}
	return nil
}

func (s *Store) CreateLecture(ctx context.Context, lecture *types.Lecture) error {
	if lecture == nil {
		return fmt.Errorf("lecture cannot be nil")
	}
	if err := lecture.Validate(); err != nil {
		return fmt.Errorf("invalid lecture: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.classrooms[lecture.ClassroomID]; !ok {
		return interfaces.ErrClassroomNotFound
	}
	if _, exists := s.lectures[lecture.ID]; exists {
		return fmt.Errorf("lecture %s: %w", lecture.ID, interfaces.ErrAlreadyExists)
	}
	s.lectures[lecture.ID] = *lecture
	return nil
}
