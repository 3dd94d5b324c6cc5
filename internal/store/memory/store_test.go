package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := New()

	for _, u := range []types.User{
		{ID: "teacher", Name: "Teacher", Role: types.RoleTeacher},
		{ID: "alice", Name: "Alice", Role: types.RoleStudent},
		{ID: "mallory", Name: "Mallory", Role: types.RoleStudent},
	} {
		u := u
		if err := s.CreateUser(ctx, &u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}
	if err := s.CreateClassroom(ctx, &types.Classroom{ID: "c1", Name: "Physics", OwnerID: "teacher", MemberIDs: []types.UserID{"alice"}}); err != nil {
		t.Fatalf("CreateClassroom failed: %v", err)
	}
	if err := s.CreateLecture(ctx, &types.Lecture{ID: "l1", ClassroomID: "c1", Title: "Optics", OwnerID: "teacher"}); err != nil {
		t.Fatalf("CreateLecture failed: %v", err)
	}
	return s
}

func TestStore_Membership(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		user types.UserID
		want bool
	}{
		{"teacher", true},
		{"alice", true},
		{"mallory", false},
	}
	for _, tt := range tests {
		got, err := s.IsLectureMember(ctx, tt.user, "l1")
		if err != nil {
			t.Fatalf("IsLectureMember failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("%s: expected member=%v, got %v", tt.user, tt.want, got)
		}
	}

	if _, err := s.IsLectureMember(ctx, "alice", "missing"); !errors.Is(err, interfaces.ErrLectureNotFound) {
		t.Errorf("Expected ErrLectureNotFound, got %v", err)
	}

	if err := s.AddClassroomMember(ctx, "c1", "mallory"); err != nil {
		t.Fatalf("AddClassroomMember failed: %v", err)
	}
	if ok, _ := s.IsLectureMember(ctx, "mallory", "l1"); !ok {
		t.Error("Added member should be allowed in")
	}
}

func TestStore_Lookups(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, interfaces.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
	user, err := s.GetUser(ctx, "alice")
	if err != nil || user.Name != "Alice" {
		t.Errorf("Unexpected user %+v (err=%v)", user, err)
	}
	if _, err := s.GetLecture(ctx, "nope"); !errors.Is(err, interfaces.ErrLectureNotFound) {
		t.Errorf("Expected ErrLectureNotFound, got %v", err)
	}
	if err := s.CreateUser(ctx, &types.User{ID: "alice"}); !errors.Is(err, interfaces.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func TestStore_ChatHistoryOrderedByTimestamp(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, offset := range []time.Duration{2, 0, 1} {
		msg := &types.ChatMessage{
			ID:        string(rune('a' + i)),
			LectureID: "l1",
			SenderID:  "alice",
			Content:   "hello",
			Timestamp: base.Add(offset * time.Second),
		}
		if err := s.AppendChatMessage(ctx, msg); err != nil {
			t.Fatalf("AppendChatMessage failed: %v", err)
		}
	}

	history, err := s.ListChatMessages(ctx, "l1")
	if err != nil {
		t.Fatalf("ListChatMessages failed: %v", err)
	}
	got := ""
	for _, m := range history {
		got += m.ID
	}
	if got != "bca" {
		t.Errorf("Expected timestamp order bca, got %s", got)
	}

	if err := s.AppendChatMessage(ctx, &types.ChatMessage{LectureID: "l1", SenderID: "alice", Content: "  "}); !errors.Is(err, types.ErrEmptyContent) {
		t.Errorf("Expected ErrEmptyContent, got %v", err)
	}
}

func TestStore_NotesAndClose(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	if err := s.AppendNote(ctx, &types.LectureNote{ID: "n1", LectureID: "l1", Content: "NOTE-A", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendNote failed: %v", err)
	}
	notes, _ := s.ListNotes(ctx, "l1")
	if len(notes) != 1 || notes[0].Content != "NOTE-A" {
		t.Errorf("Unexpected notes %+v", notes)
	}

	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	_ = s.Close()
	if err := s.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck should fail after Close")
	}
}
