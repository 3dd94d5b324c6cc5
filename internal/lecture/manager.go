// Package lecture answers the room questions the router asks: does the
// lecture exist, may this user enter it, and who owns it.
package lecture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

// Manager caches lectures in front of the store
// ARCHITECTURAL DISCOVERY: Lecture metadata is read on every join and every
// recording command but never changes while the server runs
type Manager struct {
	store    interfaces.Store
	lectures map[types.LectureID]*types.Lecture
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a lecture manager
func NewManager(store interfaces.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		lectures: make(map[types.LectureID]*types.Lecture),
		logger:   logger.With(zap.String("module", "lecture")),
	}
}

// GetLecture returns the lecture, consulting the cache first
func (m *Manager) GetLecture(ctx context.Context, lectureID types.LectureID) (*types.Lecture, error) {
	if !types.IsValidLectureID(lectureID) {
		return nil, ErrInvalidLectureID
	}

	m.mu.RLock()
	lecture, ok := m.lectures[lectureID]
	m.mu.RUnlock()
	if ok {
		return lecture, nil
	}

	lecture, err := m.store.GetLecture(ctx, lectureID)
	if err != nil {
		if errors.Is(err, interfaces.ErrLectureNotFound) {
			return nil, ErrLectureNotFound
		}
		return nil, fmt.Errorf("failed to load lecture %s: %w", lectureID, err)
	}

	m.mu.Lock()
	m.lectures[lectureID] = lecture
	m.mu.Unlock()

	m.logger.Debug("lecture cached", zap.String("lecture_id", string(lectureID)))
	return lecture, nil
}

// ValidateMembership checks that the lecture exists and the user may join it
func (m *Manager) ValidateMembership(ctx context.Context, lectureID types.LectureID, userID types.UserID) error {
	if _, err := m.GetLecture(ctx, lectureID); err != nil {
		return err
	}

	member, err := m.store.IsLectureMember(ctx, userID, lectureID)
	if err != nil {
		if errors.Is(err, interfaces.ErrLectureNotFound) {
			m.Invalidate(lectureID)
			return ErrLectureNotFound
		}
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return ErrUnauthorized
	}
	return nil
}

// IsOwner reports whether the user owns the lecture
func (m *Manager) IsOwner(ctx context.Context, lectureID types.LectureID, userID types.UserID) (bool, error) {
	lecture, err := m.GetLecture(ctx, lectureID)
	if err != nil {
		return false, err
	}
	return lecture.OwnerID == userID, nil
}

// Invalidate drops a cached lecture
func (m *Manager) Invalidate(lectureID types.LectureID) {
	m.mu.Lock()
	delete(m.lectures, lectureID)
	m.mu.Unlock()
}

// CacheSize returns the number of cached lectures
func (m *Manager) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lectures)
}
