package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "lecturehall/pkg/database"
	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

var _ interfaces.SeedableStore = (*Manager)(nil)

// Manager is the SQLite-backed store
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *zap.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine
func NewManager(config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	if config == nil {
		config = dbconfig.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With(zap.String("module", "database")),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   500 * time.Millisecond,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Open creates a manager and brings the schema up to date
func Open(config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	manager, err := NewManager(config, logger)
	if err != nil {
		return nil, err
	}
	if err := manager.Migrate(); err != nil {
		_ = manager.Close()
		return nil, err
	}
	return manager, nil
}

// Migrate applies the embedded migrations and validates the result
func (m *Manager) Migrate() error {
	migrations := dbconfig.NewMigrationManager(m.db, dbconfig.Migrations())
	if err := migrations.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(m.db).Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	m.logger.Info("database migrations applied", zap.String("path", m.config.DatabasePath))
	return nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			// FUNCTIONAL DISCOVERY: Only lock contention is worth one retry;
			// constraint violations fail immediately
			if isBusy(err) {
				m.logger.Warn("database busy, retrying write", zap.Duration("delay", m.retryDelay), zap.Error(err))
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
			}
			if err != nil {
				m.logger.Debug("database write failed", zap.Error(err))
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-timeout.C:
		return ErrWriteTimeout
	}
}

// GetUser returns a user profile
func (m *Manager) GetUser(ctx context.Context, id types.UserID) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, email, role FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetLecture returns a lecture
func (m *Manager) GetLecture(ctx context.Context, id types.LectureID) (*types.Lecture, error) {
	var lecture types.Lecture
	err := m.db.QueryRowContext(ctx,
		`SELECT id, classroom_id, title, owner_id, created_at FROM lectures WHERE id = ?`, id,
	).Scan(&lecture.ID, &lecture.ClassroomID, &lecture.Title, &lecture.OwnerID, &lecture.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrLectureNotFound
		}
		return nil, fmt.Errorf("failed to query lecture: %w", err)
	}
	return &lecture, nil
}

// IsLectureMember checks lecture ownership, classroom ownership and classroom membership in one query
func (m *Manager) IsLectureMember(ctx context.Context, userID types.UserID, lectureID types.LectureID) (bool, error) {
	var member bool
	err := m.db.QueryRowContext(ctx, `
		SELECT
			l.owner_id = ?1
			OR COALESCE(c.owner_id, '') = ?1
			OR EXISTS (
				SELECT 1 FROM classroom_members cm
				WHERE cm.classroom_id = l.classroom_id AND cm.user_id = ?1
			)
		FROM lectures l
		LEFT JOIN classrooms c ON c.id = l.classroom_id
		WHERE l.id = ?2
	`, userID, lectureID).Scan(&member)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, interfaces.ErrLectureNotFound
		}
		return false, fmt.Errorf("failed to check lecture membership: %w", err)
	}
	return member, nil
}

// AppendChatMessage persists a chat message
func (m *Manager) AppendChatMessage(ctx context.Context, message *types.ChatMessage) error {
	if message == nil {
		return fmt.Errorf("chat message cannot be nil")
	}
	if err := message.Validate(); err != nil {
		return fmt.Errorf("invalid chat message: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO chat_messages (id, lecture_id, sender_id, content, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, message.ID, message.LectureID, message.SenderID, message.Content, message.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", translate(err))
		}
		return nil
	})
}

// ListChatMessages returns the chat of a lecture in timestamp order
func (m *Manager) ListChatMessages(ctx context.Context, lectureID types.LectureID) ([]*types.ChatMessage, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, lecture_id, sender_id, content, timestamp
		FROM chat_messages
		WHERE lecture_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, lectureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.ChatMessage{}
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.LectureID, &msg.SenderID, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat message rows: %w", err)
	}
	return messages, nil
}

// AppendNote persists a generated lecture note
func (m *Manager) AppendNote(ctx context.Context, note *types.LectureNote) error {
	if note == nil {
		return fmt.Errorf("lecture note cannot be nil")
	}
	if !types.IsValidLectureID(note.LectureID) {
		return fmt.Errorf("invalid lecture note: %w", types.ErrInvalidLectureID)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lecture_notes (id, lecture_id, content, timestamp)
			VALUES (?, ?, ?, ?)
		`, note.ID, note.LectureID, note.Content, note.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert lecture note: %w", translate(err))
		}
		return nil
	})
}

// ListNotes returns the notes of a lecture in timestamp order
func (m *Manager) ListNotes(ctx context.Context, lectureID types.LectureID) ([]*types.LectureNote, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, lecture_id, content, timestamp
		FROM lecture_notes
		WHERE lecture_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, lectureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lecture notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	notes := []*types.LectureNote{}
	for rows.Next() {
		var note types.LectureNote
		if err := rows.Scan(&note.ID, &note.LectureID, &note.Content, &note.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan lecture note row: %w", err)
		}
		notes = append(notes, &note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lecture note rows: %w", err)
	}
	return notes, nil
}

// CreateUser inserts a user profile
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	if user == nil || !types.IsValidUserID(user.ID) {
		return types.ErrInvalidUserID
	}
	role := user.Role
	if role == "" {
		role = types.RoleStudent
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, name, email, role) VALUES (?, ?, ?, ?)`,
			user.ID, user.Name, user.Email, role,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user %s: %w", user.ID, translate(err))
		}
		return nil
	})
}

// CreateClassroom inserts a classroom and its initial members atomically
func (m *Manager) CreateClassroom(ctx context.Context, classroom *types.Classroom) error {
	if classroom == nil || classroom.ID == "" {
		return fmt.Errorf("classroom id cannot be empty")
	}
	createdAt := classroom.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO classrooms (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)`,
			classroom.ID, classroom.Name, classroom.OwnerID, createdAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert classroom %s: %w", classroom.ID, translate(err))
		}
		for _, memberID := range classroom.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO classroom_members (classroom_id, user_id) VALUES (?, ?)`,
				classroom.ID, memberID,
			); err != nil {
				return fmt.Errorf("failed to insert classroom member %s: %w", memberID, translate(err))
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit classroom creation: %w", err)
		}
		return nil
	})
}

// AddClassroomMember enrolls a user; enrolling twice is a no-op
func (m *Manager) AddClassroomMember(ctx context.Context, classroomID types.ClassroomID, userID types.UserID) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO classroom_members (classroom_id, user_id) VALUES (?, ?)`,
			classroomID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to add classroom member: %w", translate(err))
		}
		return nil
	})
}

// CreateLecture inserts a lecture
func (m *Manager) CreateLecture(ctx context.Context, lecture *types.Lecture) error {
	if lecture == nil {
		return fmt.Errorf("lecture cannot be nil")
	}
	if err := lecture.Validate(); err != nil {
		return fmt.Errorf("invalid lecture: %w", err)
	}
	createdAt := lecture.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lectures (id, classroom_id, title, owner_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, lecture.ID, lecture.ClassroomID, lecture.Title, lecture.OwnerID, createdAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert lecture %s: %w", lecture.ID, translate(err))
		}
		return nil
	})
}

// HealthCheck validates connectivity with a ping and a read
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lectures").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// DB exposes the connection pool for migrations and tests
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the pool. Safe to call repeatedly.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// TECHNICAL DISCOVERY: Pragmas are per connection; WAL keeps readers off the writer's lock
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// translate maps constraint failures onto the store's sentinel errors
func translate(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %v", interfaces.ErrAlreadyExists, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", ErrReferenceNotFound, err)
	}
	return err
}
