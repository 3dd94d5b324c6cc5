// Package router validates inbound envelopes against connection state and
// performs the effect each kind calls for.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lecturehall/internal/lecture"
	"lecturehall/internal/protocol"
	"lecturehall/internal/websocket"
	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

// TokenVerifier checks an auth token and returns the user it was issued to
type TokenVerifier interface {
	Verify(token string) (types.UserID, error)
}

// DepartureSink announces that a connection left a room
type DepartureSink interface {
	PublishDeparture(dep websocket.Departure)
}

// TranscriptSink receives final transcription lines for note generation
type TranscriptSink interface {
	Submit(lectureID types.LectureID, speakerID types.UserID, text string)
}

// Dependencies are the collaborators the router calls into.
// Notes and Tokens are optional.
type Dependencies struct {
	Registry   *websocket.Registry
	Store      interfaces.Store
	Lectures   *lecture.Manager
	Departures DepartureSink
	Notes      TranscriptSink
	Tokens     TokenVerifier
}

// Config tunes router behaviour
type Config struct {
	// RateLimit is the number of chat messages per user per RateWindow. Zero disables limiting.
	RateLimit       int
	RateWindow      time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the default router configuration
func DefaultConfig() Config {
	return Config{
		RateLimit:       DefaultRateLimit,
		RateWindow:      time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Recording describes an active recording in a lecture
type Recording struct {
	StartedBy types.UserID `json:"startedBy"`
	StartedAt time.Time    `json:"startedAt"`
}

// Router implements websocket.Dispatcher
// ARCHITECTURAL DISCOVERY: Routing decisions live here; delivery is delegated to
// the registry (synchronous replies and broadcasts) and the hub (departures)
type Router struct {
	registry    *websocket.Registry
	store       interfaces.Store
	lectures    *lecture.Manager
	departures  DepartureSink
	notes       TranscriptSink
	tokens      TokenVerifier
	rateLimiter *RateLimiter
	config      Config
	logger      *zap.Logger

	roomLocksMu sync.Mutex
	roomLocks   map[types.LectureID]*sync.Mutex

	recordingsMu sync.Mutex
	recordings   map[types.LectureID]Recording

	now   func() time.Time
	newID func() string
}

// NewRouter creates a router
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with in-memory components
func NewRouter(deps Dependencies, config Config, logger *zap.Logger) (*Router, error) {
	if deps.Registry == nil || deps.Store == nil || deps.Lectures == nil || deps.Departures == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RateWindow <= 0 {
		config.RateWindow = time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = config.RateWindow
	}

	return &Router{
		registry:    deps.Registry,
		store:       deps.Store,
		lectures:    deps.Lectures,
		departures:  deps.Departures,
		notes:       deps.Notes,
		tokens:      deps.Tokens,
		rateLimiter: NewRateLimiter(config.RateLimit, config.RateWindow),
		config:      config,
		logger:      logger.With(zap.String("module", "router")),
		roomLocks:   make(map[types.LectureID]*sync.Mutex),
		recordings:  make(map[types.LectureID]Recording),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}, nil
}

// Run removes stale rate limiter state until ctx is cancelled
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.rateLimiter.Cleanup()
		}
	}
}

// Dispatch decodes one frame and runs the handler for its kind
func (r *Router) Dispatch(ctx context.Context, conn *websocket.Connection, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) {
			r.sendError(conn, protocol.CodeUnknownKind, msg.Kind(), fmt.Sprintf("unknown message kind %q", msg.Kind()))
			return
		}
		r.sendError(conn, protocol.CodeMalformedEnvelope, protocol.PeekKind(data), err.Error())
		return
	}

	// TECHNICAL DISCOVERY: Only this goroutine changes this connection's state,
	// so the snapshot stays accurate for the whole dispatch
	state := conn.State()

	switch m := msg.(type) {
	case protocol.Ping:
		r.handlePing(conn, m)
		return
	case protocol.Auth:
		r.handleAuth(ctx, conn, state, m)
		return
	}

	if !state.IsAuthenticated() {
		r.sendError(conn, protocol.CodeNotAuthenticated, msg.Kind(), "authenticate first")
		return
	}

	switch m := msg.(type) {
	case protocol.JoinLecture:
		r.handleJoinLecture(ctx, conn, state, m)
		return
	case protocol.LeaveLecture:
		r.handleLeaveLecture(conn)
		return
	}

	if !state.IsInRoom() {
		r.sendError(conn, protocol.CodeNotInRoom, msg.Kind(), "join a lecture first")
		return
	}

	switch m := msg.(type) {
	case protocol.ChatMessage:
		r.handleChatMessage(ctx, conn, state, m)
	case protocol.Signal:
		r.handleSignal(conn, state, m)
	case protocol.JoinVideo:
		r.handleJoinVideo(conn, state)
	case protocol.LeaveVideo:
		r.handleLeaveVideo(conn, state)
	case protocol.Transcription:
		r.handleTranscription(conn, state, m)
	case protocol.StartRecording:
		r.handleStartRecording(ctx, conn, state)
	case protocol.StopRecording:
		r.handleStopRecording(ctx, conn, state)
	case protocol.RecordingData:
		r.handleRecordingData(ctx, conn, state, m)
	default:
		r.sendError(conn, protocol.CodeUnknownKind, msg.Kind(), fmt.Sprintf("unknown message kind %q", msg.Kind()))
	}
}

// Disconnected forwards the departure of a closed connection to the hub
func (r *Router) Disconnected(dep websocket.Departure) {
	r.departures.PublishDeparture(dep)
}

// RoomEmptied clears per-room state once the last connection has left
func (r *Router) RoomEmptied(lectureID types.LectureID) {
	r.recordingsMu.Lock()
	_, wasRecording := r.recordings[lectureID]
	delete(r.recordings, lectureID)
	r.recordingsMu.Unlock()

	if wasRecording {
		r.logger.Info("recording abandoned in empty room", zap.String("lecture_id", string(lectureID)))
	}
}

// Recording returns the active recording of a lecture, if any
func (r *Router) Recording(lectureID types.LectureID) (Recording, bool) {
	r.recordingsMu.Lock()
	defer r.recordingsMu.Unlock()
	rec, ok := r.recordings[lectureID]
	return rec, ok
}

func (r *Router) handlePing(conn *websocket.Connection, m protocol.Ping) {
	r.reply(conn, protocol.KindPong, protocol.Pong{
		Timestamp:  m.Timestamp,
		ServerTime: r.now().UnixMilli(),
	})
}

func (r *Router) handleAuth(ctx context.Context, conn *websocket.Connection, state websocket.State, m protocol.Auth) {
	fail := func(reason string) {
		r.reply(conn, protocol.KindAuthResponse, protocol.AuthResponse{Success: false, Error: reason})
	}

	if err := r.verifyToken(m); err != nil {
		r.logger.Info("auth token rejected",
			zap.String("user_id", string(m.UserID)),
			zap.Error(err))
		fail("invalid token")
		return
	}

	user, err := r.store.GetUser(ctx, m.UserID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			fail("user not found")
			return
		}
		r.logger.Error("user lookup failed", zap.String("user_id", string(m.UserID)), zap.Error(err))
		fail("authentication unavailable")
		return
	}

	dep, left, err := r.registry.Authenticate(conn, user.ID)
	if err != nil {
		r.logger.Warn("failed to bind identity", zap.Uint64("conn_id", uint64(conn.ID())), zap.Error(err))
		fail("authentication unavailable")
		return
	}
	if left {
		r.departures.PublishDeparture(dep)
	}

	if state.IsAuthenticated() && state.UserID() != user.ID {
		r.logger.Info("connection re-authenticated",
			zap.String("from", string(state.UserID())),
			zap.String("to", string(user.ID)))
	}

	r.reply(conn, protocol.KindAuthResponse, protocol.AuthResponse{Success: true, User: user})
}

func (r *Router) verifyToken(m protocol.Auth) error {
	if r.tokens == nil {
		return nil
	}
	if m.Token == "" {
		return ErrTokenRequired
	}
	subject, err := r.tokens.Verify(m.Token)
	if err != nil {
		return err
	}
	if subject != m.UserID {
		return ErrTokenMismatch
	}
	return nil
}

func (r *Router) handleJoinLecture(ctx context.Context, conn *websocket.Connection, state websocket.State, m protocol.JoinLecture) {
	userID := state.UserID()

	if err := r.lectures.ValidateMembership(ctx, m.LectureID, userID); err != nil {
		switch {
		case errors.Is(err, lecture.ErrLectureNotFound), errors.Is(err, lecture.ErrInvalidLectureID):
			r.sendError(conn, protocol.CodeRoomNotFound, m.Kind(), "lecture not found")
		case errors.Is(err, lecture.ErrUnauthorized):
			r.sendError(conn, protocol.CodeForbidden, m.Kind(), "not a member of this lecture")
		default:
			r.logger.Error("membership check failed",
				zap.String("lecture_id", string(m.LectureID)),
				zap.String("user_id", string(userID)),
				zap.Error(err))
			r.sendError(conn, protocol.CodeInternal, m.Kind(), "membership check unavailable")
		}
		return
	}

	// ARCHITECTURAL DISCOVERY: The room's chat lock is held from bind to history
	// replay, so every chat message is either in the replay or broadcast after it
	lock := r.roomLock(m.LectureID)
	lock.Lock()
	result, err := r.registry.Join(conn, m.LectureID)
	if err != nil {
		lock.Unlock()
		r.logger.Warn("join failed", zap.Uint64("conn_id", uint64(conn.ID())), zap.Error(err))
		r.sendError(conn, protocol.CodeInternal, m.Kind(), "join failed")
		return
	}
	if result.Previous != nil {
		r.departures.PublishDeparture(*result.Previous)
	}

	r.reply(conn, protocol.KindJoinLectureResponse, protocol.JoinLectureResponse{
		Success:   true,
		LectureID: m.LectureID,
		Members:   result.Members,
	})
	r.reply(conn, protocol.KindChatHistory, protocol.ChatHistory{
		LectureID: m.LectureID,
		Messages:  r.chatHistory(ctx, m.LectureID),
	})
	lock.Unlock()

	notes, err := r.store.ListNotes(ctx, m.LectureID)
	if err != nil {
		r.logger.Warn("failed to load lecture notes", zap.String("lecture_id", string(m.LectureID)), zap.Error(err))
	} else if len(notes) > 0 {
		r.reply(conn, protocol.KindLectureNote, protocol.LectureNoteEvent{LectureNote: *notes[len(notes)-1]})
	}

	r.logger.Info("joined lecture",
		zap.String("lecture_id", string(m.LectureID)),
		zap.String("user_id", string(userID)),
		zap.Int("members", len(result.Members)))
}

// chatHistory loads the room's messages with sender profiles. A store failure
// yields an empty history rather than failing the join.
func (r *Router) chatHistory(ctx context.Context, lectureID types.LectureID) []protocol.ChatEntry {
	messages, err := r.store.ListChatMessages(ctx, lectureID)
	if err != nil {
		r.logger.Warn("failed to load chat history", zap.String("lecture_id", string(lectureID)), zap.Error(err))
		return []protocol.ChatEntry{}
	}

	profiles := make(map[types.UserID]*types.User)
	entries := make([]protocol.ChatEntry, 0, len(messages))
	for _, msg := range messages {
		sender, seen := profiles[msg.SenderID]
		if !seen {
			sender = r.lookupUser(ctx, msg.SenderID)
			profiles[msg.SenderID] = sender
		}
		entries = append(entries, protocol.ChatEntry{ChatMessage: *msg, Sender: sender})
	}
	return entries
}

func (r *Router) handleLeaveLecture(conn *websocket.Connection) {
	dep, ok := r.registry.Leave(conn)
	if !ok {
		return
	}
	r.departures.PublishDeparture(dep)
	r.logger.Info("left lecture",
		zap.String("lecture_id", string(dep.LectureID)),
		zap.String("user_id", string(dep.UserID)))
}

func (r *Router) handleChatMessage(ctx context.Context, conn *websocket.Connection, state websocket.State, m protocol.ChatMessage) {
	userID := state.UserID()
	lectureID := state.LectureID()

	if !r.rateLimiter.Allow(userID) {
		r.sendError(conn, protocol.CodeRateLimited, m.Kind(), "too many chat messages")
		return
	}

	sender := r.lookupUser(ctx, userID)

	// Persist-then-broadcast under the room lock keeps acceptance order equal to delivery order.
	// Timestamps are taken inside it so history sorted by time matches that order too.
	lock := r.roomLock(lectureID)
	lock.Lock()
	defer lock.Unlock()

	// FUNCTIONAL DISCOVERY: Server assigns id and timestamp; clients cannot forge either
	msg := &types.ChatMessage{
		ID:        r.newID(),
		LectureID: lectureID,
		SenderID:  userID,
		Content:   strings.TrimSpace(m.Content),
		Timestamp: r.now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		r.sendError(conn, protocol.CodeMalformedEnvelope, m.Kind(), err.Error())
		return
	}

	entry := protocol.ChatEntry{ChatMessage: *msg, Sender: sender}
	frame, err := protocol.Encode(protocol.KindChatMessage, entry)
	if err != nil {
		r.logger.Error("failed to encode chat message", zap.Error(err))
		r.sendError(conn, protocol.CodeInternal, m.Kind(), "message not delivered")
		return
	}

	if err := r.store.AppendChatMessage(ctx, msg); err != nil {
		r.logger.Error("failed to persist chat message",
			zap.String("lecture_id", string(lectureID)),
			zap.Error(err))
		r.sendError(conn, protocol.CodeInternal, m.Kind(), "message not saved")
		return
	}
	r.registry.Broadcast(lectureID, frame, 0)
}

func (r *Router) handleSignal(conn *websocket.Connection, state websocket.State, m protocol.Signal) {
	target, ok := r.registry.Find(state.LectureID(), m.Target)
	if !ok || target.ID() == conn.ID() {
		r.logger.Debug("signal target not in room",
			zap.String("lecture_id", string(state.LectureID())),
			zap.String("target", string(m.Target)))
		return
	}
	if err := target.SendEnvelope(protocol.KindSignal, protocol.SignalRelay{Peer: state.UserID(), Data: m.Data}); err != nil {
		r.logger.Debug("signal not delivered", zap.String("target", string(m.Target)), zap.Error(err))
	}
}

func (r *Router) handleJoinVideo(conn *websocket.Connection, state websocket.State) {
	r.broadcast(state.LectureID(), protocol.KindPeerJoined, protocol.PeerJoined{PeerID: state.UserID()}, conn.ID())

	peers := make([]types.UserID, 0)
	for _, member := range r.registry.Members(state.LectureID()) {
		if member != state.UserID() {
			peers = append(peers, member)
		}
	}
	r.reply(conn, protocol.KindPeersInLecture, protocol.PeersInLecture{Peers: peers})
}

func (r *Router) handleLeaveVideo(conn *websocket.Connection, state websocket.State) {
	r.broadcast(state.LectureID(), protocol.KindPeerLeft, protocol.PeerLeft{PeerID: state.UserID()}, conn.ID())
}

func (r *Router) handleTranscription(conn *websocket.Connection, state websocket.State, m protocol.Transcription) {
	r.broadcast(state.LectureID(), protocol.KindTranscription, protocol.TranscriptionEvent{
		SpeakerID: state.UserID(),
		Text:      m.Text,
		IsFinal:   m.IsFinal,
		Timestamp: r.now().UTC(),
	}, conn.ID())

	if m.IsFinal && r.notes != nil && strings.TrimSpace(m.Text) != "" {
		r.notes.Submit(state.LectureID(), state.UserID(), m.Text)
	}
}

func (r *Router) handleStartRecording(ctx context.Context, conn *websocket.Connection, state websocket.State) {
	if !r.requireOwner(ctx, conn, state, protocol.KindStartRecording) {
		return
	}

	now := r.now().UTC()
	r.recordingsMu.Lock()
	if _, active := r.recordings[state.LectureID()]; active {
		r.recordingsMu.Unlock()
		r.sendError(conn, protocol.CodeRecordingActive, protocol.KindStartRecording, "recording already in progress")
		return
	}
	r.recordings[state.LectureID()] = Recording{StartedBy: state.UserID(), StartedAt: now}
	r.recordingsMu.Unlock()

	r.broadcast(state.LectureID(), protocol.KindRecordingStarted, protocol.RecordingStarted{
		LectureID: state.LectureID(),
		StartedBy: state.UserID(),
		Timestamp: now,
	}, 0)
	r.logger.Info("recording started", zap.String("lecture_id", string(state.LectureID())))
}

func (r *Router) handleStopRecording(ctx context.Context, conn *websocket.Connection, state websocket.State) {
	if !r.requireOwner(ctx, conn, state, protocol.KindStopRecording) {
		return
	}

	r.recordingsMu.Lock()
	if _, active := r.recordings[state.LectureID()]; !active {
		r.recordingsMu.Unlock()
		r.sendError(conn, protocol.CodeRecordingInactive, protocol.KindStopRecording, "no recording in progress")
		return
	}
	delete(r.recordings, state.LectureID())
	r.recordingsMu.Unlock()

	r.broadcast(state.LectureID(), protocol.KindRecordingStopped, protocol.RecordingStopped{
		LectureID: state.LectureID(),
		StoppedBy: state.UserID(),
		Timestamp: r.now().UTC(),
	}, 0)
	r.logger.Info("recording stopped", zap.String("lecture_id", string(state.LectureID())))
}

func (r *Router) handleRecordingData(ctx context.Context, conn *websocket.Connection, state websocket.State, m protocol.RecordingData) {
	if !r.requireOwner(ctx, conn, state, m.Kind()) {
		return
	}
	if _, active := r.Recording(state.LectureID()); !active {
		r.sendError(conn, protocol.CodeRecordingInactive, m.Kind(), "no recording in progress")
		return
	}
	r.broadcast(state.LectureID(), protocol.KindRecordingData, protocol.RecordingDataRelay{
		From: state.UserID(),
		Data: m.Data,
	}, conn.ID())
}

func (r *Router) requireOwner(ctx context.Context, conn *websocket.Connection, state websocket.State, kind protocol.Kind) bool {
	owner, err := r.lectures.IsOwner(ctx, state.LectureID(), state.UserID())
	switch {
	case errors.Is(err, lecture.ErrLectureNotFound):
		r.sendError(conn, protocol.CodeRoomNotFound, kind, "lecture not found")
		return false
	case err != nil:
		r.logger.Error("owner check failed", zap.String("lecture_id", string(state.LectureID())), zap.Error(err))
		r.sendError(conn, protocol.CodeInternal, kind, "owner check unavailable")
		return false
	case !owner:
		r.sendError(conn, protocol.CodeNotOwner, kind, "only the lecture owner can do this")
		return false
	}
	return true
}

func (r *Router) lookupUser(ctx context.Context, userID types.UserID) *types.User {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		r.logger.Debug("sender profile unavailable", zap.String("user_id", string(userID)), zap.Error(err))
		return nil
	}
	return user
}

func (r *Router) roomLock(lectureID types.LectureID) *sync.Mutex {
	r.roomLocksMu.Lock()
	defer r.roomLocksMu.Unlock()

	lock, ok := r.roomLocks[lectureID]
	if !ok {
		lock = &sync.Mutex{}
		r.roomLocks[lectureID] = lock
	}
	return lock
}

func (r *Router) broadcast(lectureID types.LectureID, kind protocol.Kind, payload any, exclude websocket.ConnID) {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		r.logger.Error("failed to encode broadcast", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	r.registry.Broadcast(lectureID, frame, exclude)
}

func (r *Router) reply(conn *websocket.Connection, kind protocol.Kind, payload any) {
	if err := conn.SendEnvelope(kind, payload); err != nil {
		r.logger.Debug("reply not delivered",
			zap.Uint64("conn_id", uint64(conn.ID())),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (r *Router) sendError(conn *websocket.Connection, code protocol.ErrorCode, kind protocol.Kind, message string) {
	r.reply(conn, protocol.KindError, protocol.NewError(code, kind, message))
}

// ActiveRecordings returns the lectures currently recording, sorted
func (r *Router) ActiveRecordings() []types.LectureID {
	r.recordingsMu.Lock()
	defer r.recordingsMu.Unlock()

	ids := make([]types.LectureID, 0, len(r.recordings))
	for id := range r.recordings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
