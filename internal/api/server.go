package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"lecturehall/internal/auth"
	"lecturehall/internal/lecture"
	"lecturehall/internal/router"
	"lecturehall/internal/websocket"
	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

const userIDContextKey = "lecturehall_user_id"

var (
	errMissingStore    = errors.New("api: store dependency required")
	errMissingRegistry = errors.New("api: registry dependency required")
	errMissingLectures = errors.New("api: lecture manager dependency required")
)

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (types.UserID, error)
}

// RecordingView exposes live recording state
type RecordingView interface {
	Recording(lectureID types.LectureID) (router.Recording, bool)
	ActiveRecordings() []types.LectureID
}

// Dependencies are the components the API reads from. Tokens, Recordings
// and WebSocket are optional.
type Dependencies struct {
	Store          interfaces.Store
	Registry       *websocket.Registry
	Lectures       *lecture.Manager
	Recordings     RecordingView
	Tokens         TokenVerifier
	WebSocket      http.Handler
	ICEServers     []webrtc.ICEServer
	AllowedOrigins []string
	Logger         *zap.Logger
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	store      interfaces.Store
	registry   *websocket.Registry
	lectures   *lecture.Manager
	recordings RecordingView
	tokens     TokenVerifier
	iceServers []webrtc.ICEServer
	logger     *zap.Logger
	started    time.Time
	engine     *gin.Engine
}

type HealthResponse struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Database    string          `json:"database"`
	Connections websocket.Stats `json:"connections"`
	Recordings  int             `json:"recordings"`
	Uptime      string          `json:"uptime"`
}

type PresenceResponse struct {
	LectureID   types.LectureID   `json:"lectureId"`
	Members     []types.UserID    `json:"members"`
	Connections int               `json:"connections"`
	Recording   *router.Recording `json:"recording,omitempty"`
}

type MessagesResponse struct {
	LectureID types.LectureID      `json:"lectureId"`
	Messages  []*types.ChatMessage `json:"messages"`
}

type NotesResponse struct {
	LectureID types.LectureID      `json:"lectureId"`
	Current   *types.LectureNote   `json:"current,omitempty"`
	Notes     []*types.LectureNote `json:"notes"`
}

type ICEServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewServer builds the gin engine
// FUNCTIONAL DISCOVERY: Dependency injection pattern maintains architectural boundaries
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Lectures == nil {
		return nil, errMissingLectures
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		store:      deps.Store,
		registry:   deps.Registry,
		lectures:   deps.Lectures,
		recordings: deps.Recordings,
		tokens:     deps.Tokens,
		iceServers: deps.ICEServers,
		logger:     logger.With(zap.String("module", "api")),
		started:    time.Now(),
	}
	if s.iceServers == nil {
		s.iceServers = []webrtc.ICEServer{}
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(deps.AllowedOrigins))
	engine.Use(s.accessLog)

	engine.GET("/health", s.healthCheck)
	engine.GET("/api/ice-servers", s.iceServersHandler)

	lectures := engine.Group("/api/lectures/:id")
	lectures.Use(s.authorizeRequest, s.loadLecture)
	lectures.GET("/presence", s.presence)
	lectures.GET("/messages", s.messages)
	lectures.GET("/notes", s.notes)

	if deps.WebSocket != nil {
		engine.GET("/ws", gin.WrapH(deps.WebSocket))
	}

	s.engine = engine
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)))
}

// FUNCTIONAL DISCOVERY: GET /health - store connectivity plus live connection counts
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "error: " + err.Error()
	}

	recordings := 0
	if s.recordings != nil {
		recordings = len(s.recordings.ActiveRecordings())
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
		Recordings:  recordings,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

func (s *Server) iceServersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, ICEServersResponse{ICEServers: s.iceServers})
}

// authorizeRequest requires a bearer token when tokens are enabled
func (s *Server) authorizeRequest(c *gin.Context) {
	if s.tokens == nil {
		c.Next()
		return
	}
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		sendError(c, http.StatusUnauthorized, "authorization header missing or invalid")
		return
	}
	subject, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.Warn("token validation failed", zap.Error(err))
		sendError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	c.Set(userIDContextKey, string(subject))
	c.Next()
}

// loadLecture resolves :id and enforces membership for authenticated callers
func (s *Server) loadLecture(c *gin.Context) {
	lectureID := types.LectureID(c.Param("id"))
	ctx := c.Request.Context()

	var err error
	if userID := c.GetString(userIDContextKey); userID != "" {
		err = s.lectures.ValidateMembership(ctx, lectureID, types.UserID(userID))
	} else {
		_, err = s.lectures.GetLecture(ctx, lectureID)
	}

	switch {
	case err == nil:
		c.Next()
	case errors.Is(err, lecture.ErrLectureNotFound), errors.Is(err, lecture.ErrInvalidLectureID):
		sendError(c, http.StatusNotFound, "lecture not found")
	case errors.Is(err, lecture.ErrUnauthorized):
		sendError(c, http.StatusForbidden, "not a member of this lecture")
	default:
		s.logger.Error("lecture lookup failed", zap.String("lecture_id", string(lectureID)), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "lecture lookup failed")
	}
}

// FUNCTIONAL DISCOVERY: GET /api/lectures/:id/presence - who is in the room right now
func (s *Server) presence(c *gin.Context) {
	lectureID := types.LectureID(c.Param("id"))
	response := PresenceResponse{
		LectureID:   lectureID,
		Members:     s.registry.Members(lectureID),
		Connections: s.registry.RoomSize(lectureID),
	}
	if s.recordings != nil {
		if rec, ok := s.recordings.Recording(lectureID); ok {
			response.Recording = &rec
		}
	}
	c.JSON(http.StatusOK, response)
}

// GET /api/lectures/:id/messages?limit=N returns the last N messages, oldest first
func (s *Server) messages(c *gin.Context) {
	lectureID := types.LectureID(c.Param("id"))

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := s.store.ListChatMessages(c.Request.Context(), lectureID)
	if err != nil {
		s.logger.Error("failed to list messages", zap.String("lecture_id", string(lectureID)), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []*types.ChatMessage{}
	}
	c.JSON(http.StatusOK, MessagesResponse{LectureID: lectureID, Messages: msgs})
}

func (s *Server) notes(c *gin.Context) {
	lectureID := types.LectureID(c.Param("id"))

	notes, err := s.store.ListNotes(c.Request.Context(), lectureID)
	if err != nil {
		s.logger.Error("failed to list notes", zap.String("lecture_id", string(lectureID)), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "failed to list notes")
		return
	}

	response := NotesResponse{LectureID: lectureID, Notes: notes}
	if response.Notes == nil {
		response.Notes = []*types.LectureNote{}
	}
	if len(notes) > 0 {
		response.Current = notes[len(notes)-1]
	}
	c.JSON(http.StatusOK, response)
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
