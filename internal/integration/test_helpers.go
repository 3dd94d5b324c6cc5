package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"lecturehall/internal/ai"
	"lecturehall/internal/app"
	"lecturehall/internal/config"
	"lecturehall/internal/protocol"
	"lecturehall/internal/store/memory"
	"lecturehall/pkg/types"
)

const receiveTimeout = 5 * time.Second

// testServer is a running application backed by a seeded memory store
type testServer struct {
	app   *app.Application
	store *memory.Store
	addr  string
}

// startServer seeds the classroom directory and runs the full application
// on an ephemeral port
func startServer(t *testing.T, generator ai.Generator) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := memory.New()
	for _, u := range []*types.User{
		{ID: "teacher", Name: "Ada", Role: types.RoleTeacher},
		{ID: "student1", Name: "Ben", Role: types.RoleStudent},
		{ID: "student2", Name: "Cleo", Role: types.RoleStudent},
	} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	if err := store.CreateClassroom(ctx, &types.Classroom{
		ID:        "physics",
		Name:      "Physics",
		OwnerID:   "teacher",
		MemberIDs: []types.UserID{"student1", "student2"},
	}); err != nil {
		t.Fatalf("CreateClassroom: %v", err)
	}
	for _, l := range []*types.Lecture{
		{ID: "room7", ClassroomID: "physics", Title: "Optics", OwnerID: "teacher", CreatedAt: time.Now()},
		{ID: "room8", ClassroomID: "physics", Title: "Waves", OwnerID: "teacher", CreatedAt: time.Now()},
	} {
		if err := store.CreateLecture(ctx, l); err != nil {
			t.Fatalf("CreateLecture: %v", err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverMemory
	cfg.Database.Path = ""

	opts := []app.Option{app.WithStore(store), app.WithAddress("127.0.0.1:0")}
	if generator != nil {
		opts = append(opts, app.WithGenerator(generator))
	}
	application, err := app.NewApplication(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			t.Logf("Stop: %v", err)
		}
	})

	return &testServer{app: application, store: store, addr: application.GetAddr()}
}

// testClient is a WebSocket client that collects every envelope it receives
type testClient struct {
	t        *testing.T
	conn     *websocket.Conn
	frames   chan protocol.Envelope
	done     chan struct{}
	writeMu  sync.Mutex
	pingSeq  int64
	closeOne sync.Once
}

func (s *testServer) dial(t *testing.T) *testClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+s.addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := &testClient{
		t:      t,
		conn:   conn,
		frames: make(chan protocol.Envelope, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(c.close)
	return c
}

func (c *testClient) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case c.frames <- env:
		default:
		}
	}
}

func (c *testClient) close() {
	c.closeOne.Do(func() {
		_ = c.conn.Close()
		<-c.done
	})
}

func (c *testClient) send(kind protocol.Kind, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal %s: %v", kind, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(protocol.Envelope{Type: kind, Payload: raw}); err != nil {
		c.t.Fatalf("write %s: %v", kind, err)
	}
}

// next returns the next envelope or fails the test
func (c *testClient) next() protocol.Envelope {
	c.t.Helper()
	select {
	case env := <-c.frames:
		return env
	case <-c.done:
		c.t.Fatal("connection closed while waiting for a frame")
	case <-time.After(receiveTimeout):
		c.t.Fatal("timeout waiting for a frame")
	}
	return protocol.Envelope{}
}

// expect reads the next envelope and decodes it as kind
func expect[T any](c *testClient, kind protocol.Kind) T {
	c.t.Helper()
	env := c.next()
	if env.Type != kind {
		c.t.Fatalf("expected %s, got %s: %s", kind, env.Type, env.Payload)
	}
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		c.t.Fatalf("decode %s: %v", kind, err)
	}
	return v
}

// drain round-trips a ping and returns every envelope received before the pong
func (c *testClient) drain() []protocol.Envelope {
	c.t.Helper()
	c.pingSeq++
	ts := c.pingSeq + 1e9
	c.send(protocol.KindPing, protocol.Ping{Timestamp: ts})

	var frames []protocol.Envelope
	for {
		env := c.next()
		if env.Type == protocol.KindPong {
			var pong protocol.Pong
			if err := json.Unmarshal(env.Payload, &pong); err == nil && pong.Timestamp == ts {
				return frames
			}
		}
		frames = append(frames, env)
	}
}

// login authenticates and joins a lecture, consuming the join replies
func (c *testClient) login(user types.UserID, lecture types.LectureID) protocol.JoinLectureResponse {
	c.t.Helper()
	c.send(protocol.KindAuth, protocol.Auth{UserID: user})
	if resp := expect[protocol.AuthResponse](c, protocol.KindAuthResponse); !resp.Success {
		c.t.Fatalf("auth %s failed: %s", user, resp.Error)
	}
	c.send(protocol.KindJoinLecture, protocol.JoinLecture{LectureID: lecture})
	join := expect[protocol.JoinLectureResponse](c, protocol.KindJoinLectureResponse)
	if !join.Success {
		c.t.Fatalf("join %s failed", lecture)
	}
	expect[protocol.ChatHistory](c, protocol.KindChatHistory)
	for _, env := range c.drain() {
		if env.Type != protocol.KindLectureNote {
			c.t.Fatalf("unexpected frame after join: %s", env.Type)
		}
	}
	return join
}

func kinds(frames []protocol.Envelope) string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = string(f.Type)
	}
	return fmt.Sprintf("[%s]", strings.Join(names, " "))
}
