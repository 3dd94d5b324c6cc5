package router

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lecturehall/internal/lecture"
	"lecturehall/internal/protocol"
	"lecturehall/internal/store/memory"
	"lecturehall/internal/websocket"
	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

// testSocket decodes every frame the writer goroutine produces
type testSocket struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	closed bool
}

func (s *testSocket) WriteMessage(_ int, data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames = append(s.frames, env)
	s.mu.Unlock()
	return nil
}

func (s *testSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *testSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *testSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type departureRecorder struct {
	mu   sync.Mutex
	deps []websocket.Departure
}

func (d *departureRecorder) PublishDeparture(dep websocket.Departure) {
	d.mu.Lock()
	d.deps = append(d.deps, dep)
	d.mu.Unlock()
}

func (d *departureRecorder) all() []websocket.Departure {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]websocket.Departure(nil), d.deps...)
}

type transcriptRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (n *transcriptRecorder) Submit(lectureID types.LectureID, speakerID types.UserID, text string) {
	n.mu.Lock()
	n.lines = append(n.lines, string(lectureID)+"/"+string(speakerID)+": "+text)
	n.mu.Unlock()
}

func (n *transcriptRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.lines...)
}

type staticTokens map[string]types.UserID

func (s staticTokens) Verify(token string) (types.UserID, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", ErrTokenMismatch
}

// emptyStore hides every lecture of the wrapped store
type emptyStore struct {
	interfaces.Store
}

func (emptyStore) GetLecture(context.Context, types.LectureID) (*types.Lecture, error) {
	return nil, interfaces.ErrLectureNotFound
}

type fixture struct {
	router     *Router
	registry   *websocket.Registry
	store      *memory.Store
	departures *departureRecorder
	notes      *transcriptRecorder
}

// client is one connection plus its decoded output
type client struct {
	conn   *websocket.Connection
	socket *testSocket
	seen   int
}

var pingSeq atomic.Int64

// newFixture seeds alice (owner of lectures l1 and l2), bob (member) and
// carol (outsider)
func newFixture(t *testing.T, mutate ...func(*Dependencies, *Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	for _, u := range []*types.User{
		{ID: "alice", Name: "Alice", Role: types.RoleTeacher},
		{ID: "bob", Name: "Bob", Role: types.RoleStudent},
		{ID: "carol", Name: "Carol", Role: types.RoleStudent},
	} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	if err := store.CreateClassroom(ctx, &types.Classroom{ID: "c1", Name: "Physics", OwnerID: "alice"}); err != nil {
		t.Fatalf("CreateClassroom: %v", err)
	}
	if err := store.AddClassroomMember(ctx, "c1", "bob"); err != nil {
		t.Fatalf("AddClassroomMember: %v", err)
	}
	for _, id := range []types.LectureID{"l1", "l2"} {
		l := &types.Lecture{ID: id, ClassroomID: "c1", Title: "Lecture " + string(id), OwnerID: "alice", CreatedAt: time.Now()}
		if err := store.CreateLecture(ctx, l); err != nil {
			t.Fatalf("CreateLecture: %v", err)
		}
	}

	registry := websocket.NewRegistry()
	departures := &departureRecorder{}
	notes := &transcriptRecorder{}
	deps := Dependencies{
		Registry:   registry,
		Store:      store,
		Lectures:   lecture.NewManager(store, nil),
		Departures: departures,
		Notes:      notes,
	}
	config := DefaultConfig()
	for _, fn := range mutate {
		fn(&deps, &config)
	}

	r, err := NewRouter(deps, config, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &fixture{router: r, registry: registry, store: store, departures: departures, notes: notes}
}

func (f *fixture) connect(t *testing.T) *client {
	t.Helper()
	socket := &testSocket{}
	conn := websocket.NewConnection(socket, websocket.DefaultConnectionOptions())
	if _, err := f.registry.Register(conn); err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn, socket: socket}
}

func (f *fixture) send(t *testing.T, c *client, kind protocol.Kind, payload any) {
	t.Helper()
	frame := protocol.MustEncode(kind, payload)
	f.router.Dispatch(context.Background(), c.conn, frame)
}

func (f *fixture) sendRaw(c *client, data string) {
	f.router.Dispatch(context.Background(), c.conn, []byte(data))
}

// login authenticates and joins, discarding the join replies
func (f *fixture) login(t *testing.T, user types.UserID, lectureID types.LectureID) *client {
	t.Helper()
	c := f.connect(t)
	f.send(t, c, protocol.KindAuth, protocol.Auth{UserID: user})
	if lectureID != "" {
		f.send(t, c, protocol.KindJoinLecture, protocol.JoinLecture{LectureID: lectureID})
	}
	f.drain(t, c)
	return c
}

// drain returns every frame written to c since the last drain. A ping is
// dispatched and awaited, so frames enqueued before the call are all included.
func (f *fixture) drain(t *testing.T, c *client) []protocol.Envelope {
	t.Helper()
	ts := pingSeq.Add(1) + 1_000_000_000
	f.send(t, c, protocol.KindPing, protocol.Ping{Timestamp: ts})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.socket.mu.Lock()
		frames := append([]protocol.Envelope(nil), c.socket.frames[c.seen:]...)
		c.socket.mu.Unlock()

		for i, env := range frames {
			if env.Type != protocol.KindPong {
				continue
			}
			var pong protocol.Pong
			if err := json.Unmarshal(env.Payload, &pong); err == nil && pong.Timestamp == ts {
				c.seen += i + 1
				return frames[:i]
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("pong %d never arrived", ts)
	return nil
}

func kindsOf(envs []protocol.Envelope) []protocol.Kind {
	kinds := make([]protocol.Kind, len(envs))
	for i, env := range envs {
		kinds[i] = env.Type
	}
	return kinds
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}

func expectKinds(t *testing.T, envs []protocol.Envelope, want ...protocol.Kind) {
	t.Helper()
	got := kindsOf(envs)
	if len(got) != len(want) {
		t.Fatalf("expected kinds %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected kinds %v, got %v", want, got)
		}
	}
}

func expectError(t *testing.T, envs []protocol.Envelope, code protocol.ErrorCode) protocol.Error {
	t.Helper()
	expectKinds(t, envs, protocol.KindError)
	e := decodeAs[protocol.Error](t, envs[0])
	if e.Code != code {
		t.Fatalf("expected error code %s, got %s (%s)", code, e.Code, e.Message)
	}
	return e
}
