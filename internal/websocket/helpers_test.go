package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"lecturehall/internal/protocol"
)

// fakeSocket records frames written by the writer goroutine
type fakeSocket struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	block    chan struct{}
	writeErr error
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) envelopes() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	envs := make([]protocol.Envelope, 0, len(s.frames))
	for _, frame := range s.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err == nil {
			envs = append(envs, env)
		}
	}
	return envs
}

// waitForFrames polls until the socket has received n frames
func (s *fakeSocket) waitForFrames(t *testing.T, n int) []protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if envs := s.envelopes(); len(envs) >= n {
			return envs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d frames, got %d", n, len(s.envelopes()))
	return nil
}

func newTestConnection(t *testing.T) (*Connection, *fakeSocket) {
	t.Helper()
	socket := &fakeSocket{}
	conn := NewConnection(socket, DefaultConnectionOptions())
	t.Cleanup(func() { _ = conn.Close() })
	return conn, socket
}

func registerTestConnection(t *testing.T, registry *Registry) (*Connection, *fakeSocket) {
	t.Helper()
	conn, socket := newTestConnection(t)
	if _, err := registry.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return conn, socket
}
