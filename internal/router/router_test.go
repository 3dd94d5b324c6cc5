package router

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lecturehall/internal/lecture"
	"lecturehall/internal/protocol"
	"lecturehall/internal/websocket"
	"lecturehall/pkg/types"
)

// TestRouter_InterfaceCompliance tests architectural validation - interface compliance
func TestRouter_InterfaceCompliance(t *testing.T) {
	var _ websocket.Dispatcher = &Router{}
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	if _, err := NewRouter(Dependencies{}, DefaultConfig(), nil); err != ErrNilDependency {
		t.Errorf("expected ErrNilDependency, got %v", err)
	}
}

func TestAuth_Success(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	f.send(t, c, protocol.KindAuth, protocol.Auth{UserID: "bob"})
	envs := f.drain(t, c)

	expectKinds(t, envs, protocol.KindAuthResponse)
	resp := decodeAs[protocol.AuthResponse](t, envs[0])
	if !resp.Success || resp.User == nil || resp.User.Name != "Bob" {
		t.Errorf("unexpected auth response: %+v", resp)
	}
	if state := c.conn.State(); !state.IsAuthenticated() || state.UserID() != "bob" {
		t.Errorf("expected authenticated bob, got %v", state)
	}
}

func TestAuth_UnknownUserLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	c := f.login(t, "bob", "l1")

	f.send(t, c, protocol.KindAuth, protocol.Auth{UserID: "nobody"})
	envs := f.drain(t, c)

	expectKinds(t, envs, protocol.KindAuthResponse)
	resp := decodeAs[protocol.AuthResponse](t, envs[0])
	if resp.Success || resp.Error == "" {
		t.Errorf("expected failed auth response, got %+v", resp)
	}
	if state := c.conn.State(); !state.IsInRoom() || state.UserID() != "bob" {
		t.Errorf("failed auth must not change state, got %v", state)
	}
}

func TestAuth_AsDifferentUserLeavesRoom(t *testing.T) {
	f := newFixture(t)
	c := f.login(t, "bob", "l1")

	f.send(t, c, protocol.KindAuth, protocol.Auth{UserID: "alice"})
	f.drain(t, c)

	state := c.conn.State()
	if state.IsInRoom() || state.UserID() != "alice" {
		t.Errorf("expected authenticated alice outside any room, got %v", state)
	}
	deps := f.departures.all()
	if len(deps) != 1 || deps[0].UserID != "bob" || deps[0].LectureID != "l1" {
		t.Errorf("expected bob's departure from l1, got %+v", deps)
	}
}

func TestAuth_TokenRequiredWhenEnabled(t *testing.T) {
	f := newFixture(t, func(d *Dependencies, _ *Config) {
		d.Tokens = staticTokens{"bob-token": "bob"}
	})

	tests := []struct {
		name    string
		auth    protocol.Auth
		success bool
	}{
		{"valid token", protocol.Auth{UserID: "bob", Token: "bob-token"}, true},
		{"missing token", protocol.Auth{UserID: "bob"}, false},
		{"bad token", protocol.Auth{UserID: "bob", Token: "forged"}, false},
		{"token for another user", protocol.Auth{UserID: "alice", Token: "bob-token"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.connect(t)
			f.send(t, c, protocol.KindAuth, tt.auth)
			envs := f.drain(t, c)
			expectKinds(t, envs, protocol.KindAuthResponse)
			resp := decodeAs[protocol.AuthResponse](t, envs[0])
			if resp.Success != tt.success {
				t.Errorf("expected success=%v, got %+v", tt.success, resp)
			}
			if c.conn.State().IsAuthenticated() != tt.success {
				t.Errorf("unexpected state %v", c.conn.State())
			}
		})
	}
}

func TestUnauthenticated_OnlyAuthAndPing(t *testing.T) {
	f := newFixture(t)

	kinds := []struct {
		kind    protocol.Kind
		payload any
	}{
		{protocol.KindJoinLecture, protocol.JoinLecture{LectureID: "l1"}},
		{protocol.KindLeaveLecture, struct{}{}},
		{protocol.KindChatMessage, protocol.ChatMessage{Content: "hi"}},
		{protocol.KindSignal, protocol.Signal{Target: "bob", Data: json.RawMessage(`{"sdp":"x"}`)}},
		{protocol.KindJoinVideo, struct{}{}},
		{protocol.KindTranscription, protocol.Transcription{Text: "hello", IsFinal: true}},
		{protocol.KindStartRecording, struct{}{}},
	}

	for _, k := range kinds {
		t.Run(string(k.kind), func(t *testing.T) {
			c := f.connect(t)
			f.send(t, c, k.kind, k.payload)
			e := expectError(t, f.drain(t, c), protocol.CodeNotAuthenticated)
			if e.Kind != k.kind {
				t.Errorf("expected error to name %s, got %s", k.kind, e.Kind)
			}
			if c.conn.State().IsAuthenticated() {
				t.Error("state changed on rejected message")
			}
		})
	}

	if got := len(f.departures.all()); got != 0 {
		t.Errorf("expected no departures, got %d", got)
	}
}

func TestNotInRoom_RoomKindsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.login(t, "bob", "")

	f.send(t, c, protocol.KindChatMessage, protocol.ChatMessage{Content: "hi"})
	expectError(t, f.drain(t, c), protocol.CodeNotInRoom)

	msgs, _ := f.store.ListChatMessages(context.Background(), "l1")
	if len(msgs) != 0 {
		t.Errorf("expected nothing persisted, got %d", len(msgs))
	}
}

func TestPing_RepliesWithPong(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	f.send(t, c, protocol.KindPing, protocol.Ping{Timestamp: 42})
	envs := f.drain(t, c)
	// the drain's own pong is consumed; ours comes first
	expectKinds(t, envs, protocol.KindPong)
	pong := decodeAs[protocol.Pong](t, envs[0])
	if pong.Timestamp != 42 || pong.ServerTime == 0 {
		t.Errorf("unexpected pong %+v", pong)
	}
}

func TestMalformedAndUnknown(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t)

	f.sendRaw(c, `{not json`)
	expectError(t, f.drain(t, c), protocol.CodeMalformedEnvelope)

	f.sendRaw(c, `{"type":"join_lecture","payload":{}}`)
	e := expectError(t, f.drain(t, c), protocol.CodeMalformedEnvelope)
	if e.Kind != protocol.KindJoinLecture {
		t.Errorf("expected kind join_lecture, got %q", e.Kind)
	}

	f.sendRaw(c, `{"type":"dance","payload":{}}`)
	e = expectError(t, f.drain(t, c), protocol.CodeUnknownKind)
	if e.Category != protocol.CategoryProtocol {
		t.Errorf("expected protocol category, got %s", e.Category)
	}

	if c.socket.isClosed() {
		t.Error("errors must not close the connection")
	}
}

func TestJoinLecture_Errors(t *testing.T) {
	f := newFixture(t)

	c := f.login(t, "carol", "")
	f.send(t, c, protocol.KindJoinLecture, protocol.JoinLecture{LectureID: "l1"})
	expectError(t, f.drain(t, c), protocol.CodeForbidden)
	if c.conn.State().IsInRoom() {
		t.Error("forbidden join must not bind a room")
	}

	f.send(t, c, protocol.KindJoinLecture, protocol.JoinLecture{LectureID: "missing"})
	expectError(t, f.drain(t, c), protocol.CodeRoomNotFound)
}

func TestJoinLecture_RepliesMembersHistoryAndNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.login(t, "alice", "l1")
	f.send(t, alice, protocol.KindChatMessage, protocol.ChatMessage{Content: "first"})
	f.send(t, alice, protocol.KindChatMessage, protocol.ChatMessage{Content: "second"})
	f.drain(t, alice)

	note := &types.LectureNote{ID: "n1", LectureID: "l1", Content: "summary", Timestamp: f.router.now()}
	if err := f.store.AppendNote(ctx, note); err != nil {
		t.Fatalf("AppendNote: %v", err)
	}

	bob := f.login(t, "bob", "")
	f.send(t, bob, protocol.KindJoinLecture, protocol.JoinLecture{LectureID: "l1"})
	envs := f.drain(t, bob)

	expectKinds(t, envs, protocol.KindJoinLectureResponse, protocol.KindChatHistory, protocol.KindLectureNote)

	resp := decodeAs[protocol.JoinLectureResponse](t, envs[0])
	if !resp.Success || resp.LectureID != "l1" || len(resp.Members) != 1 || resp.Members[0] != "alice" {
		t.Errorf("unexpected join response %+v", resp)
	}

	history := decodeAs[protocol.ChatHistory](t, envs[1])
	if len(history.Messages) != 2 || history.Messages[0].Content != "first" || history.Messages[1].Content != "second" {
		t.Fatalf("unexpected history %+v", history.Messages)
	}
	if history.Messages[0].Sender == nil || history.Messages[0].Sender.Name != "Alice" {
		t.Errorf("expected sender profile, got %+v", history.Messages[0].Sender)
	}

	got := decodeAs[protocol.LectureNoteEvent](t, envs[2])
	if got.Content != "summary" {
		t.Errorf("expected current note, got %+v", got)
	}

	// joining does not notify existing members
	if envs := f.drain(t, alice); len(envs) != 0 {
		t.Errorf("expected nothing for alice, got %v", kindsOf(envs))
	}
}

func TestJoinLecture_SwitchRoomsDepartsOldRoom(t *testing.T) {
	f := newFixture(t)
	bob := f.login(t, "bob", "l1")

	f.send(t, bob, protocol.KindJoinLecture, protocol.JoinLecture{LectureID: "l2"})
	f.drain(t, bob)

	if state := bob.conn.State(); state.LectureID() != "l2" {
		t.Errorf("expected bob in l2, got %v", state)
	}
	deps := f.departures.all()
	if len(deps) != 1 || deps[0].LectureID != "l1" {
		t.Errorf("expected departure from l1, got %+v", deps)
	}
	if f.registry.RoomSize("l1") != 0 {
		t.Error("bob still counted in l1")
	}
}

func TestLeaveLecture(t *testing.T) {
	f := newFixture(t)
	bob := f.login(t, "bob", "l1")

	f.send(t, bob, protocol.KindLeaveLecture, struct{}{})
	if envs := f.drain(t, bob); len(envs) != 0 {
		t.Errorf("leave has no reply, got %v", kindsOf(envs))
	}
	if bob.conn.State().IsInRoom() {
		t.Error("expected bob out of the room")
	}
	if deps := f.departures.all(); len(deps) != 1 || deps[0].UserID != "bob" {
		t.Errorf("expected one departure, got %+v", deps)
	}

	// leaving again is a no-op
	f.send(t, bob, protocol.KindLeaveLecture, struct{}{})
	f.drain(t, bob)
	if deps := f.departures.all(); len(deps) != 1 {
		t.Errorf("expected no further departure, got %+v", deps)
	}
}

func TestChatMessage_BroadcastIncludingSender(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	bob := f.login(t, "bob", "l1")
	outsider := f.login(t, "bob", "l2")

	f.send(t, bob, protocol.KindChatMessage, protocol.ChatMessage{Content: "  hello  "})

	for name, c := range map[string]*client{"alice": alice, "bob": bob} {
		envs := f.drain(t, c)
		expectKinds(t, envs, protocol.KindChatMessage)
		entry := decodeAs[protocol.ChatEntry](t, envs[0])
		if entry.Content != "hello" || entry.SenderID != "bob" || entry.LectureID != "l1" {
			t.Errorf("%s: unexpected entry %+v", name, entry)
		}
		if entry.ID == "" || entry.Timestamp.IsZero() {
			t.Errorf("%s: expected server-assigned id and timestamp", name)
		}
		if entry.Sender == nil || entry.Sender.Name != "Bob" {
			t.Errorf("%s: expected sender profile", name)
		}
	}
	if envs := f.drain(t, outsider); len(envs) != 0 {
		t.Errorf("other room received %v", kindsOf(envs))
	}

	msgs, err := f.store.ListChatMessages(context.Background(), "l1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected one persisted message, got %d (%v)", len(msgs), err)
	}
}

func TestChatMessage_OrderMatchesHistory(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	bob := f.login(t, "bob", "l1")

	for i := 0; i < 10; i++ {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		f.send(t, sender, protocol.KindChatMessage, protocol.ChatMessage{Content: fmt.Sprintf("m%d", i)})
	}

	var live []string
	for _, env := range f.drain(t, alice) {
		live = append(live, decodeAs[protocol.ChatEntry](t, env).Content)
	}

	stored, _ := f.store.ListChatMessages(context.Background(), "l1")
	if len(stored) != len(live) {
		t.Fatalf("expected %d stored, got %d", len(live), len(stored))
	}
	for i := range stored {
		if stored[i].Content != live[i] {
			t.Fatalf("history order %d: %s != %s", i, stored[i].Content, live[i])
		}
	}
}

// Concurrent senders race for the clock; history sorted by timestamp must
// still replay in the order the room saw the messages
func TestChatMessage_ConcurrentTimestampsFollowDelivery(t *testing.T) {
	f := newFixture(t, func(_ *Dependencies, c *Config) {
		c.RateLimit = 0
	})
	var ticks atomic.Int64
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.router.now = func() time.Time {
		ts := base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
		runtime.Gosched()
		return ts
	}

	alice := f.login(t, "alice", "l1")
	senders := []*client{alice, f.login(t, "bob", "l1"), f.login(t, "alice", "l1")}

	const perSender = 25
	var wg sync.WaitGroup
	for i, sender := range senders {
		wg.Add(1)
		go func(i int, sender *client) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				frame := protocol.MustEncode(protocol.KindChatMessage, protocol.ChatMessage{Content: fmt.Sprintf("s%d-m%d", i, j)})
				f.router.Dispatch(context.Background(), sender.conn, frame)
			}
		}(i, sender)
	}
	wg.Wait()

	var live []protocol.ChatEntry
	for _, env := range f.drain(t, alice) {
		live = append(live, decodeAs[protocol.ChatEntry](t, env))
	}
	if len(live) != perSender*len(senders) {
		t.Fatalf("expected %d live messages, got %d", perSender*len(senders), len(live))
	}
	for i := 1; i < len(live); i++ {
		if !live[i-1].Timestamp.Before(live[i].Timestamp) {
			t.Fatalf("live message %d timestamp %v not after %v", i, live[i].Timestamp, live[i-1].Timestamp)
		}
	}

	stored, _ := f.store.ListChatMessages(context.Background(), "l1")
	if len(stored) != len(live) {
		t.Fatalf("expected %d stored, got %d", len(live), len(stored))
	}
	for i := range stored {
		if stored[i].ID != live[i].ID {
			t.Fatalf("history order %d: %s != %s", i, stored[i].Content, live[i].Content)
		}
	}
}

func TestChatMessage_TooLarge(t *testing.T) {
	f := newFixture(t)
	bob := f.login(t, "bob", "l1")

	f.send(t, bob, protocol.KindChatMessage, protocol.ChatMessage{Content: strings.Repeat("x", types.MaxChatContentLen+1)})
	expectError(t, f.drain(t, bob), protocol.CodeMalformedEnvelope)
}

func TestChatMessage_RateLimited(t *testing.T) {
	f := newFixture(t, func(_ *Dependencies, c *Config) {
		c.RateLimit = 2
	})
	bob := f.login(t, "bob", "l1")

	for i := 0; i < 3; i++ {
		f.send(t, bob, protocol.KindChatMessage, protocol.ChatMessage{Content: "spam"})
	}
	envs := f.drain(t, bob)
	expectKinds(t, envs, protocol.KindChatMessage, protocol.KindChatMessage, protocol.KindError)
	if e := decodeAs[protocol.Error](t, envs[2]); e.Code != protocol.CodeRateLimited || e.Category != protocol.CategoryUnavailable {
		t.Errorf("unexpected error %+v", e)
	}
}

func TestSignal_SameRoomOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	bobElsewhere := f.login(t, "bob", "l2")

	data := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	f.send(t, alice, protocol.KindSignal, protocol.Signal{Target: "bob", Data: data})

	if envs := f.drain(t, bobElsewhere); len(envs) != 0 {
		t.Fatalf("signal crossed rooms: %v", kindsOf(envs))
	}
	if envs := f.drain(t, alice); len(envs) != 0 {
		t.Errorf("dropped signal must be silent, got %v", kindsOf(envs))
	}

	bob := f.login(t, "bob", "l1")
	f.send(t, alice, protocol.KindSignal, protocol.Signal{Target: "bob", Data: data})
	envs := f.drain(t, bob)
	expectKinds(t, envs, protocol.KindSignal)
	relay := decodeAs[protocol.SignalRelay](t, envs[0])
	if relay.Peer != "alice" || string(relay.Data) != string(data) {
		t.Errorf("unexpected relay %+v", relay)
	}
}

func TestSignal_MostRecentTab(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	oldTab := f.login(t, "bob", "l1")
	newTab := f.login(t, "bob", "l1")

	f.send(t, alice, protocol.KindSignal, protocol.Signal{Target: "bob", Data: json.RawMessage(`1`)})

	if envs := f.drain(t, oldTab); len(envs) != 0 {
		t.Errorf("old tab received %v", kindsOf(envs))
	}
	expectKinds(t, f.drain(t, newTab), protocol.KindSignal)
}

func TestVideo_JoinAndLeave(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	bob := f.login(t, "bob", "l1")

	f.send(t, bob, protocol.KindJoinVideo, struct{}{})

	envs := f.drain(t, bob)
	expectKinds(t, envs, protocol.KindPeersInLecture)
	if peers := decodeAs[protocol.PeersInLecture](t, envs[0]); len(peers.Peers) != 1 || peers.Peers[0] != "alice" {
		t.Errorf("unexpected peers %+v", peers)
	}

	envs = f.drain(t, alice)
	expectKinds(t, envs, protocol.KindPeerJoined)
	if joined := decodeAs[protocol.PeerJoined](t, envs[0]); joined.PeerID != "bob" {
		t.Errorf("unexpected peer_joined %+v", joined)
	}

	f.send(t, bob, protocol.KindLeaveVideo, struct{}{})
	expectKinds(t, f.drain(t, alice), protocol.KindPeerLeft)
	if envs := f.drain(t, bob); len(envs) != 0 {
		t.Errorf("sender received %v", kindsOf(envs))
	}
	if bob.conn.State().LectureID() != "l1" {
		t.Error("leave_video must not leave the lecture")
	}
}

func TestTranscription_BroadcastAndNotes(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	bob := f.login(t, "bob", "l1")

	f.send(t, alice, protocol.KindTranscription, protocol.Transcription{Text: "partial", IsFinal: false})
	f.send(t, alice, protocol.KindTranscription, protocol.Transcription{Text: "Newton's first law", IsFinal: true})
	f.send(t, alice, protocol.KindTranscription, protocol.Transcription{Text: "   ", IsFinal: true})

	envs := f.drain(t, bob)
	expectKinds(t, envs, protocol.KindTranscription, protocol.KindTranscription, protocol.KindTranscription)
	event := decodeAs[protocol.TranscriptionEvent](t, envs[1])
	if event.SpeakerID != "alice" || event.Text != "Newton's first law" || !event.IsFinal {
		t.Errorf("unexpected transcription %+v", event)
	}
	if envs := f.drain(t, alice); len(envs) != 0 {
		t.Errorf("speaker received own transcription: %v", kindsOf(envs))
	}

	lines := f.notes.all()
	if len(lines) != 1 || lines[0] != "l1/alice: Newton's first law" {
		t.Errorf("expected one final line submitted, got %v", lines)
	}
}

func TestRecording_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	bob := f.login(t, "bob", "l1")

	f.send(t, bob, protocol.KindStartRecording, struct{}{})
	expectError(t, f.drain(t, bob), protocol.CodeNotOwner)
	if envs := f.drain(t, alice); len(envs) != 0 {
		t.Errorf("rejected start leaked %v", kindsOf(envs))
	}

	f.send(t, alice, protocol.KindStopRecording, struct{}{})
	expectError(t, f.drain(t, alice), protocol.CodeRecordingInactive)

	f.send(t, alice, protocol.KindStartRecording, struct{}{})
	for _, c := range []*client{alice, bob} {
		envs := f.drain(t, c)
		expectKinds(t, envs, protocol.KindRecordingStarted)
		started := decodeAs[protocol.RecordingStarted](t, envs[0])
		if started.LectureID != "l1" || started.StartedBy != "alice" || started.Timestamp.IsZero() {
			t.Errorf("unexpected recording_started %+v", started)
		}
	}
	if rec, ok := f.router.Recording("l1"); !ok || rec.StartedBy != "alice" {
		t.Errorf("expected active recording, got %+v %v", rec, ok)
	}

	f.send(t, alice, protocol.KindStartRecording, struct{}{})
	expectError(t, f.drain(t, alice), protocol.CodeRecordingActive)

	f.send(t, alice, protocol.KindStopRecording, struct{}{})
	for _, c := range []*client{alice, bob} {
		expectKinds(t, f.drain(t, c), protocol.KindRecordingStopped)
	}
	if _, ok := f.router.Recording("l1"); ok {
		t.Error("recording still active after stop")
	}
}

func TestRecordingData_RelayedWhileActive(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")
	bob := f.login(t, "bob", "l1")
	chunk := json.RawMessage(`"AAEC"`)

	f.send(t, alice, protocol.KindRecordingData, protocol.RecordingData{Data: chunk})
	expectError(t, f.drain(t, alice), protocol.CodeRecordingInactive)

	f.send(t, alice, protocol.KindStartRecording, struct{}{})
	f.drain(t, alice)
	f.drain(t, bob)

	f.send(t, alice, protocol.KindRecordingData, protocol.RecordingData{Data: chunk})
	envs := f.drain(t, bob)
	expectKinds(t, envs, protocol.KindRecordingData)
	relay := decodeAs[protocol.RecordingDataRelay](t, envs[0])
	if relay.From != "alice" || string(relay.Data) != string(chunk) {
		t.Errorf("unexpected relay %+v", relay)
	}
	if envs := f.drain(t, alice); len(envs) != 0 {
		t.Errorf("sender received own chunk: %v", kindsOf(envs))
	}

	f.send(t, bob, protocol.KindRecordingData, protocol.RecordingData{Data: chunk})
	expectError(t, f.drain(t, bob), protocol.CodeNotOwner)
}

func TestRoomEmptied_ClearsRecording(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")

	f.send(t, alice, protocol.KindStartRecording, struct{}{})
	f.drain(t, alice)

	f.router.RoomEmptied("l1")
	if _, ok := f.router.Recording("l1"); ok {
		t.Error("expected recording cleared")
	}
	if got := f.router.ActiveRecordings(); len(got) != 0 {
		t.Errorf("expected no active recordings, got %v", got)
	}
}

func TestDisconnected_ForwardsDeparture(t *testing.T) {
	f := newFixture(t)
	dep := websocket.Departure{ConnID: 7, UserID: "bob", LectureID: "l1"}
	f.router.Disconnected(dep)

	if got := f.departures.all(); len(got) != 1 || got[0] != dep {
		t.Errorf("expected departure forwarded, got %+v", got)
	}
}

func TestRequireOwner_LectureRemoved(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice", "l1")

	// a cache miss for a lecture that no longer exists surfaces as room_not_found
	f.router.lectures = lecture.NewManager(emptyStore{f.store}, nil)
	f.send(t, alice, protocol.KindStartRecording, struct{}{})
	expectError(t, f.drain(t, alice), protocol.CodeRoomNotFound)
}
