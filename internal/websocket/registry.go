package websocket

import (
	"sort"
	"sync"

	"lecturehall/internal/protocol"
	"lecturehall/pkg/types"
)

// Departure describes a connection leaving a room
type Departure struct {
	ConnID    ConnID
	UserID    types.UserID
	LectureID types.LectureID
	// Remaining is true when another connection of the same user is still in the room
	Remaining bool
}

// JoinResult is returned by a successful Join
type JoinResult struct {
	// Members are the other identities in the room, deduplicated, joiner excluded
	Members []types.UserID
	// Previous is set when the join implicitly left a different room
	Previous *Departure
	// Rejoined is true when the connection was already in this room
	Rejoined bool
}

// Stats is a point-in-time view of the registry
type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
	Rooms         int `json:"rooms"`
	RoomMembers   int `json:"roomMembers"`
}

// Registry owns every live connection and the room index derived from them
// ARCHITECTURAL DISCOVERY: One lock covers both the connection table and the
// room index, so membership changes and broadcasts are totally ordered
type Registry struct {
	mu          sync.RWMutex
	nextID      ConnID
	joinSeq     uint64
	connections map[ConnID]*Connection
	rooms       map[types.LectureID]map[ConnID]*Connection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[ConnID]*Connection),
		rooms:       make(map[types.LectureID]map[ConnID]*Connection),
	}
}

// Register assigns a ConnID and records the connection as unauthenticated
func (r *Registry) Register(conn *Connection) (ConnID, error) {
	if conn == nil {
		return 0, ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.id != 0 {
		return 0, ErrAlreadyRegistered
	}

	r.nextID++
	conn.id = r.nextID
	conn.state = unauthenticated()
	r.connections[conn.id] = conn

	return conn.id, nil
}

// Unregister drops the connection and its room membership in one step.
// The departure is only meaningful when the returned bool is true.
// FUNCTIONAL DISCOVERY: Idempotent, so transport close and explicit shutdown can race safely
func (r *Registry) Unregister(conn *Connection) (Departure, bool) {
	if conn == nil {
		return Departure{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if registered, ok := r.connections[conn.id]; !ok || registered != conn {
		return Departure{}, false
	}

	dep, left := r.leaveLocked(conn)
	delete(r.connections, conn.id)
	conn.state = unauthenticated()

	return dep, left
}

// Get looks up a live connection by handle
func (r *Registry) Get(id ConnID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	return conn, ok
}

// All returns every live connection
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Authenticate binds an identity to the connection. Re-authenticating as a
// different user while in a room leaves that room first; the departure is
// returned with true in that case.
func (r *Registry) Authenticate(conn *Connection, userID types.UserID) (Departure, bool, error) {
	if conn == nil {
		return Departure{}, false, ErrNilConnection
	}
	if userID == "" {
		return Departure{}, false, ErrInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if !r.isRegisteredLocked(conn) {
		return Departure{}, false, ErrNotRegistered
	}

	if conn.state.IsInRoom() {
		if conn.state.userID == userID {
			return Departure{}, false, nil
		}
		dep, _ := r.leaveLocked(conn)
		conn.state = authenticated(userID)
		return dep, true, nil
	}

	conn.state = authenticated(userID)
	return Departure{}, false, nil
}

// Join places an authenticated connection in a lecture room
func (r *Registry) Join(conn *Connection, lectureID types.LectureID) (JoinResult, error) {
	if conn == nil {
		return JoinResult{}, ErrNilConnection
	}
	if lectureID == "" {
		return JoinResult{}, ErrInvalidLectureID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if !r.isRegisteredLocked(conn) {
		return JoinResult{}, ErrNotRegistered
	}
	if !conn.state.IsAuthenticated() {
		return JoinResult{}, ErrNotAuthenticated
	}

	var result JoinResult
	userID := conn.state.userID

	switch {
	case conn.state.IsInRoom() && conn.state.lectureID == lectureID:
		result.Rejoined = true
	case conn.state.IsInRoom():
		dep, _ := r.leaveLocked(conn)
		result.Previous = &dep
	}

	room, ok := r.rooms[lectureID]
	if !ok {
		room = make(map[ConnID]*Connection)
		r.rooms[lectureID] = room
	}
	room[conn.id] = conn
	r.joinSeq++
	conn.joinSeq = r.joinSeq
	conn.state = inRoom(userID, lectureID)

	result.Members = r.membersLocked(lectureID, userID)
	return result, nil
}

// Leave removes the connection from its room. Returns false when it was not in one.
func (r *Registry) Leave(conn *Connection) (Departure, bool) {
	if conn == nil {
		return Departure{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if !r.isRegisteredLocked(conn) {
		return Departure{}, false
	}
	return r.leaveLocked(conn)
}

// Members returns the distinct identities present in a room, sorted
func (r *Registry) Members(lectureID types.LectureID) []types.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.membersLocked(lectureID, "")
}

// Broadcast enqueues the frame on every connection in the room except the
// excluded one and returns how many accepted it
// TECHNICAL DISCOVERY: Send never blocks, so holding the read lock here keeps
// broadcasts ordered against joins and leaves without stalling them
func (r *Registry) Broadcast(lectureID types.LectureID, frame protocol.Frame, exclude ConnID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, conn := range r.rooms[lectureID] {
		if id == exclude {
			continue
		}
		if err := conn.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

// BroadcastIfAbsent broadcasts like Broadcast, but only while no connection of
// the user is in the room. The check and the sends share one read lock, so a
// join of that user lands either before the check or after every send.
func (r *Registry) BroadcastIfAbsent(lectureID types.LectureID, userID types.UserID, frame protocol.Frame, exclude ConnID) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[lectureID]
	for _, conn := range room {
		if conn.state.userID == userID {
			return 0, false
		}
	}

	delivered := 0
	for id, conn := range room {
		if id == exclude {
			continue
		}
		if err := conn.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered, true
}

// Find returns the most recently joined connection of a user in a room
func (r *Registry) Find(lectureID types.LectureID, userID types.UserID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *Connection
	var latest uint64
	for _, conn := range r.rooms[lectureID] {
		conn.mu.RLock()
		match := conn.state.userID == userID && conn.joinSeq > latest
		seq := conn.joinSeq
		conn.mu.RUnlock()
		if match {
			found = conn
			latest = seq
		}
	}
	return found, found != nil
}

// RoomSize returns the number of connections in a room
func (r *Registry) RoomSize(lectureID types.LectureID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[lectureID])
}

// Stats returns registry statistics for the health endpoint
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Connections: len(r.connections),
		Rooms:       len(r.rooms),
	}
	for _, conn := range r.connections {
		if conn.State().IsAuthenticated() {
			stats.Authenticated++
		}
	}
	for _, room := range r.rooms {
		stats.RoomMembers += len(room)
	}
	return stats
}

// CloseAll closes every live connection; their read loops unregister them
func (r *Registry) CloseAll() {
	for _, conn := range r.All() {
		_ = conn.Close()
	}
}

// callers hold r.mu and conn.mu
func (r *Registry) isRegisteredLocked(conn *Connection) bool {
	registered, ok := r.connections[conn.id]
	return ok && registered == conn
}

// callers hold r.mu and conn.mu
func (r *Registry) leaveLocked(conn *Connection) (Departure, bool) {
	if !conn.state.IsInRoom() {
		return Departure{}, false
	}

	lectureID := conn.state.lectureID
	userID := conn.state.userID

	if room, ok := r.rooms[lectureID]; ok {
		delete(room, conn.id)
		if len(room) == 0 {
			delete(r.rooms, lectureID)
		}
	}
	conn.state = authenticated(userID)
	conn.joinSeq = 0

	dep := Departure{ConnID: conn.id, UserID: userID, LectureID: lectureID}
	for _, other := range r.rooms[lectureID] {
		if other.state.userID == userID {
			dep.Remaining = true
			break
		}
	}
	return dep, true
}

// callers hold r.mu; other connections' state is read without their own lock
// because it is only ever written while r.mu is held exclusively
func (r *Registry) membersLocked(lectureID types.LectureID, exclude types.UserID) []types.UserID {
	seen := make(map[types.UserID]struct{})
	members := make([]types.UserID, 0, len(r.rooms[lectureID]))
	for _, conn := range r.rooms[lectureID] {
		userID := conn.state.userID
		if userID == exclude {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		members = append(members, userID)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}
