package websocket

import "lecturehall/pkg/types"

// Phase is the session phase of a connection
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticated
	PhaseInRoom
)

func (p Phase) String() string {
	switch p {
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseInRoom:
		return "in_room"
	default:
		return "unauthenticated"
	}
}

// State is the per-connection session state.
// ARCHITECTURAL DISCOVERY: Fields are unexported and only the registry builds
// states, so a lecture id can never exist without an identity
type State struct {
	phase     Phase
	userID    types.UserID
	lectureID types.LectureID
}

func unauthenticated() State {
	return State{phase: PhaseUnauthenticated}
}

func authenticated(userID types.UserID) State {
	return State{phase: PhaseAuthenticated, userID: userID}
}

func inRoom(userID types.UserID, lectureID types.LectureID) State {
	return State{phase: PhaseInRoom, userID: userID, lectureID: lectureID}
}

func (s State) Phase() Phase { return s.phase }

// UserID is empty while unauthenticated
func (s State) UserID() types.UserID { return s.userID }

// LectureID is empty unless the connection is in a room
func (s State) LectureID() types.LectureID { return s.lectureID }

func (s State) IsAuthenticated() bool { return s.phase != PhaseUnauthenticated }

func (s State) IsInRoom() bool { return s.phase == PhaseInRoom }
