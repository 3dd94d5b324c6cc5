package protocol

import (
	"encoding/json"
	"time"

	"lecturehall/pkg/types"
)

// AuthResponse answers an auth envelope
type AuthResponse struct {
	Success bool        `json:"success"`
	User    *types.User `json:"user,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// JoinLectureResponse answers a successful join_lecture.
// Members excludes the joining connection.
type JoinLectureResponse struct {
	Success   bool            `json:"success"`
	LectureID types.LectureID `json:"lectureId"`
	Members   []types.UserID  `json:"members"`
}

// ChatEntry is a stored chat message plus the resolved sender profile
type ChatEntry struct {
	types.ChatMessage
	Sender *types.User `json:"sender,omitempty"`
}

// ChatHistory replays the lecture chat to a joiner
type ChatHistory struct {
	LectureID types.LectureID `json:"lectureId"`
	Messages  []ChatEntry     `json:"messages"`
}

// SignalRelay is the signal as seen by the target peer
type SignalRelay struct {
	Peer types.UserID    `json:"peer"`
	Data json.RawMessage `json:"data"`
}

// PeerJoined announces a peer's media to the room
type PeerJoined struct {
	PeerID types.UserID `json:"peerId"`
}

// PeerLeft announces that a peer is gone
type PeerLeft struct {
	PeerID types.UserID `json:"peerId"`
}

// PeersInLecture lists peers already present for a new video participant
type PeersInLecture struct {
	Peers []types.UserID `json:"peers"`
}

// TranscriptionEvent relays a speaker's transcription to the room
type TranscriptionEvent struct {
	SpeakerID types.UserID `json:"speakerId"`
	Text      string       `json:"text"`
	IsFinal   bool         `json:"isFinal"`
	Timestamp time.Time    `json:"timestamp"`
}

// LectureNoteEvent carries the current lecture note
type LectureNoteEvent struct {
	types.LectureNote
}

// RecordingStarted is broadcast when the owner starts recording
type RecordingStarted struct {
	LectureID types.LectureID `json:"lectureId"`
	StartedBy types.UserID    `json:"startedBy"`
	Timestamp time.Time       `json:"timestamp"`
}

// RecordingStopped is broadcast when the owner stops recording
type RecordingStopped struct {
	LectureID types.LectureID `json:"lectureId"`
	StoppedBy types.UserID    `json:"stoppedBy"`
	Timestamp time.Time       `json:"timestamp"`
}

// RecordingDataRelay relays a recording chunk to the room
type RecordingDataRelay struct {
	From types.UserID    `json:"from"`
	Data json.RawMessage `json:"data"`
}

// Pong answers a ping
type Pong struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}
