// Package protocol defines the JSON envelope exchanged over the lecture
// WebSocket. Every inbound kind decodes into its own payload type.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind is the envelope discriminator carried in the "type" field
type Kind string

// Client -> server kinds
const (
	KindAuth           Kind = "auth"
	KindJoinLecture    Kind = "join_lecture"
	KindLeaveLecture   Kind = "leave_lecture"
	KindChatMessage    Kind = "chat_message"
	KindSignal         Kind = "signal"
	KindJoinVideo      Kind = "join_video"
	KindLeaveVideo     Kind = "leave_video"
	KindTranscription  Kind = "transcription"
	KindStartRecording Kind = "start_recording"
	KindStopRecording  Kind = "stop_recording"
	KindRecordingData  Kind = "recording_data"
	KindPing           Kind = "ping"
)

// Server -> client kinds. chat_message, signal, transcription and
// recording_data are reused in both directions.
const (
	KindAuthResponse        Kind = "auth_response"
	KindJoinLectureResponse Kind = "join_lecture_response"
	KindChatHistory         Kind = "chat_history"
	KindPeerJoined          Kind = "peer_joined"
	KindPeerLeft            Kind = "peer_left"
	KindPeersInLecture      Kind = "peers_in_lecture"
	KindLectureNote         Kind = "lecture_note"
	KindRecordingStarted    Kind = "recording_started"
	KindRecordingStopped    Kind = "recording_stopped"
	KindPong                Kind = "pong"
	KindError               Kind = "error"
)

// Envelope is the wire unit in both directions
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is an encoded envelope ready to be written to a socket
type Frame []byte

// Encode marshals a payload into a frame of the given kind
func Encode(kind Kind, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	data, err := json.Marshal(Envelope{Type: kind, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", kind, err)
	}
	return data, nil
}

// MustEncode is Encode for payloads built from plain structs that cannot
// fail to marshal
func MustEncode(kind Kind, payload any) Frame {
	frame, err := Encode(kind, payload)
	if err != nil {
		panic(err)
	}
	return frame
}
