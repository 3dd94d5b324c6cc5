package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"lecturehall/pkg/types"
)

// Inbound is a decoded client envelope. The concrete type identifies the kind.
type Inbound interface {
	Kind() Kind
}

// Auth binds an identity to the connection
type Auth struct {
	UserID types.UserID `json:"userId"`
	Token  string       `json:"token,omitempty"`
}

// JoinLecture enters a lecture room
type JoinLecture struct {
	LectureID types.LectureID `json:"lectureId"`
}

// LeaveLecture exits the current room
type LeaveLecture struct{}

// ChatMessage is a chat line typed by the sender
type ChatMessage struct {
	Content string `json:"content"`
}

// Signal carries an opaque WebRTC offer/answer/candidate to one peer
type Signal struct {
	Target types.UserID    `json:"target"`
	Data   json.RawMessage `json:"data"`
}

// JoinVideo announces the sender's camera/microphone to the room
type JoinVideo struct{}

// LeaveVideo withdraws the sender's media from the room
type LeaveVideo struct{}

// Transcription is speech-to-text produced by the sender's browser
type Transcription struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// StartRecording asks the room to start recording
type StartRecording struct{}

// StopRecording asks the room to stop recording
type StopRecording struct{}

// RecordingData is an opaque chunk produced by the recording owner
type RecordingData struct {
	Data json.RawMessage `json:"data"`
}

// Ping is a liveness probe
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Unknown is returned alongside ErrUnknownKind
type Unknown struct {
	Type Kind
}

func (Auth) Kind() Kind           { return KindAuth }
func (JoinLecture) Kind() Kind    { return KindJoinLecture }
func (LeaveLecture) Kind() Kind   { return KindLeaveLecture }
func (ChatMessage) Kind() Kind    { return KindChatMessage }
func (Signal) Kind() Kind         { return KindSignal }
func (JoinVideo) Kind() Kind      { return KindJoinVideo }
func (LeaveVideo) Kind() Kind     { return KindLeaveVideo }
func (Transcription) Kind() Kind  { return KindTranscription }
func (StartRecording) Kind() Kind { return KindStartRecording }
func (StopRecording) Kind() Kind  { return KindStopRecording }
func (RecordingData) Kind() Kind  { return KindRecordingData }
func (Ping) Kind() Kind           { return KindPing }
func (u Unknown) Kind() Kind      { return u.Type }

// Decode parses a raw frame into its typed inbound value
// FUNCTIONAL DISCOVERY: Required fields are checked here so handlers only
// ever see complete payloads
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}

	switch env.Type {
	case KindAuth:
		var p Auth
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, missingField(env.Type, "userId")
		}
		return p, nil

	case KindJoinLecture:
		var p JoinLecture
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.LectureID == "" {
			return nil, missingField(env.Type, "lectureId")
		}
		return p, nil

	case KindChatMessage:
		var p ChatMessage
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Content) == "" {
			return nil, missingField(env.Type, "content")
		}
		return p, nil

	case KindSignal:
		var p Signal
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Target == "" {
			return nil, missingField(env.Type, "target")
		}
		if isEmptyJSON(p.Data) {
			return nil, missingField(env.Type, "data")
		}
		return p, nil

	case KindTranscription:
		var p Transcription
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil

	case KindRecordingData:
		var p RecordingData
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if isEmptyJSON(p.Data) {
			return nil, missingField(env.Type, "data")
		}
		return p, nil

	case KindPing:
		var p Ping
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil

	case KindLeaveLecture:
		return LeaveLecture{}, nil
	case KindJoinVideo:
		return JoinVideo{}, nil
	case KindLeaveVideo:
		return LeaveVideo{}, nil
	case KindStartRecording:
		return StartRecording{}, nil
	case KindStopRecording:
		return StopRecording{}, nil

	default:
		return Unknown{Type: env.Type}, fmt.Errorf("%w: %s", ErrUnknownKind, env.Type)
	}
}

func decodePayload(env Envelope, v any) error {
	if isEmptyJSON(env.Payload) {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, env.Type, err)
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func missingField(kind Kind, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMalformedEnvelope, kind, field)
}

// PeekKind returns the envelope type of a frame that may not decode fully
func PeekKind(data []byte) Kind {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Type
}
