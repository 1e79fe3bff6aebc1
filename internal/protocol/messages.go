package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the wire envelope for every control-plane message. The payload
// is encoded as a nested JSON document keyed by MessageType so a reader can
// dispatch before decoding the body.
type Message struct {
	MessageType string `json:"message_type"`
	Message     any    `json:"message"`
}

// Inbound message types.
const (
	TypeCreate   = "create"
	TypePlayer   = "player"
	TypeSettings = "settings"
	TypeInput    = "input"
	TypeControl  = "control"
)

// Outbound message types.
const (
	TypeAck      = "ack"
	TypeGameOver = "gameover"
)

// Player actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Control actions.
const (
	ControlStart  = "start"
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlAbort  = "abort"
)

// Input keys.
const (
	KeyUp   = "up"
	KeyDown = "down"
)

type Create struct {
	SessionID    string       `json:"session_id"`
	Config       *ConfigPatch `json:"config,omitempty"`
	Participants []string     `json:"participants,omitempty"`
}

type Player struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Action        string `json:"action"`
}

type Settings struct {
	SessionID string      `json:"session_id"`
	Patch     ConfigPatch `json:"patch"`
}

type Input struct {
	SessionID     string       `json:"session_id"`
	ParticipantID string       `json:"participant_id"`
	Frames        []InputBatch `json:"frames"`
}

type InputBatch struct {
	FrameID int64        `json:"frame_id"`
	Inputs  []InputEvent `json:"inputs"`
}

type InputEvent struct {
	Key     string `json:"key"`
	Pressed bool   `json:"pressed"`
}

type Control struct {
	SessionID   string `json:"session_id"`
	Action      string `json:"action"`
	RequesterID string `json:"requester_id"`
	Force       bool   `json:"force,omitempty"`
}

// ConfigPatch is a partial session config. Nil fields leave the current
// value untouched.
type ConfigPatch struct {
	WorldWidth         *float64 `json:"world_width,omitempty"`
	WorldHeight        *float64 `json:"world_height,omitempty"`
	WallThickness      *float64 `json:"wall_thickness,omitempty"`
	PaddleWidth        *float64 `json:"paddle_width,omitempty"`
	PaddleHeight       *float64 `json:"paddle_height,omitempty"`
	PaddleAccel        *float64 `json:"paddle_accel,omitempty"`
	PaddleFriction     *float64 `json:"paddle_friction,omitempty"`
	PaddleMaxSpeed     *float64 `json:"paddle_max_speed,omitempty"`
	BallRadius         *float64 `json:"ball_radius,omitempty"`
	BallSpeed          *float64 `json:"ball_speed,omitempty"`
	BallMaxSpeed       *float64 `json:"ball_max_speed,omitempty"`
	BallSpeedIncrement *float64 `json:"ball_speed_increment,omitempty"`
	FirstTo            *int     `json:"first_to,omitempty"`
	WinBy              *int     `json:"win_by,omitempty"`
	TickRate           *int     `json:"tick_rate,omitempty"`
	InputDelayFrames   *int     `json:"input_delay_frames,omitempty"`
	StateSyncRate      *int     `json:"state_sync_rate,omitempty"`
	MaxPlayers         *int     `json:"max_players,omitempty"`
}

// Ack acknowledges a successful control-plane action. PlayerSides and
// StartTime are only present on a start ack.
type Ack struct {
	SessionID   string            `json:"session_id"`
	Action      string            `json:"action"`
	PlayerSides map[string]string `json:"player_sides,omitempty"`
	StartTime   int64             `json:"start_time,omitempty"`
}

// Summary is the terminal report for a finished session.
type Summary struct {
	SessionID string         `json:"session_id"`
	Players   []PlayerResult `json:"players"`
	Timeline  []ScoreEvent   `json:"timeline"`
}

type PlayerResult struct {
	ID           string `json:"id"`
	FinalScore   int    `json:"final_score"`
	Outcome      string `json:"outcome"` // "win", "lose" or "draw"
	PointsEarned int    `json:"points_earned"`
}

type ScoreEvent struct {
	ElapsedMs int64  `json:"elapsed_ms"`
	ScorerID  string `json:"scorer_id"`
}

// Marshal wraps a message into the wire envelope.
func Marshal(m Message) ([]byte, error) {
	body, err := json.Marshal(m.Message)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", m.MessageType, err)
	}
	return json.Marshal(struct {
		MessageType string          `json:"message_type"`
		Message     json.RawMessage `json:"message"`
	}{m.MessageType, body})
}

// NewMessage builds an envelope for a known payload type.
func NewMessage(payload any) (Message, error) {
	switch payload.(type) {
	case Create:
		return Message{TypeCreate, payload}, nil
	case Player:
		return Message{TypePlayer, payload}, nil
	case Settings:
		return Message{TypeSettings, payload}, nil
	case Input:
		return Message{TypeInput, payload}, nil
	case Control:
		return Message{TypeControl, payload}, nil
	case Ack:
		return Message{TypeAck, payload}, nil
	case Summary:
		return Message{TypeGameOver, payload}, nil
	default:
		return Message{}, fmt.Errorf("no message type for payload %T", payload)
	}
}

// Unmarshal decodes the envelope and asserts the right payload struct for
// the message type. Callers type-assert Message.Message to access fields.
func Unmarshal(b []byte) (Message, error) {
	var raw struct {
		MessageType string          `json:"message_type"`
		Message     json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Message{}, err
	}

	m := Message{MessageType: raw.MessageType}
	var payload any
	switch raw.MessageType {
	case TypeCreate:
		payload = &Create{}
	case TypePlayer:
		payload = &Player{}
	case TypeSettings:
		payload = &Settings{}
	case TypeInput:
		payload = &Input{}
	case TypeControl:
		payload = &Control{}
	case TypeAck:
		payload = &Ack{}
	case TypeGameOver:
		payload = &Summary{}
	default:
		return m, fmt.Errorf("unknown message type %q", raw.MessageType)
	}
	if err := json.Unmarshal(raw.Message, payload); err != nil {
		return m, fmt.Errorf("unmarshalling %s payload: %w", raw.MessageType, err)
	}

	switch p := payload.(type) {
	case *Create:
		m.Message = *p
	case *Player:
		m.Message = *p
	case *Settings:
		m.Message = *p
	case *Input:
		m.Message = *p
	case *Control:
		m.Message = *p
	case *Ack:
		m.Message = *p
	case *Summary:
		m.Message = *p
	}
	return m, nil
}

// SessionIDOf extracts the target session from an inbound payload, or ""
// when the payload carries none.
func SessionIDOf(payload any) string {
	switch p := payload.(type) {
	case Create:
		return p.SessionID
	case Player:
		return p.SessionID
	case Settings:
		return p.SessionID
	case Input:
		return p.SessionID
	case Control:
		return p.SessionID
	}
	return ""
}
