package protocol

import "github.com/vmihailenco/msgpack/v5"

// Snapshot is the sampled per-session state broadcast. It travels as a
// binary msgpack frame rather than a JSON envelope since it is the only
// high-rate message on the wire.
type Snapshot struct {
	SessionID string        `msgpack:"sid" json:"session_id"`
	FrameID   int64         `msgpack:"f" json:"frame_id"`
	Ball      BallState     `msgpack:"b" json:"ball"`
	Paddles   []PaddleState `msgpack:"p" json:"paddles"`
	Scores    []ScoreState  `msgpack:"s" json:"scores"`
	State     string        `msgpack:"st" json:"state"`
}

type BallState struct {
	X       float64 `msgpack:"x" json:"x"`
	Y       float64 `msgpack:"y" json:"y"`
	VX      float64 `msgpack:"vx" json:"vx"`
	VY      float64 `msgpack:"vy" json:"vy"`
	Radius  float64 `msgpack:"r" json:"radius"`
	Started bool    `msgpack:"on" json:"started"`
}

type PaddleState struct {
	ParticipantID string  `msgpack:"id" json:"participant_id"`
	X             float64 `msgpack:"x" json:"x"`
	Y             float64 `msgpack:"y" json:"y"`
	Width         float64 `msgpack:"w" json:"width"`
	Height        float64 `msgpack:"h" json:"height"`
}

type ScoreState struct {
	ParticipantID string `msgpack:"id" json:"participant_id"`
	Score         int    `msgpack:"n" json:"score"`
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return msgpack.Marshal(&s)
}

func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	err := msgpack.Unmarshal(b, &s)
	return s, err
}
