package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeDispatch(t *testing.T) {
	in := Message{
		MessageType: TypeControl,
		Message: Control{
			SessionID:   "s1",
			Action:      ControlStart,
			RequesterID: "p1",
			Force:       true,
		},
	}

	b, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, TypeControl, out.MessageType)

	ctl, ok := out.Message.(Control)
	require.True(t, ok, "payload should decode to a Control struct")
	require.Equal(t, in.Message, ctl)
}

func TestNewMessagePicksType(t *testing.T) {
	m, err := NewMessage(Input{
		SessionID:     "s1",
		ParticipantID: "p1",
		Frames: []InputBatch{{
			FrameID: 7,
			Inputs:  []InputEvent{{Key: KeyUp, Pressed: true}},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, TypeInput, m.MessageType)

	b, err := Marshal(m)
	require.NoError(t, err)
	out, err := Unmarshal(b)
	require.NoError(t, err)

	inp, ok := out.Message.(Input)
	require.True(t, ok)
	require.EqualValues(t, 7, inp.Frames[0].FrameID)

	_, err = NewMessage(struct{}{})
	require.Error(t, err)
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"message_type":"teleport","message":{}}`))
	require.Error(t, err)
}

func TestSnapshotBinaryRoundTrip(t *testing.T) {
	in := Snapshot{
		SessionID: "s1",
		FrameID:   128,
		Ball:      BallState{X: 42.5, Y: 13.25, VX: -80, VY: 12, Radius: 2, Started: true},
		Paddles: []PaddleState{
			{ParticipantID: "p1", X: 1, Y: 50, Width: 2, Height: 20},
			{ParticipantID: "p2", X: 199, Y: 64, Width: 2, Height: 20},
		},
		Scores: []ScoreState{{ParticipantID: "p1", Score: 3}, {ParticipantID: "p2", Score: 1}},
		State:  "playing",
	}

	b, err := EncodeSnapshot(in)
	require.NoError(t, err)

	out, err := DecodeSnapshot(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestSessionIDOf(t *testing.T) {
	require.Equal(t, "s1", SessionIDOf(Create{SessionID: "s1"}))
	require.Equal(t, "s2", SessionIDOf(Input{SessionID: "s2"}))
	require.Equal(t, "", SessionIDOf(Ack{SessionID: "s3"}))
}
