package netwrk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pongd/internal/protocol"
)

func TestOversizedInputRejected(t *testing.T) {
	batches := make([]protocol.InputBatch, maxInputBatches+1)
	for i := range batches {
		batches[i] = protocol.InputBatch{FrameID: int64(i + 1)}
	}

	over := protocol.Message{MessageType: protocol.TypeInput, Message: protocol.Input{
		SessionID: "s1", ParticipantID: "p1", Frames: batches,
	}}
	require.True(t, oversized(over))

	atCap := protocol.Message{MessageType: protocol.TypeInput, Message: protocol.Input{
		SessionID: "s1", ParticipantID: "p1", Frames: batches[:maxInputBatches],
	}}
	require.False(t, oversized(atCap))

	// Only input messages are size-checked.
	ctl := protocol.Message{MessageType: protocol.TypeControl, Message: protocol.Control{
		SessionID: "s1", Action: protocol.ControlStart,
	}}
	require.False(t, oversized(ctl))
}

func TestEnqueueNeverBlocks(t *testing.T) {
	c := &client{out: make(chan any, 2), done: make(chan struct{})}

	require.NoError(t, c.enqueue(protocol.Snapshot{FrameID: 1}))
	require.NoError(t, c.enqueue(protocol.Snapshot{FrameID: 2}))

	// A full queue refuses the payload instead of stalling the caller.
	require.ErrorIs(t, c.enqueue(protocol.Snapshot{FrameID: 3}), errSendBufferFull)

	// A departed peer refuses everything.
	close(c.done)
	require.ErrorIs(t, c.enqueue(protocol.Snapshot{FrameID: 4}), errPeerGone)
}
