package pong

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"pongd/internal/protocol"
)

func TestServeAlternatesDirection(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", nil)

	r.advance(step60)
	require.True(t, s.Ball.Started)
	require.Greater(t, s.Ball.Vel.X, 0.0)

	s.Ball.Started = false
	r.advance(step60)
	require.Less(t, s.Ball.Vel.X, 0.0)

	s.Ball.Started = false
	r.advance(step60)
	require.Greater(t, s.Ball.Vel.X, 0.0)
}

func TestScoringBoundsAreStrict(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", nil)
	r.advance(step60)

	// 60 units/s over one 1/60s step lands the ball exactly on x=0,
	// far below the left paddle so nothing intercepts it.
	s.Ball = Ball{Pos: Vector{X: 1, Y: 10}, Vel: Vector{X: -60}, Radius: 2, Started: true}

	r.advance(step60)
	require.Equal(t, 0.0, s.Ball.Pos.X)
	require.Equal(t, 0, s.participant("p2").Score)
	require.True(t, s.Ball.Started)

	// One more step puts it beyond the bound: now the right player scores
	// and the ball is queued for a re-serve.
	r.advance(step60)
	require.Equal(t, 1, s.participant("p2").Score)
	require.False(t, s.Ball.Started)
}

func TestCenterPaddleHitPreservesSpeed(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", nil)
	r.advance(step60)

	// Dead-center hit on the left paddle.
	s.Ball = Ball{Pos: Vector{X: 6, Y: 50}, Vel: Vector{X: -300}, Radius: 2, Started: true}
	r.advance(step60)

	require.InDelta(t, 0, s.Ball.Vel.Y, 1e-9)
	require.Greater(t, s.Ball.Vel.X, 0.0)

	// Speed grows by the increment, capped at the max, and the redirect
	// preserves that magnitude.
	want := math.Min(300+s.Config.BallSpeedIncrement, s.Config.BallMaxSpeed)
	require.InDelta(t, want, math.Hypot(s.Ball.Vel.X, s.Ball.Vel.Y), 1e-9)
	require.Equal(t, "p1", s.Ball.LastTouch)
}

func TestOffCenterHitRedirectsByOffset(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", nil)
	r.advance(step60)

	// Strike halfway between paddle center and edge.
	s.Ball = Ball{Pos: Vector{X: 6, Y: 55}, Vel: Vector{X: -300}, Radius: 2, Started: true}
	r.advance(step60)

	speed := math.Min(300+s.Config.BallSpeedIncrement, s.Config.BallMaxSpeed)
	require.InDelta(t, 0.5*speed, s.Ball.Vel.Y, 1e-9)
	require.InDelta(t, math.Sqrt(speed*speed-0.25*speed*speed), s.Ball.Vel.X, 1e-9)
}

func TestBallCannotRecollideWithLastPaddle(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", nil)
	r.advance(step60)

	s.Ball = Ball{Pos: Vector{X: 2, Y: 50}, Vel: Vector{X: -10}, Radius: 2, Started: true, LastTouch: "p1"}
	r.advance(step60)

	// Overlapping the paddle it last touched does not bounce it again.
	require.Equal(t, -10.0, s.Ball.Vel.X)
}

func TestWinRequiresFirstToAndWinBy(t *testing.T) {
	r := newRig(t, Options{})

	// 5:3 plus one more point ends the match (diff >= winBy).
	s := r.startedSession("s1", nil)
	s.participant("p1").Score = 4
	s.participant("p2").Score = 3
	r.advance(step60)
	s.Ball = Ball{Pos: Vector{X: 199, Y: 10}, Vel: Vector{X: 120}, Radius: 2, Started: true}
	r.advance(step60)
	require.Equal(t, 5, s.participant("p1").Score)
	require.Equal(t, StateStopped, s.State)

	snaps := r.rec.snapshots("s1")
	require.NotEmpty(t, snaps)
	require.Equal(t, string(StateStopped), snaps[len(snaps)-1].State)

	// 5:4 keeps playing (diff < winBy).
	s2 := r.startedSession("s2", nil)
	s2.participant("p1").Score = 4
	s2.participant("p2").Score = 4
	r.advance(step60)
	s2.Ball = Ball{Pos: Vector{X: 199, Y: 10}, Vel: Vector{X: 120}, Radius: 2, Started: true}
	r.advance(step60)
	require.Equal(t, 5, s2.participant("p1").Score)
	require.Equal(t, StatePlaying, s2.State)
	require.False(t, s2.Ball.Started)
}

func TestStickyInputAndFrictionDecay(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", &protocol.ConfigPatch{InputDelayFrames: ip(0)})
	p1 := s.participant("p1")

	r.dispatch(protocol.Input{
		SessionID: "s1", ParticipantID: "p1",
		Frames: []protocol.InputBatch{{
			FrameID: 1,
			Inputs:  []protocol.InputEvent{{Key: protocol.KeyDown, Pressed: true}},
		}},
	})

	r.advance(step60)
	require.True(t, p1.Inputs.Down)
	require.Greater(t, p1.Vel, 0.0)

	// No further events: the key stays held and the paddle keeps
	// accelerating up to its speed cap.
	r.ticks(10, step60)
	require.True(t, p1.Inputs.Down)
	require.Equal(t, s.Config.PaddleMaxSpeed, p1.Vel)

	r.dispatch(protocol.Input{
		SessionID: "s1", ParticipantID: "p1",
		Frames: []protocol.InputBatch{{
			FrameID: s.Frame + 1,
			Inputs:  []protocol.InputEvent{{Key: protocol.KeyDown, Pressed: false}},
		}},
	})
	r.advance(step60)
	require.False(t, p1.Inputs.Down)

	// Released: friction bleeds speed off tick by tick.
	decayed := p1.Vel
	require.Less(t, decayed, s.Config.PaddleMaxSpeed)
	r.advance(step60)
	require.Less(t, p1.Vel, decayed)
}

func TestInputLandsOnExactDelayedFrame(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", nil)
	p1 := s.participant("p1")
	delay := int64(s.Config.InputDelayFrames)

	r.dispatch(protocol.Input{
		SessionID: "s1", ParticipantID: "p1",
		Frames: []protocol.InputBatch{{
			FrameID: 4,
			Inputs:  []protocol.InputEvent{{Key: protocol.KeyDown, Pressed: true}},
		}},
	})

	// The batch for frame 4 stays inert until the simulation reaches
	// frame 4+delay.
	for s.Frame < 4+delay-1 {
		r.advance(step60)
		require.False(t, p1.Inputs.Down, "frame %d", s.Frame)
		require.Equal(t, 0.0, p1.Vel, "frame %d", s.Frame)
	}

	r.advance(step60)
	require.Equal(t, 4+delay, s.Frame)
	require.True(t, p1.Inputs.Down)
	require.Greater(t, p1.Vel, 0.0)
}

func TestPaddleClampsAtWalls(t *testing.T) {
	r := newRig(t, Options{})
	s := r.startedSession("s1", nil)
	p1 := s.participant("p1")
	p1.Inputs.Down = true

	r.ticks(120, step60)

	maxY := s.Config.WorldHeight - s.Config.WallThickness - s.Config.PaddleHeight/2
	require.Equal(t, maxY, p1.Pos.Y)
	require.Equal(t, 0.0, p1.Vel)
}
