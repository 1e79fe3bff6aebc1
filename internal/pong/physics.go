package pong

import (
	"math"

	"pongd/internal/protocol"
)

// stepSession advances one session by exactly one fixed tick. It is the
// only place the frame counter moves and the only writer of physics state.
func (e *Engine) stepSession(s *Session) {
	if len(s.Participants) < s.Config.MaxPlayers {
		s.State = StateWaiting
		return
	}

	dt := s.Config.fixedDt()
	s.Frame++

	// Consume input for the historical frame all peers converge on.
	target := s.Frame - int64(s.Config.InputDelayFrames)
	for _, p := range s.Participants {
		p.applyEvents(p.TakeFrame(target))
	}

	for _, p := range s.Participants {
		stepPaddle(&s.Config, p, dt)
	}

	s.stepBall(dt)
	s.collidePaddles()
	e.scoreIfOut(s)

	if s.State != StateStopped && s.Frame%int64(s.Config.StateSyncRate) == 0 {
		e.emit(s.ID, s.snapshot())
	}
}

func stepPaddle(c *Config, p *Participant, dt float64) {
	switch {
	case p.Inputs.Up && !p.Inputs.Down:
		p.Vel -= c.PaddleAccel * dt
	case p.Inputs.Down && !p.Inputs.Up:
		p.Vel += c.PaddleAccel * dt
	default:
		// Frame-rate-independent damping: friction is tuned for 60Hz,
		// the exponent rescales it to the configured tick rate.
		p.Vel *= math.Pow(c.PaddleFriction, dt*60)
	}

	p.Vel = clamp(p.Vel, -c.PaddleMaxSpeed, c.PaddleMaxSpeed)
	p.Pos.Y += p.Vel * dt

	minY := c.WallThickness + c.PaddleHeight/2
	maxY := c.WorldHeight - c.WallThickness - c.PaddleHeight/2
	if p.Pos.Y < minY {
		p.Pos.Y = minY
		p.Vel = 0
	}
	if p.Pos.Y > maxY {
		p.Pos.Y = maxY
		p.Vel = 0
	}
}

func (s *Session) stepBall(dt float64) {
	c := s.Config
	if !s.Ball.Started {
		// Serve from center. The direction alternates between serves
		// instead of being rolled, so runs stay deterministic.
		dir := 1.0
		if !s.serveRight {
			dir = -1
		}
		s.serveRight = !s.serveRight
		s.Ball = Ball{
			Pos:     Vector{X: c.WorldWidth / 2, Y: c.WorldHeight / 2},
			Vel:     Vector{X: dir * c.BallSpeed},
			Radius:  c.BallRadius,
			Started: true,
		}
		return
	}

	s.Ball.Pos.X += s.Ball.Vel.X * dt
	s.Ball.Pos.Y += s.Ball.Vel.Y * dt

	// Lossless vertical bounce off the top and bottom walls.
	top := c.WallThickness + s.Ball.Radius
	bottom := c.WorldHeight - c.WallThickness - s.Ball.Radius
	if s.Ball.Pos.Y <= top && s.Ball.Vel.Y < 0 {
		s.Ball.Pos.Y = top
		s.Ball.Vel.Y = -s.Ball.Vel.Y
	}
	if s.Ball.Pos.Y >= bottom && s.Ball.Vel.Y > 0 {
		s.Ball.Pos.Y = bottom
		s.Ball.Vel.Y = -s.Ball.Vel.Y
	}
}

// collidePaddles resolves at most one ball-paddle hit per participant per
// tick. The ball cannot re-collide with the paddle it touched last.
func (s *Session) collidePaddles() {
	c := s.Config
	if !s.Ball.Started {
		return
	}
	for _, p := range s.Participants {
		if p.ID == s.Ball.LastTouch {
			continue
		}
		if math.Abs(s.Ball.Pos.X-p.Pos.X) > s.Ball.Radius+c.PaddleWidth/2 {
			continue
		}
		if math.Abs(s.Ball.Pos.Y-p.Pos.Y) > s.Ball.Radius+c.PaddleHeight/2 {
			continue
		}

		// Redirect by where the ball struck relative to the paddle
		// center, preserving total speed magnitude.
		offset := clamp((s.Ball.Pos.Y-p.Pos.Y)/(c.PaddleHeight/2), -1, 1)
		speed := math.Hypot(s.Ball.Vel.X, s.Ball.Vel.Y) + c.BallSpeedIncrement
		if speed > c.BallMaxSpeed {
			speed = c.BallMaxSpeed
		}
		dir := 1.0
		if p.Side == SideRight {
			dir = -1
		}
		vy := offset * speed
		s.Ball.Vel = Vector{
			X: dir * math.Sqrt(math.Max(0, speed*speed-vy*vy)),
			Y: vy,
		}
		s.Ball.LastTouch = p.ID
	}
}

// scoreIfOut awards a point when the ball leaves the field. The bounds are
// strict: a ball exactly at x=0 or x=worldWidth is still in play.
func (e *Engine) scoreIfOut(s *Session) {
	if !s.Ball.Started {
		return
	}
	left, right := s.bySide()

	var scorer, loser *Participant
	switch {
	case s.Ball.Pos.X < 0:
		scorer, loser = right, left
	case s.Ball.Pos.X > s.Config.WorldWidth:
		scorer, loser = left, right
	default:
		return
	}

	scorer.Score++
	s.timeline = append(s.timeline, protocol.ScoreEvent{
		ElapsedMs: s.elapsedMs(),
		ScorerID:  scorer.ID,
	})

	// Queue the next serve.
	s.Ball.Started = false
	s.Ball.LastTouch = ""

	if scorer.Score >= s.Config.FirstTo && scorer.Score-loser.Score >= s.Config.WinBy {
		s.State = StateStopped
		// Announce the result right away rather than waiting for the
		// finalize pass on the next scheduler tick.
		e.emit(s.ID, s.snapshot())
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
