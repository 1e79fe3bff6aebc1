package pong

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"pongd/internal/protocol"
)

// State is a session's lifecycle phase. Transitions happen only inside the
// engine loop, either from the control handler or from the physics step.
type State string

const (
	// StateWaiting marks a session holding fewer participants than the
	// configured count. Physics is skipped until the session refills.
	StateWaiting State = "waiting"
	// StateStarting is the countdown phase before play; the session
	// auto-promotes to playing once its deadline passes.
	StateStarting State = "starting"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateStopped  State = "stopped"
)

// Sides of the playfield, assigned by ascending participant id.
const (
	SideLeft  = "left"
	SideRight = "right"
)

type Vector struct {
	X float64
	Y float64
}

type Ball struct {
	Pos    Vector
	Vel    Vector
	Radius float64
	// Started is false between a score and the next serve.
	Started bool
	// LastTouch holds the id of the paddle the ball last hit, so the same
	// paddle cannot bounce it twice in a row.
	LastTouch string
}

// Config is a session's immutable tuning. Distances are world units,
// speeds are units per second.
type Config struct {
	WorldWidth         float64
	WorldHeight        float64
	WallThickness      float64
	PaddleWidth        float64
	PaddleHeight       float64
	PaddleAccel        float64
	PaddleFriction     float64
	PaddleMaxSpeed     float64
	BallRadius         float64
	BallSpeed          float64
	BallMaxSpeed       float64
	BallSpeedIncrement float64
	FirstTo            int
	WinBy              int
	TickRate           int
	InputDelayFrames   int
	StateSyncRate      int
	MaxPlayers         int
}

func DefaultConfig() Config {
	return Config{
		WorldWidth:         200,
		WorldHeight:        100,
		WallThickness:      2,
		PaddleWidth:        2,
		PaddleHeight:       20,
		PaddleAccel:        900,
		PaddleFriction:     0.85,
		PaddleMaxSpeed:     140,
		BallRadius:         2,
		BallSpeed:          80,
		BallMaxSpeed:       240,
		BallSpeedIncrement: 10,
		FirstTo:            5,
		WinBy:              2,
		TickRate:           60,
		InputDelayFrames:   3,
		StateSyncRate:      2,
		MaxPlayers:         2,
	}
}

// merged returns the config with every non-nil patch field applied.
func (c Config) merged(p *protocol.ConfigPatch) Config {
	if p == nil {
		return c
	}
	if p.WorldWidth != nil {
		c.WorldWidth = *p.WorldWidth
	}
	if p.WorldHeight != nil {
		c.WorldHeight = *p.WorldHeight
	}
	if p.WallThickness != nil {
		c.WallThickness = *p.WallThickness
	}
	if p.PaddleWidth != nil {
		c.PaddleWidth = *p.PaddleWidth
	}
	if p.PaddleHeight != nil {
		c.PaddleHeight = *p.PaddleHeight
	}
	if p.PaddleAccel != nil {
		c.PaddleAccel = *p.PaddleAccel
	}
	if p.PaddleFriction != nil {
		c.PaddleFriction = *p.PaddleFriction
	}
	if p.PaddleMaxSpeed != nil {
		c.PaddleMaxSpeed = *p.PaddleMaxSpeed
	}
	if p.BallRadius != nil {
		c.BallRadius = *p.BallRadius
	}
	if p.BallSpeed != nil {
		c.BallSpeed = *p.BallSpeed
	}
	if p.BallMaxSpeed != nil {
		c.BallMaxSpeed = *p.BallMaxSpeed
	}
	if p.BallSpeedIncrement != nil {
		c.BallSpeedIncrement = *p.BallSpeedIncrement
	}
	if p.FirstTo != nil {
		c.FirstTo = *p.FirstTo
	}
	if p.WinBy != nil {
		c.WinBy = *p.WinBy
	}
	if p.TickRate != nil {
		c.TickRate = *p.TickRate
	}
	if p.InputDelayFrames != nil {
		c.InputDelayFrames = *p.InputDelayFrames
	}
	if p.StateSyncRate != nil {
		c.StateSyncRate = *p.StateSyncRate
	}
	if p.MaxPlayers != nil {
		c.MaxPlayers = *p.MaxPlayers
	}
	return c
}

func (c Config) validate() error {
	if c.MaxPlayers != 2 {
		return fmt.Errorf("unsupported participant count %d, only 2 is supported", c.MaxPlayers)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	if c.StateSyncRate <= 0 {
		return fmt.Errorf("state sync rate must be positive, got %d", c.StateSyncRate)
	}
	if c.FirstTo <= 0 || c.WinBy <= 0 {
		return fmt.Errorf("firstTo and winBy must be positive, got %d/%d", c.FirstTo, c.WinBy)
	}
	if c.InputDelayFrames < 0 {
		return fmt.Errorf("input delay must not be negative, got %d", c.InputDelayFrames)
	}
	if c.WorldWidth <= 0 || c.WorldHeight <= 0 {
		return fmt.Errorf("world size must be positive, got %gx%g", c.WorldWidth, c.WorldHeight)
	}
	return nil
}

// fixedDt is the session's fixed simulation step in seconds.
func (c Config) fixedDt() float64 {
	return 1.0 / float64(c.TickRate)
}

func (c Config) fixedStep() time.Duration {
	return time.Duration(float64(time.Second) / float64(c.TickRate))
}

// Session is one independent match: its participants, immutable config,
// ball state, frame counter and lifecycle phase.
type Session struct {
	ID            string
	Participants  []*Participant
	Config        Config
	Ball          Ball
	Frame         int64
	State         State
	OwnerID       string
	StartDeadline time.Time

	// Scheduler bookkeeping. Touched only from the engine loop.
	accumulator time.Duration
	pausedAt    time.Time
	serveRight  bool
	timeline    []protocol.ScoreEvent
}

func (s *Session) participant(id string) *Participant {
	for _, p := range s.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// bySide returns the participants in side order: ascending by id, first
// left, second right. Only meaningful with a full two-player session.
func (s *Session) bySide() (left, right *Participant) {
	sorted := slices.Clone(s.Participants)
	slices.SortFunc(sorted, func(a, b *Participant) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if len(sorted) > 0 {
		left = sorted[0]
	}
	if len(sorted) > 1 {
		right = sorted[1]
	}
	return left, right
}

// assignSides pins each participant's paddle to its side of the field and
// records the side on the participant.
func (s *Session) assignSides() {
	left, right := s.bySide()
	if left != nil {
		left.Side = SideLeft
		left.Pos = Vector{X: s.Config.PaddleWidth / 2, Y: s.Config.WorldHeight / 2}
	}
	if right != nil {
		right.Side = SideRight
		right.Pos = Vector{X: s.Config.WorldWidth - s.Config.PaddleWidth/2, Y: s.Config.WorldHeight / 2}
	}
}

func (s *Session) sides() map[string]string {
	sides := make(map[string]string, len(s.Participants))
	for _, p := range s.Participants {
		if p.Side != "" {
			sides[p.ID] = p.Side
		}
	}
	return sides
}

// elapsedMs is the frame-derived match clock, so replays with identical
// inputs produce identical timelines.
func (s *Session) elapsedMs() int64 {
	return int64(float64(s.Frame) * s.Config.fixedDt() * 1000)
}

func (s *Session) snapshot() protocol.Snapshot {
	snap := protocol.Snapshot{
		SessionID: s.ID,
		FrameID:   s.Frame,
		Ball: protocol.BallState{
			X:       s.Ball.Pos.X,
			Y:       s.Ball.Pos.Y,
			VX:      s.Ball.Vel.X,
			VY:      s.Ball.Vel.Y,
			Radius:  s.Ball.Radius,
			Started: s.Ball.Started,
		},
		Paddles: make([]protocol.PaddleState, 0, len(s.Participants)),
		Scores:  make([]protocol.ScoreState, 0, len(s.Participants)),
		State:   string(s.State),
	}
	for _, p := range s.Participants {
		snap.Paddles = append(snap.Paddles, protocol.PaddleState{
			ParticipantID: p.ID,
			X:             p.Pos.X,
			Y:             p.Pos.Y,
			Width:         s.Config.PaddleWidth,
			Height:        s.Config.PaddleHeight,
		})
		snap.Scores = append(snap.Scores, protocol.ScoreState{
			ParticipantID: p.ID,
			Score:         p.Score,
		})
	}
	return snap
}
