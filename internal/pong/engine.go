package pong

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"pongd/internal/protocol"
)

// Broadcaster publishes a payload to everyone subscribed to a channel.
// Channels are named by session id.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Scheduler defaults.
const (
	DefaultTickEvery    = time.Second / 120
	DefaultClampDelta   = 200 * time.Millisecond
	DefaultGracePeriod  = 3 * time.Second
	DefaultPauseTimeout = 5 * time.Minute
)

type Options struct {
	Logger      *slog.Logger
	Broadcaster Broadcaster
	// EndGame receives the terminal summary once per finished session.
	EndGame func(protocol.Summary)
	// TickEvery is the wall-clock cadence of the scheduler loop.
	TickEvery time.Duration
	// ClampDelta caps the elapsed time drained per tick so a stalled
	// process does not trigger runaway catch-up.
	ClampDelta time.Duration
	// GracePeriod is the countdown between start and play.
	GracePeriod time.Duration
	// PauseTimeout aborts sessions left paused for too long. Negative
	// disables the timeout.
	PauseTimeout time.Duration
}

// Engine owns every live session and drives them from a single loop: the
// scheduler tick and the control protocol handler never run concurrently,
// so sessions need no locking.
type Engine struct {
	// Inbox receives inbound protocol messages. They take effect on the
	// loop, never mid-step.
	Inbox chan protocol.Message

	log         *slog.Logger
	broadcaster Broadcaster
	endGame     func(protocol.Summary)

	tickEvery    time.Duration
	clampDelta   time.Duration
	gracePeriod  time.Duration
	pauseTimeout time.Duration

	sessions map[string]*Session
	order    []string
	lastTick time.Time

	now  func() time.Time
	quit chan struct{}
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TickEvery <= 0 {
		opts.TickEvery = DefaultTickEvery
	}
	if opts.ClampDelta <= 0 {
		opts.ClampDelta = DefaultClampDelta
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.PauseTimeout == 0 {
		opts.PauseTimeout = DefaultPauseTimeout
	}
	return &Engine{
		Inbox:        make(chan protocol.Message, 256),
		log:          opts.Logger,
		broadcaster:  opts.Broadcaster,
		endGame:      opts.EndGame,
		tickEvery:    opts.TickEvery,
		clampDelta:   opts.ClampDelta,
		gracePeriod:  opts.GracePeriod,
		pauseTimeout: opts.PauseTimeout,
		sessions:     make(map[string]*Session),
		now:          time.Now,
		quit:         make(chan struct{}),
	}
}

// Run drives the engine until Stop is called. Everything the engine owns
// is touched only from this goroutine.
func (e *Engine) Run() {
	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case msg := <-e.Inbox:
			e.Dispatch(msg)
		case <-ticker.C:
			e.Tick(e.now())
		}
	}
}

func (e *Engine) Stop() {
	close(e.quit)
}

// Tick converts real elapsed time into whole fixed steps for every
// session, in registration order.
func (e *Engine) Tick(now time.Time) {
	var elapsed time.Duration
	if !e.lastTick.IsZero() {
		elapsed = now.Sub(e.lastTick)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > e.clampDelta {
		elapsed = e.clampDelta
	}
	e.lastTick = now

	// Finalize evicts from e.order, so walk a copy.
	for _, id := range slices.Clone(e.order) {
		s, ok := e.sessions[id]
		if !ok {
			continue
		}
		e.tickSession(s, now, elapsed)
	}
}

func (e *Engine) tickSession(s *Session, now time.Time, elapsed time.Duration) {
	// A fault inside one session must never take down the scheduler or
	// its neighbours. The session is marked stopped and finalized on the
	// next pass.
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("session fault, stopping", "session", s.ID, "panic", r)
			s.State = StateStopped
			s.accumulator = 0
		}
	}()

	switch s.State {
	case StateStarting:
		if !now.Before(s.StartDeadline) {
			s.Frame = 0
			s.accumulator = 0
			s.State = StatePlaying
		}
	case StatePlaying:
		step := s.Config.fixedStep()
		s.accumulator += elapsed
		for s.accumulator >= step && s.State == StatePlaying {
			e.stepSession(s)
			s.accumulator -= step
		}
	case StatePaused:
		// Elapsed time is discarded, not queued: resuming does not
		// fast-forward through the pause.
		if e.pauseTimeout > 0 && now.Sub(s.pausedAt) >= e.pauseTimeout {
			e.log.Info("paused session timed out, aborting", "session", s.ID)
			s.State = StateStopped
			s.accumulator = 0
		}
	case StateWaiting:
		// Skipped until the session refills.
	case StateStopped:
		e.finalize(s)
	}
}

// finalize reports the outcome once and evicts the session.
func (e *Engine) finalize(s *Session) {
	summary := protocol.Summary{
		SessionID: s.ID,
		Timeline:  slices.Clone(s.timeline),
	}
	high := 0
	allEqual := true
	for i, p := range s.Participants {
		if p.Score > high {
			high = p.Score
		}
		if i > 0 && p.Score != s.Participants[0].Score {
			allEqual = false
		}
	}
	for _, p := range s.Participants {
		outcome := "draw"
		if !allEqual {
			if p.Score == high {
				outcome = "win"
			} else {
				outcome = "lose"
			}
		}
		summary.Players = append(summary.Players, protocol.PlayerResult{
			ID:           p.ID,
			FinalScore:   p.Score,
			Outcome:      outcome,
			PointsEarned: p.Score,
		})
	}

	if e.endGame != nil {
		e.endGame(summary)
	}

	delete(e.sessions, s.ID)
	if i := slices.Index(e.order, s.ID); i >= 0 {
		e.order = slices.Delete(e.order, i, i+1)
	}
	e.log.Info("session finalized", "session", s.ID, "frames", s.Frame)
}

// Dispatch interprets one inbound message. Fire-and-forget: rejections are
// logged and dropped, effects surface only through broadcasts.
func (e *Engine) Dispatch(msg protocol.Message) {
	switch m := msg.Message.(type) {
	case protocol.Create:
		e.handleCreate(m)
	case protocol.Player:
		e.handlePlayer(m)
	case protocol.Settings:
		e.handleSettings(m)
	case protocol.Input:
		e.handleInput(m)
	case protocol.Control:
		e.handleControl(m)
	default:
		e.log.Debug("dropping message with unhandled payload", "type", msg.MessageType)
	}
}

func (e *Engine) handleCreate(m protocol.Create) {
	id := m.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := e.sessions[id]; ok {
		e.log.Info("rejecting create for existing session", "session", id)
		return
	}
	cfg := DefaultConfig().merged(m.Config)
	if err := cfg.validate(); err != nil {
		e.log.Info("rejecting create", "session", id, "error", err)
		return
	}

	s := &Session{
		ID:            id,
		Config:        cfg,
		State:         StateStarting,
		StartDeadline: e.now().Add(e.gracePeriod),
		serveRight:    true,
	}
	for _, pid := range m.Participants {
		if len(s.Participants) >= cfg.MaxPlayers {
			e.log.Info("dropping extra create participant", "session", id, "participant", pid)
			continue
		}
		if s.participant(pid) != nil {
			continue
		}
		s.Participants = append(s.Participants, NewParticipant(pid))
	}
	if len(s.Participants) > 0 {
		s.OwnerID = s.Participants[0].ID
	}
	s.assignSides()

	e.sessions[id] = s
	e.order = append(e.order, id)
	e.log.Info("session created", "session", id, "participants", len(s.Participants))
	e.emit(id, protocol.Ack{SessionID: id, Action: protocol.TypeCreate})
}

func (e *Engine) handlePlayer(m protocol.Player) {
	s, ok := e.sessions[m.SessionID]
	if !ok {
		e.log.Info("dropping player message for unknown session", "session", m.SessionID)
		return
	}

	switch m.Action {
	case protocol.ActionJoin:
		if s.participant(m.ParticipantID) != nil {
			e.log.Info("rejecting duplicate join", "session", s.ID, "participant", m.ParticipantID)
			return
		}
		if len(s.Participants) >= s.Config.MaxPlayers {
			e.log.Info("rejecting join, session full", "session", s.ID, "participant", m.ParticipantID)
			return
		}
		s.Participants = append(s.Participants, NewParticipant(m.ParticipantID))
		if s.OwnerID == "" {
			s.OwnerID = m.ParticipantID
		}
		s.assignSides()
		if s.State == StateWaiting && len(s.Participants) == s.Config.MaxPlayers {
			s.State = StatePlaying
			s.accumulator = 0
		}
		e.emit(s.ID, protocol.Ack{SessionID: s.ID, Action: protocol.ActionJoin})

	case protocol.ActionLeave:
		p := s.participant(m.ParticipantID)
		if p == nil {
			e.log.Info("rejecting leave for unknown participant", "session", s.ID, "participant", m.ParticipantID)
			return
		}
		// The participant's buffered inputs leave with it.
		i := slices.Index(s.Participants, p)
		s.Participants = slices.Delete(s.Participants, i, i+1)
		if s.OwnerID == m.ParticipantID {
			s.OwnerID = ""
			if len(s.Participants) > 0 {
				s.OwnerID = s.Participants[0].ID
			}
		}
		s.assignSides()
		e.emit(s.ID, protocol.Ack{SessionID: s.ID, Action: protocol.ActionLeave})

	default:
		e.log.Info("dropping player message with unknown action", "session", s.ID, "action", m.Action)
	}
}

func (e *Engine) handleSettings(m protocol.Settings) {
	s, ok := e.sessions[m.SessionID]
	if !ok {
		e.log.Info("dropping settings for unknown session", "session", m.SessionID)
		return
	}
	// Config is immutable once play begins.
	if s.State != StateStarting && s.State != StateWaiting {
		e.log.Info("rejecting settings after start", "session", s.ID, "state", s.State)
		return
	}
	cfg := s.Config.merged(&m.Patch)
	if err := cfg.validate(); err != nil {
		e.log.Info("rejecting settings", "session", s.ID, "error", err)
		return
	}
	s.Config = cfg
	s.assignSides()
	e.emit(s.ID, protocol.Ack{SessionID: s.ID, Action: protocol.TypeSettings})
}

func (e *Engine) handleInput(m protocol.Input) {
	s, ok := e.sessions[m.SessionID]
	if !ok {
		e.log.Debug("dropping input for unknown session", "session", m.SessionID)
		return
	}
	p := s.participant(m.ParticipantID)
	if p == nil {
		e.log.Debug("dropping input for unknown participant", "session", s.ID, "participant", m.ParticipantID)
		return
	}
	p.AddInputs(m.Frames)
}

func (e *Engine) handleControl(m protocol.Control) {
	s, ok := e.sessions[m.SessionID]
	if !ok {
		e.log.Info("dropping control for unknown session", "session", m.SessionID)
		return
	}

	switch m.Action {
	case protocol.ControlStart:
		if m.RequesterID != s.OwnerID && !m.Force {
			e.log.Info("rejecting start from non-owner", "session", s.ID, "requester", m.RequesterID)
			return
		}
		if len(s.Participants) != s.Config.MaxPlayers {
			e.log.Info("rejecting start, wrong participant count", "session", s.ID, "have", len(s.Participants))
			return
		}
		if s.State != StateStarting && s.State != StateWaiting {
			e.log.Info("rejecting start in current state", "session", s.ID, "state", s.State)
			return
		}
		for _, p := range s.Participants {
			p.Score = 0
			p.Vel = 0
			p.Inputs = InputFlags{}
		}
		s.Ball = Ball{}
		s.Frame = 0
		s.timeline = nil
		s.serveRight = true
		s.accumulator = 0
		s.assignSides()
		s.State = StateStarting
		s.StartDeadline = e.now().Add(e.gracePeriod)
		e.emit(s.ID, protocol.Ack{
			SessionID:   s.ID,
			Action:      protocol.ControlStart,
			PlayerSides: s.sides(),
			StartTime:   s.StartDeadline.UnixMilli(),
		})

	case protocol.ControlPause:
		if s.State != StatePlaying {
			e.log.Info("ignoring pause in current state", "session", s.ID, "state", s.State)
			return
		}
		s.State = StatePaused
		s.pausedAt = e.now()
		e.emit(s.ID, protocol.Ack{SessionID: s.ID, Action: protocol.ControlPause})

	case protocol.ControlResume:
		if s.State != StatePaused {
			e.log.Info("ignoring resume in current state", "session", s.ID, "state", s.State)
			return
		}
		s.State = StatePlaying
		e.emit(s.ID, protocol.Ack{SessionID: s.ID, Action: protocol.ControlResume})

	case protocol.ControlAbort:
		s.State = StateStopped
		s.accumulator = 0
		e.emit(s.ID, protocol.Ack{SessionID: s.ID, Action: protocol.ControlAbort})

	default:
		e.log.Info("dropping control with unknown action", "session", s.ID, "action", m.Action)
	}
}

func (e *Engine) emit(channel string, payload any) {
	if e.broadcaster == nil {
		return
	}
	e.broadcaster.Broadcast(channel, payload)
}
