package pong

import (
	"golang.org/x/exp/slices"

	"pongd/internal/protocol"
)

// InputFlags is the sticky, level-triggered key state. A flag persists
// until a new event for that key arrives; an empty frame changes nothing.
type InputFlags struct {
	Up   bool
	Down bool
}

// Participant is one player's simulation state. Every field the physics
// touches is declared here upfront.
type Participant struct {
	ID    string
	Side  string
	Score int
	Pos   Vector
	// Vel is the paddle's vertical velocity; paddles only move on Y.
	Vel    float64
	Inputs InputFlags

	// buffer holds input batches keyed by frame id, ascending.
	buffer []protocol.InputBatch
}

func NewParticipant(id string) *Participant {
	return &Participant{ID: id}
}

// AddInputs merges batches into the buffer. Batches sharing a frame id
// concatenate their event lists rather than overwriting, and the buffer
// stays sorted ascending by frame id.
func (p *Participant) AddInputs(batches []protocol.InputBatch) {
	for _, b := range batches {
		i, found := slices.BinarySearchFunc(p.buffer, b.FrameID, func(have protocol.InputBatch, want int64) int {
			switch {
			case have.FrameID < want:
				return -1
			case have.FrameID > want:
				return 1
			}
			return 0
		})
		if found {
			p.buffer[i].Inputs = append(p.buffer[i].Inputs, b.Inputs...)
			continue
		}
		p.buffer = slices.Insert(p.buffer, i, protocol.InputBatch{
			FrameID: b.FrameID,
			Inputs:  slices.Clone(b.Inputs),
		})
	}
}

// TakeFrame destructively reads the batch buffered for frameID and evicts
// everything at or below it. The simulation only ever asks for increasing
// frame ids, so batches it has passed can never be consumed and would
// otherwise sit in the buffer for the life of the match.
func (p *Participant) TakeFrame(frameID int64) []protocol.InputEvent {
	i, found := slices.BinarySearchFunc(p.buffer, frameID, func(have protocol.InputBatch, want int64) int {
		switch {
		case have.FrameID < want:
			return -1
		case have.FrameID > want:
			return 1
		}
		return 0
	})
	var events []protocol.InputEvent
	if found {
		events = p.buffer[i].Inputs
		i++
	}
	p.buffer = slices.Delete(p.buffer, 0, i)
	return events
}

// applyEvents folds a frame's events into the sticky flags, in order.
func (p *Participant) applyEvents(events []protocol.InputEvent) {
	for _, ev := range events {
		switch ev.Key {
		case protocol.KeyUp:
			p.Inputs.Up = ev.Pressed
		case protocol.KeyDown:
			p.Inputs.Down = ev.Pressed
		}
	}
}

// bufferedFrames reports the frame ids currently buffered, for tests.
func (p *Participant) bufferedFrames() []int64 {
	frames := make([]int64, 0, len(p.buffer))
	for _, b := range p.buffer {
		frames = append(frames, b.FrameID)
	}
	return frames
}
