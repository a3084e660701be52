// Package chord turns chorded key presses into braille cells.
//
// Keys of a Layout stand for dots. A chord starts with the first tracked
// key-down and ends when the last held tracked key is released; the emitted
// cell is the union of every key pressed during the chord, including keys
// released before the others. Untracked keys pass through untouched.
//
// The layout's space key raises no dots. On its own it yields the blank
// cell; pressed while a chord is accumulating it is ignored.
//
//	IDLE --down--> ACCUMULATING --down/up--> ACCUMULATING
//	ACCUMULATING --last up--> emit cell, reset --> IDLE
package chord

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/FocuswithJustin/braille-lib/core/braille"
)

// Direction is the direction of a key event.
type Direction int

const (
	// Down is a key press.
	Down Direction = iota
	// Up is a key release.
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// ParseDirection accepts "down"/"up" and the "+"/"-" shorthands.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "down", "+", "press", "keydown":
		return Down, true
	case "up", "-", "release", "keyup":
		return Up, true
	}
	return Down, false
}

// Event is one key press or release.
type Event struct {
	Key string
	Dir Direction
}

// Press and Release build events.
func Press(key string) Event   { return Event{Key: key, Dir: Down} }
func Release(key string) Event { return Event{Key: key, Dir: Up} }

// Phase is the observable state of a session.
type Phase int

const (
	Idle Phase = iota
	Accumulating
)

func (p Phase) String() string {
	if p == Accumulating {
		return "accumulating"
	}
	return "idle"
}

// State holds the keys currently down and the keys pressed during the
// current chord. The zero value is the idle state.
type State struct {
	Held  map[string]struct{}
	Chord map[string]struct{}
}

// Phase reports whether a chord is in progress.
func (s State) Phase() Phase {
	if len(s.Chord) > 0 || len(s.Held) > 0 {
		return Accumulating
	}
	return Idle
}

// Mask is the cell mask of the keys pressed so far in the chord.
func (s State) Mask(l Layout) uint8 {
	var mask uint8
	for k := range s.Chord {
		mask |= l.Bit(k)
	}
	return mask
}

// HeldKeys returns the held keys in sorted order.
func (s State) HeldKeys() []string { return sortedKeys(s.Held) }

// ChordKeys returns the keys of the current chord in sorted order.
func (s State) ChordKeys() []string { return sortedKeys(s.Chord) }

func (s State) clone() State {
	return State{Held: cloneSet(s.Held), Chord: cloneSet(s.Chord)}
}

// Result describes what one event did.
type Result struct {
	// Suppressed is true for tracked keys; the raw event must not reach the
	// application.
	Suppressed bool
	// Emitted is true when the event completed a chord.
	Emitted bool
	Cell    rune
	Mask    uint8
}

// Step is the transition function. It never modifies s.
func Step(l Layout, s State, ev Event) (State, Result) {
	if !l.Tracked(ev.Key) {
		return s, Result{}
	}
	key := normalizeKey(ev.Key)
	res := Result{Suppressed: true}
	// The space key only starts a chord; pressed during one it is swallowed.
	if key == l.Space && ev.Dir == Down && s.Phase() == Accumulating {
		if _, held := s.Held[key]; !held {
			return s, res
		}
	}
	next := s.clone()

	switch ev.Dir {
	case Down:
		next.Held[key] = struct{}{}
		next.Chord[key] = struct{}{}
	case Up:
		delete(next.Held, key)
		if len(next.Held) == 0 && len(next.Chord) > 0 {
			res.Mask = next.Mask(l)
			res.Cell = braille.Cell(res.Mask)
			res.Emitted = true
			next.Chord = map[string]struct{}{}
		}
	}
	return next, res
}

// Emitter receives completed cells.
type Emitter interface {
	Emit(cell rune, mask uint8) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(cell rune, mask uint8) error

func (f EmitterFunc) Emit(cell rune, mask uint8) error { return f(cell, mask) }

// Forwarder receives events for keys the layout does not track.
type Forwarder interface {
	Forward(ev Event) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(ev Event) error

func (f ForwarderFunc) Forward(ev Event) error { return f(ev) }

// TextEmitter writes each cell to W as UTF-8 text.
type TextEmitter struct {
	W io.Writer
}

func (t TextEmitter) Emit(cell rune, _ uint8) error {
	_, err := io.WriteString(t.W, string(cell))
	return err
}

// Session owns the state of one event stream. It is not safe for concurrent
// use; events must be handled in delivery order.
type Session struct {
	layout  Layout
	state   State
	emit    Emitter
	forward Forwarder
}

// NewSession creates an idle session. forward may be nil, in which case
// untracked events are dropped.
func NewSession(layout Layout, emit Emitter, forward Forwarder) *Session {
	return &Session{layout: layout, emit: emit, forward: forward}
}

// Layout returns the session's layout.
func (s *Session) Layout() Layout { return s.layout }

// State returns a copy of the current state.
func (s *Session) State() State { return s.state.clone() }

// Reset discards any chord in progress without emitting.
func (s *Session) Reset() { s.state = State{} }

// Handle applies one event.
func (s *Session) Handle(ev Event) (Result, error) {
	next, res := Step(s.layout, s.state, ev)
	s.state = next
	if !res.Suppressed {
		if s.forward != nil {
			return res, s.forward.Forward(ev)
		}
		return res, nil
	}
	if res.Emitted && s.emit != nil {
		return res, s.emit.Emit(res.Cell, res.Mask)
	}
	return res, nil
}

// Source delivers key events. Next returns io.EOF when the stream ends.
type Source interface {
	Next(ctx context.Context) (Event, error)
}

// Run feeds events from src into s until the source is exhausted or ctx is
// done. Reaching io.EOF is not an error.
func Run(ctx context.Context, src Source, s *Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := s.Handle(ev); err != nil {
			return err
		}
	}
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
	pos    int
}

// NewSliceSource returns a Source over events.
func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
