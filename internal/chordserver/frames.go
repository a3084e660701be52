package chordserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/FocuswithJustin/braille-lib/core/braille"
	"github.com/FocuswithJustin/braille-lib/core/chord"
	"github.com/FocuswithJustin/braille-lib/internal/metrics"
)

// Frame types.
const (
	FrameDown        = "down"
	FrameUp          = "up"
	FrameReset       = "reset"
	FrameReady       = "ready"
	FrameGlyph       = "glyph"
	FramePassthrough = "passthrough"
	FrameError       = "error"
)

// Frame is a JSON message in either direction. Clients send down, up and
// reset frames; the server sends ready, glyph, passthrough and error frames.
// Dots and Mask are set on every glyph frame, so the blank cell carries
// "dots":"" and "mask":0.
type Frame struct {
	Type      string  `json:"type"`
	Key       string  `json:"key,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Glyph     string  `json:"glyph,omitempty"`
	Codepoint string  `json:"codepoint,omitempty"`
	Dots      *string `json:"dots,omitempty"`
	Mask      *int    `json:"mask,omitempty"`
	Layout    string  `json:"layout,omitempty"`
	Message   string  `json:"message,omitempty"`
}

func glyphFrame(cell rune, mask uint8) Frame {
	dots, m := braille.Dots(mask), int(mask)
	return Frame{
		Type:      FrameGlyph,
		Glyph:     string(cell),
		Codepoint: braille.Codepoint(cell),
		Dots:      &dots,
		Mask:      &m,
	}
}

// ParseFrame decodes a client frame into a key event. Reset frames return
// ok=false with no error.
func ParseFrame(data []byte) (ev chord.Event, ok bool, err error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return chord.Event{}, false, err
	}
	if strings.EqualFold(f.Type, FrameReset) {
		return chord.Event{}, false, nil
	}
	dir, known := chord.ParseDirection(f.Type)
	if !known {
		return chord.Event{}, false, errUnknownType(f.Type)
	}
	key := strings.TrimSpace(f.Key)
	if key == "" {
		return chord.Event{}, false, errMissingKey
	}
	return chord.Event{Key: key, Dir: dir}, true, nil
}

type frameError string

func (e frameError) Error() string { return string(e) }

const errMissingKey = frameError("frame has no key")

func errUnknownType(t string) error {
	return frameError("unknown frame type " + `"` + t + `"`)
}

// frameSource reads key events from the client connection. Malformed frames
// are answered with an error frame and skipped.
type frameSource struct {
	client *client
}

func (s *frameSource) Next(ctx context.Context) (chord.Event, error) {
	c := s.client
	for {
		if err := ctx.Err(); err != nil {
			return chord.Event{}, err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return chord.Event{}, err
		}
		ev, ok, err := ParseFrame(data)
		if err != nil {
			reason := "malformed"
			if _, isFrame := err.(frameError); isFrame {
				reason = "invalid"
			}
			metrics.FrameErrors.WithLabelValues(reason).Inc()
			c.send(Frame{Type: FrameError, Message: err.Error()})
			continue
		}
		if !ok {
			c.session.Reset()
			continue
		}
		c.metrics.RecordEvent(ev.Dir.String(), c.session.Layout().Tracked(ev.Key))
		return ev, nil
	}
}
