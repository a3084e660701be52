package chordserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/braille-lib/core/chord"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func sendKey(t *testing.T, conn *websocket.Conn, typ, key string) {
	t.Helper()
	if err := conn.WriteJSON(Frame{Type: typ, Key: key}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestWebSocketChord(t *testing.T) {
	srv := httptest.NewServer(New(Config{}).Handler())
	defer srv.Close()
	conn := dial(t, srv, "")

	ready := readFrame(t, conn)
	if ready.Type != FrameReady || !strings.HasPrefix(ready.Layout, chord.DefaultLayout) {
		t.Fatalf("expected ready frame for default layout, got %+v", ready)
	}

	sendKey(t, conn, FrameDown, "f")
	sendKey(t, conn, FrameDown, "d")
	sendKey(t, conn, FrameUp, "f")
	sendKey(t, conn, FrameUp, "d")

	glyph := readFrame(t, conn)
	if glyph.Type != FrameGlyph {
		t.Fatalf("expected glyph frame, got %+v", glyph)
	}
	if glyph.Glyph != "⠃" || glyph.Codepoint != "U+2803" || glyph.Dots == nil || *glyph.Dots != "12" || glyph.Mask == nil || *glyph.Mask != 3 {
		t.Errorf("unexpected glyph %+v", glyph)
	}
}

func TestWebSocketBlankCellKeepsMask(t *testing.T) {
	srv := httptest.NewServer(New(Config{}).Handler())
	defer srv.Close()
	conn := dial(t, srv, "")
	readFrame(t, conn) // ready

	sendKey(t, conn, FrameDown, chord.SpaceKey)
	sendKey(t, conn, FrameUp, chord.SpaceKey)

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	raw := string(data)
	for _, want := range []string{`"type":"glyph"`, `"codepoint":"U+2800"`, `"dots":""`, `"mask":0`} {
		if !strings.Contains(raw, want) {
			t.Errorf("glyph frame %s missing %s", raw, want)
		}
	}
}

func TestNonGlyphFramesOmitMask(t *testing.T) {
	data, err := json.Marshal(Frame{Type: FramePassthrough, Key: "a", Direction: "down"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "mask") || strings.Contains(string(data), "dots") {
		t.Errorf("passthrough frame carries cell fields: %s", data)
	}
}

func TestWebSocketPassthroughAndErrors(t *testing.T) {
	srv := httptest.NewServer(New(Config{}).Handler())
	defer srv.Close()
	conn := dial(t, srv, "?layout=dwq-kop")

	if ready := readFrame(t, conn); !strings.HasPrefix(ready.Layout, "dwq-kop") {
		t.Fatalf("expected dwq-kop layout, got %+v", ready)
	}

	sendKey(t, conn, FrameDown, "a")
	pass := readFrame(t, conn)
	if pass.Type != FramePassthrough || pass.Key != "a" || pass.Direction != "down" {
		t.Errorf("unexpected passthrough %+v", pass)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != FrameError || f.Message == "" {
		t.Errorf("expected error frame, got %+v", f)
	}

	sendKey(t, conn, "sideways", "d")
	if f := readFrame(t, conn); f.Type != FrameError || !strings.Contains(f.Message, "sideways") {
		t.Errorf("expected unknown type error, got %+v", f)
	}

	// A reset discards the half-typed chord.
	sendKey(t, conn, FrameDown, "d")
	sendKey(t, conn, FrameReset, "")
	sendKey(t, conn, FrameDown, "w")
	sendKey(t, conn, FrameUp, "w")
	if f := readFrame(t, conn); f.Glyph != "⠂" {
		t.Errorf("expected dot 2 only after reset, got %+v", f)
	}
}

func TestUnknownLayoutRejected(t *testing.T) {
	srv := httptest.NewServer(New(Config{}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?layout=dvorak"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", resp)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := New(Config{AllowedOrigins: []string{"https://braille.example"}})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"same host", "http://localhost:8765", true},
		{"allowed", "https://braille.example", true},
		{"foreign", "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://localhost:8765/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}

	all := New(Config{AllowedOrigins: []string{"*"}})
	r := httptest.NewRequest(http.MethodGet, "http://localhost/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	if !all.checkOrigin(r) {
		t.Error("expected wildcard to allow every origin")
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    chord.Event
		ok      bool
		wantErr bool
	}{
		{"down", `{"type":"down","key":"f"}`, chord.Press("f"), true, false},
		{"up shorthand", `{"type":"-","key":"j"}`, chord.Release("j"), true, false},
		{"reset", `{"type":"reset"}`, chord.Event{}, false, false},
		{"missing key", `{"type":"down"}`, chord.Event{}, false, true},
		{"bad type", `{"type":"hold","key":"f"}`, chord.Event{}, false, true},
		{"bad json", `[`, chord.Event{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := ParseFrame([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.ok || ev != tt.want {
				t.Errorf("got %+v ok=%v, want %+v ok=%v", ev, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLayoutsAndMetrics(t *testing.T) {
	srv := httptest.NewServer(New(Config{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/layouts")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var layouts []layoutInfo
	if err := json.NewDecoder(resp.Body).Decode(&layouts); err != nil {
		t.Fatalf("decode layouts: %v", err)
	}
	if len(layouts) != len(chord.LayoutNames()) {
		t.Errorf("expected %d layouts, got %d", len(chord.LayoutNames()), len(layouts))
	}
	var defaults int
	for _, l := range layouts {
		if l.Default {
			defaults++
			if l.Name != chord.DefaultLayout {
				t.Errorf("expected %s as default, got %s", chord.DefaultLayout, l.Name)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("expected one default layout, got %d", defaults)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected request id header from middleware")
	}

	m, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Body.Close()
	body, _ := io.ReadAll(m.Body)
	if !strings.Contains(string(body), "braille_chord_sessions_active") {
		t.Error("expected chord metrics to be exported")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(Config{}).Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
