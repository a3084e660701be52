// Package chordserver exposes chord sessions over WebSocket. Every connection
// gets its own session; clients send key events and receive the cells their
// chords produce.
package chordserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FocuswithJustin/braille-lib/core/chord"
	"github.com/FocuswithJustin/braille-lib/internal/logging"
	"github.com/FocuswithJustin/braille-lib/internal/metrics"
)

const (
	DefaultAddr = "127.0.0.1:8765"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds a client frame; key events are tiny.
	maxFrameSize = 4096
	sendBuffer   = 256
)

// Config configures a Server.
type Config struct {
	Addr string
	// Layout is used when the client does not pick one with ?layout=.
	Layout chord.Layout
	// AllowedOrigins lists browser origins allowed to connect. Requests
	// without an Origin header and same-host origins are always allowed.
	// "*" allows every origin.
	AllowedOrigins []string
}

// Server serves /ws, /layouts and /metrics.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	clients  atomic.Int64
	handler  http.Handler
}

// New creates a Server. A zero Layout means the default layout.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Layout.Name == "" {
		cfg.Layout = chord.LayoutByName(chord.DefaultLayout)
	}
	s := &Server{cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/layouts", s.handleLayouts)
	mux.Handle("/metrics", promhttp.Handler())
	s.handler = logging.CombinedMiddleware(mux)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Clients returns the number of connected sessions.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	logging.ServerStartup("chord", "http", ln.Addr().String(), "layout", s.cfg.Layout.Name)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type layoutInfo struct {
	Name    string         `json:"name"`
	Keys    map[string]int `json:"keys"`
	Space   string         `json:"space,omitempty"`
	Default bool           `json:"default,omitempty"`
}

func (s *Server) handleLayouts(w http.ResponseWriter, r *http.Request) {
	var out []layoutInfo
	for _, name := range chord.LayoutNames() {
		l := chord.LayoutByName(name)
		out = append(out, layoutInfo{Name: l.Name, Keys: l.Dots, Space: l.Space, Default: l.Name == s.cfg.Layout.Name})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	layout := s.cfg.Layout
	if name := r.URL.Query().Get("layout"); name != "" {
		l, ok := chord.LookupLayout(name)
		if !ok {
			http.Error(w, "unknown layout "+name, http.StatusBadRequest)
			return
		}
		layout = l
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, layout)
	n := s.clients.Add(1)
	c.metrics.RecordSessionStart()
	logging.WebSocketEvent("client_connected", int(n), "layout", layout.Name, "remote_addr", r.RemoteAddr)

	go c.writePump()
	c.send(Frame{Type: FrameReady, Layout: layout.String()})
	c.readPump(r.Context())

	n = s.clients.Add(-1)
	c.metrics.RecordSessionEnd()
	logging.WebSocketEvent("client_disconnected", int(n), "layout", layout.Name)
}

// client is one connection and its chord session. The session is only used
// from the read loop.
type client struct {
	conn    *websocket.Conn
	out     chan []byte
	session *chord.Session
	metrics *metrics.ChordMetrics
	closed  atomic.Bool
}

func newClient(conn *websocket.Conn, layout chord.Layout) *client {
	c := &client{
		conn:    conn,
		out:     make(chan []byte, sendBuffer),
		metrics: metrics.NewChordMetrics(layout.Name),
	}
	c.session = chord.NewSession(layout,
		chord.EmitterFunc(func(cell rune, mask uint8) error {
			c.metrics.RecordEmit()
			logging.ChordEmitted(layout.Name, cell, mask)
			c.send(glyphFrame(cell, mask))
			return nil
		}),
		chord.ForwarderFunc(func(ev chord.Event) error {
			c.send(Frame{Type: FramePassthrough, Key: ev.Key, Direction: ev.Dir.String()})
			return nil
		}),
	)
	return c
}

func (c *client) send(f Frame) {
	if c.closed.Load() {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		logging.Error("failed to marshal frame", "error", err)
		return
	}
	select {
	case c.out <- data:
	default:
		logging.Warn("client send buffer full, dropping frame", "type", f.Type)
	}
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.closed.Store(true)
		close(c.out)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	src := &frameSource{client: c}
	if err := chord.Run(ctx, src, c.session); err != nil && !isClose(err) {
		logging.Error("chord session ended", "error", err)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func isClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return err == context.Canceled
}
