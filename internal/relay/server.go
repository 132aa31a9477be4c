package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/util"
)

const (
	writeWait       = 5 * time.Second
	maxFrameSize    = 64 * 1024
	shutdownTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewRouter exposes the hub over HTTP:
//
//	GET /signal          join the default room
//	GET /signal/{room}   join the named room
//	GET /healthz         liveness probe
func NewRouter(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if util.DebugEnabled() {
		r.Use(middleware.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/signal", serveSignal(hub))
	r.Get("/signal/{room}", serveSignal(hub))

	return r
}

func serveSignal(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		if room == "" {
			room = config.DefaultRoom
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warnf("upgrade failed: %v", err)
			return
		}

		p := newPeer(uuid.NewString(), room)
		if !hub.join(p) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
			conn.Close()
			return
		}

		go writePump(conn, p)
		readPump(hub, conn, p)
	}
}

// readPump forwards every text frame from conn until the client goes away.
func readPump(hub *Hub, conn *websocket.Conn, p *peer) {
	defer func() {
		hub.leave(p)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.log.Debugf("client %s: %v", p.id, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		hub.relay(p, data)
	}
}

// writePump drains the peer's queue onto conn. It closes conn once the hub
// drops the peer, which also ends readPump.
func writePump(conn *websocket.Conn, p *peer) {
	defer conn.Close()

	for data := range p.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// Server runs a Hub behind an HTTP listener.
type Server struct {
	cfg      config.RelayConfig
	hub      *Hub
	listener net.Listener
}

func NewServer(cfg config.RelayConfig) *Server {
	return &Server{cfg: cfg, hub: NewHub()}
}

// Listen binds the configured address and returns the bound address.
func (s *Server) Listen() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay: %w", err)
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Serve handles clients until ctx is cancelled, then shuts down gracefully.
// Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("relay: Serve called before Listen")
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           NewRouter(s.hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	util.LogInfo("Shutting down relay...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; stopping
	// the hub closes them.
	stopHub()
	<-s.hub.Done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay forced to shut down: %w", err)
	}
	return nil
}
