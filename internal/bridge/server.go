package bridge

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pcall/internal/util"
)

// Server accepts the hosting process's WebSocket connection.
// Only the first client is accepted; later ones are refused.
type Server struct {
	pin      string
	upgrader websocket.Upgrader
	router   chi.Router
	listener net.Listener
	httpSrv  *http.Server
	connCh   chan *websocket.Conn
}

// NewServer creates a server that requires ?pin=<pin> (when pin is not
// empty) and an Origin header from origins. With no origins configured, only
// same-host or absent Origin headers are accepted.
func NewServer(pin string, origins []string) *Server {
	s := &Server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin(origins)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)
	s.router = r

	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on addr (":0" picks a free port) and returns the
// bound address.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{Handler: s.router}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("bridge: WS server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}

// WaitForClient blocks until the host connects or ctx is cancelled.
func (s *Server) WaitForClient(ctx context.Context) (*WS, error) {
	select {
	case conn := <-s.connCh:
		return NewWS(conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting connections. An accepted WS stays open.
func (s *Server) Close() error {
	if s.httpSrv != nil {
		return s.httpSrv.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	// Upgrade replies 403 itself when CheckOrigin refuses.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("bridge: upgrade from %s refused: %v", r.RemoteAddr, err)
		return
	}

	// Only accept the first client.
	select {
	case s.connCh <- conn:
		util.LogInfo("bridge: host connected from %s", r.RemoteAddr)
	default:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
	}
}

// checkOrigin builds the upgrader's Origin policy.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
