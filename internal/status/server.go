package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swiftwire/swiftwire/internal/receiver"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local observation endpoint
	},
}

const pushInterval = time.Second

// Snapshot is the JSON document served by the endpoint.
type Snapshot struct {
	TotalBytes int64                `json:"total_bytes"`
	Pending    bool                 `json:"transfer_pending"`
	Ports      []receiver.PortStats `json:"ports"`
}

// Server exposes a read-only live view of a running receiver over HTTP:
// GET /status returns one JSON snapshot, GET /ws pushes a snapshot every
// second until the client goes away.
type Server struct {
	recv   *receiver.Receiver
	logger *slog.Logger
	http   *http.Server
	ln     net.Listener
}

// New builds a status server observing recv.
func New(recv *receiver.Receiver, logger *slog.Logger) *Server {
	s := &Server{recv: recv, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	s.http = &http.Server{Handler: mux}
	return s
}

// Start begins serving on addr in a background goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("status endpoint listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server stopped", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the HTTP server down. Websocket connections that were already
// upgraded are not closed by it; each of their handlers keeps pushing until
// a write fails or the client goes away.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.http.Shutdown(ctx)
}

func (s *Server) snapshot() Snapshot {
	return Snapshot{
		TotalBytes: s.recv.TotalBytes(),
		Pending:    s.recv.HasPendingTransfer(),
		Ports:      s.recv.Snapshot(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.logger.Error("could not encode status", "err", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close handshakes are noticed.
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket client write failed", "err", err)
			}
			return
		}
		select {
		case <-readerGone:
			return
		case <-ticker.C:
		}
	}
}
