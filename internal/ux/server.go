package ux

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vitaliisemenov/chainboot/internal/metrics"
	"github.com/vitaliisemenov/chainboot/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSubscriber adapts a websocket connection to EventSubscriber.
type wsSubscriber struct {
	baseSubscriber

	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

func newWSSubscriber(ctx context.Context, conn *websocket.Conn, id string, logger *slog.Logger) *wsSubscriber {
	return &wsSubscriber{
		baseSubscriber: baseSubscriber{id: id, ctx: ctx},
		conn:           conn,
		logger:         logger,
	}
}

func (s *wsSubscriber) Send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(event)
}

func (s *wsSubscriber) Close() error {
	return s.conn.Close()
}

// Server exposes the engine's progress over HTTP: a health endpoint and a
// websocket stream that mirrors the UX event bus to any attached dashboard.
type Server struct {
	addr     string
	bundleID string
	bus      EventBus
	logger   *slog.Logger
	router   *mux.Router
	http     *http.Server
	metrics  *metrics.DashboardMetrics

	mu      sync.Mutex
	counter int
}

// NewServer builds a dashboard server bound to addr, broadcasting events
// published on bus for the given bundle run.
func NewServer(addr string, bundleID string, bus EventBus, log *slog.Logger) *Server {
	s := &Server{
		addr:     addr,
		bundleID: bundleID,
		bus:      bus,
		logger:   log.With("component", "ux_server"),
		router:   mux.NewRouter(),
		metrics:  metrics.NewDashboardMetrics(),
	}
	s.router.Use(logger.LoggingMiddleware(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS)
	s.router.Handle("/metrics", s.metrics.Handler())
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"subscribers": s.bus.GetActiveSubscribers(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithBundleID(r.Context(), s.bundleID)
	connLogger := logger.FromContext(ctx, s.logger)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		connLogger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.counter++
	id := "ws-" + time.Now().Format("150405.000000")
	s.mu.Unlock()

	sub := newWSSubscriber(ctx, conn, id, connLogger)
	if err := s.bus.Subscribe(sub); err != nil {
		conn.Close()
		return
	}

	// Drain inbound frames (pings, close) until the client disconnects;
	// the dashboard is read-only so no inbound application messages are
	// expected.
	go func() {
		defer s.bus.Unsubscribe(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ux server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
