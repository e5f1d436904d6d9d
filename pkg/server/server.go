// Package server exposes the event proxy over HTTP: a websocket endpoint
// for subscribers, a small control API for the session lifecycle, and the
// usual health and metrics surfaces.
package server

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/eventproxy/pkg/errors"
	"github.com/odvcencio/eventproxy/pkg/logging"
	"github.com/odvcencio/eventproxy/pkg/proxy"
)

// Server is the event proxy's HTTP front end.
type Server struct {
	engine     *proxy.Engine
	logger     *logging.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a server for the given engine, listening on addr.
func New(engine *proxy.Engine, addr string) *Server {
	s := &Server{
		engine: engine,
		logger: logging.NewLogger("server", slog.LevelInfo),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Get("/ws", s.handleWebSocket)
	router.Get("/healthz", s.handleHealthz)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/commands", s.handleCommand)
		r.Get("/subscribers", s.handleListSubscribers)
	})

	return router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// handleWebSocket upgrades the connection and registers it as an event
// subscriber. The subscriber starts receiving frames immediately; there is
// no handshake beyond the upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	transport := newWSTransport(conn, r.RemoteAddr)
	sub := s.engine.Registry().Add(transport)
	s.logger.WithSubscriber(sub.ID).Info("websocket subscriber connected",
		slog.String("remote_addr", r.RemoteAddr),
	)

	go transport.readPump()
	go transport.pingPump()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	conn := s.engine.Connection()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"state":       string(conn.State()),
		"sessionId":   conn.SessionID(),
		"subscribers": s.engine.Registry().Count(),
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     string(s.engine.Connection().State()),
		"sessionId": s.engine.Connection().SessionID(),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "client_request"
	}
	s.engine.Disconnect(r.Context(), req.Reason)
	writeJSON(w, http.StatusOK, map[string]any{
		"state": string(s.engine.Connection().State()),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "decoding command request"))
		return
	}
	if req.Method == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "method is required"))
		return
	}

	var params any
	if len(req.Params) > 0 {
		params = req.Params
	}
	result, err := s.engine.SendCommand(r.Context(), req.Method, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
	})
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs := s.engine.Registry().List()
	out := make([]map[string]any, 0, len(subs))
	for _, sub := range subs {
		out = append(out, map[string]any{
			"id":           sub.ID,
			"remoteAddr":   sub.Transport.RemoteAddr(),
			"createdAt":    sub.CreatedAt.UnixMilli(),
			"lastActiveAt": sub.LastActiveAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscribers": out,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.StatusOf(err) == errors.StatusClient {
		status = http.StatusBadRequest
	}
	if errors.IsCode(err, errors.ErrCodeNotConnected) {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  string(errors.GetCode(err)),
	})
}
