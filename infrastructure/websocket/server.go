package websocket

import (
	"chat-presence/auth"
	"chat-presence/contract"
	"chat-presence/domain"
	apperrors "chat-presence/errors"
	"chat-presence/runtime"
	"chat-presence/sink"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Settings struct {
	ConnectionBufferSize int
	WriteWait            time.Duration
	PongWait             time.Duration
	MaxFrameSize         int64
}

// Server authenticates WebSocket handshakes and hands each upgraded socket to the lifecycle.
// It also answers the small presence HTTP API.
type Server struct {
	log          *slog.Logger
	tokens       *auth.TokenManager
	orchestrator *runtime.Orchestrator
	lifecycle    *runtime.Lifecycle
	upgrader     ws.Upgrader
	settings     Settings
	// sessions tracks upgraded sockets, which http.Server.Shutdown does not wait for.
	sessions sync.WaitGroup
}

func NewServer(
	log *slog.Logger,
	tokens *auth.TokenManager,
	orchestrator *runtime.Orchestrator,
	handler contract.InboundHandler,
	settings Settings,
) *Server {
	return &Server{
		log:          log,
		tokens:       tokens,
		orchestrator: orchestrator,
		lifecycle:    orchestrator.Lifecycle(handler),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin is accepted, the handshake is authenticated by token.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		settings: settings,
	}
}

// NewRouter mounts the socket endpoint, the presence API and the operational endpoints.
func NewRouter(s *Server, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws", s.ServeWS).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	api.Use(s.tokens.Middleware)
	api.HandleFunc("/rooms/{id:[0-9]+}/online", s.RoomOnline).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/presence", s.UserPresence).Methods(http.MethodGet)
	return router
}

// ServeWS authenticates before upgrading, then blocks for the lifetime of the connection.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.UserFromRequest(r)
	if err != nil {
		s.log.Debug("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Warn("Websocket upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	user := domain.UserID(claims.UserID)
	socket := sink.NewWebSocketSink(conn, user, s.log, s.settings.ConnectionBufferSize,
		s.settings.WriteWait, s.settings.PongWait, s.settings.MaxFrameSize)
	s.log.Info("Client connected", "user_id", user, "conn_id", socket.ID(), "remote", r.RemoteAddr)

	if err := s.lifecycle.Serve(r.Context(), socket); err != nil {
		s.log.Info("Client connection ended with error", "user_id", user, "conn_id", socket.ID(), "error", err)
		return
	}
	s.log.Info("Client disconnected", "user_id", user, "conn_id", socket.ID())
}

// Drain waits for every upgraded socket to be released, or for ctx to end.
// Sockets end on their own once the context they were served with is canceled.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	users, connections := s.orchestrator.Registry().Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"users":       users,
		"connections": connections,
	})
}

type roomOnlineResponse struct {
	ConversationID domain.RoomID   `json:"conversation_id"`
	Online         []domain.UserID `json:"online"`
}

// RoomOnline lists the participants of a room that currently hold a connection.
// Only participants of the room may ask.
func (s *Server) RoomOnline(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	room := domain.RoomID(id)

	participants, err := s.orchestrator.Coordinator().ParticipantsOf(r.Context(), room)
	if err != nil {
		s.log.Warn("Online lookup failed", "room_id", room, "error", err)
		http.Error(w, "participants unavailable", http.StatusServiceUnavailable)
		return
	}
	if !lo.Contains(participants, caller) {
		http.Error(w, apperrors.ErrNotParticipant.Error(), http.StatusForbidden)
		return
	}

	registry := s.orchestrator.Registry()
	writeJSON(w, http.StatusOK, roomOnlineResponse{
		ConversationID: room,
		Online:         lo.Filter(participants, func(u domain.UserID, _ int) bool { return registry.IsOnline(u) }),
	})
}

type presenceResponse struct {
	UserID      domain.UserID `json:"user_id"`
	IsOnline    bool          `json:"is_online"`
	Connections int           `json:"connections"`
	LastSeen    *time.Time    `json:"last_seen,omitempty"`
}

func (s *Server) UserPresence(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(mux.Vars(r)["id"])
	registry := s.orchestrator.Registry()
	resp := presenceResponse{
		UserID:      user,
		IsOnline:    registry.IsOnline(user),
		Connections: len(registry.ConnectionsOf(user)),
	}
	if lastSeen, ok := registry.LastSeen(user); ok && !resp.IsOnline {
		resp.LastSeen = &lastSeen
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
