package runtime

import (
	"chat-presence/contract"
	apperrors "chat-presence/errors"
	"context"
	"errors"
	"log/slog"
)

// Lifecycle drives one connection from registration to disconnection.
type Lifecycle struct {
	log         *slog.Logger
	registry    *Registry
	coordinator *Coordinator
	announcer   *Announcer
	handler     contract.InboundHandler
}

func NewLifecycle(
	log *slog.Logger,
	registry *Registry,
	coordinator *Coordinator,
	announcer *Announcer,
	handler contract.InboundHandler,
) *Lifecycle {
	return &Lifecycle{
		log:         log,
		registry:    registry,
		coordinator: coordinator,
		announcer:   announcer,
		handler:     handler,
	}
}

// Serve registers the connection, auto-joins its rooms and reads frames until the
// connection ends. Every exit path unregisters and closes the connection.
// Room Index entries are left as they are: broadcasts skip offline subscribers.
// A normal close or a canceled context returns nil.
func (l *Lifecycle) Serve(ctx context.Context, conn contract.Conn) error {
	user := conn.UserID()
	log := l.log.With("user_id", user, "conn_id", conn.ID())

	firstConnection := l.registry.Register(user, conn)
	defer disconnect(l.registry, l.announcer, conn)
	log.Debug("Connection registered", "first", firstConnection)

	rooms, err := l.coordinator.OnConnect(ctx, user)
	if err != nil {
		log.Warn("Auto-join deferred to broadcast-time repair", "error", err)
	}
	if firstConnection {
		l.announcer.Online(user, rooms)
	}

	for {
		payload, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, apperrors.ErrConnectionClosed) {
				log.Debug("Connection closed")
				return nil
			}
			log.Info("Connection terminated", "error", err)
			return err
		}
		l.handler.Handle(ctx, conn, payload)
	}
}

// disconnect unregisters and closes conn, announcing the user offline
// when it was their last connection. Safe to call more than once.
func disconnect(registry *Registry, announcer *Announcer, conn contract.Conn) {
	if registry.Unregister(conn.UserID(), conn) {
		lastSeen, _ := registry.LastSeen(conn.UserID())
		announcer.Offline(conn.UserID(), lastSeen)
	}
	_ = conn.Close()
}
