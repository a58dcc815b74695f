package workers

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"context"
	"log/slog"
)

// PresenceWorker forwards presence changes to the listener, one at a time,
// so a user's online and offline announcements keep their order.
type PresenceWorker struct {
	log      *slog.Logger
	changes  <-chan domain.PresenceChange
	listener contract.PresenceListener
}

func NewPresenceWorker(log *slog.Logger, changes <-chan domain.PresenceChange, listener contract.PresenceListener) *PresenceWorker {
	return &PresenceWorker{log: log, changes: changes, listener: listener}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence announcements")
			return nil
		case change := <-w.changes:
			if change.Online {
				w.listener.UserOnline(ctx, change.User, change.Rooms)
			} else {
				w.listener.UserOffline(ctx, change.User, change.At)
			}
		}
	}
}
