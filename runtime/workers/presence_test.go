package workers

import (
	"chat-presence/domain"
	"chat-presence/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPresenceWorker_Forwards_Changes_In_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	listener := mocks.NewMockPresenceListener(ctrl)
	changes := make(chan domain.PresenceChange, 2)
	lastSeen := time.Now().UTC()
	done := make(chan struct{})

	// Given alice comes online then goes offline
	changes <- domain.PresenceChange{User: "alice", Online: true, Rooms: []domain.RoomID{3}}
	changes <- domain.PresenceChange{User: "alice", Online: false, At: lastSeen}

	// Then the listener sees both announcements in that order
	gomock.InOrder(
		listener.EXPECT().UserOnline(gomock.Any(), domain.UserID("alice"), []domain.RoomID{3}),
		listener.EXPECT().UserOffline(gomock.Any(), domain.UserID("alice"), lastSeen).
			Do(func(context.Context, domain.UserID, time.Time) { close(done) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := NewPresenceWorker(slog.Default(), changes, listener)
	result := make(chan error, 1)
	go func() { result <- worker.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("offline change was not forwarded")
	}

	// When the context is canceled the worker stops cleanly
	cancel()
	req.NoError(<-result)
}
