package runtime

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/mocks"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLifecycle_Serve_Registers_Handles_And_Unregisters(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockInboundHandler(ctrl)
	f := newPresenceFixture()
	f.store.add(3, "alice")
	lifecycle := NewLifecycle(f.log, f.registry, f.coordinator, f.announcer, handler)
	conn := newFakeConn("alice")
	handled := make(chan struct{})

	// Then each inbound frame reaches the handler
	handler.EXPECT().Handle(gomock.Any(), conn, []byte("frame")).
		Do(func(context.Context, contract.Conn, []byte) { close(handled) })

	// When alice connects and sends a frame
	result := make(chan error, 1)
	go func() { result <- lifecycle.Serve(context.Background(), conn) }()
	conn.inbound <- []byte("frame")
	<-handled

	// Then she is online, auto-joined and announced
	req.True(f.registry.IsOnline("alice"))
	req.True(f.index.IsSubscribed(3, "alice"))
	online := <-f.announcer.Events()
	req.True(online.Online)
	req.Equal([]domain.RoomID{3}, online.Rooms)

	// When the connection closes
	_ = conn.Close()
	req.NoError(<-result)

	// Then she is offline, announced, and the index entry is kept
	req.False(f.registry.IsOnline("alice"))
	offline := <-f.announcer.Events()
	req.False(offline.Online)
	req.Equal(domain.UserID("alice"), offline.User)
	req.True(f.index.IsSubscribed(3, "alice"))
}

func TestLifecycle_Second_Device_Is_Not_Announced(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockInboundHandler(ctrl)
	f := newPresenceFixture()
	lifecycle := NewLifecycle(f.log, f.registry, f.coordinator, f.announcer, handler)
	phone := newFakeConn("alice")
	laptop := newFakeConn("alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	phoneDone := make(chan error, 1)
	laptopDone := make(chan error, 1)

	// Given alice is connected from her phone
	go func() { phoneDone <- lifecycle.Serve(ctx, phone) }()
	req.True((<-f.announcer.Events()).Online)

	// When she also connects from her laptop then closes the phone
	go func() { laptopDone <- lifecycle.Serve(ctx, laptop) }()
	req.Eventually(func() bool { return len(f.registry.ConnectionsOf("alice")) == 2 }, time.Second, 5*time.Millisecond)
	_ = phone.Close()
	req.NoError(<-phoneDone)

	// Then no presence change was announced
	req.True(f.registry.IsOnline("alice"))
	req.Zero(f.announcer.Len())

	// When the laptop closes too, alice goes offline once
	_ = laptop.Close()
	req.NoError(<-laptopDone)
	req.False((<-f.announcer.Events()).Online)
	req.Zero(f.announcer.Len())
}

func TestLifecycle_Store_Failure_Does_Not_Reject_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockInboundHandler(ctrl)
	f := newPresenceFixture()
	f.store.fail(errors.New("store unavailable"))
	lifecycle := NewLifecycle(f.log, f.registry, f.coordinator, f.announcer, handler)
	conn := newFakeConn("alice")
	ctx, cancel := context.WithCancel(context.Background())

	// When alice connects while the store is down
	result := make(chan error, 1)
	go func() { result <- lifecycle.Serve(ctx, conn) }()

	// Then she is still online, without rooms
	change := <-f.announcer.Events()
	req.True(change.Online)
	req.Empty(change.Rooms)
	req.True(f.registry.IsOnline("alice"))

	// When the server shuts down the connection is released
	cancel()
	req.NoError(<-result)
	req.False(f.registry.IsOnline("alice"))
	req.True(conn.isClosed())
}

func TestLifecycle_Pruned_Connection_Announces_Offline_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockInboundHandler(ctrl)
	f := newPresenceFixture()
	f.store.add(1, "alice", "bob")
	lifecycle := NewLifecycle(f.log, f.registry, f.coordinator, f.announcer, handler)
	bob := newFakeConn("bob")
	bob.failSend = true
	f.connect("alice")

	result := make(chan error, 1)
	go func() { result <- lifecycle.Serve(context.Background(), bob) }()
	req.True((<-f.announcer.Events()).Online)

	// When a broadcast prunes bob's connection
	f.broadcaster.Broadcast(context.Background(), 1, []byte("hi"))

	// Then the serve loop ends and bob is announced offline exactly once
	req.NoError(<-result)
	req.False((<-f.announcer.Events()).Online)
	req.Zero(f.announcer.Len())
}
