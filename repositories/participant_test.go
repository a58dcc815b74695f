package repositories

import (
	"chat-presence/domain"
	"chat-presence/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipantRepository_Add_And_Lookup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewParticipantRepository(openDB(t), slog.Default())
	joinedAt := time.Now().UTC().Round(0)

	// Given alice is in rooms 1 and 12, bob in room 1
	req.NoError(repository.AddParticipant(ctx, 1, "alice", joinedAt))
	req.NoError(repository.AddParticipant(ctx, 12, "alice", joinedAt))
	req.NoError(repository.AddParticipant(ctx, 1, "bob", joinedAt))

	// Then both directions of the membership are visible
	rooms, err := repository.RoomsForUser(ctx, "alice")
	req.NoError(err)
	req.ElementsMatch([]domain.RoomID{1, 12}, rooms)

	users, err := repository.ParticipantsForRoom(ctx, 1)
	req.NoError(err)
	req.Equal([]domain.UserID{"alice", "bob"}, users)

	users, err = repository.ParticipantsForRoom(ctx, 12)
	req.NoError(err)
	req.Equal([]domain.UserID{"alice"}, users)

	ok, err := repository.IsParticipant(ctx, 12, "bob")
	req.NoError(err)
	req.False(ok)

	participant, err := repository.GetParticipant(ctx, 1, "bob")
	req.NoError(err)
	req.Equal(joinedAt, participant.JoinedAt)
	req.Nil(participant.LastReadAt)
}

func TestParticipantRepository_Add_Twice_Fails(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewParticipantRepository(openDB(t), slog.Default())

	req.NoError(repository.AddParticipant(ctx, 1, "alice", time.Now()))
	req.ErrorIs(repository.AddParticipant(ctx, 1, "alice", time.Now()), errors.ErrMembershipExists)
}

func TestParticipantRepository_Remove(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewParticipantRepository(openDB(t), slog.Default())
	req.NoError(repository.AddParticipant(ctx, 1, "alice", time.Now()))

	// When alice is removed from room 1
	req.NoError(repository.RemoveParticipant(ctx, 1, "alice"))

	// Then neither index knows about it anymore
	rooms, err := repository.RoomsForUser(ctx, "alice")
	req.NoError(err)
	req.Empty(rooms)
	ok, err := repository.IsParticipant(ctx, 1, "alice")
	req.NoError(err)
	req.False(ok)

	// And removing again reports the missing membership
	req.ErrorIs(repository.RemoveParticipant(ctx, 1, "alice"), errors.ErrMembershipMissing)
}

func TestParticipantRepository_MarkRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewParticipantRepository(openDB(t), slog.Default())
	req.NoError(repository.AddParticipant(ctx, 1, "alice", time.Now()))
	readAt := time.Now().UTC().Round(0)

	req.NoError(repository.MarkRead(ctx, 1, "alice", readAt))
	req.ErrorIs(repository.MarkRead(ctx, 1, "bob", readAt), errors.ErrNotParticipant)

	participants, err := repository.ListParticipants(ctx, 1)
	req.NoError(err)
	req.Len(participants, 1)
	req.NotNil(participants[0].LastReadAt)
	req.Equal(readAt, *participants[0].LastReadAt)
}

func TestParticipantRepository_Canceled_Context(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository(openDB(t), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repository.IsParticipant(ctx, 1, "alice")
	req.ErrorIs(err, context.Canceled)
}
