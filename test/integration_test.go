package test

import (
	"chat-presence/auth"
	"chat-presence/domain"
	apperrors "chat-presence/errors"
	wsserver "chat-presence/infrastructure/websocket"
	"chat-presence/moderation"
	"chat-presence/observability"
	"chat-presence/repositories"
	"chat-presence/runtime"
	"chat-presence/runtime/workers"
	"chat-presence/services"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type           domain.FrameType     `json:"type"`
	ConversationID domain.RoomID        `json:"conversation_id"`
	Message        *domain.MessageView  `json:"message"`
	Messages       []domain.MessageView `json:"messages"`
	Data           json.RawMessage      `json:"data"`
}

type stack struct {
	tokens       *auth.TokenManager
	participants repositories.ParticipantRepository
	metrics      *observability.Metrics
	url          string
}

// newStack wires the production components over a real listener.
// Room 1 holds alice and bob, carol belongs to room 2 only.
func newStack(t *testing.T) *stack {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	participants := repositories.NewParticipantRepository(db, log)
	req.NoError(participants.AddParticipant(ctx, 1, "alice", time.Now()))
	req.NoError(participants.AddParticipant(ctx, 1, "bob", time.Now()))
	req.NoError(participants.AddParticipant(ctx, 2, "carol", time.Now()))
	messages := repositories.NewMessageRepository(db, log, lo.ToPtr(50))
	moderator, err := moderation.NewModerator([]string{"idiot"}, '*', log)
	req.NoError(err)
	metrics := observability.NewMetrics()

	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 50*time.Millisecond), participants,
		runtime.Settings{
			DeliveryTimeout:    time.Second,
			LookupTimeout:      time.Second,
			PresenceBufferSize: 64,
			MetricInterval:     50 * time.Millisecond,
		})
	orchestrator.Broadcaster().WithObserver(metrics.ObserveBroadcast)
	chatService := services.NewChatService(log, orchestrator.Broadcaster(), orchestrator.Coordinator(),
		messages, moderator, 200, time.Second)
	done := make(chan struct{})
	go func() {
		orchestrator.Start(ctx, chatService, metrics)
		close(done)
	}()
	t.Cleanup(func() {
		orchestrator.Stop()
		<-done
	})

	tokens := auth.NewTokenManager("integration-secret", time.Hour)
	server := wsserver.NewServer(log, tokens, orchestrator, chatService, wsserver.Settings{
		ConnectionBufferSize: 32,
		WriteWait:            time.Second,
		PongWait:             10 * time.Second,
		MaxFrameSize:         4096,
	})
	httpServer := httptest.NewUnstartedServer(wsserver.NewRouter(server, metrics.Handler()))
	httpServer.Config.BaseContext = func(_ net.Listener) context.Context { return ctx }
	httpServer.Start()
	t.Cleanup(httpServer.Close)

	return &stack{tokens: tokens, participants: participants, metrics: metrics, url: httpServer.URL}
}

func (s *stack) connect(t *testing.T, user domain.UserID) *websocket.Conn {
	t.Helper()
	token, err := s.tokens.GenerateToken(user, nil)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.url, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, in domain.Incoming) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
}

// expect skips unrelated frames until one of the wanted type arrives.
func expect(t *testing.T, conn *websocket.Conn, want domain.FrameType) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", want)
		var f frame
		require.NoError(t, json.Unmarshal(payload, &f))
		if f.Type == want {
			return f
		}
	}
}

func status(t *testing.T, f frame) domain.StatusData {
	var data domain.StatusData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	return data
}

func Test_Scenario(t *testing.T) {
	req := require.New(t)
	s := newStack(t)

	// Given alice online, bob coming online is announced to her
	alice := s.connect(t, "alice")
	bob := s.connect(t, "bob")
	online := status(t, expect(t, alice, domain.FrameUserOnline))
	req.Equal(domain.UserID("bob"), online.UserID)
	req.True(online.IsOnline)

	// When alice posts in room 1
	send(t, alice, domain.Incoming{Type: domain.FrameMessage, ConversationID: 1, Content: "  you idiot  "})

	// Then both participants receive the censored message
	received := expect(t, bob, domain.FrameMessage)
	req.Equal(domain.RoomID(1), received.ConversationID)
	req.Equal("you *****", received.Message.Content)
	req.Equal(domain.UserID("alice"), received.Message.SenderID)
	req.Equal(received.Message.ID, expect(t, alice, domain.FrameMessage).Message.ID)

	// And the message is in the history
	send(t, bob, domain.Incoming{Type: domain.FrameHistory, ConversationID: 1})
	history := expect(t, bob, domain.FrameHistory)
	req.Len(history.Messages, 1)
	req.Equal("you *****", history.Messages[0].Content)

	// When bob leaves, alice is told he went offline
	req.NoError(bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	offline := status(t, expect(t, alice, domain.FrameUserOffline))
	req.Equal(domain.UserID("bob"), offline.UserID)
	req.False(offline.IsOnline)
	req.False(offline.LastSeen.IsZero())
}

func Test_Scenario_Membership_Changes(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.connect(t, "alice")
	carol := s.connect(t, "carol")

	// Given carol is not a participant of room 1, her message is refused
	send(t, carol, domain.Incoming{Type: domain.FrameMessage, ConversationID: 1, Content: "hello"})
	var refusal domain.ErrorData
	req.NoError(json.Unmarshal(expect(t, carol, domain.FrameError).Data, &refusal))
	req.Equal(apperrors.CodeSendMessage, refusal.Code)
	req.Equal(apperrors.ErrNotParticipant.Error(), refusal.Message)

	// When she is added while online and joins the room
	req.NoError(s.participants.AddParticipant(context.Background(), 1, "carol", time.Now()))
	send(t, carol, domain.Incoming{Type: domain.FrameJoin, ConversationID: 1})
	// Frames of one connection are handled in order, so the pong proves the join was applied
	send(t, carol, domain.Incoming{Type: domain.FramePing})
	expect(t, carol, domain.FramePong)

	// Then messages of room 1 reach her
	send(t, alice, domain.Incoming{Type: domain.FrameMessage, ConversationID: 1, Content: "welcome"})
	req.Equal("welcome", expect(t, carol, domain.FrameMessage).Message.Content)

	// When she is removed, she may get one more delivery before being evicted
	req.NoError(s.participants.RemoveParticipant(context.Background(), 1, "carol"))
	send(t, alice, domain.Incoming{Type: domain.FrameMessage, ConversationID: 1, Content: "bye"})
	expect(t, alice, domain.FrameMessage)

	// And posting there is refused again
	send(t, carol, domain.Incoming{Type: domain.FrameMessage, ConversationID: 1, Content: "still here?"})
	req.NoError(json.Unmarshal(expect(t, carol, domain.FrameError).Data, &refusal))
	req.Equal(apperrors.ErrNotParticipant.Error(), refusal.Message)
}

func Test_Scenario_Metrics_Exposed(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	s.connect(t, "alice")

	// The telemetry worker publishes presence gauges on the metrics endpoint
	req.Eventually(func() bool {
		resp, err := http.Get(s.url + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body strings.Builder
		_, _ = io.Copy(&body, resp.Body)
		return strings.Contains(body.String(), "chat_presence_online_users 1")
	}, 2*time.Second, 50*time.Millisecond)
}
