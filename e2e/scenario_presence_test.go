package e2e

import (
	"chat-presence/domain"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type presenceSuite struct {
	BaseSuite
}

func TestPresenceSuite(t *testing.T) {
	suite.Run(t, &presenceSuite{})
}

func (s *presenceSuite) TestRoomConversationFlow() {
	room := domain.RoomID(s.Config.RoomID)
	first := s.Config.FirstUser
	second := s.Config.SecondUser

	s.WithAdmin("Admin server is serving", func(ctx context.Context, client healthpb.HealthClient) {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		s.Require().NoError(err)
		s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	})

	firstConn := s.Dial("First user connects", first)

	s.Run("Second user comes online and is announced", func() {
		secondConn := s.Dial("Second user connects", second)
		frame := s.Expect(firstConn, domain.FrameUserOnline)
		var status domain.StatusData
		s.Require().NoError(json.Unmarshal(frame.Data, &status))
		s.Require().Equal(domain.UserID(second), status.UserID)
		s.Require().True(status.IsOnline)

		var online struct {
			Online []domain.UserID `json:"online"`
		}
		s.Require().Equal(http.StatusOK, s.GetJSON(first, fmt.Sprintf("/rooms/%d/online", room), &online))
		s.Require().Contains(online.Online, domain.UserID(second))

		content := "e2e " + uuid.NewString()
		s.Require().NoError(firstConn.WriteJSON(domain.Incoming{Type: domain.FrameMessage, ConversationID: room, Content: content}))
		received := s.Expect(secondConn, domain.FrameMessage)
		s.Require().Equal(room, received.ConversationID)
		s.Require().Equal(content, received.Message.Content)
		echoed := s.Expect(firstConn, domain.FrameMessage)
		s.Require().Equal(received.Message.ID, echoed.Message.ID)

		s.Require().NoError(secondConn.WriteJSON(domain.Incoming{Type: domain.FrameHistory, ConversationID: room}))
		history := s.Expect(secondConn, domain.FrameHistory)
		s.Require().NotEmpty(history.Messages)
		s.Require().Equal(content, history.Messages[0].Content)

		s.Require().NoError(secondConn.Close())
	})

	s.Run("Second user leaves and goes offline", func() {
		frame := s.Expect(firstConn, domain.FrameUserOffline)
		var status domain.StatusData
		s.Require().NoError(json.Unmarshal(frame.Data, &status))
		s.Require().Equal(domain.UserID(second), status.UserID)
		s.Require().False(status.IsOnline)
	})

	s.Run("Ping is answered", func() {
		s.Require().NoError(firstConn.WriteJSON(domain.Incoming{Type: domain.FramePing}))
		s.Expect(firstConn, domain.FramePong)
	})
}
