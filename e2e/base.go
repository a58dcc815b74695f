package e2e

import (
	"chat-presence/auth"
	"chat-presence/domain"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const frameTimeout = 5 * time.Second

type BaseSuite struct {
	suite.Suite
	Config Config
	tokens *auth.TokenManager
}

// Frame is the subset of an outgoing frame the scenarios assert on.
type Frame struct {
	Type           domain.FrameType     `json:"type"`
	ConversationID domain.RoomID        `json:"conversation_id"`
	Message        *domain.MessageView  `json:"message"`
	Messages       []domain.MessageView `json:"messages"`
	Data           json.RawMessage      `json:"data"`
}

// SetupSuite loads the environment configuration and skips when no server is targeted.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" || s.Config.JWTSecret == "" {
		s.T().Skip("CHAT_SERVER_ADDR and JWT_SECRET are required for e2e scenarios")
	}
	s.tokens = auth.NewTokenManager(s.Config.JWTSecret, time.Hour)
}

func (s *BaseSuite) step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseSuite) token(user string) string {
	token, err := s.tokens.GenerateToken(domain.UserID(user), nil)
	s.Require().NoError(err)
	return token
}

// Dial opens an authenticated socket for user, closed at the end of the test.
func (s *BaseSuite) Dial(name, user string) *websocket.Conn {
	s.step(name)
	endpoint := url.URL{Scheme: "ws", Host: s.Config.ServerAddr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(s.token(user))}
	conn, resp, err := websocket.DefaultDialer.Dial(endpoint.String(), nil)
	s.Require().NoError(err, "Failed to connect to "+s.Config.ServerAddr)
	s.Require().Equal(http.StatusSwitchingProtocols, resp.StatusCode)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

// Expect reads frames until one of the wanted type arrives.
func (s *BaseSuite) Expect(conn *websocket.Conn, want domain.FrameType) Frame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(frameTimeout)))
	for {
		_, payload, err := conn.ReadMessage()
		s.Require().NoError(err, "no %s frame received", want)
		if s.Config.DebugJSON {
			s.T().Logf("FRAME %s", payload)
		}
		var frame Frame
		s.Require().NoError(json.Unmarshal(payload, &frame))
		if frame.Type == want {
			return frame
		}
	}
}

// GetJSON calls an authenticated HTTP endpoint of the server.
func (s *BaseSuite) GetJSON(user, path string, out any) int {
	request, err := http.NewRequest(http.MethodGet, "http://"+s.Config.ServerAddr+path, nil)
	s.Require().NoError(err)
	request.Header.Set("Authorization", "Bearer "+s.token(user))
	resp, err := http.DefaultClient.Do(request)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// WithAdmin provides a health client of the gRPC admin server within a contextual test step.
func (s *BaseSuite) WithAdmin(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	if s.Config.AdminAddr == "" {
		s.T().Log("CHAT_ADMIN_ADDR not set, admin step skipped")
		return
	}
	s.step(name)
	conn, err := grpc.NewClient(s.Config.AdminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.AdminAddr)
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}
