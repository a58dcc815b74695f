package main

import (
	"bufio"
	"chat-presence/auth"
	"chat-presence/domain"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string        `envconfig:"CHAT_SERVER_ADDR" default:"localhost:8080"`
	RoomID        int           `envconfig:"CHAT_ROOM_ID" default:"1"`
	UserID        string        `envconfig:"CHAT_USER_ID" required:"true"`
	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	TokenDuration time.Duration `envconfig:"AUTH_TOKEN_DURATION" default:"1h"`
	Colours       bool          `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run mints a token, connects and relays stdin lines to the room until Ctrl+C.
// Lines starting with "/" are commands: /join N, /leave N, /room N, /history, /typing, /read, /ping.
func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	token, err := auth.NewTokenManager(config.JWTSecret, config.TokenDuration).
		GenerateToken(domain.UserID(config.UserID), nil)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint := url.URL{Scheme: "ws", Host: config.ServerAddress, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerAddress, err)
	}
	defer func() {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	color.Greenf(">>> Connected to %s as %s, room %d (Ctrl+C to quit)\n", config.ServerAddress, config.UserID, config.RoomID)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			printFrame(payload)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	room := domain.RoomID(config.RoomID)
	for {
		select {
		case <-ctx.Done():
			color.Yellowln("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			frame, next := parseLine(strings.TrimSpace(line), room)
			room = next
			if frame == nil {
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

// parseLine turns a typed line into a frame. It also returns the room used for the next lines.
func parseLine(line string, room domain.RoomID) (*domain.Incoming, domain.RoomID) {
	if line == "" {
		return nil, room
	}
	if !strings.HasPrefix(line, "/") {
		return &domain.Incoming{Type: domain.FrameMessage, ConversationID: room, Content: line}, room
	}

	fields := strings.Fields(line)
	target := room
	if len(fields) > 1 {
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			color.Redf("invalid room %q\n", fields[1])
			return nil, room
		}
		target = domain.RoomID(id)
	}
	switch fields[0] {
	case "/room":
		color.Cyanf("now talking in room %d\n", target)
		return nil, target
	case "/join":
		return &domain.Incoming{Type: domain.FrameJoin, ConversationID: target}, room
	case "/leave":
		return &domain.Incoming{Type: domain.FrameLeave, ConversationID: target}, room
	case "/history":
		return &domain.Incoming{Type: domain.FrameHistory, ConversationID: target}, room
	case "/typing":
		return &domain.Incoming{Type: domain.FrameTyping, ConversationID: target}, room
	case "/read":
		return &domain.Incoming{Type: domain.FrameReadReceipt, ConversationID: target}, room
	case "/ping":
		return &domain.Incoming{Type: domain.FramePing}, room
	default:
		color.Redf("unknown command %s\n", fields[0])
		return nil, room
	}
}

func printFrame(payload []byte) {
	var frame struct {
		Type           domain.FrameType     `json:"type"`
		ConversationID domain.RoomID        `json:"conversation_id"`
		Message        *domain.MessageView  `json:"message"`
		Messages       []domain.MessageView `json:"messages"`
		Data           json.RawMessage      `json:"data"`
		Timestamp      time.Time            `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		color.Redf("unreadable frame: %s\n", payload)
		return
	}
	at := frame.Timestamp.Local().Format(time.TimeOnly)

	switch frame.Type {
	case domain.FrameMessage:
		if frame.Message != nil {
			fmt.Printf("[%s] #%d %s: %s\n", at, frame.ConversationID,
				color.Cyan.Render(frame.Message.SenderID), frame.Message.Content)
		}
	case domain.FrameHistory:
		color.Magentaf("[%s] history of room %d\n", at, frame.ConversationID)
		for i := len(frame.Messages) - 1; i >= 0; i-- {
			m := frame.Messages[i]
			fmt.Printf("  %s %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
		}
	case domain.FrameUserOnline, domain.FrameUserOffline:
		var status domain.StatusData
		_ = json.Unmarshal(frame.Data, &status)
		if status.IsOnline {
			color.Greenf("[%s] %s is online\n", at, status.UserID)
		} else {
			color.Gray.Printf("[%s] %s went offline\n", at, status.UserID)
		}
	case domain.FrameTyping:
		var typing domain.TypingData
		_ = json.Unmarshal(frame.Data, &typing)
		if typing.IsTyping {
			color.Gray.Printf("[%s] %s is typing in #%d\n", at, typing.UserID, frame.ConversationID)
		}
	case domain.FrameError:
		var e domain.ErrorData
		_ = json.Unmarshal(frame.Data, &e)
		color.Redf("[%s] %s: %s\n", at, e.Code, e.Message)
	default:
		color.Gray.Printf("[%s] %s %s\n", at, frame.Type, frame.Data)
	}
}
