package services

import (
	"chat-presence/contract"
	"chat-presence/domain"
	apperrors "chat-presence/errors"
	"chat-presence/moderation"
	"chat-presence/repositories"
	"chat-presence/runtime"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ChatService applies the chat rules on top of the presence runtime.
// It handles every inbound frame and turns presence changes into status frames.
type ChatService struct {
	log              *slog.Logger
	broadcaster      *runtime.Broadcaster
	coordinator      *runtime.Coordinator
	messages         repositories.IMessageRepository
	moderator        *moderation.Moderator
	validate         *validator.Validate
	maxContentLength int
	replyTimeout     time.Duration
}

func NewChatService(
	log *slog.Logger,
	broadcaster *runtime.Broadcaster,
	coordinator *runtime.Coordinator,
	messages repositories.IMessageRepository,
	moderator *moderation.Moderator,
	maxContentLength int,
	replyTimeout time.Duration,
) *ChatService {
	return &ChatService{
		log:              log,
		broadcaster:      broadcaster,
		coordinator:      coordinator,
		messages:         messages,
		moderator:        moderator,
		validate:         validator.New(),
		maxContentLength: maxContentLength,
		replyTimeout:     replyTimeout,
	}
}

// Handle decodes one client frame and dispatches it by type.
// Problems are reported to the sending connection as error frames, never returned.
func (s *ChatService) Handle(ctx context.Context, conn contract.Conn, payload []byte) {
	var in domain.Incoming
	if err := json.Unmarshal(payload, &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			s.replyError(ctx, conn, fmt.Sprintf("invalid message format: field %s", typeErr.Field), apperrors.CodeInvalidFormat)
			return
		}
		s.replyError(ctx, conn, "invalid JSON format", apperrors.CodeInvalidJSON)
		return
	}
	if err := s.validate.Struct(in); err != nil {
		message, code := describeValidation(err)
		s.replyError(ctx, conn, message, code)
		return
	}

	user := conn.UserID()
	switch in.Type {
	case domain.FrameMessage:
		if err := s.postMessage(ctx, user, in); err != nil {
			s.log.Debug("Message rejected", "user_id", user, "room_id", in.ConversationID, "error", err)
			s.replyError(ctx, conn, apperrors.ToClientMessage(err), apperrors.CodeSendMessage)
		}
	case domain.FrameTyping:
		if err := s.typing(ctx, user, in); err != nil {
			s.log.Warn("Typing indicator dropped", "user_id", user, "room_id", in.ConversationID, "error", err)
		}
	case domain.FrameReadReceipt:
		if err := s.readReceipt(ctx, user, in.ConversationID); err != nil {
			s.replyError(ctx, conn, apperrors.ToClientMessage(err), apperrors.CodeReadReceipt)
		}
	case domain.FramePing:
		s.reply(ctx, conn, domain.Outgoing{Type: domain.FramePong})
	case domain.FrameJoin:
		if err := s.coordinator.Join(ctx, in.ConversationID, user); err != nil {
			s.replyError(ctx, conn, apperrors.ToClientMessage(err), apperrors.CodeJoin)
		}
	case domain.FrameLeave:
		// Advisory: the next broadcast to the room re-subscribes an online participant.
		// Membership only ends in the participant store.
		s.coordinator.Leave(in.ConversationID, user)
	case domain.FrameHistory:
		frame, err := s.history(ctx, user, in)
		if err != nil {
			s.replyError(ctx, conn, apperrors.ToClientMessage(err), apperrors.CodeHistory)
			return
		}
		s.reply(ctx, conn, frame)
	default:
		s.replyError(ctx, conn, fmt.Sprintf("unsupported message type: %s", in.Type), apperrors.CodeUnsupportedType)
	}
}

// postMessage censors, tags, persists then broadcasts a message to its room.
// The sender gets its own copy, which gives every device the same ordering.
func (s *ChatService) postMessage(ctx context.Context, user domain.UserID, in domain.Incoming) error {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return apperrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return fmt.Errorf("%w: %d characters allowed", apperrors.ErrContentTooLong, s.maxContentLength)
	}
	if err := s.requireParticipant(ctx, in.ConversationID, user); err != nil {
		return err
	}

	sanitized, censored := s.moderator.Censor(content)
	msg := domain.Message{
		ID:            uuid.New(),
		Room:          in.ConversationID,
		SenderID:      user,
		Content:       sanitized,
		Type:          lo.Ternary(in.MessageType == "", domain.MessageText, in.MessageType),
		Lang:          detectLang(content),
		CensoredWords: censored,
		CreatedAt:     time.Now().UTC(),
	}
	if len(censored) > 0 {
		s.log.Info("Message censored", "user_id", user, "room_id", msg.Room, "words", censored)
	}

	if err := s.messages.StoreMessage(toDiskMessage(msg)); err != nil {
		return fmt.Errorf("storing message: %w", err)
	}

	payload, err := domain.Outgoing{
		Type:           domain.FrameMessage,
		ConversationID: msg.Room,
		Message:        lo.ToPtr(domain.ToMessageView(msg)),
		Timestamp:      msg.CreatedAt,
	}.Encode()
	if err != nil {
		return err
	}
	report := s.broadcaster.Broadcast(ctx, msg.Room, payload)
	s.log.Debug("Message broadcast", "room_id", msg.Room, "outcome", report.Outcome,
		"attempted", report.Attempted, "failed", report.Failed)
	return nil
}

// typing relays an indicator to the rest of the room. Non participants are ignored.
// Content "false" means the user stopped typing.
func (s *ChatService) typing(ctx context.Context, user domain.UserID, in domain.Incoming) error {
	ok, err := s.coordinator.IsParticipant(ctx, in.ConversationID, user)
	if err != nil || !ok {
		return err
	}
	payload, err := domain.Outgoing{
		Type:           domain.FrameTyping,
		ConversationID: in.ConversationID,
		Data:           domain.TypingData{UserID: user, IsTyping: in.Content != "false"},
	}.Encode()
	if err != nil {
		return err
	}
	s.broadcaster.Broadcast(ctx, in.ConversationID, payload, runtime.ExcludeUser(user))
	return nil
}

func (s *ChatService) readReceipt(ctx context.Context, user domain.UserID, room domain.RoomID) error {
	readAt := time.Now().UTC()
	if err := s.coordinator.MarkRead(ctx, room, user, readAt); err != nil {
		return err
	}
	payload, err := domain.Outgoing{
		Type:           domain.FrameReadReceipt,
		ConversationID: room,
		Data:           domain.ReadReceiptData{UserID: user, ReadAt: readAt},
	}.Encode()
	if err != nil {
		return err
	}
	s.broadcaster.Broadcast(ctx, room, payload, runtime.ExcludeUser(user))
	return nil
}

func (s *ChatService) history(ctx context.Context, user domain.UserID, in domain.Incoming) (domain.Outgoing, error) {
	if err := s.requireParticipant(ctx, in.ConversationID, user); err != nil {
		return domain.Outgoing{}, err
	}
	stored, cursor, err := s.messages.GetMessages(in.ConversationID, in.Cursor)
	if err != nil {
		return domain.Outgoing{}, err
	}
	views := lo.Map(stored, func(dm repositories.DiskMessage, _ int) domain.MessageView {
		return domain.ToMessageView(toMessage(dm))
	})
	return domain.Outgoing{
		Type:           domain.FrameHistory,
		ConversationID: in.ConversationID,
		Messages:       views,
		Cursor:         cursor,
	}, nil
}

func (s *ChatService) requireParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	ok, err := s.coordinator.IsParticipant(ctx, room, user)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrParticipantLookup, err)
	}
	if !ok {
		return apperrors.ErrNotParticipant
	}
	return nil
}

// UserOnline tells the participants of the user's rooms that the user came online.
func (s *ChatService) UserOnline(ctx context.Context, user domain.UserID, rooms []domain.RoomID) {
	if len(rooms) == 0 {
		var err error
		if rooms, err = s.coordinator.RoomsOf(ctx, user); err != nil {
			s.log.Warn("Online status not announced", "user_id", user, "error", err)
			return
		}
	}
	s.announceStatus(ctx, user, rooms, domain.StatusData{UserID: user, IsOnline: true, LastSeen: time.Now().UTC()})
}

// UserOffline tells the participants of the user's rooms that the user went offline.
func (s *ChatService) UserOffline(ctx context.Context, user domain.UserID, lastSeen time.Time) {
	rooms, err := s.coordinator.RoomsOf(ctx, user)
	if err != nil {
		s.log.Warn("Offline status not announced", "user_id", user, "error", err)
		return
	}
	s.announceStatus(ctx, user, rooms, domain.StatusData{UserID: user, IsOnline: false, LastSeen: lastSeen.UTC()})
}

// announceStatus sends one status frame per peer, however many rooms they share with user.
func (s *ChatService) announceStatus(ctx context.Context, user domain.UserID, rooms []domain.RoomID, status domain.StatusData) {
	var peers []domain.UserID
	for _, room := range rooms {
		participants, err := s.coordinator.ParticipantsOf(ctx, room)
		if err != nil {
			s.log.Warn("Skipping room for status", "room_id", room, "error", err)
			continue
		}
		peers = append(peers, participants...)
	}
	peers = lo.Without(lo.Uniq(peers), user)
	if len(peers) == 0 {
		return
	}

	frameType := lo.Ternary(status.IsOnline, domain.FrameUserOnline, domain.FrameUserOffline)
	payload, err := domain.Outgoing{Type: frameType, Data: status}.Encode()
	if err != nil {
		s.log.Error("Status frame encoding failed", "error", err)
		return
	}
	report := s.broadcaster.Notify(ctx, peers, payload)
	s.log.Debug("Status announced", "user_id", user, "online", status.IsOnline,
		"peers", len(peers), "attempted", report.Attempted)
}

func (s *ChatService) reply(ctx context.Context, conn contract.Conn, frame domain.Outgoing) {
	payload, err := frame.Encode()
	if err != nil {
		s.log.Error("Reply encoding failed", "type", frame.Type, "error", err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()
	if err := conn.Send(sendCtx, payload); err != nil {
		s.log.Debug("Reply not delivered", "conn_id", conn.ID(), "type", frame.Type, "error", err)
	}
}

func (s *ChatService) replyError(ctx context.Context, conn contract.Conn, message, code string) {
	s.reply(ctx, conn, domain.Outgoing{
		Type: domain.FrameError,
		Data: domain.ErrorData{Message: message, Code: code},
	})
}

// describeValidation maps the first failing rule to a client message and code.
func describeValidation(err error) (string, string) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return "invalid message format", apperrors.CodeInvalidFormat
	}
	fe := validationErrors[0]
	switch {
	case fe.Field() == "Type" && fe.Tag() == "oneof":
		return fmt.Sprintf("unsupported message type: %v", fe.Value()), apperrors.CodeUnsupportedType
	case strings.HasPrefix(fe.Tag(), "required"):
		return fmt.Sprintf("%s is required", fe.Field()), apperrors.CodeMissingFields
	default:
		return fmt.Sprintf("invalid value for %s", fe.Field()), apperrors.CodeInvalidFormat
	}
}

// detectLang returns the ISO 639-1 code of text, or "" when detection is unreliable.
func detectLang(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

func toDiskMessage(m domain.Message) repositories.DiskMessage {
	return repositories.DiskMessage{
		ID:       m.ID,
		Room:     m.Room,
		Author:   m.SenderID,
		Content:  m.Content,
		Type:     m.Type,
		Lang:     m.Lang,
		Censored: m.CensoredWords,
		At:       m.CreatedAt,
	}
}

func toMessage(dm repositories.DiskMessage) domain.Message {
	return domain.Message{
		ID:            dm.ID,
		Room:          dm.Room,
		SenderID:      dm.Author,
		Content:       dm.Content,
		Type:          dm.Type,
		Lang:          dm.Lang,
		CensoredWords: dm.Censored,
		CreatedAt:     dm.At,
	}
}
