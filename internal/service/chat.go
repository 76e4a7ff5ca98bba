package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/pubsub"
	"github.com/sakif/waypoint/internal/repository"
)

const (
	maxMessageLength  = 2000
	defaultHistory    = 100
	directChatPrefix  = "dm-"
	chatSubscriberBuf = 32
)

// ChatService stores chat messages and fans new ones out to live
// subscribers.
//
// Event chats (keyed by the event's ChatID) are open to every signed-in
// user. Direct chats between two users are keyed by DirectChatID and only
// their two participants may use them.
type ChatService struct {
	repo   repository.ChatRepository
	hub    *pubsub.Hub[model.ChatMessage]
	now    func() time.Time
	logger *slog.Logger
}

func NewChatService(repo repository.ChatRepository, logger *slog.Logger) *ChatService {
	return &ChatService{
		repo:   repo,
		hub:    pubsub.NewHub[model.ChatMessage](chatSubscriberBuf),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// DirectChatID is the chat key for a pair of users, the same whichever
// side asks.
func DirectChatID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return directChatPrefix + a + "-" + b
}

// Send stores a message and delivers it to subscribers of the chat.
func (s *ChatService) Send(ctx context.Context, chatID, senderID, text string) (*model.ChatMessage, error) {
	if err := s.authorize(chatID, senderID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "message is empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, apperror.ValidationFailed("text", fmt.Sprintf("message must be %d characters or fewer", maxMessageLength))
	}

	msg := &model.ChatMessage{
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		Timestamp: s.now(),
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("service/chat: sending to %s: %w", chatID, err)
	}
	s.hub.Publish(chatID, *msg)
	return msg, nil
}

// History returns up to limit recent messages, oldest first.
func (s *ChatService) History(ctx context.Context, chatID, userID string, limit int) ([]model.ChatMessage, error) {
	if err := s.authorize(chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = defaultHistory
	}
	msgs, err := s.repo.ListMessages(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("service/chat: loading %s: %w", chatID, err)
	}
	return msgs, nil
}

// Subscribe streams messages sent after the call until ctx is done. A
// subscriber that falls behind loses its oldest undelivered messages.
func (s *ChatService) Subscribe(ctx context.Context, chatID, userID string) (<-chan model.ChatMessage, error) {
	if err := s.authorize(chatID, userID); err != nil {
		return nil, err
	}
	s.logger.Debug("chat subscriber joined",
		slog.String("chatID", chatID),
		slog.String("userID", userID),
	)
	return s.hub.Subscribe(ctx, chatID), nil
}

func (s *ChatService) authorize(chatID, userID string) error {
	if userID == "" {
		return apperror.Unauthorized("sign in to chat")
	}
	if len(chatID) > 200 || !slug.IsSlug(chatID) {
		return apperror.ValidationFailed("chatId", "invalid chat id")
	}
	if rest, ok := strings.CutPrefix(chatID, directChatPrefix); ok {
		if !strings.HasPrefix(rest, userID+"-") && !strings.HasSuffix(rest, "-"+userID) {
			return apperror.Forbidden("not a participant of this chat")
		}
	}
	return nil
}
