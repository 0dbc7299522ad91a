// Package conversation manages 1-on-1 chat threads between users and
// streamers: thread creation, paginated history, sending, read receipts,
// blocking and moderation flags.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"chatcall/backend/internal/apperr"
	"chatcall/backend/internal/chathub"
	"chatcall/backend/internal/gateway"
	"chatcall/backend/internal/models"

	"github.com/google/uuid"
)

const (
	// DefaultMaxPageSize bounds pageSize when the store is built without one.
	DefaultMaxPageSize = 100

	previewRunes = 100
	drainPage    = 100
)

// Store is the conversation service.
type Store struct {
	Gateway     gateway.Gateway
	Listeners   *chathub.ManagerService
	Logger      *slog.Logger
	MaxPageSize int

	now func() time.Time
}

// NewStore builds a store on top of gw. A nil listeners manager gets one
// with default polling options.
func NewStore(gw gateway.Gateway, listeners *chathub.ManagerService, logger *slog.Logger, maxPageSize int) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if listeners == nil {
		listeners = chathub.NewManagerService(chathub.DefaultOptions(), logger)
	}
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &Store{
		Gateway:     gw,
		Listeners:   listeners,
		Logger:      logger,
		MaxPageSize: maxPageSize,
		now:         time.Now,
	}
}

// GetChatID returns the identifier shared by both orderings of a pair.
func GetChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "_" + ids[1]
}

// GetChatID is the method form of the package-level GetChatID.
func (s *Store) GetChatID(a, b string) string {
	return GetChatID(a, b)
}

// CreateChat returns the chat between userID and streamerID, creating it on
// first contact. Asking for an existing pair with the roles swapped is a
// validation error.
func (s *Store) CreateChat(ctx context.Context, userID, streamerID string) (string, error) {
	const op = "conversation.CreateChat"

	if userID == "" || streamerID == "" {
		return "", apperr.New(apperr.Validation, op, "userId and streamerId are required")
	}
	if userID == streamerID {
		return "", apperr.New(apperr.Validation, op, "a chat needs two different participants")
	}

	id := GetChatID(userID, streamerID)
	now := s.now().UTC()
	chat := models.Chat{
		ID:            id,
		UserID:        userID,
		StreamerID:    streamerID,
		Participants:  []string{userID, streamerID},
		LastMessageAt: now,
		CreatedAt:     now,
	}

	_, err := s.Gateway.Create(ctx, gateway.Chats, chat)
	switch {
	case err == nil:
		s.Logger.Info("chat created", "chat_id", id, "user_id", userID, "streamer_id", streamerID)
		return id, nil
	case isConflict(err):
		existing, gerr := s.GetChat(ctx, id)
		if gerr != nil {
			return "", gerr
		}
		if existing.UserID != userID || existing.StreamerID != streamerID {
			return "", apperr.New(apperr.Validation, op,
				"chat %s already exists with %s as the user and %s as the streamer",
				id, existing.UserID, existing.StreamerID)
		}
		return id, nil
	default:
		s.Logger.Error("failed to create chat", "chat_id", id, "error", err)
		return "", apperr.FromGateway(op, "chat", err)
	}
}

// GetChat loads one chat.
func (s *Store) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	const op = "conversation.GetChat"
	if chatID == "" {
		return nil, apperr.New(apperr.Validation, op, "chatId is required")
	}
	var chat models.Chat
	if err := gateway.GetInto(ctx, s.Gateway, gateway.Chats, chatID, &chat); err != nil {
		if !isNotFound(err) {
			s.Logger.Error("failed to load chat", "chat_id", chatID, "error", err)
		}
		return nil, apperr.FromGateway(op, "chat", err)
	}
	return &chat, nil
}

// GetChatList lists a streamer's chats, most recently active first.
func (s *Store) GetChatList(ctx context.Context, pageSize, page int, streamerID string) (models.Page[models.Chat], error) {
	return s.listChats(ctx, "conversation.GetChatList", "streamerId", streamerID, pageSize, page)
}

// GetUserChatList lists a user's chats, most recently active first.
func (s *Store) GetUserChatList(ctx context.Context, pageSize, page int, userID string) (models.Page[models.Chat], error) {
	return s.listChats(ctx, "conversation.GetUserChatList", "userId", userID, pageSize, page)
}

func (s *Store) listChats(ctx context.Context, op, field, id string, pageSize, page int) (models.Page[models.Chat], error) {
	if id == "" {
		return models.Page[models.Chat]{}, apperr.New(apperr.Validation, op, "%s is required", field)
	}
	if err := s.checkPage(op, pageSize, page); err != nil {
		return models.Page[models.Chat]{}, err
	}

	res, err := s.Gateway.Query(ctx, gateway.Chats, gateway.Query{
		Filter: map[string]any{field: id},
		Sort:   &gateway.Sort{Field: "lastMessageAt", Desc: true},
		Limit:  pageSize,
		Page:   page,
	})
	if err != nil {
		s.Logger.Error("failed to list chats", "field", field, "id", id, "error", err)
		return models.Page[models.Chat]{}, apperr.FromGateway(op, "chat", err)
	}
	return decodePage[models.Chat](s.Logger, op, res, page)
}

// GetMessages returns one page of a chat's history, newest first.
func (s *Store) GetMessages(ctx context.Context, chatID string, pageSize, page int) (models.Page[models.Message], error) {
	const op = "conversation.GetMessages"
	if chatID == "" {
		return models.Page[models.Message]{}, apperr.New(apperr.Validation, op, "chatId is required")
	}
	if err := s.checkPage(op, pageSize, page); err != nil {
		return models.Page[models.Message]{}, err
	}

	res, err := s.Gateway.Query(ctx, gateway.Messages, gateway.Query{
		Filter: map[string]any{"chatId": chatID},
		Sort:   &gateway.Sort{Field: "timestamp", Desc: true},
		Limit:  pageSize,
		Page:   page,
	})
	if err != nil {
		s.Logger.Error("failed to query messages", "chat_id", chatID, "error", err)
		return models.Page[models.Message]{}, apperr.FromGateway(op, "message", err)
	}
	return decodePage[models.Message](s.Logger, op, res, page)
}

// SendMessage appends a message and refreshes the chat preview. A failed
// preview update is logged; the message is still returned.
func (s *Store) SendMessage(ctx context.Context, chatID, senderID, body string, typ models.MessageType) (*models.Message, error) {
	const op = "conversation.SendMessage"

	if senderID == "" {
		return nil, apperr.New(apperr.Validation, op, "senderId is required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, apperr.New(apperr.Validation, op, "message body is empty")
	}

	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, apperr.New(apperr.Validation, op, "sender is not a participant of this chat")
	}
	if chat.Blocked {
		return nil, apperr.New(apperr.Validation, op, "chat is blocked")
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
		Type:      typ,
		Timestamp: s.now().UTC(),
	}
	if _, err := s.Gateway.Create(ctx, gateway.Messages, msg); err != nil {
		s.Logger.Error("failed to store message", "chat_id", chatID, "sender_id", senderID, "error", err)
		return nil, apperr.FromGateway(op, "message", err)
	}

	err = s.Gateway.Update(ctx, gateway.Chats, chatID, map[string]any{
		"lastMessage":   preview(msg),
		"lastMessageAt": msg.Timestamp,
	})
	if err != nil {
		s.Logger.Warn("message stored but chat preview not updated",
			"chat_id", chatID, "message_id", msg.ID, "error", err)
	}
	return &msg, nil
}

// MarkAsRead stamps readAt on every unread message userID received in the
// chat and returns how many were marked.
func (s *Store) MarkAsRead(ctx context.Context, chatID, userID string) (int, error) {
	const op = "conversation.MarkAsRead"

	chat, err := s.participantChat(ctx, op, chatID, userID)
	if err != nil {
		return 0, err
	}

	// Collect first: updating while paging over readAt == null would shift
	// the pages under us.
	unread, err := s.allMessages(ctx, op, map[string]any{"chatId": chat.ID, "readAt": nil})
	if err != nil {
		return 0, err
	}

	readAt := s.now().UTC()
	marked := 0
	for _, msg := range unread {
		if msg.SenderID == userID {
			continue
		}
		if err := s.Gateway.Update(ctx, gateway.Messages, msg.ID, map[string]any{"readAt": readAt}); err != nil {
			s.Logger.Error("failed to mark message read", "chat_id", chatID, "message_id", msg.ID, "error", err)
			return marked, apperr.FromGateway(op, "message", err)
		}
		marked++
	}
	if marked > 0 {
		s.Logger.Debug("messages marked read", "chat_id", chatID, "user_id", userID, "count", marked)
	}
	return marked, nil
}

// BlockChat blocks the chat on behalf of userID. Blocking an already
// blocked chat does nothing.
func (s *Store) BlockChat(ctx context.Context, chatID, userID string) error {
	const op = "conversation.BlockChat"

	chat, err := s.participantChat(ctx, op, chatID, userID)
	if err != nil {
		return err
	}
	if chat.Blocked {
		return nil
	}

	err = s.Gateway.Update(ctx, gateway.Chats, chatID, map[string]any{
		"blocked":   true,
		"blockedBy": userID,
		"blockedAt": s.now().UTC(),
	})
	if err != nil {
		s.Logger.Error("failed to block chat", "chat_id", chatID, "error", err)
		return apperr.FromGateway(op, "chat", err)
	}
	s.Logger.Info("chat blocked", "chat_id", chatID, "blocked_by", userID)
	return nil
}

// UnblockChat lifts a block. Only the participant who blocked may do so.
func (s *Store) UnblockChat(ctx context.Context, chatID, userID string) error {
	const op = "conversation.UnblockChat"

	chat, err := s.participantChat(ctx, op, chatID, userID)
	if err != nil {
		return err
	}
	if !chat.Blocked {
		return nil
	}
	if chat.BlockedBy != "" && chat.BlockedBy != userID {
		return apperr.New(apperr.Validation, op, "only the participant who blocked the chat can unblock it")
	}

	err = s.Gateway.Update(ctx, gateway.Chats, chatID, map[string]any{
		"blocked":   false,
		"blockedBy": "",
		"blockedAt": nil,
	})
	if err != nil {
		s.Logger.Error("failed to unblock chat", "chat_id", chatID, "error", err)
		return apperr.FromGateway(op, "chat", err)
	}
	s.Logger.Info("chat unblocked", "chat_id", chatID, "user_id", userID)
	return nil
}

// DeleteChat removes the chat and all of its messages, messages first.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	const op = "conversation.DeleteChat"

	if _, err := s.GetChat(ctx, chatID); err != nil {
		return err
	}

	msgs, err := s.allMessages(ctx, op, map[string]any{"chatId": chatID})
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		err := s.Gateway.Delete(ctx, gateway.Messages, msg.ID)
		if err != nil && !isNotFound(err) {
			s.Logger.Error("failed to delete message", "chat_id", chatID, "message_id", msg.ID, "error", err)
			return apperr.FromGateway(op, "message", err)
		}
	}

	if err := s.Gateway.Delete(ctx, gateway.Chats, chatID); err != nil {
		s.Logger.Error("failed to delete chat", "chat_id", chatID, "error", err)
		return apperr.FromGateway(op, "chat", err)
	}
	s.Logger.Info("chat deleted", "chat_id", chatID, "messages", len(msgs))
	return nil
}

// GetChatStats aggregates the full history of a chat.
func (s *Store) GetChatStats(ctx context.Context, chatID string) (*models.ChatStats, error) {
	const op = "conversation.GetChatStats"

	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.allMessages(ctx, op, map[string]any{"chatId": chatID})
	if err != nil {
		return nil, err
	}

	stats := &models.ChatStats{
		ChatID:        chatID,
		TotalMessages: len(msgs),
		UnreadByParticipant: map[string]int{
			chat.UserID:     0,
			chat.StreamerID: 0,
		},
		Blocked: chat.Blocked,
	}
	for i := range msgs {
		msg := &msgs[i]
		if msg.ReadAt == nil {
			if to := chat.Counterpart(msg.SenderID); to != "" {
				stats.UnreadByParticipant[to]++
			}
		}
		if msg.Type.Kind == models.KindImage {
			stats.ImageMessages++
		}
		if msg.Flags.IsReported {
			stats.ReportedMessages++
		}
		if msg.Flags.IsDeleted {
			stats.DeletedMessages++
		}
		ts := msg.Timestamp
		if stats.FirstMessageAt == nil || ts.Before(*stats.FirstMessageAt) {
			stats.FirstMessageAt = &ts
		}
		if stats.LastMessageAt == nil || ts.After(*stats.LastMessageAt) {
			stats.LastMessageAt = &ts
		}
	}
	return stats, nil
}

// DeleteMessage soft-deletes a message. Only its sender may do so.
func (s *Store) DeleteMessage(ctx context.Context, chatID, messageID, userID string) error {
	const op = "conversation.DeleteMessage"

	msg, err := s.chatMessage(ctx, op, chatID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return apperr.New(apperr.Validation, op, "only the sender can delete a message")
	}
	if msg.Flags.IsDeleted {
		return nil
	}
	flags := msg.Flags
	flags.IsDeleted = true
	return s.setFlags(ctx, op, msg, flags)
}

// ReportMessage flags a message for moderation. Any participant other than
// the sender may report it.
func (s *Store) ReportMessage(ctx context.Context, chatID, messageID, userID string) error {
	const op = "conversation.ReportMessage"

	if _, err := s.participantChat(ctx, op, chatID, userID); err != nil {
		return err
	}
	msg, err := s.chatMessage(ctx, op, chatID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return apperr.New(apperr.Validation, op, "cannot report your own message")
	}
	if msg.Flags.IsReported {
		return nil
	}
	flags := msg.Flags
	flags.IsReported = true
	if err := s.setFlags(ctx, op, msg, flags); err != nil {
		return err
	}
	s.Logger.Warn("message reported", "chat_id", chatID, "message_id", messageID, "reported_by", userID)
	return nil
}

// SetupMessageListener polls the newest message of chatID and hands it to
// onMessage until the returned function is called.
func (s *Store) SetupMessageListener(chatID string, onMessage chathub.MessageHandler, opts ...chathub.Option) chathub.CancelFunc {
	fetch := func(ctx context.Context) (*models.Message, error) {
		page, err := s.GetMessages(ctx, chatID, 1, 1)
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			return nil, nil
		}
		return &page.Items[0], nil
	}
	return s.Listeners.Listen(chatID, fetch, onMessage, opts...)
}

func (s *Store) checkPage(op string, pageSize, page int) error {
	if page < 1 {
		return apperr.New(apperr.Validation, op, "page must be at least 1")
	}
	if pageSize < 1 || pageSize > s.MaxPageSize {
		return apperr.New(apperr.Validation, op, "pageSize must be between 1 and %d", s.MaxPageSize)
	}
	return nil
}

func decodePage[T any](logger *slog.Logger, op string, res *gateway.QueryResult, page int) (models.Page[T], error) {
	items := make([]T, 0, len(res.Items))
	if err := res.Decode(&items); err != nil {
		logger.Error("failed to decode page", "op", op, "error", err)
		return models.Page[T]{}, apperr.Wrap(apperr.BackendUnavailable, op, err, "storage returned malformed records")
	}
	return models.Page[T]{
		Items:       items,
		HasMore:     res.HasMore,
		TotalPages:  res.TotalPages,
		CurrentPage: page,
	}, nil
}

// allMessages drains every page of a message query.
func (s *Store) allMessages(ctx context.Context, op string, filter map[string]any) ([]models.Message, error) {
	var out []models.Message
	for page := 1; ; page++ {
		res, err := s.Gateway.Query(ctx, gateway.Messages, gateway.Query{
			Filter: filter,
			Sort:   &gateway.Sort{Field: "timestamp", Desc: false},
			Limit:  drainPage,
			Page:   page,
		})
		if err != nil {
			s.Logger.Error("failed to query messages", "op", op, "error", err)
			return nil, apperr.FromGateway(op, "message", err)
		}
		var items []models.Message
		if err := res.Decode(&items); err != nil {
			s.Logger.Error("failed to decode messages", "op", op, "error", err)
			return nil, apperr.Wrap(apperr.BackendUnavailable, op, err, "storage returned malformed records")
		}
		out = append(out, items...)
		if !res.HasMore || len(items) == 0 {
			return out, nil
		}
	}
}

func (s *Store) participantChat(ctx context.Context, op, chatID, userID string) (*models.Chat, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Validation, op, "userId is required")
	}
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, apperr.New(apperr.Validation, op, "user is not a participant of this chat")
	}
	return chat, nil
}

func (s *Store) chatMessage(ctx context.Context, op, chatID, messageID string) (*models.Message, error) {
	if messageID == "" {
		return nil, apperr.New(apperr.Validation, op, "messageId is required")
	}
	var msg models.Message
	if err := gateway.GetInto(ctx, s.Gateway, gateway.Messages, messageID, &msg); err != nil {
		if !isNotFound(err) {
			s.Logger.Error("failed to load message", "message_id", messageID, "error", err)
		}
		return nil, apperr.FromGateway(op, "message", err)
	}
	if msg.ChatID != chatID {
		return nil, apperr.New(apperr.NotFound, op, "message not found")
	}
	return &msg, nil
}

func (s *Store) setFlags(ctx context.Context, op string, msg *models.Message, flags models.MessageFlags) error {
	err := s.Gateway.Update(ctx, gateway.Messages, msg.ID, map[string]any{"flags": flags})
	if err != nil {
		s.Logger.Error("failed to update message flags", "message_id", msg.ID, "error", err)
		return apperr.FromGateway(op, "message", err)
	}
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, gateway.ErrNotFound) }

func isConflict(err error) bool { return errors.Is(err, gateway.ErrConflict) }

// preview renders the chat-list snippet for msg.
func preview(msg models.Message) string {
	switch msg.Type.Kind {
	case models.KindImage:
		return "[image]"
	case models.KindOther:
		return "[" + msg.Type.Raw + "]"
	}
	r := []rune(msg.Body)
	if len(r) <= previewRunes {
		return msg.Body
	}
	return string(r[:previewRunes]) + "…"
}
