package handler

import (
	"context"
	"net/http"
	"time"

	"chatcall/backend/internal/chathub"
	"chatcall/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	SenderID string `json:"senderId"`
	Body     string `json:"body" binding:"required"`
	Type     string `json:"type"`
}

func (h *Handler) GetMessages(c *gin.Context) {
	if _, ok := h.participantChat(c); !ok {
		return
	}
	pageSize, page, ok := pageParams(c)
	if !ok {
		return
	}
	res, err := h.Store.GetMessages(c.Request.Context(), c.Param("chatId"), pageSize, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message body is required")
		return
	}
	if _, ok := h.participantChat(c); !ok {
		return
	}
	senderID, ok := h.actingAs(c, req.SenderID)
	if !ok {
		return
	}
	msg, err := h.Store.SendMessage(c.Request.Context(), c.Param("chatId"),
		senderID, req.Body, models.ParseMessageType(req.Type))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	userID, ok := h.chatActor(c)
	if !ok {
		return
	}
	err := h.Store.DeleteMessage(c.Request.Context(), c.Param("chatId"), c.Param("id"), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ReportMessage(c *gin.Context) {
	userID, ok := h.chatActor(c)
	if !ok {
		return
	}
	err := h.Store.ReportMessage(c.Request.Context(), c.Param("chatId"), c.Param("id"), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// NextMessage long-polls for the newest message of a chat whose id differs
// from ?after=. It answers 204 when nothing arrives before the deadline.
func (h *Handler) NextMessage(c *gin.Context) {
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	chatID := chat.ID

	got := make(chan models.Message, 1)
	cancel := h.Store.SetupMessageListener(chatID, func(m models.Message) {
		select {
		case got <- m:
		default:
		}
	},
		chathub.WithDeduplication(true),
		chathub.WithCursor(afterCursor(c.Query("after")), ""),
	)
	defer cancel()

	timeout := h.LongPollTimeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-got:
		c.JSON(http.StatusOK, msg)
	case <-timer.C:
		c.Status(http.StatusNoContent)
	case <-c.Request.Context().Done():
		h.Logger.Debug("long-poll client went away", "chat_id", chatID)
	}
}

// afterCursor seeds a listener with the id the client already has.
type afterCursor string

func (a afterCursor) LastSeen(context.Context, string) (string, error) { return string(a), nil }

func (afterCursor) SetLastSeen(context.Context, string, string) error { return nil }
