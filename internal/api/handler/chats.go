package handler

import (
	"net/http"

	"chatcall/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

type createChatRequest struct {
	UserID     string `json:"userId" binding:"required"`
	StreamerID string `json:"streamerId" binding:"required"`
}

// participantRequest may name the acting participant; only the service
// subject can name someone other than itself.
type participantRequest struct {
	UserID string `json:"userId"`
}

// CreateChat opens (or returns) the chat between a user and a streamer. The
// caller must be one of the two.
func (h *Handler) CreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId and streamerId are required")
		return
	}
	if !h.allow(c, req.UserID, req.StreamerID) {
		return
	}
	id, err := h.Store.CreateChat(c.Request.Context(), req.UserID, req.StreamerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chatId": id})
}

func (h *Handler) StreamerChats(c *gin.Context) {
	if !h.allow(c, c.Param("id")) {
		return
	}
	pageSize, page, ok := pageParams(c)
	if !ok {
		return
	}
	res, err := h.Store.GetChatList(c.Request.Context(), pageSize, page, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UserChats(c *gin.Context) {
	if !h.allow(c, c.Param("id")) {
		return
	}
	pageSize, page, ok := pageParams(c)
	if !ok {
		return
	}
	res, err := h.Store.GetUserChatList(c.Request.Context(), pageSize, page, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetChat(c *gin.Context) {
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *Handler) DeleteChat(c *gin.Context) {
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteChat(c.Request.Context(), chat.ID); err != nil {
		h.fail(c, err)
		return
	}
	h.Logger.Info("chat deleted via api", "chat_id", chat.ID, "by", auth.Subject(c))
	c.Status(http.StatusNoContent)
}

func (h *Handler) ChatStats(c *gin.Context) {
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	stats, err := h.Store.GetChatStats(c.Request.Context(), chat.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	userID, ok := h.chatActor(c)
	if !ok {
		return
	}
	n, err := h.Store.MarkAsRead(c.Request.Context(), c.Param("chatId"), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func (h *Handler) BlockChat(c *gin.Context) {
	userID, ok := h.chatActor(c)
	if !ok {
		return
	}
	if err := h.Store.BlockChat(c.Request.Context(), c.Param("chatId"), userID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UnblockChat(c *gin.Context) {
	userID, ok := h.chatActor(c)
	if !ok {
		return
	}
	if err := h.Store.UnblockChat(c.Request.Context(), c.Param("chatId"), userID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// chatActor checks chat membership and resolves the acting participant from
// an optional participantRequest body.
func (h *Handler) chatActor(c *gin.Context) (string, bool) {
	var req participantRequest
	if !bindOptional(c, &req) {
		return "", false
	}
	if _, ok := h.participantChat(c); !ok {
		return "", false
	}
	return h.actingAs(c, req.UserID)
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		badRequest(c, "malformed JSON body")
		return false
	}
	return true
}
