// Package handler exposes the conversation store and the call tracker over
// a gin REST API.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chatcall/backend/internal/apperr"
	"chatcall/backend/internal/auth"
	"chatcall/backend/internal/calllog"
	"chatcall/backend/internal/conversation"
	"chatcall/backend/internal/models"

	"github.com/gin-gonic/gin"
)

const defaultPageSize = 20

// Handler holds the services behind the API routes.
type Handler struct {
	Store  *conversation.Store
	Calls  *calllog.Tracker
	Logger *slog.Logger

	RequestTimeout  time.Duration
	LongPollTimeout time.Duration

	// ServiceSubject, when set, names the one token subject allowed to act
	// on behalf of any user (back-office tooling). Everyone else acts as
	// their own subject only.
	ServiceSubject string
}

func NewHandler(store *conversation.Store, calls *calllog.Tracker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:           store,
		Calls:           calls,
		Logger:          logger,
		RequestTimeout:  10 * time.Second,
		LongPollTimeout: 25 * time.Second,
	}
}

// Register mounts every route on r. mw runs before each handler, e.g. the
// bearer check.
func (h *Handler) Register(r gin.IRouter, mw ...gin.HandlerFunc) {
	api := r.Group("", mw...)

	// Long-poll has its own deadline.
	api.GET("/chats/:chatId/messages/next", h.NextMessage)

	timed := api.Group("", h.withTimeout())

	timed.POST("/chats", h.CreateChat)
	timed.GET("/streamers/:id/chats", h.StreamerChats)
	timed.GET("/users/:id/chats", h.UserChats)
	timed.GET("/chats/:chatId", h.GetChat)
	timed.DELETE("/chats/:chatId", h.DeleteChat)
	timed.GET("/chats/:chatId/stats", h.ChatStats)
	timed.POST("/chats/:chatId/read", h.MarkAsRead)
	timed.POST("/chats/:chatId/block", h.BlockChat)
	timed.POST("/chats/:chatId/unblock", h.UnblockChat)

	timed.GET("/chats/:chatId/messages", h.GetMessages)
	timed.POST("/chats/:chatId/messages", h.SendMessage)
	timed.POST("/chats/:chatId/messages/:id/delete", h.DeleteMessage)
	timed.POST("/chats/:chatId/messages/:id/report", h.ReportMessage)

	timed.POST("/calls", h.CreateCall)
	timed.GET("/calls/:id", h.GetCall)
	timed.PATCH("/calls/:id", h.UpdateCall)
	timed.GET("/users/:id/calls", h.UserCalls)
}

func (h *Handler) withTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.RequestTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// fail writes err as {error, message} with the status for its kind.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.InvalidStateTransition:
		status = http.StatusConflict
	case apperr.BackendUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	errName := kind.String()
	if kind == 0 {
		errName = "internal_error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errName, "message": apperr.PublicMessage(err)})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.Validation.String(), "message": message})
}

// pageParams reads ?page= and ?pageSize=. Range checks are left to the store.
func pageParams(c *gin.Context) (pageSize, page int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		badRequest(c, "page must be an integer")
		return 0, 0, false
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(defaultPageSize)))
	if err != nil {
		badRequest(c, "pageSize must be an integer")
		return 0, 0, false
	}
	return pageSize, page, true
}

func forbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": message})
}

func (h *Handler) isService(c *gin.Context) bool {
	return h.ServiceSubject != "" && auth.Subject(c) == h.ServiceSubject
}

// actingAs resolves the user a request acts for. An id in the request that
// differs from the token subject is honoured for the service subject only.
func (h *Handler) actingAs(c *gin.Context, requested string) (string, bool) {
	subject := auth.Subject(c)
	if requested == "" || requested == subject {
		return subject, true
	}
	if h.isService(c) {
		return requested, true
	}
	forbidden(c, "cannot act on behalf of another user")
	return "", false
}

// allow passes when the caller is one of ids or the service subject.
func (h *Handler) allow(c *gin.Context, ids ...string) bool {
	if h.isService(c) {
		return true
	}
	subject := auth.Subject(c)
	for _, id := range ids {
		if id != "" && id == subject {
			return true
		}
	}
	forbidden(c, "not a participant")
	return false
}

// participantChat loads :chatId and checks the caller takes part in it.
func (h *Handler) participantChat(c *gin.Context) (*models.Chat, bool) {
	chat, err := h.Store.GetChat(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if !h.allow(c, chat.UserID, chat.StreamerID) {
		return nil, false
	}
	return chat, true
}

// RequestLogger logs one line per request through logger.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
	}
}
