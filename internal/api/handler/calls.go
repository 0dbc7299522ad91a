package handler

import (
	"net/http"
	"time"

	"chatcall/backend/internal/calllog"
	"chatcall/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type createCallRequest struct {
	CallerID   string     `json:"callerId"`
	ReceiverID string     `json:"receiverId"`
	StartTime  time.Time  `json:"startTime"`
	Status     string     `json:"status"`
	EndTime    *time.Time `json:"endTime"`
	Duration   *int64     `json:"duration"`
}

type updateCallRequest struct {
	Status   *string    `json:"status"`
	EndTime  *time.Time `json:"endTime"`
	Duration *int64     `json:"duration"`
}

func (h *Handler) CreateCall(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed call log")
		return
	}
	callerID, ok := h.actingAs(c, req.CallerID)
	if !ok {
		return
	}
	status := models.CallStatus(req.Status)
	if status == "" {
		status = models.CallInitiated
	}
	id, err := h.Calls.AddCallLog(c.Request.Context(), calllog.NewCallLog{
		CallerID:   callerID,
		ReceiverID: req.ReceiverID,
		StartTime:  req.StartTime,
		Status:     status,
		EndTime:    req.EndTime,
		Duration:   req.Duration,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) GetCall(c *gin.Context) {
	log, ok := h.participantCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, log)
}

// participantCall loads :id and checks the caller is on the call.
func (h *Handler) participantCall(c *gin.Context) (*models.CallLog, bool) {
	log, err := h.Calls.GetCallLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if !h.allow(c, log.CallerID, log.ReceiverID) {
		return nil, false
	}
	return log, true
}

// UpdateCall applies a partial update and answers with the stored log.
func (h *Handler) UpdateCall(c *gin.Context) {
	var req updateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed call update")
		return
	}
	upd := calllog.Update{EndTime: req.EndTime, Duration: req.Duration}
	if req.Status != nil {
		status := models.CallStatus(*req.Status)
		upd.Status = &status
	}

	if _, ok := h.participantCall(c); !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.Calls.UpdateCallLog(ctx, id, upd); err != nil {
		h.fail(c, err)
		return
	}
	log, err := h.Calls.GetCallLog(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *Handler) UserCalls(c *gin.Context) {
	if !h.allow(c, c.Param("id")) {
		return
	}
	logs, err := h.Calls.GetCallLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}
