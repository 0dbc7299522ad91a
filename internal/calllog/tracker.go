// Package calllog records call sessions and their status transitions, and
// merges a user's caller-side and receiver-side history into one
// most-recent-first log.
package calllog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"chatcall/backend/internal/apperr"
	"chatcall/backend/internal/gateway"
	"chatcall/backend/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// drainPageSize is the page size used when reading a full history.
const drainPageSize = 100

// NewCallLog describes a call at creation time.
type NewCallLog struct {
	CallerID   string
	ReceiverID string
	StartTime  time.Time
	Status     models.CallStatus
	// EndTime and Duration belong to terminal transitions and must be nil
	// here.
	EndTime  *time.Time
	Duration *int64
}

// Update is a partial update of a call log. Nil fields are left alone.
type Update struct {
	Status   *models.CallStatus
	EndTime  *time.Time
	Duration *int64
}

// Tracker owns the call_logs collection.
type Tracker struct {
	Gateway gateway.Gateway
	Logger  *slog.Logger
}

// NewTracker creates a tracker on top of gw. logger may be nil.
func NewTracker(gw gateway.Gateway, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{Gateway: gw, Logger: logger}
}

// AddCallLog records a new call and returns its id.
func (t *Tracker) AddCallLog(ctx context.Context, in NewCallLog) (string, error) {
	const op = "calllog.Add"

	switch {
	case in.CallerID == "" || in.ReceiverID == "":
		return "", apperr.New(apperr.Validation, op, "callerId and receiverId are required")
	case in.CallerID == in.ReceiverID:
		return "", apperr.New(apperr.Validation, op, "callerId and receiverId must differ")
	case in.StartTime.IsZero():
		return "", apperr.New(apperr.Validation, op, "startTime is required")
	case in.Status == "":
		return "", apperr.New(apperr.Validation, op, "status is required")
	case !in.Status.IsInitial():
		return "", apperr.New(apperr.Validation, op, "status %q is not a valid initial state", in.Status)
	case in.EndTime != nil || in.Duration != nil:
		return "", apperr.New(apperr.Validation, op, "endTime and duration are only set when the call ends")
	}

	log := models.CallLog{
		ID:         uuid.New().String(),
		CallerID:   in.CallerID,
		ReceiverID: in.ReceiverID,
		Status:     in.Status,
		StartTime:  in.StartTime.UTC(),
	}
	id, err := t.Gateway.Create(ctx, gateway.CallLogs, log)
	if err != nil {
		t.Logger.Error("failed to create call log",
			"caller_id", in.CallerID, "receiver_id", in.ReceiverID, "error", err)
		return "", apperr.FromGateway(op, "call log", err)
	}
	t.Logger.Info("call log created", "call_id", id, "status", in.Status)
	return id, nil
}

// GetCallLog returns one call log.
func (t *Tracker) GetCallLog(ctx context.Context, id string) (*models.CallLog, error) {
	const op = "calllog.Get"
	if id == "" {
		return nil, apperr.New(apperr.Validation, op, "call id is required")
	}
	var log models.CallLog
	if err := gateway.GetInto(ctx, t.Gateway, gateway.CallLogs, id, &log); err != nil {
		t.Logger.Error("failed to load call log", "call_id", id, "error", err)
		return nil, apperr.FromGateway(op, "call log", err)
	}
	return &log, nil
}

// UpdateCallLog applies a status transition and, on terminal transitions,
// the end time and duration. Duration is derived from the end and start
// times when the caller omits it.
func (t *Tracker) UpdateCallLog(ctx context.Context, id string, upd Update) error {
	const op = "calllog.Update"

	cur, err := t.GetCallLog(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status.IsTerminal() {
		return apperr.New(apperr.InvalidStateTransition, op,
			"call already ended with status %q", cur.Status)
	}

	next := cur.Status
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return apperr.New(apperr.Validation, op, "unknown status %q", *upd.Status)
		}
		if !cur.Status.CanTransitionTo(*upd.Status) {
			return apperr.New(apperr.InvalidStateTransition, op,
				"cannot move call from %q to %q", cur.Status, *upd.Status)
		}
		next = *upd.Status
	}

	patch := map[string]any{}
	if !next.IsTerminal() {
		if upd.EndTime != nil || upd.Duration != nil {
			return apperr.New(apperr.Validation, op, "endTime and duration are only set when the call ends")
		}
		if next == cur.Status {
			return nil
		}
		patch["status"] = next
	} else {
		if upd.EndTime == nil {
			return apperr.New(apperr.Validation, op, "endTime is required when the call ends")
		}
		end := upd.EndTime.UTC()
		if end.Before(cur.StartTime) {
			return apperr.New(apperr.Validation, op, "endTime is before startTime")
		}
		duration := int64(end.Sub(cur.StartTime) / time.Second)
		if upd.Duration != nil {
			duration = *upd.Duration
		}
		if duration < 0 {
			return apperr.New(apperr.Validation, op, "duration must not be negative")
		}
		patch["status"] = next
		patch["endTime"] = end
		patch["duration"] = duration
	}

	if err := t.Gateway.Update(ctx, gateway.CallLogs, id, patch); err != nil {
		t.Logger.Error("failed to update call log", "call_id", id, "error", err)
		return apperr.FromGateway(op, "call log", err)
	}
	t.Logger.Info("call log updated", "call_id", id, "from", cur.Status, "to", next)
	return nil
}

// GetCallLogs returns every call the user took part in, as caller or
// receiver, newest first. Entries with equal start times keep caller-side
// entries ahead of receiver-side ones.
func (t *Tracker) GetCallLogs(ctx context.Context, userID string) ([]models.CallLog, error) {
	const op = "calllog.List"
	if userID == "" {
		return nil, apperr.New(apperr.Validation, op, "userId is required")
	}

	var asCaller, asReceiver []json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		asCaller, err = t.queryAll(gctx, "callerId", userID)
		return err
	})
	g.Go(func() error {
		var err error
		asReceiver, err = t.queryAll(gctx, "receiverId", userID)
		return err
	})
	if err := g.Wait(); err != nil {
		t.Logger.Error("failed to query call logs", "user_id", userID, "error", err)
		return nil, apperr.FromGateway(op, "call log", err)
	}

	raw := make([]json.RawMessage, 0, len(asCaller)+len(asReceiver))
	raw = append(raw, asCaller...)
	raw = append(raw, asReceiver...)

	logs := make([]models.CallLog, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, item := range raw {
		log, ok := t.decode(item)
		if !ok {
			continue
		}
		if log.ID != "" {
			if seen[log.ID] {
				continue
			}
			seen[log.ID] = true
		}
		logs = append(logs, log)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].StartTime.After(logs[j].StartTime)
	})
	return logs, nil
}

func (t *Tracker) queryAll(ctx context.Context, field, userID string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for page := 1; ; page++ {
		res, err := t.Gateway.Query(ctx, gateway.CallLogs, gateway.Query{
			Filter: map[string]any{field: userID},
			Limit:  drainPageSize,
			Page:   page,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, res.Items...)
		if !res.HasMore || len(res.Items) == 0 {
			return items, nil
		}
	}
}

// decode parses one stored record, discarding legacy records without a
// usable startTime.
func (t *Tracker) decode(item json.RawMessage) (models.CallLog, bool) {
	var probe struct {
		ID        string          `json:"id"`
		StartTime json.RawMessage `json:"startTime"`
	}
	if err := json.Unmarshal(item, &probe); err != nil {
		t.Logger.Warn("skipping unreadable call log", "error", err)
		return models.CallLog{}, false
	}

	var start string
	if len(probe.StartTime) == 0 || json.Unmarshal(probe.StartTime, &start) != nil || start == "" {
		t.Logger.Warn("skipping call log without startTime", "call_id", probe.ID)
		return models.CallLog{}, false
	}
	if _, err := time.Parse(time.RFC3339Nano, start); err != nil {
		t.Logger.Warn("skipping call log with unparsable startTime", "call_id", probe.ID, "start_time", start)
		return models.CallLog{}, false
	}

	var log models.CallLog
	if err := json.Unmarshal(item, &log); err != nil {
		t.Logger.Warn("skipping malformed call log", "call_id", probe.ID, "error", err)
		return models.CallLog{}, false
	}
	return log, true
}
