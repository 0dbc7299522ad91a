package models

import "time"

// CallStatus is the lifecycle state of a call session.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallOngoing   CallStatus = "ongoing"
	CallCompleted CallStatus = "completed"
	CallMissed    CallStatus = "missed"
	CallDeclined  CallStatus = "declined"
)

// callStage orders statuses along the state machine. Terminal outcomes
// share the last stage and are mutually exclusive.
var callStage = map[CallStatus]int{
	CallInitiated: 0,
	CallOngoing:   1,
	CallCompleted: 2,
	CallMissed:    2,
	CallDeclined:  2,
}

// Valid reports whether s is one of the known statuses.
func (s CallStatus) Valid() bool {
	_, ok := callStage[s]
	return ok
}

// IsInitial reports whether a call log may be created in this status.
func (s CallStatus) IsInitial() bool {
	return s == CallInitiated || s == CallOngoing
}

// IsTerminal reports whether no transition out of s exists.
func (s CallStatus) IsTerminal() bool {
	return s == CallCompleted || s == CallMissed || s == CallDeclined
}

// CanTransitionTo reports whether moving from s to next keeps the status
// moving forward. Staying in the same non-terminal status is allowed and
// treated as a no-op by callers.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	return callStage[next] >= callStage[s]
}

// CallLog is an append-only record of one call session.
type CallLog struct {
	// ID is assigned at creation (UUID).
	ID string `json:"id"`
	// CallerID is the participant who started the call.
	CallerID string `json:"callerId"`
	// ReceiverID is the participant being called.
	ReceiverID string `json:"receiverId"`
	// Status is the current state-machine position.
	Status CallStatus `json:"status"`
	// StartTime is set once, at creation.
	StartTime time.Time `json:"startTime"`
	// EndTime and Duration are set together, on a terminal transition only.
	EndTime *time.Time `json:"endTime"`
	// Duration is in whole seconds.
	Duration *int64 `json:"duration"`
}

// Ended reports whether the log carries its terminal timing fields.
func (c *CallLog) Ended() bool {
	return c.EndTime != nil && c.Duration != nil
}
