package models

import "time"

// Chat is a persistent 1-on-1 thread between a user and a streamer.
// Its ID is derived from the two participant IDs, so a pair has exactly
// one thread.
type Chat struct {
	// ID is the deterministic chat identifier.
	ID string `json:"id"`
	// UserID is the viewer side of the conversation.
	UserID string `json:"userId"`
	// StreamerID is the streamer side of the conversation.
	StreamerID string `json:"streamerId"`
	// Participants holds both IDs, in the order {UserID, StreamerID}.
	Participants []string `json:"participants"`
	// LastMessage is a denormalized preview of the newest message.
	LastMessage string `json:"lastMessage"`
	// LastMessageAt orders chat lists; set to CreatedAt for empty chats.
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`

	Blocked   bool       `json:"blocked"`
	BlockedBy string     `json:"blockedBy"`
	BlockedAt *time.Time `json:"blockedAt"`
}

// HasParticipant reports whether id is one of the two chat members.
func (c *Chat) HasParticipant(id string) bool {
	return id != "" && (id == c.UserID || id == c.StreamerID)
}

// Counterpart returns the other participant, or "" if id is not a member.
func (c *Chat) Counterpart(id string) string {
	switch id {
	case c.UserID:
		return c.StreamerID
	case c.StreamerID:
		return c.UserID
	default:
		return ""
	}
}

// ChatStats summarizes the message history of a chat.
type ChatStats struct {
	ChatID        string `json:"chatId"`
	TotalMessages int    `json:"totalMessages"`
	// UnreadByParticipant counts, per participant, messages from the other
	// side that have not been read yet.
	UnreadByParticipant map[string]int `json:"unreadByParticipant"`
	ImageMessages       int            `json:"imageMessages"`
	ReportedMessages    int            `json:"reportedMessages"`
	DeletedMessages     int            `json:"deletedMessages"`
	FirstMessageAt      *time.Time     `json:"firstMessageAt"`
	LastMessageAt       *time.Time     `json:"lastMessageAt"`
	Blocked             bool           `json:"blocked"`
}
