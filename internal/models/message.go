package models

import (
	"encoding/json"
	"time"
)

// MessageKind tags the variant held by a MessageType.
type MessageKind int

const (
	KindText MessageKind = iota
	KindImage
	KindOther
)

// MessageType is a closed variant over the message types we understand.
// Unknown wire values are kept verbatim as KindOther so newer clients can
// round-trip types this service does not know yet.
type MessageType struct {
	Kind MessageKind
	// Raw holds the wire value for KindOther.
	Raw string
}

var (
	TextMessage  = MessageType{Kind: KindText}
	ImageMessage = MessageType{Kind: KindImage}
)

// OtherMessage builds the type for an arbitrary wire value. Values that
// name a known type ("", "text", "image") yield that type, so the result
// always survives a JSON round-trip unchanged.
func OtherMessage(raw string) MessageType {
	return ParseMessageType(raw)
}

// ParseMessageType maps a wire value onto the variant. The empty string is
// treated as text.
func ParseMessageType(s string) MessageType {
	switch s {
	case "", "text":
		return TextMessage
	case "image":
		return ImageMessage
	default:
		return MessageType{Kind: KindOther, Raw: s}
	}
}

func (t MessageType) String() string {
	switch t.Kind {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return t.Raw
	}
}

func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseMessageType(s)
	return nil
}

// MessageFlags are the moderation flags a message may carry.
type MessageFlags struct {
	IsDeleted  bool `json:"isDeleted"`
	IsReported bool `json:"isReported"`
}

// Message is a single entry in a chat thread. Only ReadAt and Flags change
// after creation.
type Message struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chatId"`
	SenderID  string       `json:"senderId"`
	Body      string       `json:"body"`
	Type      MessageType  `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	ReadAt    *time.Time   `json:"readAt"`
	Flags     MessageFlags `json:"flags"`
}
