package guestws

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Kind classifies a Notification. Values outside the known set are kept verbatim so
// consumers can opt into kinds this package does not know about.
type Kind string

const (
	KindMessageCreated Kind = "message_created"
	KindMessageUpdated Kind = "message_updated"
	KindPong           Kind = "pong"
	KindUnknown        Kind = "unknown"
)

func ParseKind(s string) Kind {
	if s == "" {
		return KindUnknown
	}
	return Kind(s)
}

// IsMessageEvent reports whether the kind carries an embedded chat message.
func (k Kind) IsMessageEvent() bool {
	return k == KindMessageCreated || k == KindMessageUpdated
}

func (k Kind) Known() bool {
	switch k {
	case KindMessageCreated, KindMessageUpdated, KindPong, KindUnknown:
		return true
	}
	return false
}

// Notification is a decoded inbound event. It is transient: built per frame, handed to
// every consumer, then dropped.
type Notification struct {
	Kind Kind `json:"kind"`
	// Payload is the embedded entity, already unwrapped when the server double encoded
	// it. Nil when the frame had no data.
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	RawTimestamp   string          `json:"raw_timestamp,omitempty"`
	ConversationID int64           `json:"conversation_id,omitempty"`
}

func (n Notification) HasPayload() bool {
	return len(n.Payload) > 0
}

// DecodePayload unmarshals the payload into v.
func (n Notification) DecodePayload(v any) error {
	if !n.HasPayload() {
		return errors.Wrapf(ErrDecode, "%s notification has no payload", n.Kind)
	}
	if err := json.Unmarshal(n.Payload, v); err != nil {
		return errors.Wrapf(ErrDecode, "%s payload: %s", n.Kind, err)
	}
	return nil
}

// Message decodes the embedded chat message of a message event.
func (n Notification) Message() (*ChatMessage, error) {
	if !n.Kind.IsMessageEvent() {
		return nil, errors.Wrapf(ErrDecode, "%s notification does not carry a message", n.Kind)
	}
	var m ChatMessage
	if err := n.DecodePayload(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ChatMessage is the message entity the chat backend embeds in message events.
type ChatMessage struct {
	ID                int64          `json:"id"`
	Content           string         `json:"content"`
	MessageType       int            `json:"message_type"`
	ContentType       string         `json:"content_type"`
	ContentAttributes map[string]any `json:"content_attributes,omitempty"`
	CreatedAt         int64          `json:"created_at"`
	ConversationID    int64          `json:"conversation_id"`
	Sender            *Sender        `json:"sender,omitempty"`
}

type Sender struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Thumbnail  string `json:"thumbnail"`
}

// CreatedTime converts CreatedAt, which the backend sends as unix seconds.
func (m ChatMessage) CreatedTime() time.Time {
	if m.CreatedAt == 0 {
		return time.Time{}
	}
	return unixTime(m.CreatedAt)
}
