package guestws

import (
	"fmt"

	"github.com/fasthttp/websocket"
)

type MessageType byte

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
	CloseMessage  MessageType = websocket.CloseMessage
	PingMessage   MessageType = websocket.PingMessage
	PongMessage   MessageType = websocket.PongMessage
)

// Close codes the manager cares about.
const (
	CloseNormalClosure   = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	CloseAbnormalClosure = websocket.CloseAbnormalClosure
)

// Liveness tokens exchanged as bare text frames.
const (
	PingToken = "ping"
	PongToken = "pong"
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case CloseMessage:
		return "close"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// Message is an outbound frame handed to a Transport.
type Message interface {
	Type() MessageType
	Data() []byte
	String() string
}

type message struct {
	MessageType MessageType
	MessageData []byte
}

func (m message) Type() MessageType {
	return m.MessageType
}

func (m message) Data() []byte {
	return m.MessageData
}

func (m message) String() string {
	return fmt.Sprintf("Message{type=%s,data=%s}", m.MessageType, m.MessageData)
}

func NewMessage(mt MessageType, data []byte) Message {
	return message{MessageType: mt, MessageData: data}
}

func NewTextMessage(data []byte) Message {
	return NewMessage(TextMessage, data)
}

// NewLivenessMessage builds the text frame carrying a bare liveness token.
func NewLivenessMessage(token string) Message {
	return NewTextMessage([]byte(token))
}
