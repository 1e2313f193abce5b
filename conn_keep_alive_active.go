package guestws

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type KeepAliveMessageFactory func() Message

// heartbeat owns the ticker driving outbound liveness markers. It only produces ticks;
// the manager decides whether the transport is open enough to send.
type heartbeat struct {
	clock                   clockwork.Clock
	interval                time.Duration
	keepAliveMessageFactory KeepAliveMessageFactory

	ticker clockwork.Ticker
}

func newHeartbeat(
	clock clockwork.Clock,
	interval time.Duration,
	keepAliveMessageFactory KeepAliveMessageFactory,
) *heartbeat {
	return &heartbeat{
		clock:                   clock,
		interval:                interval,
		keepAliveMessageFactory: keepAliveMessageFactory,
	}
}

// start (re)arms the ticker. A non-positive interval disables the heartbeat.
func (h *heartbeat) start() {
	h.stop()
	if h.interval <= 0 {
		return
	}
	h.ticker = h.clock.NewTicker(h.interval)
}

func (h *heartbeat) stop() {
	if h.ticker == nil {
		return
	}
	h.ticker.Stop()
	h.ticker = nil
}

func (h *heartbeat) running() bool {
	return h.ticker != nil
}

// C is nil while stopped, which blocks forever inside a select.
func (h *heartbeat) C() <-chan time.Time {
	if h.ticker == nil {
		return nil
	}
	return h.ticker.Chan()
}

func (h *heartbeat) message() Message {
	return h.keepAliveMessageFactory()
}

// NewKeepAliveMessageFactory returns a factory function for creating keep-alive messages.
// It takes a MessageType and a function that generates the content of the message as parameters.
func NewKeepAliveMessageFactory(
	mt MessageType,
	contentFactory func() []byte,
) KeepAliveMessageFactory {
	return func() Message {
		return NewMessage(mt, contentFactory())
	}
}

// NewProtocolKeepAliveMessageFactory sends token as the payload of a websocket ping
// control frame.
func NewProtocolKeepAliveMessageFactory(token string) KeepAliveMessageFactory {
	return NewKeepAliveMessageFactory(PingMessage, func() []byte { return []byte(token) })
}

// NewTokenKeepAliveMessageFactory sends token as a bare text frame.
func NewTokenKeepAliveMessageFactory(token string) KeepAliveMessageFactory {
	return func() Message {
		return NewLivenessMessage(token)
	}
}
