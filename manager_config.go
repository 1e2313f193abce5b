package guestws

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const defaultHeartbeatInterval = 30 * time.Second

// ManagerConfig tunes a Manager. Zero fields fall back to DefaultManagerConfig.
type ManagerConfig struct {
	// HeartbeatInterval between outbound ping tokens while open.
	HeartbeatInterval time.Duration
	// ReconnectDelay before reconnecting after an abnormal close.
	ReconnectDelay time.Duration
	// ReconnectPolicy overrides ReconnectDelay when set.
	ReconnectPolicy backoff.BackOff
	// PongTimeout closes and reconnects an open connection that received nothing for
	// this long. Zero disables the check.
	PongTimeout time.Duration
	// AnswerPings replies to a remote ping token with the pong token.
	AnswerPings bool
	// ProtocolPings sends the heartbeat as a websocket ping control frame instead of
	// the ping token as text.
	ProtocolPings bool
	PingToken     string
	PongToken     string
	Clock         clockwork.Clock
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatInterval: defaultHeartbeatInterval,
		ReconnectDelay:    defaultReconnectDelay,
		PingToken:         PingToken,
		PongToken:         PongToken,
		Clock:             clockwork.NewRealClock(),
	}
}

func (c *ManagerConfig) applyDefaults() {
	d := DefaultManagerConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.ReconnectPolicy == nil {
		c.ReconnectPolicy = NewConstantReconnectPolicy(c.ReconnectDelay)
	}
	if c.PongTimeout < 0 {
		c.PongTimeout = 0
	}
	if c.PingToken == "" {
		c.PingToken = d.PingToken
	}
	if c.PongToken == "" {
		c.PongToken = d.PongToken
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
}

func (c ManagerConfig) codec() Codec {
	return Codec{PingToken: c.PingToken, PongToken: c.PongToken}
}

func (c ManagerConfig) keepAlive() KeepAliveMessageFactory {
	if c.ProtocolPings {
		return NewProtocolKeepAliveMessageFactory(c.PingToken)
	}
	return NewTokenKeepAliveMessageFactory(c.PingToken)
}

func (c ManagerConfig) passiveKeepAlive() PassiveKeepAliveHandler {
	if c.AnswerPings {
		return KeepAliveHandlerReplyPingWithPong(NewTokenKeepAliveMessageFactory(c.PongToken))
	}
	return KeepAliveHandlerIgnore
}
