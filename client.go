package guestws

import (
	"context"
)

type (
	// Client is the surface page-level code uses: connect for an identity, observe the
	// connection state and subscribe to notifications without caring about reconnects.
	Client interface {
		// Connect starts a connection attempt for identity and returns once it is under
		// way. ErrConnectInProgress is returned while connecting or open.
		Connect(ctx context.Context, identity string) error
		// Disconnect closes the session and cancels any pending reconnect.
		Disconnect()
		// Reconnect is Disconnect followed by Connect with the identity on record.
		Reconnect(ctx context.Context) error
		// Send writes text if the connection is open and drops it otherwise.
		Send(text string)
		// Subscribe registers a notification consumer.
		Subscribe(handler NotificationHandler) *Registration
		// OnStateChange registers a listener for every state transition.
		OnStateChange(handler StateHandler)
		// Status returns the current connection state.
		Status() Status
		// Close disconnects and releases the client.
		Close()
	}
)

var _ Client = (*Manager)(nil)
