package guestws

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed  = errors.New("connection has been closed")
	ErrCannotConnect     = errors.New("connection cannot be established")
	ErrTerminated        = errors.New("connection terminated locally")
	ErrConnectInProgress = errors.New("connection already in progress")
	ErrNoIdentity        = errors.New("no identity on record")
	ErrNotConnected      = errors.New("not connected")
	ErrStaleConnection   = errors.New("connection stale (no inbound frame)")
	ErrManagerClosed     = errors.New("manager has been closed")
	ErrDecode            = errors.New("cannot decode frame")
)

// BrokerError is returned when the session broker answered but refused to hand out a
// connection descriptor. Message is the broker's own text, suitable for display.
type BrokerError struct {
	Message string
}

func (e BrokerError) Error() string { return e.Message }

// CloseError describes a transport that was closed by the remote end.
type CloseError struct {
	Code   int
	Reason string
}

func (e CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed with code %d", e.Code)
	}
	return fmt.Sprintf("connection closed with code %d: %s", e.Code, e.Reason)
}

// Normal reports whether the close was an intentional one (1000).
func (e CloseError) Normal() bool { return e.Code == CloseNormalClosure }

type ErrUnrecoverableConnection struct {
	err error
	url url.URL
}

func (e ErrUnrecoverableConnection) Error() string {
	return fmt.Sprintf("Unrecoverable connection error: %s to %s", e.err, e.url.String())
}

func (e ErrUnrecoverableConnection) Unwrap() error { return e.err }

func WrapErrorUnrecoverableConnection(err error, url url.URL) *ErrUnrecoverableConnection {
	if err == nil {
		return nil
	}
	return &ErrUnrecoverableConnection{
		err: err,
		url: url,
	}
}
