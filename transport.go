package guestws

import (
	"context"
)

type (
	// TransportSink receives the events of one transport instance. The manager binds a
	// fresh sink to every transport it creates and ignores sinks of transports it has
	// torn down.
	TransportSink interface {
		// OnOpen is called once the socket is open, before the first OnMessage or
		// OnClose of that socket.
		OnOpen()
		// OnMessage is called for every inbound text or binary frame, in delivery order.
		OnMessage(data []byte)
		// OnError reports a socket level error. It does not end the session by itself,
		// a close follows when the socket is gone.
		OnError(err error)
		// OnClose reports that the remote closed the socket, or that it dropped (1006).
		OnClose(code int, reason string)
	}

	// Transport is a bidirectional text socket.
	Transport interface {
		// Open dials endpoint and returns once the socket is open or the attempt failed.
		// A successful Open calls OnOpen on its sink before returning nil.
		Open(ctx context.Context, endpoint string) error
		// Write queues m for sending. It fails when the socket is not open.
		Write(m Message) error
		// Close sends a close frame with code and reason and releases the socket. A closed
		// transport reports nothing further to its sink.
		Close(code int, reason string)
	}

	TransportFactory func(sink TransportSink) Transport
)
