package guestws

import (
	"context"
	"sync"
)

type fakeTransport struct {
	sink        TransportSink
	openFn      func(ctx context.Context, endpoint string) error
	afterOpenFn func(t *fakeTransport)

	mu        sync.Mutex
	endpoint  string
	opened    bool
	closed    bool
	closeCode int
	writes    []Message
}

func (f *fakeTransport) Open(ctx context.Context, endpoint string) error {
	f.mu.Lock()
	f.endpoint = endpoint
	fn := f.openFn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, endpoint); err != nil {
			return err
		}
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrTerminated
	}
	f.opened = true
	after := f.afterOpenFn
	f.mu.Unlock()

	f.sink.OnOpen()

	// The remote may talk before Open returns, as a websocket read loop would.
	if after != nil {
		after(f)
	}
	return nil
}

func (f *fakeTransport) Write(m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened || f.closed {
		return ErrNotConnected
	}
	f.writes = append(f.writes, m)
	return nil
}

func (f *fakeTransport) Close(code int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.closeCode = code
}

// receive, drop and fail play the remote end.
func (f *fakeTransport) receive(text string) { f.sink.OnMessage([]byte(text)) }

func (f *fakeTransport) drop(code int, reason string) { f.sink.OnClose(code, reason) }

func (f *fakeTransport) fail(err error) { f.sink.OnError(err) }

func (f *fakeTransport) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	texts := make([]string, 0, len(f.writes))
	for _, m := range f.writes {
		texts = append(texts, string(m.Data()))
	}
	return texts
}

func (f *fakeTransport) writtenTypes() []MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]MessageType, 0, len(f.writes))
	for _, m := range f.writes {
		types = append(types, m.Type())
	}
	return types
}

func (f *fakeTransport) isClosed() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed, f.closeCode
}

func (f *fakeTransport) dialed() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.endpoint
}

type fakeTransportFactory struct {
	mu          sync.Mutex
	openFn      func(ctx context.Context, endpoint string) error
	afterOpenFn func(t *fakeTransport)
	transports  []*fakeTransport
}

func (f *fakeTransportFactory) New(sink TransportSink) Transport {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTransport{sink: sink, openFn: f.openFn, afterOpenFn: f.afterOpenFn}
	f.transports = append(f.transports, t)
	return t
}

// onOpen sets the Open behaviour of transports created from now on.
func (f *fakeTransportFactory) onOpen(fn func(ctx context.Context, endpoint string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.openFn = fn
}

// afterOpen runs fn inside Open, right after the open was reported.
func (f *fakeTransportFactory) afterOpen(fn func(t *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.afterOpenFn = fn
}

func (f *fakeTransportFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.transports)
}

func (f *fakeTransportFactory) at(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.transports[i]
}

func (f *fakeTransportFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.transports[len(f.transports)-1]
}
