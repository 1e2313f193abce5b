package guestws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeEvent struct {
	code   int
	reason string
}

type recordingSink struct {
	opens    chan struct{}
	messages chan string
	errs     chan error
	closes   chan closeEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		opens:    make(chan struct{}, 16),
		messages: make(chan string, 16),
		errs:     make(chan error, 16),
		closes:   make(chan closeEvent, 16),
	}
}

func (s *recordingSink) OnOpen()                         { s.opens <- struct{}{} }
func (s *recordingSink) OnMessage(data []byte)           { s.messages <- string(data) }
func (s *recordingSink) OnError(err error)               { s.errs <- err }
func (s *recordingSink) OnClose(code int, reason string) { s.closes <- closeEvent{code, reason} }

func newWebsocketServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func newTestTransport(sink TransportSink) *WsTransport {
	return NewWebsocketTransport(newTestLogger(io.Discard), nil, nil, time.Second, sink)
}

func TestWsTransport_RoundTrip(t *testing.T) {
	endpoint := newWebsocketServer(t, echo)
	sink := newRecordingSink()
	transport := newTestTransport(sink)
	defer transport.Close(CloseNormalClosure, "")

	require.NoError(t, transport.Open(context.Background(), endpoint))
	assert.Len(t, sink.opens, 1)
	require.NoError(t, transport.Write(NewTextMessage([]byte("ping"))))
	require.NoError(t, transport.Write(NewTextMessage([]byte(`{"type":"message_created"}`))))

	assert.Equal(t, "ping", <-sink.messages)
	assert.Equal(t, `{"type":"message_created"}`, <-sink.messages)
}

func TestWsTransport_OpenIsReportedBeforeFirstFrame(t *testing.T) {
	endpoint := newWebsocketServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message_created"}`))
		_, _, _ = conn.ReadMessage()
	})
	sink := newRecordingSink()
	transport := newTestTransport(sink)
	defer transport.Close(CloseNormalClosure, "")

	require.NoError(t, transport.Open(context.Background(), endpoint))
	require.Len(t, sink.opens, 1)

	select {
	case msg := <-sink.messages:
		assert.Equal(t, `{"type":"message_created"}`, msg)
	case <-time.After(time.Second):
		t.Fatal("first frame not delivered")
	}
}

func TestWsTransport_PingControlFrame(t *testing.T) {
	pings := make(chan string, 1)
	endpoint := newWebsocketServer(t, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(data string) error {
			pings <- data
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	transport := newTestTransport(newRecordingSink())
	defer transport.Close(CloseNormalClosure, "")

	require.NoError(t, transport.Open(context.Background(), endpoint))
	require.NoError(t, transport.Write(NewProtocolKeepAliveMessageFactory("ping")()))

	select {
	case data := <-pings:
		assert.Equal(t, "ping", data)
	case <-time.After(time.Second):
		t.Fatal("server saw no ping frame")
	}
}

func TestWsTransport_RemoteClose(t *testing.T) {
	endpoint := newWebsocketServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	})
	sink := newRecordingSink()
	transport := newTestTransport(sink)
	defer transport.Close(CloseNormalClosure, "")

	require.NoError(t, transport.Open(context.Background(), endpoint))

	select {
	case ev := <-sink.closes:
		assert.Equal(t, closeEvent{CloseNormalClosure, "bye"}, ev)
	case <-time.After(time.Second):
		t.Fatal("no close reported")
	}
}

func TestWsTransport_RemoteDrop(t *testing.T) {
	endpoint := newWebsocketServer(t, func(conn *websocket.Conn) {
		_ = conn.UnderlyingConn().Close()
	})
	sink := newRecordingSink()
	transport := newTestTransport(sink)
	defer transport.Close(CloseNormalClosure, "")

	require.NoError(t, transport.Open(context.Background(), endpoint))

	select {
	case ev := <-sink.closes:
		assert.Equal(t, CloseAbnormalClosure, ev.code)
	case <-time.After(time.Second):
		t.Fatal("no close reported")
	}
}

func TestWsTransport_LocalClose(t *testing.T) {
	received := make(chan error, 1)
	endpoint := newWebsocketServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		received <- err
	})
	sink := newRecordingSink()
	transport := newTestTransport(sink)

	require.NoError(t, transport.Open(context.Background(), endpoint))
	transport.Close(CloseNormalClosure, "user requested")
	transport.Close(CloseNormalClosure, "user requested")

	select {
	case err := <-received:
		assert.True(t, websocket.IsCloseError(err, CloseNormalClosure), "have %v", err)
	case <-time.After(time.Second):
		t.Fatal("server saw no close frame")
	}

	assert.Never(t, func() bool { return len(sink.closes) > 0 || len(sink.errs) > 0 }, quiet, tick)
	assert.ErrorIs(t, transport.Write(NewTextMessage([]byte("late"))), ErrNotConnected)
	assert.ErrorIs(t, transport.Open(context.Background(), endpoint), ErrTerminated)
}

func TestWsTransport_WriteBeforeOpen(t *testing.T) {
	transport := newTestTransport(newRecordingSink())

	assert.ErrorIs(t, transport.Write(NewTextMessage([]byte("hello"))), ErrNotConnected)
}

func TestWsTransport_DialRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "guest unknown", http.StatusForbidden)
	}))
	defer srv.Close()

	transport := newTestTransport(newRecordingSink())
	err := transport.Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCannotConnect)
	assert.Contains(t, err.Error(), "guest unknown")

	var unrecoverable *ErrUnrecoverableConnection
	assert.True(t, errors.As(err, &unrecoverable))
}

func TestWsTransport_DialErrorAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	errExpired := errors.New("token expired")
	transport := newTestTransport(newRecordingSink()).
		WithDialErrorAdapter(func(resp *http.Response, err error) error {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return errExpired
			}
			return err
		})

	err := transport.Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))

	assert.ErrorIs(t, err, errExpired)
}

func TestWebsocketTransportFactory(t *testing.T) {
	endpoint := newWebsocketServer(t, echo)
	factory := NewWebsocketTransportFactory(newTestLogger(io.Discard), nil, http.Header{"X-Guest": {"1"}}, 0)

	sink := newRecordingSink()
	transport := factory(sink)
	defer transport.Close(CloseNormalClosure, "")

	require.NoError(t, transport.Open(context.Background(), endpoint))
	require.NoError(t, transport.Write(NewTextMessage([]byte("hi"))))
	assert.Equal(t, "hi", <-sink.messages)
}
