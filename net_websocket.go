package guestws

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
	"gopkg.in/tomb.v2"
)

const defaultWriteTimeout = 5 * time.Second

type (
	ErrAdapter func(*http.Response, error) error

	// WsTransport is a Transport over a websocket connection.
	WsTransport struct {
		onDialErr    ErrAdapter
		logger       Logger
		dialer       *websocket.Dialer
		header       http.Header
		writeTimeout time.Duration
		sink         TransportSink

		mu     sync.Mutex
		conn   *websocket.Conn
		closed bool

		tmb  tomb.Tomb
		send chan Message // messages to be sent over the wire
	}
)

func NewWebsocketTransport(
	logger Logger,
	dialer *websocket.Dialer,
	header http.Header,
	writeTimeout time.Duration,
	sink TransportSink,
) *WsTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WsTransport{
		logger:       logger.WithField("net", "ws_transport"),
		dialer:       dialer,
		header:       header,
		writeTimeout: writeTimeout,
		sink:         sink,
		send:         make(chan Message),
	}
}

func NewWebsocketTransportFactory(
	logger Logger,
	dialer *websocket.Dialer,
	header http.Header,
	writeTimeout time.Duration,
) TransportFactory {
	return func(sink TransportSink) Transport {
		return NewWebsocketTransport(logger, dialer, header, writeTimeout, sink)
	}
}

// WithDialErrorAdapter overrides how dial failures are turned into errors.
func (w *WsTransport) WithDialErrorAdapter(adapter ErrAdapter) *WsTransport {
	w.onDialErr = adapter
	return w
}

// Open dials endpoint and, on success, starts the read and write loops.
func (w *WsTransport) Open(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.Wrapf(ErrCannotConnect, "invalid endpoint %q: %s", endpoint, err)
	}

	conn, resp, err := w.dialer.DialContext(ctx, u.String(), w.header)
	if err = w.handleDialError(resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", u.Redacted(), err)
		return WrapErrorUnrecoverableConnection(err, *u)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return ErrTerminated
	}
	w.conn = conn
	w.mu.Unlock()

	w.logger.Debugf("success opening connection to %s", u.Redacted())

	// Reported before the read loop starts so the open precedes every frame.
	w.sink.OnOpen()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrTerminated
	}

	w.tmb.Go(w.read)
	w.tmb.Go(w.write)

	return nil
}

// Write hands m to the write loop.
func (w *WsTransport) Write(m Message) error {
	w.mu.Lock()
	ready := w.conn != nil && !w.closed
	w.mu.Unlock()

	if !ready {
		return ErrNotConnected
	}

	select {
	case w.send <- m:
		return nil
	case <-w.tmb.Dying():
		return ErrConnectionClosed
	}
}

// Close sends a close frame and drops the socket. It does not wait for the loops to
// exit; once it returns the sink receives nothing more.
func (w *WsTransport) Close(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	if w.conn == nil {
		return
	}

	w.logger.Infof("closing connection from our side with code %d", code)

	deadline := time.Now().Add(w.writeTimeout)
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)

	w.tmb.Kill(ErrTerminated)
	_ = w.conn.Close()
}

func (w *WsTransport) read() error {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if !w.tmb.Alive() {
			return nil
		}

		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				w.logger.Infof("<= [CLOSE] %d %s", closeErr.Code, closeErr.Text)
				w.sink.OnClose(closeErr.Code, closeErr.Text)
			} else {
				w.logger.Errorf("error occurred on websocket read: %s", err)
				w.sink.OnError(errors.Wrap(ErrConnectionClosed, err.Error()))
				w.sink.OnClose(CloseAbnormalClosure, err.Error())
			}
			return errors.Wrap(ErrConnectionClosed, err.Error())
		}

		if messageType == websocket.BinaryMessage {
			w.logger.Debugln("<= [BIN]")
		} else {
			w.logger.Debugf("<= [DATA] %s", data)
		}
		w.sink.OnMessage(data)
	}
}

func (w *WsTransport) write() error {
	defer w.conn.Close()

	for {
		select {
		case <-w.tmb.Dying():
			return nil
		case msg := <-w.send:
			deadline := time.Now().Add(w.writeTimeout)
			_ = w.conn.SetWriteDeadline(deadline)

			var err error

			switch msg.Type() {
			case PingMessage:
				w.logger.Debugln("=> [PING]")
				err = w.conn.WriteControl(websocket.PingMessage, msg.Data(), deadline)
			default:
				w.logger.Debugf("=> [DATA] %s", msg.Data())
				err = w.conn.WriteMessage(websocket.TextMessage, msg.Data())
			}

			if err != nil && w.tmb.Alive() {
				w.logger.Errorf("error occurred on websocket write: %s", err)
				w.sink.OnError(errors.Wrap(ErrConnectionClosed, err.Error()))
			}
		}
	}
}

func (w *WsTransport) handleDialError(resp *http.Response, err error) error {
	if w.onDialErr != nil {
		return w.onDialErr(resp, err)
	}

	if err == nil {
		return nil
	}

	// Surface the handshake response body, brokers put the refusal reason there.
	if resp != nil && resp.Body != nil {
		if bts, readErr := io.ReadAll(resp.Body); readErr == nil && len(bts) > 0 {
			return errors.Wrapf(ErrCannotConnect, "%s (status %d: %s)", err, resp.StatusCode, bts)
		}
		return errors.Wrapf(ErrCannotConnect, "%s (status %d)", err, resp.StatusCode)
	}

	return errors.Wrap(ErrCannotConnect, err.Error())
}
