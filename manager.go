package guestws

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const eventBufferSize = 64

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdReconnect
)

type command struct {
	kind     commandKind
	identity string
	reply    chan error
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventAttemptFailed
	eventMessage
	eventError
	eventClosed
)

type transportEvent struct {
	generation uint64
	kind       eventKind
	transport  Transport
	data       []byte
	err        error
	code       int
	reason     string
}

// transportSink binds a transport's callbacks to the generation it was created for.
type transportSink struct {
	generation uint64
	manager    *Manager
	transport  Transport
}

func (s *transportSink) OnOpen() {
	s.manager.post(transportEvent{generation: s.generation, kind: eventOpened, transport: s.transport})
}

func (s *transportSink) OnMessage(data []byte) {
	s.manager.post(transportEvent{generation: s.generation, kind: eventMessage, data: data})
}

func (s *transportSink) OnError(err error) {
	s.manager.post(transportEvent{generation: s.generation, kind: eventError, err: err})
}

func (s *transportSink) OnClose(code int, reason string) {
	s.manager.post(transportEvent{generation: s.generation, kind: eventClosed, code: code, reason: reason})
}

// Manager owns one live session: it asks the broker for a descriptor, opens the
// transport, keeps it alive with a heartbeat and rebuilds it after abnormal closes.
//
// Every state change, timer and transport event is handled by a single loop
// goroutine, so the transport, the timers and the identity are never shared.
// Consumers and state listeners run on that loop: they may Subscribe, Unregister and
// Send freely but must call Connect, Disconnect or Reconnect from another goroutine.
type Manager struct {
	logger     Logger
	broker     SessionBroker
	transports TransportFactory
	clock      clockwork.Clock
	codec      Codec
	passive    PassiveKeepAliveHandler
	consumers  *ConsumerRegistry
	emitter    *EventEmitterCallback[EventType, Status]

	commands  chan command
	events    chan transportEvent
	outbound  *outboundQueue
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	statusMu sync.RWMutex
	status   Status

	// Loop owned.
	state         State
	reason        CloseReason
	closeCode     int
	identity      string
	generation    uint64
	transport     Transport
	cancelAttempt context.CancelFunc
	heartbeat     *heartbeat
	reconnect     *reconnectScheduler
	watchdog      *staleWatchdog
	reconnects    int
	sessionID     string
}

func NewManager(
	logger Logger,
	broker SessionBroker,
	transports TransportFactory,
	cfg ManagerConfig,
) *Manager {
	cfg.applyDefaults()

	m := &Manager{
		logger:     logger.WithField("component", "manager"),
		broker:     broker,
		transports: transports,
		clock:      cfg.Clock,
		codec:      cfg.codec(),
		passive:    cfg.passiveKeepAlive(),
		consumers:  NewConsumerRegistry(logger),
		emitter:    NewEventEmitter[EventType, Status](),
		commands:   make(chan command),
		events:     make(chan transportEvent, eventBufferSize),
		outbound:   newOutboundQueue(),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		heartbeat:  newHeartbeat(cfg.Clock, cfg.HeartbeatInterval, cfg.keepAlive()),
		reconnect:  newReconnectScheduler(cfg.Clock, cfg.ReconnectPolicy),
		watchdog:   newStaleWatchdog(cfg.Clock, cfg.PongTimeout),
	}
	m.status = Status{State: StateIdle, Since: cfg.Clock.Now()}

	go m.run()

	return m
}

func (m *Manager) Connect(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrNoIdentity
	}
	return m.request(ctx, command{kind: cmdConnect, identity: identity})
}

// Disconnect returns once timers are cancelled and the transport close was requested.
func (m *Manager) Disconnect() {
	_ = m.request(context.Background(), command{kind: cmdDisconnect})
}

func (m *Manager) Reconnect(ctx context.Context) error {
	return m.request(ctx, command{kind: cmdReconnect})
}

// Send queues text for the loop and returns immediately. It is safe to call from a
// consumer. Text still queued when the connection is not open is dropped.
func (m *Manager) Send(text string) {
	select {
	case <-m.done:
		return
	default:
	}
	m.outbound.push(text)
}

func (m *Manager) Subscribe(handler NotificationHandler) *Registration {
	return m.consumers.Register(handler)
}

func (m *Manager) OnStateChange(handler StateHandler) {
	m.On(EventStateChange, handler)
}

// On registers handler for one manager event.
func (m *Manager) On(event EventType, handler StateHandler) {
	m.emitter.On(event, func(s Status) {
		defer func() {
			if rec := recover(); rec != nil {
				m.logger.Errorf("state listener panicked on %s: %v", event, rec)
			}
		}()
		handler(s)
	})
}

func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()

	return m.status
}

// Close disconnects and stops the loop. It is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
	})
	<-m.done
}

func (m *Manager) request(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)

	select {
	case m.commands <- c:
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-c.reply
}

func (m *Manager) post(ev transportEvent) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) run() {
	defer close(m.done)

	for {
		select {
		case <-m.quit:
			m.disconnect()
			m.emitter.Close()
			return
		case <-m.outbound.ready():
			m.flushOutbound()
		case c := <-m.commands:
			m.flushOutbound()
			m.handleCommand(c)
		case ev := <-m.events:
			m.flushOutbound()
			m.handleEvent(ev)
		case <-m.heartbeat.C():
			m.onHeartbeat()
		case <-m.reconnect.C():
			m.onReconnectTimer()
		case <-m.watchdog.C():
			m.onStale()
		}
	}
}

func (m *Manager) handleCommand(c command) {
	switch c.kind {
	case cmdConnect:
		c.reply <- m.connect(c.identity)
	case cmdDisconnect:
		m.disconnect()
		c.reply <- nil
	case cmdReconnect:
		c.reply <- m.reconnectNow()
	}
}

// flushOutbound writes everything queued by Send, in order.
func (m *Manager) flushOutbound() {
	for _, text := range m.outbound.drain() {
		m.send(NewTextMessage([]byte(text)))
	}
}

func (m *Manager) connect(identity string) error {
	if m.state == StateConnecting || m.state == StateOpen {
		m.logger.Infof("connection already in progress for %s, skipping request for %s", m.identity, identity)
		return ErrConnectInProgress
	}

	if m.reconnect.cancel() {
		m.logger.Debugln("manual connect supersedes the pending reconnect")
	}

	m.identity = identity
	m.startAttempt()

	return nil
}

func (m *Manager) disconnect() {
	if m.state == StateClosed && m.reason == ReasonUserRequested {
		return
	}

	m.identity = ""
	m.reconnect.cancel()

	if m.transport != nil {
		m.setState(StateClosing, ReasonNone, nil, 0)
	}
	m.teardown(CloseNormalClosure, "user requested")

	m.setState(StateClosed, ReasonUserRequested, nil, CloseNormalClosure)
}

func (m *Manager) reconnectNow() error {
	identity := m.identity
	if identity == "" {
		return ErrNoIdentity
	}

	m.disconnect()

	return m.connect(identity)
}

func (m *Manager) send(msg Message) {
	if m.state != StateOpen || m.transport == nil {
		m.logger.Warnf("not connected, dropping outbound %s", msg)
		return
	}
	if err := m.transport.Write(msg); err != nil {
		m.logger.Warnf("cannot send %s: %s", msg, err)
	}
}

// startAttempt creates a transport bound to a new generation and fetches the descriptor
// and dials off the loop.
func (m *Manager) startAttempt() {
	m.generation++
	m.sessionID = uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelAttempt = cancel

	sink := &transportSink{generation: m.generation, manager: m}
	t := m.transports(sink)
	sink.transport = t
	m.transport = t

	m.setState(StateConnecting, ReasonNone, nil, 0)

	go m.attempt(ctx, m.generation, m.identity, t)
}

func (m *Manager) attempt(ctx context.Context, generation uint64, identity string, t Transport) {
	logger := m.logger.WithField("identity", identity)

	descriptor, err := m.broker.Connect(ctx, identity)
	if err != nil {
		m.post(transportEvent{generation: generation, kind: eventAttemptFailed, err: err})
		return
	}

	logger.Infof("opening connection to %s as %s (%s)",
		descriptor.EndpointURL, descriptor.IdentityID, descriptor.IdentityRole)

	// Success is reported by the transport through OnOpen, ahead of its first frame.
	if err := t.Open(ctx, descriptor.EndpointURL); err != nil {
		m.post(transportEvent{generation: generation, kind: eventAttemptFailed, err: err})
	}
}

// teardown detaches and closes the current transport and stops the session timers.
// The reconnect timer is left alone.
func (m *Manager) teardown(code int, reason string) {
	if m.cancelAttempt != nil {
		m.cancelAttempt()
		m.cancelAttempt = nil
	}

	m.heartbeat.stop()
	m.watchdog.disarm()

	if m.transport != nil {
		t := m.transport
		m.transport = nil
		t.Close(code, reason)
	}

	m.generation++
}

func (m *Manager) handleEvent(ev transportEvent) {
	if ev.generation != m.generation || m.transport == nil {
		if ev.kind == eventOpened && ev.transport != nil {
			ev.transport.Close(CloseNormalClosure, "attempt abandoned")
		}
		m.logger.Debugf("ignoring event %d from a detached transport", ev.kind)
		return
	}

	switch ev.kind {
	case eventOpened:
		m.onOpened()
	case eventAttemptFailed:
		m.onAttemptFailed(ev.err)
	case eventMessage:
		m.onMessage(ev.data)
	case eventError:
		m.onTransportError(ev.err)
	case eventClosed:
		m.onClosed(ev.code, ev.reason)
	}
}

func (m *Manager) onOpened() {
	if m.state != StateConnecting {
		return
	}

	if m.cancelAttempt != nil {
		m.cancelAttempt()
		m.cancelAttempt = nil
	}

	m.logger.Infof("connection open for %s", m.identity)

	m.reconnect.reset()
	m.heartbeat.start()
	m.watchdog.arm()

	m.setState(StateOpen, ReasonNone, nil, 0)
	m.emit(EventOpen)
}

func (m *Manager) onAttemptFailed(err error) {
	m.logger.Errorf("connection attempt failed: %s", err)

	m.teardown(CloseNormalClosure, "attempt failed")
	m.setState(StateClosed, ReasonError, err, 0)
	m.emit(EventClose)
}

func (m *Manager) onMessage(data []byte) {
	if m.state != StateOpen {
		return
	}

	m.watchdog.arm()

	frame, err := m.codec.Decode(data, m.clock.Now())
	if err != nil {
		m.logger.Warnf("dropping frame %q: %s", data, err)
		return
	}

	switch frame.Kind {
	case FramePing:
		m.logger.Debugln("<= [PING]")
		m.passive(m.transport, frame)
		return
	case FramePong:
		m.logger.Debugln("<= [PONG]")
	}

	m.consumers.Dispatch(frame.Notification)
}

func (m *Manager) onTransportError(err error) {
	m.logger.Errorf("transport error: %s", err)

	if m.state == StateConnecting {
		m.onAttemptFailed(err)
		return
	}

	// Not a transition: listeners are not notified.
	m.statusMu.Lock()
	m.status.Err = err
	m.statusMu.Unlock()
}

func (m *Manager) onClosed(code int, reason string) {
	wasOpen := m.state == StateOpen
	closeErr := CloseError{Code: code, Reason: reason}

	m.logger.Infof("connection closed: %s", closeErr)
	m.teardown(code, reason)

	switch {
	case !wasOpen:
		m.setState(StateClosed, ReasonError, closeErr, code)
	case closeErr.Normal():
		m.setState(StateClosed, ReasonNormal, nil, code)
	default:
		m.scheduleReconnect()
		m.setState(StateClosed, ReasonAbnormal, closeErr, code)
	}

	m.emit(EventClose)
}

func (m *Manager) onHeartbeat() {
	if m.state != StateOpen || m.transport == nil {
		return
	}
	if err := m.transport.Write(m.heartbeat.message()); err != nil {
		m.logger.Warnf("cannot send heartbeat: %s", err)
	}
}

func (m *Manager) onReconnectTimer() {
	m.reconnect.fired()

	if m.identity == "" || m.state == StateConnecting || m.state == StateOpen {
		return
	}

	m.reconnects++
	m.logger.Infof("reconnecting as %s (attempt %d)", m.identity, m.reconnects)

	m.startAttempt()
	m.emit(EventReconnect)
}

func (m *Manager) onStale() {
	m.watchdog.fired()

	if m.state != StateOpen {
		return
	}

	m.logger.Warnf("no inbound frame within %s, dropping connection", m.watchdog.timeout)

	m.teardown(CloseGoingAway, "stale connection")
	m.scheduleReconnect()
	m.setState(StateClosed, ReasonAbnormal, ErrStaleConnection, CloseAbnormalClosure)
	m.emit(EventClose)
}

func (m *Manager) scheduleReconnect() {
	if m.identity == "" {
		return
	}

	delay := m.reconnect.schedule()
	if delay == backoff.Stop {
		m.logger.Warnf("reconnect policy gave up for %s", m.identity)
		return
	}

	m.logger.Infof("reconnect for %s scheduled in %s", m.identity, delay)
}

func (m *Manager) setState(state State, reason CloseReason, err error, code int) {
	m.state = state
	m.reason = reason
	m.closeCode = code

	status := Status{
		State:      state,
		Reason:     reason,
		Identity:   m.identity,
		Err:        err,
		CloseCode:  code,
		Reconnects: m.reconnects,
		SessionID:  m.sessionID,
		Since:      m.clock.Now(),
	}

	m.statusMu.Lock()
	m.status = status
	m.statusMu.Unlock()

	m.logger.Debugf("state -> %s", status)
	m.emitter.Emit(EventStateChange, status)
}

func (m *Manager) emit(event EventType) {
	m.emitter.Emit(event, m.Status())
}

// outboundQueue holds text queued by Send until the loop picks it up. push never
// blocks, so Send can be called from the loop itself.
type outboundQueue struct {
	mu      sync.Mutex
	pending []string
	signal  chan struct{}
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{signal: make(chan struct{}, 1)}
}

func (q *outboundQueue) push(text string) {
	q.mu.Lock()
	q.pending = append(q.pending, text)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *outboundQueue) ready() <-chan struct{} {
	return q.signal
}

func (q *outboundQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.pending
	q.pending = nil
	return pending
}
