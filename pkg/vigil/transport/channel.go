// channel.go implements the persistent, self-healing WebSocket connection to
// the collector.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/strongdm/vigil/pkg/vigil"
)

// State is the lifecycle state of a Channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Defaults for timeouts.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// ErrStopped is returned by Connect when Disconnect ran while dialing.
var ErrStopped = errors.New("vigil transport: channel stopped")

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a connection to url presenting header.
type DialFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

// WebSocketDialer dials with gorilla/websocket.
func WebSocketDialer(handshakeTimeout time.Duration) DialFunc {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, url string, header http.Header) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// Observer receives transport events. metrics.Metrics satisfies it.
type Observer interface {
	ObserveMessageSent(msgType string)
	ObserveQueueDepth(n int)
	ObserveEviction()
	ObserveReconnectAttempt()
	ObserveState(state string)
}

// Option configures a Channel.
type Option func(*channelConfig)

type channelConfig struct {
	dial             DialFunc
	logger           *zap.Logger
	observer         Observer
	onServerError    func(ServerError)
	backoffUnit      time.Duration
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	queueCapacity    int
	now              func() time.Time
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *channelConfig) {
		c.dial = dial
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *channelConfig) {
		c.logger = logger
	}
}

// WithObserver reports transport events to o.
func WithObserver(o Observer) Option {
	return func(c *channelConfig) {
		c.observer = o
	}
}

// WithOnServerError registers a callback for "error" messages from the
// collector. It runs on the receive goroutine without the channel lock.
func WithOnServerError(fn func(ServerError)) Option {
	return func(c *channelConfig) {
		c.onServerError = fn
	}
}

// WithBackoffUnit scales the reconnect schedule (default one second).
func WithBackoffUnit(unit time.Duration) Option {
	return func(c *channelConfig) {
		c.backoffUnit = unit
	}
}

// WithHandshakeTimeout bounds the WebSocket opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *channelConfig) {
		c.handshakeTimeout = d
	}
}

// WithWriteTimeout bounds each write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *channelConfig) {
		c.writeTimeout = d
	}
}

// WithQueueCapacity overrides the offline queue capacity.
func WithQueueCapacity(n int) Option {
	return func(c *channelConfig) {
		c.queueCapacity = n
	}
}

// Channel is a long-lived connection to the collector. It authenticates with
// a register message, queues messages while not authenticated, and reconnects
// with exponential backoff after connection loss.
//
// One mutex guards the connection, state, queue and attempt counter; writes
// happen under it so the socket has a single writer. Dialing and backoff
// delays never hold it.
//
// A message sent immediately can overtake messages still waiting in the queue
// if it races a flush on another goroutine; order is preserved within the
// queue itself.
//
// Channel implements vigil.Sink.
type Channel struct {
	url      string
	identity Identity

	dial             DialFunc
	logger           *zap.Logger
	observer         Observer
	onServerError    func(ServerError)
	backoffUnit      time.Duration
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	now              func() time.Time

	mu            sync.Mutex
	conn          Conn
	state         State
	authenticated bool
	queue         *Queue
	attempts      int
	timer         *time.Timer
	timerSeq      uint64
	dialSeq       uint64
	generation    uint64
	stopped       bool
}

// NewChannel creates a disconnected channel to url. Call Connect to start it.
func NewChannel(url string, identity Identity, opts ...Option) *Channel {
	cfg := &channelConfig{
		backoffUnit:      DefaultBackoffUnit,
		handshakeTimeout: DefaultHandshakeTimeout,
		writeTimeout:     DefaultWriteTimeout,
		queueCapacity:    DefaultQueueCapacity,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dial == nil {
		cfg.dial = WebSocketDialer(cfg.handshakeTimeout)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.observer == nil {
		cfg.observer = noopObserver{}
	}

	return &Channel{
		url:              url,
		identity:         identity,
		dial:             cfg.dial,
		logger:           cfg.logger,
		observer:         cfg.observer,
		onServerError:    cfg.onServerError,
		backoffUnit:      cfg.backoffUnit,
		handshakeTimeout: cfg.handshakeTimeout,
		writeTimeout:     cfg.writeTimeout,
		now:              cfg.now,
		queue:            NewQueue(cfg.queueCapacity),
		state:            StateDisconnected,
	}
}

// Connect dials the collector and sends the register message. It is a no-op
// while connecting or connected. On failure a reconnect is scheduled and the
// dial error is returned. Connect re-enables automatic reconnection after
// Disconnect and starts a fresh attempt budget.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateAuthenticated:
		c.mu.Unlock()
		return nil
	}
	c.stopped = false
	c.attempts = 0
	c.stopTimerLocked()
	c.setStateLocked(StateConnecting)
	c.dialSeq++
	seq := c.dialSeq
	c.mu.Unlock()

	return c.dialAndStart(ctx, seq)
}

// dialAndStart runs with the channel in StateConnecting. seq identifies the
// dial; if Disconnect or another Connect superseded it, the result is discarded.
func (c *Channel) dialAndStart(ctx context.Context, seq uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.identity.APIKey)
	conn, err := c.dial(dialCtx, c.url, header)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || seq != c.dialSeq {
		if conn != nil {
			_ = conn.Close()
		}
		return ErrStopped
	}
	if err != nil {
		c.logger.Warn("vigil: connect failed", zap.String("url", c.url), zap.Error(err))
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		return fmt.Errorf("vigil transport: connect: %w", err)
	}

	c.generation++
	gen := c.generation
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.logger.Info("vigil: connected", zap.String("url", c.url))

	register, err := NewRegisterMessage(c.identity, c.now())
	if err != nil {
		c.handleLossLocked(gen, err)
		return err
	}
	if err := c.writeLocked(register); err != nil {
		c.handleLossLocked(gen, err)
		return fmt.Errorf("vigil transport: register: %w", err)
	}

	go c.receive(conn, gen)
	return nil
}

// receive reads until the connection fails. gen ties the loop to one
// connection so a stale loop cannot disturb a newer one.
func (c *Channel) receive(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.handleLossLocked(gen, err)
			c.mu.Unlock()
			return
		}
		c.handleMessage(gen, data)
	}
}

func (c *Channel) handleMessage(gen uint64, data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		c.logger.Debug("vigil: ignoring inbound message", zap.Error(err))
		return
	}

	switch env.Type {
	case TypeRegistered:
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation || c.conn == nil {
			return
		}
		c.authenticated = true
		c.setStateLocked(StateAuthenticated)
		c.logger.Info("vigil: authenticated", zap.Int("queued", c.queue.Len()))
		c.flushQueueLocked()

	case TypeError:
		se := ParseServerError(env.Payload)
		c.logger.Warn("vigil: collector reported error",
			zap.String("code", se.Code),
			zap.String("message", se.Message),
		)
		if c.onServerError != nil {
			c.onServerError(se)
		}

	default:
		c.logger.Debug("vigil: ignoring unknown message type", zap.String("type", env.Type))
	}
}

// Send writes msg now if authenticated, otherwise queues it. A failed write
// queues the message and triggers reconnection.
func (c *Channel) Send(msg Outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authenticated && c.conn != nil {
		err := c.writeLocked(msg)
		if err == nil {
			return
		}
		c.enqueueLocked(msg)
		c.handleLossLocked(c.generation, err)
		return
	}
	c.enqueueLocked(msg)
}

// Write makes Channel a vigil.Sink: the record is sent as an exception
// message. It fails only if the record cannot be encoded.
func (c *Channel) Write(ctx context.Context, record vigil.CaptureRecord) error {
	msg, err := NewExceptionMessage(record, c.identity, c.now())
	if err != nil {
		return err
	}
	c.Send(msg)
	return nil
}

// Flush waits until the queue is empty or ctx is done.
func (c *Channel) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		if c.authenticated {
			c.flushQueueLocked()
		}
		n := c.queue.Len()
		c.mu.Unlock()
		if n == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("vigil transport: %d messages still queued: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close disconnects. Queued messages are kept in memory but never sent.
func (c *Channel) Close() error {
	c.Disconnect()
	return nil
}

// Disconnect closes the connection and stops automatic reconnection until
// the next Connect. Safe to call repeatedly. Later sends are queued.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.stopTimerLocked()
	c.dialSeq++
	c.generation++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.authenticated = false
	c.setStateLocked(StateDisconnected)
}

// IsAuthenticated reports whether the collector acknowledged registration on
// the current connection.
func (c *Channel) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen returns the number of messages waiting for authentication.
func (c *Channel) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// ReconnectAttempts returns how many reconnects have been scheduled since the
// last successful connection.
func (c *Channel) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Channel) writeLocked(msg Outbound) error {
	if err := c.conn.SetWriteDeadline(c.now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
		return err
	}
	c.observer.ObserveMessageSent(msg.Type)
	return nil
}

func (c *Channel) enqueueLocked(msg Outbound) {
	if c.queue.PushBack(msg) {
		c.observer.ObserveEviction()
		c.logger.Debug("vigil: queue full, dropped oldest message")
	}
	c.observer.ObserveQueueDepth(c.queue.Len())
}

// flushQueueLocked drains the queue in FIFO order. On a write failure the
// message goes back to the front and the connection is treated as lost.
func (c *Channel) flushQueueLocked() {
	defer func() { c.observer.ObserveQueueDepth(c.queue.Len()) }()

	for c.conn != nil {
		msg, ok := c.queue.PopFront()
		if !ok {
			return
		}
		if err := c.writeLocked(msg); err != nil {
			c.queue.PushFront(msg)
			c.handleLossLocked(c.generation, err)
			return
		}
	}
}

// handleLossLocked tears down the connection identified by gen and schedules
// a reconnect. Calls for an older generation are ignored.
func (c *Channel) handleLossLocked(gen uint64, cause error) {
	if gen != c.generation || c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.authenticated = false
	c.setStateLocked(StateDisconnected)
	c.logger.Warn("vigil: connection lost", zap.Error(cause))
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single reconnect timer. The attempt
// counter is incremented here, when the attempt is scheduled.
func (c *Channel) scheduleReconnectLocked() {
	if c.stopped || c.timer != nil {
		return
	}
	if c.attempts >= MaxReconnectAttempts {
		c.logger.Error("vigil: giving up reconnecting", zap.Int("attempts", c.attempts))
		c.setStateLocked(StateDisconnected)
		return
	}

	delay := ReconnectDelay(c.attempts, c.backoffUnit)
	c.attempts++
	c.timerSeq++
	seq := c.timerSeq
	c.timer = time.AfterFunc(delay, func() { c.reconnect(seq) })
	c.observer.ObserveReconnectAttempt()
	c.setStateLocked(StateReconnecting)
	c.logger.Info("vigil: reconnect scheduled",
		zap.Int("attempt", c.attempts),
		zap.Duration("delay", delay),
	)
}

func (c *Channel) reconnect(seq uint64) {
	c.mu.Lock()
	if c.timer == nil || seq != c.timerSeq || c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.setStateLocked(StateConnecting)
	c.dialSeq++
	dialSeq := c.dialSeq
	c.mu.Unlock()

	// Errors are logged and rescheduled inside.
	_ = c.dialAndStart(context.Background(), dialSeq)
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.observer.ObserveState(s.String())
}

type noopObserver struct{}

func (noopObserver) ObserveMessageSent(string) {}
func (noopObserver) ObserveQueueDepth(int)     {}
func (noopObserver) ObserveEviction()          {}
func (noopObserver) ObserveReconnectAttempt()  {}
func (noopObserver) ObserveState(string)       {}
