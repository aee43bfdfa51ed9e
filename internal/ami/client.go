package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

var (
	ErrNotConnected   = errors.New("AMI not connected")
	ErrConnectionLost = errors.New("AMI connection lost")
	ErrClosed         = errors.New("AMI client closed")
	ErrConnecting     = errors.New("AMI connection attempt in progress")
	ErrAuthFailed     = errors.New("AMI authentication failed")
)

// CommandError is a manager "Response: Error" to a command.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("AMI command %q failed: %s", e.Command, e.Message)
}

type Config struct {
	Host                 string
	Port                 int
	Username             string
	Password             string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	CommandTimeout       time.Duration
	DialTimeout          time.Duration
}

// Dialer opens the manager connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Option func(*Client)

func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.sched = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithEvents replaces the default event allow-list.
func WithEvents(names ...EventName) Option {
	return func(c *Client) { c.allowed = mapset.NewSet(names...) }
}

// ConnectionStatus is a point-in-time view of a Client.
type ConnectionStatus struct {
	Connected         bool   `json:"connected"`
	State             string `json:"state"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}

// Client holds one manager connection and keeps it alive.
//
// Commands are serialized: a single slot guards the connection, queued
// callers wait on their context, and a command without a deadline gets
// Config.CommandTimeout. Subscriptions belong to the Client rather than to a
// connection, so reconnects never register handlers twice.
type Client struct {
	cfg     Config
	log     *zap.Logger
	sched   Scheduler
	dialer  Dialer
	allowed mapset.Set[EventName]
	bus     *Bus
	notes   notifier

	slot chan struct{}
	seq  atomic.Uint64

	mu       sync.Mutex
	state    State
	attempts int
	conn     net.Conn
	gen      uint64
	pending  map[string]chan *Message
	timer    Timer
	closed   bool
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		log:     zap.NewNop(),
		sched:   realScheduler{},
		dialer:  &net.Dialer{},
		allowed: mapset.NewSet(DefaultEvents...),
		bus:     NewBus(),
		slot:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionStatus{
		Connected:         c.state == StateConnected,
		State:             c.state.String(),
		Host:              c.cfg.Host,
		Port:              c.cfg.Port,
		ReconnectAttempts: c.attempts,
	}
}

// Subscribe registers h for events on topic. The returned func removes it.
func (c *Client) Subscribe(topic Topic, h Handler) func() {
	return c.bus.Subscribe(topic, h)
}

// OnNotification registers h for lifecycle and reload notifications.
func (c *Client) OnNotification(h func(Notification)) func() {
	return c.notes.subscribe(h)
}

// Notify publishes n to notification subscribers.
func (c *Client) Notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	c.notes.emit(n)
}

// Connect opens and authenticates the manager session. It is valid from
// Disconnected and Exhausted; the latter restarts the reconnect budget.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return ErrConnecting
	case StateExhausted:
		c.attempts = 0
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// A manual attempt in the middle of a reconnect cycle keeps the cycle going.
	retry := c.attempts > 0
	c.state = StateConnecting
	c.mu.Unlock()

	return c.establish(ctx, retry)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.timer = nil
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	attempt := c.attempts
	c.mu.Unlock()

	c.log.Info("reconnecting to AMI",
		zap.Int("attempt", attempt),
		zap.Int("max", c.cfg.MaxReconnectAttempts))

	ctx, cancel := context.WithTimeout(context.Background(), 2*c.cfg.DialTimeout)
	defer cancel()
	_ = c.establish(ctx, true)
}

func (c *Client) establish(ctx context.Context, retry bool) error {
	c.log.Info("connecting to AMI", zap.String("addr", c.Address()))

	conn, r, err := c.handshake(ctx)

	c.mu.Lock()
	if err == nil && c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	if err != nil {
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()

		c.log.Warn("AMI connect failed", zap.Error(err))
		c.Notify(Notification{Kind: NotifyError, Err: err})
		if retry {
			c.scheduleReconnect()
		}
		return err
	}

	c.gen++
	gen := c.gen
	c.conn = conn
	c.pending = make(map[string]chan *Message)
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	go c.readLoop(gen, conn, r)

	c.log.Info("AMI connected", zap.String("addr", c.Address()))
	c.Notify(Notification{Kind: NotifyConnected})
	return nil
}

func (c *Client) handshake(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.Address())
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.Address(), err)
	}

	deadline := time.Now().Add(c.cfg.DialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	r := bufio.NewReader(conn)
	if _, err := readBanner(r); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("read banner: %w", err)
	}

	id := c.nextActionID()
	login := encodeAction("Login", id,
		header{"Username", c.cfg.Username},
		header{"Secret", c.cfg.Password},
		header{"Events", "on"},
	)
	if _, err := conn.Write(login); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("send login: %w", err)
	}

	for {
		msg, err := readMessage(r)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("read login response: %w", err)
		}
		if msg.IsEvent() || msg.ActionID() != id {
			continue
		}
		if !msg.Success() {
			conn.Close()
			return nil, nil, fmt.Errorf("%w: %s", ErrAuthFailed, msg.Get("Message"))
		}
		break
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, r, nil
}

func (c *Client) readLoop(gen uint64, conn net.Conn, r *bufio.Reader) {
	for {
		msg, err := readMessage(r)
		if err != nil {
			c.handleDrop(gen, err)
			return
		}

		if msg.IsEvent() {
			c.dispatch(msg)
			continue
		}
		if id := msg.ActionID(); id != "" {
			c.deliver(id, msg)
		}
	}
}

func (c *Client) dispatch(msg *Message) {
	name := EventName(msg.Get("Event"))
	if !c.allowed.Contains(name) {
		return
	}

	fields := make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		fields[k] = v
	}
	ev := Event{Name: name, Fields: fields, Received: time.Now()}

	c.log.Debug("AMI event", zap.String("event", string(name)), zap.String("subject", ev.Subject()))
	c.bus.Publish(ev)
}

func (c *Client) deliver(id string, msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	ch <- msg
}

func (c *Client) handleDrop(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.conn.Close()
	c.conn = nil
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	c.log.Warn("AMI disconnected", zap.Error(cause))
	c.Notify(Notification{Kind: NotifyDisconnected, Err: cause})
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.timer != nil || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.state = StateExhausted
		attempts := c.attempts
		c.mu.Unlock()

		c.log.Error("AMI max reconnection attempts reached", zap.Int("attempts", attempts))
		c.Notify(Notification{Kind: NotifyReconnectFailed, Attempt: attempts})
		return
	}
	c.attempts++
	attempt := c.attempts
	c.timer = c.sched.AfterFunc(c.cfg.ReconnectDelay, c.reconnect)
	c.mu.Unlock()

	c.log.Info("AMI reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Int("max", c.cfg.MaxReconnectAttempts),
		zap.Duration("delay", c.cfg.ReconnectDelay))
	c.Notify(Notification{Kind: NotifyReconnectScheduled, Attempt: attempt})
}

// SendCommand runs a CLI command through the manager and returns its output.
// It fails with ErrNotConnected without touching the network unless the
// client is connected.
func (c *Client) SendCommand(ctx context.Context, command string) (string, error) {
	if c.State() != StateConnected {
		return "", ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CommandTimeout)
		defer cancel()
	}

	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for command slot: %w", ctx.Err())
	}
	defer func() { <-c.slot }()

	c.log.Debug("sending AMI command", zap.String("command", command))

	resp, err := c.action(ctx, "Command", header{"Command", command})
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", &CommandError{Command: command, Message: resp.Get("Message")}
	}
	return resp.Text(), nil
}

func (c *Client) action(ctx context.Context, name string, fields ...header) (*Message, error) {
	id := c.nextActionID()
	ch := make(chan *Message, 1)

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	c.pending[id] = ch
	c.mu.Unlock()

	if d, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(d)
	}
	if _, err := conn.Write(encodeAction(name, id, fields...)); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("send %s: %w", name, err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		return msg, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) nextActionID() string {
	return "gui-" + strconv.FormatUint(c.seq.Add(1), 10)
}

// Close tears the connection down and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	wasConnected := c.state == StateConnected
	conn := c.conn
	pending := c.pending
	c.conn = nil
	c.pending = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	var err error
	if conn != nil {
		// Best effort; the session ends either way.
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = conn.Write(encodeAction("Logoff", c.nextActionID()))
		err = conn.Close()
	}
	if wasConnected {
		c.log.Info("AMI connection closed")
		c.Notify(Notification{Kind: NotifyDisconnected, Err: ErrClosed})
	}
	return err
}
