// Package chatconn owns the realtime duplex connections of the client:
// one per open conversation plus one process-wide notification channel.
// It dials, authenticates, and recovers from unexpected closes with a
// fixed-delay retry, but never interprets frame contents.
package chatconn

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomchat/internal/auth"
)

// State of a single logical connection.
//
// Idle -> Connecting -> Open -> Closed, where Closed schedules a return
// to Connecting after RetryDelay unless the caller closed first (then
// Idle is terminal).
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// DefaultRetryDelay is the fixed pause before a reconnect attempt. There
// is no backoff and no retry cap: the connection lives as long as a
// visible client session, not a daemon.
const DefaultRetryDelay = 2 * time.Second

// ErrNotConnected is returned by Send while the transport is not open.
// Callers surface this as a visible "not delivered" state instead of
// silently dropping the frame.
var ErrNotConnected = errors.New("chatconn: transport not open")

// Handler receives every raw inbound frame, in transport order.
type Handler func(frame []byte)

// StateFunc observes state transitions of a channel.
type StateFunc func(channelKey string, s State)

// Transport is one established duplex connection.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes a Transport to a fully built channel URL.
type Dialer interface {
	Dial(rawURL string) (Transport, error)
}

// Config wires a Manager.
type Config struct {
	// WSBaseURL is the realtime endpoint root, e.g. ws://host/ws.
	WSBaseURL string
	// Tokens supplies the bearer credential, re-read on every attempt.
	Tokens auth.TokenSource
	// RetryDelay overrides DefaultRetryDelay when positive.
	RetryDelay time.Duration
	// Dialer defaults to the gorilla websocket dialer.
	Dialer Dialer
	// OnState, when set, observes every state transition.
	OnState StateFunc
}

// Manager keeps at most one live conversation transport. Opening a new
// channel tears the previous one down first, so switching conversations
// can never leave two live subscriptions delivering duplicates.
type Manager struct {
	cfg Config

	mu     sync.Mutex
	active *Conn
}

// NewManager validates the config and applies defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = gorillaDialer{}
	}
	return &Manager{cfg: cfg}
}

// Open connects to channelKey (for example "chat/17/") and starts
// delivering inbound frames to h. The previous connection, if any, is
// closed first. Connecting is asynchronous; the returned handle is
// usable immediately and Send reports ErrNotConnected until the dial
// completes.
func (m *Manager) Open(channelKey string, h Handler) *Conn {
	m.mu.Lock()
	prev := m.active
	c := newConn(m.cfg, channelKey, h)
	m.active = c
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	go c.connect()
	return c
}

// Close tears down the active connection, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	c := m.active
	m.active = nil
	m.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

// Conn is one logical channel subscription with automatic reconnection.
type Conn struct {
	cfg     Config
	key     string
	handler Handler

	mu         sync.Mutex
	state      State
	tr         Transport
	closed     bool
	retryTimer *time.Timer
}

func newConn(cfg Config, channelKey string, h Handler) *Conn {
	return &Conn{cfg: cfg, key: channelKey, handler: h, state: StateIdle}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send writes one frame. The frame is handed to the transport and the
// call returns; confirmation, when the protocol has one, arrives later
// as an inbound frame.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	tr := c.tr
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || tr == nil {
		return ErrNotConnected
	}
	if err := tr.WriteMessage(frame); err != nil {
		return fmt.Errorf("chatconn: write: %w", err)
	}
	return nil
}

// Close ends the subscription: the transport is closed, any pending
// reconnect timer is cancelled, and no further attempts are made.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	c.setState(StateIdle)
}

// connect performs one dial attempt with a freshly read credential. A
// failed dial counts as an unexpected close and schedules a retry.
func (c *Conn) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setState(StateConnecting)

	tr, err := c.cfg.Dialer.Dial(c.channelURL())
	if err != nil {
		log.Printf("chatconn: dial %s failed: %v", c.key, err)
		c.dropped()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		tr.Close()
		return
	}
	c.tr = tr
	c.mu.Unlock()
	c.setState(StateOpen)

	go c.readLoop(tr)
}

// readLoop delivers frames in transport order until the connection dies.
func (c *Conn) readLoop(tr Transport) {
	for {
		frame, err := tr.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.tr == tr {
				c.tr = nil
			}
			c.mu.Unlock()
			if !closed {
				log.Printf("chatconn: %s closed unexpectedly: %v", c.key, err)
				c.dropped()
			}
			return
		}
		c.handler(frame)
	}
}

// dropped records an unexpected closure and schedules one reconnect
// after the fixed delay, unless the caller closed in the meantime.
func (c *Conn) dropped() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setState(StateClosed)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.retryTimer = time.AfterFunc(c.cfg.RetryDelay, c.connect)
	c.mu.Unlock()
}

// channelURL builds the channel address with the current credential as a
// query parameter, the convention the backend's middleware accepts.
func (c *Conn) channelURL() string {
	base := c.cfg.WSBaseURL + "/" + c.key
	token := ""
	if c.cfg.Tokens != nil {
		token = c.cfg.Tokens()
	}
	if token == "" {
		return base
	}
	return base + "?token=" + url.QueryEscape(token)
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.cfg.OnState
	c.mu.Unlock()
	if cb != nil {
		cb(c.key, s)
	}
}

// ChatChannel is the channel key for a conversation's transport.
func ChatChannel(roomID int64) string {
	return fmt.Sprintf("chat/%d/", roomID)
}

// NotificationsChannel is the process-wide alert channel key.
const NotificationsChannel = "notifications/"

// gorillaDialer is the production Dialer.
type gorillaDialer struct{}

func (gorillaDialer) Dial(rawURL string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaTransport{conn: conn}, nil
}

// gorillaTransport adapts *websocket.Conn. Writes are serialised; gorilla
// allows only one concurrent writer.
type gorillaTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *gorillaTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *gorillaTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *gorillaTransport) Close() error {
	t.mu.Lock()
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.mu.Unlock()
	return t.conn.Close()
}
