package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPath is the backend's audio endpoint.
const DefaultPath = "/ws/audio"

// Connection defaults.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024
	DefaultCloseGracePeriod = 2 * time.Second
)

// ErrNotConnected is returned by Send and SendControl when the connection is not open.
var ErrNotConnected = errors.New("not connected")

// State is the lifecycle of a Client.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures Dial.
type Config struct {
	// URL is the websocket endpoint, see Endpoint.
	URL              string
	Header           http.Header
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	CloseGracePeriod time.Duration
	Logger           *slog.Logger
}

func (c *Config) defaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.CloseGracePeriod <= 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Endpoint builds the websocket URL for origin. http maps to ws and https to
// wss; ws and wss are kept. An empty path means DefaultPath.
func Endpoint(origin, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", origin)
	}
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Inbound is one frame from the backend: either Event or Audio is set.
type Inbound struct {
	Event *Event
	Audio []byte
}

// Client is one websocket connection to the backend. Read must be called from
// a single goroutine; Send, SendControl and Close are safe to call concurrently.
type Client struct {
	cfg  Config
	conn *websocket.Conn
	log  *slog.Logger

	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens the connection.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.defaults()
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	cfg.Logger.Debug("dialing backend", "url", cfg.URL)
	ws, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect to %s: %w", cfg.URL, err)
	}
	ws.SetReadLimit(cfg.MaxMessageSize)

	c := &Client{cfg: cfg, conn: ws, log: cfg.Logger}
	c.state.Store(int32(StateOpen))
	c.log.Info("connected", "url", cfg.URL)
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Read blocks for the next frame. Binary frames are returned verbatim. A text
// frame that is not a valid event returns a *ProtocolError and the connection
// stays usable. Any other error means the connection is closed.
func (c *Client) Read() (Inbound, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		c.state.Store(int32(StateClosed))
		return Inbound{}, fmt.Errorf("read frame: %w", err)
	}
	if kind == websocket.BinaryMessage {
		return Inbound{Audio: data}, nil
	}
	ev, err := ParseEvent(data)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Event: &ev}, nil
}

// Send writes one binary frame.
func (c *Client) Send(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

// SendControl writes a JSON text frame.
func (c *Client) SendControl(ctl Control) error {
	data, err := json.Marshal(ctl)
	if err != nil {
		return fmt.Errorf("marshal control: %w", err)
	}
	return c.write(websocket.TextMessage, data)
}

func (c *Client) write(kind int, data []byte) error {
	if c.State() != StateOpen {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(kind, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close sends a normal close frame and shuts the connection. It is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		wasOpen := c.State() == StateOpen
		c.state.Store(int32(StateClosed))
		if wasOpen {
			c.writeMu.Lock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.CloseGracePeriod))
			c.writeMu.Unlock()
		}
		err = c.conn.Close()
		c.log.Info("connection closed")
	})
	return err
}

// NormalClosure reports whether err is a clean close by the peer.
func NormalClosure(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
