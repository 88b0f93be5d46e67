// Package streamclient follows a game's websocket stream and reconnects when the link drops.
package streamclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/pkg/chessdto"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var ErrClosed = errors.New("stream client closed")

const (
	defaultPingInterval = 30 * time.Second
	defaultDialTimeout  = 10 * time.Second
	pingTimeout         = 3 * time.Second
	readLimit           = 1 << 20
)

type FrameFunc func(chessdto.StreamFrame)

type StateFunc func(State)

type frameEntry struct {
	id int
	fn FrameFunc
}

type stateEntry struct {
	id int
	fn StateFunc
}

type Option func(*Client)

// WithToken sends the bearer token on every handshake.
func WithToken(token string) Option {
	return func(c *Client) {
		if t := strings.TrimSpace(token); t != "" {
			c.header.Set("Authorization", "Bearer "+t)
		}
	}
}

// WithReconnect sets how many redials follow an unexpected drop. Zero disables reconnects.
func WithReconnect(attempts int) Option { return func(c *Client) { c.maxReconnect = attempts } }

func WithPingInterval(d time.Duration) Option { return func(c *Client) { c.pingInterval = d } }

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = fn }
}

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

type Client struct {
	url          string
	header       http.Header
	maxReconnect int
	pingInterval time.Duration
	backoff      func(int) time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	frameCbs []frameEntry
	stateCbs []stateEntry
	nextID   int

	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	doneOnce   sync.Once
	wg         sync.WaitGroup
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// New prepares a client for the stream of gameID served under baseURL.
func New(baseURL, gameID string, opts ...Option) (*Client, error) {
	wsURL, err := StreamURL(baseURL, gameID)
	if err != nil {
		return nil, err
	}
	c := &Client{
		url:          wsURL,
		header:       http.Header{},
		maxReconnect: 5,
		pingInterval: defaultPingInterval,
		backoff:      backoffDuration,
		logger:       obslog.L(),
		state:        StateDisconnected,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c, nil
}

// StreamURL maps an http(s) API base to the ws(s) stream endpoint of a game.
func StreamURL(baseURL, gameID string) (string, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return "", errors.New("game id is required")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/games/" + url.PathEscape(gameID) + "/ws"
	return u.String(), nil
}

func (c *Client) URL() string { return c.url }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the stream ends for good: the server closed the game, reconnects ran out,
// or Close was called.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Connect(ctx context.Context) error {
	if c.stopping() {
		return ErrClosed
	}
	switch c.State() {
	case StateConnected, StateConnecting:
		return nil
	}
	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	c.attach(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.header.Clone(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)

	ctx, cancel := context.WithCancel(c.rootCtx)
	c.wg.Add(2)
	go c.listen(ctx, cancel, conn)
	go c.pingLoop(ctx, conn)
}

func (c *Client) listen(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer c.wg.Done()
	defer cancel()
	for {
		var frame chessdto.StreamFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			c.detach(conn)
			if c.stopping() {
				return
			}
			c.setState(StateDisconnected)
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				c.finish()
				return
			}
			c.logger.Debug("stream_read_failed", zap.String("url", c.url), zap.Error(err))
			c.reconnect()
			return
		}
		for _, fn := range c.frameCallbacks() {
			fn(frame)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// listen sees the close and redials.
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Client) reconnect() {
	if c.maxReconnect <= 0 {
		c.setState(StateFailed)
		c.finish()
		return
	}
	c.setState(StateReconnecting)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt := 1; attempt <= c.maxReconnect; attempt++ {
			select {
			case <-c.stop:
				return
			case <-time.After(c.backoff(attempt)):
			}
			conn, err := c.dial(c.rootCtx)
			if err != nil {
				c.logger.Debug("stream_redial_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			c.attach(conn)
			return
		}
		c.setState(StateFailed)
		c.finish()
	}()
}

func (c *Client) OnFrame(fn FrameFunc) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.frameCbs = append(c.frameCbs, frameEntry{id: c.nextID, fn: fn})
	return c.nextID
}

func (c *Client) RemoveFrameCallback(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.frameCbs {
		if e.id == id {
			c.frameCbs = append(c.frameCbs[:i], c.frameCbs[i+1:]...)
			return
		}
	}
}

func (c *Client) OnStateChange(fn StateFunc) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.stateCbs = append(c.stateCbs, stateEntry{id: c.nextID, fn: fn})
	return c.nextID
}

func (c *Client) frameCallbacks() []FrameFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FrameFunc, 0, len(c.frameCbs))
	for _, e := range c.frameCbs {
		if e.fn != nil {
			out = append(out, e.fn)
		}
	}
	return out
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	cbs := make([]StateFunc, 0, len(c.stateCbs))
	for _, e := range c.stateCbs {
		if e.fn != nil {
			cbs = append(cbs, e.fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range cbs {
		fn(s)
	}
}

// Close stops reconnecting, drops the link and waits for the loops to exit.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.rootCancel()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.CloseNow()
	}

	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waited:
	}
	c.finish()
	return nil
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.CloseNow()
}

func (c *Client) finish() { c.doneOnce.Do(func() { close(c.done) }) }

func (c *Client) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// backoffDuration doubles from 100ms, capped at 3.2s.
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
