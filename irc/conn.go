package irc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/trivia-tender/telemetry"
)

// State is the connection lifecycle state, owned exclusively by Conn.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// socket is the subset of *websocket.Conn the connection manager needs.
// Narrowed so tests can drive the lifecycle with an in-memory transport.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type dialFunc func(ctx context.Context, addr string) (socket, error)

func wsDial(ctx context.Context, addr string) (socket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures the connection manager.
type Options struct {
	Addr     string
	Nick     string
	Token    string // with oauth: prefix
	Channels []string

	ReconnectBase    time.Duration
	ReconnectCap     time.Duration
	LivenessWindow   time.Duration
	HandshakeTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectCap <= 0 {
		o.ReconnectCap = 30 * time.Second
	}
	if o.LivenessWindow <= 0 {
		o.LivenessWindow = 6 * time.Minute
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 15 * time.Second
	}
}

// Conn owns the persistent chat connection: dial, authenticate, join,
// keepalive, and unbounded reconnection with capped jittered backoff. Chat
// replies go through the rate-limited send queue; protocol control lines are
// written directly.
type Conn struct {
	opts    Options
	dial    dialFunc
	queue   *SendQueue
	limiter *RateLimiter
	handler func(Message)
	state   atomic.Int32

	mu sync.Mutex // serializes writes to ws
	ws socket
}

// NewConn creates a connection manager. The queue and limiter are shared with
// the rest of the bot so handlers can enqueue replies.
func NewConn(opts Options, queue *SendQueue, limiter *RateLimiter) *Conn {
	opts.applyDefaults()
	return &Conn{opts: opts, dial: wsDial, queue: queue, limiter: limiter}
}

// OnMessage registers the inbound delivery callback. Must be set before Run.
func (c *Conn) OnMessage(fn func(Message)) { c.handler = fn }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Say enqueues a chat message for rate-limited delivery.
func (c *Conn) Say(channel, text string) { c.queue.Enqueue(channel, text) }

// RateUsage reports sends counted in the current window and the burst limit.
func (c *Conn) RateUsage() (used, burst int) { return c.limiter.InWindow() }

// QueueDepth reports the current outbound queue depth.
func (c *Conn) QueueDepth() int { return c.queue.Len() }

// Run connects and keeps the connection alive until ctx is canceled or
// authentication fails. Reconnection is unbounded in attempts; the attempt
// counter resets after every successful reauthentication.
func (c *Conn) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return nil
		}
		if attempt == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
			if telemetry.Reconnects != nil {
				telemetry.Reconnects.Inc()
			}
		}
		authed, err := c.runOnce(ctx)
		telemetry.UpdateConnectedGauge(false)
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return nil
		}
		if IsFatalConnError(err) {
			c.setState(StateDisconnected)
			return err
		}
		if authed {
			attempt = 0
		}
		delay := c.backoffDelay(attempt)
		slog.Warn("chat connection lost, reconnecting",
			slog.Any("err", err),
			slog.Duration("delay", delay),
			slog.Int("attempt", attempt))
		attempt++
		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return nil
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes min(base*2^attempt, cap) with +-20% jitter.
func (c *Conn) backoffDelay(attempt int) time.Duration {
	d := c.opts.ReconnectBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.opts.ReconnectCap || d <= 0 {
			d = c.opts.ReconnectCap
			break
		}
	}
	if d > c.opts.ReconnectCap {
		d = c.opts.ReconnectCap
	}
	jitterRange := int64(d / 5)
	if jitterRange <= 0 {
		return d
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
	return d + jitter
}

// runOnce performs one dial/authenticate/read-loop cycle. The returned bool
// reports whether authentication succeeded before the connection died.
func (c *Conn) runOnce(ctx context.Context) (bool, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	ws, err := c.dial(dctx, c.opts.Addr)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.opts.Addr, err)
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	// Unblock the read loop on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-done:
		}
	}()
	defer func() { _ = ws.Close() }()

	if err := c.handshake(ws); err != nil {
		return false, err
	}
	c.setState(StateAuthenticated)
	telemetry.UpdateConnectedGauge(true)
	slog.Info("chat authenticated", slog.String("nick", c.opts.Nick))

	for _, ch := range c.opts.Channels {
		if err := c.sendRaw("JOIN #" + ch); err != nil {
			return true, err
		}
	}

	sctx, scancel := context.WithCancel(ctx)
	defer scancel()
	go c.senderLoop(sctx)

	return true, c.readLoop(ctx, ws)
}

// handshake authenticates and waits for the welcome. An auth rejection notice
// yields ErrAuthFailed; any other failure is transient.
func (c *Conn) handshake(ws socket) error {
	for _, line := range []string{
		"PASS " + c.opts.Token,
		"NICK " + c.opts.Nick,
		"CAP REQ :twitch.tv/tags twitch.tv/commands",
	} {
		if err := c.sendRaw(line); err != nil {
			return fmt.Errorf("handshake write: %w", err)
		}
	}
	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	if err := ws.SetReadDeadline(deadline); err != nil {
		return err
	}
	for time.Now().Before(deadline) {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("handshake read: %w", err)
		}
		for _, line := range splitLines(data) {
			msg, perr := ParseLine(line)
			if perr != nil {
				continue
			}
			switch msg.Kind {
			case KindWelcome:
				return nil
			case KindNotice:
				if isAuthFailureNotice(msg.Body) {
					return fmt.Errorf("%w: %s", ErrAuthFailed, msg.Body)
				}
			case KindPing:
				_ = c.sendRaw("PONG :" + msg.Body)
			}
		}
	}
	return fmt.Errorf("handshake: no welcome within %s", c.opts.HandshakeTimeout)
}

// readLoop delivers parsed inbound lines until the transport fails. The read
// deadline doubles as the liveness watchdog: a connection silent for the
// whole window is treated as dead.
func (c *Conn) readLoop(ctx context.Context, ws socket) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := ws.SetReadDeadline(time.Now().Add(c.opts.LivenessWindow)); err != nil {
			return err
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, line := range splitLines(data) {
			msg, perr := ParseLine(line)
			if perr != nil {
				if telemetry.ParseErrors != nil {
					telemetry.ParseErrors.Inc()
				}
				slog.Debug("dropping malformed line", slog.Any("err", perr))
				continue
			}
			if telemetry.MessagesReceived != nil {
				telemetry.MessagesReceived.Inc()
			}
			switch msg.Kind {
			case KindPing:
				// Liveness replies bypass the send queue and rate budget.
				if err := c.sendRaw("PONG :" + msg.Body); err != nil {
					return fmt.Errorf("pong: %w", err)
				}
			case KindNotice:
				if isAuthFailureNotice(msg.Body) {
					return fmt.Errorf("%w: %s", ErrAuthFailed, msg.Body)
				}
				slog.Info("server notice", slog.String("body", msg.Body))
			default:
				if c.handler != nil {
					c.handler(msg)
				}
			}
		}
	}
}

// senderLoop drains the queue, waiting out the rate budget before each send.
// Exactly one sender runs per live connection, preserving send order.
func (c *Conn) senderLoop(ctx context.Context) {
	for {
		m, ok := c.queue.Pop(ctx)
		if !ok {
			return
		}
		for {
			d := c.limiter.Delay()
			if d <= 0 {
				break
			}
			if telemetry.RateLimitWaits != nil {
				telemetry.RateLimitWaits.Inc()
			}
			slog.Debug("rate budget exhausted, waiting", slog.Duration("wait", d))
			select {
			case <-ctx.Done():
				c.queue.requeueFront(m)
				return
			case <-time.After(d):
			}
		}
		if err := c.sendRaw("PRIVMSG #" + m.Channel + " :" + m.Text); err != nil {
			// Keep the message for the next connection.
			slog.Warn("send failed, retrying after reconnect", slog.Any("err", err))
			c.queue.requeueFront(m)
			return
		}
		c.limiter.Record()
		if telemetry.MessagesSent != nil {
			telemetry.MessagesSent.Inc()
		}
	}
}

func (c *Conn) sendRaw(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func splitLines(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\r\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func isAuthFailureNotice(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "login authentication failed") ||
		strings.Contains(lower, "improperly formatted auth") ||
		strings.Contains(lower, "invalid nick")
}
