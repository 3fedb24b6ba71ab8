package irc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSocket drives the connection manager without a network. Writing the
// NICK line triggers the scripted auth response, mirroring the server.
type fakeSocket struct {
	mu       sync.Mutex
	writes   []string
	in       chan string
	closed   chan struct{}
	once     sync.Once
	authFail bool
}

func newFakeSocket(authFail bool) *fakeSocket {
	return &fakeSocket{in: make(chan string, 32), closed: make(chan struct{}), authFail: authFail}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case line := <-s.in:
		return 1, []byte(line), nil
	case <-s.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	select {
	case <-s.closed:
		return errors.New("write on closed connection")
	default:
	}
	line := string(data)
	s.mu.Lock()
	s.writes = append(s.writes, line)
	s.mu.Unlock()
	if strings.HasPrefix(line, "NICK ") {
		if s.authFail {
			s.in <- ":tmi.twitch.tv NOTICE * :Login authentication failed"
		} else {
			s.in <- ":tmi.twitch.tv 001 bot :Welcome, GLHF!"
		}
	}
	return nil
}

func (s *fakeSocket) SetReadDeadline(time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) wrote(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.writes {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

func testConn(dial dialFunc) *Conn {
	c := NewConn(Options{
		Addr:     "ws://fake",
		Nick:     "bot",
		Token:    "oauth:secret",
		Channels: []string{"chan"},
	}, NewSendQueue(16, 450), NewRateLimiter(18, 30*time.Second))
	c.dial = dial
	return c
}

func TestHandshakeWelcome(t *testing.T) {
	s := newFakeSocket(false)
	c := testConn(nil)
	c.mu.Lock()
	c.ws = s
	c.mu.Unlock()
	if err := c.handshake(s); err != nil {
		t.Fatalf("handshake error: %v", err)
	}
	if !s.wrote("PASS oauth:secret") || !s.wrote("NICK bot") || !s.wrote("CAP REQ") {
		t.Errorf("handshake writes incomplete: %v", s.writes)
	}
}

func TestHandshakeAuthFailure(t *testing.T) {
	s := newFakeSocket(true)
	c := testConn(nil)
	c.mu.Lock()
	c.ws = s
	c.mu.Unlock()
	err := c.handshake(s)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("handshake error = %v, want ErrAuthFailed", err)
	}
}

func TestRunFatalOnAuthFailure(t *testing.T) {
	c := testConn(func(ctx context.Context, addr string) (socket, error) {
		return newFakeSocket(true), nil
	})
	err := c.Run(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Run error = %v, want ErrAuthFailed", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State = %v, want disconnected", c.State())
	}
}

func TestRunDeliversAndSends(t *testing.T) {
	var mu sync.Mutex
	var sockets []*fakeSocket
	c := testConn(func(ctx context.Context, addr string) (socket, error) {
		s := newFakeSocket(false)
		mu.Lock()
		sockets = append(sockets, s)
		mu.Unlock()
		return s, nil
	})

	got := make(chan Message, 8)
	c.OnMessage(func(m Message) { got <- m })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Wait for the connection to come up, then feed a chat line.
	waitFor(t, func() bool { return c.State() == StateAuthenticated })
	mu.Lock()
	s := sockets[0]
	mu.Unlock()
	if !s.wrote("JOIN #chan") {
		t.Errorf("expected JOIN after auth: %v", s.writes)
	}
	s.in <- ":viewer!viewer@tmi PRIVMSG #chan :hello"

	select {
	case m := <-got:
		if m.Kind != KindPrivMsg || m.Sender != "viewer" || m.Body != "hello" {
			t.Errorf("delivered message = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound delivery")
	}

	// Outbound path: enqueue and expect a PRIVMSG on the wire.
	c.Say("chan", "hi there")
	waitFor(t, func() bool { return s.wrote("PRIVMSG #chan :hi there") })

	// Inbound PING gets an immediate PONG.
	s.in <- "PING :tmi.twitch.tv"
	waitFor(t, func() bool { return s.wrote("PONG :tmi.twitch.tv") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on shutdown, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if c.State() != StateClosed {
		t.Errorf("State = %v, want closed", c.State())
	}
}

func TestRunReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	var sockets []*fakeSocket
	c := testConn(func(ctx context.Context, addr string) (socket, error) {
		s := newFakeSocket(false)
		mu.Lock()
		sockets = append(sockets, s)
		mu.Unlock()
		return s, nil
	})
	c.opts.ReconnectBase = 10 * time.Millisecond
	c.opts.ReconnectCap = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, func() bool { return c.State() == StateAuthenticated })
	mu.Lock()
	first := sockets[0]
	mu.Unlock()

	// Simulate a transport drop; the loop must dial again and reauth.
	first.Close()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sockets) >= 2
	})
	waitFor(t, func() bool { return c.State() == StateAuthenticated })

	cancel()
	<-done
}

func TestBackoffSchedule(t *testing.T) {
	c := testConn(nil)
	c.opts.ReconnectBase = time.Second
	c.opts.ReconnectCap = 30 * time.Second
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for attempt, base := range want {
		for i := 0; i < 20; i++ {
			d := c.backoffDelay(attempt)
			lo := base - base/5
			hi := base + base/5
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestClassifyConnError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{fmt.Errorf("wrapped: %w", ErrAuthFailed), ErrorClassFatal},
		{errors.New("NOTICE: Login authentication failed"), ErrorClassFatal},
		{errors.New("read: connection reset by peer"), ErrorClassRetryable},
		{errors.New("i/o timeout"), ErrorClassRetryable},
		{nil, ErrorClassRetryable},
	}
	for _, tc := range cases {
		if got := ClassifyConnError(tc.err); got != tc.want {
			t.Errorf("ClassifyConnError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
