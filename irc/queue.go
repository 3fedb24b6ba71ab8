package irc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/trivia-tender/telemetry"
)

// Outbound is one chat message awaiting transmission. Immutable after
// creation; consumed exactly once by the sender.
type Outbound struct {
	Channel  string
	Text     string
	Enqueued time.Time
}

// SendQueue is a bounded FIFO of outbound chat messages. Enqueue never blocks
// the caller: when the depth cap is exceeded the oldest messages are dropped
// with a warning instead of growing without bound.
type SendQueue struct {
	mu     sync.Mutex
	items  []Outbound
	depth  int
	maxLen int
	wake   chan struct{}
}

// NewSendQueue creates a queue holding at most depth messages, truncating
// text to maxLen runes at enqueue time.
func NewSendQueue(depth, maxLen int) *SendQueue {
	if depth <= 0 {
		depth = 64
	}
	return &SendQueue{depth: depth, maxLen: maxLen, wake: make(chan struct{}, 1)}
}

// Enqueue appends a message, truncating the text and applying the
// drop-oldest overflow policy.
func (q *SendQueue) Enqueue(channel, text string) {
	if text == "" || channel == "" {
		return
	}
	m := Outbound{Channel: channel, Text: Truncate(text, q.maxLen), Enqueued: time.Now()}
	q.mu.Lock()
	q.items = append(q.items, m)
	for len(q.items) > q.depth {
		dropped := q.items[0]
		q.items = q.items[1:]
		if telemetry.QueueDrops != nil {
			telemetry.QueueDrops.Inc()
		}
		slog.Warn("send queue overflow, dropping oldest message",
			slog.String("channel", dropped.Channel),
			slog.Int("depth", q.depth))
	}
	telemetry.SetSendQueueDepth(len(q.items))
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest message, blocking until one is available
// or ctx is done. The bool is false only on cancellation.
func (q *SendQueue) Pop(ctx context.Context) (Outbound, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items = q.items[1:]
			telemetry.SetSendQueueDepth(len(q.items))
			q.mu.Unlock()
			return m, true
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return Outbound{}, false
		case <-q.wake:
		}
	}
}

// requeueFront puts a popped message back at the head so it is retried first
// after a reconnect. Depth may transiently exceed the cap by one.
func (q *SendQueue) requeueFront(m Outbound) {
	q.mu.Lock()
	q.items = append([]Outbound{m}, q.items...)
	telemetry.SetSendQueueDepth(len(q.items))
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports the current queue depth.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
