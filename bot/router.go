// Package bot wires the IRC connection to the trivia engine, leaderboard,
// and chat API: an ordered command table with first-match dispatch, bounded
// handler execution, and the {curly brace} LLM fallback.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/trivia-tender/telemetry"
)

// Event is what a handler sees for one command invocation.
type Event struct {
	Channel string
	User    string
	Args    string // text after the matched pattern, trimmed
}

// Handler returns the chat reply, or "" for no reply.
type Handler func(ctx context.Context, ev *Event) string

// route matches either the whole message (exact) or its start (prefix).
// Patterns are compared case-insensitively; the table is ordered and the
// first match wins, so exact patterns shadowed by a prefix come first.
type route struct {
	pattern string
	prefix  bool
	handler Handler
	name    string
}

// Router dispatches chat messages against the ordered command table.
type Router struct {
	routes   []route
	fallback Handler // unmatched messages; may be nil
	timeout  time.Duration
}

func NewRouter(timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Router{timeout: timeout}
}

func (r *Router) exact(pattern, name string, h Handler) {
	r.routes = append(r.routes, route{pattern: strings.ToLower(pattern), handler: h, name: name})
}

func (r *Router) prefixed(pattern, name string, h Handler) {
	r.routes = append(r.routes, route{pattern: strings.ToLower(pattern), prefix: true, handler: h, name: name})
}

// Dispatch routes one message and returns the reply, "" when nothing
// matched or the handler declined to reply.
func (r *Router) Dispatch(ctx context.Context, channel, user, text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, rt := range r.routes {
		if rt.prefix {
			if !strings.HasPrefix(lower, rt.pattern) {
				continue
			}
		} else if lower != rt.pattern {
			continue
		}
		ev := &Event{Channel: channel, User: user, Args: strings.TrimSpace(text[len(rt.pattern):])}
		return r.run(ctx, rt.name, rt.handler, ev)
	}
	if r.fallback != nil {
		return r.run(ctx, "fallback", r.fallback, &Event{Channel: channel, User: user, Args: text})
	}
	return ""
}

// run executes a handler under the router timeout with panic containment. A
// timed-out or panicked handler yields no reply and never kills dispatch.
func (r *Router) run(ctx context.Context, name string, h Handler, ev *Event) string {
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.LoggerWithCorr(hctx).Error("command handler panicked", slog.String("command", name), slog.Any("panic", rec))
				done <- ""
			}
		}()
		start := time.Now()
		reply := h(hctx, ev)
		if telemetry.HandlerDuration != nil {
			telemetry.HandlerDuration.Observe(time.Since(start).Seconds())
		}
		done <- reply
	}()

	select {
	case reply := <-done:
		return reply
	case <-hctx.Done():
		telemetry.LoggerWithCorr(hctx).Warn("command handler timed out", slog.String("command", name), slog.Duration("timeout", r.timeout))
		return ""
	}
}
