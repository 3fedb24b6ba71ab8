package trivia

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/trivia-tender/telemetry"
)

// Mode selects how a round continues after it is resolved.
type Mode int

const (
	ModeSingle Mode = iota
	ModeAuto
)

func (m Mode) String() string {
	if m == ModeAuto {
		return "auto"
	}
	return "single"
}

// Config tunes the engine.
type Config struct {
	AutoNextDelay  time.Duration // delay before the next auto-mode question
	FuzzyThreshold float64       // open-ended similarity acceptance
	FetchTimeout   time.Duration // bound on question source calls
}

func (c *Config) applyDefaults() {
	if c.AutoNextDelay <= 0 {
		c.AutoNextDelay = time.Second
	}
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = 0.85
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
}

// session is the per-channel state machine. All mutation happens under mu;
// channels never share a session. Invariants: at most one question active and
// at most one pending timer per channel.
type session struct {
	mu       sync.Mutex
	channel  string
	active   bool
	question *Question
	mode     Mode
	source   string
	askedAt  time.Time
	timer    *time.Timer
}

// Engine owns all channel sessions. Replies for dispatcher-driven operations
// are returned to the caller; timer-driven auto-mode announcements go through
// the sink directly.
type Engine struct {
	cfg           Config
	sources       map[string]QuestionSource
	defaultSource string
	sink          func(channel, text string)
	recorder      AttemptRecorder

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	active   atomic.Int64
}

// NewEngine creates the engine. sources keys are the names accepted by
// "!trivia <source>"; defaultSource is used when no argument is given.
// recorder may be nil.
func NewEngine(cfg Config, sources map[string]QuestionSource, defaultSource string, sink func(channel, text string), recorder AttemptRecorder) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:           cfg,
		sources:       sources,
		defaultSource: defaultSource,
		sink:          sink,
		recorder:      recorder,
		sessions:      make(map[string]*session),
	}
}

func (e *Engine) session(channel string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[channel]
	if !ok {
		s = &session{channel: channel, mode: ModeSingle}
		e.sessions[channel] = s
	}
	return s
}

// ActiveCount reports channels with a question in play.
func (e *Engine) ActiveCount() int {
	return int(e.active.Load())
}

// setActiveLocked flips the session's active flag and keeps the process-wide
// count and gauge in step. Caller holds s.mu.
func (e *Engine) setActiveLocked(s *session, active bool) {
	if s.active == active {
		return
	}
	s.active = active
	if active {
		e.active.Add(1)
	} else {
		e.active.Add(-1)
	}
	telemetry.SetActiveSessions(e.ActiveCount())
}

// Start begins a round on the channel. source may be empty (default source).
// A round already in play is restated instead of replaced.
func (e *Engine) Start(ctx context.Context, channel, source string, auto bool) string {
	src, name, err := e.resolveSource(source)
	if err != nil {
		return fmt.Sprintf("❌ Unknown trivia source %q. Try one of: %s", source, strings.Join(e.sourceNames(), ", "))
	}
	s := e.session(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return "⚠️ Trivia already active: " + s.question.Text
	}
	q, err := e.fetch(ctx, src, "")
	if err != nil {
		slog.Warn("question fetch failed", slog.String("channel", channel), slog.String("source", name), slog.Any("err", err))
		return "❌ No question available right now. Try again in a bit!"
	}
	s.mode = ModeSingle
	if auto {
		s.mode = ModeAuto
	}
	s.source = name
	e.activateLocked(s, q)
	return formatQuestion(q)
}

// Answer judges a submission. Submissions after the round resolved are
// answered as "no active trivia" rather than treated as errors.
func (e *Engine) Answer(ctx context.Context, channel, user, text string) string {
	s := e.session(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.question == nil {
		return "❌ No active trivia to answer."
	}
	q := s.question
	elapsed := time.Since(s.askedAt)
	correct := Match(q, text, e.cfg.FuzzyThreshold)
	e.record(channel, user, q, correct, elapsed)
	if !correct {
		if telemetry.AnswersIncorrect != nil {
			telemetry.AnswersIncorrect.Inc()
		}
		return fmt.Sprintf("❌ @%s - That's not correct. Try again!", user)
	}
	if telemetry.AnswersCorrect != nil {
		telemetry.AnswersCorrect.Inc()
	}
	e.resolveLocked(s)
	return fmt.Sprintf("🎉 @%s got it correct! %s is the right answer!", user, q.Answer)
}

// GiveUp reveals the answer and resolves the round. Issued while idle it has
// no observable effect.
func (e *Engine) GiveUp(channel string) string {
	s := e.session(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.question == nil {
		return ""
	}
	answer := s.question.Answer
	e.resolveLocked(s)
	return "Trivia ended! The correct answer was: " + answer
}

// End cancels any pending timer and clears mode and question.
func (e *Engine) End(channel string) string {
	s := e.session(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	e.setActiveLocked(s, false)
	s.question = nil
	s.mode = ModeSingle
	return "🛑 Trivia ended!"
}

// Help describes the chat commands.
func (e *Engine) Help() string {
	return "🎲 TRIVIA: !trivia [" + strings.Join(e.sourceNames(), "|") + "] starts a round, " +
		"!trivia auto keeps them coming, !answer <text> to answer (a/b/c/d for multiple choice), " +
		"!giveup reveals the answer, !end trivia stops."
}

// Shutdown cancels every pending timer so no scheduled work fires afterwards.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()
	for _, s := range sessions {
		s.mu.Lock()
		s.cancelTimerLocked()
		e.setActiveLocked(s, false)
		s.question = nil
		s.mode = ModeSingle
		s.mu.Unlock()
	}
}

// activateLocked puts a question in play. Caller holds s.mu.
func (e *Engine) activateLocked(s *session, q *Question) {
	s.cancelTimerLocked()
	e.setActiveLocked(s, true)
	s.question = q
	s.askedAt = time.Now()
	if telemetry.QuestionsAsked != nil {
		telemetry.QuestionsAsked.Inc()
	}
}

// resolveLocked clears the question and, in auto mode, schedules the next
// one. Caller holds s.mu.
func (e *Engine) resolveLocked(s *session) {
	e.setActiveLocked(s, false)
	s.question = nil
	if s.mode == ModeAuto {
		e.scheduleNextLocked(s)
	}
}

// scheduleNextLocked arms the auto-mode timer, replacing any pending one so
// at most one timer exists per channel. Caller holds s.mu.
func (e *Engine) scheduleNextLocked(s *session) {
	s.cancelTimerLocked()
	channel := s.channel
	s.timer = time.AfterFunc(e.cfg.AutoNextDelay, func() { e.autoNext(channel) })
}

func (s *session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// autoNext fires from the timer: fetch and announce the next question unless
// the mode was ended meanwhile.
func (e *Engine) autoNext(channel string) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	s := e.session(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	if s.mode != ModeAuto || s.active {
		return
	}
	src, _, err := e.resolveSource(s.source)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FetchTimeout)
	q, err := e.fetch(ctx, src, "")
	cancel()
	if err != nil {
		slog.Warn("auto trivia fetch failed, ending auto mode", slog.String("channel", channel), slog.Any("err", err))
		s.mode = ModeSingle
		e.sink(channel, "❌ No more questions available. Auto trivia ended.")
		return
	}
	e.activateLocked(s, q)
	e.sink(channel, formatQuestion(q))
}

func (e *Engine) fetch(ctx context.Context, src QuestionSource, category string) (*Question, error) {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	var q *Question
	var err error
	telemetry.TimeFunc(telemetry.QuestionFetchDuration, func() {
		q, err = src.Fetch(fctx, category)
	})
	if err != nil {
		return nil, err
	}
	if q == nil || q.Text == "" || q.Answer == "" {
		return nil, fmt.Errorf("source returned empty question")
	}
	return q, nil
}

func (e *Engine) resolveSource(name string) (QuestionSource, string, error) {
	if name == "" {
		name = e.defaultSource
	}
	name = strings.ToLower(name)
	if src, ok := e.sources[name]; ok {
		return src, name, nil
	}
	return nil, name, fmt.Errorf("unknown source %q", name)
}

func (e *Engine) sourceNames() []string {
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	// Stable order for chat output.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// record reports the attempt fire-and-forget; recorder failures never reach
// the trivia flow.
func (e *Engine) record(channel, user string, q *Question, correct bool, elapsed time.Duration) {
	if e.recorder == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("attempt recorder panicked", slog.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.recorder.RecordAttempt(ctx, channel, user, q, correct, elapsed)
	}()
}

// formatQuestion renders a question for chat, labeling MCQ options a/b/c/d.
func formatQuestion(q *Question) string {
	switch q.Type {
	case MultipleChoice:
		var b strings.Builder
		b.WriteString("📚 ")
		b.WriteString(q.Text)
		for i, opt := range q.Options {
			fmt.Fprintf(&b, " %c) %s", 'a'+i, opt)
		}
		return b.String()
	case TrueFalse:
		return "📚 " + q.Text + " (True/False)"
	default:
		return "📚 " + q.Text
	}
}
