package trivia

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedSource returns its questions in order, then an error.
type scriptedSource struct {
	mu        sync.Mutex
	questions []*Question
	fetches   int
}

func (s *scriptedSource) Fetch(ctx context.Context, category string) (*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if len(s.questions) == 0 {
		return nil, errors.New("exhausted")
	}
	q := s.questions[0]
	s.questions = s.questions[1:]
	return q, nil
}

type chanSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *chanSink) say(channel, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
}

func (c *chanSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func openQ(answer string) *Question {
	return &Question{Text: "Capital of France?", Type: OpenEnded, Answer: answer}
}

func newTestEngine(src QuestionSource, sink *chanSink, delay time.Duration) *Engine {
	return NewEngine(
		Config{AutoNextDelay: delay, FuzzyThreshold: 0.85},
		map[string]QuestionSource{"general": src},
		"general",
		sink.say,
		nil,
	)
}

func TestSingleRoundLifecycle(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris")}}
	sink := &chanSink{}
	e := newTestEngine(src, sink, time.Second)
	ctx := context.Background()

	reply := e.Start(ctx, "chan", "", false)
	if !strings.Contains(reply, "Capital of France?") {
		t.Fatalf("Start reply = %q", reply)
	}
	if e.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", e.ActiveCount())
	}

	reply = e.Answer(ctx, "chan", "alice", "berlin")
	if !strings.Contains(reply, "not correct") {
		t.Errorf("wrong answer reply = %q", reply)
	}
	if e.ActiveCount() != 1 {
		t.Errorf("round ended on incorrect answer")
	}

	reply = e.Answer(ctx, "chan", "alice", "paris")
	if !strings.Contains(reply, "got it correct") {
		t.Errorf("correct answer reply = %q", reply)
	}
	if e.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after correct answer, want 0", e.ActiveCount())
	}

	// Single mode: no follow-up question is scheduled.
	time.Sleep(50 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("unexpected sink output in single mode: %v", sink.lines)
	}
}

func TestAnswerAfterRoundResolved(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris")}}
	e := newTestEngine(src, &chanSink{}, time.Second)
	ctx := context.Background()
	e.Start(ctx, "chan", "", false)
	e.Answer(ctx, "chan", "alice", "paris")
	reply := e.Answer(ctx, "chan", "bob", "paris")
	if !strings.Contains(reply, "No active trivia") {
		t.Errorf("late answer reply = %q", reply)
	}
}

func TestConcurrentAnswersSingleWinner(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris")}}
	e := newTestEngine(src, &chanSink{}, time.Second)
	ctx := context.Background()
	e.Start(ctx, "chan", "", false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := e.Answer(ctx, "chan", "racer", "paris")
			if strings.Contains(reply, "got it correct") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
}

func TestAutoModeSchedulesNext(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris"), openQ("Rome")}}
	sink := &chanSink{}
	e := newTestEngine(src, sink, 20*time.Millisecond)
	ctx := context.Background()

	e.Start(ctx, "chan", "general", true)
	e.Answer(ctx, "chan", "alice", "paris")

	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() == 0 {
		t.Fatal("auto mode did not announce the next question")
	}
	if e.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1 after auto-next", e.ActiveCount())
	}
}

func TestEndCancelsPendingAutoQuestion(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris"), openQ("Rome")}}
	sink := &chanSink{}
	e := newTestEngine(src, sink, 50*time.Millisecond)
	ctx := context.Background()

	e.Start(ctx, "chan", "general", true)
	e.Answer(ctx, "chan", "alice", "paris")
	e.End("chan")

	time.Sleep(150 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("pending question fired after end: %v", sink.lines)
	}
	if e.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", e.ActiveCount())
	}
}

func TestGiveUpIdleIsSilent(t *testing.T) {
	src := &scriptedSource{}
	e := newTestEngine(src, &chanSink{}, time.Second)
	if reply := e.GiveUp("chan"); reply != "" {
		t.Errorf("GiveUp while idle = %q, want empty", reply)
	}
}

func TestGiveUpRevealsAndAutoContinues(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris"), openQ("Rome")}}
	sink := &chanSink{}
	e := newTestEngine(src, sink, 20*time.Millisecond)
	ctx := context.Background()

	e.Start(ctx, "chan", "general", true)
	reply := e.GiveUp("chan")
	if !strings.Contains(reply, "Paris") {
		t.Errorf("GiveUp reply = %q, want revealed answer", reply)
	}
	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() == 0 {
		t.Error("auto mode did not continue after giveup")
	}
}

func TestSourceFailureLeavesIdle(t *testing.T) {
	src := &scriptedSource{}
	e := newTestEngine(src, &chanSink{}, time.Second)
	reply := e.Start(context.Background(), "chan", "", false)
	if !strings.Contains(reply, "No question available") {
		t.Errorf("Start reply = %q", reply)
	}
	if e.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", e.ActiveCount())
	}
}

func TestUnknownSource(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris")}}
	e := newTestEngine(src, &chanSink{}, time.Second)
	reply := e.Start(context.Background(), "chan", "nope", false)
	if !strings.Contains(reply, "Unknown trivia source") {
		t.Errorf("Start reply = %q", reply)
	}
}

func TestShutdownCancelsTimers(t *testing.T) {
	src := &scriptedSource{questions: []*Question{openQ("Paris"), openQ("Rome")}}
	sink := &chanSink{}
	e := newTestEngine(src, sink, 50*time.Millisecond)
	ctx := context.Background()

	e.Start(ctx, "chan", "general", true)
	e.Answer(ctx, "chan", "alice", "paris")
	e.Shutdown()

	time.Sleep(150 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("scheduled work fired after shutdown: %v", sink.lines)
	}
}

func TestFormatQuestion(t *testing.T) {
	got := formatQuestion(mcq())
	for _, part := range []string{"a) London", "b) Paris", "c) Berlin", "d) Madrid"} {
		if !strings.Contains(got, part) {
			t.Errorf("formatQuestion missing %q in %q", part, got)
		}
	}
	tf := formatQuestion(&Question{Text: "Q", Type: TrueFalse, Answer: "true"})
	if !strings.Contains(tf, "(True/False)") {
		t.Errorf("true/false format = %q", tf)
	}
}
