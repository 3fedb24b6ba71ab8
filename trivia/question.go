// Package trivia implements the per-channel trivia session engine: starting
// rounds, judging answers, auto-mode scheduling, and reporting attempts.
package trivia

import (
	"context"
	"time"
)

// QuestionType discriminates how an answer is judged.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	OpenEnded      QuestionType = "open_ended"
)

// Question is immutable once fetched from a source.
type Question struct {
	Text     string
	Type     QuestionType
	Answer   string
	Options  []string // ordered, multiple choice only
	Category string
}

// QuestionSource supplies one question per call. Implemented by the OpenTDB
// client, the Postgres question bank, and the in-memory bank.
type QuestionSource interface {
	Fetch(ctx context.Context, category string) (*Question, error)
}

// AttemptRecorder receives judged answers. Best-effort: implementations must
// never let a failure reach the trivia flow.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, channel, user string, q *Question, correct bool, elapsed time.Duration)
}
