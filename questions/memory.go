package questions

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/onnwee/trivia-tender/trivia"
)

// Memory is a static in-process question bank. It backs the "general" source
// when no database is configured and keeps trivia usable offline.
type Memory struct {
	mu        sync.Mutex
	questions []*trivia.Question
}

// NewMemory seeds the bank. With no arguments it loads the built-in set.
func NewMemory(qs ...*trivia.Question) *Memory {
	if len(qs) == 0 {
		qs = builtinQuestions()
	}
	return &Memory{questions: qs}
}

// Fetch returns a random question, filtered by category when one is given.
func (m *Memory) Fetch(ctx context.Context, category string) (*trivia.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.questions
	if category != "" {
		pool = nil
		for _, q := range m.questions {
			if strings.EqualFold(q.Category, category) {
				pool = append(pool, q)
			}
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("no questions for category %q", category)
	}
	//nolint:gosec // G404: question selection does not need crypto randomness
	return pool[rand.Intn(len(pool))], nil
}

func builtinQuestions() []*trivia.Question {
	return []*trivia.Question{
		{
			Text:     "What is the capital of France?",
			Type:     trivia.MultipleChoice,
			Answer:   "Paris",
			Options:  []string{"London", "Paris", "Berlin", "Madrid"},
			Category: "geography",
		},
		{
			Text:     "The Great Wall of China is visible from the Moon with the naked eye.",
			Type:     trivia.TrueFalse,
			Answer:   "false",
			Category: "science",
		},
		{
			Text:     "What planet is known as the Red Planet?",
			Type:     trivia.OpenEnded,
			Answer:   "Mars",
			Category: "science",
		},
		{
			Text:     "How many continents are there on Earth?",
			Type:     trivia.MultipleChoice,
			Answer:   "7",
			Options:  []string{"5", "6", "7", "8"},
			Category: "geography",
		},
		{
			Text:     "Sharks are mammals.",
			Type:     trivia.TrueFalse,
			Answer:   "false",
			Category: "science",
		},
		{
			Text:     "What is the largest ocean on Earth?",
			Type:     trivia.OpenEnded,
			Answer:   "Pacific",
			Category: "geography",
		},
		{
			Text:     "Which element has the chemical symbol O?",
			Type:     trivia.OpenEnded,
			Answer:   "Oxygen",
			Category: "science",
		},
		{
			Text:     "In what year did the first human land on the Moon?",
			Type:     trivia.MultipleChoice,
			Answer:   "1969",
			Options:  []string{"1965", "1969", "1971", "1975"},
			Category: "history",
		},
	}
}
