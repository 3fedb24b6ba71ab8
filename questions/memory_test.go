package questions

import (
	"context"
	"testing"

	"github.com/onnwee/trivia-tender/trivia"
)

func TestMemoryFetch(t *testing.T) {
	m := NewMemory()
	q, err := m.Fetch(context.Background(), "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Text == "" || q.Answer == "" {
		t.Errorf("incomplete question: %+v", q)
	}
}

func TestMemoryFetchCategory(t *testing.T) {
	m := NewMemory(
		&trivia.Question{Text: "Q1", Type: trivia.OpenEnded, Answer: "A1", Category: "history"},
		&trivia.Question{Text: "Q2", Type: trivia.OpenEnded, Answer: "A2", Category: "science"},
	)
	q, err := m.Fetch(context.Background(), "History")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Text != "Q1" {
		t.Errorf("Fetch(history) = %q, want Q1", q.Text)
	}
	if _, err := m.Fetch(context.Background(), "sports"); err == nil {
		t.Error("expected error for unknown category")
	}
}
