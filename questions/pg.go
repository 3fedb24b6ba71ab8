package questions

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/onnwee/trivia-tender/trivia"
)

// PG serves questions from the Postgres question bank (questions table, see
// db.Migrate). Options are stored pipe-delimited in option order.
type PG struct {
	DB *sql.DB
}

// Fetch returns a uniformly random question, filtered by category when one is
// given. sql.ErrNoRows surfaces as a plain error so the engine reports it as
// an unavailable source.
func (p *PG) Fetch(ctx context.Context, category string) (*trivia.Question, error) {
	q := `SELECT question, qtype, answer, COALESCE(options,''), COALESCE(category,'')
		  FROM questions`
	args := []any{}
	if category != "" {
		q += ` WHERE LOWER(category) = LOWER($1)`
		args = append(args, category)
	}
	q += ` ORDER BY RANDOM() LIMIT 1`

	var text, qtype, answer, options, cat string
	err := p.DB.QueryRowContext(ctx, q, args...).Scan(&text, &qtype, &answer, &options, &cat)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("question bank empty for category %q", category)
	}
	if err != nil {
		return nil, fmt.Errorf("question bank query: %w", err)
	}
	out := &trivia.Question{
		Text:     text,
		Type:     trivia.QuestionType(qtype),
		Answer:   answer,
		Category: cat,
	}
	if options != "" {
		out.Options = strings.Split(options, "|")
	}
	return out, nil
}

// Insert adds a question to the bank.
func (p *PG) Insert(ctx context.Context, q *trivia.Question) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO questions(question, qtype, answer, options, category) VALUES($1,$2,$3,$4,$5)`,
		q.Text, string(q.Type), q.Answer, strings.Join(q.Options, "|"), q.Category)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}
