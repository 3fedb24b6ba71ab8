// Package questions provides trivia question sources: the Open Trivia DB
// public API, a Postgres-backed question bank, and a small in-memory bank
// used as a fallback.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"

	"github.com/onnwee/trivia-tender/trivia"
)

// OpenTDBURL is the Open Trivia Database endpoint.
const OpenTDBURL = "https://opentdb.com/api.php"

// OpenTDB fetches one question per call from the public Open Trivia DB API.
type OpenTDB struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (o *OpenTDB) http() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o *OpenTDB) base() string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return OpenTDBURL
}

// openTDB result payload. Question text and answers arrive HTML-escaped.
type opentdbResponse struct {
	ResponseCode int `json:"response_code"`
	Results      []struct {
		Category         string   `json:"category"`
		Type             string   `json:"type"` // "multiple" or "boolean"
		Question         string   `json:"question"`
		CorrectAnswer    string   `json:"correct_answer"`
		IncorrectAnswers []string `json:"incorrect_answers"`
	} `json:"results"`
}

// Fetch requests a single question. category, when set, is the numeric
// OpenTDB category id.
func (o *OpenTDB) Fetch(ctx context.Context, category string) (*trivia.Question, error) {
	u, err := url.Parse(o.base())
	if err != nil {
		return nil, fmt.Errorf("opentdb url: %w", err)
	}
	q := u.Query()
	q.Set("amount", "1")
	if category != "" {
		q.Set("category", category)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("opentdb request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opentdb status %d", resp.StatusCode)
	}
	var body opentdbResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("opentdb decode: %w", err)
	}
	if body.ResponseCode != 0 || len(body.Results) == 0 {
		return nil, fmt.Errorf("opentdb response code %d with %d results", body.ResponseCode, len(body.Results))
	}
	r := body.Results[0]

	question := &trivia.Question{
		Text:     html.UnescapeString(r.Question),
		Answer:   html.UnescapeString(r.CorrectAnswer),
		Category: html.UnescapeString(r.Category),
	}
	switch r.Type {
	case "boolean":
		question.Type = trivia.TrueFalse
	case "multiple":
		question.Type = trivia.MultipleChoice
		question.Options = shuffledOptions(r.CorrectAnswer, r.IncorrectAnswers)
	default:
		question.Type = trivia.OpenEnded
	}
	return question, nil
}

// shuffledOptions mixes the correct answer in with the distractors so the
// right option does not always land in the same slot.
func shuffledOptions(correct string, incorrect []string) []string {
	opts := make([]string, 0, len(incorrect)+1)
	opts = append(opts, html.UnescapeString(correct))
	for _, s := range incorrect {
		opts = append(opts, html.UnescapeString(s))
	}
	//nolint:gosec // G404: option ordering does not need crypto randomness
	rand.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	return opts
}
