// Package llm calls the external chat completion API behind !ask, !chat, and
// the {curly brace} trigger, and cleans responses for IRC delivery.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/onnwee/trivia-tender/telemetry"
)

// Client posts questions to the chat API. The API performs retrieval over the
// configured corpus; hybrid search with a handful of results keeps replies
// grounded without blowing past chat message limits.
type Client struct {
	APIURL     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func New(apiURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{APIURL: apiURL, Timeout: timeout}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

type chatRequest struct {
	Message    string `json:"message"`
	SearchMode string `json:"search_mode"`
	NResults   int    `json:"n_results"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Ask sends one question and returns the cleaned reply text.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	if telemetry.LLMRequests != nil {
		telemetry.LLMRequests.Inc()
	}
	body, err := json.Marshal(chatRequest{Message: question, SearchMode: "hybrid", NResults: 3})
	if err != nil {
		return "", err
	}
	rctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, c.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		c.fail()
		return "", fmt.Errorf("chat api request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		c.fail()
		return "", fmt.Errorf("chat api status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.fail()
		return "", fmt.Errorf("chat api decode: %w", err)
	}
	if out.Response == "" {
		c.fail()
		return "", fmt.Errorf("chat api returned empty response")
	}
	return StripMarkdown(out.Response), nil
}

func (c *Client) fail() {
	if telemetry.LLMFailures != nil {
		telemetry.LLMFailures.Inc()
	}
}

// Health probes the API's /health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	url := strings.Replace(c.APIURL, "/chat", "/health", 1)
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(rctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	return resp.StatusCode == http.StatusOK
}

var (
	reBoldStar   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalicStar = regexp.MustCompile(`\*([^*]+)\*`)
	reBoldUnder  = regexp.MustCompile(`__([^_]+)__`)
	reItalUnder  = regexp.MustCompile(`_([^_]+)_`)
	reCodeBlock  = regexp.MustCompile("```[^`]*```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reAngleURL   = regexp.MustCompile(`<([^>]+)>`)
	reHeader     = regexp.MustCompile(`(?m)^#+\s*`)
	reBullet     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reNumbered   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	reBlankLines = regexp.MustCompile(`\n\s*\n`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// StripMarkdown flattens markdown to plain text since IRC renders none of it.
func StripMarkdown(text string) string {
	text = reBoldStar.ReplaceAllString(text, "$1")
	text = reItalicStar.ReplaceAllString(text, "$1")
	text = reBoldUnder.ReplaceAllString(text, "$1")
	text = reItalUnder.ReplaceAllString(text, "$1")
	text = reCodeBlock.ReplaceAllString(text, "")
	text = reInlineCode.ReplaceAllString(text, "$1")
	text = reLink.ReplaceAllString(text, "$1")
	text = reAngleURL.ReplaceAllString(text, "$1")
	text = reHeader.ReplaceAllString(text, "")
	text = reBullet.ReplaceAllString(text, "")
	text = reNumbered.ReplaceAllString(text, "")
	text = reBlankLines.ReplaceAllString(text, " ")
	text = reSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
