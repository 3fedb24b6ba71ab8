package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var req struct {
			Message    string `json:"message"`
			SearchMode string `json:"search_mode"`
			NResults   int    `json:"n_results"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Message != "who is zeus" || req.SearchMode != "hybrid" || req.NResults != 3 {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"response": "**Zeus** is the king of the gods."}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	got, err := c.Ask(context.Background(), "who is zeus")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "Zeus is the king of the gods." {
		t.Errorf("Ask = %q", got)
	}
}

func TestAskErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(srv.URL, time.Second)
	if _, err := c.Ask(context.Background(), "q"); err == nil {
		t.Error("expected error on 502")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": ""}`))
	}))
	defer empty.Close()
	c = New(empty.URL, time.Second)
	if _, err := c.Ask(context.Background(), "q"); err == nil {
		t.Error("expected error on empty response")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL+"/chat", time.Second)
	if !c.Health(context.Background()) {
		t.Error("Health = false, want true")
	}
	c = New("http://127.0.0.1:1/chat", time.Second)
	if c.Health(context.Background()) {
		t.Error("Health = true for unreachable API")
	}
}

func TestStripMarkdown(t *testing.T) {
	cases := map[string]string{
		"**bold** and *italic*":          "bold and italic",
		"`code` and ```\nblock\n```":     "code and",
		"[link](https://example.com)":    "link",
		"# Header\ntext":                 "Header text",
		"- one\n- two":                   "one two",
		"1. first\n2. second":            "first second",
		"plain text":                     "plain text",
		"line one\n\n\nline two":         "line one line two",
		"__strong__ and _em_ remainders": "strong and em remainders",
	}
	for in, want := range cases {
		if got := StripMarkdown(in); got != want {
			t.Errorf("StripMarkdown(%q) = %q, want %q", in, got, want)
		}
	}
}
