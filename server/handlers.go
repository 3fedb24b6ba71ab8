package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
)

type handlers struct {
	db     *sql.DB
	status BotStatus
	llm    HealthChecker
}

// handleHealthz is the liveness probe: process up, database reachable when
// one is configured.
func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz is the readiness probe: database plus the chat connection.
// The chat API check is advisory and reported but never fails readiness.
func (h *handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": "database",
				"error":        err.Error(),
			})
			return
		}
	}
	if h.status != nil && h.status.ConnState() != "authenticated" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       "not_ready",
			"failed_check": "chat_connection",
			"error":        "connection state " + h.status.ConnState(),
		})
		return
	}

	body := map[string]string{"status": "ready"}
	if h.llm != nil {
		body["chat_api"] = "down"
		if h.llm.Health(r.Context()) {
			body["chat_api"] = "up"
		}
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// handleStatus returns a JSON snapshot of the bot's runtime state.
func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	type rateUsage struct {
		Used  int `json:"used"`
		Burst int `json:"burst"`
	}
	out := struct {
		Connection     string    `json:"connection"`
		Rate           rateUsage `json:"rate"`
		QueueDepth     int       `json:"queue_depth"`
		ActiveSessions int       `json:"active_sessions"`
	}{}
	if h.status != nil {
		out.Connection = h.status.ConnState()
		out.Rate.Used, out.Rate.Burst = h.status.RateUsage()
		out.QueueDepth = h.status.QueueDepth()
		out.ActiveSessions = h.status.ActiveSessions()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
