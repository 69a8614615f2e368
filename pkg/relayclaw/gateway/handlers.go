package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// errorResponse is the consistent error format.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	var resp errorResponse
	resp.Error.Message = msg
	resp.Error.Code = code
	g.writeJSON(w, code, resp)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleRoot implements GET /
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, RootText)
}

// handleHealth implements GET /health
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": g.config.Version,
		"uptime":  g.uptime(),
	})
}

// handleStatus implements GET /api/status
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"version": g.config.Version,
		"uptime":  g.uptime(),
	}
	if g.stats != nil {
		body["relay"] = g.stats.Stats()
	}
	g.writeJSON(w, http.StatusOK, body)
}

// handleWebhook implements POST /telegram/webhook/{secret}. Once the secret
// matches, the response is always 200: Telegram retries anything else, and
// processing happens after the response.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if g.config.WebhookSecret == "" || !compareTokens(r.PathValue("secret"), g.config.WebhookSecret) {
		g.writeError(w, "not found", http.StatusNotFound)
		return
	}
	defer g.ack(w)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes))
	if err != nil {
		g.logger.Warn("webhook body unreadable", "error", err)
		return
	}

	msg, err := g.parse(raw)
	if err != nil {
		g.logger.Warn("webhook update rejected", "error", err, "bytes", len(raw))
		return
	}
	if msg == nil {
		return
	}

	if _, err := g.acceptor.Accept(msg); err != nil {
		g.logger.Warn("update not accepted", "error", err, "chat_id", msg.ChatID)
	}
}

func (g *Gateway) ack(w http.ResponseWriter) {
	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (g *Gateway) uptime() string {
	uptime := time.Since(g.startedAt).Round(time.Second).String()
	if uptime == "0s" {
		uptime = "<1s"
	}
	return uptime
}
