package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf16"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
)

type recordedCall struct {
	Method  string
	Payload map[string]any
}

// newBotAPI fakes the Bot API. Every call is recorded; getMe and
// getWebhookInfo return canned results and everything else returns true.
func newBotAPI(t *testing.T, token string) (*httptest.Server, func() []recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := "/bot" + token + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, prefix)

		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		calls = append(calls, recordedCall{Method: method, Payload: payload})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Relay","username":"RelayTestBot"}}`)
		case "getWebhookInfo":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"url":"https://example.com/telegram/webhook/s3cret","pending_update_count":3}}`)
		case "sendMessage":
			if payload["chat_id"] == float64(-1) {
				_, _ = io.WriteString(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked"}`)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":900}}`)
		default:
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

func TestSend_ThreadedReply(t *testing.T) {
	t.Parallel()
	srv, calls := newBotAPI(t, "123:abc")
	tg := New(Config{Token: "123:abc", APIBase: srv.URL}, nil)

	err := tg.Send(context.Background(), "-100200", &channels.OutgoingMessage{Content: "hello", ReplyTo: "77"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := calls()
	if len(got) != 1 || got[0].Method != "sendMessage" {
		t.Fatalf("calls = %+v, want one sendMessage", got)
	}
	p := got[0].Payload
	if p["chat_id"] != float64(-100200) || p["text"] != "hello" {
		t.Errorf("payload = %+v", p)
	}
	rp, ok := p["reply_parameters"].(map[string]any)
	if !ok || rp["message_id"] != float64(77) {
		t.Errorf("reply_parameters = %+v, want message_id 77", p["reply_parameters"])
	}
	if _, ok := p["parse_mode"]; ok {
		t.Error("parse_mode should be omitted for plain text")
	}
}

func TestSend_SplitsLongText(t *testing.T) {
	t.Parallel()
	srv, calls := newBotAPI(t, "tok")
	tg := New(Config{Token: "tok", APIBase: srv.URL}, nil)

	long := strings.Repeat("a", MaxMessageLength+10)
	if err := tg.Send(context.Background(), "5", &channels.OutgoingMessage{Content: long, ReplyTo: "1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("sendMessage calls = %d, want 2", len(got))
	}
	if _, ok := got[0].Payload["reply_parameters"]; !ok {
		t.Error("first part should be threaded")
	}
	if _, ok := got[1].Payload["reply_parameters"]; ok {
		t.Error("only the first part should be threaded")
	}
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()
	srv, _ := newBotAPI(t, "tok")
	tg := New(Config{Token: "tok", APIBase: srv.URL}, nil)

	err := tg.Send(context.Background(), "-1", &channels.OutgoingMessage{Content: "x"})
	if !errors.Is(err, channels.ErrSendFailed) {
		t.Fatalf("err = %v, want ErrSendFailed", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		t.Errorf("err = %v, want APIError 403", err)
	}
}

func TestSend_InvalidChatID(t *testing.T) {
	t.Parallel()
	tg := New(Config{Token: "tok", APIBase: "http://127.0.0.1:0"}, nil)
	if err := tg.Send(context.Background(), "not-a-number", &channels.OutgoingMessage{Content: "x"}); err == nil {
		t.Fatal("expected error for invalid chat id")
	}
}

func TestWebhookManagement(t *testing.T) {
	t.Parallel()
	srv, calls := newBotAPI(t, "tok")
	tg := New(Config{Token: "tok", APIBase: srv.URL}, nil)
	ctx := context.Background()

	if err := tg.SetWebhook(ctx, WebhookOptions{
		URL:            "https://example.com/telegram/webhook/s3cret",
		AllowedUpdates: []string{"message"},
	}); err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	info, err := tg.GetWebhookInfo(ctx)
	if err != nil {
		t.Fatalf("GetWebhookInfo: %v", err)
	}
	if info.PendingUpdateCount != 3 {
		t.Errorf("pending = %d, want 3", info.PendingUpdateCount)
	}
	if err := tg.DeleteWebhook(ctx, true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	me, err := tg.GetMe(ctx)
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.Username != "RelayTestBot" {
		t.Errorf("username = %q", me.Username)
	}

	got := calls()
	if got[0].Method != "setWebhook" || got[0].Payload["url"] != "https://example.com/telegram/webhook/s3cret" {
		t.Errorf("setWebhook call = %+v", got[0])
	}
	if got[2].Method != "deleteWebhook" || got[2].Payload["drop_pending_updates"] != true {
		t.Errorf("deleteWebhook call = %+v", got[2])
	}
}

func TestAPIError_TokenNotLeaked(t *testing.T) {
	t.Parallel()
	// Nothing listens on port 1, so the request fails at dial time.
	tg := New(Config{Token: "999:SECRET", APIBase: "http://127.0.0.1:1"}, nil)
	_, err := tg.GetMe(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Errorf("error leaks token: %v", err)
	}
}

func TestRedactWebhookURL(t *testing.T) {
	t.Parallel()
	if got := redactWebhookURL("https://x.dev/telegram/webhook/abc"); got != "https://x.dev/telegram/webhook/***" {
		t.Errorf("got %q", got)
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"exact", "abcde", 5, []string{"abcde"}},
		{"hard cut", "abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"newline preferred", "abcd\nefghij", 8, []string{"abcd\n", "efghij"}},
		{"multibyte", "ááááá", 2, []string{"áá", "áá", "á"}},
		{"astral counts double", "😀😀😀", 4, []string{"😀😀", "😀"}},
		{"astral not split", "a😀b", 2, []string{"a", "😀", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitMessage(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("splitMessage(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSplitMessage_EmojiWithinLimit(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("😀", MaxMessageLength)

	parts := splitMessage(text, MaxMessageLength)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	for i, p := range parts {
		if n := len(utf16.Encode([]rune(p))); n > MaxMessageLength {
			t.Errorf("part %d is %d UTF-16 units, limit %d", i, n, MaxMessageLength)
		}
	}
	if strings.Join(parts, "") != text {
		t.Error("parts do not reassemble the original text")
	}
}
