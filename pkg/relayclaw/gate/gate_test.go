package gate

import (
	"testing"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/sessions"
)

func TestGate_Evaluate(t *testing.T) {
	t.Parallel()
	g := New("BotName", nil)

	tests := []struct {
		name     string
		chatType channels.ChatType
		content  string
		from     string
		wantText string
		reason   SkipReason
	}{
		{"private passthrough", channels.ChatPrivate, "  hello there ", "1", "  hello there ", SkipNone},
		{"private mention kept", channels.ChatPrivate, "@BotName hi", "1", "@BotName hi", SkipNone},
		{"group without mention", channels.ChatGroup, "hello everyone", "1", "", SkipNotMentioned},
		{"group mention stripped", channels.ChatGroup, "@BotName hello", "1", "hello", SkipNone},
		{"supergroup mention mid text", channels.ChatSupergroup, "hey @BotName what's up", "1", "hey  what's up", SkipNone},
		{"mention case insensitive", channels.ChatSupergroup, "@botname hello", "1", "hello", SkipNone},
		{"repeated mention", channels.ChatGroup, "@BotName @BotName ping", "1", "ping", SkipNone},
		{"only mention", channels.ChatGroup, "  @BotName  ", "1", "", SkipEmptyAfterMention},
		{"channel post needs mention", channels.ChatChannel, "news", "1", "", SkipNotMentioned},
		{"longer username not a mention", channels.ChatGroup, "@BotName2 hi", "1", "", SkipNotMentioned},
		{"underscore suffix not a mention", channels.ChatGroup, "@BotName_helper hi", "1", "", SkipNotMentioned},
		{"mention before punctuation", channels.ChatGroup, "@BotName, hi", "1", ", hi", SkipNone},
		{"other bot and this bot", channels.ChatGroup, "@BotName2 @BotName hi", "1", "@BotName2  hi", SkipNone},
		{"no text", channels.ChatPrivate, "", "1", "", SkipNoText},
		{"no sender", channels.ChatPrivate, "hi", "", "", SkipNoSender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := &channels.IncomingMessage{
				ID:       "99",
				From:     tt.from,
				ChatID:   "-500",
				ChatType: tt.chatType,
				Content:  tt.content,
			}
			d, reason := g.Evaluate(msg)
			if reason != tt.reason {
				t.Fatalf("reason = %q, want %q", reason, tt.reason)
			}
			if reason != SkipNone {
				return
			}
			if d.Text != tt.wantText {
				t.Errorf("text = %q, want %q", d.Text, tt.wantText)
			}
		})
	}
}

func TestGate_HandleDispatchFields(t *testing.T) {
	t.Parallel()
	g := New("@BotName", nil)

	d, ok := g.Handle(&channels.IncomingMessage{
		ID:       "42",
		From:     "777",
		ChatID:   "-100123",
		ChatType: channels.ChatSupergroup,
		Content:  "@BotName hello",
	})
	if !ok {
		t.Fatal("expected dispatch")
	}
	want := Dispatch{
		Key:     sessions.Key{ChatID: "-100123", UserID: "777"},
		Text:    "hello",
		ChatID:  "-100123",
		ReplyTo: "42",
	}
	if d != want {
		t.Errorf("dispatch = %+v, want %+v", d, want)
	}
}

func TestGate_CaptionIsNotText(t *testing.T) {
	t.Parallel()
	g := New("BotName", nil)
	_, ok := g.Handle(&channels.IncomingMessage{
		ID:       "1",
		From:     "1",
		ChatID:   "1",
		ChatType: channels.ChatPrivate,
		Type:     channels.MessageImage,
		Caption:  "a picture",
	})
	if ok {
		t.Error("caption-only message should be skipped")
	}
}

func TestGate_NilMessage(t *testing.T) {
	t.Parallel()
	if _, ok := New("b", nil).Handle(nil); ok {
		t.Error("nil message should be skipped")
	}
}

func TestGate_UsernameWithRegexChars(t *testing.T) {
	t.Parallel()
	g := New("my.bot", nil)
	if _, ok := g.Handle(&channels.IncomingMessage{ID: "1", From: "1", ChatID: "1", ChatType: channels.ChatGroup, Content: "@myxbot hi"}); ok {
		t.Error("dot in username must match literally")
	}
}
