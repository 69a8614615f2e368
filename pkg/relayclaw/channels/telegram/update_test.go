package telegram

import (
	"errors"
	"testing"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
)

func TestParseUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantNil  bool
		chatID   string
		from     string
		chatType channels.ChatType
		isGroup  bool
		content  string
		msgType  channels.MessageType
	}{
		{
			name:     "private text",
			raw:      `{"update_id":1,"message":{"message_id":10,"date":1700000000,"from":{"id":555,"first_name":"Ana"},"chat":{"id":555,"type":"private"},"text":"hi"}}`,
			chatID:   "555",
			from:     "555",
			chatType: channels.ChatPrivate,
			content:  "hi",
			msgType:  channels.MessageText,
		},
		{
			name:     "supergroup mention",
			raw:      `{"update_id":2,"message":{"message_id":11,"from":{"id":7},"chat":{"id":-1001234,"type":"supergroup"},"text":"@RelayBot hello"}}`,
			chatID:   "-1001234",
			from:     "7",
			chatType: channels.ChatSupergroup,
			isGroup:  true,
			content:  "@RelayBot hello",
			msgType:  channels.MessageText,
		},
		{
			name:     "photo caption is not content",
			raw:      `{"update_id":3,"message":{"message_id":12,"from":{"id":7},"chat":{"id":7,"type":"private"},"photo":[{"file_id":"a"}],"caption":"look"}}`,
			chatID:   "7",
			from:     "7",
			chatType: channels.ChatPrivate,
			content:  "",
			msgType:  channels.MessageImage,
		},
		{
			name:    "edited message ignored",
			raw:     `{"update_id":4,"edited_message":{"message_id":13,"chat":{"id":7,"type":"private"},"text":"x"}}`,
			wantNil: true,
		},
		{
			name:    "callback query ignored",
			raw:     `{"update_id":5,"callback_query":{"id":"q"}}`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := ParseUpdate([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseUpdate: %v", err)
			}
			if tt.wantNil {
				if msg != nil {
					t.Fatalf("expected nil message, got %+v", msg)
				}
				return
			}
			if msg == nil {
				t.Fatal("expected message")
			}
			if msg.ChatID != tt.chatID || msg.From != tt.from {
				t.Errorf("chat/from = %s/%s, want %s/%s", msg.ChatID, msg.From, tt.chatID, tt.from)
			}
			if msg.ChatType != tt.chatType || msg.IsGroup != tt.isGroup {
				t.Errorf("chat type = %s (group %v), want %s (group %v)", msg.ChatType, msg.IsGroup, tt.chatType, tt.isGroup)
			}
			if msg.Content != tt.content {
				t.Errorf("content = %q, want %q", msg.Content, tt.content)
			}
			if msg.Type != tt.msgType {
				t.Errorf("type = %s, want %s", msg.Type, tt.msgType)
			}
		})
	}
}

func TestParseUpdate_Malformed(t *testing.T) {
	t.Parallel()
	_, err := ParseUpdate([]byte("{broken"))
	if !errors.Is(err, channels.ErrInvalidUpdate) {
		t.Fatalf("err = %v, want ErrInvalidUpdate", err)
	}
}

func TestParseUpdate_MessageID(t *testing.T) {
	t.Parallel()
	msg, err := ParseUpdate([]byte(`{"update_id":1,"message":{"message_id":321,"from":{"id":1},"chat":{"id":1,"type":"private"},"text":"x"}}`))
	if err != nil || msg == nil {
		t.Fatalf("ParseUpdate = %v, %v", msg, err)
	}
	if msg.ID != "321" {
		t.Errorf("ID = %q, want 321", msg.ID)
	}
}
