package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
)

// ParseUpdate converts a raw webhook Update into an IncomingMessage. It
// returns nil without error for updates that carry no message (callback
// queries, reactions, edits).
func ParseUpdate(raw []byte) (*channels.IncomingMessage, error) {
	var u tgUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("%w: %w", channels.ErrInvalidUpdate, err)
	}
	if u.Message == nil {
		return nil, nil
	}
	return toIncoming(u.Message), nil
}

func toIncoming(msg *tgMessage) *channels.IncomingMessage {
	chatType := channels.ChatType(msg.Chat.Type)

	from := ""
	fromName := ""
	if msg.From != nil {
		from = strconv.FormatInt(msg.From.ID, 10)
		fromName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if fromName == "" {
			fromName = msg.From.Username
		}
	}

	incoming := &channels.IncomingMessage{
		ID:        strconv.FormatInt(int64(msg.MessageID), 10),
		Channel:   "telegram",
		From:      from,
		FromName:  fromName,
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		ChatType:  chatType,
		IsGroup:   chatType != channels.ChatPrivate,
		Type:      channels.MessageText,
		Content:   msg.Text,
		Caption:   msg.Caption,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	switch {
	case len(msg.Photo) > 0:
		incoming.Type = channels.MessageImage
	case msg.Audio != nil, msg.Voice != nil:
		incoming.Type = channels.MessageAudio
	case msg.Video != nil:
		incoming.Type = channels.MessageVideo
	case msg.Document != nil:
		incoming.Type = channels.MessageDocument
	case msg.Sticker != nil:
		incoming.Type = channels.MessageSticker
	case msg.Text == "":
		incoming.Type = channels.MessageOther
	}
	return incoming
}

// ---------- Telegram Bot API Types ----------

type tgUpdate struct {
	UpdateID      int64      `json:"update_id"`
	Message       *tgMessage `json:"message"`
	EditedMessage *tgMessage `json:"edited_message"`
}

type tgMessage struct {
	MessageID int               `json:"message_id"`
	From      *tgUser           `json:"from"`
	Chat      tgChat            `json:"chat"`
	Date      int               `json:"date"`
	Text      string            `json:"text"`
	Caption   string            `json:"caption"`
	Photo     []json.RawMessage `json:"photo"`
	Audio     json.RawMessage   `json:"audio"`
	Voice     json.RawMessage   `json:"voice"`
	Video     json.RawMessage   `json:"video"`
	Document  json.RawMessage   `json:"document"`
	Sticker   json.RawMessage   `json:"sticker"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsBot     bool   `json:"is_bot"`
}

type tgChat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"` // "private", "group", "supergroup", "channel"
	Title string `json:"title"`
}
