// Package gate decides which inbound messages reach the assistant. Private
// chats pass through; in groups the bot answers only when mentioned, and the
// mention is stripped before the text is forwarded.
package gate

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/sessions"
)

// Dispatch is a message accepted for the assistant.
type Dispatch struct {
	Key     sessions.Key
	Text    string
	ChatID  string
	ReplyTo string
}

// SkipReason explains why a message was not dispatched.
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipNoText            SkipReason = "no_text"
	SkipNoSender          SkipReason = "no_sender"
	SkipNotMentioned      SkipReason = "not_mentioned"
	SkipEmptyAfterMention SkipReason = "empty_after_mention"
)

// Gate filters and normalizes inbound messages. It keeps no state between
// messages.
type Gate struct {
	mention *regexp.Regexp
	logger  *slog.Logger
}

// New creates a Gate for the bot with the given username (without "@").
func New(botUsername string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	username := strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	return &Gate{
		// \b stops "@bot" from matching inside "@bot2" or "@bot_helper".
		mention: regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(username) + `\b`),
		logger:  logger.With("component", "gate"),
	}
}

// Handle returns the Dispatch for msg, or false when the message should be
// ignored.
func (g *Gate) Handle(msg *channels.IncomingMessage) (Dispatch, bool) {
	d, reason := g.Evaluate(msg)
	if reason != SkipNone {
		if msg != nil {
			g.logger.Debug("message skipped", "chat_id", msg.ChatID, "msg_id", msg.ID, "reason", reason)
		}
		return Dispatch{}, false
	}
	return d, true
}

// Evaluate is Handle with the skip reason exposed.
func (g *Gate) Evaluate(msg *channels.IncomingMessage) (Dispatch, SkipReason) {
	if msg == nil || msg.Content == "" {
		return Dispatch{}, SkipNoText
	}
	if msg.From == "" {
		return Dispatch{}, SkipNoSender
	}

	text := msg.Content
	if msg.ChatType != channels.ChatPrivate {
		if !g.mention.MatchString(text) {
			return Dispatch{}, SkipNotMentioned
		}
		text = strings.TrimSpace(g.mention.ReplaceAllString(text, ""))
		if text == "" {
			return Dispatch{}, SkipEmptyAfterMention
		}
	}

	return Dispatch{
		Key:     sessions.Key{ChatID: msg.ChatID, UserID: msg.From},
		Text:    text,
		ChatID:  msg.ChatID,
		ReplyTo: msg.ID,
	}, SkipNone
}
