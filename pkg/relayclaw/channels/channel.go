// Package channels defines the channel-neutral message types that flow
// between a messaging transport and the relay, plus the Sender interface
// replies go out through.
package channels

import (
	"context"
	"errors"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageSticker  MessageType = "sticker"
	MessageOther    MessageType = "other"
)

// ChatType is the conversation kind as reported by the platform.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// Sender delivers replies to a chat.
type Sender interface {
	// Name returns the channel identifier (e.g. "telegram").
	Name() string

	// Send sends a message to the specified chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error
}

// IncomingMessage represents a message received from a channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source chat.
	ID string

	// Channel identifies the source channel (e.g. "telegram").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// ChatID is the group or DM identifier.
	ChatID string

	// ChatType is the conversation kind.
	ChatType ChatType

	// IsGroup is true for anything that is not a private chat.
	IsGroup bool

	// Type is the message content type.
	Type MessageType

	// Content is the text body. Media captions are not copied here.
	Content string

	// Caption is the media caption, if any.
	Caption string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// Errors.
var (
	ErrSendFailed    = errors.New("failed to send message")
	ErrInvalidUpdate = errors.New("invalid update payload")
)
