// Package sessions maps conversation participants to upstream assistant
// sessions (OpenAI threads) and keeps that mapping durable across restarts.
//
// A Record is only valid while its Version matches the active instruction
// version. Stale records are replaced by the Resolver on next access, never
// updated in place.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Key identifies one participant inside one conversation.
type Key struct {
	ChatID string // Telegram chat ID (private chat, group or supergroup).
	UserID string // Telegram user ID of the sender.
}

// String returns the canonical "chatID:userID" form used as the storage key.
func (k Key) String() string {
	return k.ChatID + ":" + k.UserID
}

// ParseKey parses a "chatID:userID" string. The chat ID never contains a
// colon, so everything after the first one belongs to the user part.
func ParseKey(s string) (Key, error) {
	chatID, userID, ok := strings.Cut(s, ":")
	if !ok || chatID == "" || userID == "" {
		return Key{}, fmt.Errorf("sessions: invalid key %q", s)
	}
	return Key{ChatID: chatID, UserID: userID}, nil
}

// Record is the persisted upstream session for a Key.
type Record struct {
	// Handle is the opaque session ID issued by the assistant service.
	Handle string `json:"handle"`

	// Version is the instruction version in effect when Handle was created.
	// Legacy entries have no version and are therefore always stale.
	Version string `json:"version"`
}

// Current reports whether the record may be reused under activeVersion.
func (r Record) Current(activeVersion string) bool {
	return r.Handle != "" && r.Version != "" && r.Version == activeVersion
}

// UnmarshalJSON accepts both the current object form and the legacy bare
// handle string.
func (r *Record) UnmarshalJSON(data []byte) error {
	var handle string
	if err := json.Unmarshal(data, &handle); err == nil {
		*r = Record{Handle: handle}
		return nil
	}
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Record(p)
	return nil
}

// Store is the durable Key → Record mapping.
type Store interface {
	// Load reads durable state. Missing or malformed state loads as an empty
	// mapping; only I/O failures unrelated to content are returned.
	Load(ctx context.Context) error

	// Get returns the record for key, if any.
	Get(ctx context.Context, key Key) (Record, bool, error)

	// Put stores rec under key and persists the change before returning.
	Put(ctx context.Context, key Key, rec Record) error

	// ResetAll deletes all durable state.
	ResetAll(ctx context.Context) error

	// All returns a snapshot of every record keyed by Key.String().
	All(ctx context.Context) (map[string]Record, error)

	// Close releases backend resources.
	Close() error
}

// ErrSessionCreate marks a failure to obtain a new session from the
// assistant service.
var ErrSessionCreate = errors.New("sessions: upstream session create failed")
