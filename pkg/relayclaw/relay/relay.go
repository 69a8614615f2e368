// Package relay runs each accepted Telegram message as a detached task:
// gate, converse with the assistant, reply in thread. The caller never waits
// for the outcome, and a failing task never affects another.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/assistant"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/gate"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/sessions"
)

// ErrClosed is returned by Accept after Shutdown has started.
var ErrClosed = errors.New("relay: closed")

// Conversation produces the assistant reply for one participant's text.
type Conversation interface {
	Converse(ctx context.Context, key sessions.Key, text string) (string, error)
}

// Gatekeeper decides whether a message is dispatched.
type Gatekeeper interface {
	Handle(msg *channels.IncomingMessage) (gate.Dispatch, bool)
}

// Config bounds the detached tasks.
type Config struct {
	// UpdateTimeout is the deadline for one update end to end (default: 3m).
	UpdateTimeout time.Duration `yaml:"update_timeout"`

	// MaxConcurrent caps updates being processed at once (default: 16).
	MaxConcurrent int `yaml:"max_concurrent"`

	// SerializePerKey runs one update per participant at a time. Waiting
	// for the participant happens before a concurrency slot is taken.
	SerializePerKey bool `yaml:"-"`
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		UpdateTimeout: 3 * time.Minute,
		MaxConcurrent: 16,
	}
}

// Stats are cumulative counters since start.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Skipped  int64 `json:"skipped"`
	Replied  int64 `json:"replied"`
	Failed   int64 `json:"failed"`
	InFlight int64 `json:"in_flight"`
}

// Relay owns the detached update tasks.
type Relay struct {
	gate   Gatekeeper
	conv   Conversation
	sender channels.Sender
	cfg    Config
	logger *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	locks  *sessions.KeyedMutex
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	accepted atomic.Int64
	skipped  atomic.Int64
	replied  atomic.Int64
	failed   atomic.Int64
	inFlight atomic.Int64
}

// New creates a Relay. Tasks run under a context owned by the Relay, not by
// whoever calls Accept.
func New(g Gatekeeper, conv Conversation, sender channels.Sender, cfg Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = def.UpdateTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}

	base, cancel := context.WithCancel(context.Background())
	r := &Relay{
		gate:   g,
		conv:   conv,
		sender: sender,
		cfg:    cfg,
		logger: logger.With("component", "relay"),
		base:   base,
		cancel: cancel,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
	if cfg.SerializePerKey {
		r.locks = sessions.NewKeyedMutex()
	}
	return r
}

// Accept gates msg and, if dispatched, starts its task in the background.
// It never blocks on the assistant or on Telegram. The returned bool reports
// whether a task was started.
func (r *Relay) Accept(msg *channels.IncomingMessage) (bool, error) {
	d, ok := r.gate.Handle(msg)
	if !ok {
		r.skipped.Add(1)
		return false, nil
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return false, ErrClosed
	}

	r.accepted.Add(1)
	r.wg.Add(1)
	go r.run(d)
	return true, nil
}

func (r *Relay) run(d gate.Dispatch) {
	defer r.wg.Done()

	logger := r.logger.With(
		"task_id", uuid.NewString(),
		"chat_id", d.ChatID,
		"user_id", d.Key.UserID,
	)

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.base, r.cfg.UpdateTimeout)
	defer cancel()

	// Queue behind the same participant first so a busy key holds at most
	// one slot.
	if r.locks != nil {
		unlock, err := r.locks.Lock(ctx, d.Key)
		if err != nil {
			r.failed.Add(1)
			logger.Warn("update dropped while waiting for earlier messages", "error", err)
			return
		}
		defer unlock()
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		r.failed.Add(1)
		logger.Warn("update dropped while waiting for a slot", "error", ctx.Err())
		return
	}
	defer func() { <-r.sem }()

	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)

	defer func() {
		if rec := recover(); rec != nil {
			r.failed.Add(1)
			logger.Error("update task panicked", "panic", fmt.Sprint(rec))
		}
	}()

	if err := r.process(ctx, d, logger); err != nil {
		r.failed.Add(1)
		return
	}
	r.replied.Add(1)
	logger.Info("update handled", "duration_ms", time.Since(start).Milliseconds())
}

// process runs one exchange and delivers the reply. Errors are logged here;
// the returned error only feeds the counters.
func (r *Relay) process(ctx context.Context, d gate.Dispatch, logger *slog.Logger) error {
	reply, err := r.conv.Converse(ctx, d.Key, d.Text)
	if err != nil {
		logConverseError(logger, err)
		return err
	}

	if err := r.sender.Send(ctx, d.ChatID, &channels.OutgoingMessage{
		Content: reply,
		ReplyTo: d.ReplyTo,
	}); err != nil {
		logger.Error("reply delivery failed", "error", err)
		return err
	}
	return nil
}

func logConverseError(logger *slog.Logger, err error) {
	var runErr *assistant.RunFailure
	switch {
	case errors.Is(err, sessions.ErrSessionCreate):
		logger.Error("session create failed, update dropped", "error", err)
	case errors.As(err, &runErr):
		logger.Error("assistant run failed, update dropped", "status", runErr.Status, "run_id", runErr.RunID)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("update timed out, update dropped", "error", err)
	case errors.Is(err, context.Canceled):
		logger.Warn("update cancelled", "error", err)
	default:
		logger.Error("conversation failed, update dropped", "error", err)
	}
}

// Stats returns a snapshot of the counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Accepted: r.accepted.Load(),
		Skipped:  r.skipped.Load(),
		Replied:  r.replied.Load(),
		Failed:   r.failed.Load(),
		InFlight: r.inFlight.Load(),
	}
}

// Shutdown stops accepting and waits for running tasks until ctx is done,
// then cancels whatever is left.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.closeMu.Lock()
	r.closed = true
	r.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
