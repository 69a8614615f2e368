package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/sessions"
)

// DefaultFallbackReply is returned when a run completes without any
// assistant text.
const DefaultFallbackReply = "Sorry, I couldn't come up with a reply."

// cancelRunTimeout bounds the cancel request sent for an abandoned run.
const cancelRunTimeout = 5 * time.Second

// RunFailure reports a run that ended in a non-completed terminal status, or
// that never finished within the polling budget (Status RunTimeout).
type RunFailure struct {
	RunID  string
	Status RunStatus
}

func (e *RunFailure) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("assistant run ended with status %s", e.Status)
	}
	return fmt.Sprintf("assistant run %s ended with status %s", e.RunID, e.Status)
}

// SessionResolver maps a key to a session handle.
type SessionResolver interface {
	Resolve(ctx context.Context, key sessions.Key) (string, error)
}

// DriverConfig controls polling and reply selection.
type DriverConfig struct {
	AssistantID string

	PollInterval    time.Duration
	PollMaxAttempts int
	RunTimeout      time.Duration

	// RecentTurns bounds how many turns are fetched to find the reply.
	RecentTurns int

	FallbackReply string

	// SerializePerKey holds a per-key lock across a whole exchange.
	SerializePerKey bool
}

func (c *DriverConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollMaxAttempts <= 0 {
		c.PollMaxAttempts = 60
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 2 * time.Minute
	}
	if c.RecentTurns <= 0 {
		c.RecentTurns = 10
	}
	if c.FallbackReply == "" {
		c.FallbackReply = DefaultFallbackReply
	}
}

// Driver runs one exchange per inbound message.
type Driver struct {
	service  Service
	resolver SessionResolver
	cfg      DriverConfig
	locks    *sessions.KeyedMutex
	logger   *slog.Logger
}

// NewDriver creates a Driver. Zero config fields take their defaults.
func NewDriver(service Service, resolver SessionResolver, cfg DriverConfig, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	d := &Driver{
		service:  service,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.With("component", "assistant.driver"),
	}
	if cfg.SerializePerKey {
		d.locks = sessions.NewKeyedMutex()
	}
	return d
}

// Converse appends text to key's session, runs the assistant and returns its
// reply. The appended user turn is not rolled back on failure.
func (d *Driver) Converse(ctx context.Context, key sessions.Key, text string) (string, error) {
	if d.locks != nil {
		unlock, err := d.locks.Lock(ctx, key)
		if err != nil {
			return "", err
		}
		defer unlock()
	}

	handle, err := d.resolver.Resolve(ctx, key)
	if err != nil {
		return "", err
	}

	if err := d.service.AppendUserTurn(ctx, handle, text); err != nil {
		return "", err
	}

	run, err := d.service.StartRun(ctx, handle, d.cfg.AssistantID)
	if err != nil {
		return "", err
	}

	logger := d.logger.With("key", key.String(), "thread_id", handle, "run_id", run.ID)
	logger.Debug("run started")

	runID := run.ID
	run, err = d.awaitRun(ctx, handle, run)
	if err != nil {
		d.cancelRun(ctx, handle, runID, logger)
		return "", err
	}
	if run.Status != RunCompleted {
		return "", &RunFailure{RunID: run.ID, Status: run.Status}
	}

	turns, err := d.service.ListRecentTurns(ctx, handle, d.cfg.RecentTurns)
	if err != nil {
		return "", err
	}
	for _, t := range turns {
		if t.Role != RoleAssistant {
			continue
		}
		if t.Text == "" {
			break
		}
		logger.Debug("run completed", "reply_len", len(t.Text))
		return t.Text, nil
	}

	logger.Info("run completed without assistant text, using fallback")
	return d.cfg.FallbackReply, nil
}

// awaitRun polls until run leaves the pending states, the attempt budget is
// spent or the run timeout elapses.
func (d *Driver) awaitRun(ctx context.Context, handle string, run Run) (Run, error) {
	if !run.Status.Pending() {
		return run, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.RunTimeout)
	defer cancel()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= d.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return d.timedOut(run, ctx.Err())
		case <-ticker.C:
		}

		next, err := d.service.GetRun(ctx, handle, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				return d.timedOut(run, ctx.Err())
			}
			return Run{}, err
		}
		run = next
		if !run.Status.Pending() {
			return run, nil
		}
	}
	return Run{}, &RunFailure{RunID: run.ID, Status: RunTimeout}
}

// timedOut maps the run deadline to a RunFailure and passes parent
// cancellation through unchanged.
func (d *Driver) timedOut(run Run, err error) (Run, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		return Run{}, &RunFailure{RunID: run.ID, Status: RunTimeout}
	}
	return Run{}, err
}

// cancelRun stops a run the driver stopped waiting for, so the thread accepts
// the next message. It runs on a short context detached from ctx.
func (d *Driver) cancelRun(ctx context.Context, handle, runID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelRunTimeout)
	defer cancel()

	if err := d.service.CancelRun(ctx, handle, runID); err != nil {
		logger.Debug("abandoned run not cancelled", "error", err)
		return
	}
	logger.Debug("abandoned run cancelled")
}
