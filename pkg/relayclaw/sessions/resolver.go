package sessions

import (
	"context"
	"fmt"
	"log/slog"
)

// Creator obtains a fresh session handle from the assistant service.
type Creator interface {
	CreateSession(ctx context.Context) (string, error)
}

// Resolver maps keys to usable session handles, replacing records created
// under a different instruction version.
type Resolver struct {
	store   Store
	creator Creator
	version string
	logger  *slog.Logger
}

// NewResolver creates a Resolver. version is the active instruction version
// and stays fixed for the Resolver's lifetime.
func NewResolver(store Store, creator Creator, version string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:   store,
		creator: creator,
		version: version,
		logger:  logger.With("component", "sessions.resolver"),
	}
}

// Version returns the active instruction version.
func (r *Resolver) Version() string { return r.version }

// Resolve returns the session handle for key, creating and storing a new one
// on a miss or a version mismatch. Create failures wrap ErrSessionCreate.
func (r *Resolver) Resolve(ctx context.Context, key Key) (string, error) {
	rec, found, err := r.store.Get(ctx, key)
	if err != nil {
		// An unreadable row is treated like a miss; the fresh record overwrites it.
		r.logger.Warn("session lookup failed, creating new session", "key", key.String(), "error", err)
		found = false
	}
	if found && rec.Current(r.version) {
		return rec.Handle, nil
	}

	handle, err := r.creator.CreateSession(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}

	next := Record{Handle: handle, Version: r.version}
	if err := r.store.Put(ctx, key, next); err != nil {
		r.logger.Warn("failed to persist session", "key", key.String(), "error", err)
	}

	if found {
		r.logger.Info("stale session replaced",
			"key", key.String(),
			"old_version", rec.Version,
			"new_version", r.version,
		)
	} else {
		r.logger.Info("session created", "key", key.String(), "version", r.version)
	}
	return handle, nil
}
