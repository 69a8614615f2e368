// Package assistant talks to the hosted assistant service and drives one
// conversational exchange: append the user turn, run the assistant, wait
// for it to finish and pick the reply.
package assistant

import "context"

// Service is the subset of the hosted assistant API the relay needs. Session
// handles are opaque thread identifiers issued by the service.
type Service interface {
	// CreateSession creates a new empty thread and returns its handle.
	CreateSession(ctx context.Context) (string, error)

	// AppendUserTurn adds a user message to the thread.
	AppendUserTurn(ctx context.Context, handle, text string) error

	// StartRun asks the assistant to process the thread.
	StartRun(ctx context.Context, handle, assistantID string) (Run, error)

	// GetRun returns the current state of a run.
	GetRun(ctx context.Context, handle, runID string) (Run, error)

	// CancelRun asks the service to stop a run that is still pending.
	CancelRun(ctx context.Context, handle, runID string) error

	// ListRecentTurns returns up to limit turns, newest first.
	ListRecentTurns(ctx context.Context, handle string, limit int) ([]Turn, error)
}

// RunStatus is the lifecycle state reported by the service for a run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"

	// RunTimeout is never reported by the service. The driver uses it when
	// polling gives up before a terminal status.
	RunTimeout RunStatus = "timeout"
)

// Pending reports whether the run has not reached a terminal state.
// requires_action counts as terminal because no tools are offered.
func (s RunStatus) Pending() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return true
	}
	return false
}

// Run is a snapshot of one assistant run.
type Run struct {
	ID     string
	Status RunStatus
}

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a thread with its text parts already joined.
type Turn struct {
	Role Role
	Text string
}
