package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/sessions"
)

// fakeService is an in-memory Service. Runs walk through statuses in order,
// one per GetRun call.
type fakeService struct {
	mu sync.Mutex

	threads  int
	turns    map[string][]Turn
	statuses []RunStatus
	polls    int
	reply    *Turn

	appendErr error
	getRunErr error
	cancelled []string
}

func newFakeService(statuses ...RunStatus) *fakeService {
	return &fakeService{turns: make(map[string][]Turn), statuses: statuses}
}

func (f *fakeService) CreateSession(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	return fmt.Sprintf("thread_%d", f.threads), nil
}

func (f *fakeService) AppendUserTurn(_ context.Context, handle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.turns[handle] = append(f.turns[handle], Turn{Role: RoleUser, Text: text})
	return nil
}

func (f *fakeService) StartRun(context.Context, string, string) (Run, error) {
	return Run{ID: "run_1", Status: RunQueued}, nil
}

func (f *fakeService) GetRun(_ context.Context, handle, runID string) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getRunErr != nil {
		return Run{}, f.getRunErr
	}
	status := RunInProgress
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	if status == RunCompleted && f.reply != nil {
		f.turns[handle] = append(f.turns[handle], *f.reply)
		f.reply = nil
	}
	return Run{ID: runID, Status: status}, nil
}

func (f *fakeService) CancelRun(_ context.Context, _, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeService) cancelledRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeService) ListRecentTurns(_ context.Context, handle string, limit int) ([]Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.turns[handle]
	out := make([]Turn, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (f *fakeService) userTurns(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.turns[handle] {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

func newTestDriver(svc *fakeService, cfg DriverConfig) *Driver {
	resolver := sessions.NewResolver(sessions.NewMemoryStore(), svc, "v1", nil)
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	cfg.AssistantID = "asst_test"
	return NewDriver(svc, resolver, cfg, nil)
}

var testKey = sessions.Key{ChatID: "100", UserID: "200"}

func TestDriver_Completed(t *testing.T) {
	t.Parallel()
	svc := newFakeService(RunInProgress, RunCompleted)
	svc.reply = &Turn{Role: RoleAssistant, Text: "Hello there"}

	got, err := newTestDriver(svc, DriverConfig{}).Converse(context.Background(), testKey, "hi")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("reply = %q, want %q", got, "Hello there")
	}
}

func TestDriver_RunFailed(t *testing.T) {
	t.Parallel()
	svc := newFakeService(RunInProgress, RunFailed)

	_, err := newTestDriver(svc, DriverConfig{}).Converse(context.Background(), testKey, "hi")
	var rf *RunFailure
	if !errors.As(err, &rf) {
		t.Fatalf("err = %v, want *RunFailure", err)
	}
	if rf.Status != RunFailed {
		t.Errorf("status = %q, want failed", rf.Status)
	}
	if n := svc.userTurns("thread_1"); n != 1 {
		t.Errorf("user turns = %d, want 1 (no rollback)", n)
	}
}

func TestDriver_NonCompletedTerminal(t *testing.T) {
	t.Parallel()

	for _, status := range []RunStatus{RunCancelled, RunExpired, RunIncomplete, RunRequiresAction} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()
			svc := newFakeService(status)
			_, err := newTestDriver(svc, DriverConfig{}).Converse(context.Background(), testKey, "hi")
			var rf *RunFailure
			if !errors.As(err, &rf) || rf.Status != status {
				t.Errorf("err = %v, want RunFailure{%s}", err, status)
			}
		})
	}
}

func TestDriver_NoAssistantTurnFallback(t *testing.T) {
	t.Parallel()
	svc := newFakeService(RunCompleted)

	got, err := newTestDriver(svc, DriverConfig{}).Converse(context.Background(), testKey, "hi")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if got != DefaultFallbackReply {
		t.Errorf("reply = %q, want fallback", got)
	}
}

func TestDriver_EmptyAssistantTextFallback(t *testing.T) {
	t.Parallel()
	svc := newFakeService(RunCompleted)
	svc.reply = &Turn{Role: RoleAssistant}

	got, err := newTestDriver(svc, DriverConfig{FallbackReply: "nothing to say"}).
		Converse(context.Background(), testKey, "hi")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if got != "nothing to say" {
		t.Errorf("reply = %q, want custom fallback", got)
	}
}

func TestDriver_PollAttemptsExhausted(t *testing.T) {
	t.Parallel()
	svc := newFakeService() // stays in_progress forever

	_, err := newTestDriver(svc, DriverConfig{PollMaxAttempts: 3}).
		Converse(context.Background(), testKey, "hi")
	var rf *RunFailure
	if !errors.As(err, &rf) || rf.Status != RunTimeout {
		t.Fatalf("err = %v, want RunFailure{timeout}", err)
	}
	if svc.polls != 3 {
		t.Errorf("polls = %d, want 3", svc.polls)
	}
}

func TestDriver_RunTimeout(t *testing.T) {
	t.Parallel()
	svc := newFakeService()

	_, err := newTestDriver(svc, DriverConfig{
		PollInterval:    5 * time.Millisecond,
		PollMaxAttempts: 1000,
		RunTimeout:      30 * time.Millisecond,
	}).Converse(context.Background(), testKey, "hi")
	var rf *RunFailure
	if !errors.As(err, &rf) || rf.Status != RunTimeout {
		t.Fatalf("err = %v, want RunFailure{timeout}", err)
	}
	if got := svc.cancelledRuns(); len(got) != 1 || got[0] != "run_1" {
		t.Errorf("cancelled runs = %v, want [run_1]", got)
	}
}

func TestDriver_CompletedRunNotCancelled(t *testing.T) {
	t.Parallel()
	svc := newFakeService(RunCompleted)

	if _, err := newTestDriver(svc, DriverConfig{}).Converse(context.Background(), testKey, "hi"); err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if got := svc.cancelledRuns(); len(got) != 0 {
		t.Errorf("cancelled runs = %v, want none", got)
	}
}

func TestDriver_KeyWaitHonoursContext(t *testing.T) {
	t.Parallel()
	svc := newFakeService() // first exchange never completes on its own
	d := newTestDriver(svc, DriverConfig{
		SerializePerKey: true,
		PollInterval:    5 * time.Millisecond,
		PollMaxAttempts: 1000,
		RunTimeout:      time.Second,
	})

	go func() { _, _ = d.Converse(context.Background(), testKey, "first") }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := d.Converse(ctx, testKey, "second")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded while queued", err)
	}
	if waited := time.Since(start); waited > 500*time.Millisecond {
		t.Errorf("queued exchange waited %v past its deadline", waited)
	}
	if n := svc.userTurns("thread_1"); n != 1 {
		t.Errorf("user turns = %d, want only the first", n)
	}
}

func TestDriver_ParentCancellation(t *testing.T) {
	t.Parallel()
	svc := newFakeService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDriver(svc, DriverConfig{}).Converse(ctx, testKey, "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDriver_AppendFailure(t *testing.T) {
	t.Parallel()
	svc := newFakeService(RunCompleted)
	svc.appendErr = errors.New("thread not found")

	_, err := newTestDriver(svc, DriverConfig{}).Converse(context.Background(), testKey, "hi")
	if err == nil || err.Error() != "thread not found" {
		t.Fatalf("err = %v, want append error", err)
	}
}

func TestDriver_SessionReusedAcrossExchanges(t *testing.T) {
	t.Parallel()
	svc := newFakeService(RunCompleted, RunCompleted)
	d := newTestDriver(svc, DriverConfig{SerializePerKey: true})

	for i := 0; i < 2; i++ {
		if _, err := d.Converse(context.Background(), testKey, "hi"); err != nil {
			t.Fatalf("Converse #%d: %v", i, err)
		}
	}
	if svc.threads != 1 {
		t.Errorf("threads created = %d, want 1", svc.threads)
	}
	if n := svc.userTurns("thread_1"); n != 2 {
		t.Errorf("user turns = %d, want 2", n)
	}
}

func TestDriver_SerializePerKeySingleSession(t *testing.T) {
	t.Parallel()
	statuses := make([]RunStatus, 8)
	for i := range statuses {
		statuses[i] = RunCompleted
	}
	svc := newFakeService(statuses...)
	d := newTestDriver(svc, DriverConfig{SerializePerKey: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Converse(context.Background(), testKey, "hi")
		}()
	}
	wg.Wait()

	if svc.threads != 1 {
		t.Errorf("threads created = %d, want 1 under per-key serialization", svc.threads)
	}
}

func TestRunStatusPending(t *testing.T) {
	t.Parallel()
	tests := map[RunStatus]bool{
		RunQueued:         true,
		RunInProgress:     true,
		RunCancelling:     true,
		RunRequiresAction: false,
		RunCompleted:      false,
		RunFailed:         false,
		RunExpired:        false,
	}
	for status, want := range tests {
		if got := status.Pending(); got != want {
			t.Errorf("%s.Pending() = %v, want %v", status, got, want)
		}
	}
}
