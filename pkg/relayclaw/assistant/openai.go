package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI Assistants client.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string

	// MaxRetries for transient HTTP failures. Zero keeps the SDK default,
	// negative disables retries.
	MaxRetries int
}

// OpenAIService implements Service on the OpenAI Assistants (beta threads)
// API.
type OpenAIService struct {
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIService creates a service backed by openai-go.
func NewOpenAIService(cfg OpenAIConfig, logger *slog.Logger) *OpenAIService {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	switch {
	case cfg.MaxRetries > 0:
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	case cfg.MaxRetries < 0:
		opts = append(opts, option.WithMaxRetries(0))
	}

	return &OpenAIService{
		client: openai.NewClient(opts...),
		logger: logger.With("component", "assistant.openai"),
	}
}

func (s *OpenAIService) CreateSession(ctx context.Context) (string, error) {
	thread, err := s.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	s.logger.Debug("thread created", "thread_id", thread.ID)
	return thread.ID, nil
}

func (s *OpenAIService) AppendUserTurn(ctx context.Context, handle, text string) error {
	_, err := s.client.Beta.Threads.Messages.New(ctx, handle, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return fmt.Errorf("append message to %s: %w", handle, err)
	}
	return nil
}

func (s *OpenAIService) StartRun(ctx context.Context, handle, assistantID string) (Run, error) {
	run, err := s.client.Beta.Threads.Runs.New(ctx, handle, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return Run{}, fmt.Errorf("start run on %s: %w", handle, err)
	}
	return Run{ID: run.ID, Status: RunStatus(run.Status)}, nil
}

func (s *OpenAIService) GetRun(ctx context.Context, handle, runID string) (Run, error) {
	run, err := s.client.Beta.Threads.Runs.Get(ctx, handle, runID)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.Status == openai.RunStatusFailed && run.LastError.Message != "" {
		s.logger.Warn("run failed upstream",
			"thread_id", handle,
			"run_id", runID,
			"code", run.LastError.Code,
			"message", run.LastError.Message,
		)
	}
	return Run{ID: run.ID, Status: RunStatus(run.Status)}, nil
}

func (s *OpenAIService) CancelRun(ctx context.Context, handle, runID string) error {
	if _, err := s.client.Beta.Threads.Runs.Cancel(ctx, handle, runID); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return nil
}

func (s *OpenAIService) ListRecentTurns(ctx context.Context, handle string, limit int) ([]Turn, error) {
	page, err := s.client.Beta.Threads.Messages.List(ctx, handle, openai.BetaThreadMessageListParams{
		Limit: openai.Int(int64(limit)),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("list messages on %s: %w", handle, err)
	}

	turns := make([]Turn, 0, len(page.Data))
	for _, msg := range page.Data {
		turns = append(turns, Turn{Role: Role(msg.Role), Text: joinText(msg.Content)})
	}
	return turns, nil
}

// joinText concatenates the text parts of a message, skipping images and
// refusals.
func joinText(parts []openai.MessageContentUnion) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type != "text" || p.Text.Value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text.Value)
	}
	return b.String()
}

var _ Service = (*OpenAIService)(nil)
