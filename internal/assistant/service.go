package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"calbot/internal/chat"
)

var (
	// ErrSessionUnavailable means the remote assistant could not be
	// created or reconciled; the turn cannot start.
	ErrSessionUnavailable = errors.New("assistant session unavailable")

	// ErrRunActive means a message append was rejected because a prior
	// run is still holding the thread.
	ErrRunActive = errors.New("a run is active on the thread")
)

// Identity is the remote assistant handle this process operates.
type Identity struct {
	AssistantID string
	Model       string
}

// RunSnapshot is one poll of a remote run, reduced to what the
// orchestrator acts on.
type RunSnapshot struct {
	ID            string
	State         RunState
	ToolCalls     []chat.ToolCall
	FailureReason string
}

// Service 远端 assistant API 的最小表面
// Service is the remote assistant surface. All SDK usage lives behind
// it so orchestration logic tests against scripted fakes.
type Service interface {
	CreateAssistant(ctx context.Context, model, name, instructions string, tools []chat.ToolDef) (Identity, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (Identity, error)
	UpdateAssistant(ctx context.Context, assistantID, model, name, instructions string, tools []chat.ToolDef) error
	DeleteAssistant(ctx context.Context, assistantID string) error

	CreateThread(ctx context.Context) (string, error)
	RetrieveThread(ctx context.Context, threadID string) error

	AppendUserMessage(ctx context.Context, threadID, text string) error
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)

	CreateRun(ctx context.Context, threadID, assistantID string) (string, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (RunSnapshot, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	ActiveRuns(ctx context.Context, threadID string) ([]string, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []chat.ToolOutput) error
}

// OpenAIService implements Service on the OpenAI assistants API.
type OpenAIService struct {
	client *openai.Client
}

// NewOpenAIService builds the SDK client. baseURL may be empty for the
// public endpoint; timeout bounds every HTTP call.
func NewOpenAIService(apiKey, baseURL string, timeout time.Duration) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OpenAIService{client: openai.NewClientWithConfig(cfg)}
}

func (s *OpenAIService) CreateAssistant(ctx context.Context, model, name, instructions string, tools []chat.ToolDef) (Identity, error) {
	created, err := s.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        convertToolDefs(tools),
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create assistant: %w", err)
	}
	return Identity{AssistantID: created.ID, Model: created.Model}, nil
}

func (s *OpenAIService) RetrieveAssistant(ctx context.Context, assistantID string) (Identity, error) {
	remote, err := s.client.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return Identity{}, fmt.Errorf("retrieve assistant %s: %w", assistantID, err)
	}
	return Identity{AssistantID: remote.ID, Model: remote.Model}, nil
}

func (s *OpenAIService) UpdateAssistant(ctx context.Context, assistantID, model, name, instructions string, tools []chat.ToolDef) error {
	_, err := s.client.ModifyAssistant(ctx, assistantID, openai.AssistantRequest{
		Model:        model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        convertToolDefs(tools),
	})
	if err != nil {
		return fmt.Errorf("update assistant %s: %w", assistantID, err)
	}
	return nil
}

func (s *OpenAIService) DeleteAssistant(ctx context.Context, assistantID string) error {
	if _, err := s.client.DeleteAssistant(ctx, assistantID); err != nil {
		return fmt.Errorf("delete assistant %s: %w", assistantID, err)
	}
	return nil
}

func (s *OpenAIService) CreateThread(ctx context.Context) (string, error) {
	thread, err := s.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (s *OpenAIService) RetrieveThread(ctx context.Context, threadID string) error {
	if _, err := s.client.RetrieveThread(ctx, threadID); err != nil {
		return fmt.Errorf("retrieve thread %s: %w", threadID, err)
	}
	return nil
}

func (s *OpenAIService) AppendUserMessage(ctx context.Context, threadID, text string) error {
	_, err := s.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		if isRunActiveErr(err) {
			return fmt.Errorf("append message: %w", ErrRunActive)
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *OpenAIService) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := s.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != string(openai.ChatMessageRoleAssistant) {
			continue
		}
		for _, part := range msg.Content {
			if part.Text != nil {
				return part.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("thread %s has no assistant reply", threadID)
}

func (s *OpenAIService) CreateRun(ctx context.Context, threadID, assistantID string) (string, error) {
	run, err := s.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

func (s *OpenAIService) RetrieveRun(ctx context.Context, threadID, runID string) (RunSnapshot, error) {
	run, err := s.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return RunSnapshot{}, fmt.Errorf("retrieve run %s: %w", runID, err)
	}
	snap := RunSnapshot{ID: run.ID, State: stateFromStatus(run.Status)}
	if run.LastError != nil {
		snap.FailureReason = run.LastError.Message
	}
	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			snap.ToolCalls = append(snap.ToolCalls, chat.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: chat.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return snap, nil
}

func (s *OpenAIService) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := s.client.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return nil
}

func (s *OpenAIService) ActiveRuns(ctx context.Context, threadID string) ([]string, error) {
	limit := 20
	list, err := s.client.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var active []string
	for _, run := range list.Runs {
		if !stateFromStatus(run.Status).Terminal() {
			active = append(active, run.ID)
		}
	}
	return active, nil
}

func (s *OpenAIService) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []chat.ToolOutput) error {
	converted := make([]openai.ToolOutput, 0, len(outputs))
	for _, out := range outputs {
		converted = append(converted, openai.ToolOutput{ToolCallID: out.ToolCallID, Output: out.Output})
	}
	_, err := s.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: converted,
	})
	if err != nil {
		return fmt.Errorf("submit tool outputs for run %s: %w", runID, err)
	}
	return nil
}

func convertToolDefs(defs []chat.ToolDef) []openai.AssistantTool {
	tools := make([]openai.AssistantTool, 0, len(defs))
	for _, def := range defs {
		fn := def.Function
		tools = append(tools, openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		})
	}
	return tools
}

// isRunActiveErr matches the API rejection of appends to a thread
// whose previous run has not finished.
func isRunActiveErr(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "while a run") && strings.Contains(msg, "is active")
}
