package assistant

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"calbot/internal/chat"
)

func TestConvertToolDefs(t *testing.T) {
	defs := []chat.ToolDef{{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        "schedule_appointment",
			Description: "Schedule something.",
			Parameters:  map[string]any{"type": "object"},
		},
	}}
	got := convertToolDefs(defs)
	if len(got) != 1 {
		t.Fatalf("converted = %d tools", len(got))
	}
	if got[0].Type != openai.AssistantToolTypeFunction {
		t.Fatalf("type = %v", got[0].Type)
	}
	if got[0].Function == nil || got[0].Function.Name != "schedule_appointment" {
		t.Fatalf("function = %+v", got[0].Function)
	}
}

func TestIsRunActiveErr(t *testing.T) {
	active := &openai.APIError{
		Message: "Can't add messages to thread_abc while a run run_xyz is active.",
	}
	if !isRunActiveErr(active) {
		t.Fatal("active-run rejection not recognized")
	}
	if isRunActiveErr(&openai.APIError{Message: "rate limit exceeded"}) {
		t.Fatal("unrelated API error misclassified")
	}
	if isRunActiveErr(errors.New("connection refused")) {
		t.Fatal("non-API error misclassified")
	}
}

func TestStateFromStatus(t *testing.T) {
	cases := map[openai.RunStatus]RunState{
		openai.RunStatusQueued:         StateQueued,
		openai.RunStatusInProgress:     StateInProgress,
		openai.RunStatusRequiresAction: StateRequiresAction,
		openai.RunStatusCancelling:     StateCancelling,
		openai.RunStatusCancelled:      StateCancelled,
		openai.RunStatusFailed:         StateFailed,
		openai.RunStatusCompleted:      StateCompleted,
		openai.RunStatusExpired:        StateExpired,
	}
	for status, want := range cases {
		if got := stateFromStatus(status); got != want {
			t.Errorf("stateFromStatus(%s) = %s, want %s", status, got, want)
		}
	}
	if got := stateFromStatus(openai.RunStatus("surprise")); got != StateUnknown {
		t.Errorf("unmapped status = %s, want unknown", got)
	}
}

func TestRunStateTerminal(t *testing.T) {
	for _, s := range []RunState{StateCompleted, StateFailed, StateCancelled, StateExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []RunState{StateQueued, StateInProgress, StateRequiresAction, StateCancelling, StateUnknown} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
