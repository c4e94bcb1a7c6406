package tools

import (
	"context"
	"encoding/json"

	"calbot/internal/chat"
)

// Invocation 每次工具调用的会话上下文
// Invocation carries the per-turn context every tool handler needs.
type Invocation struct {
	UserID        string
	CalendarToken string
	Timezone      string
}

// Tool is one callable function exposed to the assistant. Definition
// returns the JSON-schema declaration sent on assistant creation;
// Execute runs one call and returns the JSON payload for the model.
type Tool interface {
	Name() string
	Definition() chat.ToolDef
	Execute(ctx context.Context, inv Invocation, args json.RawMessage) (string, error)
}
