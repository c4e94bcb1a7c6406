package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"calbot/internal/chat"
	"calbot/internal/scheduling"
)

// Registry 工具注册表：按名字派发,单个失败不影响同批其他调用
// Registry holds the tool catalog and dispatches calls by name. A
// failing handler is reported to the model as a JSON error payload,
// never as a batch abort.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. A duplicate name overwrites the prior entry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the declarations for assistant creation, in
// sorted name order so repeated calls compare equal.
func (r *Registry) Definitions() []chat.ToolDef {
	defs := make([]chat.ToolDef, 0, len(r.tools))
	for _, name := range r.Names() {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Dispatch executes one tool call and always returns a JSON payload.
// Unknown tools and handler errors become {"success":false,...} so the
// model can recover in-conversation.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation, name string, args json.RawMessage) string {
	tool, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name, "user", inv.UserID)
		return errResult(fmt.Sprintf("unknown tool: %s", name), "")
	}
	out, err := tool.Execute(ctx, inv, args)
	if err != nil {
		var verr *scheduling.ValidationError
		if errors.As(err, &verr) {
			// missing field: the model should ask, not apologize
			return errResult(verr.Error(), verr.Error())
		}
		r.logger.Warn("tool execution failed", "tool", name, "user", inv.UserID, "error", err)
		return errResult(err.Error(), "Sorry, that action failed. Please try again.")
	}
	return out
}
