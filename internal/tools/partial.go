package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"calbot/internal/chat"
	"calbot/internal/scheduling"
)

// TrackPartialTool 槽位填充:记录半成品约会并给出下一步建议
// TrackPartialTool records the slot-filling state of an appointment
// still missing fields, so the next turn can pick up where it left off.
type TrackPartialTool struct {
	svc *scheduling.Service
}

func NewTrackPartialTool(svc *scheduling.Service) *TrackPartialTool {
	return &TrackPartialTool{svc: svc}
}

func (t *TrackPartialTool) Name() string { return "track_partial_appointment" }

func (t *TrackPartialTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Remember a partially specified appointment while asking the user for the missing fields. Call this instead of scheduling when required details are absent.",
			Parameters: objectSchema(map[string]any{
				"event_kind": stringProp("Kind of appointment being collected: meeting or personal."),
				"collected_fields": map[string]any{
					"type":                 "object",
					"description":          "Field values already provided by the user.",
					"additionalProperties": map[string]any{"type": "string"},
				},
				"missing_fields": stringArrayProp("Fields still needed, most important first."),
			}, "event_kind", "collected_fields", "missing_fields"),
		},
	}
}

func (t *TrackPartialTool) Execute(_ context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var a struct {
		EventKind       string            `json:"event_kind"`
		CollectedFields map[string]string `json:"collected_fields"`
		MissingFields   []string          `json:"missing_fields"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	out, err := t.svc.TrackPartial(inv.UserID, a.EventKind, a.CollectedFields, a.MissingFields)
	if err != nil {
		return "", err
	}
	return okResult(out.Message, map[string]any{
		"suggestions": out.Suggestions,
	}), nil
}
