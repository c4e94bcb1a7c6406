package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"calbot/internal/chat"
	"calbot/internal/scheduling"
	"calbot/internal/storage"
)

// SetAvailabilityTool 设置每周可用时段
type SetAvailabilityTool struct {
	svc *scheduling.Service
}

func NewSetAvailabilityTool(svc *scheduling.Service) *SetAvailabilityTool {
	return &SetAvailabilityTool{svc: svc}
}

func (t *SetAvailabilityTool) Name() string { return "set_availability" }

func dayProp(day string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": fmt.Sprintf("Available window on %s.", day),
		"properties": map[string]any{
			"start": stringProp("Window start in 24h HH:MM."),
			"end":   stringProp("Window end in 24h HH:MM."),
		},
		"required": []string{"start", "end"},
	}
}

func (t *SetAvailabilityTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Set or update the user's weekly availability. Only the days mentioned are changed; other days keep their windows.",
			Parameters: objectSchema(map[string]any{
				"monday":    dayProp("Monday"),
				"tuesday":   dayProp("Tuesday"),
				"wednesday": dayProp("Wednesday"),
				"thursday":  dayProp("Thursday"),
				"friday":    dayProp("Friday"),
				"saturday":  dayProp("Saturday"),
				"sunday":    dayProp("Sunday"),
			}),
		},
	}
}

func (t *SetAvailabilityTool) Execute(_ context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var updates map[string]storage.DayWindow
	if err := json.Unmarshal(args, &updates); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	msg, err := t.svc.SetAvailability(inv.UserID, updates)
	if err != nil {
		return "", err
	}
	return okResult(msg, nil), nil
}
