package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"calbot/internal/chat"
	"calbot/internal/scheduling"
	"calbot/internal/storage"
)

// CancelAppointmentTool 按条件取消单日约会
type CancelAppointmentTool struct {
	svc *scheduling.Service
}

func NewCancelAppointmentTool(svc *scheduling.Service) *CancelAppointmentTool {
	return &CancelAppointmentTool{svc: svc}
}

func (t *CancelAppointmentTool) Name() string { return "cancel_appointment" }

func (t *CancelAppointmentTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Cancel appointments on a date matching a title, time or attendee. Without criteria nothing is cancelled; the day's appointments are listed instead. To clear a whole date use cancel_all_appointments_for_date.",
			Parameters: objectSchema(map[string]any{
				"date":      stringProp("Date in YYYY-MM-DD."),
				"title":     stringProp("Title or part of it, as the user said it."),
				"time":      stringProp("Start time in 24h HH:MM."),
				"attendees": stringArrayProp("Attendee names to match."),
			}, "date"),
		},
	}
}

func (t *CancelAppointmentTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var a struct {
		Date      string   `json:"date"`
		Title     string   `json:"title"`
		Time      string   `json:"time"`
		Attendees []string `json:"attendees"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	out, err := t.svc.Cancel(ctx, inv.UserID, scheduling.CancelQuery{
		Date:      a.Date,
		Title:     a.Title,
		Time:      a.Time,
		Attendees: a.Attendees,
	}, inv.CalendarToken)
	if err != nil {
		return "", err
	}
	extra := map[string]any{"cancelledCount": out.Cancelled}
	if len(out.Suggestions) > 0 {
		extra["suggestions"] = out.Suggestions
	}
	if len(out.Available) > 0 {
		extra["available"] = out.Available
	}
	// nothing cancelled means the request did not land: not found, or
	// only suggestions to offer
	if out.Cancelled == 0 {
		return failResult(out.Message, extra), nil
	}
	return okResult(out.Message, extra), nil
}

// CancelAllTool 整段批量取消;缺 start_date 时回退到未过期的预览记录
// CancelAllTool cancels every appointment in a range. A missing
// start_date falls back to the pending preview, so "yes" after a
// confirmation prompt lands on the right range.
type CancelAllTool struct {
	svc *scheduling.Service
}

func NewCancelAllTool(svc *scheduling.Service) *CancelAllTool {
	return &CancelAllTool{svc: svc}
}

func (t *CancelAllTool) Name() string { return "cancel_all_appointments_for_date" }

func (t *CancelAllTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Cancel ALL appointments for a date or date range in one call. Use this for \"cancel everything\" requests instead of repeated single cancellations.",
			Parameters: objectSchema(map[string]any{
				"start_date": stringProp("First date in YYYY-MM-DD. May be omitted only when confirming a previewed cancellation."),
				"end_date":   stringProp("Last date in YYYY-MM-DD. Omit for a single day."),
			}, "start_date"),
		},
	}
}

func (t *CancelAllTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var a struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	if a.StartDate == "" {
		pending, ok, err := t.svc.PendingCancellation(inv.UserID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", &scheduling.ValidationError{Field: "start_date", Hint: "ask the user which date to clear"}
		}
		a.StartDate = pending.StartDate
		a.EndDate = pending.EndDate
	}
	out, err := t.svc.CancelAllInRange(ctx, inv.UserID, a.StartDate, a.EndDate, inv.CalendarToken)
	if err != nil {
		return "", err
	}
	extra := map[string]any{
		"cancelledCount": out.Cancelled,
		"syncFailures":   out.SyncFailures,
	}
	if out.Cancelled == 0 {
		return failResult(out.Message, extra), nil
	}
	return okResult(out.Message, extra), nil
}

// PreviewCancellationTool 批量取消确认前的预览
type PreviewCancellationTool struct {
	svc *scheduling.Service
}

func NewPreviewCancellationTool(svc *scheduling.Service) *PreviewCancellationTool {
	return &PreviewCancellationTool{svc: svc}
}

func (t *PreviewCancellationTool) Name() string { return "preview_appointments_for_cancellation" }

func (t *PreviewCancellationTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Show the user which appointments a bulk cancellation would remove and ask for confirmation. Call this before cancelling several appointments at once.",
			Parameters: objectSchema(map[string]any{
				"date":     stringProp("First date in YYYY-MM-DD."),
				"end_date": stringProp("Last date in YYYY-MM-DD. Omit for a single day."),
				"candidates": map[string]any{
					"type":        "array",
					"description": "The appointments that would be cancelled.",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"title":     stringProp("Appointment title."),
							"time":      stringProp("Start time, if any."),
							"attendees": stringArrayProp("Attendees, if any."),
						},
						"required": []string{"title"},
					},
				},
				"cancellation_type": map[string]any{
					"type":        "string",
					"enum":        []string{"all", "specific"},
					"description": "Whether the whole range or only the listed appointments would be cancelled.",
				},
			}, "date", "candidates", "cancellation_type"),
		},
	}
}

func (t *PreviewCancellationTool) Execute(_ context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var a struct {
		Date             string                          `json:"date"`
		EndDate          string                          `json:"end_date"`
		Candidates       []storage.CancellationCandidate `json:"candidates"`
		CancellationType string                          `json:"cancellation_type"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	if len(a.Candidates) == 0 {
		return "", &scheduling.ValidationError{Field: "candidates", Hint: "list the appointments that would be cancelled"}
	}
	out, err := t.svc.PreviewBulkCancel(inv.UserID, a.Date, a.EndDate, a.Candidates, a.CancellationType)
	if err != nil {
		return "", err
	}
	return okResult(out.Message, map[string]any{
		"candidates":           out.Candidates,
		"confirmationRequired": true,
	}), nil
}
