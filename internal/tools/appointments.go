package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"calbot/internal/chat"
	"calbot/internal/scheduling"
	"calbot/internal/storage"
)

// scheduleArgs covers both creation tools; create_personal_event just
// tightens the required set and flips the kind.
type scheduleArgs struct {
	Title           string   `json:"title"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	DurationMinutes int      `json:"duration_minutes"`
	Attendees       []string `json:"attendees"`
	Location        string   `json:"location"`
	Description     string   `json:"description"`
	RawText         string   `json:"raw_text"`
}

// ScheduleAppointmentTool 创建会议类约会
type ScheduleAppointmentTool struct {
	svc *scheduling.Service
}

func NewScheduleAppointmentTool(svc *scheduling.Service) *ScheduleAppointmentTool {
	return &ScheduleAppointmentTool{svc: svc}
}

func (t *ScheduleAppointmentTool) Name() string { return "schedule_appointment" }

func (t *ScheduleAppointmentTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Schedule a meeting-style appointment. Only the date is mandatory; title, time, duration, attendees, location and description are optional.",
			Parameters: objectSchema(map[string]any{
				"title":            stringProp("Appointment title. Omit to derive one from the user's words."),
				"date":             stringProp("Date in YYYY-MM-DD."),
				"time":             stringProp("Start time in 24h HH:MM. Omit for an all-day or unscheduled item."),
				"duration_minutes": intProp("Duration in minutes. Defaults to 30 for meetings."),
				"attendees":        stringArrayProp("Attendee names as the user said them."),
				"location":         stringProp("Location, if mentioned."),
				"description":      stringProp("Extra details, if any."),
				"raw_text":         stringProp("The user's original request, used as a fallback title."),
			}, "date"),
		},
	}
}

func (t *ScheduleAppointmentTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var a scheduleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	out, err := t.svc.Schedule(ctx, inv.UserID, scheduling.ScheduleInput{
		Title:           a.Title,
		Date:            a.Date,
		Time:            a.Time,
		DurationMinutes: a.DurationMinutes,
		Attendees:       a.Attendees,
		Location:        a.Location,
		Description:     a.Description,
		RawText:         a.RawText,
		Timezone:        inv.Timezone,
		Kind:            storage.KindMeeting,
	}, inv.CalendarToken)
	if err != nil {
		return "", err
	}
	return okResult(out.Message, map[string]any{
		"appointment": out.Appointment,
		"synced":      out.Synced,
	}), nil
}

// CreatePersonalEventTool 创建个人事件(生日、假期等)
type CreatePersonalEventTool struct {
	svc *scheduling.Service
}

func NewCreatePersonalEventTool(svc *scheduling.Service) *CreatePersonalEventTool {
	return &CreatePersonalEventTool{svc: svc}
}

func (t *CreatePersonalEventTool) Name() string { return "create_personal_event" }

func (t *CreatePersonalEventTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Record a personal event such as a birthday, holiday, anniversary or day off. Title and date are mandatory.",
			Parameters: objectSchema(map[string]any{
				"title":            stringProp("Event title, e.g. \"Mom's birthday\"."),
				"date":             stringProp("Date in YYYY-MM-DD."),
				"time":             stringProp("Start time in 24h HH:MM, if the event is timed."),
				"duration_minutes": intProp("Duration in minutes. Defaults to 60 for personal events."),
				"description":      stringProp("Extra details, if any."),
				"raw_text":         stringProp("The user's original request."),
			}, "title", "date"),
		},
	}
}

func (t *CreatePersonalEventTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var a scheduleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	if a.Title == "" {
		return "", &scheduling.ValidationError{Field: "title", Hint: "ask the user what the event is"}
	}
	out, err := t.svc.Schedule(ctx, inv.UserID, scheduling.ScheduleInput{
		Title:           a.Title,
		Date:            a.Date,
		Time:            a.Time,
		DurationMinutes: a.DurationMinutes,
		Description:     a.Description,
		RawText:         a.RawText,
		Timezone:        inv.Timezone,
		Kind:            storage.KindPersonal,
	}, inv.CalendarToken)
	if err != nil {
		return "", err
	}
	return okResult(out.Message, map[string]any{
		"appointment": out.Appointment,
		"synced":      out.Synced,
	}), nil
}

// GetAppointmentsTool 查询区间内的有效约会
type GetAppointmentsTool struct {
	svc *scheduling.Service
}

func NewGetAppointmentsTool(svc *scheduling.Service) *GetAppointmentsTool {
	return &GetAppointmentsTool{svc: svc}
}

func (t *GetAppointmentsTool) Name() string { return "get_appointments" }

func (t *GetAppointmentsTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "List active appointments for a date or date range.",
			Parameters: objectSchema(map[string]any{
				"start_date": stringProp("First date in YYYY-MM-DD."),
				"end_date":   stringProp("Last date in YYYY-MM-DD. Omit for a single day."),
			}, "start_date"),
		},
	}
}

func (t *GetAppointmentsTool) Execute(_ context.Context, inv Invocation, args json.RawMessage) (string, error) {
	var a struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	out, err := t.svc.List(inv.UserID, a.StartDate, a.EndDate)
	if err != nil {
		return "", err
	}
	return okResult(out.Message, map[string]any{
		"appointments": out.Appointments,
		"count":        len(out.Appointments),
	}), nil
}
