package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleProvider implements Provider against the Google Calendar API.
// A fresh service is built per call from the per-turn access token.
type GoogleProvider struct {
	calendarID string
	logger     *slog.Logger
}

// NewGoogleProvider 创建 Google Calendar provider；calendarID 为空时用 primary
// NewGoogleProvider creates a provider for the given calendar ("primary" when empty).
func NewGoogleProvider(calendarID string, logger *slog.Logger) *GoogleProvider {
	if strings.TrimSpace(calendarID) == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleProvider{calendarID: calendarID, logger: logger.With("component", "calendar")}
}

func (g *GoogleProvider) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, fmt.Errorf("calendar access token is empty")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

// Insert pushes one event and returns the external event id.
func (g *GoogleProvider) Insert(ctx context.Context, accessToken string, ev Event) (string, error) {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return "", err
	}
	event, err := buildGoogleEvent(ev)
	if err != nil {
		return "", err
	}
	created, err := svc.Events.Insert(g.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	g.logger.Debug("event inserted", "event_id", created.Id, "date", ev.Date)
	return created.Id, nil
}

// Delete removes one event by external id.
func (g *GoogleProvider) Delete(ctx context.Context, accessToken, eventID string) error {
	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return err
	}
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("event id is empty")
	}
	if err := svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// buildGoogleEvent 构造 API 事件；无时间的视为全天
// buildGoogleEvent maps an Event to the API shape; no time means all-day.
func buildGoogleEvent(ev Event) (*gcal.Event, error) {
	event := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
	}
	for _, name := range ev.Attendees {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// Display names only; the core never validates emails.
		event.Attendees = append(event.Attendees, &gcal.EventAttendee{DisplayName: name})
	}

	day, err := time.Parse("2006-01-02", ev.Date)
	if err != nil {
		return nil, fmt.Errorf("parse event date %q: %w", ev.Date, err)
	}

	if strings.TrimSpace(ev.Time) == "" {
		event.Start = &gcal.EventDateTime{Date: ev.Date}
		event.End = &gcal.EventDateTime{Date: day.AddDate(0, 0, 1).Format("2006-01-02")}
		return event, nil
	}

	loc := time.UTC
	if ev.Timezone != "" {
		if parsed, lerr := time.LoadLocation(ev.Timezone); lerr == nil {
			loc = parsed
		}
	}
	clock, err := time.Parse("15:04", ev.Time)
	if err != nil {
		return nil, fmt.Errorf("parse event time %q: %w", ev.Time, err)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	duration := ev.DurationMinutes
	if duration <= 0 {
		duration = 30
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	tzName := loc.String()
	event.Start = &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: tzName}
	event.End = &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: tzName}
	return event, nil
}
