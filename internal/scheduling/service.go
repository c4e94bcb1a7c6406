package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"calbot/internal/calendar"
	"calbot/internal/storage"
)

const (
	// deleteBatchWidth bounds concurrent external deletions per bulk cancel.
	deleteBatchWidth = 5
	// pendingTTL: a previewed bulk cancellation older than this is stale
	// and must not be confirmable.
	pendingTTL = 10 * time.Minute
)

var weekdayOrder = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Service 约会领域服务：创建、取消、列举、槽位填充、可用时段
// Service is the appointment domain service behind the tool dispatcher.
type Service struct {
	store    storage.Store
	provider calendar.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the domain service to its collaborators.
func NewService(store storage.Store, provider calendar.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		provider: provider,
		logger:   logger.With("component", "scheduling"),
		now:      time.Now,
	}
}

// --- Creation ---

// ScheduleInput carries the fields of one creation tool call. Only
// Date is mandatory; everything else degrades to a default.
type ScheduleInput struct {
	Title           string
	Date            string
	Time            string
	DurationMinutes int
	Attendees       []string
	Location        string
	Description     string
	RawText         string
	Timezone        string
	Kind            storage.AppointmentKind
}

// ScheduleOutcome reports the created record and the user-facing
// message for the sync tier that applied.
type ScheduleOutcome struct {
	Appointment storage.Appointment
	Synced      bool
	Message     string
}

// Schedule 创建约会：本地先行，外部同步尽力而为
// Schedule creates the local record first, then attempts external sync
// when the record is ready and a token was supplied. Sync failure never
// fails the creation.
func (s *Service) Schedule(ctx context.Context, userID string, in ScheduleInput, accessToken string) (ScheduleOutcome, error) {
	date, err := parseDate(in.Date)
	if err != nil {
		return ScheduleOutcome{}, err
	}
	kind := in.Kind
	if kind == "" {
		kind = storage.KindMeeting
	}

	appt := storage.Appointment{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       DeriveTitle(in.Title, in.RawText, kind),
		Date:        date,
		Time:        normalizeClock(in.Time),
		Attendees:   NormalizeAttendees(in.Attendees),
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
		Kind:        kind,
		Status:      storage.StatusScheduled,
		SyncState:   storage.SyncNotSynced,
	}
	if appt.Time != "" {
		appt.DurationMinutes = in.DurationMinutes
		if appt.DurationMinutes <= 0 {
			appt.DurationMinutes = defaultDuration(kind)
		}
	}

	if err := s.store.CreateAppointment(appt); err != nil {
		return ScheduleOutcome{}, fmt.Errorf("create appointment: %w", err)
	}

	outcome := ScheduleOutcome{Appointment: appt}
	switch {
	case SyncEligible(appt) && strings.TrimSpace(accessToken) != "":
		eventID, syncErr := s.provider.Insert(ctx, accessToken, calendar.Event{
			Title:           appt.Title,
			Description:     appt.Description,
			Location:        appt.Location,
			Date:            appt.Date,
			Time:            appt.Time,
			DurationMinutes: appt.DurationMinutes,
			Attendees:       appt.Attendees,
			Timezone:        in.Timezone,
		})
		if syncErr != nil {
			s.logger.Warn("calendar sync failed", "user", userID, "appointment", appt.ID, "error", syncErr)
			_ = s.store.UpdateAppointmentSync(userID, appt.ID, storage.SyncFailed, "", syncErr.Error())
			outcome.Appointment.SyncState = storage.SyncFailed
			outcome.Appointment.SyncError = syncErr.Error()
			outcome.Message = fmt.Sprintf("Scheduled %q on %s (saved locally; calendar sync failed).", appt.Title, describeWhen(appt))
		} else {
			_ = s.store.UpdateAppointmentSync(userID, appt.ID, storage.SyncSynced, eventID, "")
			outcome.Appointment.SyncState = storage.SyncSynced
			outcome.Appointment.ExternalEventID = eventID
			outcome.Synced = true
			outcome.Message = fmt.Sprintf("Scheduled %q on %s and added it to your calendar.", appt.Title, describeWhen(appt))
		}
	default:
		outcome.Message = fmt.Sprintf("Scheduled %q on %s (saved locally).", appt.Title, describeWhen(appt))
	}

	// a completed creation ends the slot-filling conversation
	if err := s.store.ClearPartialContext(userID); err != nil {
		s.logger.Warn("clear partial context failed", "user", userID, "error", err)
	}
	return outcome, nil
}

func describeWhen(a storage.Appointment) string {
	if a.Time == "" {
		return a.Date
	}
	return fmt.Sprintf("%s at %s", a.Date, a.Time)
}

// --- Cancellation ---

// CancelOutcome reports what a specific cancellation did: records
// cancelled, suggestions offered, or the day's appointments listed.
type CancelOutcome struct {
	Cancelled    int
	Suggestions  []string
	Available    []storage.Appointment
	SyncFailures int
	Message      string
}

// Cancel 按条件取消：精确/属性命中则批量取消，否则给出相似建议或列出当天安排
// Cancel resolves the query against the date's active appointments.
// Matches are cancelled locally in one batch, then their external
// events are removed best-effort.
func (s *Service) Cancel(ctx context.Context, userID string, q CancelQuery, accessToken string) (CancelOutcome, error) {
	date, err := parseDate(q.Date)
	if err != nil {
		return CancelOutcome{}, err
	}
	q.Date = date

	all, err := s.store.AppointmentsInRange(userID, q.Date, q.EndDate)
	if err != nil {
		return CancelOutcome{}, fmt.Errorf("load appointments: %w", err)
	}
	active := activeOnly(all)
	if len(active) == 0 {
		return CancelOutcome{Message: fmt.Sprintf("No appointments found for %s", q.Date)}, nil
	}

	// only the any-of criteria test selects records; a bare date never
	// cancels anything — whole-day removal goes through CancelAllInRange
	// behind its preview gate
	matched := matchCandidates(active, q)
	if len(matched) > 0 {
		outcome, err := s.cancelRecords(ctx, userID, matched, accessToken)
		if err != nil {
			return CancelOutcome{}, err
		}
		_ = s.store.ClearPendingCancellation(userID)
		return outcome, nil
	}

	if suggestions := suggestTitles(active, q.Title); len(suggestions) > 0 {
		return CancelOutcome{
			Suggestions: suggestions,
			Message: fmt.Sprintf("I couldn't find %q on %s. Did you mean: %s?",
				q.Title, q.Date, strings.Join(suggestions, ", ")),
		}, nil
	}

	return CancelOutcome{
		Available: active,
		Message: fmt.Sprintf("Appointments on %s: %s. Which one should I cancel?",
			q.Date, summarizeTitles(active)),
	}, nil
}

func (s *Service) cancelRecords(ctx context.Context, userID string, matched []storage.Appointment, accessToken string) (CancelOutcome, error) {
	ids := make([]string, 0, len(matched))
	var eventIDs []string
	for _, a := range matched {
		ids = append(ids, a.ID)
		if a.ExternalEventID != "" {
			eventIDs = append(eventIDs, a.ExternalEventID)
		}
	}
	count, err := s.store.CancelAppointments(userID, ids)
	if err != nil {
		return CancelOutcome{}, fmt.Errorf("cancel appointments: %w", err)
	}

	outcome := CancelOutcome{Cancelled: count}
	if len(eventIDs) > 0 && strings.TrimSpace(accessToken) != "" {
		batch := calendar.DeleteBatch(ctx, s.provider, accessToken, eventIDs, deleteBatchWidth)
		outcome.SyncFailures = len(batch.Failed)
		if outcome.SyncFailures > 0 {
			s.logger.Warn("external event deletion incomplete",
				"user", userID, "failed", outcome.SyncFailures, "deleted", len(batch.Deleted))
		}
	}

	outcome.Message = fmt.Sprintf("Cancelled %d appointment(s).", count)
	if outcome.SyncFailures > 0 {
		outcome.Message += fmt.Sprintf(" %d calendar event(s) could not be removed remotely.", outcome.SyncFailures)
	}
	return outcome, nil
}

// BulkOutcome reports a bulk cancellation.
type BulkOutcome struct {
	Cancelled    int
	SyncFailures int
	Message      string
}

// CancelAllInRange 无需匹配，整段取消；外部事件按固定宽度并行删除
// CancelAllInRange cancels every active appointment in the range, then
// deletes their external events in fixed-width parallel batches.
func (s *Service) CancelAllInRange(ctx context.Context, userID, startDate, endDate string, accessToken string) (BulkOutcome, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return BulkOutcome{}, err
	}
	all, err := s.store.AppointmentsInRange(userID, start, endDate)
	if err != nil {
		return BulkOutcome{}, fmt.Errorf("load appointments: %w", err)
	}
	active := activeOnly(all)
	if len(active) == 0 {
		return BulkOutcome{Message: fmt.Sprintf("No appointments found for %s", start)}, nil
	}

	outcome, err := s.cancelRecords(ctx, userID, active, accessToken)
	if err != nil {
		return BulkOutcome{}, err
	}
	// the preview, if any, is consumed by this confirmation
	_ = s.store.ClearPendingCancellation(userID)

	bulk := BulkOutcome{Cancelled: outcome.Cancelled, SyncFailures: outcome.SyncFailures}
	bulk.Message = fmt.Sprintf("Cancelled all %d appointment(s).", bulk.Cancelled)
	if bulk.SyncFailures > 0 {
		bulk.Message += fmt.Sprintf(" %d calendar event(s) could not be removed remotely.", bulk.SyncFailures)
	}
	return bulk, nil
}

// --- Listing ---

// ListOutcome carries the sorted active appointments plus a synthesized summary.
type ListOutcome struct {
	Appointments []storage.Appointment
	Message      string
}

// List returns the active appointments in the range, chronologically
// sorted by the store, with a textual summary.
func (s *Service) List(userID, startDate, endDate string) (ListOutcome, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return ListOutcome{}, err
	}
	all, err := s.store.AppointmentsInRange(userID, start, endDate)
	if err != nil {
		return ListOutcome{}, fmt.Errorf("load appointments: %w", err)
	}
	active := activeOnly(all)
	if len(active) == 0 {
		return ListOutcome{Message: fmt.Sprintf("No appointments found for %s", start)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d appointment(s):", len(active))
	for _, a := range active {
		b.WriteString("\n- ")
		b.WriteString(a.Date)
		if a.Time != "" {
			b.WriteString(" ")
			b.WriteString(a.Time)
		} else {
			b.WriteString(" (all day)")
		}
		b.WriteString(" ")
		b.WriteString(a.Title)
		if len(a.Attendees) > 0 {
			fmt.Fprintf(&b, " with %s", strings.Join(a.Attendees, ", "))
		}
	}
	return ListOutcome{Appointments: active, Message: b.String()}, nil
}

// --- Slot Filling ---

// PartialOutcome answers a track_partial_appointment call with
// follow-up suggestions keyed by the first missing field.
type PartialOutcome struct {
	Suggestions map[string][]string
	Message     string
}

// TrackPartial upserts the in-flight slot-filling state for the user.
func (s *Service) TrackPartial(userID, eventKind string, collected map[string]string, missing []string) (PartialOutcome, error) {
	eventKind = strings.TrimSpace(eventKind)
	if eventKind == "" {
		eventKind = string(storage.KindMeeting)
	}
	pc := storage.PartialContext{
		EventKind: eventKind,
		Collected: collected,
		Missing:   missing,
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.store.SavePartialContext(userID, pc); err != nil {
		return PartialOutcome{}, fmt.Errorf("save partial context: %w", err)
	}

	outcome := PartialOutcome{Suggestions: map[string][]string{}}
	if len(missing) == 0 {
		outcome.Message = "All fields collected."
		return outcome, nil
	}
	first := strings.ToLower(strings.TrimSpace(missing[0]))
	switch first {
	case "time":
		outcome.Suggestions["time"] = []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "18:00"}
	case "date":
		outcome.Suggestions["date"] = []string{"today", "tomorrow", "day after tomorrow", "next Monday"}
	case "duration":
		outcome.Suggestions["duration"] = []string{"30", "45", "60", "90", "120"}
	}
	outcome.Message = fmt.Sprintf("Still needed: %s.", strings.Join(missing, ", "))
	return outcome, nil
}

// --- Bulk Cancellation Preview ---

// PreviewOutcome is the numbered candidate list shown before a bulk cancel.
type PreviewOutcome struct {
	Candidates []storage.CancellationCandidate
	Message    string
}

// PreviewBulkCancel persists the pending confirmation and renders the
// numbered list with a yes/no prompt.
func (s *Service) PreviewBulkCancel(userID, startDate, endDate string, candidates []storage.CancellationCandidate, cancelType string) (PreviewOutcome, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return PreviewOutcome{}, err
	}
	cancelType = strings.ToLower(strings.TrimSpace(cancelType))
	if cancelType != "specific" {
		cancelType = "all"
	}
	pending := storage.PendingCancellation{
		StartDate:  start,
		EndDate:    strings.TrimSpace(endDate),
		Candidates: candidates,
		Type:       cancelType,
		CreatedAt:  s.now().UTC().Format(time.RFC3339),
	}
	if err := s.store.SavePendingCancellation(userID, pending); err != nil {
		return PreviewOutcome{}, fmt.Errorf("save pending cancellation: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are about to cancel these appointment(s) for %s:", start)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c.Title)
		if c.Time != "" {
			fmt.Fprintf(&b, " at %s", c.Time)
		}
		if len(c.Attendees) > 0 {
			fmt.Fprintf(&b, " with %s", strings.Join(c.Attendees, ", "))
		}
	}
	b.WriteString("\nReply yes to confirm or no to keep them.")
	return PreviewOutcome{Candidates: candidates, Message: b.String()}, nil
}

// PendingCancellation returns the non-expired pending confirmation, if
// any. Stale records are dropped so they can never be confirmed late.
func (s *Service) PendingCancellation(userID string) (storage.PendingCancellation, bool, error) {
	pending, ok, err := s.store.LoadPendingCancellation(userID)
	if err != nil || !ok {
		return storage.PendingCancellation{}, false, err
	}
	created, perr := time.Parse(time.RFC3339, pending.CreatedAt)
	if perr != nil || s.now().UTC().Sub(created) > pendingTTL {
		_ = s.store.ClearPendingCancellation(userID)
		return storage.PendingCancellation{}, false, nil
	}
	return pending, true, nil
}

// --- Availability ---

// SetAvailability merges per-day windows into the stored weekly record
// and returns a summary of every configured day.
func (s *Service) SetAvailability(userID string, updates map[string]storage.DayWindow) (string, error) {
	week, ok, err := s.store.LoadAvailability(userID)
	if err != nil {
		return "", fmt.Errorf("load availability: %w", err)
	}
	if !ok || week == nil {
		week = storage.WeeklyAvailability{}
	}

	for day, window := range updates {
		day = strings.ToLower(strings.TrimSpace(day))
		if !validWeekday(day) {
			continue
		}
		if normalizeClock(window.Start) == "" || normalizeClock(window.End) == "" {
			continue
		}
		week[day] = storage.DayWindow{Start: window.Start, End: window.End}
	}
	if err := s.store.SaveAvailability(userID, week); err != nil {
		return "", fmt.Errorf("save availability: %w", err)
	}

	var parts []string
	for _, day := range weekdayOrder {
		if w, ok := week[day]; ok {
			parts = append(parts, fmt.Sprintf("%s %s-%s", titleCase(day), w.Start, w.End))
		}
	}
	if len(parts) == 0 {
		return "No availability configured yet.", nil
	}
	return "Availability updated: " + strings.Join(parts, "; ") + ".", nil
}

func validWeekday(day string) bool {
	for _, d := range weekdayOrder {
		if d == day {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func summarizeTitles(appts []storage.Appointment) string {
	titles := make([]string, 0, len(appts))
	for _, a := range appts {
		if a.Time != "" {
			titles = append(titles, fmt.Sprintf("%s (%s)", a.Title, a.Time))
			continue
		}
		titles = append(titles, a.Title)
	}
	sort.Strings(titles)
	return strings.Join(titles, ", ")
}
