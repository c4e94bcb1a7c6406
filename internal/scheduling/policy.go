// Package scheduling implements the appointment domain: creation
// policy, cancellation matching, availability, and slot-filling state.
package scheduling

import (
	"fmt"
	"strings"
	"time"

	"calbot/internal/storage"
)

const (
	defaultMeetingMinutes  = 30
	defaultPersonalMinutes = 60
)

// allDayKeywords 命中即视为全天事件，仅需日期即可同步
// Titles matching these keywords are all-day-classified: sync-eligible
// with a date alone, no time required.
var allDayKeywords = []string{"birthday", "holiday", "anniversary", "vacation", "day off"}

// ValidationError marks a missing or malformed required field. It is
// surfaced to the assistant as a clarifying question, not a failure.
type ValidationError struct {
	Field string
	Hint  string
}

func (e *ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s is required: %s", e.Field, e.Hint)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// IsAllDayTitle reports whether the title is all-day-classified.
func IsAllDayTitle(title string) bool {
	t := strings.ToLower(title)
	for _, kw := range allDayKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// SyncEligible 判断是否达到外部日历同步门槛
// SyncEligible reports whether the appointment is ready for external
// calendar sync: an all-day-classified title needs only a date,
// everything else needs both date and time.
func SyncEligible(a storage.Appointment) bool {
	if a.Date == "" {
		return false
	}
	if IsAllDayTitle(a.Title) {
		return true
	}
	return a.Time != ""
}

// DeriveTitle never returns an empty title: explicit title, then the
// raw user input, then a generic fallback by kind.
func DeriveTitle(title, rawText string, kind storage.AppointmentKind) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if raw := strings.TrimSpace(rawText); raw != "" {
		runes := []rune(raw)
		if len(runes) > 60 {
			return string(runes[:60])
		}
		return raw
	}
	if kind == storage.KindPersonal {
		return "Personal Event"
	}
	return "Meeting"
}

// defaultDuration returns the default duration in minutes by kind.
func defaultDuration(kind storage.AppointmentKind) int {
	if kind == storage.KindPersonal {
		return defaultPersonalMinutes
	}
	return defaultMeetingMinutes
}

// NormalizeAttendees trims, drops empties, and deduplicates while
// keeping order. Names are display names, never validated as emails.
func NormalizeAttendees(names []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

func parseDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &ValidationError{Field: "date", Hint: "ask the user for a date"}
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return "", &ValidationError{Field: "date", Hint: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", value)}
	}
	return value, nil
}

// normalizeClock accepts "15:04" and degrades invalid values to unset
// rather than failing the operation.
func normalizeClock(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if _, err := time.Parse("15:04", value); err != nil {
		return ""
	}
	return value
}
