package scheduling

import (
	"strings"

	"calbot/internal/similarity"
	"calbot/internal/storage"
)

// suggestionThreshold 相似度高于此值才进入 "did you mean" 建议
// Titles scoring strictly above this similarity are offered as suggestions.
const suggestionThreshold = 0.30

// CancelQuery identifies appointments to cancel on a date. Only Date
// is mandatory; the rest narrow the match.
type CancelQuery struct {
	Date      string
	EndDate   string
	Title     string
	Time      string
	Attendees []string
}

func (q CancelQuery) hasCriteria() bool {
	return strings.TrimSpace(q.Title) != "" ||
		strings.TrimSpace(q.Time) != "" ||
		len(NormalizeAttendees(q.Attendees)) > 0
}

// activeOnly filters out cancelled records.
func activeOnly(appts []storage.Appointment) []storage.Appointment {
	var out []storage.Appointment
	for _, a := range appts {
		if a.Status != storage.StatusCancelled {
			out = append(out, a)
		}
	}
	return out
}

// matchCandidates returns every appointment satisfying ANY of the
// query criteria: title containment (either direction, including
// word-level overlap), exact time equality, or attendee substring.
func matchCandidates(appts []storage.Appointment, q CancelQuery) []storage.Appointment {
	if !q.hasCriteria() {
		return nil
	}
	queryTitle := strings.TrimSpace(q.Title)
	queryTime := strings.TrimSpace(q.Time)
	queryAttendees := NormalizeAttendees(q.Attendees)

	var matched []storage.Appointment
	for _, a := range appts {
		if queryTitle != "" && titleMatches(a.Title, queryTitle) {
			matched = append(matched, a)
			continue
		}
		if queryTime != "" && a.Time == queryTime {
			matched = append(matched, a)
			continue
		}
		if attendeeMatches(a.Attendees, queryAttendees) {
			matched = append(matched, a)
		}
	}
	return matched
}

func titleMatches(apptTitle, queryTitle string) bool {
	at := strings.ToLower(strings.TrimSpace(apptTitle))
	qt := strings.ToLower(strings.TrimSpace(queryTitle))
	if at == "" || qt == "" {
		return false
	}
	if strings.Contains(at, qt) || strings.Contains(qt, at) {
		return true
	}
	// word-level containment: any substantial query word appearing in
	// the appointment title counts as the same match, not a separate gate
	apptWords := strings.Fields(at)
	for _, w := range strings.Fields(qt) {
		if len(w) < 3 {
			continue
		}
		for _, aw := range apptWords {
			if strings.Contains(aw, w) || strings.Contains(w, aw) {
				return true
			}
		}
	}
	return false
}

func attendeeMatches(apptAttendees, queryAttendees []string) bool {
	if len(apptAttendees) == 0 || len(queryAttendees) == 0 {
		return false
	}
	for _, q := range queryAttendees {
		ql := strings.ToLower(q)
		for _, a := range apptAttendees {
			if strings.Contains(strings.ToLower(a), ql) {
				return true
			}
		}
	}
	return false
}

// suggestTitles 返回与查询标题相似度超过阈值的候选标题
// suggestTitles returns candidate titles scoring above the threshold
// against the query title, preserving candidate order.
func suggestTitles(appts []storage.Appointment, queryTitle string) []string {
	queryTitle = strings.TrimSpace(queryTitle)
	if queryTitle == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, a := range appts {
		if similarity.Score(queryTitle, a.Title) <= suggestionThreshold {
			continue
		}
		key := strings.ToLower(a.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a.Title)
	}
	return out
}
