package scheduling

import (
	"testing"

	"calbot/internal/storage"
)

func appts(titles ...string) []storage.Appointment {
	out := make([]storage.Appointment, 0, len(titles))
	for _, t := range titles {
		out = append(out, storage.Appointment{Title: t, Status: storage.StatusScheduled})
	}
	return out
}

func TestActiveOnly(t *testing.T) {
	in := []storage.Appointment{
		{Title: "a", Status: storage.StatusScheduled},
		{Title: "b", Status: storage.StatusCancelled},
		{Title: "c", Status: storage.StatusScheduled},
	}
	got := activeOnly(in)
	if len(got) != 2 || got[0].Title != "a" || got[1].Title != "c" {
		t.Fatalf("activeOnly = %+v", got)
	}
}

func TestMatchCandidatesTitle(t *testing.T) {
	in := appts("Dentist appointment", "Team standup", "Lunch with Bob")

	got := matchCandidates(in, CancelQuery{Title: "dentist"})
	if len(got) != 1 || got[0].Title != "Dentist appointment" {
		t.Fatalf("substring match failed: %+v", got)
	}

	// either direction: query longer than the stored title
	got = matchCandidates(in, CancelQuery{Title: "my team standup meeting"})
	if len(got) != 1 || got[0].Title != "Team standup" {
		t.Fatalf("word-level match failed: %+v", got)
	}
}

func TestMatchCandidatesTimeAndAttendees(t *testing.T) {
	in := []storage.Appointment{
		{Title: "Review", Time: "14:00", Status: storage.StatusScheduled},
		{Title: "Planning", Time: "10:00", Attendees: []string{"Alice Smith"}, Status: storage.StatusScheduled},
	}

	got := matchCandidates(in, CancelQuery{Time: "14:00"})
	if len(got) != 1 || got[0].Title != "Review" {
		t.Fatalf("time match failed: %+v", got)
	}

	got = matchCandidates(in, CancelQuery{Attendees: []string{"alice"}})
	if len(got) != 1 || got[0].Title != "Planning" {
		t.Fatalf("attendee match failed: %+v", got)
	}

	if got := matchCandidates(in, CancelQuery{}); got != nil {
		t.Fatalf("no criteria should match nothing, got %+v", got)
	}
}

func TestSuggestTitles(t *testing.T) {
	in := appts("Dentist", "Dentist", "Groceries")

	got := suggestTitles(in, "dentists")
	if len(got) != 1 || got[0] != "Dentist" {
		t.Fatalf("suggestTitles = %v", got)
	}

	if got := suggestTitles(in, "xyzq"); len(got) != 0 {
		t.Fatalf("dissimilar title should suggest nothing, got %v", got)
	}
	if got := suggestTitles(in, ""); got != nil {
		t.Fatalf("empty query should suggest nothing, got %v", got)
	}
}
