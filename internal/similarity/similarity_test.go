package similarity

import "testing"

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"meeting", "meeting", 0},
		{"dentist", "dentists", 1},
	}
	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Fatalf("Distance(%q, %q)=%d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestScoreIdentity(t *testing.T) {
	for _, s := range []string{"a", "dentist appointment", "约会"} {
		if got := Score(s, s); got != 1.0 {
			t.Fatalf("Score(%q, %q)=%v, want 1.0", s, s, got)
		}
	}
}

func TestScoreEmpty(t *testing.T) {
	if got := Score("", "meeting"); got != 0 {
		t.Fatalf("Score(empty, x)=%v, want 0", got)
	}
	if got := Score("meeting", ""); got != 0 {
		t.Fatalf("Score(x, empty)=%v, want 0", got)
	}
	if got := Score("   ", "meeting"); got != 0 {
		t.Fatalf("Score(blank, x)=%v, want 0", got)
	}
}

func TestScoreCaseInsensitive(t *testing.T) {
	if got := Score("Team Sync", "team sync"); got != 1.0 {
		t.Fatalf("case-insensitive Score=%v, want 1.0", got)
	}
}

func TestScoreNearMiss(t *testing.T) {
	// "dentist" vs "dentists": distance 1, maxLen 8 -> 0.875
	got := Score("dentist", "dentists")
	if got <= 0.30 {
		t.Fatalf("Score(dentist, dentists)=%v, want above suggestion threshold", got)
	}
	if got >= 1.0 {
		t.Fatalf("Score(dentist, dentists)=%v, want < 1.0", got)
	}
}
