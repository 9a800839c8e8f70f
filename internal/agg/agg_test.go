package agg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"daybrief/internal/ics"
	"daybrief/internal/model"
)

// fakeFetcher serves canned ICS bodies keyed by source ID and fails the
// sources listed in down.
type fakeFetcher struct {
	bodies map[int64]string
	down   map[int64]error
}

func (f *fakeFetcher) FetchAll(ctx context.Context, sources []model.CalendarSource) ([]ics.FetchResult, []*ics.SourceError) {
	var results []ics.FetchResult
	var errs []*ics.SourceError
	for _, src := range sources {
		if err, ok := f.down[src.ID]; ok {
			errs = append(errs, &ics.SourceError{Source: src, Err: err})
			continue
		}
		results = append(results, ics.FetchResult{Source: src, Body: []byte(f.bodies[src.ID])})
	}
	return results, errs
}

func calendarWith(events ...string) string {
	body := "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//daybrief test//EN\n" +
		strings.Join(events, "") + "END:VCALENDAR\n"
	return strings.ReplaceAll(body, "\n", "\r\n")
}

func vevent(lines ...string) string {
	return "BEGIN:VEVENT\n" + strings.Join(lines, "\n") + "\nEND:VEVENT\n"
}

func window(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	return time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 3, 8, 23, 59, 59, 0, time.UTC)
}

func TestDeclinedOccurrenceDropped(t *testing.T) {
	body := calendarWith(
		vevent(
			"UID:declined@test",
			"DTSTART:20270302T160000Z",
			"DTEND:20270302T170000Z",
			"SUMMARY:Team Offsite",
			"ATTENDEE;PARTSTAT=DECLINED;CN=Dad:mailto:dad@example.com",
		),
		vevent(
			"UID:accepted@test",
			"DTSTART:20270302T180000Z",
			"DTEND:20270302T190000Z",
			"SUMMARY:Parent Meeting",
			"ATTENDEE;PARTSTAT=ACCEPTED:mailto:dad@example.com",
		),
		vevent(
			"UID:norecord@test",
			"DTSTART:20270302T200000Z",
			"DTEND:20270302T210000Z",
			"SUMMARY:Book Club",
		),
	)

	sources := []model.CalendarSource{{ID: 1, Label: "dad", URL: "https://a.example/cal.ics", OwnerEmail: "dad@example.com", Position: 0}}
	a := New(&fakeFetcher{bodies: map[int64]string{1: body}}, time.UTC)

	start, end := window(t)
	report := a.Aggregate(context.Background(), sources, start, end)

	if len(report.Occurrences) != 2 {
		t.Fatalf("got %d occurrences, want 2: %+v", len(report.Occurrences), titles(report.Occurrences))
	}
	for _, occ := range report.Occurrences {
		if occ.Title == "Team Offsite" {
			t.Error("declined occurrence appeared in output")
		}
	}
}

func TestUnknownStatusTreatedAsAttending(t *testing.T) {
	// A status recorded for someone else's identity must not hide the
	// event from this owner.
	body := calendarWith(vevent(
		"UID:other@test",
		"DTSTART:20270302T160000Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:Recital",
		"ATTENDEE;PARTSTAT=DECLINED:mailto:someone-else@example.com",
	))

	sources := []model.CalendarSource{{ID: 1, Label: "mom", URL: "https://a.example/cal.ics", OwnerEmail: "mom@example.com", Position: 0}}
	a := New(&fakeFetcher{bodies: map[int64]string{1: body}}, time.UTC)

	start, end := window(t)
	report := a.Aggregate(context.Background(), sources, start, end)

	if len(report.Occurrences) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(report.Occurrences))
	}
}

func TestCrossFeedDedupPrefersFirstConfiguredSource(t *testing.T) {
	// Source A at 16:00, source B at 16:01 with the same title: exactly
	// one survives, and it is A's.
	bodyA := calendarWith(vevent(
		"UID:soccer@a",
		"DTSTART:20270302T160000Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:Soccer Practice",
	))
	bodyB := calendarWith(vevent(
		"UID:soccer@b",
		"DTSTART:20270302T160100Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:soccer  practice",
	))

	sources := []model.CalendarSource{
		{ID: 1, Label: "family", URL: "https://a.example/cal.ics", Position: 0},
		{ID: 2, Label: "school", URL: "https://b.example/cal.ics", Position: 1},
	}
	a := New(&fakeFetcher{bodies: map[int64]string{1: bodyA, 2: bodyB}}, time.UTC)

	start, end := window(t)
	report := a.Aggregate(context.Background(), sources, start, end)

	if len(report.Occurrences) != 1 {
		t.Fatalf("got %d occurrences, want 1: %+v", len(report.Occurrences), titles(report.Occurrences))
	}
	got := report.Occurrences[0]
	if got.SourceID != 1 {
		t.Errorf("survivor from source %d, want source 1", got.SourceID)
	}
	if !got.Start.Equal(time.Date(2027, 3, 2, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("survivor start = %v, want 16:00", got.Start)
	}
}

func TestSameSourceDuplicatesKept(t *testing.T) {
	body := calendarWith(
		vevent("UID:one@a", "DTSTART:20270302T160000Z", "DTEND:20270302T170000Z", "SUMMARY:Practice"),
		vevent("UID:two@a", "DTSTART:20270302T160000Z", "DTEND:20270302T170000Z", "SUMMARY:Practice"),
	)

	sources := []model.CalendarSource{{ID: 1, Label: "family", URL: "https://a.example/cal.ics", Position: 0}}
	a := New(&fakeFetcher{bodies: map[int64]string{1: body}}, time.UTC)

	start, end := window(t)
	report := a.Aggregate(context.Background(), sources, start, end)

	if len(report.Occurrences) != 2 {
		t.Fatalf("got %d occurrences, want 2 (same-source pairs are not merged)", len(report.Occurrences))
	}
}

func TestFailedSourceDoesNotAbortOthers(t *testing.T) {
	bodyB := calendarWith(vevent(
		"UID:ok@b",
		"DTSTART:20270302T160000Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:Swim Lesson",
	))

	sources := []model.CalendarSource{
		{ID: 1, Label: "broken", URL: "https://a.example/cal.ics", Position: 0},
		{ID: 2, Label: "ok", URL: "https://b.example/cal.ics", Position: 1},
	}
	a := New(&fakeFetcher{
		bodies: map[int64]string{2: bodyB},
		down:   map[int64]error{1: errors.New("connection refused")},
	}, time.UTC)

	start, end := window(t)
	report := a.Aggregate(context.Background(), sources, start, end)

	if len(report.Occurrences) != 1 || report.Occurrences[0].Title != "Swim Lesson" {
		t.Fatalf("surviving source not aggregated: %+v", titles(report.Occurrences))
	}
	if len(report.SourceErrors) != 1 || report.SourceErrors[0].Source.ID != 1 {
		t.Errorf("source errors = %+v, want one for source 1", report.SourceErrors)
	}
}

func TestMalformedFeedIsolated(t *testing.T) {
	bodyB := calendarWith(vevent(
		"UID:ok@b",
		"DTSTART:20270302T160000Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:Piano",
	))

	sources := []model.CalendarSource{
		{ID: 1, Label: "garbage", URL: "https://a.example/cal.ics", Position: 0},
		{ID: 2, Label: "ok", URL: "https://b.example/cal.ics", Position: 1},
	}
	a := New(&fakeFetcher{bodies: map[int64]string{1: "this is not a calendar", 2: bodyB}}, time.UTC)

	start, end := window(t)
	report := a.Aggregate(context.Background(), sources, start, end)

	if len(report.Occurrences) != 1 || report.Occurrences[0].Title != "Piano" {
		t.Fatalf("healthy source not aggregated: %+v", titles(report.Occurrences))
	}
	if len(report.SourceErrors) != 1 {
		t.Errorf("got %d source errors, want 1", len(report.SourceErrors))
	}
}

func TestOutputSortedByStartThenTitle(t *testing.T) {
	body := calendarWith(
		vevent("UID:c@a", "DTSTART:20270303T090000Z", "DTEND:20270303T100000Z", "SUMMARY:Zoo Trip"),
		vevent("UID:b@a", "DTSTART:20270302T160000Z", "DTEND:20270302T170000Z", "SUMMARY:Ballet"),
		vevent("UID:a@a", "DTSTART:20270302T160000Z", "DTEND:20270302T170000Z", "SUMMARY:Art Class"),
	)

	sources := []model.CalendarSource{{ID: 1, Label: "family", URL: "https://a.example/cal.ics", Position: 0}}
	a := New(&fakeFetcher{bodies: map[int64]string{1: body}}, time.UTC)

	start, end := window(t)
	report := a.Aggregate(context.Background(), sources, start, end)

	want := []string{"Art Class", "Ballet", "Zoo Trip"}
	got := titles(report.Occurrences)
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q (full order: %v)", i, got[i], want[i], got)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Soccer Practice", "soccer practice"},
		{"  soccer   PRACTICE ", "soccer practice"},
		{"Soccer\tPractice", "soccer practice"},
	}
	for _, tt := range tests {
		if got := normalizeTitle(tt.in); got != tt.want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func titles(occs []model.Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, occ := range occs {
		out = append(out, occ.Title)
	}
	return out
}
