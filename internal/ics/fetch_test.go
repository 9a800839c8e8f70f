package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"daybrief/internal/model"
)

func TestFetchOneCachesAndRevalidates(t *testing.T) {
	body := string(icsBody(icsEvent(
		"UID:cache@test",
		"DTSTART:20270302T160000Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:Cached Event",
	)))

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := model.CalendarSource{ID: 1, Label: "family", URL: srv.URL}

	first, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache {
		t.Error("first fetch reported FromCache")
	}
	if string(first.Body) != body {
		t.Error("first fetch body mismatch")
	}

	second, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache {
		t.Error("second fetch did not use the cache after 304")
	}
	if string(second.Body) != body {
		t.Error("cached body mismatch")
	}
	if requests != 2 {
		t.Errorf("server saw %d requests, want 2", requests)
	}
}

func TestFetchOneFallsBackToCacheOnNetworkError(t *testing.T) {
	body := string(icsBody(icsEvent(
		"UID:fallback@test",
		"DTSTART:20270302T160000Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:Sticky Event",
	)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))

	f := NewFetcher(t.TempDir())
	src := model.CalendarSource{ID: 1, Label: "family", URL: srv.URL}

	if _, err := f.FetchOne(context.Background(), src); err != nil {
		t.Fatalf("priming fetch: %v", err)
	}

	srv.Close()

	res, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("fetch with server down: %v", err)
	}
	if !res.FromCache || string(res.Body) != body {
		t.Errorf("fallback = fromCache=%v len=%d", res.FromCache, len(res.Body))
	}
}

func TestFetchOneServerErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := model.CalendarSource{ID: 1, Label: "family", URL: srv.URL}

	if _, err := f.FetchOne(context.Background(), src); err == nil {
		t.Error("expected error on 500 with empty cache")
	}
}

func TestFetchAllPreservesOrderAndIsolatesFailures(t *testing.T) {
	okBody := string(icsBody(icsEvent(
		"UID:ok@test",
		"DTSTART:20270302T160000Z",
		"DTEND:20270302T170000Z",
		"SUMMARY:Fine",
	)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad") {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	sources := []model.CalendarSource{
		{ID: 1, Label: "a", URL: srv.URL + "/a.ics", Position: 0},
		{ID: 2, Label: "bad", URL: srv.URL + "/bad.ics", Position: 1},
		{ID: 3, Label: "c", URL: srv.URL + "/c.ics", Position: 2},
	}

	f := NewFetcher(t.TempDir())
	results, errs := f.FetchAll(context.Background(), sources)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Source.ID != 1 || results[1].Source.ID != 3 {
		t.Errorf("result order = [%d, %d], want [1, 3]", results[0].Source.ID, results[1].Source.ID)
	}
	if len(errs) != 1 || errs[0].Source.ID != 2 {
		t.Errorf("errs = %v, want one for source 2", errs)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://calendar.google.com/calendar/ical/secret-token/basic.ics", "https://calendar.google.com/...(redacted)"},
		{"https://host.example", "https://host.example/...(redacted)"},
		{"garbage", "ics://...(redacted)"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
