package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"daybrief/internal/config"
	"daybrief/internal/model"
	"daybrief/internal/store"
)

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.Store) {
	t.Helper()
	st, err := store.NewMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return NewServer(cfg, st, nil), st
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestSnapshotNotFoundBeforeFirstRun(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSnapshotServesActive(t *testing.T) {
	srv, st := newTestServer(t, nil)

	if _, err := st.WriteAndActivateSnapshot(context.Background(), model.Snapshot{
		Date: model.Date{Year: 2027, Month: 3, Day: 2},
		Payload: model.SnapshotPayload{
			Todos: []model.Todo{{ID: 1, Title: "Take out trash"}},
		},
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var snap model.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Date.String() != "2027-03-02" || !snap.Active {
		t.Errorf("snapshot = date %v active %v", snap.Date, snap.Active)
	}
	if len(snap.Payload.Todos) != 1 {
		t.Errorf("todos = %+v", snap.Payload.Todos)
	}
}

func TestSnapshotHistory(t *testing.T) {
	srv, st := newTestServer(t, nil)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		if _, err := st.WriteAndActivateSnapshot(ctx, model.Snapshot{
			Date: model.Date{Year: 2027, Month: 3, Day: day},
		}); err != nil {
			t.Fatal(err)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snaps []model.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("history length = %d, want 3", len(snaps))
	}
	var activeCount int
	for _, s := range snaps {
		if s.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("active snapshots in history = %d, want 1", activeCount)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "house", Password: "secret"}
	srv, _ := newTestServer(t, cfg)
	h := srv.Handler()

	// No credentials.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no creds: status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("no WWW-Authenticate challenge")
	}

	// Wrong credentials.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	req.SetBasicAuth("house", "wrong")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad creds: status = %d, want 401", rec.Code)
	}

	// Valid credentials reach the handler (404, nothing generated yet).
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	req.SetBasicAuth("house", "secret")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("good creds: status = %d, want 404", rec.Code)
	}

	// Health stays open for probes.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled: status = %d, want 200", rec.Code)
	}
}
