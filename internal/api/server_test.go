package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyweaver/harvester/internal/domain"
)

type staticProvider struct {
	state *domain.QueueState
}

func (p staticProvider) Snapshot() *domain.QueueState {
	return p.state
}

func TestStatusRoutes(t *testing.T) {
	st := domain.NewQueueState("run-7", []domain.QueueItem{
		{RemoteID: "SW-1", Slug: "1", Status: domain.StatusCompleted},
		{RemoteID: "SW-2", Slug: "2", Status: domain.StatusFailed, Attempts: 1, LastError: "not found"},
		{RemoteID: "SW-3", Slug: "3", Status: domain.StatusPending},
	}, 0, time.Now())
	router := NewRouter(NewHandler(staticProvider{state: st}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var status struct {
		RunID   string         `json:"run_id"`
		Summary domain.Summary `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.RunID != "run-7" || status.Summary.Completed != 1 || status.Summary.Pending != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/failures", nil))
	var failures struct {
		Count    int           `json:"count"`
		Failures []failureView `json:"failures"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &failures); err != nil {
		t.Fatalf("decode failures: %v", err)
	}
	if failures.Count != 1 || failures.Failures[0].LastError != "not found" {
		t.Fatalf("unexpected failures %+v", failures)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
}

func TestStatusRoutes_NoActiveRun(t *testing.T) {
	router := NewRouter(NewHandler(staticProvider{}))

	for _, path := range []string{"/status", "/failures"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}
}
