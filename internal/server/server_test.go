package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/devdebug/devdebug-ai/internal/config"
	"github.com/devdebug/devdebug-ai/internal/db"
	"github.com/devdebug/devdebug-ai/internal/executor"
	"github.com/devdebug/devdebug-ai/internal/investigation"
	"github.com/devdebug/devdebug-ai/internal/llm"
)

// stubRunner answers every pod listing with a definitive OOMKilled row
// so sessions conclude after one round of evidence.
type stubRunner struct{}

func (stubRunner) Execute(ctx context.Context, command string, timeout time.Duration) executor.CommandResult {
	zero := 0
	result := executor.CommandResult{Command: command, ExitCode: &zero, Duration: time.Millisecond}
	if bytes.Contains([]byte(command), []byte("get pods")) {
		result.Stdout = "NAME     READY   STATUS      RESTARTS   AGE\nbatch-1  0/1     OOMKilled   3          5m"
	}
	return result
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	store, err := db.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	model := llm.Disabled{}
	controller := investigation.NewController(investigation.Deps{
		Analyzer: investigation.NewAnalyzer(model, 0.8, nil),
		Planner:  investigation.NewPlanner(model, nil, nil, nil),
		Runner:   stubRunner{},
		Store:    store,
		Model:    model,
	})

	cfg := config.DefaultConfig()
	srv, err := NewServer(cfg, controller, store, model, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		if srv.limiter != nil {
			srv.limiter.Stop()
		}
	})
	return srv, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCreateInvestigationRequiresQuery(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/investigations", "application/json",
		bytes.NewBufferString(`{"namespace":"default"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestInvestigationLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	// Create.
	resp, err := http.Post(ts.URL+"/api/v1/investigations", "application/json",
		bytes.NewBufferString(`{"query":"why is my pod dying","namespace":"default"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var created struct {
		ID        string `json:"id"`
		StreamURL string `json:"stream_url"`
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if created.ID == "" || created.StreamURL == "" {
		t.Fatalf("incomplete create response: %+v", created)
	}

	// Poll until concluded.
	deadline := time.After(5 * time.Second)
	var rec db.SessionRecord
	for {
		r, err := http.Get(ts.URL + "/api/v1/investigations/" + created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if r.StatusCode != http.StatusOK {
			t.Fatalf("get status = %d", r.StatusCode)
		}
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		r.Body.Close()
		if rec.State == "concluding" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session stuck in state %q", rec.State)
		case <-time.After(20 * time.Millisecond):
		}
	}

	// Report.
	r, err := http.Get(ts.URL + "/api/v1/investigations/" + created.ID + "/report")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d", r.StatusCode)
	}
	var report investigation.FinalReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.RootCause == "" || report.Confidence < 0.8 {
		t.Errorf("report = %+v", report)
	}

	// Steps were persisted.
	sr, err := http.Get(ts.URL + "/api/v1/investigations/" + created.ID + "/steps")
	if err != nil {
		t.Fatalf("get steps: %v", err)
	}
	defer sr.Body.Close()
	var steps struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(sr.Body).Decode(&steps); err != nil {
		t.Fatalf("decode steps: %v", err)
	}
	if steps.Count == 0 {
		t.Error("no steps persisted")
	}

	// List shows the session.
	lr, err := http.Get(ts.URL + "/api/v1/investigations")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer lr.Body.Close()
	var list struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(lr.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 {
		t.Errorf("list count = %d, want 1", list.Count)
	}
}

func TestGetUnknownInvestigation(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/investigations/no-such-id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestReportPendingReturnsAccepted(t *testing.T) {
	srv, ts := newTestServer(t)

	// A session record exists but no report yet.
	rec := &db.SessionRecord{
		ID: "pending-1", Query: "q", Intent: "troubleshoot", State: "gathering",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := srv.store.SaveSession(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/v1/investigations/pending-1/report")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	store, err := db.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	model := llm.Disabled{}
	controller := investigation.NewController(investigation.Deps{
		Analyzer: investigation.NewAnalyzer(model, 0.8, nil),
		Planner:  investigation.NewPlanner(model, nil, nil, nil),
		Runner:   stubRunner{},
		Store:    store,
		Model:    model,
	})

	cfg := config.DefaultConfig()
	cfg.Server.RateLimitPerMinute = 2
	srv, err := NewServer(cfg, controller, store, model, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.limiter.Stop() })

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/investigations")
		if err != nil {
			t.Fatalf("get %d: %v", i+1, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/v1/investigations")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}

	// Health stays outside the limiter.
	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}
