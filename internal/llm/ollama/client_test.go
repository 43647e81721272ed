package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devdebug/devdebug-ai/internal/llm"
)

func TestCompleteRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream must be false")
		}
		if req.Options.NumPredict != 1500 {
			t.Errorf("num_predict = %d, want 1500", req.Options.NumPredict)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "hypothesis text"})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 0.3, 0)
	got, err := c.Complete(context.Background(), "analyze this", 1500)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hypothesis text" {
		t.Errorf("response = %q", got)
	}
}

func TestCompleteServerDownIsUnavailable(t *testing.T) {
	c := New("http://127.0.0.1:1", "test-model", 0, 0)
	_, err := c.Complete(context.Background(), "x", 10)
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestAvailableChecksModelList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"models": [{"name": "llama3.1:8b"}]}`))
	}))
	defer srv.Close()

	if !New(srv.URL, "llama3.1:8b", 0, 0).Available(context.Background()) {
		t.Error("expected available when model listed")
	}
	if New(srv.URL, "mistral:7b", 0, 0).Available(context.Background()) {
		t.Error("expected unavailable when model missing")
	}
}

func TestAvailableServerDown(t *testing.T) {
	if New("http://127.0.0.1:1", "m", 0, 0).Available(context.Background()) {
		t.Error("expected unavailable when server down")
	}
}
