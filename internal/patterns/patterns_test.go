package patterns

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/devdebug/devdebug-ai/internal/db"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	sqlite, err := db.NewSQLiteStore(filepath.Join(t.TempDir(), "patterns.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return NewStore(sqlite)
}

func TestRecordAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "ImagePullBackOff", "image cannot be pulled from registry", 0.9); err != nil {
		t.Fatalf("Record: %v", err)
	}

	known, err := store.Lookup(ctx, "ImagePullBackOff")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if known == nil {
		t.Fatal("Lookup returned nil for recorded signature")
	}
	if known.RootCause != "image cannot be pulled from registry" || known.HitCount != 1 {
		t.Errorf("unexpected pattern: %+v", known)
	}
}

func TestLookupUnknown(t *testing.T) {
	store := newTestStore(t)

	known, err := store.Lookup(context.Background(), "NeverSeen")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if known != nil {
		t.Errorf("expected nil, got %+v", known)
	}
}

func TestRecordEmptySignatureIgnored(t *testing.T) {
	store := newTestStore(t)

	if err := store.Record(context.Background(), "   ", "something", 0.9); err != nil {
		t.Fatalf("Record: %v", err)
	}

	known, err := store.Match(context.Background(), "any text at all")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if known != nil {
		t.Errorf("blank signature was recorded: %+v", known)
	}
}

func TestMatchPrefersMostConfirmed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, "CrashLoopBackOff", "container exiting repeatedly", 0.8); err != nil {
		t.Fatalf("Record: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.Record(ctx, "OOMKilled", "memory limit exceeded", 0.95); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	text := "pod web-0: OOMKilled, restarting; previous state CrashLoopBackOff"
	known, err := store.Match(ctx, text)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if known == nil || known.Signature != "OOMKilled" {
		t.Errorf("Match = %+v, want OOMKilled", known)
	}

	known, err = store.Match(ctx, "nothing interesting here")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if known != nil {
		t.Errorf("Match on unrelated text = %+v, want nil", known)
	}
}
