package bbolt

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmcleod/keysafe/storage"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path, time.Second)
	if err != nil {
		t.Fatalf("could not open journal: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestAuditEvents(t *testing.T) {
	s, _ := newTestStore(t)
	for _, action := range []string{"init", "add", "get", "delete"} {
		if err := s.Append(storage.Event{Action: action, Outcome: "ok"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all, err := s.Events(0)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(all) != 4 || all[0].Action != "init" || all[3].Action != "delete" {
		t.Fatalf("unexpected events: %+v", all)
	}
	if all[0].ID == "" || all[0].At.IsZero() {
		t.Fatal("Append should fill ID and timestamp")
	}

	last, err := s.Events(2)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(last) != 2 || last[0].Action != "get" || last[1].Action != "delete" {
		t.Fatalf("unexpected tail: %+v", last)
	}
}

func TestGenerationHighWaterMark(t *testing.T) {
	s, path := newTestStore(t)
	if got := s.MaxGeneration("v1"); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if err := s.SetMaxGeneration("v1", 5); err != nil {
		t.Fatalf("SetMaxGeneration failed: %v", err)
	}
	if err := s.SetMaxGeneration("v1", 4); !errors.Is(err, storage.ErrRollbackDetected) {
		t.Fatalf("expected ErrRollbackDetected, got %v", err)
	}
	if err := s.SetMaxGeneration("v2", 1); err != nil {
		t.Fatalf("SetMaxGeneration failed: %v", err)
	}

	// Survives reopen.
	s.Close()
	reopened, err := Open(path, time.Second)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if got := reopened.MaxGeneration("v1"); got != 5 {
		t.Fatalf("expected 5 after reopen, got %d", got)
	}

	if err := reopened.ResetGeneration("v1"); err != nil {
		t.Fatalf("ResetGeneration failed: %v", err)
	}
	if err := reopened.SetMaxGeneration("v1", 1); err != nil {
		t.Fatalf("SetMaxGeneration after reset failed: %v", err)
	}
}

func TestSecondWriterIsBusy(t *testing.T) {
	_, path := newTestStore(t)
	start := time.Now()
	_, err := Open(path, 50*time.Millisecond)
	if !errors.Is(err, storage.ErrVaultBusy) {
		t.Fatalf("expected ErrVaultBusy, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("second writer should fail fast")
	}
}

func TestReadOnlyAfterWriterCloses(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Append(storage.Event{Action: "add", Name: "API_KEY", Outcome: "ok"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	s.Close()

	ro, err := OpenReadOnly(path, time.Second)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer ro.Close()
	events, err := ro.Events(0)
	if err != nil || len(events) != 1 || events[0].Name != "API_KEY" {
		t.Fatalf("unexpected events %+v, err %v", events, err)
	}
}

func TestEventsAreChained(t *testing.T) {
	s, path := newTestStore(t)
	for _, action := range []string{"init", "add", "get"} {
		if err := s.Append(storage.Event{Action: action, Outcome: "ok"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	s.Close()

	// The chain continues across reopen.
	reopened, err := Open(path, time.Second)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Append(storage.Event{Action: "delete", Outcome: "ok"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := reopened.Events(0)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if events[0].PrevHash != storage.GenesisHash {
		t.Fatalf("first event should anchor to genesis, got %s", events[0].PrevHash)
	}
	if report := storage.VerifyChain(events); !report.Valid {
		t.Fatalf("chain should verify: %+v", report.Checks)
	}
}
