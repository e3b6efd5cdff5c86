package session

import (
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestSessionStateRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, ok, err := LoadCurrentSessionID(); err != nil || ok {
		t.Fatalf("LoadCurrentSessionID() on fresh home = ok=%v, err=%v; want no session", ok, err)
	}

	id := uuid.New()
	if err := SaveCurrentSessionID(id); err != nil {
		t.Fatalf("SaveCurrentSessionID() unexpected error: %v", err)
	}

	got, ok, err := LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID() unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("LoadCurrentSessionID() found no session after save")
	}
	if got != id {
		t.Errorf("LoadCurrentSessionID() = %s, want %s", got, id)
	}

	if err := SaveCurrentSessionID(uuid.New()); err != nil {
		t.Fatalf("SaveCurrentSessionID() overwrite unexpected error: %v", err)
	}
	if got, _, _ := LoadCurrentSessionID(); got == id {
		t.Error("LoadCurrentSessionID() still returns the overwritten session")
	}

	if err := ClearCurrentSessionID(); err != nil {
		t.Fatalf("ClearCurrentSessionID() unexpected error: %v", err)
	}
	if _, ok, _ := LoadCurrentSessionID(); ok {
		t.Error("session survived ClearCurrentSessionID()")
	}

	// Clearing twice is fine.
	if err := ClearCurrentSessionID(); err != nil {
		t.Errorf("ClearCurrentSessionID() second call unexpected error: %v", err)
	}
}

func TestLoadCurrentSessionIDMalformed(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := statePath()
	if err != nil {
		t.Fatalf("statePath() unexpected error: %v", err)
	}
	if err := os.WriteFile(path, []byte("not-a-uuid\n"), 0o644); err != nil {
		t.Fatalf("writing state file: %v", err)
	}

	if _, _, err := LoadCurrentSessionID(); err == nil {
		t.Fatal("LoadCurrentSessionID() succeeded on malformed state file")
	}
}
