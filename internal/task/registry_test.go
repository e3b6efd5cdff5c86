package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/docket0/docket/internal/testutil"
)

func closeRegistry(t *testing.T, r *Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
}

func TestNewRegistryValidation(t *testing.T) {
	if _, err := NewRegistry(0, testutil.DiscardLogger()); err == nil {
		t.Fatal("NewRegistry(0) expected error, got nil")
	}
}

func TestSubmitRunsTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := NewRegistry(2, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}

	var ran atomic.Bool
	if !r.Submit("mark", func() { ran.Store(true) }) {
		t.Fatal("Submit() rejected a task with idle workers")
	}

	closeRegistry(t, r)
	if !ran.Load() {
		t.Error("task never ran")
	}
}

func TestSubmitDropsWhenSaturated(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := NewRegistry(1, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}

	block := make(chan struct{})
	started := make(chan struct{})
	if !r.Submit("blocker", func() { close(started); <-block }) {
		t.Fatal("Submit() rejected the first task")
	}
	<-started

	if r.Submit("extra", func() {}) {
		t.Error("Submit() accepted work beyond pool capacity")
	}

	close(block)
	closeRegistry(t, r)
}

func TestSubmitSurvivesPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := NewRegistry(1, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}

	panicked := make(chan struct{})
	r.Submit("panics", func() {
		defer close(panicked)
		panic("boom")
	})
	<-panicked

	// The pool replaces the panicked worker; keep trying until a slot opens.
	var ran atomic.Bool
	deadline := time.After(2 * time.Second)
	for !r.Submit("after-panic", func() { ran.Store(true) }) {
		select {
		case <-deadline:
			t.Fatal("pool never recovered after panic")
		case <-time.After(10 * time.Millisecond):
		}
	}

	closeRegistry(t, r)
	if !ran.Load() {
		t.Error("task submitted after panic never ran")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := NewRegistry(1, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}
	closeRegistry(t, r)

	if r.Submit("late", func() {}) {
		t.Error("Submit() accepted a task after Close()")
	}
}

func TestCloseTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := NewRegistry(1, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}

	block := make(chan struct{})
	started := make(chan struct{})
	r.Submit("blocker", func() { close(started); <-block })
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Close(ctx); err == nil {
		t.Error("Close() succeeded with a task still running")
	}

	// Unblock so the abandoned worker exits before leak verification.
	close(block)
}
