package session

import (
	"testing"
	"time"
)

func newRegistrySession(t *testing.T, id string, limit int) *Session {
	t.Helper()
	s, err := New(Config{
		ID:               id,
		StudentID:        "student-" + id,
		StartTime:        testStart,
		TimeLimitSeconds: limit,
		Policy:           DefaultFlagPolicy(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get("missing"); err != ErrNotFound {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}

	s := newRegistrySession(t, "a", 600)
	r.Add(s)
	got, err := r.Get("a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != s {
		t.Error("Get() returned a different session")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	r.Remove("a")
	if _, err := r.Get("a"); err != ErrNotFound {
		t.Errorf("Get() after Remove err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SweepExpired(t *testing.T) {
	r := NewRegistry()
	r.Add(newRegistrySession(t, "short", 60))
	r.Add(newRegistrySession(t, "long", 3600))

	expired := r.SweepExpired(testStart.Add(30 * time.Second))
	if len(expired) != 0 {
		t.Fatalf("sweep before any expiry returned %v", expired)
	}

	expired = r.SweepExpired(testStart.Add(90 * time.Second))
	if len(expired) != 1 || expired[0] != "short" {
		t.Fatalf("sweep = %v, want [short]", expired)
	}

	// Later sweeps must not re-fire the same session.
	if expired = r.SweepExpired(testStart.Add(120 * time.Second)); len(expired) != 0 {
		t.Fatalf("second sweep re-fired %v", expired)
	}

	expired = r.SweepExpired(testStart.Add(2 * time.Hour))
	if len(expired) != 1 || expired[0] != "long" {
		t.Fatalf("sweep = %v, want [long]", expired)
	}
}
