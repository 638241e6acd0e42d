package session

import (
	"testing"
	"time"
)

func TestRemaining(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		limit int
		now   time.Time
		want  int
	}{
		{name: "at start", limit: 3600, now: start, want: 3600},
		{name: "mid exam", limit: 3600, now: start.Add(2700 * time.Second), want: 900},
		{name: "exact expiry", limit: 1800, now: start.Add(1800 * time.Second), want: 0},
		{name: "past expiry clamps to zero", limit: 1800, now: start.Add(2 * time.Hour), want: 0},
		{name: "clock skew clamps to full limit", limit: 600, now: start.Add(-30 * time.Second), want: 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remaining(start, tt.limit, tt.now)
			if got != tt.want {
				t.Errorf("Remaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemaining_Idempotent(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := start.Add(1234 * time.Second)

	first := Remaining(start, 3600, now)
	for i := 0; i < 100; i++ {
		if got := Remaining(start, 3600, now); got != first {
			t.Fatalf("call %d returned %d, first call returned %d", i, got, first)
		}
	}
}

func TestRemaining_MonotonicNonIncrease(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	prev := Remaining(start, 3600, start)
	for sec := 1; sec <= 3700; sec += 7 {
		now := start.Add(time.Duration(sec) * time.Second)
		got := Remaining(start, 3600, now)
		if got > prev {
			t.Fatalf("remaining increased from %d to %d at t+%ds", prev, got, sec)
		}
		prev = got
	}
}

func TestIsExpired(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if IsExpired(start, 1800, start.Add(1799*time.Second)) {
		t.Error("expired one second early")
	}
	if !IsExpired(start, 1800, start.Add(1800*time.Second)) {
		t.Error("not expired at the limit")
	}
	if !IsExpired(start, 1800, start.Add(5000*time.Second)) {
		t.Error("not expired past the limit")
	}
	if IsExpired(start, 1800, start.Add(-10*time.Second)) {
		t.Error("expired under clock skew")
	}
}
