package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

var testStart = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, limit int, onTransition TransitionFunc) *Session {
	t.Helper()
	s, err := New(Config{
		ID:               "sess-1",
		StudentID:        "student-1",
		AssessmentID:     42,
		StartTime:        testStart,
		TimeLimitSeconds: limit,
		Policy:           DefaultFlagPolicy(),
		OnTransition:     onTransition,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func violation(sev models.ViolationSeverity) models.Violation {
	return models.Violation{
		ID:        "v-" + string(sev),
		Type:      models.ViolationTabSwitch,
		Severity:  sev,
		Timestamp: testStart.Add(time.Minute),
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing id", cfg: Config{TimeLimitSeconds: 60, StartTime: testStart, Policy: DefaultFlagPolicy()}},
		{name: "zero limit", cfg: Config{ID: "s", TimeLimitSeconds: 0, StartTime: testStart, Policy: DefaultFlagPolicy()}},
		{name: "negative limit", cfg: Config{ID: "s", TimeLimitSeconds: -5, StartTime: testStart, Policy: DefaultFlagPolicy()}},
		{name: "zero start", cfg: Config{ID: "s", TimeLimitSeconds: 60, Policy: DefaultFlagPolicy()}},
		{name: "bad policy", cfg: Config{ID: "s", TimeLimitSeconds: 60, StartTime: testStart, Policy: FlagPolicy{WarningSeverity: "weird", WarningLimit: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected construction error, got nil")
			}
		})
	}
}

func TestSession_NormalCompletion(t *testing.T) {
	var got []Transition
	s := newTestSession(t, 3600, func(tr Transition) { got = append(got, tr) })

	submitAt := testStart.Add(2700 * time.Second)
	if err := s.Submit(submitAt); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	snap := s.Snapshot(submitAt)
	if snap.Status != models.SessionCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if snap.AutoSubmitted {
		t.Error("explicit submit marked as auto-submitted")
	}
	if snap.TimeRemainingSeconds != 900 {
		t.Errorf("time remaining = %d, want 900", snap.TimeRemainingSeconds)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(got))
	}
	if got[0].From != models.SessionActive || got[0].To != models.SessionCompleted {
		t.Errorf("transition %s -> %s, want active -> completed", got[0].From, got[0].To)
	}
}

func TestSession_AutoSubmitOnExpiry(t *testing.T) {
	var got []Transition
	s := newTestSession(t, 1800, func(tr Transition) { got = append(got, tr) })

	// Poll every second from start well past the limit; the expiry must fire
	// exactly once.
	fired := 0
	for sec := 0; sec <= 1810; sec++ {
		if s.Tick(testStart.Add(time.Duration(sec) * time.Second)) {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("expiry fired %d times, want exactly once", fired)
	}

	snap := s.Snapshot(testStart.Add(1810 * time.Second))
	if snap.Status != models.SessionCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if !snap.AutoSubmitted {
		t.Error("expiry completion not marked auto-submitted")
	}
	if snap.TimeRemainingSeconds != 0 {
		t.Errorf("time remaining = %d, want 0", snap.TimeRemainingSeconds)
	}
	if len(got) != 1 || !got[0].AutoSubmitted {
		t.Errorf("expected single auto-submitted transition, got %+v", got)
	}
}

func TestSession_TickSkipsZeroCrossing(t *testing.T) {
	s := newTestSession(t, 100, nil)

	// Coarse polling that never lands on the exact expiry instant.
	if s.Tick(testStart.Add(97 * time.Second)) {
		t.Fatal("fired before expiry")
	}
	if !s.Tick(testStart.Add(103 * time.Second)) {
		t.Fatal("did not fire after skipping the zero-crossing tick")
	}
	if s.Tick(testStart.Add(104 * time.Second)) {
		t.Fatal("fired twice")
	}
}

func TestSession_AppendOnlyLedger(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	severities := []models.ViolationSeverity{
		models.SeverityLow, models.SeverityLow, models.SeverityMedium, models.SeverityHigh,
	}
	for _, sev := range severities {
		if _, err := s.Record(violation(sev)); err != nil {
			t.Fatalf("Record(%s) failed: %v", sev, err)
		}
	}

	history := s.History()
	if len(history) != len(severities) {
		t.Fatalf("history length = %d, want %d", len(history), len(severities))
	}
	for i, v := range history {
		if v.Severity != severities[i] {
			t.Errorf("history[%d].Severity = %s, want %s (arrival order)", i, v.Severity, severities[i])
		}
		if v.Seq != i {
			t.Errorf("history[%d].Seq = %d, want %d", i, v.Seq, i)
		}
	}
}

func TestSession_WarningCountAndAutoFlag(t *testing.T) {
	tests := []struct {
		name         string
		severities   []models.ViolationSeverity
		wantWarnings int
		wantFlagged  bool
	}{
		{name: "single low", severities: []models.ViolationSeverity{models.SeverityLow}, wantWarnings: 0, wantFlagged: false},
		{name: "single medium", severities: []models.ViolationSeverity{models.SeverityMedium}, wantWarnings: 1, wantFlagged: false},
		{name: "two mediums stay unflagged", severities: []models.ViolationSeverity{models.SeverityMedium, models.SeverityMedium}, wantWarnings: 2, wantFlagged: false},
		{name: "three mediums flag", severities: []models.ViolationSeverity{models.SeverityMedium, models.SeverityMedium, models.SeverityMedium}, wantWarnings: 3, wantFlagged: true},
		{name: "single critical flags", severities: []models.ViolationSeverity{models.SeverityCritical}, wantWarnings: 1, wantFlagged: true},
		{name: "medium high critical", severities: []models.ViolationSeverity{models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}, wantWarnings: 3, wantFlagged: true},
		{name: "lows never warn", severities: []models.ViolationSeverity{models.SeverityLow, models.SeverityLow, models.SeverityLow, models.SeverityLow}, wantWarnings: 0, wantFlagged: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, 3600, nil)
			for _, sev := range tt.severities {
				if _, err := s.Record(violation(sev)); err != nil {
					t.Fatalf("Record(%s) failed: %v", sev, err)
				}
			}
			snap := s.Snapshot(testStart)
			if snap.WarningCount != tt.wantWarnings {
				t.Errorf("warning count = %d, want %d", snap.WarningCount, tt.wantWarnings)
			}
			if snap.Flagged != tt.wantFlagged {
				t.Errorf("flagged = %v, want %v", snap.Flagged, tt.wantFlagged)
			}
		})
	}
}

func TestSession_CustomFlagPolicy(t *testing.T) {
	s, err := New(Config{
		ID:               "sess-policy",
		StartTime:        testStart,
		TimeLimitSeconds: 600,
		Policy: FlagPolicy{
			WarningSeverity: models.SeverityHigh,
			WarningLimit:    2,
			FlagOnCritical:  false,
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// Mediums no longer count as warnings, criticals no longer short-circuit.
	s.Record(violation(models.SeverityMedium))
	s.Record(violation(models.SeverityCritical))
	if snap := s.Snapshot(testStart); snap.WarningCount != 1 || snap.Flagged {
		t.Errorf("warnings=%d flagged=%v, want 1 warning and unflagged", snap.WarningCount, snap.Flagged)
	}

	s.Record(violation(models.SeverityHigh))
	if snap := s.Snapshot(testStart); !snap.Flagged {
		t.Error("two high-or-above violations should flag under WarningLimit=2")
	}
}

func TestSession_AutoFlagIsOneDirectional(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	s.Record(violation(models.SeverityCritical))
	if !s.Snapshot(testStart).Flagged {
		t.Fatal("critical violation did not flag")
	}

	// Only an explicit admin command clears the flag; further violations do
	// not re-evaluate it downward.
	if err := s.SetFlag(false, "admin1"); err != nil {
		t.Fatalf("SetFlag() failed: %v", err)
	}
	if _, err := s.Record(violation(models.SeverityLow)); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	snap := s.Snapshot(testStart)
	if snap.Flagged {
		t.Error("low violation re-flagged an admin-cleared session without crossing thresholds")
	}
	if snap.FlaggedBy != "admin1" {
		t.Errorf("flagged_by = %q, want admin1", snap.FlaggedBy)
	}
}

func TestSession_TerminateRequiresActorAndReason(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	if err := s.Terminate("", "cheating", testStart); err != ErrInvalidCommand {
		t.Errorf("missing actor: err = %v, want ErrInvalidCommand", err)
	}
	if err := s.Terminate("admin1", "", testStart); err != ErrInvalidCommand {
		t.Errorf("missing reason: err = %v, want ErrInvalidCommand", err)
	}
	// The rejected commands must not have touched the state.
	if got := s.Snapshot(testStart).Status; got != models.SessionActive {
		t.Errorf("status = %s after rejected commands, want active", got)
	}

	if err := s.Terminate("admin1", "cheating confirmed", testStart.Add(time.Minute)); err != nil {
		t.Fatalf("Terminate() failed: %v", err)
	}
	if got := s.Snapshot(testStart).Status; got != models.SessionTerminated {
		t.Errorf("status = %s, want terminated", got)
	}
}

func TestSession_AdminTerminationAfterViolations(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	for _, sev := range []models.ViolationSeverity{models.SeverityMedium, models.SeverityHigh, models.SeverityCritical} {
		if _, err := s.Record(violation(sev)); err != nil {
			t.Fatalf("Record(%s) failed: %v", sev, err)
		}
	}
	if err := s.Terminate("admin1", "cheating confirmed", testStart.Add(10*time.Minute)); err != nil {
		t.Fatalf("Terminate() failed: %v", err)
	}

	snap := s.Snapshot(testStart.Add(10 * time.Minute))
	if snap.Status != models.SessionTerminated {
		t.Errorf("status = %s, want terminated", snap.Status)
	}
	if snap.WarningCount != 3 {
		t.Errorf("warning count = %d, want 3", snap.WarningCount)
	}
	if !snap.Flagged {
		t.Error("session with a critical violation should be flagged")
	}

	// A violation after termination is dropped.
	if _, err := s.Record(violation(models.SeverityHigh)); err != ErrSessionTerminal {
		t.Errorf("post-terminal Record() err = %v, want ErrSessionTerminal", err)
	}
	if got := len(s.History()); got != 3 {
		t.Errorf("history length = %d after dropped violation, want 3", got)
	}
}

func TestSession_TerminalImmutability(t *testing.T) {
	s := newTestSession(t, 3600, nil)
	if err := s.Submit(testStart.Add(time.Minute)); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	before := s.Snapshot(testStart.Add(time.Minute))

	if err := s.Submit(testStart.Add(2 * time.Minute)); err != ErrAlreadyTerminal {
		t.Errorf("second Submit() err = %v, want ErrAlreadyTerminal", err)
	}
	if err := s.Terminate("admin1", "reason", testStart.Add(2*time.Minute)); err != ErrAlreadyTerminal {
		t.Errorf("Terminate() after submit err = %v, want ErrAlreadyTerminal", err)
	}
	if _, err := s.Record(violation(models.SeverityCritical)); err != ErrSessionTerminal {
		t.Errorf("Record() after submit err = %v, want ErrSessionTerminal", err)
	}
	if err := s.SetProgress(99); err != ErrAlreadyTerminal {
		t.Errorf("SetProgress() after submit err = %v, want ErrAlreadyTerminal", err)
	}
	if s.Tick(testStart.Add(2 * time.Hour)) {
		t.Error("expiry fired on a completed session")
	}

	after := s.Snapshot(testStart.Add(time.Minute))
	if after.Status != before.Status || len(after.Violations) != len(before.Violations) ||
		after.Flagged != before.Flagged || after.Progress != before.Progress {
		t.Error("terminal session state changed after rejected mutations")
	}
}

func TestSession_ExpiryTerminateRace(t *testing.T) {
	// Expiry and admin termination race; exactly one terminal transition may
	// commit, first writer wins, the loser is a silent no-op.
	for i := 0; i < 50; i++ {
		var mu sync.Mutex
		var transitions []Transition
		s := newTestSession(t, 60, func(tr Transition) {
			mu.Lock()
			transitions = append(transitions, tr)
			mu.Unlock()
		})

		after := testStart.Add(61 * time.Second)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Tick(after)
		}()
		go func() {
			defer wg.Done()
			err := s.Terminate("admin1", "cheating", after)
			if err != nil && err != ErrAlreadyTerminal {
				t.Errorf("Terminate() err = %v", err)
			}
		}()
		wg.Wait()

		if len(transitions) != 1 {
			t.Fatalf("committed %d transitions, want exactly 1", len(transitions))
		}
		status := s.Snapshot(after).Status
		if transitions[0].To != status {
			t.Errorf("transition says %s but session is %s", transitions[0].To, status)
		}
		if !status.IsTerminal() {
			t.Errorf("session not terminal after race, status = %s", status)
		}
	}
}

func TestSession_ConcurrentRecordNoLostUpdates(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Record(violation(models.SeverityLow))
			}
		}()
	}
	wg.Wait()

	history := s.History()
	if len(history) != writers*perWriter {
		t.Fatalf("recorded %d violations, want %d", len(history), writers*perWriter)
	}
	for i, v := range history {
		if v.Seq != i {
			t.Fatalf("history[%d].Seq = %d, sequence has gaps", i, v.Seq)
		}
	}
}

func TestSession_RecordReturnsOwnEntry(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	// Each writer must get back the entry it recorded, with its seq assigned,
	// no matter how recordings interleave. Reading the ledger tail instead
	// would attribute a racing writer's entry to this one.
	const writers = 32
	results := make([]models.Violation, writers)
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			v := violation(models.SeverityLow)
			v.ID = fmt.Sprintf("viol-%d", w)
			recorded, err := s.Record(v)
			if err != nil {
				t.Errorf("Record() failed: %v", err)
				return
			}
			results[w] = recorded
		}(w)
	}
	wg.Wait()

	seqs := make(map[int]bool, writers)
	for w, recorded := range results {
		if want := fmt.Sprintf("viol-%d", w); recorded.ID != want {
			t.Errorf("writer %d got back entry %s, want its own %s", w, recorded.ID, want)
		}
		if seqs[recorded.Seq] {
			t.Errorf("seq %d returned to more than one writer", recorded.Seq)
		}
		seqs[recorded.Seq] = true
	}
}

func TestSession_SnapshotTimeWarning(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	if s.Snapshot(testStart.Add(1 * time.Hour / 2)).TimeWarning {
		t.Error("time warning raised with 30 minutes left")
	}
	if !s.Snapshot(testStart.Add(3350 * time.Second)).TimeWarning {
		t.Error("no time warning with under five minutes left")
	}
}

func TestSession_FlagToggleAfterTerminal(t *testing.T) {
	s := newTestSession(t, 3600, nil)
	if err := s.Terminate("admin1", "cheating", testStart.Add(time.Minute)); err != nil {
		t.Fatalf("Terminate() failed: %v", err)
	}

	// Flag toggling is the one mutation allowed post-terminal for audit.
	if err := s.SetFlag(true, "auditor"); err != nil {
		t.Fatalf("SetFlag() on terminated session failed: %v", err)
	}
	if !s.Snapshot(testStart).Flagged {
		t.Error("flag not set on terminated session")
	}
	if err := s.SetFlag(false, "auditor"); err != nil {
		t.Fatalf("unflag on terminated session failed: %v", err)
	}
	if s.Snapshot(testStart).Flagged {
		t.Error("flag not cleared on terminated session")
	}
	if err := s.SetFlag(true, ""); err != ErrInvalidCommand {
		t.Errorf("SetFlag without actor err = %v, want ErrInvalidCommand", err)
	}
}

func TestSession_ProgressClamping(t *testing.T) {
	s := newTestSession(t, 3600, nil)

	s.SetProgress(150)
	if got := s.Snapshot(testStart).Progress; got != 100 {
		t.Errorf("progress = %d, want clamped to 100", got)
	}
	s.SetProgress(-10)
	if got := s.Snapshot(testStart).Progress; got != 0 {
		t.Errorf("progress = %d, want clamped to 0", got)
	}
}
