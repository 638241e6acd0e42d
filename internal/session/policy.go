package session

import (
	"fmt"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// FlagPolicy controls when a session is automatically flagged for review.
// The thresholds are deployment configuration, not product truth: the
// defaults mirror the platform's observed behavior (flag at three warnings
// or any critical violation) but proctoring policy owners may tune them.
type FlagPolicy struct {
	// WarningSeverity is the minimum severity counted as a warning.
	WarningSeverity models.ViolationSeverity
	// WarningLimit is the warning count at which the session is auto-flagged.
	WarningLimit int
	// FlagOnCritical flags the session on any critical violation regardless
	// of the warning count.
	FlagOnCritical bool
}

// DefaultFlagPolicy returns the platform default thresholds.
func DefaultFlagPolicy() FlagPolicy {
	return FlagPolicy{
		WarningSeverity: models.SeverityMedium,
		WarningLimit:    3,
		FlagOnCritical:  true,
	}
}

// Validate checks the policy at construction time so session code never has
// to guard against a half-configured policy.
func (p FlagPolicy) Validate() error {
	if !p.WarningSeverity.Valid() {
		return fmt.Errorf("invalid warning severity %q", p.WarningSeverity)
	}
	if p.WarningLimit < 1 {
		return fmt.Errorf("warning limit must be positive, got %d", p.WarningLimit)
	}
	return nil
}
