package session

import "time"

// Remaining returns the seconds left on a session clock, clamped to zero.
// It is a pure function of the inputs; remaining time is never stored as
// independently decremented state, so repeated calls with the same arguments
// always agree.
//
// If now precedes startTime (clock skew between collaborators) the elapsed
// time is treated as zero and the full limit is returned.
func Remaining(startTime time.Time, timeLimitSeconds int, now time.Time) int {
	if now.Before(startTime) {
		return timeLimitSeconds
	}
	elapsed := int(now.Sub(startTime).Seconds())
	remaining := timeLimitSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired reports whether the session clock has run out.
func IsExpired(startTime time.Time, timeLimitSeconds int, now time.Time) bool {
	return Remaining(startTime, timeLimitSeconds, now) == 0
}
