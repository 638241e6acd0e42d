package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// BatchInvalidate invalidates multiple patterns in batch
func BatchInvalidate(ctx context.Context, helper *CacheHelper, patterns []string) error {
	var lastErr error
	for _, pattern := range patterns {
		if err := helper.InvalidatePattern(ctx, pattern); err != nil {
			lastErr = err
			slog.ErrorContext(ctx, "Failed to invalidate pattern in batch",
				"error", err,
				"pattern", pattern)
		}
	}
	return lastErr
}

// InvalidateSessionCache invalidates all caches touching one session
func InvalidateSessionCache(ctx context.Context, cm *CacheManager, sessionID, studentID string) {
	// Delete specific keys using single call
	SafeDelete(ctx, cm.Session,
		fmt.Sprintf("id:%s", sessionID),
		fmt.Sprintf("details:%s", sessionID))
	SafeDelete(ctx, cm.Fast, fmt.Sprintf("id:%s", sessionID))

	// Invalidate patterns
	SafeInvalidatePattern(ctx, cm.Session, fmt.Sprintf("student:%s:*", studentID))
	SafeInvalidatePattern(ctx, cm.Session, "list:*")
	SafeInvalidatePattern(ctx, cm.Violation, fmt.Sprintf("session:%s:*", sessionID))
	SafeInvalidatePattern(ctx, cm.Stats, "overview*")
}
