package ratelimit

import (
	"context"
	"time"
)

// Scope is one of the two independent quota dimensions. Every capture
// request must pass both the IP scope and the project scope.
type Scope string

const (
	ScopeIP      Scope = "ip"
	ScopeProject Scope = "project"
)

// Result reports the post-increment counter for the current minute bucket.
// The increment happens whether or not the request is allowed, so a retry
// storm keeps counting against the window instead of resetting it.
type Result struct {
	Allowed bool  `json:"allowed"`
	Count   int64 `json:"count"`
	Limit   int64 `json:"limit"`
}

// Limiter enforces fixed-window minute-bucketed quotas. Implementations
// must increment atomically: two concurrent calls for the same (scope, key,
// minute) are both counted, with no lost updates.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, scope Scope, key string, limit int64) (Result, error)
}

// MinuteBucket truncates now to the minute, the window key shared by both
// backends.
func MinuteBucket(now time.Time) time.Time {
	return now.UTC().Truncate(time.Minute)
}
