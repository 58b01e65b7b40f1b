package ingest

import (
	"errors"
	"fmt"

	"github.com/andrewm4894/djangalytics/internal/ratelimit"
)

// ErrAuth covers a missing or unknown api_key and inactive projects; the
// caller cannot tell which, by design.
var ErrAuth = errors.New("invalid or inactive API key")

// ValidationError rejects a request before any rate-limit counter moves.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError reports which scope ran out. The triggering request was
// still counted against the window.
type RateLimitError struct {
	Scope  ratelimit.Scope
	Result ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (%d/%d this minute)", e.Scope, e.Result.Count, e.Result.Limit)
}

// SourceRejectedError is raised after both rate-limit counters already
// incremented; the quota cost of a rejected source sticks.
type SourceRejectedError struct {
	Source  string
	Allowed []string
}

func (e *SourceRejectedError) Error() string {
	return fmt.Sprintf("source %q not in project allow-list %v", e.Source, e.Allowed)
}
