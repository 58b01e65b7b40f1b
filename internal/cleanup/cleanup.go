package cleanup

import (
	"context"
	"log"
	"time"

	"github.com/andrewm4894/djangalytics/internal/ratelimit"
	"gorm.io/gorm"
)

// Worker reaps expired rate-limit minute buckets on a fixed interval. The
// limiter never reads old buckets, so this is purely about table growth;
// a missed run costs nothing but disk.
type Worker struct {
	DB        *gorm.DB
	Interval  time.Duration
	Retention time.Duration

	// Now overrides the clock in tests; nil means time.Now.
	Now func() time.Time
}

func (w *Worker) clock() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// Run loops until ctx is cancelled, sweeping once at startup and then every
// Interval.
func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	w.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ipDeleted, projectDeleted, err := w.RunOnce(sweepCtx)
	if err != nil {
		log.Printf("ratelimit cleanup: %v", err)
		return
	}
	if ipDeleted > 0 || projectDeleted > 0 {
		log.Printf("ratelimit cleanup: reaped %d ip buckets, %d project buckets", ipDeleted, projectDeleted)
	}
}

// RunOnce deletes buckets older than Retention and reports how many went.
func (w *Worker) RunOnce(ctx context.Context) (ipDeleted, projectDeleted int64, err error) {
	retention := w.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	cutoff := w.clock().Add(-retention)
	return ratelimit.DeleteBucketsBefore(ctx, w.DB, cutoff)
}
