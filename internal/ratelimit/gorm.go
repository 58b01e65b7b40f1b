package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/andrewm4894/djangalytics/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLimiter keeps the counters in the ip_rate_limits and
// project_rate_limits tables. The unique (key, minute_bucket) index plus an
// insert-on-conflict and an atomic UPDATE give exactly-once counting under
// concurrent writers; old buckets are harmless and reaped by the cleanup
// worker.
type GormLimiter struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormLimiter(db *gorm.DB) *GormLimiter {
	return &GormLimiter{db: db, now: time.Now}
}

// NewGormLimiterAt pins the limiter clock so callers can place requests in a
// known minute bucket. Tests only.
func NewGormLimiterAt(db *gorm.DB, now func() time.Time) *GormLimiter {
	if now == nil {
		now = time.Now
	}
	return &GormLimiter{db: db, now: now}
}

func (l *GormLimiter) CheckAndIncrement(ctx context.Context, scope Scope, key string, limit int64) (Result, error) {
	if l == nil || l.db == nil {
		return Result{}, fmt.Errorf("ratelimit: no database")
	}
	bucket := MinuteBucket(l.now())

	switch scope {
	case ScopeIP:
		return l.incrementIP(ctx, key, bucket, limit)
	case ScopeProject:
		projectID, err := strconv.Atoi(key)
		if err != nil || projectID <= 0 {
			return Result{}, fmt.Errorf("ratelimit: invalid project key %q", key)
		}
		return l.incrementProject(ctx, projectID, bucket, limit)
	default:
		return Result{}, fmt.Errorf("ratelimit: unknown scope %q", scope)
	}
}

func (l *GormLimiter) incrementIP(ctx context.Context, ip string, bucket time.Time, limit int64) (Result, error) {
	row := model.IPRateLimit{IPAddress: ip, MinuteBucket: bucket, RequestCount: 1}
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return Result{}, res.Error
	}
	if res.RowsAffected > 0 {
		// First request in this window; our insert carried count=1.
		return Result{Allowed: limit >= 1, Count: 1, Limit: limit}, nil
	}

	if err := l.db.WithContext(ctx).Model(&model.IPRateLimit{}).
		Where("ip_address = ? AND minute_bucket = ?", ip, bucket).
		UpdateColumn("request_count", gorm.Expr("request_count + 1")).Error; err != nil {
		return Result{}, err
	}
	var after model.IPRateLimit
	if err := l.db.WithContext(ctx).
		Where("ip_address = ? AND minute_bucket = ?", ip, bucket).
		First(&after).Error; err != nil {
		return Result{}, err
	}
	return Result{Allowed: after.RequestCount <= limit, Count: after.RequestCount, Limit: limit}, nil
}

func (l *GormLimiter) incrementProject(ctx context.Context, projectID int, bucket time.Time, limit int64) (Result, error) {
	row := model.ProjectRateLimit{ProjectID: projectID, MinuteBucket: bucket, RequestCount: 1}
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return Result{}, res.Error
	}
	if res.RowsAffected > 0 {
		return Result{Allowed: limit >= 1, Count: 1, Limit: limit}, nil
	}

	if err := l.db.WithContext(ctx).Model(&model.ProjectRateLimit{}).
		Where("project_id = ? AND minute_bucket = ?", projectID, bucket).
		UpdateColumn("request_count", gorm.Expr("request_count + 1")).Error; err != nil {
		return Result{}, err
	}
	var after model.ProjectRateLimit
	if err := l.db.WithContext(ctx).
		Where("project_id = ? AND minute_bucket = ?", projectID, bucket).
		First(&after).Error; err != nil {
		return Result{}, err
	}
	return Result{Allowed: after.RequestCount <= limit, Count: after.RequestCount, Limit: limit}, nil
}

// DeleteBucketsBefore reaps rate-limit rows whose minute bucket is older
// than cutoff. Correctness never depends on this running.
func DeleteBucketsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (ipDeleted, projectDeleted int64, err error) {
	res := db.WithContext(ctx).Where("minute_bucket < ?", cutoff.UTC()).Delete(&model.IPRateLimit{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	ipDeleted = res.RowsAffected

	res = db.WithContext(ctx).Where("minute_bucket < ?", cutoff.UTC()).Delete(&model.ProjectRateLimit{})
	if res.Error != nil {
		return ipDeleted, 0, res.Error
	}
	return ipDeleted, res.RowsAffected, nil
}
