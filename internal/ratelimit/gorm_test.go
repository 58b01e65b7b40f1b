package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andrewm4894/djangalytics/internal/model"
	"github.com/andrewm4894/djangalytics/internal/testkit"
)

func TestMinuteBucket(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 7, 14, 30, 45, 123456000, time.UTC)
	want := time.Date(2025, 9, 7, 14, 30, 0, 0, time.UTC)
	if got := MinuteBucket(now); !got.Equal(want) {
		t.Fatalf("MinuteBucket = %v, want %v", got, want)
	}
}

func TestGormLimiter_FirstRequest(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	l := NewGormLimiter(db)
	ctx := context.Background()

	res, err := l.CheckAndIncrement(ctx, ScopeIP, "127.0.0.1", 5)
	if err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}
	if !res.Allowed || res.Count != 1 || res.Limit != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var n int64
	if err := db.Model(&model.IPRateLimit{}).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("expected 1 bucket row, n=%d err=%v", n, err)
	}
}

func TestGormLimiter_ExceededStillCounts(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	l := NewGormLimiter(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.CheckAndIncrement(ctx, ScopeIP, "10.0.0.1", 3)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !res.Allowed || res.Count != int64(i) {
			t.Fatalf("call %d: %+v", i, res)
		}
	}

	// Fourth call is rejected but the increment sticks.
	res, err := l.CheckAndIncrement(ctx, ScopeIP, "10.0.0.1", 3)
	if err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}
	if res.Allowed || res.Count != 4 {
		t.Fatalf("expected rejected with count=4, got %+v", res)
	}

	var row model.IPRateLimit
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if row.RequestCount != 4 {
		t.Fatalf("expected counter=4, got %d", row.RequestCount)
	}
}

func TestGormLimiter_WindowResetsOnNewMinute(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	l := NewGormLimiter(db)
	ctx := context.Background()

	minute1 := time.Date(2025, 9, 7, 14, 30, 10, 0, time.UTC)
	l.now = func() time.Time { return minute1 }

	for i := 0; i < 3; i++ {
		if _, err := l.CheckAndIncrement(ctx, ScopeProject, "1", 3); err != nil {
			t.Fatalf("CheckAndIncrement: %v", err)
		}
	}
	res, err := l.CheckAndIncrement(ctx, ScopeProject, "1", 3)
	if err != nil || res.Allowed {
		t.Fatalf("expected limit hit, res=%+v err=%v", res, err)
	}

	// Advance past the minute boundary: a fresh bucket, request allowed.
	l.now = func() time.Time { return minute1.Add(time.Minute) }
	res, err = l.CheckAndIncrement(ctx, ScopeProject, "1", 3)
	if err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}
	if !res.Allowed || res.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", res)
	}

	var n int64
	if err := db.Model(&model.ProjectRateLimit{}).Count(&n).Error; err != nil || n != 2 {
		t.Fatalf("expected 2 bucket rows, n=%d err=%v", n, err)
	}
}

func TestGormLimiter_IndependentKeys(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	l := NewGormLimiter(db)
	ctx := context.Background()

	r1, err := l.CheckAndIncrement(ctx, ScopeIP, "1.1.1.1", 2)
	if err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}
	r2, err := l.CheckAndIncrement(ctx, ScopeIP, "2.2.2.2", 2)
	if err != nil {
		t.Fatalf("CheckAndIncrement: %v", err)
	}
	if r1.Count != 1 || r2.Count != 1 {
		t.Fatalf("keys should not share counters: %+v %+v", r1, r2)
	}
}

func TestGormLimiter_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	l := NewGormLimiter(db)
	ctx := context.Background()

	const callers = 50
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.CheckAndIncrement(ctx, ScopeProject, "7", 1000); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CheckAndIncrement: %v", err)
	}

	var row model.ProjectRateLimit
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if row.RequestCount != callers {
		t.Fatalf("lost updates: counter=%d, want %d", row.RequestCount, callers)
	}
}

func TestGormLimiter_InvalidProjectKey(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	l := NewGormLimiter(db)

	if _, err := l.CheckAndIncrement(context.Background(), ScopeProject, "abc", 10); err == nil {
		t.Fatalf("expected error for non-numeric project key")
	}
}

func TestDeleteBucketsBefore(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 9, 7, 14, 30, 0, 0, time.UTC)

	rows := []any{
		&model.IPRateLimit{IPAddress: "1.1.1.1", MinuteBucket: old, RequestCount: 5},
		&model.IPRateLimit{IPAddress: "1.1.1.1", MinuteBucket: recent, RequestCount: 2},
		&model.ProjectRateLimit{ProjectID: 1, MinuteBucket: old, RequestCount: 9},
		&model.ProjectRateLimit{ProjectID: 1, MinuteBucket: recent, RequestCount: 1},
	}
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	ipDel, projDel, err := DeleteBucketsBefore(ctx, db, recent.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteBucketsBefore: %v", err)
	}
	if ipDel != 1 || projDel != 1 {
		t.Fatalf("deleted ip=%d proj=%d, want 1/1", ipDel, projDel)
	}

	var n int64
	if err := db.Model(&model.IPRateLimit{}).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("remaining ip rows=%d err=%v", n, err)
	}
	var row model.IPRateLimit
	if err := db.First(&row).Error; err != nil || !row.MinuteBucket.Equal(recent) {
		t.Fatalf("wrong row survived: %+v err=%v", row, err)
	}
}
