package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andrewm4894/djangalytics/internal/store"
	"gorm.io/gorm"
)

// Enumerated lookback windows and grouping granularities. Arbitrary values
// are rejected rather than clamped, so a typo'd dashboard query fails loud.
var (
	windows = map[string]time.Duration{
		"1h":  time.Hour,
		"6h":  6 * time.Hour,
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
	}
	frequencies = map[string]time.Duration{
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"1d":  24 * time.Hour,
	}
)

const (
	defaultWindow    = "24h"
	defaultFrequency = "5m"
	recentFeedLimit  = 50
)

func ParseWindow(s string) (time.Duration, error) {
	if s == "" {
		s = defaultWindow
	}
	d, ok := windows[s]
	if !ok {
		return 0, fmt.Errorf("unknown time_window %q", s)
	}
	return d, nil
}

func ParseFrequency(s string) (time.Duration, error) {
	if s == "" {
		s = defaultFrequency
	}
	d, ok := frequencies[s]
	if !ok {
		return 0, fmt.Errorf("unknown freq %q", s)
	}
	return d, nil
}

type BucketCount struct {
	Bucket    time.Time `json:"bucket"`
	EventName string    `json:"event_name"`
	Count     int64     `json:"count"`
}

type EventNameCount struct {
	EventName string `json:"event_name"`
	Count     int64  `json:"count"`
}

type SourceCount struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

type Stats struct {
	BucketedCounts  []BucketCount     `json:"bucketed_counts"`
	EventNameTotals []EventNameCount  `json:"event_name_totals"`
	SourceCounts    []SourceCount     `json:"source_counts"`
	RecentEvents    []store.EventView `json:"recent_events"`
	TotalEvents     int64             `json:"total_events"`
}

// ComputeStats aggregates a project's events over the window ending at now.
// The SQL side only filters on the (project_id, timestamp) index; bucket
// truncation and grouping happen here so results are identical on every
// dialect. All sub-views share the one filter but not a transaction:
// an event ingested mid-call may appear in some views and not others, which
// the re-polling dashboard tolerates.
func ComputeStats(ctx context.Context, db *gorm.DB, projectID int, window, freq time.Duration, now time.Time) (Stats, error) {
	since := now.UTC().Add(-window)

	samples, err := store.EventsSince(ctx, db, projectID, since)
	if err != nil {
		return Stats{}, err
	}

	bucketed := map[time.Time]map[string]int64{}
	nameTotals := map[string]int64{}
	sourceTotals := map[string]int64{}
	for _, s := range samples {
		b := s.Timestamp.UTC().Truncate(freq)
		m, ok := bucketed[b]
		if !ok {
			m = map[string]int64{}
			bucketed[b] = m
		}
		m[s.EventName]++
		nameTotals[s.EventName]++
		sourceTotals[s.Source]++
	}

	out := Stats{
		BucketedCounts:  make([]BucketCount, 0, len(bucketed)),
		EventNameTotals: make([]EventNameCount, 0, len(nameTotals)),
		SourceCounts:    make([]SourceCount, 0, len(sourceTotals)),
		TotalEvents:     int64(len(samples)),
	}

	for b, names := range bucketed {
		for name, n := range names {
			out.BucketedCounts = append(out.BucketedCounts, BucketCount{Bucket: b, EventName: name, Count: n})
		}
	}
	sort.Slice(out.BucketedCounts, func(i, j int) bool {
		if !out.BucketedCounts[i].Bucket.Equal(out.BucketedCounts[j].Bucket) {
			return out.BucketedCounts[i].Bucket.Before(out.BucketedCounts[j].Bucket)
		}
		return out.BucketedCounts[i].EventName < out.BucketedCounts[j].EventName
	})

	for name, n := range nameTotals {
		out.EventNameTotals = append(out.EventNameTotals, EventNameCount{EventName: name, Count: n})
	}
	sort.Slice(out.EventNameTotals, func(i, j int) bool {
		if out.EventNameTotals[i].Count != out.EventNameTotals[j].Count {
			return out.EventNameTotals[i].Count > out.EventNameTotals[j].Count
		}
		return out.EventNameTotals[i].EventName < out.EventNameTotals[j].EventName
	})

	for src, n := range sourceTotals {
		out.SourceCounts = append(out.SourceCounts, SourceCount{Source: src, Count: n})
	}
	sort.Slice(out.SourceCounts, func(i, j int) bool {
		if out.SourceCounts[i].Count != out.SourceCounts[j].Count {
			return out.SourceCounts[i].Count > out.SourceCounts[j].Count
		}
		return out.SourceCounts[i].Source < out.SourceCounts[j].Source
	})

	recent, err := store.RecentEventsSince(ctx, db, projectID, since, recentFeedLimit)
	if err != nil {
		return Stats{}, err
	}
	out.RecentEvents = recent

	return out, nil
}
