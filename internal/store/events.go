package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/andrewm4894/djangalytics/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InsertEvent persists one event row. Events are append-only: nothing in
// this package updates or deletes them.
func InsertEvent(ctx context.Context, db *gorm.DB, row *model.Event) error {
	if db == nil || row == nil {
		return errors.New("no database")
	}
	if row.ProjectID <= 0 {
		return errors.New("event requires a project")
	}
	if len(row.Properties) == 0 {
		row.Properties = datatypes.JSON([]byte("{}"))
	}
	return db.WithContext(ctx).Create(row).Error
}

// EventView is the wire shape of a stored event for feeds and stats.
type EventView struct {
	ID         int64          `json:"id"`
	EventName  string         `json:"event_name"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties"`
	UserID     string         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

// RecentEvents returns up to limit events for the project, newest first.
// Timestamp ties are broken by id descending so the order is deterministic.
func RecentEvents(ctx context.Context, db *gorm.DB, projectID int, limit int) ([]EventView, error) {
	if db == nil || projectID <= 0 {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	var rows []model.Event
	if err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]EventView, 0, len(rows))
	for _, r := range rows {
		out = append(out, viewFromRow(r))
	}
	return out, nil
}

// RecentEventsSince is RecentEvents restricted to timestamp >= since; used
// by the stats feed so all three stats views share one filter.
func RecentEventsSince(ctx context.Context, db *gorm.DB, projectID int, since time.Time, limit int) ([]EventView, error) {
	if db == nil || projectID <= 0 {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	var rows []model.Event
	if err := db.WithContext(ctx).
		Where("project_id = ? AND timestamp >= ?", projectID, since.UTC()).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]EventView, 0, len(rows))
	for _, r := range rows {
		out = append(out, viewFromRow(r))
	}
	return out, nil
}

// EventSample is the minimal projection the aggregator groups over.
type EventSample struct {
	Timestamp time.Time
	EventName string
	Source    string
}

// EventsSince streams the (timestamp, event_name, source) samples for a
// project window; grouping happens in the caller so results are identical
// across SQL dialects.
func EventsSince(ctx context.Context, db *gorm.DB, projectID int, since time.Time) ([]EventSample, error) {
	if db == nil || projectID <= 0 {
		return nil, nil
	}
	var rows []EventSample
	if err := db.WithContext(ctx).
		Model(&model.Event{}).
		Select("timestamp, event_name, source").
		Where("project_id = ? AND timestamp >= ?", projectID, since.UTC()).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func viewFromRow(r model.Event) EventView {
	v := EventView{
		ID:        r.ID,
		EventName: r.EventName,
		Source:    r.Source,
		Timestamp: r.Timestamp,
		UserID:    r.UserID,
		SessionID: r.SessionID,
	}
	if len(r.Properties) > 0 {
		_ = json.Unmarshal(r.Properties, &v.Properties)
	}
	if v.Properties == nil {
		v.Properties = map[string]any{}
	}
	return v
}
