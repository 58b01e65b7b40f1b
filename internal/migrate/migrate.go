package migrate

import (
	"context"

	"github.com/andrewm4894/djangalytics/internal/model"
	"gorm.io/gorm"
)

func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	gdb := db.WithContext(ctx)
	if err := gdb.AutoMigrate(
		&model.Project{},
		&model.Event{},
		&model.IPRateLimit{},
		&model.ProjectRateLimit{},
	); err != nil {
		return err
	}

	// Composite index serving the source breakdown query.
	if err := gdb.Exec(`CREATE INDEX IF NOT EXISTS idx_events_source_name ON events (source, event_name)`).Error; err != nil {
		return err
	}

	return nil
}
