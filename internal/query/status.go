package query

import (
	"context"
	"time"

	"github.com/andrewm4894/djangalytics/internal/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	SystemStatusRunning   = "running"
	SystemStatusException = "exception"
)

// StatusHandler reports whether the service can reach its database, plus a
// coarse project count for dashboards. Always 200; trouble shows up in the
// status field.
func StatusHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			respondOK(c, gin.H{
				"status":  SystemStatusException,
				"message": "database not configured",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		var projects int64
		if err := db.WithContext(ctx).Model(&model.Project{}).Where("is_active = ?", true).Count(&projects).Error; err != nil {
			respondOK(c, gin.H{
				"status":  SystemStatusException,
				"message": "database unavailable",
			})
			return
		}
		respondOK(c, gin.H{
			"status":          SystemStatusRunning,
			"active_projects": projects,
		})
	}
}
