package query

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/andrewm4894/djangalytics/internal/model"
	"github.com/andrewm4894/djangalytics/internal/registry"
	"github.com/andrewm4894/djangalytics/internal/store"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const maxRecentLimit = 50

// Handlers serves the read side: aggregate stats and the recent-event feed.
// Both endpoints authenticate with the same api_key query parameter the
// capture endpoint accepts in its body.
type Handlers struct {
	DB       *gorm.DB
	Registry *registry.Registry

	// Now overrides the clock in tests; nil means time.Now.
	Now func() time.Time
}

func (h *Handlers) clock() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// Stats handles GET /api/stats.
func (h *Handlers) Stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	project, ok := h.resolveProject(ctx, c)
	if !ok {
		return
	}

	window, err := ParseWindow(c.Query("time_window"))
	if err != nil {
		respondErr(c, http.StatusBadRequest, err.Error())
		return
	}
	freq, err := ParseFrequency(c.Query("freq"))
	if err != nil {
		respondErr(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := ComputeStats(ctx, h.DB, project.ID, window, freq, h.clock())
	if err != nil {
		respondErr(c, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	respondOK(c, stats)
}

// RecentEvents handles GET /api/events/recent.
func (h *Handlers) RecentEvents(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	project, ok := h.resolveProject(ctx, c)
	if !ok {
		return
	}

	limit := maxRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondErr(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	events, err := store.RecentEvents(ctx, h.DB, project.ID, limit)
	if err != nil {
		respondErr(c, http.StatusServiceUnavailable, "events unavailable")
		return
	}
	respondOK(c, gin.H{
		"project": project.Slug,
		"count":   len(events),
		"events":  events,
	})
}

func (h *Handlers) resolveProject(ctx context.Context, c *gin.Context) (model.Project, bool) {
	project, err := h.Registry.Resolve(ctx, c.Query("api_key"))
	if errors.Is(err, registry.ErrNotFound) {
		respondErr(c, http.StatusUnauthorized, "invalid or inactive API key")
		return model.Project{}, false
	}
	if err != nil {
		respondErr(c, http.StatusServiceUnavailable, "project lookup unavailable")
		return model.Project{}, false
	}
	return project, true
}
