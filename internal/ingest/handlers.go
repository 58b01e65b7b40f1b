package ingest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type captureRequest struct {
	APIKey     string         `json:"api_key"`
	EventName  string         `json:"event_name"`
	Source     string         `json:"source"`
	Timestamp  string         `json:"timestamp"`
	Properties map[string]any `json:"properties"`
}

// CaptureHandler exposes the pipeline as POST /api/events. The client IP
// and user-agent are taken from the transport, never from the body.
func CaptureHandler(p *Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req captureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "err": "invalid JSON body"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := p.Capture(ctx, CaptureInput{
			APIKey:     req.APIKey,
			EventName:  req.EventName,
			Source:     req.Source,
			Timestamp:  req.Timestamp,
			Properties: req.Properties,
			UserAgent:  c.GetHeader("User-Agent"),
			IPAddress:  c.ClientIP(),
		})
		if err != nil {
			respondCaptureErr(c, p.clock(), err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":              res.EventID,
			"event_name":      res.EventName,
			"source":          res.Source,
			"timestamp":       res.Timestamp.UTC().Format(time.RFC3339Nano),
			"user_id":         res.UserID,
			"session_id":      res.SessionID,
			"ip_address":      res.IPAddress,
			"user_agent":      res.UserAgent,
			"rate_limit_info": res.RateLimit,
			"message":         "Event captured successfully",
		})
	}
}

func respondCaptureErr(c *gin.Context, now time.Time, err error) {
	var (
		vErr  *ValidationError
		rlErr *RateLimitError
		srErr *SourceRejectedError
	)
	switch {
	case errors.Is(err, ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "err": ErrAuth.Error()})
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "err": vErr.Error(), "field": vErr.Field})
	case errors.As(err, &rlErr):
		c.Header("Retry-After", strconv.Itoa(secondsToNextMinute(now)))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":  http.StatusTooManyRequests,
			"err":   rlErr.Error(),
			"scope": string(rlErr.Scope),
			"count": rlErr.Result.Count,
			"limit": rlErr.Result.Limit,
		})
	case errors.As(err, &srErr):
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "err": srErr.Error(), "source": srErr.Source})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "err": err.Error()})
	}
}

// secondsToNextMinute tells a throttled client when the window turns over.
func secondsToNextMinute(now time.Time) int {
	next := now.UTC().Truncate(time.Minute).Add(time.Minute)
	secs := int(next.Sub(now.UTC()).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
