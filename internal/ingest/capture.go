package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andrewm4894/djangalytics/internal/enrich"
	"github.com/andrewm4894/djangalytics/internal/identity"
	"github.com/andrewm4894/djangalytics/internal/model"
	"github.com/andrewm4894/djangalytics/internal/queue"
	"github.com/andrewm4894/djangalytics/internal/ratelimit"
	"github.com/andrewm4894/djangalytics/internal/registry"
	"github.com/andrewm4894/djangalytics/internal/store"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxEventNameLen = 100
	maxSourceLen    = 50
	defaultSource   = "web"
)

// Pipeline orchestrates one capture: authenticate, rate-limit both scopes,
// validate the source, persist, then fan out. The IP check runs before the
// project check so an already-throttled caller costs no project quota.
type Pipeline struct {
	DB            *gorm.DB
	Registry      *registry.Registry
	Limiter       ratelimit.Limiter
	Publisher     queue.Publisher
	GeoIP         *enrich.GeoIP
	IPLimit       int64
	FirehoseTopic string

	// Now overrides the clock in tests; nil means time.Now.
	Now func() time.Time
}

type CaptureInput struct {
	APIKey     string
	EventName  string
	Source     string
	Timestamp  string
	Properties map[string]any
	UserAgent  string
	IPAddress  string
}

type RateLimitInfo struct {
	IP      ratelimit.Result `json:"ip"`
	Project ratelimit.Result `json:"project"`
}

type CaptureResult struct {
	EventID   int64
	EventName string
	Source    string
	Timestamp time.Time
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
	RateLimit RateLimitInfo
}

// Capture runs the full ingestion pipeline for one event. On any error no
// event row is written; rate-limit increments from steps already taken are
// deliberately kept (a rejected request still spends quota).
func (p *Pipeline) Capture(ctx context.Context, in CaptureInput) (CaptureResult, error) {
	now := p.clock()

	eventName := strings.TrimSpace(in.EventName)
	if eventName == "" {
		return CaptureResult{}, &ValidationError{Field: "event_name", Reason: "must not be empty"}
	}
	if len(eventName) > maxEventNameLen {
		return CaptureResult{}, &ValidationError{Field: "event_name", Reason: fmt.Sprintf("longer than %d characters", maxEventNameLen)}
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = defaultSource
	}
	if len(source) > maxSourceLen {
		return CaptureResult{}, &ValidationError{Field: "source", Reason: fmt.Sprintf("longer than %d characters", maxSourceLen)}
	}

	ts, err := canonicalTimestamp(in.Timestamp, now)
	if err != nil {
		return CaptureResult{}, &ValidationError{Field: "timestamp", Reason: "not a valid RFC 3339 timestamp"}
	}

	// Encoded before the rate-limit checks so malformed properties cost no
	// quota, like every other validation failure.
	props, err := encodeProperties(in.Properties, in.UserAgent, in.IPAddress, p.GeoIP)
	if err != nil {
		return CaptureResult{}, &ValidationError{Field: "properties", Reason: "not a JSON object"}
	}

	project, err := p.Registry.Resolve(ctx, in.APIKey)
	if errors.Is(err, registry.ErrNotFound) {
		return CaptureResult{}, ErrAuth
	}
	if err != nil {
		return CaptureResult{}, fmt.Errorf("resolve project: %w", err)
	}

	ipRes, err := p.Limiter.CheckAndIncrement(ctx, ratelimit.ScopeIP, in.IPAddress, p.IPLimit)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("ip rate limit: %w", err)
	}
	if !ipRes.Allowed {
		return CaptureResult{}, &RateLimitError{Scope: ratelimit.ScopeIP, Result: ipRes}
	}

	projRes, err := p.Limiter.CheckAndIncrement(ctx, ratelimit.ScopeProject, strconv.Itoa(project.ID), int64(project.RateLimitPerMinute))
	if err != nil {
		return CaptureResult{}, fmt.Errorf("project rate limit: %w", err)
	}
	if !projRes.Allowed {
		return CaptureResult{}, &RateLimitError{Scope: ratelimit.ScopeProject, Result: projRes}
	}

	if !project.SourceAllowed(source) {
		return CaptureResult{}, &SourceRejectedError{Source: source, Allowed: project.AllowedSourceList()}
	}

	userID := identity.AnonymousUserID(in.IPAddress, in.UserAgent)
	sessionID := identity.SessionID(userID, now, clientSessionID(in.Properties))

	row := model.Event{
		ProjectID:  project.ID,
		EventName:  eventName,
		Source:     source,
		Timestamp:  ts,
		Properties: props,
		UserID:     userID,
		SessionID:  sessionID,
		UserAgent:  in.UserAgent,
		IPAddress:  in.IPAddress,
	}
	if err := store.InsertEvent(ctx, p.DB, &row); err != nil {
		// Quota for this request is already spent; that inconsistency is
		// documented behavior, not something to roll back.
		return CaptureResult{}, fmt.Errorf("persist event: %w", err)
	}

	p.publishFirehose(row, now)

	return CaptureResult{
		EventID:   row.ID,
		EventName: row.EventName,
		Source:    row.Source,
		Timestamp: row.Timestamp,
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		RateLimit: RateLimitInfo{IP: ipRes, Project: projRes},
	}, nil
}

func (p *Pipeline) clock() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func canonicalTimestamp(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

func clientSessionID(properties map[string]any) string {
	if properties == nil {
		return ""
	}
	s, _ := properties["session_id"].(string)
	return s
}

func encodeProperties(properties map[string]any, userAgent, ipAddress string, geoip *enrich.GeoIP) (datatypes.JSON, error) {
	out := make(map[string]any, len(properties)+1)
	for k, v := range properties {
		out[k] = v
	}
	if ua := identity.ParseUserAgent(userAgent); ua != (identity.UAInfo{}) {
		out["_device"] = ua
	}
	if geo, ok := geoip.Lookup(ipAddress); ok {
		out["_geo"] = geo
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

type firehoseMessage struct {
	IngestID  uuid.UUID       `json:"ingest_id"`
	ProjectID int             `json:"project_id"`
	EventID   int64           `json:"event_id"`
	EventName string          `json:"event_name"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Received  time.Time       `json:"received"`
	Props     json.RawMessage `json:"properties,omitempty"`
}

// publishFirehose fans the accepted event out to NSQ for downstream
// consumers. Best effort: a broker outage never fails the capture.
func (p *Pipeline) publishFirehose(row model.Event, received time.Time) {
	if p.Publisher == nil || p.FirehoseTopic == "" {
		return
	}
	body, err := json.Marshal(firehoseMessage{
		IngestID:  uuid.New(),
		ProjectID: row.ProjectID,
		EventID:   row.ID,
		EventName: row.EventName,
		Source:    row.Source,
		Timestamp: row.Timestamp,
		Received:  received,
		Props:     json.RawMessage(row.Properties),
	})
	if err != nil {
		return
	}
	_ = p.Publisher.Publish(p.FirehoseTopic, body)
}
