package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/andrewm4894/djangalytics/internal/registry"
	"github.com/andrewm4894/djangalytics/internal/testkit"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T, db *gorm.DB, now time.Time) *httptest.Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	h := &Handlers{
		DB:       db,
		Registry: registry.New(db),
		Now:      func() time.Time { return now },
	}
	r := gin.New()
	r.GET("/api/stats", h.Stats)
	r.GET("/api/events/recent", h.RecentEvents)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	p := seedProject(t, db)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seedEvent(t, db, p.ID, "click", "web", now.Add(-10*time.Minute))
	seedEvent(t, db, p.ID, "click", "web", now.Add(-9*time.Minute))

	srv := newTestServer(t, db, now)

	q := url.Values{"api_key": {p.APIKey}, "time_window": {"1h"}, "freq": {"5m"}}
	status, body := testkit.DoJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/stats?"+q.Encode(), nil, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	env := testkit.DecodeEnvelope(t, body)
	if env.Code != 0 {
		t.Fatalf("envelope code = %d", env.Code)
	}
	var stats Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalEvents != 2 {
		t.Fatalf("TotalEvents = %d, want 2", stats.TotalEvents)
	}
	if len(stats.EventNameTotals) != 1 || stats.EventNameTotals[0].Count != 2 {
		t.Fatalf("EventNameTotals = %+v", stats.EventNameTotals)
	}
}

func TestStatsEndpointRejectsBadWindow(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	p := seedProject(t, db)
	srv := newTestServer(t, db, time.Now())

	q := url.Values{"api_key": {p.APIKey}, "time_window": {"90d"}}
	status, body := testkit.DoJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/stats?"+q.Encode(), nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", status, body)
	}
}

func TestStatsEndpointAuth(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	srv := newTestServer(t, db, time.Now())

	status, _ := testkit.DoJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/stats?api_key=pk_nope", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}

	// An inactive project fails the same way as a missing one.
	p := seedProject(t, db)
	if err := db.WithContext(context.Background()).Model(&p).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	status, _ = testkit.DoJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/stats?api_key="+url.QueryEscape(p.APIKey), nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("inactive project status = %d, want 401", status)
	}
}

func TestRecentEventsEndpoint(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	p := seedProject(t, db)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedEvent(t, db, p.ID, "tick", "web", now.Add(-time.Duration(i)*time.Minute))
	}

	srv := newTestServer(t, db, now)
	status, body := testkit.DoJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/events/recent?api_key="+url.QueryEscape(p.APIKey), nil, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	env := testkit.DecodeEnvelope(t, body)
	var payload struct {
		Project string            `json:"project"`
		Count   int               `json:"count"`
		Events  []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Project != p.Slug || payload.Count != 3 || len(payload.Events) != 3 {
		t.Fatalf("payload = %+v", payload)
	}

	// Client limit is honored but never raised above the cap.
	status, body = testkit.DoJSON(t, srv.Client(), http.MethodGet,
		srv.URL+"/api/events/recent?limit=2&api_key="+url.QueryEscape(p.APIKey), nil, nil)
	if status != http.StatusOK {
		t.Fatalf("limited status = %d, body = %s", status, body)
	}
	env = testkit.DecodeEnvelope(t, body)
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode limited payload: %v", err)
	}
	if payload.Count != 2 {
		t.Fatalf("limited count = %d, want 2", payload.Count)
	}

	status, _ = testkit.DoJSON(t, srv.Client(), http.MethodGet,
		srv.URL+"/api/events/recent?limit=nope&api_key="+url.QueryEscape(p.APIKey), nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", status)
	}
}
