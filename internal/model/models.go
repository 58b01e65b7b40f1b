package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Project is the tenant boundary: it owns events and rate-limit
// configuration, and is identified on the wire by its API keys.
type Project struct {
	ID                 int            `gorm:"primaryKey;autoIncrement;column:id"`
	Name               string         `gorm:"type:varchar(200);not null;column:name"`
	Slug               string         `gorm:"type:varchar(200);not null;uniqueIndex;column:slug"`
	APIKey             string         `gorm:"type:varchar(80);not null;uniqueIndex;column:api_key"`
	SecretKey          string         `gorm:"type:varchar(80);not null;uniqueIndex;column:secret_key"`
	AllowedSources     datatypes.JSON `gorm:"not null;default:'[]';column:allowed_sources"`
	RateLimitPerMinute int            `gorm:"not null;default:1000;column:rate_limit_per_minute"`
	IsActive           bool           `gorm:"not null;default:true;column:is_active"`
	IsDefault          bool           `gorm:"not null;default:false;column:is_default"`
	CreatedAt          time.Time      `gorm:"not null;autoCreateTime;column:created_at"`
}

func (Project) TableName() string { return "projects" }

// AllowedSourceList decodes the allowed_sources JSON array. A nil or
// malformed value behaves as an empty list (allow all).
func (p Project) AllowedSourceList() []string {
	if len(p.AllowedSources) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.AllowedSources, &out); err != nil {
		return nil
	}
	return out
}

// SourceAllowed reports whether events from source are accepted. An empty
// allow-list accepts every source; matching is case-sensitive and exact.
func (p Project) SourceAllowed(source string) bool {
	allowed := p.AllowedSourceList()
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == source {
			return true
		}
	}
	return false
}

// Event is one ingested analytics fact. Rows are immutable once written;
// archival is handled out of process, and deleting a project cascades to its
// events at the schema level.
type Event struct {
	ID         int64          `gorm:"primaryKey;autoIncrement;column:id"`
	ProjectID  int            `gorm:"not null;index:idx_events_project_ts,priority:1;column:project_id"`
	Project    *Project       `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	EventName  string         `gorm:"type:varchar(100);not null;index;column:event_name"`
	Source     string         `gorm:"type:varchar(50);not null;default:'web';column:source"`
	Timestamp  time.Time      `gorm:"not null;index:idx_events_project_ts,priority:2,sort:desc;column:timestamp"`
	Properties datatypes.JSON `gorm:"not null;default:'{}';column:properties"`
	UserID     string         `gorm:"type:varchar(100);column:user_id"`
	SessionID  string         `gorm:"type:varchar(150);column:session_id"`
	UserAgent  string         `gorm:"type:text;column:user_agent"`
	IPAddress  string         `gorm:"type:varchar(45);column:ip_address"`
}

func (Event) TableName() string { return "events" }

// IPRateLimit counts requests from one IP address within one minute bucket.
// There is at most one row per (ip_address, minute_bucket); increments go
// through an atomic UPDATE, never read-modify-write.
type IPRateLimit struct {
	ID           int64     `gorm:"primaryKey;autoIncrement;column:id"`
	IPAddress    string    `gorm:"type:varchar(45);not null;uniqueIndex:idx_ip_rate_limits_bucket,priority:1;column:ip_address"`
	MinuteBucket time.Time `gorm:"not null;uniqueIndex:idx_ip_rate_limits_bucket,priority:2;column:minute_bucket"`
	RequestCount int64     `gorm:"not null;default:1;column:request_count"`
}

func (IPRateLimit) TableName() string { return "ip_rate_limits" }

// ProjectRateLimit is the project-scoped variant of IPRateLimit.
type ProjectRateLimit struct {
	ID           int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ProjectID    int       `gorm:"not null;uniqueIndex:idx_project_rate_limits_bucket,priority:1;column:project_id"`
	MinuteBucket time.Time `gorm:"not null;uniqueIndex:idx_project_rate_limits_bucket,priority:2;column:minute_bucket"`
	RequestCount int64     `gorm:"not null;default:1;column:request_count"`
}

func (ProjectRateLimit) TableName() string { return "project_rate_limits" }
