package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/andrewm4894/djangalytics/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound covers unknown keys and inactive projects alike: an inactive
// project fails closed, indistinguishable from a missing one.
var ErrNotFound = errors.New("project not found")

// ResolveByKey looks a project up by either its public or secret key. The
// two are interchangeable for ingestion; the split is kept for a future
// server-side scope distinction.
func ResolveByKey(ctx context.Context, db *gorm.DB, apiKey string) (model.Project, error) {
	if db == nil {
		return model.Project{}, errors.New("no database")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return model.Project{}, ErrNotFound
	}

	var p model.Project
	err := db.WithContext(ctx).
		Where("(api_key = ? OR secret_key = ?) AND is_active = ?", apiKey, apiKey, true).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Project{}, ErrNotFound
	}
	if err != nil {
		return model.Project{}, err
	}
	return p, nil
}

type CreateParams struct {
	Name               string
	Slug               string
	AllowedSources     []string
	RateLimitPerMinute int
	IsDefault          bool
}

// CreateProject inserts a project with freshly generated keys. A key
// collision (unique violation) is retried once with new keys.
func CreateProject(ctx context.Context, db *gorm.DB, params CreateParams) (model.Project, error) {
	if db == nil {
		return model.Project{}, errors.New("no database")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return model.Project{}, errors.New("project name is required")
	}
	slug := strings.TrimSpace(params.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	limit := params.RateLimitPerMinute
	if limit <= 0 {
		limit = 1000
	}

	row, err := newProjectRow(name, slug, params.AllowedSources, limit, params.IsDefault)
	if err != nil {
		return model.Project{}, err
	}
	err = db.WithContext(ctx).Create(&row).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			row2, err2 := newProjectRow(name, slug, params.AllowedSources, limit, params.IsDefault)
			if err2 != nil {
				return model.Project{}, err
			}
			if err := db.WithContext(ctx).Create(&row2).Error; err != nil {
				return model.Project{}, err
			}
			return row2, nil
		}
		return model.Project{}, err
	}
	return row, nil
}

// EnsureDefaultProject creates the is_default project when none exists and
// returns it either way.
func EnsureDefaultProject(ctx context.Context, db *gorm.DB) (model.Project, bool, error) {
	var p model.Project
	err := db.WithContext(ctx).Where("is_default = ?", true).First(&p).Error
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Project{}, false, err
	}
	created, err := CreateProject(ctx, db, CreateParams{Name: "Default", Slug: "default", IsDefault: true})
	if err != nil {
		return model.Project{}, false, err
	}
	return created, true, nil
}

func newProjectRow(name, slug string, allowedSources []string, limit int, isDefault bool) (model.Project, error) {
	apiKey, err := NewKey("pk_")
	if err != nil {
		return model.Project{}, err
	}
	secretKey, err := NewKey("sk_")
	if err != nil {
		return model.Project{}, err
	}
	sources, err := encodeSources(allowedSources)
	if err != nil {
		return model.Project{}, err
	}
	return model.Project{
		Name:               name,
		Slug:               slug,
		APIKey:             apiKey,
		SecretKey:          secretKey,
		AllowedSources:     sources,
		RateLimitPerMinute: limit,
		IsActive:           true,
		IsDefault:          isDefault,
	}, nil
}

func encodeSources(sources []string) (datatypes.JSON, error) {
	if sources == nil {
		sources = []string{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// NewKey returns prefix plus 43 urlsafe chars (32 random bytes, unpadded
// base64url).
func NewKey(prefix string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
