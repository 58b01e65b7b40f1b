package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andrewm4894/djangalytics/internal/model"
	"github.com/andrewm4894/djangalytics/internal/testkit"
)

func TestNewKey(t *testing.T) {
	t.Parallel()

	k, err := NewKey("pk_")
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	if !strings.HasPrefix(k, "pk_") || len(k) != 3+43 {
		t.Fatalf("unexpected key %q (len=%d)", k, len(k))
	}

	k2, err := NewKey("pk_")
	if err != nil || k == k2 {
		t.Fatalf("keys should be unique: %q %q err=%v", k, k2, err)
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"My Project":       "my-project",
		"  Snake  Game!  ": "snake-game",
		"ALLCAPS":          "allcaps",
		"a--b":             "a-b",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateProject_Defaults(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	ctx := context.Background()

	p, err := CreateProject(ctx, db, CreateParams{Name: "Snake Game"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID <= 0 || p.Slug != "snake-game" {
		t.Fatalf("unexpected project: %+v", p)
	}
	if !strings.HasPrefix(p.APIKey, "pk_") || !strings.HasPrefix(p.SecretKey, "sk_") {
		t.Fatalf("unexpected keys: %q %q", p.APIKey, p.SecretKey)
	}
	if p.RateLimitPerMinute != 1000 || !p.IsActive {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if len(p.AllowedSourceList()) != 0 {
		t.Fatalf("expected empty allow-list, got %v", p.AllowedSourceList())
	}
}

func TestResolveByKey(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	ctx := context.Background()

	p, err := CreateProject(ctx, db, CreateParams{Name: "Test", AllowedSources: []string{"web", "mobile"}})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	// Public and secret keys resolve interchangeably.
	got, err := ResolveByKey(ctx, db, p.APIKey)
	if err != nil || got.ID != p.ID {
		t.Fatalf("resolve by api key: %+v err=%v", got, err)
	}
	got, err = ResolveByKey(ctx, db, p.SecretKey)
	if err != nil || got.ID != p.ID {
		t.Fatalf("resolve by secret key: %+v err=%v", got, err)
	}
	if !got.SourceAllowed("mobile") || got.SourceAllowed("unknown") {
		t.Fatalf("allow-list not preserved: %v", got.AllowedSourceList())
	}

	if _, err := ResolveByKey(ctx, db, "invalid_key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := ResolveByKey(ctx, db, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty key, got %v", err)
	}
}

func TestResolveByKey_InactiveFailsClosed(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	ctx := context.Background()

	p, err := CreateProject(ctx, db, CreateParams{Name: "Dormant"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := db.Model(&model.Project{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := ResolveByKey(ctx, db, p.APIKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("inactive project must resolve as not found, got %v", err)
	}
}

func TestRegistry_CacheHit(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	ctx := context.Background()

	p, err := CreateProject(ctx, db, CreateParams{Name: "Cached"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	reg := NewWithCache(db, 100, time.Minute)
	if _, err := reg.Resolve(ctx, p.APIKey); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Deactivate behind the cache's back: within TTL the stale entry wins.
	if err := db.Model(&model.Project{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := reg.Resolve(ctx, p.APIKey); err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}

	// After TTL expiry the deactivation is observed.
	reg.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := reg.Resolve(ctx, p.APIKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestRegistry_NegativeCache(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	reg := New(db)
	ctx := context.Background()

	if _, err := reg.Resolve(ctx, "pk_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Second lookup is served from the negative entry.
	if _, err := reg.Resolve(ctx, "pk_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cached ErrNotFound, got %v", err)
	}
}

func TestEnsureDefaultProject(t *testing.T) {
	t.Parallel()

	db := testkit.OpenTestDB(t)
	ctx := context.Background()

	p, created, err := EnsureDefaultProject(ctx, db)
	if err != nil || !created {
		t.Fatalf("EnsureDefaultProject: created=%v err=%v", created, err)
	}
	if !p.IsDefault || p.Slug != "default" {
		t.Fatalf("unexpected default project: %+v", p)
	}

	p2, created, err := EnsureDefaultProject(ctx, db)
	if err != nil || created {
		t.Fatalf("second call should not create: created=%v err=%v", created, err)
	}
	if p2.ID != p.ID {
		t.Fatalf("expected same project, got %d vs %d", p2.ID, p.ID)
	}
}
