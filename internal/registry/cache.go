package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andrewm4894/djangalytics/internal/model"
	"gorm.io/gorm"
)

// Registry serves the hot read path of key resolution: a short-TTL
// in-memory cache in front of the projects table. Hits (including negative
// ones) skip the database; staleness is bounded by the TTL, so a
// deactivated project stops resolving within ttl at worst.
type Registry struct {
	db *gorm.DB

	mu        sync.Mutex
	items     map[string]cacheEntry
	maxItems  int
	ttl       time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type cacheEntry struct {
	project model.Project
	ok      bool
	until   time.Time
}

func New(db *gorm.DB) *Registry {
	return NewWithCache(db, 10_000, 30*time.Second)
}

func NewWithCache(db *gorm.DB, maxItems int, ttl time.Duration) *Registry {
	if maxItems <= 0 {
		maxItems = 10_000
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{
		db:       db,
		items:    map[string]cacheEntry{},
		maxItems: maxItems,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Resolve returns the active project owning apiKey, consulting the cache
// first. ErrNotFound covers unknown keys and inactive projects.
func (r *Registry) Resolve(ctx context.Context, apiKey string) (model.Project, error) {
	if r == nil {
		return model.Project{}, errors.New("no registry")
	}
	if p, ok, hit := r.get(apiKey); hit {
		if !ok {
			return model.Project{}, ErrNotFound
		}
		return p, nil
	}

	p, err := ResolveByKey(ctx, r.db, apiKey)
	if errors.Is(err, ErrNotFound) {
		r.set(apiKey, model.Project{}, false)
		return model.Project{}, err
	}
	if err != nil {
		// Infrastructure failure: don't poison the cache.
		return model.Project{}, err
	}
	r.set(apiKey, p, true)
	return p, nil
}

func (r *Registry) get(key string) (model.Project, bool, bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[key]
	if !ok {
		return model.Project{}, false, false
	}
	if now.After(e.until) {
		delete(r.items, key)
		return model.Project{}, false, false
	}
	return e.project, e.ok, true
}

func (r *Registry) set(key string, p model.Project, ok bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[key] = cacheEntry{project: p, ok: ok, until: now.Add(r.ttl)}

	if len(r.items) <= r.maxItems && now.Sub(r.lastPrune) < time.Minute {
		return
	}
	r.lastPrune = now
	for k, e := range r.items {
		if now.After(e.until) {
			delete(r.items, k)
		}
	}
	for len(r.items) > r.maxItems {
		for k := range r.items {
			delete(r.items, k)
			break
		}
	}
}
