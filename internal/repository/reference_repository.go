package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ReferenceRepository resolves display names for rooms, instructors and
// sections. Names feed conflict messages only, never conflict logic, so
// callers treat every lookup as best-effort.
type ReferenceRepository struct {
	db    *sqlx.DB
	cache *CacheRepository
	ttl   time.Duration
}

// NewReferenceRepository builds a reference repository with an optional
// Redis-backed cache in front of the store.
func NewReferenceRepository(db *sqlx.DB, cache *CacheRepository, ttl time.Duration) *ReferenceRepository {
	return &ReferenceRepository{db: db, cache: cache, ttl: ttl}
}

// RoomName returns the display name for a room id.
func (r *ReferenceRepository) RoomName(ctx context.Context, id string) (string, error) {
	return r.lookup(ctx, "ref:room:"+id, `SELECT name FROM rooms WHERE id = $1`, id)
}

// FacultyName returns the display name for an instructor id.
func (r *ReferenceRepository) FacultyName(ctx context.Context, id string) (string, error) {
	return r.lookup(ctx, "ref:faculty:"+id, `SELECT full_name FROM faculty_members WHERE id = $1`, id)
}

// SectionCode returns the section code for a section id.
func (r *ReferenceRepository) SectionCode(ctx context.Context, id string) (string, error) {
	return r.lookup(ctx, "ref:section:"+id, `SELECT code FROM sections WHERE id = $1`, id)
}

func (r *ReferenceRepository) lookup(ctx context.Context, cacheKey, query, id string) (string, error) {
	// A degraded cache must not block message rendering: any cache error
	// falls through to the store.
	var name string
	if err := r.cache.Get(ctx, cacheKey, &name); err == nil {
		return name, nil
	}

	if err := r.db.GetContext(ctx, &name, query, id); err != nil {
		return "", fmt.Errorf("lookup reference %s: %w", cacheKey, err)
	}

	_ = r.cache.Set(ctx, cacheKey, name, r.ttl)
	return name, nil
}
