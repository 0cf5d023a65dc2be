package sync

import (
	"context"
	"strings"

	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/remote"
)

// Locations is the read-only surface over the locations collection.
type Locations struct {
	c *Collection[model.Location]
}

// All returns every location, ordered by id.
func (l *Locations) All(ctx context.Context) ([]model.Location, error) {
	return l.c.FetchAll(ctx, remote.Query{})
}

// Get returns one location.
func (l *Locations) Get(ctx context.Context, id string) (model.Location, error) {
	return l.c.FetchOne(ctx, id)
}

// Search returns the locations whose default or English name contains query,
// ignoring case. A blank query returns every location. No match is an empty
// result, not an error.
func (l *Locations) Search(ctx context.Context, query string) ([]model.Location, error) {
	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return all, nil
	}
	out := make([]model.Location, 0)
	for _, loc := range all {
		if loc.MatchesName(q) {
			out = append(out, loc)
		}
	}
	return out, nil
}

// ByCategory returns the locations of one category.
func (l *Locations) ByCategory(ctx context.Context, categoryID string) ([]model.Location, error) {
	return l.c.FetchAll(ctx, remote.Where("category_id", categoryID))
}

// ByNamePrefix returns the locations whose default name starts with prefix.
// The match is case-sensitive and runs in the store.
func (l *Locations) ByNamePrefix(ctx context.Context, prefix string) ([]model.Location, error) {
	if prefix == "" {
		return l.All(ctx)
	}
	return l.c.FetchAll(ctx, remote.Query{}.WithPrefix("name", prefix))
}

// Categories is the read-only surface over the location_category collection.
type Categories struct {
	c *Collection[model.LocationCategory]
}

// All returns every category, ordered by id.
func (c *Categories) All(ctx context.Context) ([]model.LocationCategory, error) {
	return c.c.FetchAll(ctx, remote.Query{})
}

// Get returns one category.
func (c *Categories) Get(ctx context.Context, id string) (model.LocationCategory, error) {
	return c.c.FetchOne(ctx, id)
}
