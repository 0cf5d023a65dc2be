package sync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/remote"
)

// Comments is the surface over the comments collection.
type Comments struct {
	c        *Collection[model.Comment]
	provider auth.Provider
	clock    *monotonicClock
}

// ForLocation returns the comments on a location, oldest first. Ties on
// CreatedAt are broken by id.
func (c *Comments) ForLocation(ctx context.Context, locationID string) ([]model.Comment, error) {
	out, err := c.c.FetchAll(ctx, remote.Where("location_id", locationID))
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Add posts a comment by the signed-in user.
func (c *Comments) Add(ctx context.Context, locationID, text string) (model.Comment, error) {
	id, err := session(c.provider, "comments.add")
	if err != nil {
		return model.Comment{}, err
	}
	comment := model.Comment{
		UserID:     id.UID,
		LocationID: locationID,
		Text:       strings.TrimSpace(text),
		CreatedAt:  c.clock.Next(),
	}
	cid, err := c.c.Create(ctx, comment)
	if err != nil {
		return model.Comment{}, err
	}
	comment.ID = cid
	return comment, nil
}

// Remove deletes a comment. Only its author may remove it.
func (c *Comments) Remove(ctx context.Context, commentID string) error {
	const op = "comments.remove"
	id, err := session(c.provider, op)
	if err != nil {
		return err
	}
	comment, err := c.c.FetchOne(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != id.UID {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "comment %s belongs to another user", commentID)
	}
	return c.c.Delete(ctx, commentID)
}

// monotonicClock hands out strictly increasing timestamps. Readings are
// truncated to microseconds, the precision Firestore stores.
type monotonicClock struct {
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func (m *monotonicClock) Next() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.now().UTC().Truncate(time.Microsecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}
