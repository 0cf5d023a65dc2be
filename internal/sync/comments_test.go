package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/remote"
)

func TestComments_AddRequiresSessionAndText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.repo.Comments.Add(ctx, "loc-1", "hello")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	f.signUp(t, "Ana", "ana@example.com")
	_, err = f.repo.Comments.Add(ctx, "loc-1", "   ")
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
	require.Equal(t, 0, f.store.Count(model.CollectionComments))
}

func TestComments_OrderFollowsInsertion(t *testing.T) {
	ctx := context.Background()
	// A frozen clock: every comment gets the same wall time.
	frozen := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, Options{Now: func() time.Time { return frozen }})
	f.signUp(t, "Ana", "ana@example.com")

	texts := []string{"first", "second", "third", "fourth"}
	var prev time.Time
	for _, text := range texts {
		c, err := f.repo.Comments.Add(ctx, "loc-1", text)
		require.NoError(t, err)
		require.True(t, c.CreatedAt.After(prev), "CreatedAt must strictly increase")
		prev = c.CreatedAt
	}

	got, err := f.repo.Comments.ForLocation(ctx, "loc-1")
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, c := range got {
		require.Equal(t, texts[i], c.Text)
	}
}

func TestComments_ForLocationTieBreakByID(t *testing.T) {
	f := newFixture(t, Options{})
	ts := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"c-b", "c-a"} {
		f.store.Seed(model.CollectionComments, remote.Document{ID: id, Fields: map[string]any{
			"user_id": "u1", "location_id": "loc-1", "text": id, "created_at": ts,
		}})
	}
	f.store.Seed(model.CollectionComments, remote.Document{ID: "c-0", Fields: map[string]any{
		"user_id": "u1", "location_id": "loc-1", "text": "later", "created_at": ts.Add(time.Second),
	}})

	got, err := f.repo.Comments.ForLocation(context.Background(), "loc-1")
	require.NoError(t, err)
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	require.Equal(t, []string{"c-a", "c-b", "c-0"}, ids)
}

func TestComments_RemoveOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.signUp(t, "Ana", "ana@example.com")
	c, err := f.repo.Comments.Add(ctx, "loc-1", "mine")
	require.NoError(t, err)
	f.repo.Accounts.SignOut()

	f.signUp(t, "Bob", "bob@example.com")
	err = f.repo.Comments.Remove(ctx, c.ID)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	require.Equal(t, 1, f.store.Count(model.CollectionComments))
	f.repo.Accounts.SignOut()

	_, err = f.repo.Accounts.SignIn(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.repo.Comments.Remove(ctx, c.ID))
	require.Equal(t, 0, f.store.Count(model.CollectionComments))

	require.ErrorIs(t, f.repo.Comments.Remove(ctx, c.ID), apperr.ErrNotFound)
}

func TestMonotonicClock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	readings := []time.Time{base, base, base.Add(-time.Hour), base.Add(time.Second)}
	i := 0
	clock := &monotonicClock{now: func() time.Time { t := readings[i]; i++; return t }}

	want := []time.Time{base, base.Add(time.Microsecond), base.Add(2 * time.Microsecond), base.Add(time.Second)}
	for n, w := range want {
		if got := clock.Next(); !got.Equal(w) {
			t.Errorf("reading %d = %v, want %v", n, got, w)
		}
	}
}

func TestFavorites_ForUserAndLocations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	seedLocations(f)

	_, err := f.repo.Favorites.ForUser(ctx)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	id := f.signUp(t, "Ana", "ana@example.com")
	toggle := NewFavoriteToggle(f.repo, testLogger)
	for _, loc := range []string{"loc-1", "loc-3"} {
		_, err := toggle.Toggle(ctx, loc)
		require.NoError(t, err)
	}
	// An orphan favorite whose location was removed.
	f.store.Seed(model.CollectionFavorites, remote.Document{ID: "orphan", Fields: map[string]any{
		"user_id": id.UID, "location_id": "gone",
	}})
	// Someone else's favorite.
	f.store.Seed(model.CollectionFavorites, remote.Document{ID: "other", Fields: map[string]any{
		"user_id": "someone-else", "location_id": "loc-2",
	}})

	favs, err := f.repo.Favorites.ForUser(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 3)

	locs, err := f.repo.Favorites.FavoriteLocations(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(locs))
	for _, l := range locs {
		names = append(names, l.ID)
	}
	require.ElementsMatch(t, []string{"loc-1", "loc-3"}, names)
}
