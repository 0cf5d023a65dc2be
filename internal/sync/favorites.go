package sync

import (
	"context"
	"time"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/remote"
)

// Favorites is the surface over the favorites collection. Favorites are only
// created and deleted through a [FavoriteToggle].
type Favorites struct {
	c         *Collection[model.Favorite]
	locations *Locations
	provider  auth.Provider
	now       func() time.Time
}

// ForUser returns the signed-in user's favorites.
func (f *Favorites) ForUser(ctx context.Context) ([]model.Favorite, error) {
	id, err := session(f.provider, "favorites.for_user")
	if err != nil {
		return nil, err
	}
	return f.c.FetchAll(ctx, remote.Where("user_id", id.UID))
}

// FavoriteLocations resolves the signed-in user's favorites to locations.
// Favorites pointing at locations that no longer exist are skipped.
func (f *Favorites) FavoriteLocations(ctx context.Context) ([]model.Location, error) {
	favs, err := f.ForUser(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(favs))
	out := make([]model.Location, 0, len(favs))
	for _, fav := range favs {
		if seen[fav.LocationID] {
			continue
		}
		seen[fav.LocationID] = true

		loc, err := f.locations.Get(ctx, fav.LocationID)
		if apperr.Is(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// Find returns every favorite document for the pair. More than one means
// duplicates were created outside this process.
func (f *Favorites) Find(ctx context.Context, userID, locationID string) ([]model.Favorite, error) {
	return f.c.FetchAll(ctx, remote.Where("user_id", userID).And("location_id", locationID))
}

func (f *Favorites) add(ctx context.Context, userID, locationID string) (model.Favorite, error) {
	fav := model.Favorite{UserID: userID, LocationID: locationID, CreatedAt: f.now().UTC()}
	id, err := f.c.Create(ctx, fav)
	if err != nil {
		return model.Favorite{}, err
	}
	fav.ID = id
	return fav, nil
}

// removeAll deletes every favorite document for the pair.
func (f *Favorites) removeAll(ctx context.Context, userID, locationID string) error {
	found, err := f.Find(ctx, userID, locationID)
	if err != nil {
		return err
	}
	for _, fav := range found {
		if err := f.c.Delete(ctx, fav.ID); err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
	}
	return nil
}
