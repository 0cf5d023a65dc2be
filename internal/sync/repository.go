package sync

import (
	"log/slog"
	"time"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/remote"
)

// Options tunes a [Repository].
type Options struct {
	// PurgeDependents makes account deletion remove the user's favorites
	// and comments before the profile document.
	PurgeDependents bool
	// Now overrides the wall clock. Defaults to time.Now.
	Now func() time.Time
}

// Repository is the data layer. Create it once at startup and pass it down;
// every surface shares the same caches.
type Repository struct {
	Locations  *Locations
	Categories *Categories
	Favorites  *Favorites
	Comments   *Comments
	Accounts   *Accounts

	inst *instruments
	log  *slog.Logger
}

// NewRepository wires the per-kind surfaces over store and provider. ledger
// may be nil, in which case logins are not recorded and unfinished deletions
// are not tracked.
func NewRepository(store remote.Store, provider auth.Provider, ledger LoginLedger, opts Options, logger *slog.Logger) *Repository {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	inst := newInstruments(logger)

	locations := &Locations{c: newCollection(store, model.Locations, inst, logger)}
	users := newCollection(store, model.Users, inst, logger)
	favorites := newCollection(store, model.Favorites, inst, logger)
	comments := newCollection(store, model.Comments, inst, logger)

	return &Repository{
		Locations:  locations,
		Categories: &Categories{c: newCollection(store, model.Categories, inst, logger)},
		Favorites: &Favorites{
			c:         favorites,
			locations: locations,
			provider:  provider,
			now:       opts.Now,
		},
		Comments: &Comments{
			c:        comments,
			provider: provider,
			clock:    &monotonicClock{now: opts.Now},
		},
		Accounts: &Accounts{
			users:           users,
			favorites:       favorites,
			comments:        comments,
			provider:        provider,
			ledger:          ledger,
			purgeDependents: opts.PurgeDependents,
			now:             opts.Now,
			inst:            inst,
			log:             logger.With("component", "accounts"),
		},
		inst: inst,
		log:  logger,
	}
}

// session returns the signed-in identity or KindUnauthenticated.
func session(provider auth.Provider, op string) (auth.Identity, error) {
	id, ok := provider.Current()
	if !ok {
		return auth.Identity{}, apperr.Errorf(apperr.KindUnauthenticated, op, "no signed-in user")
	}
	return id, nil
}
