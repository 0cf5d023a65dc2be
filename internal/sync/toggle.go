package sync

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/njoerd114/placesync/internal/apperr"
)

// State is the favorite state of one (user, location) pair.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateFavorited
	StateNotFavorited
	StateMutating
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateFavorited:
		return "favorited"
	case StateNotFavorited:
		return "not_favorited"
	case StateMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

func (s State) busy() bool { return s == StateChecking || s == StateMutating }

// Key identifies a (user, location) pair.
type Key struct {
	UserID     string
	LocationID string
}

// FavoriteToggle runs the check-then-flip state machine per (user, location)
// pair. At most one check or mutation is in flight per key; a call arriving
// while one is running is rejected with KindConcurrentMutationRejected.
//
// Exclusivity holds within this process only. Two devices toggling the same
// pair can still race into duplicate documents; toggling off removes all of
// them.
type FavoriteToggle struct {
	favorites *Favorites
	log       *slog.Logger

	mu     sync.Mutex
	states map[Key]State

	cntToggles  metric.Int64Counter
	cntRejected metric.Int64Counter
	inst        *instruments
}

// NewFavoriteToggle returns a toggle over the repository's favorites.
func NewFavoriteToggle(repo *Repository, logger *slog.Logger) *FavoriteToggle {
	return &FavoriteToggle{
		favorites:   repo.Favorites,
		log:         logger.With("component", "favorite_toggle"),
		states:      make(map[Key]State),
		cntToggles:  repo.inst.counter(metricToggles, "Number of committed favorite toggles"),
		cntRejected: repo.inst.counter(metricToggleRejected, "Number of favorite taps rejected while busy"),
		inst:        repo.inst,
	}
}

// State returns the current state of key.
func (t *FavoriteToggle) State(key Key) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[key]
}

// acquire moves an idle key to next and returns its previous state.
func (t *FavoriteToggle) acquire(ctx context.Context, op string, key Key, next func(State) State) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.states[key]
	if cur.busy() {
		t.cntRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("state", cur.String())))
		return cur, apperr.Errorf(apperr.KindConcurrentMutationRejected, op, "%s in progress for location %s", cur, key.LocationID)
	}
	t.states[key] = next(cur)
	return cur, nil
}

func (t *FavoriteToggle) set(key Key, s State) {
	t.mu.Lock()
	t.states[key] = s
	t.mu.Unlock()
}

// Check reads whether the signed-in user has favorited locationID.
func (t *FavoriteToggle) Check(ctx context.Context, locationID string) (State, error) {
	const op = "favorite.check"
	id, err := session(t.favorites.provider, op)
	if err != nil {
		return StateUnknown, err
	}
	key := Key{UserID: id.UID, LocationID: locationID}

	prev, err := t.acquire(ctx, op, key, func(State) State { return StateChecking })
	if err != nil {
		return prev, err
	}
	st, err := t.check(ctx, key)
	if err != nil {
		t.set(key, prev)
		return prev, err
	}
	t.set(key, st)
	return st, nil
}

func (t *FavoriteToggle) check(ctx context.Context, key Key) (State, error) {
	found, err := t.favorites.Find(ctx, key.UserID, key.LocationID)
	if err != nil {
		return StateUnknown, err
	}
	if len(found) > 0 {
		return StateFavorited, nil
	}
	return StateNotFavorited, nil
}

// Toggle flips the favorite state of locationID for the signed-in user and
// returns the new state. From StateUnknown the current state is checked
// first; the key stays busy across both calls. On failure the key returns to
// the state it had before the mutation.
func (t *FavoriteToggle) Toggle(ctx context.Context, locationID string) (_ State, err error) {
	const op = "favorite.toggle"
	id, err := session(t.favorites.provider, op)
	if err != nil {
		return StateUnknown, err
	}
	key := Key{UserID: id.UID, LocationID: locationID}

	cur, err := t.acquire(ctx, op, key, func(s State) State {
		if s == StateUnknown {
			return StateChecking
		}
		return StateMutating
	})
	if err != nil {
		return cur, err
	}

	ctx, done := t.inst.start(ctx, "favorite", "toggle")
	defer func() { done(err) }()

	if cur == StateUnknown {
		if cur, err = t.check(ctx, key); err != nil {
			t.set(key, StateUnknown)
			return StateUnknown, err
		}
		t.set(key, StateMutating)
	}

	next := StateFavorited
	if cur == StateFavorited {
		next = StateNotFavorited
		err = t.favorites.removeAll(ctx, key.UserID, key.LocationID)
	} else {
		_, err = t.favorites.add(ctx, key.UserID, key.LocationID)
	}
	if err != nil {
		t.set(key, cur)
		t.log.Debug("toggle failed, state reverted", "location_id", locationID, "state", cur, "error", err)
		return cur, err
	}

	t.set(key, next)
	t.cntToggles.Add(ctx, 1, metric.WithAttributes(attribute.String("state", next.String())))
	return next, nil
}

// Forget drops the remembered state of every key of userID, typically on
// sign-out. Busy keys are kept.
func (t *FavoriteToggle) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, s := range t.states {
		if k.UserID == userID && !s.busy() {
			delete(t.states, k)
		}
	}
}
