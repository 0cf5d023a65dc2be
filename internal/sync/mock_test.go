package sync

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/auth/memauth"
	"github.com/njoerd114/placesync/internal/remote"
	"github.com/njoerd114/placesync/internal/remote/memstore"
)

var testLogger = slog.Default()

// --- Faulty Store ------------------------------------------------------------

// faultyStore wraps a memstore, counting calls and injecting failures or
// hooks per "op:collection" key (e.g. "create:favorites").
type faultyStore struct {
	*memstore.Store

	mu    sync.Mutex
	fails map[string]error
	hooks map[string]func()
	calls map[string]int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store: memstore.New(),
		fails: make(map[string]error),
		hooks: make(map[string]func()),
		calls: make(map[string]int),
	}
}

func (f *faultyStore) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fails, key)
		return
	}
	f.fails[key] = err
}

func (f *faultyStore) hook(key string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[key] = fn
}

func (f *faultyStore) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *faultyStore) enter(op, collection string) error {
	key := op + ":" + collection
	f.mu.Lock()
	f.calls[key]++
	err := f.fails[key]
	hook := f.hooks[key]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *faultyStore) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	if err := f.enter("get", collection); err != nil {
		return remote.Document{}, err
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *faultyStore) List(ctx context.Context, collection string, q remote.Query) ([]remote.Document, error) {
	if err := f.enter("list", collection); err != nil {
		return nil, err
	}
	return f.Store.List(ctx, collection, q)
}

func (f *faultyStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := f.enter("create", collection); err != nil {
		return "", err
	}
	return f.Store.Create(ctx, collection, id, fields)
}

func (f *faultyStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := f.enter("update", collection); err != nil {
		return err
	}
	return f.Store.Update(ctx, collection, id, fields)
}

func (f *faultyStore) Delete(ctx context.Context, collection, id string) error {
	if err := f.enter("delete", collection); err != nil {
		return err
	}
	return f.Store.Delete(ctx, collection, id)
}

// --- Faulty Auth ---------------------------------------------------------------

// faultyAuth wraps memauth and injects failures per operation name
// ("reauthenticate", "update_email", "delete_identity", ...).
type faultyAuth struct {
	*memauth.Provider

	mu    sync.Mutex
	fails map[string]error
	calls map[string]int
}

func newFaultyAuth() *faultyAuth {
	return &faultyAuth{
		Provider: memauth.New(0),
		fails:    make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *faultyAuth) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fails, op)
		return
	}
	f.fails[op] = err
}

func (f *faultyAuth) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *faultyAuth) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.fails[op]
}

func (f *faultyAuth) Reauthenticate(ctx context.Context, cred auth.Credential) error {
	if err := f.enter("reauthenticate"); err != nil {
		return err
	}
	return f.Provider.Reauthenticate(ctx, cred)
}

func (f *faultyAuth) UpdateEmail(ctx context.Context, newEmail string) error {
	if err := f.enter("update_email"); err != nil {
		return err
	}
	return f.Provider.UpdateEmail(ctx, newEmail)
}

func (f *faultyAuth) DeleteIdentity(ctx context.Context) error {
	if err := f.enter("delete_identity"); err != nil {
		return err
	}
	return f.Provider.DeleteIdentity(ctx)
}

// --- Fake Ledger ---------------------------------------------------------------

type fakeLedger struct {
	mu      sync.Mutex
	times   []time.Time
	pending map[string]time.Time
	err     error
}

func (l *fakeLedger) RecordLogin(_ context.Context, t time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.times = append(l.times, t)
	return nil
}

func (l *fakeLedger) MostRecentLogin(context.Context) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return time.Time{}, false, l.err
	}
	if len(l.times) == 0 {
		return time.Time{}, false, nil
	}
	return l.times[len(l.times)-1], true, nil
}

func (l *fakeLedger) MarkDeletionPending(_ context.Context, uid string, t time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.pending == nil {
		l.pending = make(map[string]time.Time)
	}
	l.pending[uid] = t
	return nil
}

func (l *fakeLedger) DeletionPending(_ context.Context, uid string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	_, ok := l.pending[uid]
	return ok, nil
}

func (l *fakeLedger) ClearDeletionPending(_ context.Context, uid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	delete(l.pending, uid)
	return nil
}

func (l *fakeLedger) isPending(uid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[uid]
	return ok
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.times)
}

// --- Fixture -------------------------------------------------------------------

type fixture struct {
	store  *faultyStore
	auth   *faultyAuth
	ledger *fakeLedger
	repo   *Repository
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{store: newFaultyStore(), auth: newFaultyAuth(), ledger: &fakeLedger{}}
	f.repo = NewRepository(f.store, f.auth, f.ledger, opts, testLogger)
	return f
}

// signUp registers and signs in a user through the repository.
func (f *fixture) signUp(t *testing.T, name, email string) auth.Identity {
	t.Helper()
	u, err := f.repo.Accounts.SignUp(context.Background(), name, email, "secret1")
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	return auth.Identity{UID: u.ID, Email: u.Email}
}

func locationDoc(id, name, nameEn, category string) remote.Document {
	return remote.Document{ID: id, Fields: map[string]any{
		"name":        name,
		"name_en":     nameEn,
		"category_id": category,
		"latitude":    50.08,
		"longitude":   14.42,
	}}
}

func remoteCategory(id, description string) remote.Document {
	return remote.Document{ID: id, Fields: map[string]any{"description": description}}
}
