// Package sync is the client-side data layer of placesync. It resolves reads
// against the process-wide entity cache and the remote document store, keeps
// the cache current on every write, and runs the multi-step account flows.
//
// The package contains four main components:
//
//   - [Repository] groups the per-kind surfaces ([Locations], [Categories],
//     [Favorites], [Comments], [Accounts]) built on a generic [Collection].
//   - [FavoriteToggle] runs the per-(user, location) check-then-flip state
//     machine and rejects taps while an operation for the key is in flight.
//   - [Refresher] periodically reloads the reference collections.
//   - the account pipelines ([Accounts.UpdateProfile],
//     [Accounts.DeleteAccount]) run as sequences of short-circuiting steps.
//
// Repository calls are never retried; every failure reaches the caller with
// its [apperr.Kind]. Only the refresher's background passes back off and try
// again on KindRemoteUnavailable.
package sync

import (
	"context"
	"time"
)

// LoginLedger records successful logins on the device, plus the accounts
// whose deletion stopped after the profile document was removed.
// Implemented by [ledger.Ledger].
type LoginLedger interface {
	RecordLogin(ctx context.Context, t time.Time) error
	MostRecentLogin(ctx context.Context) (time.Time, bool, error)

	MarkDeletionPending(ctx context.Context, uid string, t time.Time) error
	DeletionPending(ctx context.Context, uid string) (bool, error)
	ClearDeletionPending(ctx context.Context, uid string) error
}
