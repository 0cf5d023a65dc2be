package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/remote"
)

// Accounts runs the identity and profile flows.
type Accounts struct {
	users     *Collection[model.User]
	favorites *Collection[model.Favorite]
	comments  *Collection[model.Comment]
	provider  auth.Provider
	ledger    LoginLedger

	purgeDependents bool
	now             func() time.Time
	inst            *instruments
	log             *slog.Logger
}

// SignUp creates an identity and its profile document, keyed by the identity
// id. If the document cannot be written the identity is kept and the error
// reported; the next SignIn recreates the missing document.
func (a *Accounts) SignUp(ctx context.Context, name, email, password string) (model.User, error) {
	const op = "account.sign_up"
	u := model.User{
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		CreatedAt: a.now().UTC(),
	}
	if err := model.Validate(op, u); err != nil {
		return model.User{}, err
	}

	id, err := a.provider.SignUp(ctx, u.Email, password)
	if err != nil {
		return model.User{}, apperr.Wrap(op, apperr.KindRemoteUnavailable, err)
	}
	u.ID = id.UID
	if _, err := a.users.Create(ctx, u); err != nil {
		a.log.Warn("identity created but profile document failed", "uid", id.UID, "error", err)
		return model.User{}, err
	}
	a.log.Info("account created", "uid", id.UID)
	return u, nil
}

// SignIn verifies the credential, records the login in the ledger, and
// returns the user's profile.
//
// An identity without a profile document gets the document recreated, unless
// the ledger marks its deletion as unfinished. Then the session stays open and
// SignIn returns KindPartialDeletion together with the identity's id and
// email, so the caller can run [Accounts.DeleteAccount] again.
func (a *Accounts) SignIn(ctx context.Context, email, password string) (model.User, error) {
	const op = "account.sign_in"
	email = strings.TrimSpace(email)
	if err := model.ValidateEmail(op, email); err != nil {
		return model.User{}, err
	}
	if password == "" {
		return model.User{}, apperr.Errorf(apperr.KindValidationFailed, op, "empty password")
	}

	id, err := a.provider.SignIn(ctx, email, password)
	if err != nil {
		return model.User{}, apperr.Wrap(op, apperr.KindRemoteUnavailable, err)
	}
	a.recordLogin(ctx)

	u, err := a.users.FetchOne(ctx, id.UID)
	if !apperr.Is(err, apperr.KindNotFound) {
		return u, err
	}
	pending, perr := a.deletionPending(ctx, id.UID)
	switch {
	case perr != nil:
		a.log.Warn("reading pending deletion failed, profile not recreated", "uid", id.UID, "error", perr)
		return model.User{}, err
	case pending:
		a.log.Info("sign-in to an account with an unfinished deletion", "uid", id.UID)
		return model.User{ID: id.UID, Email: id.Email},
			apperr.Errorf(apperr.KindPartialDeletion, op, "deletion of %s is unfinished", id.UID)
	}
	return a.repairProfile(ctx, id)
}

func (a *Accounts) deletionPending(ctx context.Context, uid string) (bool, error) {
	if a.ledger == nil {
		return false, nil
	}
	return a.ledger.DeletionPending(ctx, uid)
}

func (a *Accounts) markDeletionPending(ctx context.Context, uid string) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.MarkDeletionPending(ctx, uid, a.now()); err != nil {
		a.log.Warn("marking deletion pending failed", "uid", uid, "error", err)
	}
}

func (a *Accounts) clearDeletionPending(ctx context.Context, uid string) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.ClearDeletionPending(ctx, uid); err != nil {
		a.log.Warn("clearing pending deletion failed", "uid", uid, "error", err)
	}
}

// repairProfile recreates the profile document of an identity whose sign-up
// did not finish.
func (a *Accounts) repairProfile(ctx context.Context, id auth.Identity) (model.User, error) {
	name, _, _ := strings.Cut(id.Email, "@")
	u := model.User{ID: id.UID, Name: name, Email: id.Email, CreatedAt: a.now().UTC()}
	if _, err := a.users.Create(ctx, u); err != nil {
		return model.User{}, err
	}
	a.log.Info("recreated missing profile document", "uid", id.UID)
	return u, nil
}

func (a *Accounts) recordLogin(ctx context.Context) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.RecordLogin(ctx, a.now()); err != nil {
		a.log.Warn("recording login failed", "error", err)
	}
}

// LastLogin returns the most recent login recorded on this device. Ledger
// failures are logged and reported as no login.
func (a *Accounts) LastLogin(ctx context.Context) (time.Time, bool) {
	if a.ledger == nil {
		return time.Time{}, false
	}
	t, ok, err := a.ledger.MostRecentLogin(ctx)
	if err != nil {
		a.log.Warn("reading last login failed", "error", err)
		return time.Time{}, false
	}
	return t, ok
}

// SignOut ends the session.
func (a *Accounts) SignOut() {
	a.provider.SignOut()
}

// CurrentUser returns the signed-in user's profile.
func (a *Accounts) CurrentUser(ctx context.Context) (model.User, error) {
	id, err := session(a.provider, "account.current_user")
	if err != nil {
		return model.User{}, err
	}
	return a.users.FetchOne(ctx, id.UID)
}

// SendPasswordReset asks the identity provider to email a reset link.
func (a *Accounts) SendPasswordReset(ctx context.Context, email string) error {
	const op = "account.send_password_reset"
	email = strings.TrimSpace(email)
	if err := model.ValidateEmail(op, email); err != nil {
		return err
	}
	return apperr.Wrap(op, apperr.KindRemoteUnavailable, a.provider.SendPasswordReset(ctx, email))
}

// ProfileChange lists the profile fields to change. Empty fields are kept.
type ProfileChange struct {
	Name              string
	Email             string
	ProfilePictureURL string
	// Password is the current password. Required when Email changes.
	Password string
}

// UpdateProfile applies change to the signed-in user's profile. Changing the
// email runs reauthenticate, then the identity change, then the profile
// write; a failing step aborts the rest, so a rejected credential leaves both
// identity and profile untouched.
func (a *Accounts) UpdateProfile(ctx context.Context, change ProfileChange) (model.User, error) {
	const op = "account.update_profile"
	id, err := session(a.provider, op)
	if err != nil {
		return model.User{}, err
	}

	var current, updated model.User
	newEmail := strings.TrimSpace(change.Email)
	emailChanged := func() bool { return newEmail != "" && newEmail != current.Email }

	steps := []step{
		{"load", func(ctx context.Context) (err error) {
			current, err = a.users.FetchOne(ctx, id.UID)
			return err
		}},
		{"validate", func(context.Context) error {
			updated = current
			if n := strings.TrimSpace(change.Name); n != "" {
				updated.Name = n
			}
			if change.ProfilePictureURL != "" {
				updated.ProfilePictureURL = strings.TrimSpace(change.ProfilePictureURL)
			}
			if emailChanged() {
				updated.Email = newEmail
			}
			return model.Validate(op, updated)
		}},
		{"require_credential", func(context.Context) error {
			if emailChanged() && change.Password == "" {
				return apperr.Errorf(apperr.KindValidationFailed, op, "current password required to change email")
			}
			return nil
		}},
		{"reauthenticate", func(ctx context.Context) error {
			if !emailChanged() {
				return nil
			}
			return a.provider.Reauthenticate(ctx, auth.Credential{Email: id.Email, Password: change.Password})
		}},
		{"update_email", func(ctx context.Context) error {
			if !emailChanged() {
				return nil
			}
			return a.provider.UpdateEmail(ctx, newEmail)
		}},
		{"persist", func(ctx context.Context) error {
			return a.users.Update(ctx, updated)
		}},
	}
	if err := a.run(ctx, op, steps); err != nil {
		return model.User{}, err
	}
	return updated, nil
}

// DeleteAccount removes the signed-in account. When cred carries a password
// the account is reauthenticated first; a rejected credential aborts before
// anything is deleted and keeps the session.
//
// Otherwise the session always ends, whatever the outcome. When dependents
// purging is enabled the user's favorites and comments go first, then the
// profile document (already gone counts as done), then the identity. A
// failure after any step removed data is KindPartialDeletion. When only the
// identity is left the ledger marks the deletion unfinished, so [Accounts.SignIn]
// does not recreate the profile; running the flow again after signing in
// finishes the job.
func (a *Accounts) DeleteAccount(ctx context.Context, cred auth.Credential) error {
	const op = "account.delete"
	id, err := session(a.provider, op)
	if err != nil {
		return err
	}
	if cred.Password != "" {
		if cred.Email == "" {
			cred.Email = id.Email
		}
		if err := a.provider.Reauthenticate(ctx, cred); err != nil {
			return apperr.Wrap(op, apperr.KindUnauthenticated, err)
		}
	}
	defer a.provider.SignOut()

	committed := false
	var steps []step
	if a.purgeDependents {
		steps = append(steps,
			step{"purge_favorites", func(ctx context.Context) error {
				n, err := purge(ctx, a.favorites, id.UID)
				committed = committed || n > 0
				return err
			}},
			step{"purge_comments", func(ctx context.Context) error {
				n, err := purge(ctx, a.comments, id.UID)
				committed = committed || n > 0
				return err
			}},
		)
	}
	steps = append(steps,
		step{"delete_user", func(ctx context.Context) error {
			if err := a.users.Delete(ctx, id.UID); err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
			committed = true
			return nil
		}},
		step{"delete_identity", func(ctx context.Context) error {
			if err := a.provider.DeleteIdentity(ctx); err != nil {
				a.markDeletionPending(ctx, id.UID)
				return err
			}
			return nil
		}},
	)
	if err := a.run(ctx, op, steps); err != nil {
		if committed {
			return apperr.New(apperr.KindPartialDeletion, op, err)
		}
		return err
	}
	a.clearDeletionPending(ctx, id.UID)
	a.log.Info("account deleted", "uid", id.UID)
	return nil
}

// purge deletes every document of c owned by uid and returns how many it
// removed.
func purge[T any](ctx context.Context, c *Collection[T], uid string) (int, error) {
	docs, err := c.FetchAll(ctx, remote.Where("user_id", uid))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range docs {
		if err := c.Delete(ctx, c.schema.ID(d)); err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

// step is one stage of an account pipeline.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// run executes steps in order and stops at the first failure, which keeps its
// kind and is labelled with the failing step.
func (a *Accounts) run(ctx context.Context, op string, steps []step) (err error) {
	ctx, done := a.inst.start(ctx, "account", strings.TrimPrefix(op, "account."))
	defer func() { done(err) }()

	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			a.log.Debug("pipeline step failed", "op", op, "step", s.name, "error", err)
			return apperr.Wrap(op, apperr.KindRemoteUnavailable, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return nil
}
