// Package auth defines the identity provider boundary consumed by the sync
// repository. [identitytoolkit] implements it against the Firebase Identity
// Toolkit REST API; [memauth] keeps accounts in process.
//
// A Provider holds at most one signed-in session. Failures are reported as
// *apperr.Error: rejected credentials and missing sessions are
// apperr.KindUnauthenticated, malformed input is apperr.KindValidationFailed,
// transport failures are apperr.KindRemoteUnavailable.
package auth

import "context"

// Identity is the stable identity of a signed-in account.
type Identity struct {
	UID   string
	Email string
}

// Credential is what a user supplies to prove who they are.
type Credential struct {
	Email    string
	Password string
}

// Provider issues identities and verifies credentials.
type Provider interface {
	// SignIn verifies the credential and starts a session.
	SignIn(ctx context.Context, email, password string) (Identity, error)
	// SignUp creates an account and starts a session for it.
	SignUp(ctx context.Context, email, password string) (Identity, error)
	// Reauthenticate re-verifies the signed-in account with cred. It fails
	// with KindUnauthenticated when there is no session or cred does not
	// belong to the session's account.
	Reauthenticate(ctx context.Context, cred Credential) error
	// UpdateEmail changes the signed-in account's email.
	UpdateEmail(ctx context.Context, newEmail string) error
	// DeleteIdentity deletes the signed-in account and ends the session.
	DeleteIdentity(ctx context.Context) error
	// SendPasswordReset asks the provider to email a reset link.
	SendPasswordReset(ctx context.Context, email string) error
	// Current returns the signed-in identity, if any.
	Current() (Identity, bool)
	// SignOut ends the session. It never fails.
	SignOut()
}
