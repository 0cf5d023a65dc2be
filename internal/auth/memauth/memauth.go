// Package memauth is an in-process [auth.Provider] with bcrypt-hashed
// passwords, used as the test double for the Identity Toolkit adapter.
package memauth

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/model"
)

// MinPasswordLength matches the Firebase password policy.
const MinPasswordLength = 6

type account struct {
	uid   string
	email string
	hash  []byte
}

// Provider keeps accounts in memory. It is safe for concurrent use.
type Provider struct {
	cost int

	mu       sync.Mutex
	accounts map[string]*account // keyed by lower-cased email
	session  *auth.Identity
	resets   []string
}

// New returns an empty Provider. cost is the bcrypt cost; values below
// bcrypt.MinCost are raised to it.
func New(cost int) *Provider {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	return &Provider{cost: cost, accounts: make(map[string]*account)}
}

func key(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (p *Provider) SignUp(_ context.Context, email, password string) (auth.Identity, error) {
	const op = "auth.sign_up"
	if err := model.ValidateEmail(op, email); err != nil {
		return auth.Identity{}, err
	}
	if len(password) < MinPasswordLength {
		return auth.Identity{}, apperr.Errorf(apperr.KindValidationFailed, op, "password shorter than %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return auth.Identity{}, apperr.New(apperr.KindValidationFailed, op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[key(email)]; exists {
		return auth.Identity{}, apperr.Errorf(apperr.KindValidationFailed, op, "email %q already registered", email)
	}
	acc := &account{uid: uuid.NewString(), email: strings.TrimSpace(email), hash: hash}
	p.accounts[key(email)] = acc
	id := auth.Identity{UID: acc.uid, Email: acc.email}
	p.session = &id
	return id, nil
}

func (p *Provider) SignIn(_ context.Context, email, password string) (auth.Identity, error) {
	const op = "auth.sign_in"
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, err := p.verifyLocked(op, email, password)
	if err != nil {
		return auth.Identity{}, err
	}
	id := auth.Identity{UID: acc.uid, Email: acc.email}
	p.session = &id
	return id, nil
}

func (p *Provider) Reauthenticate(_ context.Context, cred auth.Credential) error {
	const op = "auth.reauthenticate"
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "no session")
	}
	email := cred.Email
	if email == "" {
		email = p.session.Email
	}
	acc, err := p.verifyLocked(op, email, cred.Password)
	if err != nil {
		return err
	}
	if acc.uid != p.session.UID {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "credential belongs to another account")
	}
	return nil
}

func (p *Provider) UpdateEmail(_ context.Context, newEmail string) error {
	const op = "auth.update_email"
	if err := model.ValidateEmail(op, newEmail); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "no session")
	}
	acc, ok := p.accounts[key(p.session.Email)]
	if !ok {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "session account no longer exists")
	}
	if other, taken := p.accounts[key(newEmail)]; taken && other.uid != acc.uid {
		return apperr.Errorf(apperr.KindValidationFailed, op, "email %q already registered", newEmail)
	}
	delete(p.accounts, key(acc.email))
	acc.email = strings.TrimSpace(newEmail)
	p.accounts[key(acc.email)] = acc
	p.session.Email = acc.email
	return nil
}

func (p *Provider) DeleteIdentity(_ context.Context) error {
	const op = "auth.delete_identity"
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "no session")
	}
	delete(p.accounts, key(p.session.Email))
	p.session = nil
	return nil
}

func (p *Provider) SendPasswordReset(_ context.Context, email string) error {
	const op = "auth.send_password_reset"
	if err := model.ValidateEmail(op, email); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[key(email)]; !ok {
		return apperr.Errorf(apperr.KindNotFound, op, "no account for %q", email)
	}
	p.resets = append(p.resets, key(email))
	return nil
}

func (p *Provider) Current() (auth.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return auth.Identity{}, false
	}
	return *p.session, true
}

func (p *Provider) SignOut() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
}

// PasswordResets returns the addresses reset emails were sent to.
func (p *Provider) PasswordResets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.resets...)
}

func (p *Provider) verifyLocked(op, email, password string) (*account, error) {
	acc, ok := p.accounts[key(email)]
	if !ok {
		return nil, apperr.Errorf(apperr.KindUnauthenticated, op, "invalid login credentials")
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return nil, apperr.Errorf(apperr.KindUnauthenticated, op, "invalid login credentials")
	}
	return acc, nil
}

var _ auth.Provider = (*Provider)(nil)
