// Package identitytoolkit implements [auth.Provider] on the Firebase
// Identity Toolkit REST API (accounts:signInWithPassword, accounts:signUp,
// accounts:update, accounts:delete, accounts:sendOobCode).
//
// The session's ID token is held in memory only. Re-authentication signs in
// again with the supplied password, which also refreshes the token; a token
// that has expired is reported as apperr.KindUnauthenticated.
package identitytoolkit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/model"
)

// DefaultEndpoint is the production Identity Toolkit host.
const DefaultEndpoint = "https://identitytoolkit.googleapis.com"

// Config configures a Client.
type Config struct {
	// APIKey is the Firebase Web API key sent as the "key" query parameter.
	APIKey string
	// Endpoint overrides DefaultEndpoint, e.g. for the Auth emulator
	// ("http://localhost:9099/identitytoolkit.googleapis.com").
	Endpoint string
	// Timeout bounds each HTTP request. Zero means 10s.
	Timeout time.Duration
}

type session struct {
	uid     string
	email   string
	idToken string
}

// Client is an Identity Toolkit backed [auth.Provider]. It is safe for
// concurrent use.
type Client struct {
	http *resty.Client

	mu      sync.Mutex
	session *session
}

// New creates a Client. It returns an error when cfg.APIKey is empty.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("identity toolkit api key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetQueryParam("key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetLogger(restyLogger{logger})

	return &Client{http: hc}, nil
}

// --- wire types ---------------------------------------------------------------

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type updateRequest struct {
	IDToken           string `json:"idToken"`
	Email             string `json:"email"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type deleteRequest struct {
	IDToken string `json:"idToken"`
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- auth.Provider ------------------------------------------------------------

func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Identity, error) {
	const op = "auth.sign_in"
	var out tokenResponse
	if err := c.post(ctx, op, "/v1/accounts:signInWithPassword",
		passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &out); err != nil {
		return auth.Identity{}, err
	}
	return c.startSession(out), nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (auth.Identity, error) {
	const op = "auth.sign_up"
	if err := model.ValidateEmail(op, email); err != nil {
		return auth.Identity{}, err
	}
	var out tokenResponse
	if err := c.post(ctx, op, "/v1/accounts:signUp",
		passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &out); err != nil {
		return auth.Identity{}, err
	}
	return c.startSession(out), nil
}

func (c *Client) Reauthenticate(ctx context.Context, cred auth.Credential) error {
	const op = "auth.reauthenticate"
	cur, ok := c.current()
	if !ok {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "no session")
	}
	email := cred.Email
	if email == "" {
		email = cur.email
	}

	var out tokenResponse
	if err := c.post(ctx, op, "/v1/accounts:signInWithPassword",
		passwordRequest{Email: email, Password: cred.Password, ReturnSecureToken: true}, &out); err != nil {
		return err
	}
	if out.LocalID != cur.uid {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "credential belongs to another account")
	}
	c.startSession(out)
	return nil
}

func (c *Client) UpdateEmail(ctx context.Context, newEmail string) error {
	const op = "auth.update_email"
	if err := model.ValidateEmail(op, newEmail); err != nil {
		return err
	}
	cur, ok := c.current()
	if !ok {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "no session")
	}

	var out tokenResponse
	if err := c.post(ctx, op, "/v1/accounts:update",
		updateRequest{IDToken: cur.idToken, Email: newEmail, ReturnSecureToken: true}, &out); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.uid == cur.uid {
		c.session.email = newEmail
		if out.Email != "" {
			c.session.email = out.Email
		}
		if out.IDToken != "" {
			c.session.idToken = out.IDToken
		}
	}
	return nil
}

func (c *Client) DeleteIdentity(ctx context.Context) error {
	const op = "auth.delete_identity"
	cur, ok := c.current()
	if !ok {
		return apperr.Errorf(apperr.KindUnauthenticated, op, "no session")
	}
	if err := c.post(ctx, op, "/v1/accounts:delete", deleteRequest{IDToken: cur.idToken}, nil); err != nil {
		return err
	}
	c.SignOut()
	return nil
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	const op = "auth.send_password_reset"
	if err := model.ValidateEmail(op, email); err != nil {
		return err
	}
	return c.post(ctx, op, "/v1/accounts:sendOobCode",
		oobRequest{RequestType: "PASSWORD_RESET", Email: email}, nil)
}

func (c *Client) Current() (auth.Identity, bool) {
	s, ok := c.current()
	if !ok {
		return auth.Identity{}, false
	}
	return auth.Identity{UID: s.uid, Email: s.email}, true
}

func (c *Client) SignOut() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// --- helpers ------------------------------------------------------------------

func (c *Client) current() (session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return session{}, false
	}
	return *c.session, true
}

func (c *Client) startSession(out tokenResponse) auth.Identity {
	c.mu.Lock()
	c.session = &session{uid: out.LocalID, email: out.Email, idToken: out.IDToken}
	c.mu.Unlock()
	return auth.Identity{UID: out.LocalID, Email: out.Email}
}

// post sends body as JSON to path and decodes a successful response into out
// (when non-nil).
func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	var apiErr errorResponse
	req := c.http.R().SetContext(ctx).SetBody(body).SetError(&apiErr)
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Post(path)
	if err != nil {
		return apperr.New(apperr.KindRemoteUnavailable, op, err)
	}
	if resp.IsError() {
		return mapAPIError(op, resp.StatusCode(), apiErr.Error.Message)
	}
	return nil
}

// mapAPIError classifies an Identity Toolkit error. The message has the form
// "CODE" or "CODE : detail".
func mapAPIError(op string, status int, message string) error {
	code, _, _ := strings.Cut(message, ":")
	code = strings.TrimSpace(code)

	switch code {
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED",
		"INVALID_ID_TOKEN", "TOKEN_EXPIRED", "CREDENTIAL_TOO_OLD_LOGIN_AGAIN",
		"USER_MISMATCH":
		return apperr.Errorf(apperr.KindUnauthenticated, op, "%s", message)
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return apperr.Errorf(apperr.KindNotFound, op, "%s", message)
	case "EMAIL_EXISTS", "INVALID_EMAIL", "WEAK_PASSWORD", "MISSING_PASSWORD", "MISSING_EMAIL":
		return apperr.Errorf(apperr.KindValidationFailed, op, "%s", message)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Errorf(apperr.KindUnauthenticated, op, "status %d: %s", status, message)
	case status == http.StatusBadRequest:
		return apperr.Errorf(apperr.KindValidationFailed, op, "status %d: %s", status, message)
	default:
		return apperr.Errorf(apperr.KindRemoteUnavailable, op, "status %d: %s", status, message)
	}
}

// restyLogger routes resty's internal logging to slog.
type restyLogger struct{ log *slog.Logger }

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }

var _ auth.Provider = (*Client)(nil)
