package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/internal/siwe"
	"github.com/layer-3/promox/ports"
)

// Credentials are whatever proof of wallet control a request carries
type Credentials struct {
	SessionToken string

	Signature string
	Message   string
	Address   string
}

// HasSession reports whether a session token is present
func (c Credentials) HasSession() bool {
	return c.SessionToken != ""
}

// HasSignedMessage reports whether all signed-header fields are present
func (c Credentials) HasSignedMessage() bool {
	return c.Signature != "" && c.Message != "" && c.Address != ""
}

// Authenticator resolves credentials to a lowercased wallet address
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// SessionAuthenticator accepts session tokens issued by AuthService
type SessionAuthenticator struct {
	auth *AuthService
}

// NewSessionAuthenticator creates a token-based authenticator
func NewSessionAuthenticator(auth *AuthService) *SessionAuthenticator {
	return &SessionAuthenticator{auth: auth}
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if !creds.HasSession() {
		return "", core.ErrUnauthenticated
	}

	session, err := a.auth.Check(ctx, creds.SessionToken)
	if err != nil {
		return "", err
	}

	return session.Address, nil
}

// SignedMessageAuthenticator accepts a freshly signed message presented with
// every request. It does not consult the nonce store, so a captured
// message and signature pair stays usable until it ages out.
type SignedMessageAuthenticator struct {
	verifier ports.SignatureVerifier
	maxAge   time.Duration
	skew     time.Duration
	now      func() time.Time
}

// NewSignedMessageAuthenticator creates a header-based authenticator.
// Messages older than maxAge are rejected.
func NewSignedMessageAuthenticator(verifier ports.SignatureVerifier, maxAge time.Duration) *SignedMessageAuthenticator {
	if maxAge == 0 {
		maxAge = 7 * 24 * time.Hour
	}

	return &SignedMessageAuthenticator{
		verifier: verifier,
		maxAge:   maxAge,
		skew:     5 * time.Minute,
		now:      time.Now,
	}
}

func (a *SignedMessageAuthenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if !creds.HasSignedMessage() {
		return "", core.ErrUnauthenticated
	}

	ts, err := siwe.Timestamp(creds.Message)
	if err != nil {
		return "", err
	}
	if err := checkFreshness(ts, a.now(), a.maxAge, a.skew); err != nil {
		return "", err
	}

	if err := verifySignature(ctx, a.verifier, creds.Address, creds.Message, creds.Signature); err != nil {
		return "", err
	}

	return strings.ToLower(creds.Address), nil
}

// ChainAuthenticator picks the session authenticator when a token is
// present and falls back to signed headers otherwise
type ChainAuthenticator struct {
	session Authenticator
	signed  Authenticator
}

// NewAuthenticator combines the two authentication schemes
func NewAuthenticator(session, signed Authenticator) *ChainAuthenticator {
	return &ChainAuthenticator{session: session, signed: signed}
}

func (a *ChainAuthenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	switch {
	case creds.HasSession():
		return a.session.Authenticate(ctx, creds)
	case creds.HasSignedMessage() && a.signed != nil:
		return a.signed.Authenticate(ctx, creds)
	default:
		return "", core.ErrUnauthenticated
	}
}

func verifySignature(ctx context.Context, verifier ports.SignatureVerifier, address, message, signature string) error {
	ok, err := verifier.VerifyMessage(ctx, address, message, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUpstreamVerification, err)
	}
	if !ok {
		return core.ErrInvalidSignature
	}
	return nil
}

func checkFreshness(ts, now time.Time, maxAge, skew time.Duration) error {
	if now.Sub(ts) > maxAge {
		return fmt.Errorf("signed %s ago: %w", now.Sub(ts).Round(time.Second), core.ErrMessageExpired)
	}
	if ts.Sub(now) > skew {
		return fmt.Errorf("timestamp in the future: %w", core.ErrMessageExpired)
	}
	return nil
}
