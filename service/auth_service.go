package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/internal/siwe"
	"github.com/layer-3/promox/ports"
)

// AuthConfig holds the sign-in parameters
type AuthConfig struct {
	// Domain is the host sign-in messages must name. Empty means the request host.
	Domain     string
	NonceTTL   time.Duration
	SessionTTL time.Duration
}

// AuthService handles wallet sign-in and session checks
type AuthService struct {
	tokenizer   ports.Tokenizer
	nonces      ports.NonceStore
	revocations ports.RevocationStore
	verifier    ports.SignatureVerifier
	eventPub    ports.EventPublisher
	logger      *slog.Logger

	domain     string
	nonceTTL   time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	cfg AuthConfig,
	tokenizer ports.Tokenizer,
	nonces ports.NonceStore,
	revocations ports.RevocationStore,
	verifier ports.SignatureVerifier,
	eventPub ports.EventPublisher,
	logger *slog.Logger,
) *AuthService {
	if cfg.NonceTTL == 0 {
		cfg.NonceTTL = 5 * time.Minute
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}

	return &AuthService{
		tokenizer:   tokenizer,
		nonces:      nonces,
		revocations: revocations,
		verifier:    verifier,
		eventPub:    eventPub,
		logger:      logger,
		domain:      cfg.Domain,
		nonceTTL:    cfg.NonceTTL,
		sessionTTL:  cfg.SessionTTL,
		now:         time.Now,
	}
}

// SessionTTL is the lifetime of issued sessions
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// NonceTTL is the lifetime of issued nonces
func (s *AuthService) NonceTTL() time.Duration {
	return s.nonceTTL
}

// IssueNonce generates a sign-in nonce and stores it under a fresh binding
func (s *AuthService) IssueNonce(ctx context.Context) (*core.Challenge, error) {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	challenge := &core.Challenge{
		Nonce:     hex.EncodeToString(nonceBytes),
		Binding:   uuid.New().String(),
		ExpiresAt: s.now().Add(s.nonceTTL),
	}

	if err := s.nonces.PutNonce(ctx, challenge.Binding, challenge.Nonce, s.nonceTTL); err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}

	return challenge, nil
}

// VerifyRequest is a signed sign-in attempt
type VerifyRequest struct {
	Message   string
	Signature string
	Binding   string // from the nonce cookie
	Host      string // request host, used when no domain is configured
}

// Verify checks a signed sign-in message and issues a session token.
// The stored nonce is consumed whatever the outcome.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (*core.Session, string, error) {
	stored, takeErr := "", core.ErrNonceInvalidOrExpired
	if req.Binding != "" {
		stored, takeErr = s.nonces.TakeNonce(ctx, req.Binding)
	}

	msg, err := siwe.Parse(req.Message)
	if err != nil {
		return nil, "", err
	}

	if takeErr != nil {
		if !errors.Is(takeErr, core.ErrNonceInvalidOrExpired) {
			return nil, "", fmt.Errorf("failed to take nonce: %w", takeErr)
		}
		return nil, "", core.ErrNonceInvalidOrExpired
	}
	if stored != msg.Nonce {
		return nil, "", core.ErrNonceInvalidOrExpired
	}

	expected := s.domain
	if expected == "" {
		expected = req.Host
	}
	if !strings.EqualFold(msg.Domain, expected) {
		s.logger.WarnContext(ctx, "sign-in domain mismatch", "domain", msg.Domain, "expected", expected)
		return nil, "", core.ErrDomainMismatch
	}

	if err := msg.CheckTime(s.now()); err != nil {
		return nil, "", err
	}

	address := msg.Address.Hex()
	if err := verifySignature(ctx, s.verifier, address, req.Message, req.Signature); err != nil {
		return nil, "", err
	}

	now := s.now()
	session := &core.Session{
		ID:        uuid.New().String(),
		Address:   strings.ToLower(address),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session token: %w", err)
	}

	return session, token, nil
}

// Check validates a session token and returns its session
func (s *AuthService) Check(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, err
	}

	if s.revocations != nil && session.ID != "" {
		revoked, err := s.revocations.IsSessionRevoked(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check session revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("session revoked: %w", core.ErrUnauthenticated)
		}
	}

	return session, nil
}

// Logout revokes a session for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return err
	}

	if s.revocations == nil || session.ID == "" {
		return nil
	}

	remaining := session.ExpiresAt.Sub(s.now())
	if remaining < time.Minute {
		remaining = time.Minute
	}

	if err := s.revocations.RevokeSession(ctx, session.ID, remaining); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if err := s.eventPub.PublishLogout(ctx, session.Address, session.ID); err != nil {
		// The revocation is already stored
		s.logger.WarnContext(ctx, "failed to publish logout event", "error", err)
	}

	return nil
}
