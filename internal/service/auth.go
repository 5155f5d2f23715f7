package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/ratelimit"
	"github.com/efreitasn/minibroker/internal/security"
	"github.com/efreitasn/minibroker/internal/store"
)

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token      string
	ExpiresAt  time.Time
	Username   string
	CustomerID string
	Role       domain.Role
}

// AuthService exchanges credentials for bearer tokens and resolves tokens
// back into callers.
type AuthService struct {
	store   store.Store
	limiter ratelimit.Limiter
	secret  []byte
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	verify    func(password, encoded string) (bool, error)
	dummyHash func() string
}

// NewAuthService creates a new AuthService. limiter may be nil to disable
// login throttling.
func NewAuthService(s store.Store, limiter ratelimit.Limiter, secret string, ttl time.Duration, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:   s,
		limiter: limiter,
		secret:  []byte(secret),
		ttl:     ttl,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		verify:  security.VerifyPassword,
		// Unknown usernames are verified against this hash so they cost the
		// same argon2 work as a wrong password.
		dummyHash: sync.OnceValue(func() string {
			h, _ := security.HashPassword("minibroker-unknown-user", security.DefaultArgon2Params)
			return h
		}),
	}
}

// Login verifies the credentials and issues a token. Attempts are throttled
// per clientKey. An unknown username and a wrong password are reported the
// same way.
func (s *AuthService) Login(ctx context.Context, username, password, clientKey string) (*LoginResult, error) {
	now := s.now()
	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, clientKey, now)
		if err != nil {
			return nil, fmt.Errorf("login rate limit: %w", err)
		}
		if !allowed {
			return nil, &domain.RateLimitError{RetryAfter: retryAfter}
		}
	}

	c, err := s.store.GetCustomerByUsername(ctx, username)
	if errors.Is(err, domain.ErrCustomerNotFound) {
		_, _ = s.verify(password, s.dummyHash())
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.verify(password, c.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable",
			slog.String("customer_id", c.CustomerID),
			slog.String("error", err.Error()),
		)
		return nil, domain.ErrInvalidCredentials
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	token, expires, err := security.IssueToken(c, s.secret, s.ttl, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:      token,
		ExpiresAt:  expires,
		Username:   c.Username,
		CustomerID: c.CustomerID,
		Role:       c.Role,
	}, nil
}

// Authenticate resolves a bearer token into the caller it was issued to.
func (s *AuthService) Authenticate(token string) (Caller, error) {
	claims, err := security.ParseToken(token, s.secret)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
	}
	return Caller{CustomerID: claims.CustomerID, IsAdmin: claims.IsAdmin()}, nil
}
