package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	"minerva/internal/session/store"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/email"
	"minerva/pkg/requestcontext"
)

// Register creates a KYC identity and installs it.
func (s *Service) Register(ctx context.Context, req kyc.RegisterRequest) (*KycIdentity, error) {
	if err := s.begin("register"); err != nil {
		return nil, err
	}
	defer s.end()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := s.kyc.Register(ctx, req)
	if err != nil {
		s.logger.InfoContext(ctx, "kyc registration failed", "email", req.Email, "code", string(dErrors.CodeOf(err)))
		return nil, err
	}
	return s.installKyc(ctx, res)
}

// Login authenticates a KYC identity and installs it.
func (s *Service) Login(ctx context.Context, req kyc.LoginRequest) (*KycIdentity, error) {
	if err := s.begin("login"); err != nil {
		return nil, err
	}
	defer s.end()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := s.kyc.Login(ctx, req)
	if err != nil {
		s.logger.InfoContext(ctx, "kyc login failed", "email", req.Email, "code", string(dErrors.CodeOf(err)))
		return nil, err
	}
	return s.installKyc(ctx, res)
}

// SetKycAuth installs a KYC token and profile obtained elsewhere.
func (s *Service) SetKycAuth(ctx context.Context, token string, user identity.User) (*KycIdentity, error) {
	return s.installKyc(ctx, &identity.AuthResult{Token: token, User: user})
}

// installKyc installs res as the current KYC identity. When it replaces a
// different identity the wallet half is torn down first and the capability is
// disconnected.
func (s *Service) installKyc(ctx context.Context, res *identity.AuthResult) (*KycIdentity, error) {
	if res == nil || res.Token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "kyc token is required")
	}
	user := KycIdentity(res.User)
	user.Email = email.Normalize(user.Email)
	if user.Email == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "kyc user email is required")
	}
	now := requestcontext.Now(ctx)
	expiresAt := tokenExpiry(now, res.ExpiresIn, res.Token)

	s.mu.Lock()
	previous := s.identity
	switched := previous != nil && !sameIdentity(*previous, user)
	if switched {
		s.abandonLinkLocked()
		if err := s.teardownWalletLocked(ctx); err != nil {
			s.mu.Unlock()
			return nil, storeError(err, "failed to clear previous wallet session")
		}
		if err := s.deleteKeys(ctx, store.KeySelectedWallet, store.KeyWalletCancelled); err != nil {
			s.mu.Unlock()
			return nil, storeError(err, "failed to clear previous wallet state")
		}
		s.selected = nil
		s.flags.UserCancelledConnection = false
	}

	refreshToken := res.RefreshToken
	if refreshToken == "" && !switched {
		refreshToken = s.expiry.RefreshToken
	}
	if expiresAt.IsZero() && !switched && previous != nil {
		expiresAt = s.expiry.ExpiresAt
	}

	err := s.putJSON(ctx, store.KeyKycUser, user)
	if err == nil {
		err = s.setOrDelete(ctx, store.KeyRefreshToken, refreshToken)
	}
	if err == nil {
		err = s.setOrDelete(ctx, store.KeySessionExpires, formatTime(expiresAt))
	}
	if err == nil {
		err = s.store.Set(ctx, store.KeyKycToken, res.Token)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, storeError(err, "failed to persist kyc session")
	}

	installed := user
	s.identity = &installed
	s.expiry = SessionExpiry{AccessToken: res.Token, RefreshToken: refreshToken, ExpiresAt: expiresAt}
	s.emailVerified = user.EmailVerified
	s.syncBearerLocked()
	s.mu.Unlock()

	if switched {
		s.disconnectCapability(ctx)
		s.logAudit(ctx, audit.EventIdentitySwitched,
			"email", user.Email,
			"previous_email", previous.Email,
			"reason", "identity_changed",
		)
	}
	s.metrics.IncKycInstalled(switched)
	s.logAudit(ctx, audit.EventKycInstalled, "email", user.Email)

	out := user
	return &out, nil
}

// tokenExpiry prefers the server's expiresIn and falls back to the token's own
// exp claim. The token is not verified; the authority did that.
func tokenExpiry(now time.Time, expiresIn int64, token string) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
