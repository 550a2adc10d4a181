package session

import (
	"context"

	"minerva/internal/audit"
	"minerva/internal/session/store"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/requestcontext"
)

// Refresh exchanges the refresh token for a new token set. Concurrent calls
// share one network exchange. Any failure, including having no refresh token,
// ends the session with a full logout and returns CodeExpiredSession. A guest
// has nothing to refresh, and an exchange that finishes after the session was
// replaced is dropped; both return CodeExpiredSession and leave state as is.
func (s *Service) Refresh(ctx context.Context) error {
	_, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *Service) refresh(ctx context.Context) error {
	s.mu.RLock()
	if s.identity == nil {
		s.mu.RUnlock()
		return dErrors.New(dErrors.CodeExpiredSession, "no session to refresh")
	}
	captured := *s.identity
	refreshToken := s.expiry.RefreshToken
	s.mu.RUnlock()
	emailAddr := captured.Email

	res, err := s.kyc.Refresh(ctx, refreshToken)
	if err != nil {
		s.mu.RLock()
		superseded := s.supersededLocked(captured, refreshToken)
		s.mu.RUnlock()
		if superseded {
			return s.refreshDiscarded(ctx, emailAddr)
		}
		return s.refreshFailed(ctx, err, emailAddr)
	}

	now := requestcontext.Now(ctx)
	expiresAt := tokenExpiry(now, res.ExpiresIn, res.AccessToken)
	newRefresh := res.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	s.mu.Lock()
	if s.supersededLocked(captured, refreshToken) {
		s.mu.Unlock()
		return s.refreshDiscarded(ctx, emailAddr)
	}
	err = s.setOrDelete(ctx, store.KeyRefreshToken, newRefresh)
	if err == nil {
		err = s.setOrDelete(ctx, store.KeySessionExpires, formatTime(expiresAt))
	}
	if err == nil {
		err = s.store.Set(ctx, store.KeyKycToken, res.AccessToken)
	}
	if err != nil {
		s.mu.Unlock()
		return s.refreshFailed(ctx, storeError(err, "failed to persist refreshed tokens"), emailAddr)
	}
	s.expiry = SessionExpiry{AccessToken: res.AccessToken, RefreshToken: newRefresh, ExpiresAt: expiresAt}
	s.syncBearerLocked()
	s.mu.Unlock()

	s.metrics.IncRefresh("ok")
	s.logAudit(ctx, audit.EventSessionRefreshed, "email", emailAddr)
	return nil
}

// supersededLocked reports whether the session a refresh started from has
// since ended, switched identity or been issued a different refresh token.
func (s *Service) supersededLocked(captured KycIdentity, refreshToken string) bool {
	return s.identity == nil || !sameIdentity(*s.identity, captured) || s.expiry.RefreshToken != refreshToken
}

func (s *Service) refreshDiscarded(ctx context.Context, emailAddr string) error {
	s.metrics.IncRefresh("discarded")
	s.logger.InfoContext(ctx, "refresh result discarded, session changed during exchange", "email", emailAddr)
	return dErrors.New(dErrors.CodeExpiredSession, "session changed during refresh")
}

func (s *Service) refreshFailed(ctx context.Context, cause error, emailAddr string) error {
	s.metrics.IncRefresh("failed")
	s.logAudit(ctx, audit.EventRefreshFailed, "email", emailAddr, "reason", string(dErrors.CodeOf(cause)))
	if err := s.logoutFull(ctx, "refresh_failed"); err != nil {
		s.logger.ErrorContext(ctx, "logout after failed refresh incomplete", "error", err)
	}
	if dErrors.HasCode(cause, dErrors.CodeExpiredSession) {
		return cause
	}
	return dErrors.Wrap(cause, dErrors.CodeExpiredSession, "session expired")
}
