package session

import (
	"context"
	"errors"

	"minerva/internal/audit"
	"minerva/internal/session/store"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/requestcontext"
)

// Logout ends the wallet session (LogoutWallet) or the whole session
// (LogoutFull). Remote logout is best effort; local teardown always runs.
// Logout never waits for an in-flight operation: a link still pending is
// refused when it completes.
func (s *Service) Logout(ctx context.Context, logoutType LogoutType) error {
	switch logoutType {
	case LogoutWallet, LogoutFull:
	default:
		return dErrors.Validation(map[string]string{"type": "logout type must be wallet or full"})
	}
	if logoutType == LogoutWallet {
		return s.logoutWallet(ctx)
	}
	return s.logoutFull(ctx, "user_requested")
}

// Expire performs a full logout for a session whose lifetime has ended. It
// does not wait for an in-flight operation.
func (s *Service) Expire(ctx context.Context) error {
	s.metrics.IncExpiration()
	s.logAudit(ctx, audit.EventSessionExpired, "email", s.currentEmail(), "reason", "lifetime_elapsed")
	return s.logoutFull(ctx, "expired")
}

func (s *Service) logoutWallet(ctx context.Context) error {
	s.mu.RLock()
	refreshToken := s.expiry.RefreshToken
	ws := s.walletSession
	s.mu.RUnlock()

	s.remoteLogout(ctx, LogoutWallet, refreshToken)

	s.mu.Lock()
	s.abandonLinkLocked()
	err := s.teardownWalletLocked(ctx)
	s.mu.Unlock()

	s.disconnectCapability(ctx)
	if err != nil {
		return storeError(err, "failed to clear wallet session")
	}

	s.metrics.IncLogout(string(LogoutWallet))
	attributes := []any{"reason", "user_requested"}
	if ws != nil {
		attributes = append(attributes, "email", ws.LinkedKycEmail, "wallet_address", ws.WalletAddress)
	}
	s.logAudit(ctx, audit.EventWalletLogout, attributes...)
	return nil
}

// logoutFull destroys both identities, clears every session key and every
// wallet-adapter key, then marks the explicit logout.
func (s *Service) logoutFull(ctx context.Context, reason string) error {
	s.mu.RLock()
	refreshToken := s.expiry.RefreshToken
	s.mu.RUnlock()
	emailAddr := s.currentEmail()

	if refreshToken != "" {
		s.remoteLogout(ctx, LogoutFull, refreshToken)
	}
	s.disconnectCapability(ctx)

	now := requestcontext.Now(ctx)

	s.mu.Lock()
	s.abandonLinkLocked()
	s.identity = nil
	s.walletSession = nil
	s.expiry = SessionExpiry{}
	s.selected = nil
	s.emailVerified = false
	s.stopGraceLocked()
	s.syncBearerLocked()

	errs := []error{s.deleteKeys(ctx, store.Namespace...)}
	keys, err := s.store.Keys(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, k := range keys {
		if store.IsAdapterKey(string(k)) {
			errs = append(errs, s.store.Delete(ctx, k))
		}
	}

	errs = append(errs,
		s.store.Set(ctx, store.KeyLoggedOut, flagTrue),
		s.store.Set(ctx, store.KeyLogoutTimestamp, formatMillis(now)),
	)
	s.flags = IntentFlags{ExplicitlyLoggedOut: true, LogoutTimestamp: now}
	s.mu.Unlock()

	s.metrics.IncLogout(string(LogoutFull))
	s.logAudit(ctx, audit.EventFullLogout, "email", emailAddr, "reason", reason)

	if err := errors.Join(errs...); err != nil {
		return storeError(err, "failed to clear persisted session")
	}
	return nil
}

func (s *Service) remoteLogout(ctx context.Context, logoutType LogoutType, refreshToken string) {
	if err := s.kyc.Logout(ctx, logoutType, refreshToken); err != nil {
		s.logger.DebugContext(ctx, "remote logout failed", "type", string(logoutType), "error", err)
	}
}

// CancelConnection records that the user dismissed the signature prompt: the
// wallet half is cleared, the capability disconnected and auto-prompting
// suppressed until the next manual connect.
func (s *Service) CancelConnection(ctx context.Context) error {
	s.mu.Lock()
	s.abandonLinkLocked()
	err := s.teardownWalletLocked(ctx)
	if err == nil {
		err = s.store.Delete(ctx, store.KeySelectedWallet)
	}
	if err == nil {
		err = s.store.Set(ctx, store.KeyWalletCancelled, flagTrue)
	}
	s.selected = nil
	s.flags.UserCancelledConnection = true
	s.mu.Unlock()

	s.disconnectCapability(ctx)
	if err != nil {
		return storeError(err, "failed to record cancelled connection")
	}
	s.logAudit(ctx, audit.EventConnectionCancelled, "email", s.currentEmail())
	return nil
}

// BeginManualConnect clears every prompt-suppression flag and remembers the
// connector the user picked.
func (s *Service) BeginManualConnect(ctx context.Context, selected SelectedWallet) error {
	if selected.ID == "" {
		return dErrors.Validation(map[string]string{"id": "wallet id is required"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteKeys(ctx, store.KeyWalletCancelled, store.KeyLoggedOut, store.KeyLogoutTimestamp); err != nil {
		return storeError(err, "failed to clear connection flags")
	}
	if err := s.putJSON(ctx, store.KeySelectedWallet, selected); err != nil {
		return storeError(err, "failed to persist selected wallet")
	}
	s.flags = IntentFlags{}
	sel := selected
	s.selected = &sel
	return nil
}

func (s *Service) currentEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.Email
}
