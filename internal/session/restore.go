package session

import (
	"context"
	"errors"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/session/store"
	"minerva/pkg/email"
	"minerva/pkg/platform/sentinel"
)

// Restore rebuilds in-memory state from the store. A half is restored only
// when both its token and profile parse; unparseable values are deleted along
// with their paired token. A wallet half that does not belong to the restored
// KYC identity is discarded.
func (s *Service) Restore(ctx context.Context) error {
	address, connected := s.capability.Address(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailVerified = false

	kycIdentity, kycToken, err := s.restoreKycLocked(ctx)
	if err != nil {
		return storeError(err, "failed to restore kyc session")
	}
	ws, err := s.restoreWalletLocked(ctx, kycIdentity)
	if err != nil {
		return storeError(err, "failed to restore wallet session")
	}
	expiry, err := s.restoreExpiryLocked(ctx, kycToken)
	if err != nil {
		return storeError(err, "failed to restore session expiry")
	}
	flags, selected, err := s.restoreFlagsLocked(ctx)
	if err != nil {
		return storeError(err, "failed to restore connection flags")
	}

	s.identity = kycIdentity
	s.walletSession = ws
	s.expiry = expiry
	s.flags = flags
	s.selected = selected
	if connected {
		s.observed = address
	}
	s.syncBearerLocked()

	if err := s.evaluateLocked(ctx); err != nil {
		return err
	}
	if s.identity != nil {
		s.logAudit(ctx, audit.EventSessionRestored,
			"email", s.identity.Email,
			"wallet_address", walletAddressOf(s.walletSession),
		)
	}
	return nil
}

func (s *Service) restoreKycLocked(ctx context.Context) (*KycIdentity, string, error) {
	token, err := s.getString(ctx, store.KeyKycToken)
	if err != nil {
		return nil, "", err
	}
	var user KycIdentity
	err = s.getJSON(ctx, store.KeyKycUser, &user)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if token != "" {
			return nil, "", s.store.Delete(ctx, store.KeyKycToken)
		}
		return nil, "", nil
	case err != nil:
		return nil, "", err
	}
	if token == "" {
		// A profile without a token only tells us the email was verified.
		s.emailVerified = user.EmailVerified
		return nil, "", nil
	}
	user.Email = email.Normalize(user.Email)
	s.emailVerified = user.EmailVerified
	return &user, token, nil
}

func (s *Service) restoreWalletLocked(ctx context.Context, kycIdentity *KycIdentity) (*WalletSession, error) {
	token, err := s.getString(ctx, store.KeyWalletToken)
	if err != nil {
		return nil, err
	}
	var user identity.User
	err = s.getJSON(ctx, store.KeyWalletUser, &user)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if token != "" {
			return nil, s.store.Delete(ctx, store.KeyWalletToken)
		}
		return nil, nil
	case err != nil:
		return nil, err
	}
	if token == "" || kycIdentity == nil || user.WalletPubkey == "" || !email.Equal(user.Email, kycIdentity.Email) {
		return nil, s.deleteKeys(ctx, store.KeyWalletToken, store.KeyWalletUser)
	}
	return &WalletSession{
		WalletAddress:  user.WalletPubkey,
		AccessToken:    token,
		User:           user,
		LinkedKycEmail: email.Normalize(user.Email),
	}, nil
}

func (s *Service) restoreExpiryLocked(ctx context.Context, kycToken string) (SessionExpiry, error) {
	if kycToken == "" {
		return SessionExpiry{}, nil
	}
	refreshToken, err := s.getString(ctx, store.KeyRefreshToken)
	if err != nil {
		return SessionExpiry{}, err
	}
	expiry := SessionExpiry{AccessToken: kycToken, RefreshToken: refreshToken}
	raw, err := s.getString(ctx, store.KeySessionExpires)
	if err != nil {
		return SessionExpiry{}, err
	}
	if raw != "" {
		t, perr := parseTime(raw)
		if perr != nil {
			s.logger.WarnContext(ctx, "discarding unparseable session expiry", "error", perr)
			return expiry, s.store.Delete(ctx, store.KeySessionExpires)
		}
		expiry.ExpiresAt = t
	}
	return expiry, nil
}

func (s *Service) restoreFlagsLocked(ctx context.Context) (IntentFlags, *SelectedWallet, error) {
	var flags IntentFlags
	cancelled, err := s.getString(ctx, store.KeyWalletCancelled)
	if err != nil {
		return flags, nil, err
	}
	loggedOut, err := s.getString(ctx, store.KeyLoggedOut)
	if err != nil {
		return flags, nil, err
	}
	ts, err := s.getString(ctx, store.KeyLogoutTimestamp)
	if err != nil {
		return flags, nil, err
	}
	flags.UserCancelledConnection = cancelled == flagTrue
	flags.ExplicitlyLoggedOut = loggedOut == flagTrue
	if ts != "" {
		t, perr := parseMillis(ts)
		if perr != nil {
			if err := s.store.Delete(ctx, store.KeyLogoutTimestamp); err != nil {
				return flags, nil, err
			}
		} else {
			flags.LogoutTimestamp = t
		}
	}

	var selected SelectedWallet
	err = s.getJSON(ctx, store.KeySelectedWallet, &selected)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return flags, nil, nil
	case err != nil:
		return flags, nil, err
	}
	return flags, &selected, nil
}

func walletAddressOf(ws *WalletSession) string {
	if ws == nil {
		return ""
	}
	return ws.WalletAddress
}
