package session

import (
	"context"

	"minerva/pkg/requestcontext"
)

// SessionInfo returns a snapshot of the merged session.
func (s *Service) SessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kycPresent := s.identity != nil && s.expiry.AccessToken != ""
	walletPresent := s.walletSession != nil && s.walletSession.AccessToken != ""
	emailVerified := s.emailVerified
	if s.identity != nil {
		emailVerified = s.identity.EmailVerified
	}

	info := SessionInfo{
		IsKycAuthenticated:      kycPresent,
		IsWalletConnected:       walletPresent,
		IsEmailVerified:         emailVerified,
		AccessLevel:             accessLevel(kycPresent, walletPresent, emailVerified),
		WalletConnectedUnlinked: kycPresent && !walletPresent && s.observed != "",
	}
	if kycPresent {
		info.Email = s.identity.Email
		if !s.expiry.ExpiresAt.IsZero() {
			t := s.expiry.ExpiresAt
			info.SessionExpiresAt = &t
		}
	}
	if walletPresent {
		info.WalletAddress = s.walletSession.WalletAddress
	}
	return info
}

// State reports the current node of the linking state machine.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.identity == nil:
		return StateGuest
	case s.walletSession != nil:
		return StateFullyLinked
	case s.relinkPending && s.observed != "":
		return StateRelinking
	case s.observed != "":
		return StateWalletConnectedUnlinked
	default:
		return StateKycOnly
	}
}

// Identity returns a copy of the installed KYC identity, or nil.
func (s *Service) Identity() *KycIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	out := *s.identity
	return &out
}

// WalletSession returns a copy of the wallet session, or nil.
func (s *Service) WalletSession() *WalletSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.walletSession == nil {
		return nil
	}
	out := *s.walletSession
	return &out
}

// Flags returns the prompt-suppression flags.
func (s *Service) Flags() IntentFlags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// SelectedWallet returns the remembered connector, or nil.
func (s *Service) SelectedWallet() *SelectedWallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return nil
	}
	out := *s.selected
	return &out
}

// CheckKycStatus reports whether the wallet user's KYC is verified. SkipKYC
// makes it always true.
func (s *Service) CheckKycStatus() bool {
	if s.skipKYC {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.walletSession == nil || s.walletSession.User.KYC == nil {
		return false
	}
	return s.walletSession.User.KYC.IsVerified
}

// ShouldPromptLink reports whether a connected, unlinked wallet should be
// offered the signature prompt automatically.
func (s *Service) ShouldPromptLink(ctx context.Context) bool {
	now := requestcontext.Now(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.walletSession != nil:
		return false
	case s.identity == nil:
		return false
	case s.flags.UserCancelledConnection:
		return false
	case s.flags.ExplicitlyLoggedOut:
		return false
	case !s.flags.LogoutTimestamp.IsZero() && now.Sub(s.flags.LogoutTimestamp) < s.logoutCooldown:
		return false
	}
	return s.observed != ""
}
