package session

import (
	"context"
	"errors"
	"time"

	"minerva/internal/audit"
	"minerva/internal/identity"
	walletclient "minerva/internal/identity/wallet"
	"minerva/internal/session/store"
	"minerva/internal/walletcap"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/email"
	"minerva/pkg/requestcontext"
)

// ObserveAddress records the address the wallet reports. An empty address
// starts the disconnect grace period; a non-empty one cancels it and runs
// mismatch evaluation.
func (s *Service) ObserveAddress(ctx context.Context, address string) error {
	if address == "" {
		s.HandleDisconnect(ctx)
		return nil
	}
	s.mu.Lock()
	s.observed = address
	s.stopGraceLocked()
	s.mu.Unlock()
	return s.Evaluate(ctx)
}

// Evaluate discards the wallet session when the connected address no longer
// matches it, or when its KYC pairing no longer holds.
func (s *Service) Evaluate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluateLocked(ctx)
}

func (s *Service) evaluateLocked(ctx context.Context) error {
	ws := s.walletSession
	if ws == nil {
		return nil
	}
	reason := ""
	switch {
	case s.identity == nil || !email.Equal(s.identity.Email, ws.LinkedKycEmail):
		reason = "kyc_identity_changed"
	case s.observed != "" && !walletcap.SameAddress(s.observed, ws.WalletAddress):
		reason = "address_changed"
	default:
		return nil
	}
	if err := s.teardownWalletLocked(ctx); err != nil {
		return storeError(err, "failed to discard mismatched wallet session")
	}
	s.relinkPending = true
	s.metrics.IncMismatch()
	s.logAudit(ctx, audit.EventWalletMismatch,
		"wallet_address", ws.WalletAddress,
		"observed_address", s.observed,
		"email", ws.LinkedKycEmail,
		"reason", reason,
	)
	return nil
}

// LinkWallet proves ownership of the connected wallet and pairs it with the
// installed KYC identity. On any failure the prior state is left untouched.
func (s *Service) LinkWallet(ctx context.Context) (*WalletSession, error) {
	if err := s.begin("link wallet"); err != nil {
		return nil, err
	}
	defer s.end()
	ctx, _ = requestcontext.EnsureRequestID(ctx)

	ws, err := s.linkWallet(ctx)
	if err != nil {
		s.metrics.IncWalletLink(string(dErrors.CodeOf(err)))
		if dErrors.HasCode(err, dErrors.CodeUserRejected) {
			s.logger.InfoContext(ctx, "wallet signature rejected by user")
		} else {
			s.logAudit(ctx, audit.EventWalletLinkFailed, "reason", string(dErrors.CodeOf(err)))
		}
		return nil, err
	}
	s.metrics.IncWalletLink("linked")
	s.logAudit(ctx, audit.EventWalletLinked,
		"email", ws.LinkedKycEmail,
		"wallet_address", ws.WalletAddress,
	)
	return ws, nil
}

func (s *Service) linkWallet(ctx context.Context) (*WalletSession, error) {
	s.mu.RLock()
	var kycEmail string
	if s.identity != nil {
		kycEmail = s.identity.Email
	}
	s.mu.RUnlock()
	if kycEmail == "" {
		return nil, dErrors.New(dErrors.CodeKycRequired, "complete KYC login before linking a wallet")
	}

	address, ok := s.capability.Address(ctx)
	if !ok || address == "" {
		return nil, dErrors.New(dErrors.CodeWalletUnavailable, "no wallet connected")
	}

	// Mismatch detection precedes linking.
	s.mu.Lock()
	s.observed = address
	s.stopGraceLocked()
	err := s.evaluateLocked(ctx)
	generation := s.linkGeneration
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	nonce, err := s.wallet.FetchNonce(ctx, address)
	if err != nil {
		return nil, err
	}

	message := walletclient.ChallengeMessage(address, nonce)
	signature, err := s.capability.SignMessage(ctx, []byte(message))
	if err != nil {
		return nil, signError(err)
	}

	res, err := s.wallet.Verify(ctx, walletclient.VerifyRequest{
		WalletPubkey: address,
		Signature:    signature,
		Nonce:        nonce.Nonce,
		KycEmail:     kycEmail,
	})
	if err != nil {
		return nil, err
	}

	return s.installWallet(ctx, generation, address, kycEmail, res.Token, res.User)
}

func signError(err error) error {
	switch {
	case walletcap.IsRejection(err):
		return dErrors.Wrap(err, dErrors.CodeUserRejected, "signature request was rejected")
	case errors.Is(err, walletcap.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeWalletUnavailable, "wallet is not available")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeUserRejected, "signature request was abandoned")
	default:
		return dErrors.Wrap(err, dErrors.CodeWalletUnavailable, "wallet failed to sign")
	}
}

func (s *Service) installWallet(ctx context.Context, generation uint64, address, kycEmail, token string, user identity.User) (*WalletSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == nil || !email.Equal(s.identity.Email, kycEmail) {
		return nil, dErrors.New(dErrors.CodeKycRequired, "kyc session changed while linking")
	}
	if s.linkGeneration != generation {
		if s.flags.UserCancelledConnection {
			return nil, dErrors.New(dErrors.CodeUserRejected, "connection cancelled while linking")
		}
		return nil, dErrors.New(dErrors.CodeWalletUnavailable, "wallet session ended while linking")
	}
	if s.observed != "" && !walletcap.SameAddress(s.observed, address) {
		return nil, dErrors.New(dErrors.CodeWalletUnavailable, "wallet account changed while linking")
	}

	if user.WalletPubkey == "" {
		user.WalletPubkey = address
	}
	if user.Email == "" {
		user.Email = kycEmail
	}
	user.IsWalletConnected = true

	updated := *s.identity
	updated.WalletPubkey = address
	updated.IsWalletConnected = true

	err := s.putJSON(ctx, store.KeyWalletUser, user)
	if err == nil {
		err = s.store.Set(ctx, store.KeyWalletToken, token)
	}
	if err != nil {
		_ = s.deleteKeys(ctx, store.KeyWalletToken, store.KeyWalletUser)
		return nil, storeError(err, "failed to persist wallet session")
	}
	if err := s.putJSON(ctx, store.KeyKycUser, updated); err != nil {
		s.logger.WarnContext(ctx, "failed to persist wallet linkage on kyc profile", "error", err)
	}
	if err := s.store.Delete(ctx, store.KeyWalletCancelled); err != nil {
		s.logger.WarnContext(ctx, "failed to clear cancelled flag", "error", err)
	}

	ws := &WalletSession{
		WalletAddress:  address,
		AccessToken:    token,
		User:           user,
		LinkedKycEmail: email.Normalize(kycEmail),
	}
	s.walletSession = ws
	s.identity = &updated
	s.flags.UserCancelledConnection = false
	s.relinkPending = false

	out := *ws
	return &out, nil
}

// HandleDisconnect starts the grace period after the wallet stops reporting
// an address. If no address re-appears before it ends, the wallet session is
// dropped.
func (s *Service) HandleDisconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed = ""
	if s.walletSession == nil || s.graceTimer != nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	s.graceTimer = time.AfterFunc(s.disconnectGrace, func() {
		s.expireDisconnected(requestcontext.WithRequestID(context.Background(), requestID))
	})
}

func (s *Service) expireDisconnected(ctx context.Context) {
	if address, ok := s.capability.Address(ctx); ok && address != "" {
		_ = s.ObserveAddress(ctx, address)
		return
	}
	s.mu.Lock()
	s.graceTimer = nil
	if s.observed != "" || s.walletSession == nil {
		s.mu.Unlock()
		return
	}
	ws := s.walletSession
	err := s.teardownWalletLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to drop disconnected wallet session", "error", err)
		return
	}
	s.logAudit(ctx, audit.EventWalletDisconnected,
		"email", ws.LinkedKycEmail,
		"wallet_address", ws.WalletAddress,
		"reason", "grace_period_elapsed",
	)
}

// abandonLinkLocked invalidates any link in flight and forgets a pending
// relink. Called whenever the wallet half is ended deliberately.
func (s *Service) abandonLinkLocked() {
	s.linkGeneration++
	s.relinkPending = false
}

func (s *Service) stopGraceLocked() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

// teardownWalletLocked destroys the wallet session, token first.
func (s *Service) teardownWalletLocked(ctx context.Context) error {
	s.walletSession = nil
	s.stopGraceLocked()
	return s.deleteKeys(ctx, store.KeyWalletToken, store.KeyWalletUser)
}
