package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/session/store"
	"minerva/pkg/requestcontext"
)

func (s *ServiceSuite) seed(key store.Key, v any) {
	var raw string
	switch value := v.(type) {
	case string:
		raw = value
	default:
		b, err := json.Marshal(value)
		s.Require().NoError(err)
		raw = string(b)
	}
	s.Require().NoError(s.store.Set(context.Background(), key, raw))
}

func (s *ServiceSuite) seedKyc(emailAddr string) {
	s.seed(store.KeyKycToken, "kyc-token")
	s.seed(store.KeyKycUser, identity.User{ID: "u-1", Username: "alice", Email: emailAddr, EmailVerified: true})
	s.seed(store.KeyRefreshToken, "refresh-token")
}

func (s *ServiceSuite) seedWallet(emailAddr, address string) {
	s.seed(store.KeyWalletToken, "wallet-token")
	s.seed(store.KeyWalletUser, identity.User{
		Email:             emailAddr,
		WalletPubkey:      address,
		IsWalletConnected: true,
		KYC:               &identity.KYCStatus{Status: identity.KYCVerified, IsVerified: true},
	})
}

func (s *ServiceSuite) TestRestoreLinkedSession() {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	s.seedKyc("alice@x.com")
	s.seed(store.KeySessionExpires, expires.Format(time.RFC3339Nano))
	s.seedWallet("alice@x.com", s.wallet.Account())
	s.Require().NoError(s.wallet.Connect(ctx))

	s.Require().NoError(s.service.Restore(ctx))

	info := s.service.SessionInfo()
	s.Equal(AccessFullyAuthenticated, info.AccessLevel)
	s.Equal("alice@x.com", info.Email)
	s.Equal(s.wallet.Account(), info.WalletAddress)
	s.Require().NotNil(info.SessionExpiresAt)
	s.True(expires.Equal(*info.SessionExpiresAt))
	s.Equal("kyc-token", s.transport.Bearer())
	s.True(s.service.CheckKycStatus())
	s.Contains(s.events.Actions(), string(audit.EventSessionRestored))
	s.assertInvariants()
}

func (s *ServiceSuite) TestRestoreDiscardsForeignWallet() {
	ctx := context.Background()
	s.seedKyc("alice@x.com")
	s.seedWallet("bob@x.com", s.wallet.Account())

	s.Require().NoError(s.service.Restore(ctx))

	s.Nil(s.service.WalletSession())
	s.Empty(s.stored(store.KeyWalletToken))
	s.Empty(s.stored(store.KeyWalletUser))
	s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
}

func (s *ServiceSuite) TestRestoreWalletWithoutKyc() {
	s.seedWallet("alice@x.com", s.wallet.Account())

	s.Require().NoError(s.service.Restore(context.Background()))

	s.Nil(s.service.WalletSession())
	s.Empty(s.stored(store.KeyWalletToken))
	s.Equal(AccessGuest, s.service.SessionInfo().AccessLevel)
	s.assertInvariants()
}

func (s *ServiceSuite) TestRestoreDiscardsWalletForOtherAddress() {
	ctx := context.Background()
	s.seedKyc("alice@x.com")
	s.seedWallet("alice@x.com", "0x000000000000000000000000000000000000dEaD")
	s.Require().NoError(s.wallet.Connect(ctx))

	s.Require().NoError(s.service.Restore(ctx))

	s.Nil(s.service.WalletSession())
	s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
	s.Contains(s.events.Actions(), string(audit.EventWalletMismatch))
}

func (s *ServiceSuite) TestRestoreUnparseableProfile() {
	s.seed(store.KeyKycToken, "kyc-token")
	s.seed(store.KeyKycUser, "{not json")

	s.Require().NoError(s.service.Restore(context.Background()))

	s.Nil(s.service.Identity())
	s.Empty(s.stored(store.KeyKycUser))
	s.Empty(s.stored(store.KeyKycToken), "token is removed with its unparseable profile")
	s.Equal(AccessGuest, s.service.SessionInfo().AccessLevel)
	s.Empty(s.transport.Bearer())
}

func (s *ServiceSuite) TestRestoreProfileWithoutToken() {
	s.seed(store.KeyKycUser, identity.User{ID: "u-1", Email: "alice@x.com", EmailVerified: true})

	s.Require().NoError(s.service.Restore(context.Background()))

	s.Nil(s.service.Identity())
	info := s.service.SessionInfo()
	s.Equal(AccessEmailVerified, info.AccessLevel)
	s.True(info.IsEmailVerified)
	s.False(info.IsKycAuthenticated)
}

func (s *ServiceSuite) TestRestoreBadExpiry() {
	s.seedKyc("alice@x.com")
	s.seed(store.KeySessionExpires, "tomorrow")

	s.Require().NoError(s.service.Restore(context.Background()))

	s.NotNil(s.service.Identity())
	s.Nil(s.service.SessionInfo().SessionExpiresAt)
	s.Empty(s.stored(store.KeySessionExpires))
}

func (s *ServiceSuite) TestRestoreFlags() {
	ctx := context.Background()
	loggedOutAt := time.Now().Add(-time.Minute)
	s.seedKyc("alice@x.com")
	s.seed(store.KeyWalletCancelled, flagTrue)
	s.seed(store.KeyLogoutTimestamp, strconv.FormatInt(loggedOutAt.UnixMilli(), 10))
	s.seed(store.KeySelectedWallet, SelectedWallet{ID: "metamask", Name: "MetaMask"})

	s.Require().NoError(s.service.Restore(ctx))

	flags := s.service.Flags()
	s.True(flags.UserCancelledConnection)
	s.False(flags.ExplicitlyLoggedOut)
	s.Equal(loggedOutAt.UnixMilli(), flags.LogoutTimestamp.UnixMilli())
	s.Equal("metamask", s.service.SelectedWallet().ID)
}

func (s *ServiceSuite) TestLogoutCooldown() {
	ctx := context.Background()
	now := time.Now()
	s.seedKyc("alice@x.com")
	s.seed(store.KeyLogoutTimestamp, strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10))
	s.Require().NoError(s.wallet.Connect(ctx))
	s.Require().NoError(s.service.Restore(ctx))

	s.False(s.service.ShouldPromptLink(requestcontext.WithTime(ctx, now)), "inside the cooldown")
	s.True(s.service.ShouldPromptLink(requestcontext.WithTime(ctx, now.Add(5*time.Minute))), "after the cooldown")
}

func (s *ServiceSuite) TestRestoreBadLogoutTimestamp() {
	s.seedKyc("alice@x.com")
	s.seed(store.KeyLogoutTimestamp, "yesterday")

	s.Require().NoError(s.service.Restore(context.Background()))

	s.True(s.service.Flags().LogoutTimestamp.IsZero())
	s.Empty(s.stored(store.KeyLogoutTimestamp))
}
