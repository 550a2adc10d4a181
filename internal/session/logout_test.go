package session

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/mock/gomock"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/session/store"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/requestcontext"
)

func (s *ServiceSuite) TestWalletLogoutKeepsKyc() {
	ctx := context.Background()
	s.linkFully()

	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutWallet, "refresh-u-1").Return(nil)
	s.Require().NoError(s.service.Logout(ctx, LogoutWallet))

	info := s.service.SessionInfo()
	s.Equal(AccessKycVerified, info.AccessLevel)
	s.True(info.IsKycAuthenticated)
	s.False(info.IsWalletConnected)
	s.Equal("alice@x.com", s.service.Identity().Email)
	s.Empty(s.stored(store.KeyWalletToken))
	s.Empty(s.stored(store.KeyWalletUser))
	s.Equal("kyc-token-u-1", s.stored(store.KeyKycToken))
	s.Equal("kyc-token-u-1", s.transport.Bearer())
	_, connected := s.wallet.Address(ctx)
	s.False(connected)
	s.Contains(s.events.Actions(), string(audit.EventWalletLogout))
	s.assertInvariants()
}

func (s *ServiceSuite) TestWalletLogoutSurvivesRemoteFailure() {
	s.linkFully()
	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutWallet, gomock.Any()).
		Return(dErrors.New(dErrors.CodeNetwork, "authority unreachable"))

	s.Require().NoError(s.service.Logout(context.Background(), LogoutWallet))
	s.Nil(s.service.WalletSession())
	s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
}

func (s *ServiceSuite) TestFullLogout() {
	ctx := context.Background()
	s.linkFully()
	s.Require().NoError(s.store.Set(ctx, "wagmi.store", "{}"))
	s.Require().NoError(s.store.Set(ctx, "phantom-adapter", "1"))
	s.Require().NoError(s.store.Set(ctx, "theme_preference", "dark"))

	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutFull, "refresh-u-1").Return(nil)
	s.Require().NoError(s.service.Logout(requestcontext.WithTime(ctx, fixed), LogoutFull))

	s.Nil(s.service.Identity())
	s.Nil(s.service.WalletSession())
	s.Equal(StateGuest, s.service.State())
	info := s.service.SessionInfo()
	s.Equal(AccessGuest, info.AccessLevel)
	s.Nil(info.SessionExpiresAt)
	s.Empty(s.transport.Bearer())

	for _, k := range []store.Key{
		store.KeyKycToken, store.KeyKycUser, store.KeyWalletToken, store.KeyWalletUser,
		store.KeyRefreshToken, store.KeySessionExpires, store.KeySelectedWallet, store.KeyWalletCancelled,
	} {
		s.Empty(s.stored(k), "key %s should be cleared", k)
	}
	s.Empty(s.stored("wagmi.store"))
	s.Empty(s.stored("phantom-adapter"))
	s.Equal("dark", s.stored("theme_preference"))

	s.Equal(flagTrue, s.stored(store.KeyLoggedOut))
	s.Equal(strconv.FormatInt(fixed.UnixMilli(), 10), s.stored(store.KeyLogoutTimestamp))
	flags := s.service.Flags()
	s.True(flags.ExplicitlyLoggedOut)
	s.True(fixed.Equal(flags.LogoutTimestamp))
	s.Contains(s.events.Actions(), string(audit.EventFullLogout))
}

func (s *ServiceSuite) TestFullLogoutWithoutRefreshToken() {
	ctx := context.Background()
	_, err := s.service.SetKycAuth(ctx, "opaque-token", identity.User{ID: "u-1", Email: "alice@x.com"})
	s.Require().NoError(err)

	// No Logout expectation: the authority is not called without a refresh token.
	s.Require().NoError(s.service.Logout(ctx, LogoutFull))
	s.Equal(AccessGuest, s.service.SessionInfo().AccessLevel)
}

func (s *ServiceSuite) TestLogoutRejectsUnknownType() {
	err := s.service.Logout(context.Background(), LogoutType("everything"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestExpire() {
	s.linkFully()
	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutFull, gomock.Any()).Return(nil)

	s.Require().NoError(s.service.Expire(context.Background()))
	s.Equal(AccessGuest, s.service.SessionInfo().AccessLevel)
	s.Contains(s.events.Actions(), string(audit.EventSessionExpired))
	s.Contains(s.events.Actions(), string(audit.EventFullLogout))
}

func (s *ServiceSuite) TestCancelAndManualConnect() {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.service.BeginManualConnect(ctx, SelectedWallet{ID: "metamask", Name: "MetaMask"}))
	s.Require().NoError(s.wallet.Connect(ctx))
	s.True(s.service.ShouldPromptLink(ctx))

	s.Run("cancel suppresses prompts", func() {
		s.Require().NoError(s.service.CancelConnection(ctx))
		s.True(s.service.Flags().UserCancelledConnection)
		s.Equal(flagTrue, s.stored(store.KeyWalletCancelled))
		s.Empty(s.stored(store.KeySelectedWallet))
		s.Nil(s.service.SelectedWallet())
		_, connected := s.wallet.Address(ctx)
		s.False(connected)

		s.Require().NoError(s.wallet.Connect(ctx))
		s.False(s.service.ShouldPromptLink(ctx))
		s.Contains(s.events.Actions(), string(audit.EventConnectionCancelled))
	})

	s.Run("manual connect clears flags", func() {
		s.Require().NoError(s.service.BeginManualConnect(ctx, SelectedWallet{ID: "phantom", Name: "Phantom"}))
		s.Equal(IntentFlags{}, s.service.Flags())
		s.Empty(s.stored(store.KeyWalletCancelled))
		s.JSONEq(`{"id":"phantom","name":"Phantom"}`, s.stored(store.KeySelectedWallet))
		s.Equal("phantom", s.service.SelectedWallet().ID)
		s.True(s.service.ShouldPromptLink(ctx))
	})

	s.Run("manual connect requires a wallet id", func() {
		err := s.service.BeginManualConnect(ctx, SelectedWallet{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestPromptSuppressedAfterFullLogout() {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutFull, gomock.Any()).Return(nil)
	s.Require().NoError(s.service.Logout(ctx, LogoutFull))

	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.wallet.Connect(ctx))
	s.False(s.service.ShouldPromptLink(ctx), "explicit logout suppresses prompts until a manual connect")

	s.Require().NoError(s.service.BeginManualConnect(ctx, SelectedWallet{ID: "metamask"}))
	s.True(s.service.ShouldPromptLink(ctx))
}
