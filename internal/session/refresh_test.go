package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/mock/gomock"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	"minerva/internal/session/store"
	dErrors "minerva/pkg/domain-errors"
)

func (s *ServiceSuite) TestRefresh() {
	ctx := context.Background()
	ws := s.linkFully()

	s.mockKyc.EXPECT().Refresh(gomock.Any(), "refresh-u-1").
		Return(&kyc.RefreshResult{AccessToken: "kyc-token-2", RefreshToken: "refresh-2", ExpiresIn: 7200}, nil)
	s.Require().NoError(s.service.Refresh(ctx))

	s.Equal("kyc-token-2", s.stored(store.KeyKycToken))
	s.Equal("refresh-2", s.stored(store.KeyRefreshToken))
	s.Equal("kyc-token-2", s.transport.Bearer())
	s.Equal("wallet-token", s.stored(store.KeyWalletToken), "wallet token is untouched")
	info := s.service.SessionInfo()
	s.Equal(AccessFullyAuthenticated, info.AccessLevel)
	s.Equal(ws.WalletAddress, info.WalletAddress)
	s.Require().NotNil(info.SessionExpiresAt)
	s.WithinDuration(time.Now().Add(2*time.Hour), *info.SessionExpiresAt, time.Minute)
	s.Contains(s.events.Actions(), string(audit.EventSessionRefreshed))
}

func (s *ServiceSuite) TestRefreshKeepsRotatingTokenWhenOmitted() {
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.mockKyc.EXPECT().Refresh(gomock.Any(), "refresh-u-1").
		Return(&kyc.RefreshResult{AccessToken: "kyc-token-2", ExpiresIn: 60}, nil)

	s.Require().NoError(s.service.Refresh(context.Background()))
	s.Equal("refresh-u-1", s.stored(store.KeyRefreshToken))
}

func (s *ServiceSuite) TestRefreshFailureLogsOut() {
	ctx := context.Background()
	s.linkFully()

	s.mockKyc.EXPECT().Refresh(gomock.Any(), "refresh-u-1").
		Return(nil, dErrors.New(dErrors.CodeExpiredSession, "refresh token expired"))
	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutFull, "refresh-u-1").Return(nil)

	err := s.service.Refresh(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeExpiredSession))
	s.Nil(s.service.Identity())
	s.Nil(s.service.WalletSession())
	s.Equal(AccessGuest, s.service.SessionInfo().AccessLevel)
	s.Empty(s.stored(store.KeyKycToken))
	s.Empty(s.stored(store.KeyWalletToken))
	s.Contains(s.events.Actions(), string(audit.EventRefreshFailed))
}

func (s *ServiceSuite) TestRefreshNetworkFailureStillLogsOut() {
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.mockKyc.EXPECT().Refresh(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNetwork, "authority unreachable"))
	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutFull, gomock.Any()).Return(nil)

	err := s.service.Refresh(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeExpiredSession))
	s.Equal(StateGuest, s.service.State())
}

func (s *ServiceSuite) TestRefreshWithoutRefreshToken() {
	ctx := context.Background()
	_, err := s.service.SetKycAuth(ctx, "opaque", identity.User{ID: "u-1", Email: "alice@x.com"})
	s.Require().NoError(err)

	s.mockKyc.EXPECT().Refresh(gomock.Any(), "").
		Return(nil, dErrors.New(dErrors.CodeExpiredSession, "no refresh token"))

	err = s.service.Refresh(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeExpiredSession))
	s.Equal(AccessGuest, s.service.SessionInfo().AccessLevel)
}

func (s *ServiceSuite) TestConcurrentRefreshSharesOneExchange() {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))

	entered := make(chan struct{})
	release := make(chan struct{})
	s.mockKyc.EXPECT().Refresh(gomock.Any(), "refresh-u-1").DoAndReturn(
		func(context.Context, string) (*kyc.RefreshResult, error) {
			close(entered)
			<-release
			return &kyc.RefreshResult{AccessToken: "kyc-token-2", RefreshToken: "refresh-2", ExpiresIn: 60}, nil
		}).Times(1)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = s.service.Refresh(ctx)
	}()
	<-entered
	for i := 1; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.service.Refresh(ctx)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}
	s.Equal("kyc-token-2", s.transport.Bearer())
}

// refreshAcrossSwitch starts a refresh for alice, logs bob in while the
// exchange is outstanding, then lets the exchange finish with the given result.
func (s *ServiceSuite) refreshAcrossSwitch(res *kyc.RefreshResult, exchangeErr error) error {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))

	entered := make(chan struct{})
	release := make(chan struct{})
	s.mockKyc.EXPECT().Refresh(gomock.Any(), "refresh-u-1").DoAndReturn(
		func(context.Context, string) (*kyc.RefreshResult, error) {
			close(entered)
			<-release
			return res, exchangeErr
		})

	done := make(chan error, 1)
	go func() { done <- s.service.Refresh(ctx) }()
	<-entered
	s.login(kycResult("u-2", "bob", "bob@x.com"))
	close(release)
	return <-done
}

func (s *ServiceSuite) assertBobKept() {
	s.Require().NotNil(s.service.Identity())
	s.Equal("bob@x.com", s.service.Identity().Email)
	s.Equal("kyc-token-u-2", s.stored(store.KeyKycToken))
	s.Equal("refresh-u-2", s.stored(store.KeyRefreshToken))
	s.Equal("kyc-token-u-2", s.transport.Bearer())
	s.False(s.service.Flags().ExplicitlyLoggedOut)
	s.NotContains(s.events.Actions(), string(audit.EventRefreshFailed))
	s.NotContains(s.events.Actions(), string(audit.EventSessionRefreshed))
	s.assertInvariants()
}

func (s *ServiceSuite) TestRefreshResultDroppedAfterIdentitySwitch() {
	err := s.refreshAcrossSwitch(
		&kyc.RefreshResult{AccessToken: "alice-token-2", RefreshToken: "alice-refresh-2", ExpiresIn: 60}, nil)

	s.True(dErrors.HasCode(err, dErrors.CodeExpiredSession))
	s.assertBobKept()
}

func (s *ServiceSuite) TestRefreshFailureAfterIdentitySwitchKeepsNewSession() {
	err := s.refreshAcrossSwitch(nil, dErrors.New(dErrors.CodeExpiredSession, "refresh token revoked"))

	s.True(dErrors.HasCode(err, dErrors.CodeExpiredSession))
	s.assertBobKept()
}

func (s *ServiceSuite) TestRefreshAsGuest() {
	err := s.service.Refresh(context.Background())

	s.True(dErrors.HasCode(err, dErrors.CodeExpiredSession))
	s.Equal(StateGuest, s.service.State())
	s.False(s.service.Flags().ExplicitlyLoggedOut)
	s.Empty(s.stored(store.KeyLoggedOut))
	s.Empty(s.events.Actions())
}
