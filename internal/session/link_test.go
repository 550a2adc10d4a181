package session

import (
	"context"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/mock/gomock"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	walletclient "minerva/internal/identity/wallet"
	"minerva/internal/session/store"
	"minerva/internal/walletcap/ethereum"
	dErrors "minerva/pkg/domain-errors"
)

func (s *ServiceSuite) TestLinkWallet() {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.wallet.Connect(ctx))
	s.Equal(StateWalletConnectedUnlinked, s.service.State())
	s.True(s.service.SessionInfo().WalletConnectedUnlinked)

	s.expectLink()
	ws, err := s.service.LinkWallet(ctx)
	s.Require().NoError(err)

	s.Equal(s.wallet.Account(), ws.WalletAddress)
	s.Equal("alice@x.com", ws.LinkedKycEmail)
	s.Equal("wallet-token", s.stored(store.KeyWalletToken))
	s.Contains(s.stored(store.KeyWalletUser), ws.WalletAddress)
	s.Equal(StateFullyLinked, s.service.State())
	s.Equal(ws.WalletAddress, s.service.Identity().WalletPubkey)
	s.True(s.service.CheckKycStatus())

	info := s.service.SessionInfo()
	s.Equal(AccessFullyAuthenticated, info.AccessLevel)
	s.Equal(ws.WalletAddress, info.WalletAddress)
	s.False(info.WalletConnectedUnlinked)
	s.Equal("kyc-token-u-1", s.transport.Bearer(), "bearer stays on the kyc token")
	s.Contains(s.events.Actions(), string(audit.EventWalletLinked))
	s.assertInvariants()
}

func (s *ServiceSuite) TestLinkWalletRequiresKyc() {
	ctx := context.Background()

	s.Run("no kyc identity", func() {
		s.Require().NoError(s.wallet.Connect(ctx))
		_, err := s.service.LinkWallet(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeKycRequired))
		s.Nil(s.service.WalletSession())
		s.Equal(AccessGuest, s.service.SessionInfo().AccessLevel)
	})

	s.Run("authority refuses unknown kyc email", func() {
		s.login(kycResult("u-1", "alice", "alice@x.com"))
		s.mockWallet.EXPECT().FetchNonce(gomock.Any(), gomock.Any()).
			Return(&walletclient.Nonce{Nonce: "n", Timestamp: "1"}, nil)
		s.mockWallet.EXPECT().Verify(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeKycRequired, "complete KYC first"))

		_, err := s.service.LinkWallet(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeKycRequired))
		s.Nil(s.service.WalletSession())
		s.Empty(s.stored(store.KeyWalletToken))
		s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
	})
}

func (s *ServiceSuite) TestLinkWalletNoWallet() {
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	_, err := s.service.LinkWallet(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeWalletUnavailable))
}

func (s *ServiceSuite) TestLinkWalletRejectThenRetry() {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.wallet.Connect(ctx))

	s.decline.Store(true)
	s.mockWallet.EXPECT().FetchNonce(gomock.Any(), gomock.Any()).
		Return(&walletclient.Nonce{Nonce: "nonce-0", Timestamp: "1"}, nil)
	_, err := s.service.LinkWallet(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeUserRejected))
	s.Nil(s.service.WalletSession())
	s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
	s.NotContains(s.events.Actions(), string(audit.EventWalletLinkFailed), "a rejection is not a failure")

	s.decline.Store(false)
	s.expectLink()
	_, err = s.service.LinkWallet(ctx)
	s.Require().NoError(err)
	s.Equal(AccessFullyAuthenticated, s.service.SessionInfo().AccessLevel)
}

func (s *ServiceSuite) TestLinkWalletVerifyFailure() {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.wallet.Connect(ctx))

	s.mockWallet.EXPECT().FetchNonce(gomock.Any(), gomock.Any()).
		Return(&walletclient.Nonce{Nonce: "n", Timestamp: "1"}, nil)
	s.mockWallet.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeSignatureInvalid, "invalid signature"))

	_, err := s.service.LinkWallet(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeSignatureInvalid))
	s.Nil(s.service.WalletSession())
	s.Contains(s.events.Actions(), string(audit.EventWalletLinkFailed))
	s.Equal(StateWalletConnectedUnlinked, s.service.State())
}

func (s *ServiceSuite) TestRelinkingAfterAddressChange() {
	ctx := context.Background()
	var during []State
	wallet, err := ethereum.Generate(ethereum.WithApprover(func(context.Context, []byte) error {
		during = append(during, s.service.State())
		return nil
	}))
	s.Require().NoError(err)
	s.service.Close()
	s.wallet = wallet
	s.service = s.newService()

	s.linkFully()
	s.Equal([]State{StateWalletConnectedUnlinked}, during, "a first link is not a relink")

	other, err := ethcrypto.GenerateKey()
	s.Require().NoError(err)
	s.wallet.SwitchAccount(other)
	s.Equal(StateRelinking, s.service.State())

	s.expectLink()
	_, err = s.service.LinkWallet(ctx)
	s.Require().NoError(err)
	s.Equal([]State{StateWalletConnectedUnlinked, StateRelinking}, during)
	s.Equal(StateFullyLinked, s.service.State())
}

func (s *ServiceSuite) TestWalletLogoutEndsRelinking() {
	ctx := context.Background()
	s.linkFully()

	other, err := ethcrypto.GenerateKey()
	s.Require().NoError(err)
	s.wallet.SwitchAccount(other)
	s.Require().Equal(StateRelinking, s.service.State())

	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutWallet, "refresh-u-1").Return(nil)
	s.Require().NoError(s.service.Logout(ctx, LogoutWallet))
	s.Require().NoError(s.wallet.Connect(ctx))
	s.Equal(StateWalletConnectedUnlinked, s.service.State())
}

func (s *ServiceSuite) TestAddressChangeDiscardsWallet() {
	ctx := context.Background()
	ws := s.linkFully()
	s.events.Clear()

	other, err := ethcrypto.GenerateKey()
	s.Require().NoError(err)
	s.wallet.SwitchAccount(other)

	s.Nil(s.service.WalletSession())
	s.Empty(s.stored(store.KeyWalletToken))
	s.Empty(s.stored(store.KeyWalletUser))
	info := s.service.SessionInfo()
	s.Equal(AccessKycVerified, info.AccessLevel)
	s.True(info.WalletConnectedUnlinked)
	s.NotEqual(ws.WalletAddress, s.wallet.Account())
	s.Equal([]string{string(audit.EventWalletMismatch)}, s.events.Actions())
	s.True(s.service.ShouldPromptLink(ctx))
	s.assertInvariants()
}

func (s *ServiceSuite) TestAddressCaseIsIgnored() {
	ctx := context.Background()
	ws := s.linkFully()
	s.Require().NoError(s.service.ObserveAddress(ctx, strings.ToLower(ws.WalletAddress)))
	s.NotNil(s.service.WalletSession())
}

func (s *ServiceSuite) TestDisconnectGrace() {
	ctx := context.Background()

	s.Run("session dropped after grace period", func() {
		s.linkFully()
		s.Require().NoError(s.wallet.Disconnect(ctx))

		s.Eventually(func() bool {
			return s.service.WalletSession() == nil
		}, time.Second, 5*time.Millisecond)
		s.Empty(s.stored(store.KeyWalletToken))
		s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
		s.Contains(s.events.Actions(), string(audit.EventWalletDisconnected))
	})
}

func (s *ServiceSuite) TestReconnectWithinGrace() {
	ctx := context.Background()
	s.service.Close()
	s.service = s.newService(WithDisconnectGrace(time.Second))
	s.linkFully()

	s.Require().NoError(s.wallet.Disconnect(ctx))
	s.Require().NoError(s.wallet.Connect(ctx))

	s.Never(func() bool {
		return s.service.WalletSession() == nil
	}, 100*time.Millisecond, 10*time.Millisecond)
	s.Equal(StateFullyLinked, s.service.State())
}

func (s *ServiceSuite) TestEvaluateKycMismatch() {
	ctx := context.Background()
	s.linkFully()

	s.service.mu.Lock()
	s.service.walletSession.LinkedKycEmail = "mallory@x.com"
	s.service.mu.Unlock()

	s.Require().NoError(s.service.Evaluate(ctx))
	s.Nil(s.service.WalletSession())
	s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
}

func (s *ServiceSuite) TestBusyGuard() {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})

	s.mockKyc.EXPECT().Login(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, kyc.LoginRequest) (*identity.AuthResult, error) {
			close(entered)
			<-release
			return kycResult("u-1", "alice", "alice@x.com"), nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := s.service.Login(ctx, kyc.LoginRequest{Email: "alice@x.com", Password: "secret1"})
		done <- err
	}()
	<-entered

	_, err := s.service.LinkWallet(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeBusy))
	_, err = s.service.Register(ctx, kyc.RegisterRequest{
		Username:        "bob",
		Email:           "bob@x.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeBusy))

	close(release)
	s.Require().NoError(<-done)
	s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
}

// blockingSigner swaps in a wallet whose signature prompt waits for release.
func (s *ServiceSuite) blockingSigner() (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	wallet, err := ethereum.Generate(ethereum.WithApprover(func(context.Context, []byte) error {
		close(entered)
		<-release
		return nil
	}))
	s.Require().NoError(err)
	s.service.Close()
	s.wallet = wallet
	s.service = s.newService()
	return entered, release
}

func (s *ServiceSuite) TestFullLogoutWhileSigning() {
	ctx := context.Background()
	entered, release := s.blockingSigner()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.wallet.Connect(ctx))
	s.expectLink()

	done := make(chan error, 1)
	go func() {
		_, err := s.service.LinkWallet(ctx)
		done <- err
	}()
	<-entered

	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutFull, "refresh-u-1").Return(nil)
	s.Require().NoError(s.service.Logout(ctx, LogoutFull))
	s.Equal(StateGuest, s.service.State())

	close(release)
	err := <-done
	s.True(dErrors.HasCode(err, dErrors.CodeKycRequired))
	s.Nil(s.service.Identity())
	s.Nil(s.service.WalletSession())
	s.Empty(s.stored(store.KeyWalletToken))
	s.Empty(s.stored(store.KeyWalletUser))
	s.Equal(flagTrue, s.stored(store.KeyLoggedOut))
}

func (s *ServiceSuite) TestWalletLogoutWhileSigning() {
	ctx := context.Background()
	entered, release := s.blockingSigner()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.wallet.Connect(ctx))
	s.expectLink()

	done := make(chan error, 1)
	go func() {
		_, err := s.service.LinkWallet(ctx)
		done <- err
	}()
	<-entered

	s.mockKyc.EXPECT().Logout(gomock.Any(), LogoutWallet, "refresh-u-1").Return(nil)
	s.Require().NoError(s.service.Logout(ctx, LogoutWallet))

	close(release)
	err := <-done
	s.True(dErrors.HasCode(err, dErrors.CodeWalletUnavailable))
	s.Nil(s.service.WalletSession())
	s.Empty(s.stored(store.KeyWalletToken))
	s.Equal(AccessKycVerified, s.service.SessionInfo().AccessLevel)
}

func (s *ServiceSuite) TestCancelWhileVerifying() {
	ctx := context.Background()
	s.login(kycResult("u-1", "alice", "alice@x.com"))
	s.Require().NoError(s.wallet.Connect(ctx))

	entered := make(chan struct{})
	release := make(chan struct{})
	nonce := &walletclient.Nonce{Nonce: "nonce-1", Timestamp: "1700000000000"}
	s.mockWallet.EXPECT().FetchNonce(gomock.Any(), gomock.Any()).Return(nonce, nil)
	s.mockWallet.EXPECT().Verify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req walletclient.VerifyRequest) (*identity.AuthResult, error) {
			close(entered)
			<-release
			return &identity.AuthResult{
				Token: "wallet-token",
				User:  identity.User{Email: req.KycEmail, WalletPubkey: req.WalletPubkey},
			}, nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := s.service.LinkWallet(ctx)
		done <- err
	}()
	<-entered

	s.Require().NoError(s.service.CancelConnection(ctx))
	close(release)

	err := <-done
	s.True(dErrors.HasCode(err, dErrors.CodeUserRejected))
	s.Nil(s.service.WalletSession())
	s.Empty(s.stored(store.KeyWalletToken))
	s.Empty(s.stored(store.KeyWalletUser))
	s.True(s.service.Flags().UserCancelledConnection)
	s.Equal(flagTrue, s.stored(store.KeyWalletCancelled))
	s.False(s.service.ShouldPromptLink(ctx))
}
