package authority

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	walletclient "minerva/internal/identity/wallet"
	"minerva/internal/platform/logger"
	"minerva/internal/walletcap/ethereum"
	"minerva/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	svc    *Service
	router http.Handler
	wallet *ethereum.Wallet
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	var err error
	s.svc, err = New(NewTokenIssuer("test-key", "minerva-authority", time.Hour),
		WithLogger(logger.Discard()),
		WithBcryptCost(bcrypt.MinCost),
	)
	s.Require().NoError(err)
	s.router = NewRouter(NewHandler(s.svc, logger.Discard()))

	s.wallet, err = ethereum.Generate()
	s.Require().NoError(err)
	s.Require().NoError(s.wallet.Connect(context.Background()))
}

func (s *HandlerSuite) post(path string, body any) *http.Request {
	return testutil.NewJSONRequest(s.T(), http.MethodPost, path, body)
}

func (s *HandlerSuite) register(username, emailAddr string) *identity.AuthResult {
	rr := testutil.DoRequest(s.router, s.post("/kyc/register", map[string]string{
		"username": username, "email": emailAddr, "password": "secret1",
	}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.DecodeData[identity.AuthResult](s.T(), rr)
}

func (s *HandlerSuite) nonce(address string) *walletclient.Nonce {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/auth/nonce?wallet="+address, nil))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return testutil.DecodeData[walletclient.Nonce](s.T(), rr)
}

func (s *HandlerSuite) signedVerify(kycEmail string) walletclient.VerifyRequest {
	address := s.wallet.Account()
	nonce := s.nonce(address)
	sig, err := s.wallet.SignMessage(context.Background(), []byte(walletclient.ChallengeMessage(address, nonce)))
	s.Require().NoError(err)
	return walletclient.VerifyRequest{WalletPubkey: address, Signature: sig, Nonce: nonce.Nonce, KycEmail: kycEmail}
}

func (s *HandlerSuite) TestRegister() {
	s.Run("creates account and tokens", func() {
		res := s.register("alice", "ALICE@x.com")
		s.NotEmpty(res.Token)
		s.NotEmpty(res.RefreshToken)
		s.Equal(int64(3600), res.ExpiresIn)
		s.Equal("alice@x.com", res.User.Email)
		s.True(res.User.EmailVerified)
		s.Require().NotNil(res.User.KYC)
		s.True(res.User.KYC.IsVerified)
	})

	s.Run("duplicate email conflicts", func() {
		rr := testutil.DoRequest(s.router, s.post("/kyc/register", map[string]string{
			"username": "alice_two", "email": "alice@x.com", "password": "secret1",
		}))
		testutil.AssertError(s.T(), rr, http.StatusConflict, "CONFLICT")
	})

	s.Run("invalid fields", func() {
		rr := testutil.DoRequest(s.router, s.post("/kyc/register", map[string]string{
			"username": "a", "email": "nope", "password": "1",
		}))
		env := testutil.AssertError(s.T(), rr, http.StatusBadRequest, "VALIDATION_ERROR")
		s.Contains(env.Fields, "username")
		s.Contains(env.Fields, "email")
		s.Contains(env.Fields, "password")
	})

	s.Run("malformed body", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(http.MethodPost, "/kyc/register", "{"))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, "BAD_REQUEST")
	})
}

func (s *HandlerSuite) TestLogin() {
	s.register("alice", "alice@x.com")

	s.Run("correct password", func() {
		rr := testutil.DoRequest(s.router, s.post("/kyc/login", kyc.LoginRequest{Email: "Alice@X.com", Password: "secret1"}))
		s.Equal(http.StatusOK, rr.Code)
		res := testutil.DecodeData[identity.AuthResult](s.T(), rr)
		claims, err := s.svc.tokens.Validate(res.Token)
		s.Require().NoError(err)
		s.Equal(KindKYC, claims.Kind)
		s.Equal(res.User.ID, claims.UserID)
	})

	s.Run("wrong password", func() {
		rr := testutil.DoRequest(s.router, s.post("/kyc/login", kyc.LoginRequest{Email: "alice@x.com", Password: "wrong1"}))
		testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	})

	s.Run("unknown email", func() {
		rr := testutil.DoRequest(s.router, s.post("/kyc/login", kyc.LoginRequest{Email: "bob@x.com", Password: "secret1"}))
		testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	})
}

func (s *HandlerSuite) TestRefreshRotates() {
	res := s.register("alice", "alice@x.com")

	rr := testutil.DoRequest(s.router, s.post("/kyc/refresh-token", map[string]string{"refreshToken": res.RefreshToken}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	refreshed := testutil.DecodeData[kyc.RefreshResult](s.T(), rr)
	s.NotEmpty(refreshed.AccessToken)
	s.NotEqual(res.RefreshToken, refreshed.RefreshToken)

	rr = testutil.DoRequest(s.router, s.post("/kyc/refresh-token", map[string]string{"refreshToken": res.RefreshToken}))
	testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "SESSION_EXPIRED")
}

func (s *HandlerSuite) TestLogout() {
	res := s.register("alice", "alice@x.com")
	login := testutil.DoRequest(s.router, s.post("/kyc/login", kyc.LoginRequest{Email: "alice@x.com", Password: "secret1"}))
	second := testutil.DecodeData[identity.AuthResult](s.T(), login)

	s.Run("full logout revokes every refresh token", func() {
		req := testutil.WithBearer(s.post("/kyc/logout", map[string]string{"type": "full", "refreshToken": res.RefreshToken}), res.Token)
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusOK, rr.Code)

		rr = testutil.DoRequest(s.router, s.post("/kyc/refresh-token", map[string]string{"refreshToken": second.RefreshToken}))
		testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "SESSION_EXPIRED")
	})

	s.Run("unknown type", func() {
		rr := testutil.DoRequest(s.router, s.post("/kyc/logout", map[string]string{"type": "all"}))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func (s *HandlerSuite) TestNonce() {
	s.Run("issues nonce for valid address", func() {
		n := s.nonce(s.wallet.Account())
		s.NotEmpty(n.Nonce)
		_, err := n.Timestamp.Int64()
		s.NoError(err)
	})

	s.Run("rejects malformed address", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/auth/nonce?wallet=nope", nil))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func (s *HandlerSuite) TestVerify() {
	s.register("alice", "alice@x.com")

	s.Run("links wallet to kyc account", func() {
		rr := testutil.DoRequest(s.router, s.post("/auth/verify", s.signedVerify("Alice@x.com")))
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		res := testutil.DecodeData[identity.AuthResult](s.T(), rr)
		s.Equal(s.wallet.Account(), res.User.WalletPubkey)
		s.True(res.User.IsWalletConnected)
		s.Equal("alice@x.com", res.User.Email)

		claims, err := s.svc.tokens.Validate(res.Token)
		s.Require().NoError(err)
		s.Equal(KindWallet, claims.Kind)
	})

	s.Run("nonce cannot be replayed", func() {
		req := s.signedVerify("alice@x.com")
		s.Equal(http.StatusOK, testutil.DoRequest(s.router, s.post("/auth/verify", req)).Code)
		rr := testutil.DoRequest(s.router, s.post("/auth/verify", req))
		testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "SIGNATURE_INVALID")
	})

	s.Run("kyc required without email", func() {
		rr := testutil.DoRequest(s.router, s.post("/auth/verify", s.signedVerify("")))
		testutil.AssertError(s.T(), rr, http.StatusForbidden, walletclient.KycRequiredCode)
	})

	s.Run("kyc required for unknown email", func() {
		rr := testutil.DoRequest(s.router, s.post("/auth/verify", s.signedVerify("nobody@x.com")))
		testutil.AssertError(s.T(), rr, http.StatusForbidden, walletclient.KycRequiredCode)
	})

	s.Run("signature from another key", func() {
		req := s.signedVerify("alice@x.com")
		other, err := ethereum.Generate()
		s.Require().NoError(err)
		s.Require().NoError(other.Connect(context.Background()))
		n := s.nonce(req.WalletPubkey)
		req.Nonce = n.Nonce
		req.Signature, err = other.SignMessage(context.Background(), []byte(walletclient.ChallengeMessage(req.WalletPubkey, n)))
		s.Require().NoError(err)

		rr := testutil.DoRequest(s.router, s.post("/auth/verify", req))
		testutil.AssertError(s.T(), rr, http.StatusUnauthorized, "SIGNATURE_INVALID")
	})

	s.Run("wallet already linked elsewhere", func() {
		s.register("bob", "bob@x.com")
		rr := testutil.DoRequest(s.router, s.post("/auth/verify", s.signedVerify("bob@x.com")))
		testutil.AssertError(s.T(), rr, http.StatusConflict, "CONFLICT")
	})
}

func (s *HandlerSuite) TestHealthAndRequestID() {
	req := testutil.WithRequestID(testutil.NewJSONRequest(s.T(), http.MethodGet, "/health", nil), "req-42")
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("req-42", rr.Header().Get("X-Request-ID"))
}
