// Package authority is an in-process stand-in for the remote identity
// backend. It issues KYC and wallet tokens, hands out signing nonces and
// checks wallet signatures.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	walletclient "minerva/internal/identity/wallet"
	"minerva/internal/walletcap"
	"minerva/internal/walletcap/ethereum"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/email"
	"minerva/pkg/platform/sentinel"
	"minerva/pkg/requestcontext"
)

const (
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultNonceTTL   = 5 * time.Minute
)

type Service struct {
	store      *InMemoryStore
	tokens     *TokenIssuer
	logger     *slog.Logger
	refreshTTL time.Duration
	nonceTTL   time.Duration
	bcryptCost int
	pendingKYC bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithStore(store *InMemoryStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

func WithRefreshTTL(d time.Duration) Option {
	return func(s *Service) {
		s.refreshTTL = d
	}
}

func WithNonceTTL(d time.Duration) Option {
	return func(s *Service) {
		s.nonceTTL = d
	}
}

// WithBcryptCost lowers hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithPendingKYC registers accounts with KYC pending instead of verified.
func WithPendingKYC() Option {
	return func(s *Service) {
		s.pendingKYC = true
	}
}

func New(tokens *TokenIssuer, opts ...Option) (*Service, error) {
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	s := &Service{
		store:      NewInMemoryStore(),
		tokens:     tokens,
		logger:     slog.Default(),
		refreshTTL: defaultRefreshTTL,
		nonceTTL:   defaultNonceTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req kyc.RegisterRequest) (*identity.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	user := identity.User{
		ID:            uuid.NewString(),
		Username:      req.Username,
		Email:         req.Email,
		EmailVerified: true,
		CreatedAt:     now,
		KYC:           &identity.KYCStatus{Status: identity.KYCVerified, IsVerified: true, VerifiedAt: &now},
	}
	if s.pendingKYC {
		user.KYC = &identity.KYCStatus{Status: identity.KYCPending}
	}
	if err := s.store.CreateAccount(ctx, user, hash); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "An account with this email or username already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	s.logger.InfoContext(ctx, "account registered", "user_id", user.ID, "email", user.Email)
	return s.signIn(ctx, user)
}

func (s *Service) Login(ctx context.Context, req kyc.LoginRequest) (*identity.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, hash, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid email or password")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, "Invalid email or password")
	}
	return s.signIn(ctx, user)
}

func (s *Service) signIn(ctx context.Context, user identity.User) (*identity.AuthResult, error) {
	now := requestcontext.Now(ctx)
	token, err := s.tokens.Issue(now, Claims{UserID: user.ID, Email: user.Email, Kind: KindKYC})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	refresh := uuid.NewString()
	s.store.PutRefresh(ctx, refresh, user.ID, now.Add(s.refreshTTL))
	return &identity.AuthResult{
		Token:        token,
		User:         user,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
	}, nil
}

// Refresh rotates a refresh token into a new token set.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*kyc.RefreshResult, error) {
	if refreshToken == "" {
		return nil, dErrors.New(dErrors.CodeExpiredSession, "Refresh token is required")
	}
	now := requestcontext.Now(ctx)
	userID, err := s.store.ConsumeRefresh(ctx, refreshToken, now)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeExpiredSession, "Invalid or expired refresh token")
	}
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeExpiredSession, "Account no longer exists")
	}
	res, err := s.signIn(ctx, user)
	if err != nil {
		return nil, err
	}
	return &kyc.RefreshResult{AccessToken: res.Token, RefreshToken: res.RefreshToken, ExpiresIn: res.ExpiresIn}, nil
}

// Logout revokes the presented refresh token. A full logout revokes every
// token of the account; a wallet logout marks the wallet disconnected.
// userID comes from a valid bearer token and may be empty.
func (s *Service) Logout(ctx context.Context, logoutType kyc.LogoutType, refreshToken, userID string) error {
	switch logoutType {
	case kyc.LogoutWallet, kyc.LogoutFull:
	default:
		return dErrors.Validation(map[string]string{"type": "Logout type must be wallet or full"})
	}
	if logoutType == kyc.LogoutWallet {
		if userID != "" {
			if err := s.store.DisconnectWallet(ctx, userID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to disconnect wallet")
			}
		}
		return nil
	}
	if refreshToken != "" {
		if owner, err := s.store.ConsumeRefresh(ctx, refreshToken, requestcontext.Now(ctx)); err == nil && userID == "" {
			userID = owner
		}
	}
	if userID != "" {
		n := s.store.RevokeUser(ctx, userID)
		s.logger.InfoContext(ctx, "account signed out", "user_id", userID, "revoked", n)
	}
	return nil
}

// Nonce issues a one-time challenge for address.
func (s *Service) Nonce(ctx context.Context, address string) (*walletclient.Nonce, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, dErrors.Validation(map[string]string{"wallet": "A valid wallet address is required"})
	}
	now := requestcontext.Now(ctx)
	nonce := &walletclient.Nonce{
		Nonce:     uuid.NewString(),
		Timestamp: jsonMillis(now),
	}
	s.store.PutNonce(ctx, address, nonce.Nonce, nonce.Timestamp.String(), now.Add(s.nonceTTL))
	return nonce, nil
}

// Verify checks a signed challenge and links the wallet to the KYC account
// named by KycEmail.
func (s *Service) Verify(ctx context.Context, req walletclient.VerifyRequest) (*identity.AuthResult, error) {
	if !common.IsHexAddress(req.WalletPubkey) || req.Signature == "" || req.Nonce == "" {
		return nil, dErrors.Validation(map[string]string{"request": "walletPubkey, signature and nonce are required"})
	}
	now := requestcontext.Now(ctx)
	timestamp, err := s.store.TakeNonce(ctx, req.WalletPubkey, req.Nonce, now)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeSignatureInvalid, "Nonce is unknown, used or expired")
	}

	message := walletclient.ChallengeMessage(req.WalletPubkey, &walletclient.Nonce{Nonce: req.Nonce, Timestamp: json.Number(timestamp)})
	signer, err := ethereum.Recover([]byte(message), req.Signature)
	if err != nil || !walletcap.SameAddress(signer.Hex(), req.WalletPubkey) {
		return nil, dErrors.New(dErrors.CodeSignatureInvalid, "Signature does not match wallet")
	}

	if req.KycEmail == "" {
		return nil, dErrors.New(dErrors.CodeKycRequired, "Complete KYC registration before connecting a wallet")
	}
	account, _, err := s.store.FindByEmail(ctx, email.Normalize(req.KycEmail))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeKycRequired, "No KYC account for this email")
	}
	user, err := s.store.LinkWallet(ctx, account.ID, req.WalletPubkey)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "Wallet is linked to another account")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to link wallet")
	}

	token, err := s.tokens.Issue(now, Claims{UserID: user.ID, Email: user.Email, Kind: KindWallet, WalletAddress: req.WalletPubkey})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.logger.InfoContext(ctx, "wallet linked", "user_id", user.ID, "wallet_address", req.WalletPubkey)
	return &identity.AuthResult{Token: token, User: user, ExpiresIn: int64(s.tokens.TTL().Seconds())}, nil
}

func jsonMillis(t time.Time) json.Number {
	return json.Number(strconv.FormatInt(t.UnixMilli(), 10))
}
