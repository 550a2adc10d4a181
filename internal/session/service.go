// Package session merges the KYC identity and the wallet-signature identity
// into one session and owns every transition between them.
package session

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks KYCClient,WalletClient,Authorizer,AuditPublisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	walletclient "minerva/internal/identity/wallet"
	"minerva/internal/platform/metrics"
	"minerva/internal/session/store"
	"minerva/internal/walletcap"
	"minerva/pkg/attrs"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/requestcontext"
)

const (
	defaultLogoutCooldown  = 5 * time.Minute
	defaultDisconnectGrace = 10 * time.Second
)

type KYCClient interface {
	Register(ctx context.Context, req kyc.RegisterRequest) (*identity.AuthResult, error)
	Login(ctx context.Context, req kyc.LoginRequest) (*identity.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*kyc.RefreshResult, error)
	Logout(ctx context.Context, logoutType kyc.LogoutType, refreshToken string) error
}

type WalletClient interface {
	FetchNonce(ctx context.Context, address string) (*walletclient.Nonce, error)
	Verify(ctx context.Context, req walletclient.VerifyRequest) (*identity.AuthResult, error)
}

// Authorizer receives the KYC access token for outgoing requests.
type Authorizer interface {
	SetBearer(token string)
	ClearBearer()
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service is the session linking state machine. It is safe for concurrent use.
type Service struct {
	store      store.Store
	kyc        KYCClient
	wallet     WalletClient
	capability walletcap.Capability

	authorizer     Authorizer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics

	logoutCooldown  time.Duration
	disconnectGrace time.Duration
	skipKYC         bool

	mu            sync.RWMutex
	identity      *KycIdentity
	walletSession *WalletSession
	expiry        SessionExpiry
	flags         IntentFlags
	selected      *SelectedWallet
	emailVerified bool
	observed      string
	graceTimer    *time.Timer

	// relinkPending is set once a mismatch discarded the wallet session and
	// cleared when a link completes or the wallet half is ended on purpose.
	relinkPending bool
	// linkGeneration changes whenever the wallet half is ended on purpose; a
	// link that started under an older generation is not installed.
	linkGeneration uint64

	busy         atomic.Bool
	refreshGroup singleflight.Group
	unsubscribe  func()
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuthorizer keeps the bearer token of a (usually the identity transport)
// equal to the KYC access token.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) {
		s.authorizer = a
	}
}

// WithLogoutCooldown sets how long after a full logout link prompts stay
// suppressed.
func WithLogoutCooldown(d time.Duration) Option {
	return func(s *Service) {
		s.logoutCooldown = d
	}
}

// WithDisconnectGrace sets how long a wallet may report no address before its
// session is dropped.
func WithDisconnectGrace(d time.Duration) Option {
	return func(s *Service) {
		s.disconnectGrace = d
	}
}

// WithSkipKYC makes CheckKycStatus always pass (development backends).
func WithSkipKYC(skip bool) Option {
	return func(s *Service) {
		s.skipKYC = skip
	}
}

// New constructs a Service and subscribes to the capability's address
// changes. Call Close to unsubscribe.
func New(st store.Store, kycClient KYCClient, walletClient WalletClient, capability walletcap.Capability, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("session store is required")
	}
	if kycClient == nil {
		return nil, errors.New("kyc client is required")
	}
	if walletClient == nil {
		return nil, errors.New("wallet client is required")
	}
	if capability == nil {
		return nil, errors.New("wallet capability is required")
	}
	s := &Service{
		store:           st,
		kyc:             kycClient,
		wallet:          walletClient,
		capability:      capability,
		logger:          slog.Default(),
		logoutCooldown:  defaultLogoutCooldown,
		disconnectGrace: defaultDisconnectGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = capability.OnAddressChange(func(address string) {
		if err := s.ObserveAddress(context.Background(), address); err != nil {
			s.logger.Warn("address change handling failed", "error", err)
		}
	})
	return s, nil
}

// Close stops listening to the capability and cancels a pending disconnect
// timer. It does not touch persisted state.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopGraceLocked()
}

// begin claims the in-flight slot shared by register, login, link and logout.
func (s *Service) begin(op string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return dErrors.New(dErrors.CodeBusy, op+": another session operation is in progress")
	}
	return nil
}

func (s *Service) end() {
	s.busy.Store(false)
}

func (s *Service) syncBearerLocked() {
	if s.authorizer == nil {
		return
	}
	if s.identity != nil && s.expiry.AccessToken != "" {
		s.authorizer.SetBearer(s.expiry.AccessToken)
		return
	}
	s.authorizer.ClearBearer()
}

func (s *Service) disconnectCapability(ctx context.Context) {
	if err := s.capability.Disconnect(ctx); err != nil {
		s.logger.DebugContext(ctx, "wallet disconnect failed", "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Category:      event.Category(),
		Timestamp:     requestcontext.Now(ctx),
		Action:        string(event),
		Email:         attrs.ExtractString(attributes, "email"),
		WalletAddress: attrs.ExtractString(attributes, "wallet_address"),
		Reason:        attrs.ExtractString(attributes, "reason"),
		RequestID:     attrs.ExtractString(attributes, "request_id"),
	})
}
