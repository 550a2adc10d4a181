package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"minerva/internal/audit"
	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	walletclient "minerva/internal/identity/wallet"
	"minerva/internal/platform/config"
	"minerva/internal/platform/logger"
	"minerva/internal/platform/metrics"
	"minerva/internal/session"
	"minerva/internal/session/store"
	"minerva/internal/walletcap"
	"minerva/internal/walletcap/ethereum"
)

const (
	auditQueueSize        = 256
	auditBreakerThreshold = 5
	auditBreakerCooldown  = time.Minute
)

// runtime is the wired client: store, identity clients, wallet and session.
type runtime struct {
	cfg      config.Config
	flags    *GlobalFlags
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	wallet   *ethereum.Wallet
	service  *session.Service

	publisher  *audit.Publisher
	closers    []io.Closer
	stopWorker context.CancelFunc
	workerDone chan struct{}
}

func newRuntime(ctx context.Context, flags *GlobalFlags) (rt *runtime, err error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	rt = &runtime{
		cfg:      cfg,
		flags:    flags,
		logger:   logger.New(cfg.Log),
		metrics:  metrics.NewWithRegisterer(registry),
		registry: registry,
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	st, closer, err := store.Open(ctx, cfg, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	rt.closers = append(rt.closers, closer)

	if err := rt.startAudit(ctx); err != nil {
		return nil, err
	}

	existed, err := rt.loadWallet()
	if err != nil {
		return nil, err
	}

	transport := identity.NewTransport(cfg.Backend.URL,
		identity.WithTimeout(cfg.Backend.Timeout),
		identity.WithMetrics(rt.metrics),
	)
	opts := []session.Option{
		session.WithLogger(rt.logger),
		session.WithMetrics(rt.metrics),
		session.WithAuthorizer(transport),
		session.WithLogoutCooldown(cfg.Session.LogoutCooldown),
		session.WithDisconnectGrace(cfg.Session.DisconnectGrace),
		session.WithSkipKYC(cfg.Session.SkipKYC),
	}
	if rt.publisher != nil {
		opts = append(opts, session.WithAuditPublisher(rt.publisher))
	}
	rt.service, err = session.New(st, kyc.New(transport), walletclient.New(transport), rt.wallet, opts...)
	if err != nil {
		return nil, err
	}

	// A remembered wallet behaves like an extension that already granted
	// this client access.
	if existed {
		if err := rt.wallet.Connect(ctx); err != nil {
			return nil, err
		}
	}
	if err := rt.service.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return rt, nil
}

func (rt *runtime) startAudit(ctx context.Context) error {
	if len(rt.cfg.Audit.Brokers) == 0 {
		return nil
	}
	sink, err := audit.NewKafkaStore(rt.cfg.Audit.Brokers, rt.cfg.Audit.Topic)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, sink)

	queue := audit.NewQueue(auditQueueSize)
	worker := audit.NewWorker(sink, queue, rt.logger,
		audit.WithBreaker(audit.NewBreaker(auditBreakerThreshold, auditBreakerCooldown)),
	)
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rt.stopWorker = cancel
	rt.workerDone = make(chan struct{})
	go func() {
		defer close(rt.workerDone)
		_ = worker.Run(workerCtx)
	}()
	rt.publisher = audit.NewPublisher(queue)
	return nil
}

// walletKeyPath keeps the key next to, not inside, the store directory.
func (rt *runtime) walletKeyPath() string {
	if rt.flags.WalletKey != "" {
		return rt.flags.WalletKey
	}
	dir := rt.cfg.Store.Dir
	if dir == "" {
		dir = ".minerva/session"
	}
	return filepath.Join(filepath.Dir(filepath.Clean(dir)), "wallet.key")
}

// loadWallet reads the demo wallet key, generating and saving one on first
// use. It reports whether the key already existed.
func (rt *runtime) loadWallet() (bool, error) {
	opts := []ethereum.Option{ethereum.WithApprover(rt.approve)}
	path := rt.walletKeyPath()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		rt.wallet, err = ethereum.FromHex(strings.TrimSpace(string(raw)), opts...)
		if err != nil {
			return false, fmt.Errorf("load wallet key %s: %w", path, err)
		}
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return false, fmt.Errorf("read wallet key %s: %w", path, err)
	}

	rt.wallet, err = ethereum.Generate(opts...)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("create wallet key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(rt.wallet.KeyHex()+"\n"), 0o600); err != nil {
		return false, fmt.Errorf("write wallet key %s: %w", path, err)
	}
	rt.logger.Info("generated demo wallet", "wallet_address", rt.wallet.Account(), "key_file", path)
	return false, nil
}

// approve asks on the terminal before the wallet signs.
func (rt *runtime) approve(ctx context.Context, message []byte) error {
	if rt.flags.AutoSign {
		return nil
	}
	fmt.Fprintf(os.Stderr, "\n--- signature request ---\n%s\n-------------------------\nSign? [y/N] ", message)
	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer <- strings.ToLower(strings.TrimSpace(line))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case a := <-answer:
		if a == "y" || a == "yes" {
			return nil
		}
		return walletcap.ErrUserRejected
	}
}

// Close stops the audit worker and releases the store.
func (rt *runtime) Close() error {
	if rt.service != nil {
		rt.service.Close()
	}
	if rt.stopWorker != nil {
		rt.stopWorker()
		<-rt.workerDone
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
