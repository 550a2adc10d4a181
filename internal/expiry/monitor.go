// Package expiry watches the KYC session lifetime and warns, refreshes or
// logs out as it runs down.
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"minerva/internal/audit"
	"minerva/internal/session"
	"minerva/pkg/requestcontext"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultWarning  = 5 * time.Minute
)

// Session is the part of the session service the monitor drives.
type Session interface {
	SessionInfo() session.SessionInfo
	Refresh(ctx context.Context) error
	Expire(ctx context.Context) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Status is the outcome of one evaluation.
type Status string

const (
	StatusNoSession    Status = "no_session"
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusRefreshed    Status = "refreshed"
	StatusExpired      Status = "expired"
)

// Event reports one evaluation. Remaining is zero once expired.
type Event struct {
	Status    Status
	ExpiresAt time.Time
	Remaining time.Duration
	Err       error
}

// Monitor polls the session's remaining lifetime.
type Monitor struct {
	session        Session
	interval       time.Duration
	warning        time.Duration
	autoRefresh    bool
	logger         *slog.Logger
	auditPublisher AuditPublisher
	notify         func(Event)
	events         chan Event

	mu        sync.Mutex
	warnedFor time.Time
	refreshed time.Time
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithWarning sets how much remaining lifetime counts as expiring soon.
func WithWarning(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.warning = d
		}
	}
}

// WithAutoRefresh makes the monitor refresh once per expiring-soon window
// instead of only warning.
func WithAutoRefresh(enabled bool) Option {
	return func(m *Monitor) {
		m.autoRefresh = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(m *Monitor) {
		m.auditPublisher = publisher
	}
}

// WithCallback registers fn for every event other than StatusActive and
// StatusNoSession. It runs on the monitor goroutine.
func WithCallback(fn func(Event)) Option {
	return func(m *Monitor) {
		m.notify = fn
	}
}

func New(sess Session, opts ...Option) (*Monitor, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	m := &Monitor{
		session:  sess,
		interval: DefaultInterval,
		warning:  DefaultWarning,
		logger:   slog.Default(),
		events:   make(chan Event, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Events delivers the same events as the callback. Sends never block; a
// reader that falls behind sees only the latest event.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Run evaluates immediately and then on every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			m.Tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick performs one evaluation at requestcontext.Now(ctx).
func (m *Monitor) Tick(ctx context.Context) Event {
	now := requestcontext.Now(ctx)
	info := m.session.SessionInfo()
	if !info.IsKycAuthenticated || info.SessionExpiresAt == nil {
		m.reset()
		return Event{Status: StatusNoSession}
	}
	expiresAt := *info.SessionExpiresAt
	remaining := expiresAt.Sub(now)

	switch {
	case remaining <= 0:
		m.reset()
		ev := Event{Status: StatusExpired, ExpiresAt: expiresAt}
		if err := m.session.Expire(ctx); err != nil {
			m.logger.ErrorContext(ctx, "logout of expired session incomplete", "error", err)
			ev.Err = err
		}
		m.publish(ev)
		return ev

	case remaining <= m.warning:
		if m.autoRefresh && m.claimRefresh(expiresAt) {
			return m.refresh(ctx, expiresAt)
		}
		ev := Event{Status: StatusExpiringSoon, ExpiresAt: expiresAt, Remaining: remaining}
		if m.claimWarning(expiresAt) {
			m.logAudit(ctx, info.Email, remaining)
		}
		m.publish(ev)
		return ev

	default:
		return Event{Status: StatusActive, ExpiresAt: expiresAt, Remaining: remaining}
	}
}

func (m *Monitor) refresh(ctx context.Context, previous time.Time) Event {
	if err := m.session.Refresh(ctx); err != nil {
		// Refresh has already logged the session out.
		ev := Event{Status: StatusExpired, ExpiresAt: previous, Err: err}
		m.publish(ev)
		return ev
	}
	ev := Event{Status: StatusRefreshed}
	if info := m.session.SessionInfo(); info.SessionExpiresAt != nil {
		ev.ExpiresAt = *info.SessionExpiresAt
		ev.Remaining = ev.ExpiresAt.Sub(requestcontext.Now(ctx))
	}
	m.publish(ev)
	return ev
}

// claimRefresh reports whether no refresh has been attempted for this expiry.
func (m *Monitor) claimRefresh(expiresAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshed.Equal(expiresAt) {
		return false
	}
	m.refreshed = expiresAt
	return true
}

func (m *Monitor) claimWarning(expiresAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warnedFor.Equal(expiresAt) {
		return false
	}
	m.warnedFor = expiresAt
	return true
}

func (m *Monitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnedFor = time.Time{}
	m.refreshed = time.Time{}
}

func (m *Monitor) publish(ev Event) {
	if m.notify != nil {
		m.notify(ev)
	}
	select {
	case m.events <- ev:
	default:
		select {
		case <-m.events:
		default:
		}
		select {
		case m.events <- ev:
		default:
		}
	}
}

func (m *Monitor) logAudit(ctx context.Context, emailAddr string, remaining time.Duration) {
	event := audit.EventSessionExpiring
	m.logger.InfoContext(ctx, string(event),
		"email", emailAddr,
		"remaining", remaining.Round(time.Second).String(),
		"event", string(event),
		"log_type", "audit",
	)
	if m.auditPublisher == nil {
		return
	}
	_ = m.auditPublisher.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		Action:    string(event),
		Email:     emailAddr,
		Reason:    "lifetime_low",
		RequestID: requestcontext.RequestID(ctx),
	})
}
