package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the session client.
type Metrics struct {
	KycInstalled     prometheus.Counter
	IdentitySwitches prometheus.Counter
	WalletLinks      *prometheus.CounterVec
	Mismatches       prometheus.Counter
	Logouts          *prometheus.CounterVec
	Refreshes        *prometheus.CounterVec
	Expirations      prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// New creates and registers all metrics against the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers against reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		KycInstalled: f.NewCounter(prometheus.CounterOpts{
			Name: "minerva_kyc_sessions_installed_total",
			Help: "KYC identities installed after register or login",
		}),
		IdentitySwitches: f.NewCounter(prometheus.CounterOpts{
			Name: "minerva_kyc_identity_switches_total",
			Help: "KYC installs that replaced a different identity and tore down its wallet session",
		}),
		WalletLinks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minerva_wallet_links_total",
			Help: "Wallet link attempts by outcome",
		}, []string{"outcome"}),
		Mismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "minerva_wallet_address_mismatches_total",
			Help: "Wallet sessions discarded because the connected address changed",
		}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minerva_logouts_total",
			Help: "Logouts by type",
		}, []string{"type"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minerva_session_refreshes_total",
			Help: "Session refresh attempts by outcome",
		}, []string{"outcome"}),
		Expirations: f.NewCounter(prometheus.CounterOpts{
			Name: "minerva_session_expirations_total",
			Help: "Sessions ended by the expiry monitor",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minerva_identity_request_duration_seconds",
			Help:    "Latency of identity authority requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}
}

// IncWalletLink counts one link attempt; nil receivers are a no-op so services
// can run without metrics.
func (m *Metrics) IncWalletLink(outcome string) {
	if m == nil {
		return
	}
	m.WalletLinks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLogout(logoutType string) {
	if m == nil {
		return
	}
	m.Logouts.WithLabelValues(logoutType).Inc()
}

func (m *Metrics) IncRefresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncKycInstalled(switched bool) {
	if m == nil {
		return
	}
	m.KycInstalled.Inc()
	if switched {
		m.IdentitySwitches.Inc()
	}
}

func (m *Metrics) IncMismatch() {
	if m == nil {
		return
	}
	m.Mismatches.Inc()
}

func (m *Metrics) IncExpiration() {
	if m == nil {
		return
	}
	m.Expirations.Inc()
}

func (m *Metrics) ObserveRequest(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(operation, outcome).Observe(seconds)
}
