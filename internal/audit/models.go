package audit

import "time"

// EventCategory classifies audit events by their primary purpose so sinks can
// route or sample them differently.
type EventCategory string

const (
	// CategorySecurity covers identity changes and forced session teardown.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine session activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the session service to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category      EventCategory `json:"category"`
	Timestamp     time.Time     `json:"timestamp"`
	Action        string        `json:"action"`
	Email         string        `json:"email,omitempty"`
	WalletAddress string        `json:"walletAddress,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	RequestID     string        `json:"requestId,omitempty"`
}

type AuditEvent string

const (
	EventKycInstalled        AuditEvent = "kyc_session_installed"
	EventIdentitySwitched    AuditEvent = "kyc_identity_switched"
	EventWalletLinked        AuditEvent = "wallet_linked"
	EventWalletLinkFailed    AuditEvent = "wallet_link_failed"
	EventWalletMismatch      AuditEvent = "wallet_address_mismatch"
	EventWalletDisconnected  AuditEvent = "wallet_disconnected"
	EventConnectionCancelled AuditEvent = "wallet_connection_cancelled"
	EventWalletLogout        AuditEvent = "wallet_logout"
	EventFullLogout          AuditEvent = "full_logout"
	EventSessionRefreshed    AuditEvent = "session_refreshed"
	EventRefreshFailed       AuditEvent = "session_refresh_failed"
	EventSessionRestored     AuditEvent = "session_restored"
	EventSessionExpiring     AuditEvent = "session_expiring"
	EventSessionExpired      AuditEvent = "session_expired"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventIdentitySwitched: CategorySecurity,
	EventWalletLinkFailed: CategorySecurity,
	EventWalletMismatch:   CategorySecurity,
	EventRefreshFailed:    CategorySecurity,
	EventSessionExpired:   CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
