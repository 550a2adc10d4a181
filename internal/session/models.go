package session

import (
	"time"

	"minerva/internal/identity"
	"minerva/internal/identity/kyc"
	"minerva/pkg/email"
)

// KycIdentity is the email/password identity. It shares the wire profile's
// JSON shape so the stored value round-trips exactly.
type KycIdentity identity.User

// WalletSession is the wallet-signature identity. It is only valid while a
// KycIdentity with Email == LinkedKycEmail is installed and the connected
// address equals WalletAddress.
type WalletSession struct {
	WalletAddress  string
	AccessToken    string
	User           identity.User
	LinkedKycEmail string
}

// SessionExpiry is the KYC token set. AccessToken is the KYC access token.
type SessionExpiry struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IntentFlags suppress automatic link prompts.
type IntentFlags struct {
	UserCancelledConnection bool
	ExplicitlyLoggedOut     bool
	LogoutTimestamp         time.Time
}

// SelectedWallet describes the connector the user picked.
type SelectedWallet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// AccessLevel is derived from which identities are present; it is never stored.
type AccessLevel string

const (
	AccessGuest              AccessLevel = "guest"
	AccessEmailVerified      AccessLevel = "email_verified"
	AccessKycVerified        AccessLevel = "kyc_verified"
	AccessFullyAuthenticated AccessLevel = "fully_authenticated"
)

// State is the linking state machine's current node.
type State string

const (
	StateGuest                   State = "guest"
	StateKycOnly                 State = "kyc_only"
	StateWalletConnectedUnlinked State = "wallet_connected_unlinked"
	// StateRelinking follows a mismatch that discarded the wallet session
	// while a wallet is still connected.
	StateRelinking               State = "relinking"
	StateFullyLinked             State = "fully_linked"
)

// SessionInfo is a read-only projection of the merged session.
type SessionInfo struct {
	IsKycAuthenticated      bool        `json:"isKycAuthenticated"`
	IsWalletConnected       bool        `json:"isWalletConnected"`
	IsEmailVerified         bool        `json:"isEmailVerified"`
	AccessLevel             AccessLevel `json:"accessLevel"`
	SessionExpiresAt        *time.Time  `json:"sessionExpiresAt,omitempty"`
	WalletConnectedUnlinked bool        `json:"walletConnectedUnlinked"`
	Email                   string      `json:"email,omitempty"`
	WalletAddress           string      `json:"walletAddress,omitempty"`
}

// LogoutType selects wallet-only or full teardown.
type LogoutType = kyc.LogoutType

const (
	LogoutWallet = kyc.LogoutWallet
	LogoutFull   = kyc.LogoutFull
)

// sameIdentity reports whether two KYC profiles name the same account.
func sameIdentity(a, b KycIdentity) bool {
	return a.ID == b.ID && a.Username == b.Username && email.Equal(a.Email, b.Email)
}

// accessLevel is a pure function of which identities are present.
func accessLevel(kycPresent, walletPresent, emailVerified bool) AccessLevel {
	switch {
	case kycPresent && walletPresent:
		return AccessFullyAuthenticated
	case kycPresent:
		return AccessKycVerified
	case emailVerified:
		return AccessEmailVerified
	default:
		return AccessGuest
	}
}
