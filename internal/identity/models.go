package identity

import (
	"encoding/json"
	"time"
)

// KYC verification states reported by the authority.
const (
	KYCPending  = "pending"
	KYCVerified = "verified"
	KYCRejected = "rejected"
)

// KYCStatus is the verification block attached to every user profile.
type KYCStatus struct {
	Status     string     `json:"status"`
	IsVerified bool       `json:"isVerified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// User is the profile the authority returns from register, login and verify.
type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	EmailVerified     bool       `json:"emailVerified"`
	WalletPubkey      string     `json:"walletPubkey,omitempty"`
	IsWalletConnected bool       `json:"isWalletConnected"`
	CreatedAt         time.Time  `json:"createdAt"`
	KYC               *KYCStatus `json:"kyc,omitempty"`
}

// AuthResult is the data payload of a successful register, login or verify.
// RefreshToken and ExpiresIn are only sent by the KYC endpoints.
type AuthResult struct {
	Token        string `json:"token"`
	User         User   `json:"user"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
}

// envelope is the response wrapper every authority endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}
