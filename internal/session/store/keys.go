package store

import "strings"

// Key is a name in the persisted session namespace.
type Key string

// Persisted session keys. Values are opaque strings; profile keys hold JSON.
const (
	KeyKycToken        Key = "minerva_kyc_token"
	KeyKycUser         Key = "minerva_kyc_user"
	KeyWalletToken     Key = "minerva_token"
	KeyWalletUser      Key = "minerva_user"
	KeyRefreshToken    Key = "minerva_refresh_token"
	KeySessionExpires  Key = "minerva_session_expires"
	KeyWalletCancelled Key = "minerva_wallet_cancelled"
	KeyLoggedOut       Key = "minerva_user_logged_out"
	KeyLogoutTimestamp Key = "minerva_logout_timestamp"
	KeySelectedWallet  Key = "minerva_selected_wallet"
)

// Namespace lists every key the session service owns, in teardown order:
// tokens first so an interrupted teardown never leaves a usable token behind
// a deleted profile.
var Namespace = []Key{
	KeyWalletToken,
	KeyKycToken,
	KeyRefreshToken,
	KeyWalletUser,
	KeyKycUser,
	KeySessionExpires,
	KeySelectedWallet,
	KeyWalletCancelled,
	KeyLoggedOut,
	KeyLogoutTimestamp,
}

// adapterPatterns are substrings of keys left behind by wallet and chain
// adapters sharing the same store.
var adapterPatterns = []string{
	"wallet",
	"solana",
	"phantom",
	"ethereum",
	"metamask",
	"wagmi",
	"connector",
}

// IsAdapterKey reports whether a stored key belongs to wallet or chain adapter
// state that must not survive a full logout.
func IsAdapterKey(key string) bool {
	for _, p := range adapterPatterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(key), "auth")
}
