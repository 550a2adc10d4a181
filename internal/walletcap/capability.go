// Package walletcap defines what the session service needs from a chain
// wallet: the connected address, message signing and disconnect.
package walletcap

//go:generate mockgen -source=capability.go -destination=mocks/mocks.go -package=mocks Capability

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUserRejected is returned when the holder declines a signature prompt.
	ErrUserRejected = errors.New("walletcap: user rejected the request")
	// ErrUnavailable is returned when no account is connected.
	ErrUnavailable = errors.New("walletcap: wallet unavailable")
)

// Capability is a connected (or connectable) chain wallet.
type Capability interface {
	// Address returns the connected address, or false when disconnected.
	Address(ctx context.Context) (string, bool)
	// SignMessage asks the holder to sign message and returns the encoded
	// signature. It may block until the holder answers or ctx is done.
	SignMessage(ctx context.Context, message []byte) (string, error)
	Disconnect(ctx context.Context) error
	// OnAddressChange registers fn for address changes; "" means disconnected.
	OnAddressChange(fn func(address string)) (unsubscribe func())
}

var rejectionWords = []string{"rejected", "cancelled", "canceled", "denied"}

// IsRejection reports whether err means the holder declined. Connector
// libraries often only say so in the message text.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, w := range rejectionWords {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// SameAddress compares two account addresses. Hex addresses are
// case-insensitive; checksummed and lowercase forms name the same account.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
