// Package wallet exchanges wallet signatures with the authority.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"minerva/internal/identity"
	dErrors "minerva/pkg/domain-errors"
)

// KycRequiredCode is the error string the authority sends with 403 when a
// wallet has no KYC identity behind it.
const KycRequiredCode = "KYC_REQUIRED"

// Nonce is the one-time challenge issued for a wallet address. Timestamp is
// embedded in the signed message verbatim.
type Nonce struct {
	Nonce     string      `json:"nonce"`
	Timestamp json.Number `json:"timestamp"`
}

// VerifyRequest submits a signed challenge.
type VerifyRequest struct {
	WalletPubkey string `json:"walletPubkey"`
	Signature    string `json:"signature"`
	Nonce        string `json:"nonce"`
	KycEmail     string `json:"kycEmail,omitempty"`
}

// Client is the wallet assertion client.
type Client struct {
	transport *identity.Transport
}

// New creates a wallet client over a shared transport.
func New(transport *identity.Transport) *Client {
	return &Client{transport: transport}
}

// FetchNonce asks the authority for a challenge nonce bound to address.
func (c *Client) FetchNonce(ctx context.Context, address string) (*Nonce, error) {
	if strings.TrimSpace(address) == "" {
		return nil, dErrors.Validation(map[string]string{"wallet": "Wallet address is required"})
	}
	var res Nonce
	path := "/auth/nonce?wallet=" + url.QueryEscape(address)
	if err := c.transport.Do(ctx, "wallet.nonce", http.MethodGet, path, nil, &res); err != nil {
		return nil, identity.Classify(err, func(int, string) dErrors.Code { return dErrors.CodeNetwork })
	}
	if res.Nonce == "" {
		return nil, identity.Classify(identity.MissingField("wallet.nonce", "nonce"), nil)
	}
	return &res, nil
}

// Verify submits the signature. A 403 KYC_REQUIRED maps to CodeKycRequired;
// every other rejection is an invalid signature.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*identity.AuthResult, error) {
	var res identity.AuthResult
	if err := c.transport.Do(ctx, "wallet.verify", http.MethodPost, "/auth/verify", req, &res); err != nil {
		return nil, identity.Classify(err, verifyStatus)
	}
	if res.Token == "" {
		return nil, identity.Classify(identity.MissingField("wallet.verify", "token"), nil)
	}
	return &res, nil
}

func verifyStatus(status int, code string) dErrors.Code {
	if status == http.StatusForbidden && strings.EqualFold(code, KycRequiredCode) {
		return dErrors.CodeKycRequired
	}
	if status == http.StatusTooManyRequests {
		return dErrors.CodeNetwork
	}
	return dErrors.CodeSignatureInvalid
}

// ChallengeMessage builds the text the wallet is asked to sign.
func ChallengeMessage(address string, nonce *Nonce) string {
	return fmt.Sprintf("Welcome to Minerva Estate!\n\n"+
		"Please sign this message to authenticate your wallet.\n\n"+
		"This is a secure authentication process that proves you own this wallet address.\n\n"+
		"Wallet: %s\nNonce: %s\nTime: %s\n\n"+
		"By signing this message, you agree to authenticate with Minerva Estate platform.",
		address, nonce.Nonce, nonce.Timestamp.String())
}
