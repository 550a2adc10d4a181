// Package kyc exchanges email/password credentials with the authority.
package kyc

import (
	"context"
	"net/http"

	"minerva/internal/identity"
	dErrors "minerva/pkg/domain-errors"
)

// Client is the KYC assertion client.
type Client struct {
	transport *identity.Transport
}

// New creates a KYC client over a shared transport.
func New(transport *identity.Transport) *Client {
	return &Client{transport: transport}
}

// Register creates an identity. Input is normalized and validated before any
// network call.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*identity.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var res identity.AuthResult
	if err := c.transport.Do(ctx, "kyc.register", http.MethodPost, "/kyc/register", req, &res); err != nil {
		return nil, identity.Classify(err, credentialStatus)
	}
	if err := checkAuthResult("kyc.register", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Login authenticates an existing identity.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*identity.AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var res identity.AuthResult
	if err := c.transport.Do(ctx, "kyc.login", http.MethodPost, "/kyc/login", req, &res); err != nil {
		return nil, identity.Classify(err, credentialStatus)
	}
	if err := checkAuthResult("kyc.login", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refresh exchanges a refresh token for a new token pair. Any rejection is an
// expired session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, dErrors.New(dErrors.CodeExpiredSession, "no refresh token available")
	}
	var res RefreshResult
	err := c.transport.Do(ctx, "kyc.refresh", http.MethodPost, "/kyc/refresh-token", refreshRequest{RefreshToken: refreshToken}, &res)
	if err != nil {
		return nil, identity.Classify(err, func(int, string) dErrors.Code { return dErrors.CodeExpiredSession })
	}
	if res.AccessToken == "" {
		return nil, identity.Classify(identity.MissingField("kyc.refresh", "accessToken"), nil)
	}
	return &res, nil
}

// Logout notifies the authority. Callers treat it as best effort.
func (c *Client) Logout(ctx context.Context, logoutType LogoutType, refreshToken string) error {
	err := c.transport.Do(ctx, "kyc.logout", http.MethodPost, "/kyc/logout", logoutRequest{Type: logoutType, RefreshToken: refreshToken}, nil)
	return identity.Classify(err, func(int, string) dErrors.Code { return dErrors.CodeUnauthorized })
}

func credentialStatus(status int, _ string) dErrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return dErrors.CodeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return dErrors.CodeInvalidCredentials
	case http.StatusConflict:
		return dErrors.CodeConflict
	case http.StatusTooManyRequests:
		return dErrors.CodeNetwork
	default:
		return dErrors.CodeBadRequest
	}
}

func checkAuthResult(operation string, res *identity.AuthResult) error {
	switch {
	case res.Token == "":
		return identity.Classify(identity.MissingField(operation, "token"), nil)
	case res.User.Email == "":
		return identity.Classify(identity.MissingField(operation, "user.email"), nil)
	}
	return nil
}
