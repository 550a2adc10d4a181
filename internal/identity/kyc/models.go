package kyc

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"minerva/pkg/email"
	dErrors "minerva/pkg/domain-errors"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
	usernamePattern   = `^[a-zA-Z0-9_]+$`
)

// LogoutType selects how much of the session a logout destroys.
type LogoutType string

const (
	LogoutWallet LogoutType = "wallet"
	LogoutFull   LogoutType = "full"
)

// RegisterRequest creates a KYC identity. ConfirmPassword is checked locally
// and never sent.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
}

// Normalize trims the username and normalizes the email.
func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.Username = strings.TrimSpace(r.Username)
	r.Email = email.Normalize(r.Email)
}

// Validate returns a validation error listing every failing field.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	fields := map[string]string{}
	switch {
	case r.Username == "":
		fields["username"] = "Username is required"
	case len(r.Username) < minUsernameLength:
		fields["username"] = "Username must be at least 3 characters"
	case !govalidator.Matches(r.Username, usernamePattern):
		fields["username"] = "Username can only contain letters, numbers, and underscores"
	}
	validateEmail(r.Email, fields)
	switch {
	case r.Password == "":
		fields["password"] = "Password is required"
	case len(r.Password) < minPasswordLength:
		fields["password"] = "Password must be at least 6 characters"
	}
	if r.ConfirmPassword != "" && r.ConfirmPassword != r.Password {
		fields["confirmPassword"] = "Passwords do not match"
	}
	if len(fields) > 0 {
		return dErrors.Validation(fields)
	}
	return nil
}

// LoginRequest authenticates an existing KYC identity.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = email.Normalize(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	fields := map[string]string{}
	validateEmail(r.Email, fields)
	if r.Password == "" {
		fields["password"] = "Please enter your password"
	}
	if len(fields) > 0 {
		return dErrors.Validation(fields)
	}
	return nil
}

func validateEmail(address string, fields map[string]string) {
	switch {
	case address == "":
		fields["email"] = "Email is required"
	case !email.Valid(address):
		fields["email"] = "Please enter a valid email address"
	}
}

// RefreshResult is the data payload of POST /kyc/refresh-token.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	Type         LogoutType `json:"type"`
	RefreshToken string     `json:"refreshToken,omitempty"`
}
