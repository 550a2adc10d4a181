package authority

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "minerva/pkg/domain-errors"
)

// Token kinds.
const (
	KindKYC    = "kyc"
	KindWallet = "wallet"
)

// Claims are carried by every access token the authority issues.
type Claims struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Kind          string `json:"kind"`
	WalletAddress string `json:"wallet_address,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access tokens.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenIssuer(signingKey, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs claims valid from now for the issuer's TTL.
func (t *TokenIssuer) Issue(now time.Time, claims Claims) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    t.issuer,
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingKey)
}

func (t *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return t.signingKey, nil
	}, jwt.WithIssuer(t.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
