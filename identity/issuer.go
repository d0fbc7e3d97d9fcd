package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs HS256 identity tokens accepted by HMACVerifier. It backs local tooling and tests.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewIssuer(secret, issuer, audience string) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}
}

func (i *Issuer) Sign(p *Principal, ttl time.Duration) (string, error) {
	now := i.now()
	claims := &Claims{
		OrganizationID: p.OrganizationID,
		Role:           string(p.Role),
		Email:          p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, nil
}
