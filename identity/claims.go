package identity

import "github.com/golang-jwt/jwt/v5"

// Claims are the custom claims carried by identity tokens.
type Claims struct {
	OrganizationID string `json:"org_id"`
	Role           string `json:"role"`
	Email          string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() *Principal {
	return &Principal{
		UserID:         c.Subject,
		OrganizationID: c.OrganizationID,
		Email:          c.Email,
		Role:           ParseRole(c.Role),
	}
}
