package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
)

// Verifier validates a raw bearer token and returns its principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// HMACVerifier validates HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

var _ Verifier = (*HMACVerifier)(nil)

type HMACOption func(*HMACVerifier)

// WithNowTime overrides the clock used for expiry checks.
func WithNowTime(now func() time.Time) HMACOption {
	return func(v *HMACVerifier) {
		v.now = now
	}
}

// NewHMACVerifier creates a verifier. Empty issuer or audience disables that check.
func NewHMACVerifier(secret, issuer, audience string, opts ...HMACOption) *HMACVerifier {
	v := &HMACVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Principal, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, interrors.ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, interrors.ErrTokenExpired
		}
		return nil, interrors.Wrapf(interrors.ErrInvalidToken, "%v", err)
	}
	return principalFromClaims(claims)
}

// OIDCVerifier validates tokens from an external OpenID Connect issuer.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ Verifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier discovers the issuer's keys. audience is the expected client id.
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: audience})}, nil
}

// NewOIDCVerifierWithKeySet skips discovery and verifies against keySet.
func NewOIDCVerifierWithKeySet(issuer, audience string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: audience})}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, interrors.ErrMissingToken
	}
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, interrors.ErrTokenExpired
		}
		return nil, interrors.Wrapf(interrors.ErrInvalidToken, "%v", err)
	}

	claims := &Claims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, interrors.Wrapf(interrors.ErrInvalidToken, "claims: %v", err)
	}
	claims.Subject = idToken.Subject
	return principalFromClaims(claims)
}

func principalFromClaims(claims *Claims) (*Principal, error) {
	if claims.Subject == "" {
		return nil, interrors.Wrapf(interrors.ErrInvalidToken, "missing subject")
	}
	return claims.Principal(), nil
}
