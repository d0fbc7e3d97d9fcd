package config

import "time"

type SecurityConfig interface {
	GetEncryptionKey() string
	GetIdentitySecret() string
	GetIdentityIssuer() string
	GetIdentityAudience() string
	GetIdentityOIDCIssuer() string
	GetRateLimit() (requests int, window time.Duration)
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetEncryptionKey is the secret every stored token and client secret is sealed with.
// It must be at least 32 characters.
func (Security) GetEncryptionKey() string {
	return GetEnv("TOKEN_ENCRYPTION_KEY", "")
}

// GetIdentitySecret is the HMAC key used to verify bearer identity tokens.
func (Security) GetIdentitySecret() string {
	return GetEnv("IDENTITY_SECRET", "")
}

func (Security) GetIdentityIssuer() string {
	return GetEnv("IDENTITY_ISSUER", "")
}

func (Security) GetIdentityAudience() string {
	return GetEnv("IDENTITY_AUDIENCE", "")
}

// GetIdentityOIDCIssuer switches bearer verification to a remote OIDC issuer when set.
func (Security) GetIdentityOIDCIssuer() string {
	return GetEnv("IDENTITY_OIDC_ISSUER", "")
}

func (Security) GetRateLimit() (int, time.Duration) {
	return GetEnvInt("RATELIMIT_REQUESTS", 60), GetEnvDuration("RATELIMIT_WINDOW", time.Minute)
}
