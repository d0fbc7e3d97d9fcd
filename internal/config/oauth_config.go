package config

import "time"

type OAuthConfig interface {
	GetStateTTL() time.Duration
	GetStateLookupAttempts() int
	GetStateLookupBackoff() time.Duration
	GetRefreshInterval() time.Duration
	GetRefreshWindow() time.Duration
	GetMaxRefreshFailures() int
	GetProviderTimeout() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetStateTTL() time.Duration {
	return GetEnvDuration("OAUTH_STATE_TTL", 1*time.Hour)
}

// GetStateLookupAttempts bounds the callback's state lookup retries. Set to 1 on a
// strongly consistent store.
func (OAuth) GetStateLookupAttempts() int {
	return GetEnvInt("OAUTH_STATE_LOOKUP_ATTEMPTS", 3)
}

func (OAuth) GetStateLookupBackoff() time.Duration {
	return GetEnvDuration("OAUTH_STATE_LOOKUP_BACKOFF", 100*time.Millisecond)
}

func (OAuth) GetRefreshInterval() time.Duration {
	return GetEnvDuration("REFRESH_SWEEP_INTERVAL", 1*time.Hour)
}

// GetRefreshWindow is how close to expiry a token must be before the sweep refreshes it.
func (OAuth) GetRefreshWindow() time.Duration {
	return GetEnvDuration("REFRESH_WINDOW", 30*time.Minute)
}

func (OAuth) GetMaxRefreshFailures() int {
	return GetEnvInt("MAX_REFRESH_FAILURES", 3)
}

func (OAuth) GetProviderTimeout() time.Duration {
	return GetEnvDuration("PROVIDER_TIMEOUT", 15*time.Second)
}
