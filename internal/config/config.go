package config

import "fmt"

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	ProvidersConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
	GetStoreDriver() string
	GetDatabaseDSN() string
	GetStateStoreDriver() string
	GetRedisAddr() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	*Providers
}

// New builds the process configuration. Provider credentials are read once, from the
// environment and the optional PROVIDERS_FILE.
func New() (Config, error) {
	providers, err := LoadProviders(GetEnv(providersFileVar, ""))
	if err != nil {
		return nil, fmt.Errorf("[config New] %w", err)
	}
	return mainConfig{Providers: providers}, nil
}
