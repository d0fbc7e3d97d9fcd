package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderCredentials are the process-wide OAuth client credentials of one provider.
type ProviderCredentials struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

// Complete reports whether both halves of the credential pair are present.
func (p ProviderCredentials) Complete() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type ProvidersConfig interface {
	GetProviderCredentials(provider string) (ProviderCredentials, bool)
}

// Providers holds process-wide provider credentials keyed by provider name.
type Providers struct {
	credentials map[string]ProviderCredentials
}

var _ ProvidersConfig = (*Providers)(nil)

type providersFile struct {
	Providers map[string]ProviderCredentials `yaml:"providers"`
}

var knownProviders = []string{"google", "box", "dropbox", "slack"}

// LoadProviders reads credentials from <PROVIDER>_CLIENT_ID / <PROVIDER>_CLIENT_SECRET and
// overlays the YAML file at path, if any. A missing file is not an error.
func LoadProviders(path string) (*Providers, error) {
	p := &Providers{credentials: make(map[string]ProviderCredentials)}
	for _, name := range knownProviders {
		prefix := strings.ToUpper(name)
		creds := ProviderCredentials{
			ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		}
		if creds.ClientID != "" || creds.ClientSecret != "" {
			p.credentials[name] = creds
		}
	}

	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("read providers file %s: %w", path, err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers file %s: %w", path, err)
	}
	for name, creds := range file.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		existing := p.credentials[name]
		if creds.ClientID != "" {
			existing.ClientID = creds.ClientID
		}
		if creds.ClientSecret != "" {
			existing.ClientSecret = creds.ClientSecret
		}
		p.credentials[name] = existing
	}
	return p, nil
}

// NewProviders builds a Providers value from an explicit map, mainly for tests.
func NewProviders(credentials map[string]ProviderCredentials) *Providers {
	p := &Providers{credentials: make(map[string]ProviderCredentials, len(credentials))}
	for k, v := range credentials {
		p.credentials[k] = v
	}
	return p
}

func (p *Providers) GetProviderCredentials(provider string) (ProviderCredentials, bool) {
	if p == nil {
		return ProviderCredentials{}, false
	}
	creds, ok := p.credentials[provider]
	return creds, ok
}
