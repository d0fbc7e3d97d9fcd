package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-integrations-server/docstore"
	"github.com/jrsteele09/go-integrations-server/envelope"
	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/rs/zerolog/log"
)

const (
	SourceOrganization       = "organization"
	SourceOrganizationLegacy = "organization-legacy"
	SourceProcess            = "process"
)

// ConfigError is returned when no source holds complete credentials for a provider.
type ConfigError struct {
	Provider       Name
	OrganizationID string
	Checked        []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured for organization %s (checked: %s)",
		e.Provider, e.OrganizationID, strings.Join(e.Checked, ", "))
}

// CredentialSource is one location that may hold a provider's client registration.
type CredentialSource interface {
	Name() string
	// Location describes where the source looked, for error messages.
	Location(organizationID string, provider Name) string
	Lookup(ctx context.Context, organizationID string, provider Name) (Credentials, bool, error)
}

// CredentialResolver tries its sources in order; the first complete match wins.
type CredentialResolver struct {
	sources []CredentialSource
}

func NewCredentialResolver(sources ...CredentialSource) *CredentialResolver {
	return &CredentialResolver{sources: sources}
}

// NewDefaultCredentialResolver chains the per-organization document, the legacy settings
// document and process configuration.
func NewDefaultCredentialResolver(store docstore.Store, secret string, process config.ProvidersConfig) *CredentialResolver {
	return NewCredentialResolver(
		&OrganizationSource{store: store, secret: secret},
		&LegacyOrganizationSource{store: store, secret: secret},
		&ProcessSource{config: process},
	)
}

func (r *CredentialResolver) Resolve(ctx context.Context, organizationID string, provider Name) (Credentials, error) {
	checked := make([]string, 0, len(r.sources))
	for _, source := range r.sources {
		checked = append(checked, source.Location(organizationID, provider))
		creds, ok, err := source.Lookup(ctx, organizationID, provider)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Credentials{}, err
			}
			log.Warn().Err(err).Str("provider", provider.String()).Str("organizationId", organizationID).
				Str("source", source.Name()).Msg("credential source failed, trying next")
			continue
		}
		if ok && creds.Complete() {
			creds.Source = source.Name()
			return creds, nil
		}
	}
	return Credentials{}, &ConfigError{Provider: provider, OrganizationID: organizationID, Checked: checked}
}

// OrganizationSource reads organizations/{org}/providerConfigs/{provider}. The client secret
// is stored sealed.
type OrganizationSource struct {
	store  docstore.Store
	secret string
}

func NewOrganizationSource(store docstore.Store, secret string) *OrganizationSource {
	return &OrganizationSource{store: store, secret: secret}
}

func (s *OrganizationSource) Name() string { return SourceOrganization }

func (s *OrganizationSource) Location(organizationID string, provider Name) string {
	return OrganizationConfigPath(organizationID, provider)
}

func OrganizationConfigPath(organizationID string, provider Name) string {
	return docstore.Join("organizations", organizationID, "providerConfigs", provider.String())
}

func (s *OrganizationSource) Lookup(ctx context.Context, organizationID string, provider Name) (Credentials, bool, error) {
	doc, err := s.store.Get(ctx, s.Location(organizationID, provider))
	if errors.Is(err, docstore.ErrNotFound) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}
	var stored struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := docstore.Decode(doc, &stored); err != nil {
		return Credentials{}, false, err
	}
	clientSecret, err := envelope.Open(stored.ClientSecret, s.secret)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("client secret: %w", err)
	}
	return Credentials{ClientID: stored.ClientID, ClientSecret: clientSecret}, true, nil
}

// Save seals the client secret and stores credentials for an organization.
func (s *OrganizationSource) Save(ctx context.Context, organizationID string, provider Name, creds Credentials) error {
	if !creds.Complete() {
		return errors.New("client id and secret are required")
	}
	sealed, err := envelope.Encrypt(creds.ClientSecret, s.secret)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.Location(organizationID, provider), map[string]any{
		"clientId":     creds.ClientID,
		"clientSecret": sealed,
	})
}

// LegacyOrganizationSource reads the older organizations/{org}/settings/oauth document that
// holds every provider as {provider}ClientId / {provider}ClientSecret fields.
type LegacyOrganizationSource struct {
	store  docstore.Store
	secret string
}

func (s *LegacyOrganizationSource) Name() string { return SourceOrganizationLegacy }

func (s *LegacyOrganizationSource) Location(organizationID string, _ Name) string {
	return LegacySettingsPath(organizationID)
}

func LegacySettingsPath(organizationID string) string {
	return docstore.Join("organizations", organizationID, "settings", "oauth")
}

func (s *LegacyOrganizationSource) Lookup(ctx context.Context, organizationID string, provider Name) (Credentials, bool, error) {
	doc, err := s.store.Get(ctx, LegacySettingsPath(organizationID))
	if errors.Is(err, docstore.ErrNotFound) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}
	clientID, _ := doc.Data[provider.String()+"ClientId"].(string)
	rawSecret, _ := doc.Data[provider.String()+"ClientSecret"].(string)
	if clientID == "" || rawSecret == "" {
		return Credentials{}, false, nil
	}
	clientSecret, err := envelope.Open(rawSecret, s.secret)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("client secret: %w", err)
	}
	return Credentials{ClientID: clientID, ClientSecret: clientSecret}, true, nil
}

// ProcessSource reads process-wide credentials from configuration.
type ProcessSource struct {
	config config.ProvidersConfig
}

func NewProcessSource(cfg config.ProvidersConfig) *ProcessSource {
	return &ProcessSource{config: cfg}
}

func (s *ProcessSource) Name() string { return SourceProcess }

func (s *ProcessSource) Location(_ string, provider Name) string {
	return "process config " + strings.ToUpper(provider.String()) + "_CLIENT_ID"
}

func (s *ProcessSource) Lookup(_ context.Context, _ string, provider Name) (Credentials, bool, error) {
	if s.config == nil {
		return Credentials{}, false, nil
	}
	creds, ok := s.config.GetProviderCredentials(provider.String())
	if !ok {
		return Credentials{}, false, nil
	}
	return Credentials{ClientID: creds.ClientID, ClientSecret: creds.ClientSecret}, true, nil
}
