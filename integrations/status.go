package integrations

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/identity"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/providers"
)

// ConnectionStatus is the caller-visible view of a connection. It never carries tokens.
type ConnectionStatus struct {
	Provider                   providers.Name    `json:"provider"`
	ConnectionID               string            `json:"connectionId,omitempty"`
	AccountEmail               string            `json:"accountEmail"`
	AccountName                string            `json:"accountName"`
	IsActive                   bool              `json:"isActive"`
	RequiresReconnection       bool              `json:"requiresReconnection"`
	TokenExpiresAt             *time.Time        `json:"tokenExpiresAt"`
	Scopes                     []string          `json:"scopes"`
	ConnectedAt                time.Time         `json:"connectedAt"`
	LastRefreshedAt            *time.Time        `json:"lastRefreshedAt,omitempty"`
	ConsecutiveRefreshFailures int               `json:"consecutiveRefreshFailures"`
	Metadata                   map[string]string `json:"metadata,omitempty"`
	// Legacy is set for records that have not been migrated yet.
	Legacy bool `json:"legacy,omitempty"`
}

type ProviderStatus struct {
	Provider        providers.Name     `json:"provider"`
	DisplayName     string             `json:"displayName"`
	MultiConnection bool               `json:"multiConnection"`
	Connected       bool               `json:"connected"`
	Connections     []ConnectionStatus `json:"connections"`
}

// Status summarizes every registered provider's connections for an organization.
func (s *Service) Status(ctx context.Context, principal *identity.Principal, organizationID string) ([]ProviderStatus, error) {
	if principal == nil {
		return nil, interrors.New(interrors.CodeUnauthenticated, "authentication required")
	}
	if organizationID == "" {
		return nil, interrors.New(interrors.CodeInvalidArgument, "organizationId is required")
	}
	if !principal.CanAccess(organizationID) {
		return nil, interrors.New(interrors.CodePermissionDenied, "not a member of this organization")
	}

	stored, err := s.connections.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not list connections")
	}
	byProvider := map[providers.Name][]ConnectionStatus{}
	for _, c := range stored {
		byProvider[c.Provider] = append(byProvider[c.Provider], *statusOf(c, false))
	}

	var out []ProviderStatus
	for _, desc := range s.registry.Descriptors() {
		list := byProvider[desc.Name]
		if len(list) == 0 && !s.connections.IsMultiConnection(desc.Name) {
			key := connections.Key{OrganizationID: organizationID, Provider: desc.Name, UserID: principal.UserID}
			m, err := s.connections.Find(ctx, key)
			switch {
			case err == nil:
				list = append(list, *statusOf(m.Connection, m.Legacy()))
			case !errors.Is(err, interrors.ErrConnectionNotFound):
				return nil, interrors.WithCode(interrors.CodeInternal, err, "could not read connection")
			}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ConnectionID < list[j].ConnectionID })

		ps := ProviderStatus{
			Provider:        desc.Name,
			DisplayName:     desc.DisplayName,
			MultiConnection: desc.MultiConnection,
			Connections:     list,
		}
		if ps.Connections == nil {
			ps.Connections = []ConnectionStatus{}
		}
		for _, c := range list {
			if c.IsActive && !c.RequiresReconnection {
				ps.Connected = true
			}
		}
		out = append(out, ps)
	}
	return out, nil
}

func statusOf(c *connections.Connection, legacy bool) *ConnectionStatus {
	if c == nil {
		return nil
	}
	return &ConnectionStatus{
		Provider:                   c.Provider,
		ConnectionID:               c.ConnectionID,
		AccountEmail:               c.AccountEmail,
		AccountName:                c.AccountName,
		IsActive:                   c.IsActive,
		RequiresReconnection:       c.RequiresReconnection,
		TokenExpiresAt:             c.TokenExpiresAt,
		Scopes:                     c.Scopes,
		ConnectedAt:                c.ConnectedAt,
		LastRefreshedAt:            c.LastRefreshedAt,
		ConsecutiveRefreshFailures: c.ConsecutiveRefreshFailures,
		Metadata:                   c.Metadata,
		Legacy:                     legacy,
	}
}
