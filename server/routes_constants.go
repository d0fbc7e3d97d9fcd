package server

import "github.com/jrsteele09/go-integrations-server/integrations"

// Route path constants
const (
	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"

	// OAuth callback, registered with every provider
	RouteCallback = integrations.CallbackPath

	// API Routes
	RouteProviders    = "/api/providers"
	RouteIntegrations = "/api/integrations"
	RouteConnect      = "/api/integrations/{provider}/connect"
	RouteRefresh      = "/api/integrations/{provider}/refresh"
	RouteDisconnect   = "/api/integrations/{provider}/disconnect"
)
