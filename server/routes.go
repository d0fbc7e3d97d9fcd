package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthHandler())
	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	}

	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.BrowserMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteProviders, ChainMiddleware(s.ProvidersHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteIntegrations, ChainMiddleware(s.StatusHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteConnect, ChainMiddleware(s.ConnectHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteDisconnect, ChainMiddleware(s.DisconnectHandler(), s.APIMiddleware(s.RequireAuth())...))

	// Preflight for browser clients
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {}, s.APIMiddleware()...))
}
