package server

import (
	"net/http"

	"github.com/jrsteele09/go-integrations-server/integrations"
	"github.com/jrsteele09/go-integrations-server/providers"
)

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]string{"status": "ok"})
	}
}

// ProvidersHandler lists the supported providers and their static descriptors.
func (s *Server) ProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, s.service.Registry().Descriptors())
	}
}

// StatusHandler returns the organization's connection summary.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := s.service.Status(r.Context(), principalFrom(r), r.URL.Query().Get("organizationId"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, status)
	}
}

type connectRequest struct {
	OrganizationID string `json:"organizationId"`
	RedirectURL    string `json:"redirectUrl"`
}

func (s *Server) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body connectRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, err)
			return
		}
		resp, err := s.service.Initiate(r.Context(), principalFrom(r), integrations.InitiateRequest{
			Provider:       providers.Name(r.PathValue("provider")),
			OrganizationID: body.OrganizationID,
			RedirectURL:    body.RedirectURL,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, resp)
	}
}

type connectionBody struct {
	OrganizationID string `json:"organizationId"`
	ConnectionID   string `json:"connectionId,omitempty"`
}

func (s *Server) connectionRequest(w http.ResponseWriter, r *http.Request) (integrations.ConnectionRequest, error) {
	var body connectionBody
	if err := decodeJSON(w, r, &body); err != nil {
		return integrations.ConnectionRequest{}, err
	}
	return integrations.ConnectionRequest{
		Provider:       providers.Name(r.PathValue("provider")),
		OrganizationID: body.OrganizationID,
		ConnectionID:   body.ConnectionID,
	}, nil
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.connectionRequest(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		status, err := s.service.Refresh(r.Context(), principalFrom(r), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, status)
	}
}

func (s *Server) DisconnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.connectionRequest(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.service.Revoke(r.Context(), principalFrom(r), req); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, map[string]bool{"disconnected": true})
	}
}
