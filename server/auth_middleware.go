package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-integrations-server/identity"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/rs/zerolog/log"
)

// RequireAuth validates the Bearer identity token and puts the caller's principal in the
// request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, interrors.WithCode(interrors.CodeUnauthenticated, err, err.Error()))
				return
			}

			principal, err := s.verifier.Verify(r.Context(), token)
			if err != nil {
				message := "invalid token"
				if errors.Is(err, interrors.ErrTokenExpired) {
					message = "token expired"
				}
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Bearer token rejected")
				writeError(w, interrors.WithCode(interrors.CodeUnauthenticated, err, message))
				return
			}

			next(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", interrors.ErrMissingToken
	}
	return token, nil
}

func principalFrom(r *http.Request) *identity.Principal {
	p, _ := identity.PrincipalFrom(r.Context())
	return p
}
