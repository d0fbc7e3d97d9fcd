package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

// envelope is the shape of every JSON API response.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeError maps err to its caller-facing code. Uncoded errors are reported as internal
// and their text is only logged.
func writeError(w http.ResponseWriter, err error) {
	code := interrors.CodeOf(err)
	if code == interrors.CodeInternal {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, interrors.HTTPStatus(code), envelope{
		Error: &apiError{Code: string(code), Message: interrors.MessageOf(err)},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return interrors.New(interrors.CodeInvalidArgument, "request body is required")
		}
		return interrors.WithCode(interrors.CodeInvalidArgument, err, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
