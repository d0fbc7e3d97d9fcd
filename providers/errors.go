package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// permanentCodes are provider error codes meaning the grant itself is gone.
var permanentCodes = map[string]bool{
	"invalid_grant":         true,
	"unauthorized_client":   true,
	"invalid_refresh_token": true,
	"token_revoked":         true,
	"account_inactive":      true,
	"token_expired":         true, // Slack
	"expired_token":         true, // Box
	"invalid_auth":          true, // Slack
}

// ProviderError is a failed call to a provider endpoint.
type ProviderError struct {
	Provider    Name
	Op          string
	StatusCode  int // 0 when no response was received
	Code        string
	Description string
	Permanent   bool
	Err         error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	if e.Err != nil && e.Code == "" {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError classifies a provider failure. Network errors, 5xx and 429 responses are
// transient; a known grant-revocation code is permanent.
func NewProviderError(provider Name, op string, status int, code, description string, cause error) *ProviderError {
	permanent := permanentCodes[code]
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		permanent = false
	}
	return &ProviderError{
		Provider:    provider,
		Op:          op,
		StatusCode:  status,
		Code:        code,
		Description: description,
		Permanent:   permanent,
		Err:         cause,
	}
}

// IsPermanent reports whether err is a provider error that retrying cannot fix.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// IsPermanentCode reports whether code names a revoked or invalid grant.
func IsPermanentCode(code string) bool {
	return permanentCodes[code]
}

// fromOAuth2Error converts an x/oauth2 error into a ProviderError.
func fromOAuth2Error(provider Name, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return NewProviderError(provider, op, status, re.ErrorCode, re.ErrorDescription, err)
	}
	return NewProviderError(provider, op, 0, "", "", err)
}
