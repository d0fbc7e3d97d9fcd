package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBytes = 1 << 20

type apiErrorBody struct {
	Error            any    `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code"`
	ErrorSummary     string `json:"error_summary"`
}

// code extracts an error code from the error shapes used by the supported providers.
func (b apiErrorBody) code() string {
	switch v := b.Error.(type) {
	case string:
		return v
	case map[string]any:
		if tag, ok := v[".tag"].(string); ok {
			return tag
		}
	}
	if b.Code != "" {
		return b.Code
	}
	if b.ErrorSummary != "" {
		return strings.TrimRight(strings.SplitN(b.ErrorSummary, "/", 2)[0], ".")
	}
	return ""
}

// doJSON sends req and decodes a 2xx JSON body into out. Non-2xx responses become a
// ProviderError carrying whatever error code the body holds.
func doJSON(client *http.Client, provider Name, op string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return NewProviderError(provider, op, 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return NewProviderError(provider, op, resp.StatusCode, "", "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorBody
		_ = json.Unmarshal(body, &apiErr)
		return NewProviderError(provider, op, resp.StatusCode, apiErr.code(), apiErr.ErrorDescription,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewProviderError(provider, op, resp.StatusCode, "", "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func newFormRequest(ctx context.Context, endpoint string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func newBearerRequest(ctx context.Context, method, endpoint, accessToken string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
