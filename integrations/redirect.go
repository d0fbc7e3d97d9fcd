package integrations

import (
	"net/url"
	"strings"
)

// appendQuery appends key/value pairs to raw without re-encoding the existing query, so
// the caller's URL comes back byte-for-byte with the new parameters on the end. A fragment
// stays last.
func appendQuery(raw string, pairs ...string) string {
	fragment := ""
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw, fragment = raw[:i], raw[i:]
	}

	var b strings.Builder
	b.WriteString(raw)
	switch {
	case !strings.Contains(raw, "?"):
		b.WriteByte('?')
	case !strings.HasSuffix(raw, "?") && !strings.HasSuffix(raw, "&"):
		b.WriteByte('&')
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pairs[i]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pairs[i+1]))
	}
	b.WriteString(fragment)
	return b.String()
}

func successRedirect(redirectURL, provider string) string {
	return appendQuery(redirectURL, "oauth_success", "true", "provider", provider)
}

func errorRedirect(redirectURL, code, provider string) string {
	if redirectURL == "" {
		return ""
	}
	return appendQuery(redirectURL, "oauth_error", code, "provider", provider)
}

// validRedirectURL accepts absolute http(s) URLs only.
func validRedirectURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
