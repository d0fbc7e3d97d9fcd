package server

import (
	"html/template"
	"net/http"

	"github.com/jrsteele09/go-integrations-server/integrations"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/rs/zerolog/log"
)

var callbackErrorPage = template.Must(template.New("callback-error").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.AppName}}: connection failed</title></head>
<body>
<h1>We couldn't finish connecting your account</h1>
<p>{{.Message}}</p>
<p>Close this window and start the connection again from the app.</p>
</body>
</html>
`))

// OAuthCallbackHandler completes an authorization and sends the browser back to the page
// that started it. Without a recoverable return address it renders a static error page.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, err := s.service.Callback(r.Context(), integrations.CallbackRequest{
			State:            q.Get("state"),
			Code:             q.Get("code"),
			Error:            q.Get("error"),
			ErrorDescription: q.Get("error_description"),
		})
		if out != nil && out.RedirectURL != "" {
			http.Redirect(w, r, out.RedirectURL, http.StatusFound)
			return
		}

		code := interrors.CodeOf(err)
		if code == "" {
			code = interrors.CodeInternal
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(interrors.HTTPStatus(code))
		data := map[string]string{
			"AppName": s.config.GetAppName(),
			"Message": interrors.MessageOf(err),
		}
		if err := callbackErrorPage.Execute(w, data); err != nil {
			log.Error().Err(err).Msg("Failed to render callback error page")
		}
	}
}
