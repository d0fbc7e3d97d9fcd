package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/jrsteele09/go-integrations-server/internal/app"
	"github.com/jrsteele09/go-integrations-server/internal/config"
)

// bootstrap loads configuration, sets up logging and builds the application.
func bootstrap(ctx context.Context) (config.Config, *app.Application, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, &configError{err: err}
	}
	app.ConfigureLogging(cfg.GetLogLevel(), cfg.GetEnv())
	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, &configError{err: err}
	}
	return cfg, application, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
