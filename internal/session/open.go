package session

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/auth"
	"github.com/hackplate/hackplate-cli/internal/cache"
	"github.com/hackplate/hackplate-cli/internal/config"
	"github.com/hackplate/hackplate-cli/internal/metrics"
)

// Open builds a session from config. The token is looked up per request:
// the configured token first, then the credentials file.
func Open(cfg config.Config, logger *zap.Logger, rec *metrics.Recorder) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	creds := auth.NewFileStore(cfg.Auth.CredentialsFile)
	opts := []api.Option{
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithTokenSource(auth.Chain(auth.StaticToken(cfg.Auth.Token), creds)),
		api.WithLogger(logger.Named("api")),
	}
	if store != nil {
		opts = append(opts, api.WithCache(store, cfg.Cache.TTL))
	}
	if rec != nil {
		opts = append(opts, api.WithMetrics(rec))
	}
	client := api.NewClient(cfg.API.BaseURL, opts...)

	s := New(client,
		WithLogger(logger),
		WithMetrics(rec),
		WithCredentialStore(creds),
	)
	if store != nil {
		s.closers = append(s.closers, func() error { return cache.Close(store) })
	}
	logger.Debug("session opened",
		zap.String("base_url", client.BaseURL()),
		zap.String("cache", cfg.Cache.Driver),
	)
	return s, nil
}
