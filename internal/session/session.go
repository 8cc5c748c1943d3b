// Package session ties the API client to the per-identity state shared by all
// views: the saved set and the rule list.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/auth"
	"github.com/hackplate/hackplate-cli/internal/metrics"
	"github.com/hackplate/hackplate-cli/internal/rules"
	"github.com/hackplate/hackplate-cli/internal/saved"
	"github.com/hackplate/hackplate-cli/internal/search"
)

type Session struct {
	Client *api.Client
	Saved  *saved.Synchronizer
	Rules  *rules.Manager

	store    *auth.FileStore
	logger   *zap.Logger
	metrics  *metrics.Recorder
	observer saved.Observer
	closers  []func() error
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Session) { s.metrics = r }
}

// WithCredentialStore makes SignIn persist the token and SignOut remove it.
func WithCredentialStore(store *auth.FileStore) Option {
	return func(s *Session) { s.store = store }
}

func WithSavedObserver(o saved.Observer) Option {
	return func(s *Session) { s.observer = o }
}

func New(client *api.Client, opts ...Option) *Session {
	s := &Session{Client: client, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	s.Saved = saved.New(client,
		saved.WithLogger(s.logger.Named("saved")),
		saved.WithMetrics(s.metrics),
		saved.WithObserver(s.observer),
	)
	s.Rules = rules.New(client, s.logger)
	return s
}

// NewSearch returns a controller for one view. Controllers are not shared.
func (s *Session) NewSearch(opts ...search.Option) *search.Controller {
	base := []search.Option{search.WithLogger(s.logger), search.WithMetrics(s.metrics)}
	return search.New(s.Client, append(base, opts...)...)
}

func (s *Session) Authenticated(ctx context.Context) bool {
	return s.Client.Authenticated(ctx)
}

// Start loads the shared state for the current identity. Signed out, both
// lists are empty and nothing is requested.
func (s *Session) Start(ctx context.Context) error {
	var errs []error
	if err := s.Saved.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load saved events: %w", err))
	}
	if _, err := s.Rules.Load(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load rules: %w", err))
	}
	return errors.Join(errs...)
}

// SignIn exchanges credentials for a token, persists it when a store is
// configured and reloads the shared state.
func (s *Session) SignIn(ctx context.Context, email, password string) (auth.Credentials, error) {
	tr, err := s.Client.Login(ctx, email, password)
	if err != nil {
		return auth.Credentials{}, err
	}
	creds := auth.Credentials{Token: tr.AccessToken, Email: strings.TrimSpace(email)}
	if s.store != nil {
		if err := s.store.Save(creds); err != nil {
			return auth.Credentials{}, fmt.Errorf("save credentials: %w", err)
		}
		if c, err := s.store.Load(); err == nil {
			creds = c
		}
	}
	s.logger.Info("signed in", zap.String("email", creds.Email))

	s.Saved.Reset()
	s.Rules.Clear()
	if err := s.Start(api.WithToken(ctx, creds.Token)); err != nil {
		s.logger.Warn("load after sign-in failed", zap.Error(err))
	}
	return creds, nil
}

// SignOut forgets the stored token and tears down the shared state.
func (s *Session) SignOut() error {
	s.Saved.Reset()
	s.Rules.Clear()
	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.logger.Info("signed out")
	return nil
}

// Close releases resources acquired by Open.
func (s *Session) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
