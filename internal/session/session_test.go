package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/auth"
	"github.com/hackplate/hackplate-cli/internal/config"
	"github.com/hackplate/hackplate-cli/internal/fakeapi"
	"github.com/hackplate/hackplate-cli/internal/metrics"
	"github.com/hackplate/hackplate-cli/internal/saved"
)

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	return config.Config{
		API:   config.APIConfig{BaseURL: baseURL, Timeout: 5 * time.Second},
		Auth:  config.AuthConfig{CredentialsFile: filepath.Join(t.TempDir(), "credentials.json")},
		Cache: config.CacheConfig{Driver: "memory", TTL: time.Minute, Prefix: "test:"},
	}
}

func TestOpenSignedOut(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()

	s, err := Open(testConfig(t, srv.URL), nil, metrics.New())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.False(t, s.Authenticated(ctx))
	assert.Equal(t, saved.Ready, s.Saved.State())
	assert.Empty(t, s.Rules.Rules())
	assert.Empty(t, srv.Requests(), "signed out start makes no calls")
}

func TestSignInAndOut(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	tok := srv.AddUser("dev@example.com")
	id := srv.AddEvent(fakeapi.Event{Title: "Hack", City: "Pune"})

	// Pre-save through the raw client so Start has something to load.
	c := api.NewClient(srv.URL, api.WithTokenSource(auth.StaticToken(tok)))
	require.NoError(t, c.SaveEvent(context.Background(), api.ID(id)))

	cfg := testConfig(t, srv.URL)
	s, err := Open(cfg, nil, nil)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	creds, err := s.SignIn(ctx, "dev@example.com", "password")
	require.NoError(t, err)
	assert.NotEmpty(t, creds.Token)
	assert.FileExists(t, cfg.Auth.CredentialsFile)

	assert.True(t, s.Authenticated(ctx))
	assert.Equal(t, saved.Ready, s.Saved.State())
	assert.True(t, s.Saved.IsSaved(api.ID(id)))

	require.NoError(t, s.SignOut())
	assert.False(t, s.Authenticated(ctx))
	assert.Equal(t, saved.Uninitialized, s.Saved.State())
	assert.False(t, s.Saved.IsSaved(api.ID(id)))
	_, err = os.Stat(cfg.Auth.CredentialsFile)
	assert.True(t, os.IsNotExist(err))
}

func TestSignInBadPassword(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.AddUser("dev@example.com")

	cfg := testConfig(t, srv.URL)
	s, err := Open(cfg, nil, nil)
	require.NoError(t, err)

	_, err = s.SignIn(context.Background(), "dev@example.com", "nope")
	assert.True(t, api.IsAuthRequired(err))
	assert.NoFileExists(t, cfg.Auth.CredentialsFile)
}

func TestSavedSetIsSharedAcrossViews(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	tok := srv.AddUser("dev@example.com")
	id := srv.AddEvent(fakeapi.Event{Title: "Hack", City: "Pune"})

	var transitions []saved.MutationState
	s := New(api.NewClient(srv.URL, api.WithTokenSource(auth.StaticToken(tok))),
		WithSavedObserver(func(tr saved.Transition) { transitions = append(transitions, tr.State) }),
	)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	dashboard := s.NewSearch()
	favorites := s.NewSearch()
	assert.NotSame(t, dashboard, favorites)

	_, err := s.Saved.Toggle(ctx, api.ID(id))
	require.NoError(t, err)
	assert.True(t, s.Saved.IsSaved(api.ID(id)))
	assert.Equal(t, []saved.MutationState{saved.Idle, saved.Pending, saved.Committed}, transitions)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	s := New(api.NewClient("http://localhost"))
	ctx := WithSession(context.Background(), s)
	assert.Same(t, s, FromContext(ctx))
}
