package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hackplate/hackplate-cli/internal/auth"
)

type authStatus struct {
	SignedIn  bool   `json:"signed_in"`
	Email     string `json:"email,omitempty"`
	Subject   string `json:"subject,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Source    string `json:"source,omitempty"`
	// Shadowed names a stored login that is ignored because the configured
	// token takes precedence.
	Shadowed string `json:"shadowed,omitempty"`
}

func authCmd(ctx context.Context, c *Context, args []string) error {
	if len(args) == 0 {
		return errors.New("auth subcommand required: login|register|logout|status|me")
	}
	switch args[0] {
	case "login":
		fs := c.flags("auth login")
		email := fs.String("email", "", "Account email")
		password := fs.String("password", "", "Password (env: HACKPLATE_PASSWORD)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		pw := passwordOrEnv(*password)
		if strings.TrimSpace(*email) == "" || pw == "" {
			return errors.New("usage: hackplate auth login --email <email> --password <password>")
		}
		creds, err := c.Session.SignIn(ctx, *email, pw)
		if err != nil {
			return err
		}
		st := authStatus{SignedIn: true, Email: creds.Email, ExpiresAt: creds.ExpiresAt, Source: "credentials_file"}
		if configuredToken(c) != "" {
			c.Logger.Warn("configured token takes precedence over the new login; unset --token or HACKPLATE_AUTH_TOKEN to use it")
			st = status(ctx, c)
		}
		return c.write(st)

	case "register":
		fs := c.flags("auth register")
		email := fs.String("email", "", "Account email")
		password := fs.String("password", "", "Password (env: HACKPLATE_PASSWORD)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		pw := passwordOrEnv(*password)
		if strings.TrimSpace(*email) == "" || pw == "" {
			return errors.New("usage: hackplate auth register --email <email> --password <password>")
		}
		u, err := c.Session.Client.Register(ctx, *email, pw)
		if err != nil {
			return err
		}
		return c.write(u)

	case "logout":
		if err := c.Session.SignOut(); err != nil {
			return err
		}
		return c.write(authStatus{SignedIn: false})

	case "status":
		return c.write(status(ctx, c))

	case "me":
		u, err := c.Session.Client.Me(ctx)
		if err != nil {
			return err
		}
		return c.write(u)

	default:
		return fmt.Errorf("unknown auth subcommand: %s", args[0])
	}
}

func passwordOrEnv(v string) string {
	if v != "" {
		return v
	}
	return os.Getenv("HACKPLATE_PASSWORD")
}

// configuredToken is the live --token or HACKPLATE_AUTH_TOKEN value. It wins
// over the credentials file.
func configuredToken(c *Context) string {
	tok := strings.TrimSpace(c.Config.Auth.Token)
	if tok == "" || auth.Expired(tok, time.Now()) {
		return ""
	}
	return tok
}

func status(ctx context.Context, c *Context) authStatus {
	st := authStatus{SignedIn: c.Session.Authenticated(ctx)}
	if tok := configuredToken(c); tok != "" {
		st.Source = "config"
		st.Subject = auth.Subject(tok)
		if exp, ok := auth.ExpiresAt(tok); ok {
			st.ExpiresAt = exp.UTC().Format(time.RFC3339)
		}
		if creds, err := auth.NewFileStore(c.Config.Auth.CredentialsFile).Load(); err == nil && creds.Token != "" {
			st.Shadowed = "credentials_file"
		}
		return st
	}
	if !st.SignedIn {
		return st
	}
	creds, err := auth.NewFileStore(c.Config.Auth.CredentialsFile).Load()
	if err != nil {
		return st
	}
	st.Source = "credentials_file"
	st.Email = creds.Email
	st.Subject = auth.Subject(creds.Token)
	if exp, ok := creds.ExpiresAtTime(); ok {
		st.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	return st
}
