// Package auth supplies bearer credentials to the API client.
//
// A TokenSource is asked for a token on every request. An empty token with a
// nil error means "signed out", which callers treat as a normal state.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts an identity-provider callback (e.g. a session's getToken).
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx)
}

type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if Expired(tok, time.Now()) {
		return "", nil
	}
	return tok, nil
}

// Chain returns the first non-empty token from sources, in order.
func Chain(sources ...TokenSource) TokenSource {
	return TokenFunc(func(ctx context.Context) (string, error) {
		for _, s := range sources {
			if s == nil {
				continue
			}
			tok, err := s.Token(ctx)
			if err != nil {
				return "", err
			}
			if tok != "" {
				return tok, nil
			}
		}
		return "", nil
	})
}

// expirySkew drops tokens slightly before they expire so a request does not
// leave with a credential the backend will already reject.
const expirySkew = 30 * time.Second

// Expired reports whether token is a JWT whose exp claim has passed.
// Opaque (non-JWT) tokens are never considered expired; the backend decides.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !now.Add(expirySkew).Before(exp)
}

// ExpiresAt reads the exp claim without verifying the signature; only the
// backend holds the key.
func ExpiresAt(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Subject returns the sub claim of a JWT, or "" for opaque tokens.
func Subject(token string) string {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return ""
	}
	return claims.Subject
}
