package api

import (
	"context"
	"net/http"
	"strings"
)

func (c *Client) ActivityOverview(ctx context.Context) (ActivityOverview, error) {
	var out ActivityOverview
	err := c.do(ctx, request{
		op:     "activity overview",
		method: http.MethodGet,
		path:   "/activity/overview",
		auth:   authRequired,
	}, &out)
	return out, err
}

func (c *Client) UpdateSavedSearch(ctx context.Context, s SavedSearch) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return c.do(ctx, request{
		op:     "update saved search",
		method: http.MethodPost,
		path:   "/activity/saved-search",
		body:   s,
		auth:   authRequired,
	}, nil)
}

func (c *Client) UpdatePreferences(ctx context.Context, p NotificationPreferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return c.do(ctx, request{
		op:     "update preferences",
		method: http.MethodPost,
		path:   "/activity/preferences",
		body:   p,
		auth:   authRequired,
	}, nil)
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateCredentials(email, password string) error {
	if !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Reason: "must be an email address"}
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	return nil
}

func (c *Client) Register(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return User{}, err
	}
	var out User
	err := c.do(ctx, request{
		op:     "register",
		method: http.MethodPost,
		path:   "/auth/register",
		body:   credentialsBody{Email: email, Password: password},
		auth:   authOptional,
	}, &out)
	return out, err
}

// Login exchanges email and password for a bearer token. The caller decides
// where (and whether) to keep it.
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return TokenResponse{}, err
	}
	var out TokenResponse
	err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   credentialsBody{Email: email, Password: password},
		auth:   authOptional,
	}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.do(ctx, request{
		op:     "me",
		method: http.MethodGet,
		path:   "/auth/me",
		auth:   authRequired,
	}, &out)
	return out, err
}
