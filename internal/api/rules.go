package api

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) ListRules(ctx context.Context) ([]NotificationRule, error) {
	var out []NotificationRule
	err := c.do(ctx, request{
		op:     "list rules",
		method: http.MethodGet,
		path:   "/notifications/rules",
		auth:   authRequired,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRule validates in before sending; the server's answer is authoritative.
func (c *Client) CreateRule(ctx context.Context, in RuleInput) (NotificationRule, error) {
	if err := in.Validate(); err != nil {
		return NotificationRule{}, err
	}
	var out NotificationRule
	err := c.do(ctx, request{
		op:     "create rule",
		method: http.MethodPost,
		path:   "/notifications/rules",
		body:   in,
		auth:   authRequired,
	}, &out)
	return out, err
}

func (c *Client) DeleteRule(ctx context.Context, id ID) error {
	if err := validateID("rule id", id); err != nil {
		return err
	}
	return c.do(ctx, request{
		op:     "delete rule",
		method: http.MethodDelete,
		path:   "/notifications/rules/" + url.PathEscape(string(id)),
		auth:   authRequired,
	}, nil)
}
