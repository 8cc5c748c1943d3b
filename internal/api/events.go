package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// SearchEvents lists events matching f in backend order. A credential is
// optional; when present the backend applies the user's preferences.
func (c *Client) SearchEvents(ctx context.Context, f SearchFilters) ([]EventSummary, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out []EventSummary
	err := c.do(ctx, request{
		op:     "search events",
		method: http.MethodGet,
		path:   "/events/",
		query:  f.Query(),
		auth:   authOptional,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query encodes f, omitting empty fields. radius_km is always sent.
func (f SearchFilters) Query() url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(f.Location); s != "" {
		q.Set("location", s)
	}
	q.Set("radius_km", formatFloat(f.Radius()))
	if f.MinScore > 0 {
		q.Set("min_score", formatFloat(f.MinScore))
	}
	if f.Source != "" {
		q.Set("source", f.Source)
	}
	if f.EventType != "" {
		q.Set("event_type", f.EventType)
	}
	if f.FoodOnly {
		q.Set("food_only", "true")
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(f.PerPage))
	}
	return q
}

func (c *Client) GetEvent(ctx context.Context, id ID) (EventSummary, error) {
	if err := validateID("event id", id); err != nil {
		return EventSummary{}, err
	}
	var out EventSummary
	err := c.do(ctx, request{
		op:     "get event",
		method: http.MethodGet,
		path:   "/events/" + url.PathEscape(string(id)),
		auth:   authOptional,
	}, &out)
	return out, err
}

func (c *Client) SaveEvent(ctx context.Context, id ID) error {
	if err := validateID("event id", id); err != nil {
		return err
	}
	return c.do(ctx, request{
		op:     "save event",
		method: http.MethodPost,
		path:   "/events/" + url.PathEscape(string(id)) + "/save",
		auth:   authRequired,
	}, nil)
}

func (c *Client) UnsaveEvent(ctx context.Context, id ID) error {
	if err := validateID("event id", id); err != nil {
		return err
	}
	return c.do(ctx, request{
		op:     "unsave event",
		method: http.MethodDelete,
		path:   "/events/" + url.PathEscape(string(id)) + "/save",
		auth:   authRequired,
	}, nil)
}

func (c *Client) ListSavedEvents(ctx context.Context) ([]EventSummary, error) {
	var out []EventSummary
	err := c.do(ctx, request{
		op:     "list saved events",
		method: http.MethodGet,
		path:   "/events/saved/list",
		auth:   authRequired,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validateID(field string, id ID) error {
	if strings.TrimSpace(string(id)) == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}
