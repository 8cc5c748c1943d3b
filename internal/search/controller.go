// Package search holds a view's filter draft and the results of its latest
// execution.
package search

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/metrics"
)

// ErrSuperseded is returned by Execute when a later Execute was issued before
// this one's response arrived. Its results were discarded.
var ErrSuperseded = errors.New("search superseded by a newer request")

type Backend interface {
	SearchEvents(ctx context.Context, f api.SearchFilters) ([]api.EventSummary, error)
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithFilters seeds the draft.
func WithFilters(f api.SearchFilters) Option {
	return func(c *Controller) { c.draft = f.Clone() }
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	Draft   api.SearchFilters
	Applied api.SearchFilters
	Results []api.EventSummary
	Loading bool
	Err     error
}

// Controller orders executions by issuance: only the response of the most
// recently issued Execute is ever applied.
type Controller struct {
	backend Backend
	logger  *zap.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	draft   api.SearchFilters
	applied api.SearchFilters
	results []api.EventSummary
	seq     uint64
	settled uint64
	err     error
}

func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{backend: backend, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Draft returns a copy of the pending filters.
func (c *Controller) Draft() api.SearchFilters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Clone()
}

// Update edits the draft in place. Nothing is queried.
func (c *Controller) Update(fn func(*api.SearchFilters)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.draft)
}

// Reset clears the draft back to defaults. Results are kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = api.SearchFilters{}
}

// SetFilter sets one draft field from text input. An empty value clears the
// field. Values that do not parse are rejected with *api.ValidationError and
// leave the draft unchanged; range checks happen in Execute.
func (c *Controller) SetFilter(key, value string) error {
	value = strings.TrimSpace(value)
	key = strings.ToLower(strings.TrimSpace(key))

	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.draft.Clone()
	switch key {
	case "location":
		f.Location = value
	case "radius_km", "radius":
		if value == "" {
			f.RadiusKM = nil
			break
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &api.ValidationError{Field: "radius_km", Reason: "must be a number"}
		}
		f.RadiusKM = api.Float64(v)
	case "min_score":
		if value == "" {
			f.MinScore = 0
			break
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &api.ValidationError{Field: "min_score", Reason: "must be a number"}
		}
		f.MinScore = v
	case "source":
		f.Source = value
	case "event_type":
		f.EventType = canonicalEventType(value)
	case "food_only":
		if value == "" {
			f.FoodOnly = false
			break
		}
		v, err := strconv.ParseBool(value)
		if err != nil {
			return &api.ValidationError{Field: "food_only", Reason: "must be true or false"}
		}
		f.FoodOnly = v
	case "page", "per_page":
		n := 0
		if value != "" {
			v, err := strconv.Atoi(value)
			if err != nil {
				return &api.ValidationError{Field: key, Reason: "must be an integer"}
			}
			n = v
		}
		if key == "page" {
			f.Page = n
		} else {
			f.PerPage = n
		}
	default:
		return &api.ValidationError{Field: key, Reason: "unknown filter"}
	}
	c.draft = f
	return nil
}

// canonicalEventType accepts any casing of the known types.
func canonicalEventType(v string) string {
	for _, t := range []string{api.EventTypeOnline, api.EventTypeOffline, api.EventTypeHybrid} {
		if strings.EqualFold(v, t) {
			return t
		}
	}
	return v
}

// Execute validates the draft and runs it. On success the result list is
// replaced as a whole. A response that arrives after a newer Execute was
// issued is dropped and ErrSuperseded returned. When the latest execution
// fails the results are cleared and the error is kept for Err.
func (c *Controller) Execute(ctx context.Context) ([]api.EventSummary, error) {
	c.mu.Lock()
	f := c.draft.Clone()
	if err := f.Validate(); err != nil {
		c.mu.Unlock()
		c.metrics.Search("invalid")
		return nil, err
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	events, err := c.backend.SearchEvents(ctx, f)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		c.logger.Debug("discarding superseded search", zap.Uint64("seq", seq), zap.Uint64("latest", c.seq))
		c.metrics.Search("superseded")
		return nil, ErrSuperseded
	}
	c.settled = seq
	c.applied = f
	if err != nil {
		c.results = nil
		c.err = err
		c.metrics.Search("error")
		c.logger.Warn("search failed", zap.Error(err))
		return nil, err
	}
	if events == nil {
		events = []api.EventSummary{}
	}
	c.results = events
	c.err = nil
	c.metrics.Search("ok")
	return copyEvents(events), nil
}

// Results returns a copy of the last applied result list, in backend order.
func (c *Controller) Results() []api.EventSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyEvents(c.results)
}

// Loading is true while the most recently issued Execute has not returned.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled != c.seq
}

// Err is the failure of the latest execution, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Draft:   c.draft.Clone(),
		Applied: c.applied.Clone(),
		Results: copyEvents(c.results),
		Loading: c.settled != c.seq,
		Err:     c.err,
	}
}

func copyEvents(in []api.EventSummary) []api.EventSummary {
	if in == nil {
		return nil
	}
	out := make([]api.EventSummary, len(in))
	copy(out, in)
	return out
}
