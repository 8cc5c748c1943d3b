// Package dashboard loads the home view: public stats, recent events and the
// user's saved events.
package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/search"
	"github.com/hackplate/hackplate-cli/internal/session"
)

const recentPerPage = 10

const (
	SectionOverview = "overview"
	SectionTrends   = "trends"
	SectionRecent   = "recent"
	SectionSaved    = "saved"
)

type View struct {
	Overview api.Overview       `json:"overview" yaml:"overview"`
	Trends   []api.Trend        `json:"trends" yaml:"trends"`
	Recent   []api.EventSummary `json:"recent" yaml:"recent"`
	Saved    []api.EventSummary `json:"saved" yaml:"saved"`
	SignedIn bool               `json:"signed_in" yaml:"signed_in"`
	// Errors holds the failure of each section that fell back to empty.
	Errors map[string]error `json:"-" yaml:"-"`
}

// Failed lists the sections that could not be loaded.
func (v View) Failed() []string {
	out := make([]string, 0, len(v.Errors))
	for _, s := range []string{SectionOverview, SectionTrends, SectionRecent, SectionSaved} {
		if _, ok := v.Errors[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Load fetches all sections concurrently. A failing section is left empty and
// recorded in View.Errors; Load itself only fails when ctx is done.
func Load(ctx context.Context, s *session.Session, logger *zap.Logger) (View, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := View{
		Trends:   []api.Trend{},
		Recent:   []api.EventSummary{},
		Saved:    []api.EventSummary{},
		SignedIn: s.Authenticated(ctx),
		Errors:   map[string]error{},
	}
	var mu sync.Mutex
	fail := func(section string, err error) {
		logger.Warn("dashboard section failed", zap.String("section", section), zap.Error(err))
		mu.Lock()
		v.Errors[section] = err
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ov, err := s.Client.Overview(gctx)
		if err != nil {
			fail(SectionOverview, err)
			return nil
		}
		mu.Lock()
		v.Overview = ov
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		trends, err := s.Client.Trends(gctx)
		if err != nil {
			fail(SectionTrends, err)
			return nil
		}
		mu.Lock()
		v.Trends = trends
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		ctrl := s.NewSearch(search.WithFilters(api.SearchFilters{PerPage: recentPerPage}))
		events, err := ctrl.Execute(gctx)
		if err != nil {
			fail(SectionRecent, err)
			return nil
		}
		mu.Lock()
		v.Recent = events
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		if err := s.Saved.Refresh(gctx); err != nil {
			fail(SectionSaved, err)
			return nil
		}
		favs := s.Saved.Favorites()
		mu.Lock()
		v.Saved = favs
		mu.Unlock()
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return v, err
	}
	return v, nil
}
