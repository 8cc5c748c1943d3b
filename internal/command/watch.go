package command

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/config"
	cronrunner "github.com/hackplate/hackplate-cli/internal/cron"
	"github.com/hackplate/hackplate-cli/internal/search"
)

type watchReport struct {
	At         time.Time          `json:"at"`
	SavedCount int                `json:"saved_count"`
	Results    int                `json:"results"`
	New        []api.EventSummary `json:"new"`
}

// watcher re-runs one search on a schedule and reports events it has not
// seen before. The first run reports everything.
type watcher struct {
	c    *Context
	ctrl *search.Controller

	mu   sync.Mutex
	seen map[api.ID]bool
}

func newWatcher(c *Context, f api.SearchFilters) *watcher {
	return &watcher{
		c:    c,
		ctrl: c.Session.NewSearch(search.WithFilters(f)),
		seen: map[api.ID]bool{},
	}
}

func (w *watcher) tick(ctx context.Context) error {
	saved := w.c.Session.Saved
	if err := saved.Refresh(ctx); err != nil {
		w.c.Logger.Warn("watch: saved refresh failed", zap.Error(err))
	}
	events, err := w.ctrl.Execute(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	fresh := []api.EventSummary{}
	for _, ev := range events {
		if w.seen[ev.ID] {
			continue
		}
		w.seen[ev.ID] = true
		fresh = append(fresh, ev)
	}
	w.mu.Unlock()

	w.c.Logger.Info("watch tick",
		zap.Int("results", len(events)),
		zap.Int("new", len(fresh)),
		zap.Int("saved", saved.Len()),
	)
	return w.c.write(watchReport{
		At:         time.Now().UTC(),
		SavedCount: saved.Len(),
		Results:    len(events),
		New:        fresh,
	})
}

func watchFilters(cfg config.WatchConfig, perPage int) api.SearchFilters {
	f := api.SearchFilters{
		Location:  cfg.Location,
		MinScore:  cfg.MinScore,
		FoodOnly:  cfg.FoodOnly,
		EventType: cfg.EventType,
		Source:    cfg.Source,
		PerPage:   perPage,
	}
	if cfg.RadiusKM != 0 {
		f.RadiusKM = api.Float64(cfg.RadiusKM)
	}
	return f
}

func watchCmd(ctx context.Context, c *Context, args []string) error {
	fs := c.flags("watch")
	schedule := fs.String("schedule", c.Config.Watch.Schedule, "Cron spec or @every duration")
	once := fs.Bool("once", false, "Run a single tick and exit")
	sf := bindSearchFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cronrunner.Validate(*schedule); err != nil {
		return &api.ValidationError{Field: "schedule", Reason: err.Error()}
	}

	w := newWatcher(c, watchFilters(c.Config.Watch, c.Config.API.PerPage))
	if err := sf.apply(fs, w.ctrl, 0); err != nil {
		return err
	}
	if err := w.ctrl.Draft().Validate(); err != nil {
		return err
	}
	if *once {
		return w.tick(ctx)
	}

	var srv *http.Server
	if c.Config.Metrics.Enabled && c.Metrics != nil {
		srv = metricsServer(c)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.Logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		c.Logger.Info("metrics listening", zap.String("addr", c.Config.Metrics.Addr))
	}

	runner := cronrunner.New(c.Logger.Named("cron"), ctx)
	job := func(ctx context.Context) {
		if err := w.tick(ctx); err != nil {
			c.Logger.Warn("watch tick failed", zap.Error(err))
		}
	}
	if _, err := runner.Add("watch", *schedule, job); err != nil {
		return err
	}
	runner.RunNow(job)
	runner.Start()
	<-ctx.Done()
	runner.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

func metricsServer(c *Context) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(c.Metrics.Handler()))
	engine.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"saved":     c.Session.Saved.Len(),
			"signed_in": c.Session.Authenticated(ctx.Request.Context()),
		})
	})
	return &http.Server{Addr: c.Config.Metrics.Addr, Handler: engine}
}
