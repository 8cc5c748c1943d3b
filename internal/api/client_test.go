package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/auth"
	"github.com/hackplate/hackplate-cli/internal/cache"
	"github.com/hackplate/hackplate-cli/internal/fakeapi"
)

func setup(t *testing.T) (*fakeapi.Server, string) {
	t.Helper()
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	tok := srv.AddUser("dev@example.com")
	return srv, tok
}

func TestSearchEvents_QueryEncoding(t *testing.T) {
	srv, _ := setup(t)
	c := api.NewClient(srv.URL)

	if _, err := c.SearchEvents(context.Background(), api.SearchFilters{}); err != nil {
		t.Fatalf("search: %v", err)
	}
	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests=%d want 1", len(reqs))
	}
	q, _ := url.ParseQuery(reqs[0].Query)
	if q.Get("radius_km") != "50" {
		t.Fatalf("radius_km=%q want 50", q.Get("radius_km"))
	}
	for _, k := range []string{"location", "min_score", "source", "event_type", "food_only", "page", "per_page"} {
		if q.Has(k) {
			t.Fatalf("empty filter %q must be omitted, query=%s", k, reqs[0].Query)
		}
	}
	if reqs[0].Authorization != "" {
		t.Fatalf("anonymous search sent Authorization %q", reqs[0].Authorization)
	}
	if reqs[0].RequestID == "" {
		t.Fatalf("missing X-Request-ID")
	}

	_, err := c.SearchEvents(context.Background(), api.SearchFilters{
		Location:  "Mumbai",
		RadiusKM:  api.Float64(12),
		MinScore:  3,
		EventType: api.EventTypeHybrid,
		FoodOnly:  true,
		PerPage:   10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	q, _ = url.ParseQuery(srv.Requests()[1].Query)
	want := map[string]string{
		"location":   "Mumbai",
		"radius_km":  "12",
		"min_score":  "3",
		"event_type": "Hybrid",
		"food_only":  "true",
		"per_page":   "10",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Fatalf("%s=%q want %q", k, q.Get(k), v)
		}
	}
}

func TestSearchEvents_ValidationSkipsNetwork(t *testing.T) {
	srv, _ := setup(t)
	c := api.NewClient(srv.URL)

	for _, f := range []api.SearchFilters{
		{RadiusKM: api.Float64(0)},
		{RadiusKM: api.Float64(-3)},
		{MinScore: -1},
		{RadiusKM: api.Float64(12.5)},
		{MinScore: 3.5},
		{EventType: "Virtual"},
	} {
		_, err := c.SearchEvents(context.Background(), f)
		if !api.IsValidation(err) {
			t.Fatalf("filters %+v: err=%v want validation error", f, err)
		}
	}
	if n := len(srv.Requests()); n != 0 {
		t.Fatalf("requests=%d want 0", n)
	}
}

func TestSearchEvents_ScoreFallbackAndOrder(t *testing.T) {
	srv, _ := setup(t)
	total := 9.0
	srv.AddEvent(fakeapi.Event{ID: "b", Title: "B", City: "Pune", RelevanceScore: 2, TotalScore: &total})
	srv.AddEvent(fakeapi.Event{ID: "a", Title: "A", City: "Pune", RelevanceScore: 5, FoodScore: 1})
	c := api.NewClient(srv.URL)

	events, err := c.SearchEvents(context.Background(), api.SearchFilters{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(events) != 2 || events[0].ID != "b" || events[1].ID != "a" {
		t.Fatalf("backend order not preserved: %+v", events)
	}
	if events[0].Score != 9 {
		t.Fatalf("score=%v want total_score 9", events[0].Score)
	}
	if events[1].Score != 5 {
		t.Fatalf("score=%v want relevance_score 5", events[1].Score)
	}
	if !events[1].HasFood() || events[0].HasFood() {
		t.Fatalf("food flags wrong: %+v", events)
	}
	if events[0].CreatedAt.IsZero() {
		t.Fatalf("created_at not parsed")
	}
}

func TestTokenResolution(t *testing.T) {
	srv, tok := setup(t)
	c := api.NewClient(srv.URL, api.WithTokenSource(auth.StaticToken("stale")))

	ctx := api.WithToken(context.Background(), tok)
	if _, err := c.ListSavedEvents(ctx); err != nil {
		t.Fatalf("explicit token: %v", err)
	}
	if got := srv.Requests()[0].Authorization; got != "Bearer "+tok {
		t.Fatalf("Authorization=%q", got)
	}

	_, err := c.ListSavedEvents(context.Background())
	var ae *api.AuthRequiredError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized {
		t.Fatalf("err=%v want 401 auth error from backend", err)
	}
}

func TestMutations_RequireCredentialWithoutNetwork(t *testing.T) {
	srv, _ := setup(t)
	c := api.NewClient(srv.URL)
	ctx := context.Background()

	calls := []func() error{
		func() error { return c.SaveEvent(ctx, "e1") },
		func() error { return c.UnsaveEvent(ctx, "e1") },
		func() error { _, err := c.ListSavedEvents(ctx); return err },
		func() error { _, err := c.ListRules(ctx); return err },
		func() error { _, err := c.CreateRule(ctx, api.DefaultRuleInput("Mumbai")); return err },
		func() error { return c.DeleteRule(ctx, "1") },
		func() error { _, err := c.TriggerIngest(ctx, 5); return err },
		func() error { _, err := c.ActivityOverview(ctx); return err },
	}
	for i, call := range calls {
		err := call()
		var ae *api.AuthRequiredError
		if !errors.As(err, &ae) {
			t.Fatalf("call %d: err=%v want AuthRequiredError", i, err)
		}
		if ae.Status != 0 {
			t.Fatalf("call %d: status=%d want local rejection", i, ae.Status)
		}
	}
	if n := len(srv.Requests()); n != 0 {
		t.Fatalf("requests=%d want 0", n)
	}

	if _, err := c.SearchEvents(ctx, api.SearchFilters{}); err != nil {
		t.Fatalf("anonymous search must succeed: %v", err)
	}
	if _, err := c.Overview(ctx); err != nil {
		t.Fatalf("anonymous overview must succeed: %v", err)
	}
}

func TestSaveUnsave(t *testing.T) {
	srv, tok := setup(t)
	id := srv.AddEvent(fakeapi.Event{Title: "Hack", City: "Delhi"})
	c := api.NewClient(srv.URL, api.WithTokenSource(auth.StaticToken(tok)))
	ctx := context.Background()

	if err := c.SaveEvent(ctx, api.ID(id)); err != nil {
		t.Fatalf("save: %v", err)
	}
	err := c.SaveEvent(ctx, api.ID(id))
	var ue *api.UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusBadRequest || ue.Detail != "Already saved" {
		t.Fatalf("second save err=%v", err)
	}
	saved, err := c.ListSavedEvents(ctx)
	if err != nil || len(saved) != 1 || saved[0].ID != api.ID(id) {
		t.Fatalf("saved=%+v err=%v", saved, err)
	}
	if err := c.UnsaveEvent(ctx, api.ID(id)); err != nil {
		t.Fatalf("unsave: %v", err)
	}
	if api.StatusCode(c.UnsaveEvent(ctx, api.ID(id))) != http.StatusNotFound {
		t.Fatalf("second unsave should be 404")
	}
	if err := c.SaveEvent(ctx, ""); !api.IsValidation(err) {
		t.Fatalf("empty id err=%v", err)
	}
}

func TestUpstreamAndNetworkErrors(t *testing.T) {
	srv, _ := setup(t)
	srv.Fail(http.MethodGet, "/events/", http.StatusServiceUnavailable, "maintenance")
	c := api.NewClient(srv.URL)

	_, err := c.SearchEvents(context.Background(), api.SearchFilters{})
	var ue *api.UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusServiceUnavailable || ue.Detail != "maintenance" {
		t.Fatalf("err=%v want upstream 503", err)
	}

	srv.Close()
	_, err = c.SearchEvents(context.Background(), api.SearchFilters{})
	if !api.IsNetwork(err) {
		t.Fatalf("err=%v want network error", err)
	}
}

func TestRulesScenario(t *testing.T) {
	srv, tok := setup(t)
	c := api.NewClient(srv.URL, api.WithTokenSource(auth.StaticToken(tok)))
	ctx := context.Background()

	created, err := c.CreateRule(ctx, api.RuleInput{
		Location: "Mumbai", RadiusKM: 50, MinScore: 3, FoodRequired: true, Channel: api.ChannelTelegram,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rules, err := c.ListRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != created.ID || rules[0].Location != "Mumbai" {
		t.Fatalf("rules=%+v", rules)
	}

	before := len(srv.Requests())
	_, err = c.CreateRule(ctx, api.RuleInput{Location: "", RadiusKM: 50, Channel: api.ChannelTelegram})
	var ve *api.ValidationError
	if !errors.As(err, &ve) || ve.Field != "location" {
		t.Fatalf("err=%v want location validation", err)
	}
	if len(srv.Requests()) != before {
		t.Fatalf("validation failure reached the network")
	}

	if err := c.DeleteRule(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if api.StatusCode(c.DeleteRule(ctx, created.ID)) != http.StatusNotFound {
		t.Fatalf("deleting twice should 404")
	}
}

func TestTriggerIngest_ClampsAndInvalidatesCache(t *testing.T) {
	srv, tok := setup(t)
	store := cache.NewMemoryStore()
	c := api.NewClient(srv.URL,
		api.WithTokenSource(auth.StaticToken(tok)),
		api.WithCache(store, time.Minute),
	)
	ctx := context.Background()

	ov, err := c.Overview(ctx)
	if err != nil || ov.TotalEvents != 0 {
		t.Fatalf("overview=%+v err=%v", ov, err)
	}
	if _, err := c.Overview(ctx); err != nil {
		t.Fatalf("cached overview: %v", err)
	}
	if n := srv.RequestCount("/analytics/overview"); n != 1 {
		t.Fatalf("overview requests=%d want 1 (second served from cache)", n)
	}

	res, err := c.TriggerIngest(ctx, 500)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.NewEvents != 50 {
		t.Fatalf("new_events=%d want clamp to 50", res.NewEvents)
	}
	var last fakeapi.Request
	for _, r := range srv.Requests() {
		if r.Path == "/ingest" {
			last = r
		}
	}
	if last.Query != "limit=50" {
		t.Fatalf("ingest query=%q", last.Query)
	}

	ov, err = c.Overview(ctx)
	if err != nil || ov.TotalEvents != 50 {
		t.Fatalf("overview after ingest=%+v err=%v", ov, err)
	}
}

func TestActivity(t *testing.T) {
	srv, tok := setup(t)
	ctx := api.WithToken(context.Background(), tok)
	c := api.NewClient(srv.URL)

	if err := c.UpdateSavedSearch(ctx, api.SavedSearch{Latitude: 19.07, Longitude: 72.87, RadiusKM: 25}); err != nil {
		t.Fatalf("saved search: %v", err)
	}
	if err := c.UpdatePreferences(ctx, api.NotificationPreferences{Frequency: api.FrequencyDaily, TelegramEnabled: true}); err != nil {
		t.Fatalf("prefs: %v", err)
	}
	ov, err := c.ActivityOverview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.SavedSearch == nil || ov.SavedSearch.RadiusKM != 25 {
		t.Fatalf("saved_search=%+v", ov.SavedSearch)
	}
	if ov.NotificationPreferences == nil || ov.NotificationPreferences.Frequency != "daily" || !ov.NotificationPreferences.TelegramEnabled {
		t.Fatalf("prefs=%+v", ov.NotificationPreferences)
	}

	if err := c.UpdatePreferences(ctx, api.NotificationPreferences{Frequency: "hourly"}); !api.IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
	if err := c.UpdateSavedSearch(ctx, api.SavedSearch{Latitude: 120, RadiusKM: 5}); !api.IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestLoginAndMe(t *testing.T) {
	srv, _ := setup(t)
	c := api.NewClient(srv.URL)
	ctx := context.Background()

	if _, err := c.Register(ctx, "new@example.com", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tr, err := c.Login(ctx, "new@example.com", "pw")
	if err != nil || tr.AccessToken == "" {
		t.Fatalf("login=%+v err=%v", tr, err)
	}
	if _, err := c.Login(ctx, "new@example.com", "wrong"); !api.IsAuthRequired(err) {
		t.Fatalf("bad password err=%v", err)
	}
	me, err := c.Me(api.WithToken(ctx, tr.AccessToken))
	if err != nil || me.Email != "new@example.com" {
		t.Fatalf("me=%+v err=%v", me, err)
	}
}
