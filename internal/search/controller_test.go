package search

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/fakeapi"
)

type reply struct {
	events []api.EventSummary
	err    error
}

type pending struct {
	filters api.SearchFilters
	reply   chan reply
}

// gatedBackend holds every search until the test answers it.
type gatedBackend struct {
	calls chan pending
	mu    sync.Mutex
	n     int
}

func newGated() *gatedBackend {
	return &gatedBackend{calls: make(chan pending, 8)}
}

func (b *gatedBackend) SearchEvents(_ context.Context, f api.SearchFilters) ([]api.EventSummary, error) {
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	p := pending{filters: f, reply: make(chan reply)}
	b.calls <- p
	r := <-p.reply
	return r.events, r.err
}

func (b *gatedBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *gatedBackend) next(t *testing.T) pending {
	t.Helper()
	select {
	case p := <-b.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for search call")
		return pending{}
	}
}

type outcome struct {
	events []api.EventSummary
	err    error
}

func run(c *Controller) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		ev, err := c.Execute(context.Background())
		ch <- outcome{ev, err}
	}()
	return ch
}

func events(ids ...api.ID) []api.EventSummary {
	out := make([]api.EventSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, api.EventSummary{ID: id})
	}
	return out
}

func TestExecute_RejectsNonPositiveRadius(t *testing.T) {
	for _, radius := range []string{"0", "-1", "-0.5"} {
		b := newGated()
		c := New(b)
		require.NoError(t, c.SetFilter("radius_km", radius))

		_, err := c.Execute(context.Background())
		var ve *api.ValidationError
		require.ErrorAs(t, err, &ve, radius)
		assert.Equal(t, "radius_km", ve.Field)
		assert.Zero(t, b.count(), "no network call for radius %s", radius)
		assert.False(t, c.Loading())
	}
}

func TestExecute_RejectsNegativeMinScore(t *testing.T) {
	b := newGated()
	c := New(b, WithFilters(api.SearchFilters{MinScore: -2}))
	_, err := c.Execute(context.Background())
	assert.True(t, api.IsValidation(err))
	assert.Zero(t, b.count())
}

func TestExecute_RejectsFractionalThresholds(t *testing.T) {
	for key, value := range map[string]string{"radius_km": "12.5", "min_score": "3.5"} {
		b := newGated()
		c := New(b)
		require.NoError(t, c.SetFilter(key, value))

		_, err := c.Execute(context.Background())
		var ve *api.ValidationError
		require.ErrorAs(t, err, &ve, key)
		assert.Equal(t, key, ve.Field)
		assert.Zero(t, b.count())
	}
}

func TestExecute_LatestIssuedWins(t *testing.T) {
	b := newGated()
	c := New(b)

	require.NoError(t, c.SetFilter("location", "Pune"))
	first := run(c)
	p1 := b.next(t)
	assert.Equal(t, "Pune", p1.filters.Location)

	require.NoError(t, c.SetFilter("location", "Delhi"))
	second := run(c)
	p2 := b.next(t)
	assert.Equal(t, "Delhi", p2.filters.Location)
	assert.True(t, c.Loading())

	// Second answers first, then the stale first one.
	p2.reply <- reply{events: events("d1", "d2")}
	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.events, 2)
	assert.False(t, c.Loading())

	p1.reply <- reply{events: events("p1")}
	stale := <-first
	assert.ErrorIs(t, stale.err, ErrSuperseded)

	assert.Equal(t, events("d1", "d2"), c.Results())
	assert.Equal(t, "Delhi", c.Snapshot().Applied.Location)
}

func TestExecute_SupersededStillLoadingUntilLatestReturns(t *testing.T) {
	b := newGated()
	c := New(b)

	first := run(c)
	p1 := b.next(t)
	second := run(c)
	p2 := b.next(t)

	p1.reply <- reply{events: events("old")}
	assert.ErrorIs(t, (<-first).err, ErrSuperseded)
	assert.True(t, c.Loading(), "latest request is still in flight")
	assert.Nil(t, c.Results())

	p2.reply <- reply{events: events("new")}
	require.NoError(t, (<-second).err)
	assert.False(t, c.Loading())
	assert.Equal(t, events("new"), c.Results())
}

func TestExecute_FailureClearsResults(t *testing.T) {
	b := newGated()
	c := New(b)

	done := run(c)
	b.next(t).reply <- reply{events: events("a")}
	require.NoError(t, (<-done).err)
	require.Len(t, c.Results(), 1)

	boom := &api.NetworkError{Op: "search events", Err: errors.New("refused")}
	done = run(c)
	b.next(t).reply <- reply{err: boom}
	assert.ErrorIs(t, (<-done).err, boom)
	assert.Empty(t, c.Results())
	assert.ErrorIs(t, c.Err(), boom)

	done = run(c)
	b.next(t).reply <- reply{events: nil}
	require.NoError(t, (<-done).err)
	assert.NotNil(t, c.Results(), "empty success is an empty list")
	assert.NoError(t, c.Err())
}

func TestResultsAreCopies(t *testing.T) {
	b := newGated()
	c := New(b)
	done := run(c)
	b.next(t).reply <- reply{events: events("a")}
	<-done

	r := c.Results()
	r[0].ID = "mutated"
	assert.Equal(t, api.ID("a"), c.Results()[0].ID)
}

func TestSetFilter(t *testing.T) {
	c := New(newGated())

	require.NoError(t, c.SetFilter("location", "  Mumbai "))
	require.NoError(t, c.SetFilter("radius_km", "25"))
	require.NoError(t, c.SetFilter("min_score", "3.5"))
	require.NoError(t, c.SetFilter("event_type", "hybrid"))
	require.NoError(t, c.SetFilter("food_only", "true"))
	require.NoError(t, c.SetFilter("per_page", "10"))

	d := c.Draft()
	assert.Equal(t, "Mumbai", d.Location)
	require.NotNil(t, d.RadiusKM)
	assert.Equal(t, 25.0, *d.RadiusKM)
	assert.Equal(t, 3.5, d.MinScore)
	assert.Equal(t, api.EventTypeHybrid, d.EventType)
	assert.True(t, d.FoodOnly)
	assert.Equal(t, 10, d.PerPage)

	var ve *api.ValidationError
	require.ErrorAs(t, c.SetFilter("radius_km", "far"), &ve)
	assert.Equal(t, 25.0, *c.Draft().RadiusKM, "bad input leaves the draft alone")
	require.ErrorAs(t, c.SetFilter("colour", "red"), &ve)

	require.NoError(t, c.SetFilter("radius_km", ""))
	assert.Nil(t, c.Draft().RadiusKM)

	c.Reset()
	assert.Equal(t, api.SearchFilters{}, c.Draft())
}

func TestSetFilterDoesNotQuery(t *testing.T) {
	b := newGated()
	c := New(b)
	require.NoError(t, c.SetFilter("location", "Pune"))
	c.Update(func(f *api.SearchFilters) { f.FoodOnly = true })
	assert.Zero(t, b.count())
}

func TestAgainstFakeBackend(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.AddEvent(fakeapi.Event{ID: "1", Title: "Pune Hack", City: "Pune", RelevanceScore: 4, FoodScore: 1})
	srv.AddEvent(fakeapi.Event{ID: "2", Title: "Delhi Hack", City: "Delhi", RelevanceScore: 2})

	c := New(api.NewClient(srv.URL))
	require.NoError(t, c.SetFilter("food_only", "true"))
	got, err := c.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Pune Hack", got[0].Title)

	q, err := url.ParseQuery(srv.Requests()[0].Query)
	require.NoError(t, err)
	assert.Equal(t, "50", q.Get("radius_km"))
	assert.Equal(t, "true", q.Get("food_only"))
	assert.False(t, q.Has("min_score"))
}
