// Package saved keeps the signed-in user's bookmarked events in sync with the
// backend. One Synchronizer is shared by every view of a session.
package saved

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/metrics"
)

var (
	// ErrNotReady is returned by Toggle before the first successful load.
	ErrNotReady = errors.New("saved set is not loaded")
	// ErrReset is returned by operations overtaken by Reset (sign-out).
	ErrReset = errors.New("saved set was reset")
)

type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Backend is the subset of *api.Client the synchronizer needs.
type Backend interface {
	Authenticated(ctx context.Context) bool
	SaveEvent(ctx context.Context, id api.ID) error
	UnsaveEvent(ctx context.Context, id api.ID) error
	ListSavedEvents(ctx context.Context) ([]api.EventSummary, error)
}

type Option func(*Synchronizer)

func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Synchronizer) { s.metrics = r }
}

func WithObserver(o Observer) Option {
	return func(s *Synchronizer) { s.observer = o }
}

// Synchronizer holds two views of membership per id: committed, the last state
// the backend confirmed, and the optimistic view, which is the target of the
// newest unsettled toggle when there is one. Toggles of one id run strictly in
// issuance order; toggles of different ids are independent.
type Synchronizer struct {
	backend  Backend
	logger   *zap.Logger
	metrics  *metrics.Recorder
	observer Observer
	group    singleflight.Group

	mu         sync.Mutex
	state      State
	generation uint64
	commits    uint64
	committed  map[api.ID]bool
	// committedAt is the commit count at which each id last settled, so a
	// refresh started earlier leaves that id alone.
	committedAt map[api.ID]uint64
	tails       map[api.ID]*Mutation
	order       []api.ID
	events      map[api.ID]api.EventSummary
}

func New(backend Backend, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		backend:     backend,
		logger:      zap.NewNop(),
		committed:   map[api.ID]bool{},
		committedAt: map[api.ID]uint64{},
		tails:       map[api.ID]*Mutation{},
		events:      map[api.ID]api.EventSummary{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsSaved reports the optimistic membership of id.
func (s *Synchronizer) IsSaved(id api.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(id)
}

func (s *Synchronizer) view(id api.ID) bool {
	if m, ok := s.tails[id]; ok {
		return m.Target
	}
	return s.committed[id]
}

// Pending reports whether id has an unsettled toggle.
func (s *Synchronizer) Pending(id api.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tails[id]
	return ok
}

// IDs returns the optimistically saved ids, sorted.
func (s *Synchronizer) IDs() []api.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[api.ID]bool{}
	for id := range s.committed {
		seen[id] = true
	}
	for id := range s.tails {
		seen[id] = true
	}
	out := make([]api.ID, 0, len(seen))
	for id := range seen {
		if s.view(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Synchronizer) Len() int {
	return len(s.IDs())
}

// Favorites returns the saved events in display order: the backend's order at
// the last refresh, followed by events saved since.
func (s *Synchronizer) Favorites() []api.EventSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.EventSummary, 0, len(s.order))
	for _, id := range s.order {
		if !s.view(id) {
			continue
		}
		ev, ok := s.events[id]
		if !ok {
			ev = api.EventSummary{ID: id}
		}
		out = append(out, ev)
	}
	return out
}

// Refresh replaces the committed set with the backend's list. Concurrent
// calls share one request. Without a credential the set becomes empty and
// Ready, and no request is made. Ids with an unsettled toggle keep their
// optimistic view, and ids settled after the request went out keep their
// committed state.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *Synchronizer) refresh(ctx context.Context) error {
	if !s.backend.Authenticated(ctx) {
		s.mu.Lock()
		s.committed = map[api.ID]bool{}
		s.events = map[api.ID]api.EventSummary{}
		s.order = nil
		s.state = Ready
		s.mu.Unlock()
		s.metrics.SavedSize(0)
		return nil
	}

	s.mu.Lock()
	if s.state == Uninitialized {
		s.state = Loading
	}
	gen, since := s.generation, s.commits
	s.mu.Unlock()

	list, err := s.backend.ListSavedEvents(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrReset
	}
	if err != nil {
		if s.state == Loading {
			s.state = Uninitialized
		}
		s.logger.Warn("saved refresh failed", zap.Error(err))
		return err
	}

	committed := make(map[api.ID]bool, len(list))
	events := make(map[api.ID]api.EventSummary, len(list))
	order := make([]api.ID, 0, len(list))
	for _, ev := range list {
		if committed[ev.ID] {
			continue
		}
		committed[ev.ID] = true
		events[ev.ID] = ev
		order = append(order, ev.ID)
	}
	for id, at := range s.committedAt {
		if at <= since {
			delete(s.committedAt, id)
			continue
		}
		switch {
		case s.committed[id] && !committed[id]:
			committed[id] = true
			if ev, ok := s.events[id]; ok {
				events[id] = ev
			}
			order = append(order, id)
		case !s.committed[id] && committed[id]:
			delete(committed, id)
			delete(events, id)
			order = removeID(order, id)
		}
	}
	for id, m := range s.tails {
		if ev, ok := s.events[id]; ok {
			if _, have := events[id]; !have {
				events[id] = ev
			}
		}
		if m.Target && !committed[id] {
			order = append(order, id)
		}
	}
	s.committed = committed
	s.events = events
	s.order = order
	s.state = Ready
	s.metrics.SavedSize(len(committed))
	s.logger.Debug("saved refreshed", zap.Int("count", len(committed)))
	return nil
}

// Toggle flips the saved membership of id and waits for the backend to
// settle it. It returns the resulting membership; on failure the optimistic
// flip is rolled back and the error is returned.
func (s *Synchronizer) Toggle(ctx context.Context, id api.ID) (bool, error) {
	m, err := s.ToggleAsync(ctx, id)
	if err != nil {
		return s.IsSaved(id), err
	}
	if err := m.Wait(); err != nil {
		return s.IsSaved(id), err
	}
	return m.Target, nil
}

// ToggleEvent is Toggle for a full event; the summary is kept for Favorites
// once the toggle is accepted.
func (s *Synchronizer) ToggleEvent(ctx context.Context, ev api.EventSummary) (bool, error) {
	m, err := s.toggle(ctx, ev.ID, &ev)
	if err != nil {
		return s.IsSaved(ev.ID), err
	}
	if err := m.Wait(); err != nil {
		return s.IsSaved(ev.ID), err
	}
	return m.Target, nil
}

// ToggleAsync issues a toggle and returns at once. The optimistic view flips
// immediately. Without a credential it fails with *api.AuthRequiredError
// before anything is queued.
func (s *Synchronizer) ToggleAsync(ctx context.Context, id api.ID) (*Mutation, error) {
	return s.toggle(ctx, id, nil)
}

func (s *Synchronizer) toggle(ctx context.Context, id api.ID, ev *api.EventSummary) (*Mutation, error) {
	if id == "" {
		return nil, &api.ValidationError{Field: "event id", Reason: "must not be empty"}
	}
	if !s.backend.Authenticated(ctx) {
		return nil, &api.AuthRequiredError{Op: "toggle saved"}
	}

	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	m := newMutation(id, !s.view(id))
	if ev != nil {
		s.events[id] = *ev
	}
	prev := s.tails[id]
	s.tails[id] = m
	if m.Target && !containsID(s.order, id) {
		s.order = append(s.order, id)
	}
	gen := s.generation
	s.mu.Unlock()

	s.notify(Transition{ID: id, Target: m.Target, State: Idle})
	go s.run(ctx, m, prev, gen)
	return m, nil
}

func (s *Synchronizer) run(ctx context.Context, m *Mutation, prev *Mutation, gen uint64) {
	if prev != nil {
		<-prev.done
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.settle(m, RolledBack, ErrReset)
		return
	}
	if s.committed[m.ID] == m.Target {
		s.finish(m)
		s.mu.Unlock()
		s.metrics.Toggle("noop")
		s.settle(m, Committed, nil)
		return
	}
	s.mu.Unlock()

	s.settle(m, Pending, nil)
	err := s.send(ctx, m)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if err == nil {
			s.settle(m, Committed, nil)
		} else {
			s.settle(m, RolledBack, err)
		}
		return
	}
	if err == nil {
		s.committed[m.ID] = m.Target
		if !m.Target {
			delete(s.committed, m.ID)
		}
		s.commits++
		s.committedAt[m.ID] = s.commits
	}
	s.finish(m)
	size := len(s.committed)
	s.mu.Unlock()

	s.metrics.SavedSize(size)
	if err != nil {
		s.logger.Warn("saved toggle rolled back",
			zap.String("event_id", string(m.ID)),
			zap.Bool("target", m.Target),
			zap.Error(err),
		)
		s.metrics.Toggle("rolled_back")
		s.settle(m, RolledBack, err)
		return
	}
	s.metrics.Toggle("committed")
	s.settle(m, Committed, nil)
}

// send issues the request for m. A backend answer saying the set already has
// the target membership counts as success.
func (s *Synchronizer) send(ctx context.Context, m *Mutation) error {
	if m.Target {
		err := s.backend.SaveEvent(ctx, m.ID)
		switch api.StatusCode(err) {
		case http.StatusBadRequest, http.StatusConflict:
			s.logger.Debug("event already saved", zap.String("event_id", string(m.ID)))
			return nil
		}
		return err
	}
	err := s.backend.UnsaveEvent(ctx, m.ID)
	if api.StatusCode(err) == http.StatusNotFound {
		s.logger.Debug("event already unsaved", zap.String("event_id", string(m.ID)))
		return nil
	}
	return err
}

// finish drops m as the tail of its id and prunes display order. Caller holds s.mu.
func (s *Synchronizer) finish(m *Mutation) {
	if s.tails[m.ID] != m {
		return
	}
	delete(s.tails, m.ID)
	if s.committed[m.ID] {
		return
	}
	s.order = removeID(s.order, m.ID)
	delete(s.events, m.ID)
}

// Reset clears all state, e.g. on sign-out. Unsettled toggles still finish
// their requests but no longer touch the set.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.generation++
	s.state = Uninitialized
	s.committed = map[api.ID]bool{}
	s.committedAt = map[api.ID]uint64{}
	s.tails = map[api.ID]*Mutation{}
	s.events = map[api.ID]api.EventSummary{}
	s.order = nil
	s.mu.Unlock()
	s.metrics.SavedSize(0)
}

// settle records a transition of m, tells the observer, and releases waiters
// once m is settled.
func (s *Synchronizer) settle(m *Mutation, state MutationState, err error) {
	s.notify(m.set(state, err))
	if state.Settled() {
		close(m.done)
	}
}

func (s *Synchronizer) notify(t Transition) {
	if s.observer != nil {
		s.observer(t)
	}
}

func removeID(ids []api.ID, id api.ID) []api.ID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func containsID(ids []api.ID, id api.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
