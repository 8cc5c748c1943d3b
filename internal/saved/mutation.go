package saved

import (
	"sync"

	"github.com/hackplate/hackplate-cli/internal/api"
)

// MutationState tracks one optimistic toggle. A mutation is Idle while it
// waits behind earlier toggles of the same id, Pending while its request is
// in flight, and ends Committed or RolledBack.
type MutationState int

const (
	Idle MutationState = iota
	Pending
	Committed
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

func (s MutationState) Settled() bool {
	return s == Committed || s == RolledBack
}

// Transition is delivered to an Observer on every state change.
type Transition struct {
	ID     api.ID
	Target bool
	State  MutationState
	Err    error
}

type Observer func(Transition)

// Mutation is a single toggle of an event's saved membership. Target is the
// membership the toggle drives towards and is fixed when the toggle is issued.
type Mutation struct {
	ID     api.ID
	Target bool

	mu    sync.Mutex
	state MutationState
	err   error
	done  chan struct{}
}

func newMutation(id api.ID, target bool) *Mutation {
	return &Mutation{ID: id, Target: target, done: make(chan struct{})}
}

func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err is the failure that rolled the mutation back, or nil.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed once the mutation is Committed or RolledBack.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles and returns its error.
func (m *Mutation) Wait() error {
	<-m.done
	return m.Err()
}

func (m *Mutation) set(state MutationState, err error) Transition {
	m.mu.Lock()
	m.state = state
	m.err = err
	m.mu.Unlock()
	return Transition{ID: m.ID, Target: m.Target, State: state, Err: err}
}
