// Package rules manages the signed-in user's notification rules.
package rules

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/api"
)

type Backend interface {
	Authenticated(ctx context.Context) bool
	ListRules(ctx context.Context) ([]api.NotificationRule, error)
	CreateRule(ctx context.Context, in api.RuleInput) (api.NotificationRule, error)
	DeleteRule(ctx context.Context, id api.ID) error
}

// Manager keeps a local copy of the rule list. After a successful create the
// list is reloaded from the backend; a delete removes the rule locally only
// once the backend confirmed it.
type Manager struct {
	backend Backend
	logger  *zap.Logger

	mu    sync.RWMutex
	rules []api.NotificationRule
}

func New(backend Backend, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{backend: backend, logger: logger}
}

// Rules returns a copy of the local list.
func (m *Manager) Rules() []api.NotificationRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]api.NotificationRule(nil), m.rules...)
}

// Load replaces the local list with the backend's. Signed out, the list is
// empty and no request is made.
func (m *Manager) Load(ctx context.Context) ([]api.NotificationRule, error) {
	if !m.backend.Authenticated(ctx) {
		m.set(nil)
		return nil, nil
	}
	list, err := m.backend.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	m.set(list)
	return m.Rules(), nil
}

// Clear drops the local list, e.g. on sign-out.
func (m *Manager) Clear() {
	m.set(nil)
}

func (m *Manager) set(list []api.NotificationRule) {
	m.mu.Lock()
	m.rules = append([]api.NotificationRule(nil), list...)
	m.mu.Unlock()
}

// Create validates in, creates the rule and reloads the list. If the reload
// fails the created rule is appended locally instead.
func (m *Manager) Create(ctx context.Context, in api.RuleInput) (api.NotificationRule, error) {
	if err := in.Validate(); err != nil {
		return api.NotificationRule{}, err
	}
	if !m.backend.Authenticated(ctx) {
		return api.NotificationRule{}, &api.AuthRequiredError{Op: "create rule"}
	}
	created, err := m.backend.CreateRule(ctx, in)
	if err != nil {
		return api.NotificationRule{}, err
	}
	if _, err := m.Load(ctx); err != nil {
		m.logger.Warn("reload rules after create failed", zap.Error(err))
		m.mu.Lock()
		m.rules = append(m.rules, created)
		m.mu.Unlock()
	}
	return created, nil
}

// Delete removes a rule. On failure the local list is untouched.
func (m *Manager) Delete(ctx context.Context, id api.ID) error {
	if id == "" {
		return &api.ValidationError{Field: "rule id", Reason: "must not be empty"}
	}
	if !m.backend.Authenticated(ctx) {
		return &api.AuthRequiredError{Op: "delete rule"}
	}
	if err := m.backend.DeleteRule(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i:i], m.rules[i+1:]...)
			break
		}
	}
	return nil
}
