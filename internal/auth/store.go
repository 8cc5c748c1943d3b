package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Credentials struct {
	Token     string `json:"token"`
	Email     string `json:"email,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (c Credentials) ExpiresAtTime() (time.Time, bool) {
	v := strings.TrimSpace(c.ExpiresAt)
	if v == "" {
		return ExpiresAt(c.Token)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FileStore persists credentials in a JSON file and serves them as a TokenSource.
// It re-reads the file on each call so a login in another process is picked up.
type FileStore struct {
	Path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (Credentials, error) {
	if strings.TrimSpace(s.Path) == "" {
		return Credentials{}, errors.New("credentials path is empty")
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return c, nil
}

func (s *FileStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("credentials path is empty")
	}
	if c.ExpiresAt == "" {
		if exp, ok := ExpiresAt(c.Token); ok {
			c.ExpiresAt = exp.UTC().Format(time.RFC3339)
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, b, 0o600)
}

// Clear removes stored credentials. A missing file is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Token(context.Context) (string, error) {
	if strings.TrimSpace(s.Path) == "" {
		return "", nil
	}
	s.mu.Lock()
	c, err := s.load()
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	tok := strings.TrimSpace(c.Token)
	if exp, ok := c.ExpiresAtTime(); ok && !time.Now().Add(expirySkew).Before(exp) {
		return "", nil
	}
	return tok, nil
}
