package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"opaque", "sk_live_abc", false},
		{"empty", "", false},
		{"valid jwt", signed(t, now.Add(time.Hour)), false},
		{"expired jwt", signed(t, now.Add(-time.Minute)), true},
		{"within skew", signed(t, now.Add(10*time.Second)), true},
	}
	for _, tt := range tests {
		if got := Expired(tt.token, now); got != tt.want {
			t.Fatalf("%s: Expired=%v want %v", tt.name, got, tt.want)
		}
	}
}

func TestSubject(t *testing.T) {
	if got := Subject(signed(t, time.Now().Add(time.Hour))); got != "42" {
		t.Fatalf("subject=%q want 42", got)
	}
	if got := Subject("opaque"); got != "" {
		t.Fatalf("subject=%q want empty", got)
	}
}

func TestStaticToken_DropsExpired(t *testing.T) {
	tok, err := StaticToken(signed(t, time.Now().Add(-time.Hour))).Token(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tok != "" {
		t.Fatalf("expected signed-out state, got %q", tok)
	}
}

func TestChain_FirstNonEmptyWins(t *testing.T) {
	src := Chain(StaticToken(""), nil, StaticToken("b"), StaticToken("c"))
	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tok != "b" {
		t.Fatalf("tok=%q want b", tok)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "credentials.json"))

	tok, err := s.Token(context.Background())
	if err != nil || tok != "" {
		t.Fatalf("missing file: tok=%q err=%v", tok, err)
	}

	jwtTok := signed(t, time.Now().Add(time.Hour))
	if err := s.Save(Credentials{Token: jwtTok, Email: "a@b.c"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	c, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ExpiresAt == "" {
		t.Fatalf("expires_at not derived from token")
	}
	tok, err = s.Token(context.Background())
	if err != nil || tok != jwtTok {
		t.Fatalf("tok=%q err=%v", tok, err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	tok, _ = s.Token(context.Background())
	if tok != "" {
		t.Fatalf("tok=%q after clear", tok)
	}
}

func TestFileStore_ExpiredCredentials(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err := s.Save(Credentials{Token: "opaque", ExpiresAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tok != "" {
		t.Fatalf("tok=%q want empty", tok)
	}
}
