package platform

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := TokenExpiry(signedToken(t, exp))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	if TokenExpired(signedToken(t, now.Add(time.Hour)), now) {
		t.Error("fresh token reported expired")
	}
	if !TokenExpired(signedToken(t, now.Add(-time.Hour)), now) {
		t.Error("stale token reported valid")
	}
	if !TokenExpired("not-a-jwt", now) {
		t.Error("garbage token should count as expired")
	}
}

func TestLoadSaveToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := SaveToken(path, "abc123"); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q", tok)
	}
}

func TestLoadTokenMissing(t *testing.T) {
	if _, err := LoadToken(filepath.Join(t.TempDir(), "none")); err == nil {
		t.Error("expected error for missing token file")
	}
}
