package platform

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoadToken reads the access token for a profile from disk.
// Token issuance is the platform's problem; we only store and present it.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// SaveToken writes the access token for a profile with tight permissions.
func SaveToken(path, token string) error {
	return os.WriteFile(path, []byte(token+"\n"), 0600)
}

// TokenExpiry extracts the exp claim without verifying the signature.
// The server is the verifier; we only need to know whether dialing is
// pointless because the token is already dead.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

// TokenExpired reports whether the token is past its exp claim.
// Tokens without a parseable exp claim are treated as expired.
func TokenExpired(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return true
	}
	return now.After(exp)
}
