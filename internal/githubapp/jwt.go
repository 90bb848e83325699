package githubapp

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppAuth holds the immutable GitHub App identity: the numeric App ID and
// the RSA private key generated for the App. It is read once at startup and
// safe for unsynchronized concurrent use.
type AppAuth struct {
	appID int64
	key   *rsa.PrivateKey
}

// LoadAppAuth reads and parses the App's private key from a PEM file.
// Failures here are fatal at startup; the process must not serve traffic
// without usable key material.
func LoadAppAuth(appID int64, keyPath string) (*AppAuth, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read github app private key file: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse github app private key file: %w", err)
	}
	return &AppAuth{appID: appID, key: key}, nil
}

// NewAppAuth wraps an already-parsed private key. Used by tests and callers
// that obtain key material elsewhere.
func NewAppAuth(appID int64, key *rsa.PrivateKey) *AppAuth {
	return &AppAuth{appID: appID, key: key}
}

// MintJWT produces a signed RS256 assertion proving the App's identity, as
// required by GitHub to request installation access tokens. The token is
// backdated one minute to tolerate clock drift and expires after ten
// minutes, the maximum GitHub accepts.
func (a *AppAuth) MintJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(a.appID, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign github app jwt: %w", err)
	}
	return signed, nil
}
