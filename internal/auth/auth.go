// Package auth guards the HTTP transport's messaging endpoints with bearer
// tokens. Two credential forms are accepted: an HS256 JWT signed with the
// configured secret (minted by the `bqgate token` subcommand) or a static
// API token checked against a bcrypt hash from the configuration. Health
// endpoints are never guarded.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type Auth struct {
	secret    []byte
	expiry    time.Duration
	tokenHash string
}

type Claims struct {
	jwt.RegisteredClaims
}

func New(secret string, expiryMinutes int, apiTokenHash string) *Auth {
	a := &Auth{
		expiry:    time.Duration(expiryMinutes) * time.Minute,
		tokenHash: apiTokenHash,
	}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// GenerateToken mints a client JWT for the HTTP transport.
func (a *Auth) GenerateToken(subject string) (string, error) {
	if a.secret == nil {
		return "", fmt.Errorf("no jwt_secret configured")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	if a.secret == nil {
		return nil, fmt.Errorf("no jwt_secret configured")
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Authorize checks the request's Authorization header. The static API token
// is tried first, then JWT validation. A nil error means the request may
// proceed.
func (a *Auth) Authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return fmt.Errorf("Authorization header is not a bearer token")
	}
	token := parts[1]

	if a.tokenHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) == nil {
			return nil
		}
	}
	if a.secret != nil {
		if _, err := a.ValidateToken(token); err == nil {
			return nil
		}
	}
	return fmt.Errorf("invalid bearer token")
}

// HashToken produces a bcrypt hash suitable for the api_token_hash config
// value.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
