// Package identity turns an incoming request into the shopper's user id.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const UserIDHeader = "X-User-ID"

var ErrUnauthenticated = errors.New("unauthenticated")

type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver trusts a user id placed on the request by an upstream gateway.
type HeaderResolver struct {
	Header string
}

func (h HeaderResolver) Resolve(r *http.Request) (string, error) {
	name := h.Header
	if name == "" {
		name = UserIDHeader
	}
	userID := strings.TrimSpace(r.Header.Get(name))
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// JWTResolver validates HS256 bearer tokens and uses the subject as user id.
type JWTResolver struct {
	secret []byte
	now    func() time.Time
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), now: time.Now}
}

func (j *JWTResolver) Resolve(r *http.Request) (string, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return "", ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Sign issues a token for userID. Used by tests and local tooling.
func (j *JWTResolver) Sign(userID string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
