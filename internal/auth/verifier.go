// Package auth verifies bearer tokens and extracts the caller's identity.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string // admin, advertiser
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// Verifier validates HS256 JWTs carrying "sub" and "role" claims.
type Verifier struct {
	secret []byte
}

func NewVerifier(hmacSecret string) *Verifier {
	return &Verifier{secret: []byte(hmacSecret)}
}

// Configured reports whether token verification is enabled. When it is not,
// callers fall back to dev headers.
func (v *Verifier) Configured() bool { return len(v.secret) > 0 }

func (v *Verifier) Verify(token string) (Principal, error) {
	if !v.Configured() {
		return Principal{}, errors.New("verifier not configured")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Principal{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || role == "" {
		return Principal{}, errors.New("token missing sub or role claim")
	}
	return Principal{UserID: sub, Role: role}, nil
}
