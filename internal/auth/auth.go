// Package auth verifies the opaque bearer credential presented at connect
// time. Tokens are issued by the main platform API; this service only
// validates them and extracts the subject.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Handshake rejection reasons, reported only to the connecting caller.
var (
	ErrNoCredential      = errors.New("no-credential")
	ErrInvalidCredential = errors.New("invalid-credential")
	ErrIdentityNotFound  = errors.New("identity-not-found")
)

// Claims is the token shape issued by the platform API.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns the identity id bound into the credential, or
// ErrNoCredential / ErrInvalidCredential.
func (v *Verifier) Verify(credential string) (string, error) {
	if credential == "" {
		return "", ErrNoCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidCredential
	}
	return claims.UserID, nil
}
