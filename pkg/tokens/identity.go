package tokens

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoEmail = errors.New("token has no email claim")

// IdentityClaims is the claim set of an ID token issued by the identity provider.
type IdentityClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

func Sign(claims IdentityClaims, secret []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func IdentityClaimsFromToken(tokenStr string, secret []byte) (*IdentityClaims, error) {
	var claims IdentityClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Email == "" {
		return nil, ErrNoEmail
	}
	return &claims, nil
}

// UnverifiedIdentityClaims decodes claims of a token received directly from the
// identity provider over TLS. The signature is not checked here; the backend
// verifies it on every request the token is attached to.
func UnverifiedIdentityClaims(tokenStr string) (*IdentityClaims, error) {
	var claims IdentityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, ErrNoEmail
	}
	return &claims, nil
}
