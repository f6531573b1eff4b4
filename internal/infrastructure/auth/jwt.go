package auth

import (
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ErrNotJWT the credential is an opaque token
var ErrNotJWT = errors.New("credential is not a JWT")

// CredentialClaims claims carried by the static catalog credential
type CredentialClaims struct {
	Platform string `json:"platform"`

	jwt.StandardClaims
}

// TimeRemaining remaining time before the credential expires, zero when already expired.
// Credentials without an exp claim never expire.
func (cc *CredentialClaims) TimeRemaining(now time.Time) (time.Duration, bool) {
	if cc.ExpiresAt == 0 {
		return 0, false
	}
	exp := time.Unix(cc.ExpiresAt, 0)
	if exp.Before(now) {
		return 0, true
	}
	return exp.Sub(now), true
}

// InspectCredential decodes the claims of a bearer credential without verifying its signature,
// the catalog owns the signing key so only the expiry is of interest here
func InspectCredential(token string) (*CredentialClaims, error) {
	claims := new(CredentialClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil, ErrNotJWT
	}
	return claims, nil
}
