package auth

import "github.com/golang-jwt/jwt/v5"

// Claims carries the pre-authenticated caller identity. Identity
// issuance itself is an external collaborator; this service only
// verifies.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"uid"`
	Name   string `json:"name"`
}
