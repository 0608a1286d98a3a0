package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the standard claims of a session token.
// The subject is the lowercased wallet address.
type SessionClaims struct {
	jwt.RegisteredClaims
}
