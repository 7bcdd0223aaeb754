package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Claims are the only supported JWT claims shape for this service. There is
// a single admin principal; Operator is an operator-supplied label for audit
// trails, not an identity that grants anything by itself.
type Claims struct {
	jwt.RegisteredClaims

	Operator  string    `json:"operator"`
	TokenType TokenType `json:"token_type"`
}
