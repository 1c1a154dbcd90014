// Package auth signs and validates the bearer tokens that protect the
// status API. Tokens are minted offline by the radar-token tool; the
// running service only validates.
package auth

// AuthError is a machine-readable authentication failure.
type AuthError struct {
	Code    string
	Message string
}

func (e AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidToken = AuthError{Code: "invalid_token", Message: "token is invalid"}
	ErrTokenExpired = AuthError{Code: "token_expired", Message: "token has expired"}
	ErrUnauthorized = AuthError{Code: "unauthorized", Message: "authentication required"}
)

// TokenClaims is the application payload carried in a token. Name
// identifies the operator or tool the token was minted for.
type TokenClaims struct {
	Name string `json:"name"`
}
