package auth

// TokenValidator resolves a bearer token to the actor it was issued for.
// Handlers and the websocket endpoint depend on this instead of *Service so
// tests can substitute MockAuthService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Ensure Service implements TokenValidator
var _ TokenValidator = (*Service)(nil)
