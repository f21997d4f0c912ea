package domain

import "github.com/golang-jwt/jwt/v5"

// Principal identifies who is making a request after authentication
type Principal struct {
	Type        string // "user", "api_key", "system"
	Subject     string // user subject or key public id
	WorkspaceID string
	Scopes      []string
}

// HasScope checks whether the principal may perform a scoped operation.
// Users authenticated via JWT carry no scopes and are unrestricted.
func (p *Principal) HasScope(scope string) bool {
	if p.Type != "api_key" {
		return true
	}
	key := APIKey{Scopes: p.Scopes}
	return key.HasScope(scope)
}

// JWTClaims represents the claims in a JWT token
type JWTClaims struct {
	Subject     string `json:"sub_name"`
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}
