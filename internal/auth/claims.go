package auth

import (
	"strings"
	"time"
)

// Claims is the identity carried by a validated token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Scopes    []string

	// Raw holds every claim of the token.
	Raw map[string]interface{}
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// scopesFrom reads the space separated "scope" claim, or the "scp" array
// some identity providers use instead.
func scopesFrom(raw map[string]interface{}) []string {
	if s, ok := raw["scope"].(string); ok {
		return strings.Fields(s)
	}
	list, ok := raw["scp"].([]interface{})
	if !ok {
		return nil
	}
	scopes := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
