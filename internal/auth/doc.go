// Package auth provides the authorization gate of the edge router.
//
// The gate decides, from the request method and path alone, whether a
// request needs a credential. Open methods (only GET by default) are
// always admitted. Any other method on a protected path
// pattern must carry an "Authorization: Bearer <token>" header whose token
// a TokenValidator accepts.
//
// # Token validation
//
// JWTValidator parses and verifies JSON Web Tokens with
// github.com/golang-jwt/jwt/v5. Signing keys come either from a JWKS
// endpoint, fetched and refreshed in the background by a
// github.com/lestrrat-go/jwx/v2 jwk.Cache, or from a shared HMAC secret.
// Issuer and audience are checked when configured.
//
// # Usage
//
//	validator, err := auth.NewJWTValidator(ctx, auth.JWTConfig{
//	    JWKSURL: "https://idp.example.com/realms/sbdb/protocol/openid-connect/certs",
//	    Issuer:  "https://idp.example.com/realms/sbdb",
//	})
//	if err != nil {
//	    return err
//	}
//
//	gate := auth.NewGate(auth.GateConfig{Enabled: true}, validator, auth.WithLogger(logger))
//	claims, err := gate.Authorize(ctx, r.Method, r.URL.Path, r.Header.Get("Authorization"))
//
// Every rejection is a *util.UnauthorizedError.
package auth
