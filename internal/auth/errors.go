package auth

import "errors"

// Sentinel errors for authorization decisions.
var (
	// ErrNoCredentials indicates that no bearer token was provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrMalformedHeader indicates an Authorization header that is not a
	// bearer credential.
	ErrMalformedHeader = errors.New("malformed authorization header")

	// ErrInvalidToken indicates that the token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer indicates that the token issuer is not accepted.
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience indicates that the token audience is not accepted.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrKeyNotFound indicates that the signing key was not found.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrNoValidator indicates a protected request with no validator
	// configured.
	ErrNoValidator = errors.New("no token validator configured")
)

// Rejection reasons, used in errors and metric labels.
const (
	ReasonMissingToken   = "missing_token"
	ReasonMalformed      = "malformed_header"
	ReasonInvalidToken   = "invalid_token"
	ReasonExpired        = "expired"
	ReasonIssuer         = "invalid_issuer"
	ReasonAudience       = "invalid_audience"
	ReasonNoValidator    = "no_validator"
	ReasonKeyUnavailable = "key_unavailable"
)

// reasonFor maps a validation error to its rejection reason.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return ReasonMissingToken
	case errors.Is(err, ErrMalformedHeader):
		return ReasonMalformed
	case errors.Is(err, ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, ErrInvalidIssuer):
		return ReasonIssuer
	case errors.Is(err, ErrInvalidAudience):
		return ReasonAudience
	case errors.Is(err, ErrKeyNotFound):
		return ReasonKeyUnavailable
	case errors.Is(err, ErrNoValidator):
		return ReasonNoValidator
	default:
		return ReasonInvalidToken
	}
}
