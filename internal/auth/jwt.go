package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default signing algorithms by key source.
var (
	DefaultJWKSAlgorithms   = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"}
	DefaultSecretAlgorithms = []string{"HS256", "HS384", "HS512"}
)

// JWTConfig configures a JWTValidator. Exactly one of JWKSURL and Secret
// must be set.
type JWTConfig struct {
	JWKSURL         string
	RefreshInterval time.Duration
	Secret          string
	Issuer          string
	Audience        string
	Algorithms      []string
	Leeway          time.Duration
	HTTPClient      *http.Client
}

// JWTValidator validates signed JSON Web Tokens.
type JWTValidator struct {
	parser  *jwt.Parser
	jwks    *JWKSProvider
	secret  []byte
	timeNow func() time.Time
}

// NewJWTValidator creates a JWTValidator. With a JWKS URL the first key
// fetch happens here, bounded by ctx.
func NewJWTValidator(ctx context.Context, cfg JWTConfig) (*JWTValidator, error) {
	if (cfg.JWKSURL == "") == (cfg.Secret == "") {
		return nil, errors.New("exactly one of jwksUrl and secret must be set")
	}

	algs := cfg.Algorithms
	v := &JWTValidator{timeNow: time.Now}

	if cfg.Secret != "" {
		v.secret = []byte(cfg.Secret)
		if len(algs) == 0 {
			algs = DefaultSecretAlgorithms
		}
	} else {
		p, err := NewJWKSProvider(ctx, cfg.JWKSURL, cfg.RefreshInterval, cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		v.jwks = p
		if len(algs) == 0 {
			algs = DefaultJWKSAlgorithms
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(func() time.Time { return v.timeNow() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// Validate implements TokenValidator.
func (v *JWTValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, mc, v.keyFunc(ctx))
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claimsFrom(mc), nil
}

// Close releases the JWKS cache, if any.
func (v *JWTValidator) Close() {
	if v.jwks != nil {
		v.jwks.Close()
	}
}

func (v *JWTValidator) keyFunc(ctx context.Context) jwt.Keyfunc {
	if v.jwks != nil {
		return v.jwks.KeyFunc(ctx)
	}
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}
}

// classify maps jwt errors onto the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrInvalidAudience, err)
	case errors.Is(err, ErrKeyNotFound):
		return fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

func claimsFrom(mc jwt.MapClaims) *Claims {
	c := &Claims{Raw: map[string]interface{}(mc)}
	c.Subject, _ = mc.GetSubject()
	c.Issuer, _ = mc.GetIssuer()
	if aud, err := mc.GetAudience(); err == nil {
		c.Audience = []string(aud)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	c.Scopes = scopesFrom(mc)
	return c
}
