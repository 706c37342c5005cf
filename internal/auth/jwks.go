package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	defaultJWKSRefresh = 15 * time.Minute
	jwksFetchTimeout   = 5 * time.Second
)

// JWKSProvider fetches and caches a JSON Web Key Set. The cache refreshes
// the set in the background until Close is called.
type JWKSProvider struct {
	cache  *jwk.Cache
	url    string
	cancel context.CancelFunc
}

// NewJWKSProvider registers url with a background-refreshing cache and
// performs the first fetch. client may be nil.
func NewJWKSProvider(ctx context.Context, url string, refresh time.Duration, client *http.Client) (*JWKSProvider, error) {
	if refresh <= 0 {
		refresh = defaultJWKSRefresh
	}

	cctx, cancel := context.WithCancel(context.Background())
	cache := jwk.NewCache(cctx)

	opts := []jwk.RegisterOption{jwk.WithMinRefreshInterval(refresh)}
	if client != nil {
		opts = append(opts, jwk.WithHTTPClient(client))
	}
	if err := cache.Register(url, opts...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	fctx, fcancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer fcancel()
	if _, err := cache.Refresh(fctx, url); err != nil {
		cancel()
		JWKSRefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", url, err)
	}
	JWKSRefreshTotal.WithLabelValues("success").Inc()

	return &JWKSProvider{cache: cache, url: url, cancel: cancel}, nil
}

// KeyFunc returns a jwt.Keyfunc resolving the token's kid against the
// cached set. A token without kid uses the first key.
func (p *JWKSProvider) KeyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		fctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
		defer cancel()

		set, err := p.cache.Get(fctx, p.url)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
		}

		var key jwk.Key
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			k, ok := set.Key(0)
			if !ok {
				return nil, fmt.Errorf("%w: key set is empty", ErrKeyNotFound)
			}
			key = k
		} else {
			k, ok := set.LookupKeyID(kid)
			if !ok {
				return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
			}
			key = k
		}

		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("failed to extract raw key: %w", err)
		}
		return raw, nil
	}
}

// Close stops background refreshes.
func (p *JWKSProvider) Close() {
	p.cancel()
}
