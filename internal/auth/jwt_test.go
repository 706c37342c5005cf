package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestJWTValidator_Secret(t *testing.T) {
	t.Parallel()

	v, err := NewJWTValidator(context.Background(), JWTConfig{
		Secret:   testSecret,
		Issuer:   "https://idp.example.com",
		Audience: "edge",
	})
	require.NoError(t, err)
	defer v.Close()

	now := time.Now()
	valid := jwt.MapClaims{
		"sub":   "alice",
		"iss":   "https://idp.example.com",
		"aud":   "edge",
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "accounts.write",
	}

	tests := []struct {
		name    string
		token   func() string
		wantErr error
	}{
		{
			name:  "valid",
			token: func() string { return signHS256(t, valid) },
		},
		{
			name: "expired",
			token: func() string {
				c := jwt.MapClaims{"sub": "alice", "iss": valid["iss"], "aud": "edge", "exp": now.Add(-time.Hour).Unix()}
				return signHS256(t, c)
			},
			wantErr: ErrTokenExpired,
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := jwt.MapClaims{"sub": "alice", "iss": "https://other", "aud": "edge", "exp": valid["exp"]}
				return signHS256(t, c)
			},
			wantErr: ErrInvalidIssuer,
		},
		{
			name: "wrong audience",
			token: func() string {
				c := jwt.MapClaims{"sub": "alice", "iss": valid["iss"], "aud": "other", "exp": valid["exp"]}
				return signHS256(t, c)
			},
			wantErr: ErrInvalidAudience,
		},
		{
			name: "wrong secret",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, valid).SignedString([]byte("another-secret-another-secret!!"))
				require.NoError(t, err)
				return s
			},
			wantErr: ErrInvalidToken,
		},
		{
			name:    "garbage",
			token:   func() string { return "not.a.jwt" },
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := v.Validate(context.Background(), tt.token())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Subject)
			assert.Equal(t, []string{"edge"}, claims.Audience)
			assert.True(t, claims.HasScope("accounts.write"))
			assert.False(t, claims.ExpiresAt.IsZero())
		})
	}
}

func TestNewJWTValidator_RequiresOneKeySource(t *testing.T) {
	t.Parallel()

	_, err := NewJWTValidator(context.Background(), JWTConfig{})
	assert.Error(t, err)

	_, err = NewJWTValidator(context.Background(), JWTConfig{Secret: "s", JWKSURL: "http://localhost"})
	assert.Error(t, err)
}

func serveJWKS(t *testing.T, key *rsa.PublicKey, kid string) *httptest.Server {
	t.Helper()

	jwkKey, err := jwk.FromRaw(key)
	require.NoError(t, err)
	require.NoError(t, jwkKey.Set(jwk.KeyIDKey, kid))
	require.NoError(t, jwkKey.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(jwkKey))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWTValidator_JWKS(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := serveJWKS(t, &key.PublicKey, "key-1")

	v, err := NewJWTValidator(context.Background(), JWTConfig{JWKSURL: srv.URL, RefreshInterval: time.Minute})
	require.NoError(t, err)
	defer v.Close()

	sign := func(kid string, k *rsa.PrivateKey) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub": "bob",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		if kid != "" {
			tok.Header["kid"] = kid
		}
		s, err := tok.SignedString(k)
		require.NoError(t, err)
		return s
	}

	claims, err := v.Validate(context.Background(), sign("key-1", key))
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)

	claims, err = v.Validate(context.Background(), sign("", key))
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)

	_, err = v.Validate(context.Background(), sign("unknown", key))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), sign("key-1", other))
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs := signHS256(t, jwt.MapClaims{"sub": "eve"})
	_, err = v.Validate(context.Background(), hs)
	assert.ErrorIs(t, err, ErrInvalidToken, "HMAC tokens are not accepted with a JWKS")
}

func TestNewJWKSProvider_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewJWKSProvider(context.Background(), srv.URL, time.Minute, nil)
	assert.Error(t, err)
}

func TestGate_WithJWTValidator(t *testing.T) {
	t.Parallel()

	v, err := NewJWTValidator(context.Background(), JWTConfig{Secret: testSecret})
	require.NoError(t, err)

	gate := NewGate(GateConfig{Enabled: true}, v)
	token := signHS256(t, jwt.MapClaims{"sub": "carol", "exp": time.Now().Add(time.Minute).Unix()})

	claims, err := gate.Authorize(context.Background(), http.MethodPost, "/sbdb/loans/api/create", "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "carol", claims.Subject)
}
