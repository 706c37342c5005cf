package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgerouter/internal/util"
)

func staticValidator(valid string) TokenValidator {
	return TokenValidatorFunc(func(_ context.Context, token string) (*Claims, error) {
		if token != valid {
			return nil, ErrInvalidToken
		}
		return &Claims{Subject: "user-1"}, nil
	})
}

func TestGate_Authorize(t *testing.T) {
	t.Parallel()

	gate := NewGate(GateConfig{Enabled: true}, staticValidator("good"))

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantErr    bool
		wantReason string
		wantClaims bool
	}{
		{name: "GET on protected path is open", method: http.MethodGet, path: "/sbdb/accounts/api/1"},
		{
			name: "HEAD on protected path needs a token", method: http.MethodHead, path: "/sbdb/cards/x",
			wantErr: true, wantReason: ReasonMissingToken,
		},
		{
			name: "OPTIONS on protected path needs a token", method: http.MethodOptions, path: "/sbdb/cards/x",
			wantErr: true, wantReason: ReasonMissingToken,
		},
		{name: "POST on unprotected path is open", method: http.MethodPost, path: "/public/x"},
		{
			name: "POST without token", method: http.MethodPost, path: "/sbdb/accounts/api/create",
			wantErr: true, wantReason: ReasonMissingToken,
		},
		{
			name: "DELETE with basic credentials", method: http.MethodDelete, path: "/sbdb/loans/api/delete",
			header: "Basic dXNlcjpwYXNz", wantErr: true, wantReason: ReasonMalformed,
		},
		{
			name: "PUT with bad token", method: http.MethodPut, path: "/sbdb/cards/api/update",
			header: "Bearer nope", wantErr: true, wantReason: ReasonInvalidToken,
		},
		{
			name: "POST with good token", method: http.MethodPost, path: "/sbdb/cards/api/create",
			header: "Bearer good", wantClaims: true,
		},
		{
			name: "lowercase scheme accepted", method: http.MethodPost, path: "/sbdb/cards/api/create",
			header: "bearer good", wantClaims: true,
		},
		{
			name: "pattern root is protected", method: http.MethodPost, path: "/sbdb/accounts",
			wantErr: true, wantReason: ReasonMissingToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := gate.Authorize(context.Background(), tt.method, tt.path, tt.header)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, util.ErrUnauthorized))

				var ue *util.UnauthorizedError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, tt.wantReason, ue.Reason)
				assert.Equal(t, tt.path, ue.Path)
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, err)
			if tt.wantClaims {
				require.NotNil(t, claims)
				assert.Equal(t, "user-1", claims.Subject)
			} else {
				assert.Nil(t, claims)
			}
		})
	}
}

func TestGate_Disabled(t *testing.T) {
	t.Parallel()

	gate := NewGate(GateConfig{Enabled: false}, nil)
	assert.False(t, gate.RequiresToken(http.MethodPost, "/sbdb/accounts/api/create"))

	_, err := gate.Authorize(context.Background(), http.MethodPost, "/sbdb/accounts/api/create", "")
	assert.NoError(t, err)
}

func TestGate_NoValidator(t *testing.T) {
	t.Parallel()

	gate := NewGate(GateConfig{Enabled: true}, nil)
	_, err := gate.Authorize(context.Background(), http.MethodPost, "/sbdb/loans/x", "Bearer anything")

	var ue *util.UnauthorizedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, ReasonNoValidator, ue.Reason)
}

func TestGate_CustomPathsAndMethods(t *testing.T) {
	t.Parallel()

	gate := NewGate(GateConfig{
		Enabled:        true,
		ProtectedPaths: []string{"/admin/**", "/ops/*/restart"},
		OpenMethods:    []string{"options"},
	}, staticValidator("t"))

	assert.True(t, gate.RequiresToken(http.MethodGet, "/admin/users"))
	assert.True(t, gate.RequiresToken(http.MethodPost, "/ops/db/restart"))
	assert.False(t, gate.RequiresToken(http.MethodPost, "/ops/db/status"))
	assert.False(t, gate.RequiresToken(http.MethodOptions, "/admin/users"))
	assert.False(t, gate.RequiresToken(http.MethodPost, "/sbdb/accounts/x"))
}

func TestExtractBearer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{header: "", wantErr: ErrNoCredentials},
		{header: "   ", wantErr: ErrNoCredentials},
		{header: "Bearer", wantErr: ErrMalformedHeader},
		{header: "Bearer   ", wantErr: ErrMalformedHeader},
		{header: "Token abc", wantErr: ErrMalformedHeader},
		{header: "Bearer abc", want: "abc"},
		{header: "BEARER  abc ", want: "abc"},
	}

	for _, tt := range tests {
		got, err := ExtractBearer(tt.header)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "header %q", tt.header)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestClaims_HasScope(t *testing.T) {
	t.Parallel()

	c := &Claims{Scopes: scopesFrom(map[string]interface{}{"scope": "openid accounts.write"})}
	assert.True(t, c.HasScope("accounts.write"))
	assert.False(t, c.HasScope("cards.write"))

	c = &Claims{Scopes: scopesFrom(map[string]interface{}{"scp": []interface{}{"a", "b"}})}
	assert.Equal(t, []string{"a", "b"}, c.Scopes)
}
