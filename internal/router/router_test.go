package router

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgerouter/internal/util"
)

func referenceRoutes() []Route {
	return []Route{
		{ID: "accounts", Pattern: "/sbdb/accounts/**", Service: "ACCOUNTS"},
		{ID: "loans", Pattern: "/sbdb/loans/**", Service: "LOANS"},
		{ID: "cards", Pattern: "/sbdb/cards/**", Service: "CARDS"},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	table, err := New(referenceRoutes()...)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	routes := table.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "accounts", routes[0].ID)
	assert.Equal(t, "cards", routes[2].ID)

	r, ok := table.Get("loans")
	require.True(t, ok)
	assert.Equal(t, "LOANS", r.Service)

	_, ok = table.Get("missing")
	assert.False(t, ok)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(Route{ID: "a", Pattern: "/a"}, Route{ID: "a", Pattern: "/b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = New(Route{Pattern: "/a"})
	assert.Error(t, err)

	_, err = New(Route{ID: "bad", Pattern: "/a/**/b"})
	assert.Error(t, err)
}

func TestRouteTable_Match(t *testing.T) {
	t.Parallel()

	table, err := New(referenceRoutes()...)
	require.NoError(t, err)

	result, err := table.Match(http.MethodGet, "/sbdb/loans/accounts/55")
	require.NoError(t, err)
	assert.Equal(t, "loans", result.Route.ID)
	assert.Equal(t, "accounts/55", result.Captures[RemainingCapture])

	result, err = table.Match(http.MethodPost, "/sbdb/cards/create")
	require.NoError(t, err)
	assert.Equal(t, "cards", result.Route.ID)
}

func TestRouteTable_Match_NotFound(t *testing.T) {
	t.Parallel()

	table, err := New(referenceRoutes()...)
	require.NoError(t, err)

	_, err = table.Match(http.MethodGet, "/unknown/x")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrNotFound)

	var nf *util.RouteNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "/unknown/x", nf.Path)
	assert.Equal(t, http.MethodGet, nf.Method)
}

func TestRouteTable_FirstMatchWins(t *testing.T) {
	t.Parallel()

	// The broad route is declared first and shadows the specific one.
	table, err := New(
		Route{ID: "broad", Pattern: "/sbdb/**", Service: "A"},
		Route{ID: "specific", Pattern: "/sbdb/cards/**", Service: "B"},
	)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		result, err := table.Match(http.MethodGet, "/sbdb/cards/1")
		require.NoError(t, err)
		assert.Equal(t, "broad", result.Route.ID)
	}

	reversed, err := New(
		Route{ID: "specific", Pattern: "/sbdb/cards/**", Service: "B"},
		Route{ID: "broad", Pattern: "/sbdb/**", Service: "A"},
	)
	require.NoError(t, err)

	result, err := reversed.Match(http.MethodGet, "/sbdb/cards/1")
	require.NoError(t, err)
	assert.Equal(t, "specific", result.Route.ID)
}

func TestRouteTable_MethodRestriction(t *testing.T) {
	t.Parallel()

	table, err := New(
		Route{ID: "read", Pattern: "/items/**", Methods: []string{http.MethodGet}, Service: "R"},
		Route{ID: "write", Pattern: "/items/**", Service: "W"},
	)
	require.NoError(t, err)

	result, err := table.Match(http.MethodGet, "/items/1")
	require.NoError(t, err)
	assert.Equal(t, "read", result.Route.ID)

	result, err = table.Match(http.MethodPut, "/items/1")
	require.NoError(t, err)
	assert.Equal(t, "write", result.Route.ID)
}

func TestRouteTable_Empty(t *testing.T) {
	t.Parallel()

	table, err := New()
	require.NoError(t, err)
	assert.Zero(t, table.Len())

	_, err = table.Match(http.MethodGet, "/")
	assert.ErrorIs(t, err, util.ErrNotFound)
}
