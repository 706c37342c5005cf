// Package router matches inbound requests to routes.
//
// A RouteTable is built once from an ordered route list and never
// mutated; reloads build a new table. Matching walks the list in
// registration order and the first route whose method set and path
// pattern accept the request wins, so a broad pattern declared early
// shadows a narrower one declared later.
//
//	table, err := router.New(
//	    router.Route{ID: "loans", Pattern: "/sbdb/loans/**", Service: "LOANS"},
//	    router.Route{ID: "cards", Pattern: "/sbdb/cards/**", Service: "CARDS"},
//	)
//	if err != nil {
//	    return err
//	}
//
//	result, err := table.Match(http.MethodGet, "/sbdb/loans/accounts/55")
//	// result.Captures["remaining"] == "accounts/55"
package router
