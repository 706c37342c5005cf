// Package retry re-executes failed backend calls with exponential backoff.
//
// A Policy names the methods that may be retried, the total attempt
// budget and the backoff schedule. Calls with other methods run once.
// Delays start at Backoff.Initial, grow by Backoff.Multiplier and are
// capped at Backoff.Max; with Jitter each delay is randomized around its
// nominal value.
//
// # Usage
//
//	exec := retry.NewExecutor("accounts", retry.DefaultPolicy().WithMaxAttempts(4), logger)
//	err := exec.Execute(ctx, http.MethodGet, func(ctx context.Context, attempt int) error {
//	    return callBackend(ctx)
//	})
//
// A failed call is reported once as *AttemptsError wrapping the last
// attempt's error. Errors wrapped with Permanent stop retrying at once.
// Cancelling ctx during a backoff wait ends the call immediately.
package retry
