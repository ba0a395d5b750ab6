package replica

import (
	"context"
	"time"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// followerBreaker guards a follower's sync loop against a leader that has
// gone Unavailable: once MaxFailures consecutive round trips fail, the
// loop stops hammering the leader and backs off exponentially instead.
func newFollowerBreaker(name string) *vecerrors.CircuitBreaker {
	return vecerrors.NewCircuitBreaker(name,
		vecerrors.WithMaxFailures(5),
		vecerrors.WithResetTimeout(10*time.Second),
	)
}

func syncRetryConfig() vecerrors.RetryConfig {
	cfg := vecerrors.DefaultRetryConfig()
	cfg.MaxRetries = 6
	cfg.InitialDelay = 200 * time.Millisecond
	cfg.MaxDelay = 30 * time.Second
	cfg.Jitter = true
	return cfg
}

// withBackoff runs fn through both the circuit breaker and the retry
// loop: the breaker fails fast once the leader looks persistently down,
// the retry loop absorbs transient failures while the breaker stays
// closed.
func withBackoff(ctx context.Context, cb *vecerrors.CircuitBreaker, fn func() error) error {
	if !cb.Allow() {
		return vecerrors.New(vecerrors.Unavailable, "leader circuit is open", vecerrors.ErrCircuitOpen)
	}
	err := vecerrors.Retry(ctx, syncRetryConfig(), func() error {
		err := cb.Execute(fn)
		return err
	})
	return err
}
