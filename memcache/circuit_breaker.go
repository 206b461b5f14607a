package memcache

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/linebuf/meta"
)

// CircuitBreaker guards the requests sent to one server.
// *gobreaker.CircuitBreaker[*meta.Response] implements it.
type CircuitBreaker interface {
	Execute(req func() (*meta.Response, error)) (*meta.Response, error)
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// NewCircuitBreakerConfig returns a Config.NewCircuitBreaker function
// creating one gobreaker circuit breaker per server.
//
// The circuit opens when at least 3 requests were seen in the current
// interval and 60% of them failed. It stays open for timeout, then lets
// maxRequests through to probe the server.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) CircuitBreaker {
	return func(addr string) CircuitBreaker {
		return gobreaker.NewCircuitBreaker[*meta.Response](gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: isServerHealthy,
		})
	}
}

// isServerHealthy reports whether err says nothing bad about the server:
// either it answered with an error line, or nothing was sent.
func isServerHealthy(err error) bool {
	if err == nil || isContextError(err) {
		return true
	}

	var (
		clientErr  *meta.ClientError
		serverErr  *meta.ServerError
		genericErr *meta.GenericError
		keyErr     *meta.InvalidKeyError
	)
	return errors.As(err, &clientErr) ||
		errors.As(err, &serverErr) ||
		errors.As(err, &genericErr) ||
		errors.As(err, &keyErr)
}
