package memcache

import (
	"context"

	"go.uber.org/zap"

	"github.com/pior/linebuf/meta"
)

// serverPool is the pool and circuit breaker of one server.
type serverPool struct {
	addr           string
	pool           Pool
	circuitBreaker CircuitBreaker // nil if not configured
	logger         *zap.Logger
}

func (sp *serverPool) stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:      sp.addr,
		PoolStats: sp.pool.Stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// send runs one request-response exchange, guarded by the circuit breaker.
func (sp *serverPool) send(ctx context.Context, req *meta.Request) (*meta.Response, error) {
	return sp.guard(func() (*meta.Response, error) {
		var resp *meta.Response
		err := sp.withConnection(ctx, func(conn *Connection) error {
			var err error
			resp, err = conn.Send(ctx, req)
			if err != nil {
				return err
			}
			return closingError(resp)
		})
		return resp, err
	})
}

// sendBatch pipelines reqs on one connection, guarded by the circuit breaker.
func (sp *serverPool) sendBatch(ctx context.Context, reqs []*meta.Request) ([]*meta.Response, error) {
	var resps []*meta.Response
	_, err := sp.guard(func() (*meta.Response, error) {
		return nil, sp.withConnection(ctx, func(conn *Connection) error {
			var err error
			resps, err = conn.SendBatch(ctx, reqs)
			if err != nil {
				return err
			}
			return closingError(resps...)
		})
	})
	return resps, err
}

// withConnection runs fn on a pooled connection. The connection is destroyed
// when fn fails with an error leaving the stream in an unknown state, or
// with data left in its read buffer. A context done before any I/O leaves
// the connection intact.
func (sp *serverPool) withConnection(ctx context.Context, fn func(conn *Connection) error) error {
	res, err := sp.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	conn := res.Value()
	err = fn(conn)

	switch {
	case err != nil && meta.ShouldCloseConnection(err) && !isContextError(err):
		sp.logger.Debug("closing connection", zap.Error(err))
		res.Destroy()
	case conn.Buffered() > 0:
		sp.logger.Warn("closing connection: unexpected data after response", zap.Int("buffered", conn.Buffered()))
		res.Destroy()
	default:
		res.Release()
	}
	return err
}

// closingError returns the first error response after which the connection
// cannot be reused, e.g. CLIENT_ERROR.
func closingError(resps ...*meta.Response) error {
	for _, resp := range resps {
		if resp.HasError() && meta.ShouldCloseConnection(resp.Error) {
			return resp.Error
		}
	}
	return nil
}

func (sp *serverPool) guard(fn func() (*meta.Response, error)) (*meta.Response, error) {
	if sp.circuitBreaker == nil {
		return fn()
	}

	before := sp.circuitBreaker.State()
	resp, err := sp.circuitBreaker.Execute(fn)
	if after := sp.circuitBreaker.State(); after != before {
		sp.logger.Warn("circuit breaker state changed",
			zap.Stringer("from", before),
			zap.Stringer("to", after),
		)
	}
	return resp, err
}
