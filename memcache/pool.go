package memcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"
)

// Pool is a bounded set of connections to one server.
type Pool interface {
	// Acquire returns an idle connection, dials a new one if the pool is
	// not full, or waits for a release until ctx is done.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle acquires every idle connection, for health checks.
	AcquireAllIdle() []Resource

	// Close destroys idle connections and waits for acquired ones to be
	// released.
	Close()

	Stats() PoolStats
}

// Resource is a pooled connection. Exactly one of Release, ReleaseUnused or
// Destroy must be called once the caller is done with it.
type Resource interface {
	Value() *Connection
	Release()
	ReleaseUnused() // release without updating the idle clock
	Destroy()
	CreationTime() time.Time
	IdleDuration() time.Duration
}

// PoolFunc creates the pool of one server. constructor dials a connection.
type PoolFunc func(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error)

// NewPuddlePool creates a pool backed by github.com/jackc/puddle/v2.
// It is the default PoolFunc.
func NewPuddlePool(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error) {
	p := &puddlePool{logger: zap.NewNop()}

	pool, err := puddle.NewPool(&puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := constructor(ctx)
			if err != nil {
				p.dialErrors.Add(1)
				return nil, err
			}
			p.createdConns.Add(1)
			return conn, nil
		},
		Destructor: func(conn *Connection) {
			p.destroyedConns.Add(1)
			if err := conn.Close(); err != nil {
				p.logger.Debug("error closing connection", zap.Error(err))
			}
		},
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, err
	}

	p.pool = pool
	return p, nil
}

type puddlePool struct {
	pool   *puddle.Pool[*Connection]
	logger *zap.Logger

	createdConns   atomic.Uint64
	destroyedConns atomic.Uint64
	dialErrors     atomic.Uint64
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	return p.pool.Acquire(ctx)
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	idle := p.pool.AcquireAllIdle()
	resources := make([]Resource, len(idle))
	for i, res := range idle {
		resources[i] = res
	}
	return resources
}

func (p *puddlePool) Close() {
	p.pool.Close()
}

func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()) + p.dialErrors.Load(),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
		CreatedConns:      p.createdConns.Load(),
		DestroyedConns:    p.destroyedConns.Load(),
	}
}

// setLogger is used by the client to route pool logs to Config.Logger.
func (p *puddlePool) setLogger(logger *zap.Logger) {
	p.logger = logger
}

type loggerSetter interface {
	setLogger(logger *zap.Logger)
}
