package memcache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pior/linebuf/internal/coarsetime"
	"github.com/pior/linebuf/meta"
)

// NoTTL stores an item without expiration.
const NoTTL = 0

// DefaultMaxSize is the pool size used when Config.MaxSize is not set.
const DefaultMaxSize = 10

var (
	// ErrNotStored is returned by Add when the key already exists.
	ErrNotStored = errors.New("memcache: item not stored")

	ErrClientClosed = errors.New("memcache: client closed")
)

type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration
	Found bool // false on a cache miss
}

type Querier interface {
	Get(ctx context.Context, key string) (Item, error)
	Set(ctx context.Context, item Item) error
	Add(ctx context.Context, item Item) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// Config holds the client configuration. The zero value is usable.
type Config struct {
	// MaxSize is the maximum number of connections per server.
	// Defaults to DefaultMaxSize.
	MaxSize int32

	// ReaderSize is the response buffer size of each connection. It bounds
	// the length of a response line, not the size of values.
	// Defaults to linebuf.DefaultSize.
	ReaderSize int

	// Dialer creates the TCP connections. Defaults to a zero net.Dialer.
	Dialer *net.Dialer

	// MaxConnLifetime is the maximum age of a connection. Zero means no limit.
	// Enforced by the health check.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum time a connection stays idle. Zero means
	// no limit. Enforced by the health check.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are checked.
	// Zero disables health checks.
	HealthCheckInterval time.Duration

	// Pool creates the connection pool of each server. Defaults to
	// NewPuddlePool.
	Pool PoolFunc

	// SelectServer picks the server of a key. Defaults to DefaultSelectServer.
	SelectServer SelectServerFunc

	// NewCircuitBreaker creates the circuit breaker of a server, see
	// NewCircuitBreakerConfig. Nil disables circuit breaking.
	NewCircuitBreaker func(addr string) CircuitBreaker

	// Logger receives connection and circuit breaker events.
	// Defaults to zap.NewNop().
	Logger *zap.Logger

	// for tests: replaces dialing
	constructor func(ctx context.Context, addr string) (*Connection, error)
}

// Client is a memcached client using the meta protocol. Keys are spread
// over servers with SelectServer, each server having its own pool and
// circuit breaker. Client is safe for concurrent use.
type Client struct {
	servers      Servers
	selectServer SelectServerFunc
	config       Config
	logger       *zap.Logger

	mu     sync.RWMutex
	pools  map[string]*serverPool
	closed bool

	stopHealthCheck chan struct{}
	healthCheckDone chan struct{}

	stats clientStatsCollector
}

var _ Querier = (*Client)(nil)

// NewClient creates a client. Connections are established lazily.
//
//	client, err := memcache.NewClient(memcache.NewStaticServers("localhost:11211"), memcache.Config{})
func NewClient(servers Servers, config Config) (*Client, error) {
	if len(servers.List()) == 0 {
		return nil, ErrNoServers
	}

	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}
	if config.Dialer == nil {
		config.Dialer = &net.Dialer{}
	}
	if config.Pool == nil {
		config.Pool = NewPuddlePool
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	selectServer := config.SelectServer
	if selectServer == nil {
		selectServer = DefaultSelectServer
	}

	c := &Client{
		servers:         servers,
		selectServer:    selectServer,
		config:          config,
		logger:          config.Logger,
		pools:           make(map[string]*serverPool),
		stopHealthCheck: make(chan struct{}),
		healthCheckDone: make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go c.healthCheckLoop()
	} else {
		close(c.healthCheckDone)
	}

	return c, nil
}

// Close stops the health check and closes all connections. It waits for
// connections in use to be released.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pools := c.pools
	c.pools = make(map[string]*serverPool)
	c.mu.Unlock()

	close(c.stopHealthCheck)
	<-c.healthCheckDone

	for _, sp := range pools {
		sp.pool.Close()
	}
}

func (c *Client) poolForKey(key string) (*serverPool, error) {
	addr, err := c.selectServer(key, c.servers.List())
	if err != nil {
		return nil, err
	}
	return c.poolForAddr(addr)
}

func (c *Client) poolForAddr(addr string) (*serverPool, error) {
	c.mu.RLock()
	sp, ok := c.pools[addr]
	closed := c.closed
	c.mu.RUnlock()
	if ok {
		return sp, nil
	}
	if closed {
		return nil, ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if sp, ok := c.pools[addr]; ok {
		return sp, nil
	}

	sp, err := c.newServerPool(addr)
	if err != nil {
		return nil, err
	}
	c.pools[addr] = sp
	return sp, nil
}

func (c *Client) newServerPool(addr string) (*serverPool, error) {
	constructor := func(ctx context.Context) (*Connection, error) {
		if c.config.constructor != nil {
			return c.config.constructor(ctx, addr)
		}
		netConn, err := c.config.Dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return NewConnection(netConn, c.config.ReaderSize), nil
	}

	pool, err := c.config.Pool(constructor, c.config.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("creating pool for %s: %w", addr, err)
	}

	logger := c.logger.With(zap.String("server", addr))
	if ls, ok := pool.(loggerSetter); ok {
		ls.setLogger(logger)
	}

	sp := &serverPool{
		addr:   addr,
		pool:   pool,
		logger: logger,
	}
	if c.config.NewCircuitBreaker != nil {
		sp.circuitBreaker = c.config.NewCircuitBreaker(addr)
	}
	return sp, nil
}

func (c *Client) allPools() []*serverPool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pools := make([]*serverPool, 0, len(c.pools))
	for _, sp := range c.pools {
		pools = append(pools, sp)
	}
	return pools
}

// execute sends req to the server of key.
func (c *Client) execute(ctx context.Context, key string, req *meta.Request) (*meta.Response, error) {
	sp, err := c.poolForKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := sp.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.HasError() {
		return nil, resp.Error
	}
	return resp, nil
}

// Get retrieves an item. A miss is not an error: Item.Found is false.
func (c *Client) Get(ctx context.Context, key string) (Item, error) {
	req := meta.NewRequest(meta.CmdGet, key, nil).AddReturnValue()

	resp, err := c.execute(ctx, key, req)
	if err != nil {
		c.stats.recordError()
		return Item{}, err
	}

	if resp.IsMiss() {
		c.stats.recordGet(false)
		return Item{Key: key}, nil
	}

	if resp.Status != meta.StatusVA {
		c.stats.recordError()
		return Item{}, fmt.Errorf("memcache: unexpected get response status: %s", resp.Status)
	}

	c.stats.recordGet(true)
	return Item{Key: key, Value: resp.Data, Found: true}, nil
}

// Set stores an item unconditionally.
func (c *Client) Set(ctx context.Context, item Item) error {
	req := meta.NewRequest(meta.CmdSet, item.Key, item.Value)
	if item.TTL > 0 {
		req.AddTTL(item.TTL)
	}

	if err := c.store(ctx, item.Key, req); err != nil {
		c.stats.recordError()
		return err
	}

	c.stats.recordSet()
	return nil
}

// Add stores an item only if the key does not exist. It returns
// ErrNotStored otherwise.
func (c *Client) Add(ctx context.Context, item Item) error {
	req := meta.NewRequest(meta.CmdSet, item.Key, item.Value).AddMode(meta.ModeAdd)
	if item.TTL > 0 {
		req.AddTTL(item.TTL)
	}

	if err := c.store(ctx, item.Key, req); err != nil {
		c.stats.recordError()
		return err
	}

	c.stats.recordAdd()
	return nil
}

func (c *Client) store(ctx context.Context, key string, req *meta.Request) error {
	resp, err := c.execute(ctx, key, req)
	if err != nil {
		return err
	}

	switch resp.Status {
	case meta.StatusHD:
		return nil
	case meta.StatusNS:
		return ErrNotStored
	default:
		return fmt.Errorf("memcache: unexpected set response status: %s", resp.Status)
	}
}

// Delete removes an item. Deleting a missing key succeeds.
func (c *Client) Delete(ctx context.Context, key string) error {
	req := meta.NewRequest(meta.CmdDelete, key, nil)

	resp, err := c.execute(ctx, key, req)
	if err != nil {
		c.stats.recordError()
		return err
	}

	if resp.Status != meta.StatusHD && resp.Status != meta.StatusNF {
		c.stats.recordError()
		return fmt.Errorf("memcache: unexpected delete response status: %s", resp.Status)
	}

	c.stats.recordDelete()
	return nil
}

// Increment adds delta to a counter and returns the new value. A negative
// delta decrements, stopping at 0.
//
// A missing counter is created with the value max(delta, 0) and the given
// TTL, so the first call already returns the right value. A ttl > 0 is also
// applied to existing counters.
func (c *Client) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	req := meta.NewRequest(meta.CmdArithmetic, key, nil).AddReturnValue()
	if delta >= 0 {
		req.AddDelta(uint64(delta)).AddInitialValue(uint64(delta))
	} else {
		req.AddMode(meta.ModeDecrement).AddDelta(uint64(-delta)).AddInitialValue(0)
	}
	req.AddVivify(max(ttl, 0))
	if ttl > 0 {
		req.AddTTL(ttl)
	}

	resp, err := c.execute(ctx, key, req)
	if err != nil {
		c.stats.recordError()
		return 0, err
	}

	if !resp.HasValue() {
		c.stats.recordError()
		return 0, fmt.Errorf("memcache: unexpected increment response status: %s", resp.Status)
	}

	value, err := strconv.ParseInt(string(resp.Data), 10, 64)
	if err != nil {
		c.stats.recordError()
		return 0, fmt.Errorf("memcache: invalid increment result: %w", err)
	}

	c.stats.recordIncrement()
	return value, nil
}

// GetMulti retrieves several items. Keys are grouped by server and each
// group is sent as one pipeline of quiet gets; groups run concurrently.
// The result has one Item per key, in order.
func (c *Client) GetMulti(ctx context.Context, keys []string) ([]Item, error) {
	byServer := make(map[*serverPool][]string)
	for _, key := range keys {
		sp, err := c.poolForKey(key)
		if err != nil {
			c.stats.recordError()
			return nil, err
		}
		byServer[sp] = append(byServer[sp], key)
	}

	var (
		mu    sync.Mutex
		found = make(map[string][]byte, len(keys))
	)

	g, gctx := errgroup.WithContext(ctx)
	for sp, serverKeys := range byServer {
		g.Go(func() error {
			reqs := make([]*meta.Request, len(serverKeys))
			for i, key := range serverKeys {
				reqs[i] = meta.NewRequest(meta.CmdGet, key, nil).AddReturnValue().AddReturnKey().AddQuiet()
			}

			resps, err := sp.sendBatch(gctx, reqs)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, resp := range resps {
				if resp.HasError() {
					return resp.Error
				}
				key, ok := resp.GetFlagToken(meta.FlagReturnKey)
				if !ok || resp.Status != meta.StatusVA {
					return fmt.Errorf("memcache: unexpected get response status: %s", resp.Status)
				}
				found[string(key)] = resp.Data
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.stats.recordError()
		return nil, err
	}

	items := make([]Item, len(keys))
	for i, key := range keys {
		value, ok := found[key]
		items[i] = Item{Key: key, Value: value, Found: ok}
		c.stats.recordGet(ok)
	}
	return items, nil
}

// Ping sends a no-op to every server and returns the joined errors.
func (c *Client) Ping(ctx context.Context) error {
	var errs []error
	for _, addr := range c.servers.List() {
		sp, err := c.poolForAddr(addr)
		if err == nil {
			_, err = sp.send(ctx, meta.NewRequest(meta.CmdNoOp, "", nil))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

// ServerStats runs the stats command on every server. The result is keyed by
// server address.
func (c *Client) ServerStats(ctx context.Context) (map[string]map[string]string, error) {
	all := make(map[string]map[string]string)
	var errs []error

	for _, addr := range c.servers.List() {
		sp, err := c.poolForAddr(addr)
		if err == nil {
			err = sp.withConnection(ctx, func(conn *Connection) error {
				stats, err := conn.Stats(ctx)
				all[addr] = stats
				return err
			})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		}
	}

	return all, errors.Join(errs...)
}

// Stats returns a snapshot of the client operation counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// AllPoolStats returns the state of every server used so far.
func (c *Client) AllPoolStats() []ServerPoolStats {
	pools := c.allPools()
	stats := make([]ServerPoolStats, 0, len(pools))
	for _, sp := range pools {
		stats = append(stats, sp.stats())
	}
	return stats
}

func (c *Client) healthCheckLoop() {
	defer close(c.healthCheckDone)

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			for _, sp := range c.allPools() {
				c.checkPool(sp)
			}
		}
	}
}

// checkPool destroys the idle connections of sp that are too old, idle for
// too long or not responding. Connections used during the last interval are
// known to work and are not pinged.
func (c *Client) checkPool(sp *serverPool) {
	now := time.Now()

	for _, res := range sp.pool.AcquireAllIdle() {
		conn := res.Value()

		if c.config.MaxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxConnLifetime {
			sp.logger.Debug("closing connection: max lifetime reached")
			res.Destroy()
			continue
		}

		if c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime {
			sp.logger.Debug("closing connection: max idle time reached")
			res.Destroy()
			continue
		}

		if coarsetime.Since(conn.LastUsed()) < c.config.HealthCheckInterval {
			res.ReleaseUnused()
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.HealthCheckInterval)
		err := conn.Ping(ctx)
		cancel()
		if err != nil {
			sp.logger.Warn("health check failed", zap.Error(err))
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
