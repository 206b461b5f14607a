package memcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pior/linebuf/internal/testutils"
	"github.com/pior/linebuf/meta"
)

// mockDialer serves scripted connections, in order, per server address.
type mockDialer struct {
	mu     sync.Mutex
	conns  map[string][]*testutils.ConnectionMock
	dialed map[string][]*testutils.ConnectionMock
}

func newMockDialer() *mockDialer {
	return &mockDialer{
		conns:  make(map[string][]*testutils.ConnectionMock),
		dialed: make(map[string][]*testutils.ConnectionMock),
	}
}

// add scripts the next connection to addr. Each chunk is returned by one
// read: use one chunk per response.
func (d *mockDialer) add(addr string, chunks ...string) *testutils.ConnectionMock {
	d.mu.Lock()
	defer d.mu.Unlock()

	mock := testutils.NewConnectionMock(chunks...)
	d.conns[addr] = append(d.conns[addr], mock)
	return mock
}

func (d *mockDialer) dial(ctx context.Context, addr string) (*Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns[addr]) == 0 {
		return nil, errors.New("connection refused")
	}
	mock := d.conns[addr][0]
	d.conns[addr] = d.conns[addr][1:]
	d.dialed[addr] = append(d.dialed[addr], mock)
	return NewConnection(mock, 64), nil
}

func (d *mockDialer) dialCount(addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed[addr])
}

const testServer = "server1:11211"

func newTestClient(t *testing.T, d *mockDialer, config Config) *Client {
	t.Helper()

	config.constructor = d.dial
	client, err := NewClient(NewStaticServers(testServer), config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNewClient_NoServers(t *testing.T) {
	_, err := NewClient(NewStaticServers(), Config{})
	require.ErrorIs(t, err, ErrNoServers)
}

func TestClient_Get(t *testing.T) {
	d := newMockDialer()
	mock := d.add(testServer, "VA 5\r\nhello\r\n", "EN\r\n")
	client := newTestClient(t, d, Config{})

	item, err := client.Get(context.Background(), "greeting")
	require.NoError(t, err)
	assert.Equal(t, Item{Key: "greeting", Value: []byte("hello"), Found: true}, item)

	item, err = client.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, item.Found)
	assert.Nil(t, item.Value)

	assert.Equal(t, "mg greeting v\r\nmg missing v\r\n", mock.GetWrittenRequest())
	assert.Equal(t, 1, d.dialCount(testServer), "connection reused")

	stats := client.Stats()
	assert.Equal(t, uint64(2), stats.Gets)
	assert.Equal(t, uint64(1), stats.GetHits)
	assert.Equal(t, uint64(0), stats.Errors)
}

func TestClient_Set(t *testing.T) {
	d := newMockDialer()
	mock := d.add(testServer, "HD\r\n", "HD\r\n", "HD\r\n")
	client := newTestClient(t, d, Config{})

	require.NoError(t, client.Set(context.Background(), Item{Key: "k", Value: []byte("hello"), TTL: time.Minute}))
	require.NoError(t, client.Set(context.Background(), Item{Key: "k", Value: []byte("v"), TTL: NoTTL}))
	require.NoError(t, client.Set(context.Background(), Item{Key: "k", Value: []byte("v"), TTL: 500 * time.Millisecond}))

	assert.Equal(t, "ms k 5 T60\r\nhello\r\nms k 1\r\nv\r\nms k 1 T1\r\nv\r\n", mock.GetWrittenRequest())
	assert.Equal(t, uint64(3), client.Stats().Sets)
}

func TestClient_Add(t *testing.T) {
	d := newMockDialer()
	mock := d.add(testServer, "HD\r\n", "NS\r\n")
	client := newTestClient(t, d, Config{})

	require.NoError(t, client.Add(context.Background(), Item{Key: "k", Value: []byte("v")}))

	err := client.Add(context.Background(), Item{Key: "k", Value: []byte("v")})
	require.ErrorIs(t, err, ErrNotStored)

	assert.Equal(t, "ms k 1 ME\r\nv\r\nms k 1 ME\r\nv\r\n", mock.GetWrittenRequest())
	assert.Equal(t, uint64(1), client.Stats().Adds)
	assert.Equal(t, uint64(1), client.Stats().Errors)
}

func TestClient_Delete(t *testing.T) {
	d := newMockDialer()
	mock := d.add(testServer, "HD\r\n", "NF\r\n", "EX\r\n")
	client := newTestClient(t, d, Config{})

	require.NoError(t, client.Delete(context.Background(), "a"))
	require.NoError(t, client.Delete(context.Background(), "b"), "missing key")
	require.Error(t, client.Delete(context.Background(), "c"))

	assert.Equal(t, "md a\r\nmd b\r\nmd c\r\n", mock.GetWrittenRequest())
	assert.Equal(t, uint64(2), client.Stats().Deletes)
}

func TestClient_Increment(t *testing.T) {
	tests := []struct {
		name    string
		delta   int64
		ttl     time.Duration
		request string
	}{
		{"increment", 10, 0, "ma counter v D10 J10 N0\r\n"},
		{"increment with ttl", 10, time.Minute, "ma counter v D10 J10 N60 T60\r\n"},
		{"decrement", -3, 0, "ma counter v MD D3 J0 N0\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newMockDialer()
			mock := d.add(testServer, "VA 2\r\n42\r\n")
			client := newTestClient(t, d, Config{})

			value, err := client.Increment(context.Background(), "counter", tt.delta, tt.ttl)
			require.NoError(t, err)
			assert.Equal(t, int64(42), value)
			assert.Equal(t, tt.request, mock.GetWrittenRequest())
		})
	}
}

func TestClient_Increment_InvalidValue(t *testing.T) {
	d := newMockDialer()
	d.add(testServer, "VA 3\r\nabc\r\n")
	client := newTestClient(t, d, Config{})

	_, err := client.Increment(context.Background(), "counter", 1, 0)
	require.Error(t, err)
	assert.Equal(t, uint64(1), client.Stats().Errors)
}

func TestClient_ServerErrorKeepsConnection(t *testing.T) {
	d := newMockDialer()
	mock := d.add(testServer, "SERVER_ERROR out of memory\r\n", "HD\r\n")
	client := newTestClient(t, d, Config{})

	err := client.Set(context.Background(), Item{Key: "k", Value: []byte("v")})
	var serverErr *meta.ServerError
	require.ErrorAs(t, err, &serverErr)

	require.NoError(t, client.Delete(context.Background(), "k"))
	assert.Equal(t, 1, d.dialCount(testServer))
	assert.False(t, mock.IsClosed())
}

func TestClient_ClientErrorClosesConnection(t *testing.T) {
	d := newMockDialer()
	first := d.add(testServer, "CLIENT_ERROR bad data chunk\r\n")
	d.add(testServer, "HD\r\n")
	client := newTestClient(t, d, Config{})

	err := client.Set(context.Background(), Item{Key: "k", Value: []byte("v")})
	var clientErr *meta.ClientError
	require.ErrorAs(t, err, &clientErr)

	require.Eventually(t, first.IsClosed, time.Second, time.Millisecond)

	require.NoError(t, client.Delete(context.Background(), "k"))
	assert.Equal(t, 2, d.dialCount(testServer))
}

func TestClient_ReadErrorClosesConnection(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"truncated", "VA 5\r\nhel"},
		{"line too long", "VA 5 " + strings.Repeat("O", 100) + "\r\n"},
		{"empty line", "\r\n"},
		{"extra data", "EN\r\nEN\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newMockDialer()
			first := d.add(testServer, tt.response)
			client := newTestClient(t, d, Config{})

			_, _ = client.Get(context.Background(), "k")

			require.Eventually(t, first.IsClosed, time.Second, time.Millisecond)
		})
	}
}

func TestClient_InvalidKey(t *testing.T) {
	d := newMockDialer()
	mock := d.add(testServer, "EN\r\n")
	client := newTestClient(t, d, Config{})

	_, err := client.Get(context.Background(), "bad key")
	var keyErr *meta.InvalidKeyError
	require.ErrorAs(t, err, &keyErr)

	_, err = client.Get(context.Background(), "good-key")
	require.NoError(t, err)

	assert.Equal(t, "mg good-key v\r\n", mock.GetWrittenRequest())
	assert.Equal(t, 1, d.dialCount(testServer))
}

func TestClient_DialError(t *testing.T) {
	client := newTestClient(t, newMockDialer(), Config{})

	_, err := client.Get(context.Background(), "k")
	require.ErrorContains(t, err, "connection refused")
	assert.Equal(t, uint64(1), client.Stats().Errors)
}

func TestClient_Closed(t *testing.T) {
	client := newTestClient(t, newMockDialer(), Config{})
	client.Close()
	client.Close()

	_, err := client.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_GetMulti(t *testing.T) {
	d := newMockDialer()
	mock1 := d.add("server1:11211", "VA 2 ka\r\nv1\r\nMN\r\n")
	mock2 := d.add("server2:11211", "VA 2 kc\r\nv3\r\nMN\r\n")

	// Keys starting with "a" and "b" go to server1.
	selectByPrefix := func(key string, servers []string) (string, error) {
		if key[0] <= 'b' {
			return servers[0], nil
		}
		return servers[1], nil
	}

	client, err := NewClient(NewStaticServers("server1:11211", "server2:11211"), Config{
		SelectServer: selectByPrefix,
		constructor:  d.dial,
	})
	require.NoError(t, err)
	defer client.Close()

	items, err := client.GetMulti(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, []Item{
		{Key: "a", Value: []byte("v1"), Found: true},
		{Key: "b"},
		{Key: "c", Value: []byte("v3"), Found: true},
	}, items)

	assert.Equal(t, "mg a v k q\r\nmg b v k q\r\nmn\r\n", mock1.GetWrittenRequest())
	assert.Equal(t, "mg c v k q\r\nmn\r\n", mock2.GetWrittenRequest())

	stats := client.Stats()
	assert.Equal(t, uint64(3), stats.Gets)
	assert.Equal(t, uint64(2), stats.GetHits)
}

func TestClient_GetMulti_Error(t *testing.T) {
	d := newMockDialer()
	d.add(testServer, "CLIENT_ERROR bad command line format\r\nMN\r\n")
	client := newTestClient(t, d, Config{})

	_, err := client.GetMulti(context.Background(), []string{"a", "b"})
	var clientErr *meta.ClientError
	require.ErrorAs(t, err, &clientErr)
}

func TestClient_Ping(t *testing.T) {
	d := newMockDialer()
	d.add("server1:11211", "MN\r\n")

	client, err := NewClient(NewStaticServers("server1:11211", "server2:11211"), Config{constructor: d.dial})
	require.NoError(t, err)
	defer client.Close()

	err = client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server2:11211: ")
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotContains(t, err.Error(), "server1")
}

func TestClient_ServerStats(t *testing.T) {
	d := newMockDialer()
	mock := d.add(testServer, "STAT pid 42\r\nSTAT curr_connections 3\r\nEND\r\n")
	client := newTestClient(t, d, Config{})

	stats, err := client.ServerStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]map[string]string{
		testServer: {"pid": "42", "curr_connections": "3"},
	}, stats)
	assert.Equal(t, "stats\r\n", mock.GetWrittenRequest())
}

func TestClient_AllPoolStats(t *testing.T) {
	d := newMockDialer()
	d.add(testServer, "EN\r\n", "EN\r\n")
	client := newTestClient(t, d, Config{NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute)})

	assert.Empty(t, client.AllPoolStats())

	for range 2 {
		_, err := client.Get(context.Background(), "k")
		require.NoError(t, err)
	}

	all := client.AllPoolStats()
	require.Len(t, all, 1)

	s := all[0]
	assert.Equal(t, testServer, s.Addr)
	assert.Equal(t, int32(1), s.PoolStats.TotalConns)
	assert.Equal(t, int32(1), s.PoolStats.IdleConns)
	assert.Equal(t, int32(0), s.PoolStats.ActiveConns)
	assert.Equal(t, uint64(2), s.PoolStats.AcquireCount)
	assert.Equal(t, uint64(1), s.PoolStats.CreatedConns)
	assert.Equal(t, gobreaker.StateClosed, s.CircuitBreakerState)
	assert.Equal(t, uint32(2), s.CircuitBreakerCounts.TotalSuccesses)
}

func TestClient_CircuitBreaker(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client := newTestClient(t, newMockDialer(), Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute),
		Logger:            zap.New(core),
	})

	for range 3 {
		_, err := client.Get(context.Background(), "k")
		require.ErrorContains(t, err, "connection refused")
	}

	_, err := client.Get(context.Background(), "k")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	entries := logs.FilterMessage("circuit breaker state changed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, testServer, entries[0].ContextMap()["server"])
	assert.Equal(t, "open", entries[0].ContextMap()["to"])
}

func TestClient_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		d := newMockDialer()
		mock := d.add(testServer, "EN\r\n", "MN\r\n")
		client := newTestClient(t, d, Config{HealthCheckInterval: time.Hour})

		_, err := client.Get(context.Background(), "k")
		require.NoError(t, err)

		sp := client.allPools()[0]

		// Used recently: not pinged.
		client.checkPool(sp)
		assert.Equal(t, "mg k v\r\n", mock.GetWrittenRequest())

		forceIdle(t, sp)
		client.checkPool(sp)
		assert.Equal(t, "mg k v\r\nmn\r\n", mock.GetWrittenRequest())
		assert.False(t, mock.IsClosed())
	})

	t.Run("unresponsive", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		d := newMockDialer()
		mock := d.add(testServer, "EN\r\n")
		client := newTestClient(t, d, Config{HealthCheckInterval: time.Hour, Logger: zap.New(core)})

		_, err := client.Get(context.Background(), "k")
		require.NoError(t, err)

		sp := client.allPools()[0]
		forceIdle(t, sp)
		client.checkPool(sp)

		require.Eventually(t, mock.IsClosed, time.Second, time.Millisecond)
		assert.Equal(t, 1, logs.FilterMessage("health check failed").Len())
	})

	t.Run("max lifetime", func(t *testing.T) {
		d := newMockDialer()
		mock := d.add(testServer, "EN\r\n")
		client := newTestClient(t, d, Config{MaxConnLifetime: time.Nanosecond})

		_, err := client.Get(context.Background(), "k")
		require.NoError(t, err)

		client.checkPool(client.allPools()[0])

		require.Eventually(t, mock.IsClosed, time.Second, time.Millisecond)
		assert.Equal(t, "mg k v\r\n", mock.GetWrittenRequest())
	})
}

// forceIdle makes the idle connections of sp look unused for a long time.
func forceIdle(t *testing.T, sp *serverPool) {
	t.Helper()

	idle := sp.pool.AcquireAllIdle()
	require.NotEmpty(t, idle)
	for _, res := range idle {
		res.Value().lastUsed.Store(0)
		res.ReleaseUnused()
	}
}
