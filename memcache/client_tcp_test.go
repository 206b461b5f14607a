package memcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/linebuf/internal/fakeserver"
)

func TestClient_TCP(t *testing.T) {
	server := fakeserver.Start(t)

	client, err := NewClient(NewStaticServers(server.Addr()), Config{
		MaxSize:             4,
		ReaderSize:          128,
		HealthCheckInterval: time.Hour,
	})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Ping(ctx))

	// Values much larger than the reader buffer.
	large := []byte(strings.Repeat("x", 100*1024))
	require.NoError(t, client.Set(ctx, Item{Key: "large", Value: large}))

	item, err := client.Get(ctx, "large")
	require.NoError(t, err)
	assert.True(t, item.Found)
	assert.Equal(t, large, item.Value)

	require.NoError(t, client.Add(ctx, Item{Key: "once", Value: []byte("1")}))
	require.ErrorIs(t, client.Add(ctx, Item{Key: "once", Value: []byte("2")}), ErrNotStored)

	items, err := client.GetMulti(ctx, []string{"once", "missing", "large"})
	require.NoError(t, err)
	assert.True(t, items[0].Found)
	assert.False(t, items[1].Found)
	assert.Len(t, items[2].Value, len(large))

	require.NoError(t, client.Delete(ctx, "once"))
	item, err = client.Get(ctx, "once")
	require.NoError(t, err)
	assert.False(t, item.Found)

	stats, err := client.ServerStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", stats[server.Addr()]["curr_items"])
}

func TestClient_TCP_Concurrent(t *testing.T) {
	server := fakeserver.Start(t)

	client, err := NewClient(NewStaticServers(server.Addr()), Config{MaxSize: 4})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				key := fmt.Sprintf("key-%d-%d", w, i)
				value := []byte(strings.Repeat(key, i))

				assert.NoError(t, client.Set(ctx, Item{Key: key, Value: value}))

				item, err := client.Get(ctx, key)
				if assert.NoError(t, err) {
					assert.Equal(t, value, item.Value)
				}
			}
		}()
	}
	wg.Wait()

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.LessOrEqual(t, stats[0].PoolStats.TotalConns, int32(4))
	assert.Equal(t, uint64(0), client.Stats().Errors)
}
