package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pior/linebuf/memcache"
)

type clientTest struct {
	name       string
	itemsPerOp int
	operation  func(ctx context.Context, client *memcache.Client, workerID int, opID int) error
}

type clientResult struct {
	name        string
	count       int
	itemsPerOp  int
	duration    time.Duration
	opsPerSec   float64
	itemsPerSec float64
	avgLatency  time.Duration
}

func newClient(cfg Config, logger *zap.Logger) (*memcache.Client, error) {
	return memcache.NewClient(memcache.NewStaticServers(cfg.Addr), memcache.Config{
		MaxSize:             cfg.Client.MaxSize,
		ReaderSize:          cfg.BufferSize,
		MaxConnLifetime:     5 * time.Minute,
		MaxConnIdleTime:     time.Minute,
		HealthCheckInterval: 0,
		NewCircuitBreaker:   memcache.NewCircuitBreakerConfig(10, time.Minute, 10*time.Second),
		Logger:              logger,
	})
}

// verifyClient checks that the server is reachable with a set and a get.
func verifyClient(ctx context.Context, client *memcache.Client, uid int64) error {
	key := fmt.Sprintf("bench-%d-preflight", uid)
	if err := client.Set(ctx, memcache.Item{Key: key, Value: []byte(key), TTL: time.Minute}); err != nil {
		return fmt.Errorf("setting the preflight key: %w", err)
	}

	item, err := client.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("getting the preflight key: %w", err)
	}
	if !item.Found || string(item.Value) != key {
		return fmt.Errorf("preflight value mismatch: expected %q, got %q", key, item.Value)
	}
	return nil
}

func clientTests(cfg Config, uid int64) []clientTest {
	value := make([]byte, cfg.Client.ValueSize)
	for i := range value {
		value[i] = 'a' + byte(i%26)
	}

	key := func(workerID, opID int) string {
		return fmt.Sprintf("bench-%d-%d-%d", uid, workerID, opID)
	}

	return []clientTest{
		{
			name:       "get-miss",
			itemsPerOp: 1,
			operation: func(ctx context.Context, client *memcache.Client, workerID, opID int) error {
				_, err := client.Get(ctx, key(workerID, opID))
				return err
			},
		},
		{
			name:       "set",
			itemsPerOp: 1,
			operation: func(ctx context.Context, client *memcache.Client, workerID, opID int) error {
				return client.Set(ctx, memcache.Item{Key: key(workerID, opID), Value: value, TTL: time.Minute})
			},
		},
		{
			name:       "get-hit",
			itemsPerOp: 1,
			operation: func(ctx context.Context, client *memcache.Client, workerID, opID int) error {
				item, err := client.Get(ctx, key(workerID, opID))
				if err == nil && !item.Found {
					return fmt.Errorf("%s: expected a hit", item.Key)
				}
				return err
			},
		},
		{
			name:       "get-multi-10",
			itemsPerOp: 10,
			operation: func(ctx context.Context, client *memcache.Client, workerID, opID int) error {
				keys := make([]string, 10)
				for i := range keys {
					keys[i] = key(workerID, opID*10+i)
				}
				_, err := client.GetMulti(ctx, keys)
				return err
			},
		},
		{
			name:       "delete",
			itemsPerOp: 1,
			operation: func(ctx context.Context, client *memcache.Client, workerID, opID int) error {
				return client.Delete(ctx, key(workerID, opID))
			},
		},
	}
}

// runClientBench runs every client test with cfg.Client.Concurrency workers
// sharing cfg.Client.Operations operations.
func runClientBench(ctx context.Context, cfg Config, client *memcache.Client, logger *zap.Logger) ([]clientResult, error) {
	uid := rand.Int64N(1_000_000)
	if err := verifyClient(ctx, client, uid); err != nil {
		return nil, err
	}

	var results []clientResult
	for _, test := range clientTests(cfg, uid) {
		logger.Info("running client benchmark", zap.String("test", test.name))

		result, err := runClientTest(ctx, cfg, client, test)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func runClientTest(ctx context.Context, cfg Config, client *memcache.Client, test clientTest) (clientResult, error) {
	workers := cfg.Client.Concurrency
	opsPerWorker := max(cfg.Client.Operations/workers, 1)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	for workerID := range workers {
		g.Go(func() error {
			for opID := range opsPerWorker {
				opCtx, cancel := context.WithTimeout(gctx, cfg.Client.Timeout)
				err := test.operation(opCtx, client, workerID, opID)
				cancel()
				if err != nil {
					return fmt.Errorf("%s failed: %w", test.name, err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return clientResult{}, err
	}

	duration := time.Since(start)
	count := opsPerWorker * workers

	return clientResult{
		name:        test.name,
		count:       count,
		itemsPerOp:  test.itemsPerOp,
		duration:    duration,
		opsPerSec:   float64(count) / duration.Seconds(),
		itemsPerSec: float64(count*test.itemsPerOp) / duration.Seconds(),
		avgLatency:  duration / time.Duration(opsPerWorker),
	}, nil
}
