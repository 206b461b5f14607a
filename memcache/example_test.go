package memcache_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/pior/linebuf/memcache"
)

func ExampleClient() {
	client, err := memcache.NewClient(memcache.NewStaticServers("localhost:11211"), memcache.Config{
		MaxSize:             20,
		HealthCheckInterval: 30 * time.Second,
		NewCircuitBreaker:   memcache.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second),
		Logger:              zap.NewExample(),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = client.Set(ctx, memcache.Item{Key: "greeting", Value: []byte("hello"), TTL: time.Hour})
	if err != nil {
		log.Fatal(err)
	}

	item, err := client.Get(ctx, "greeting")
	if err != nil {
		log.Fatal(err)
	}
	if item.Found {
		fmt.Println(string(item.Value))
	}

	for _, s := range client.AllPoolStats() {
		fmt.Printf("%s: %d connections, circuit %s\n", s.Addr, s.PoolStats.TotalConns, s.CircuitBreakerState)
	}
}

func ExampleClient_Increment() {
	client, err := memcache.NewClient(memcache.NewStaticServers("localhost:11211"), memcache.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	// Created with the value 1 on first call, expiring after one minute.
	count, err := client.Increment(context.Background(), "requests", 1, time.Minute)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(count)
}
