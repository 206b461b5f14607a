/*
Package memcache is a memcached client speaking the meta protocol.

Each connection decodes responses with a fixed-size linebuf.Reader: response
lines are parsed in place and values are read directly into their final
buffer.

	client, err := memcache.NewClient(memcache.NewStaticServers("localhost:11211"), memcache.Config{
		MaxSize:           20,
		NewCircuitBreaker: memcache.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second),
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Set(ctx, memcache.Item{Key: "greeting", Value: []byte("hello"), TTL: time.Hour})
	item, err := client.Get(ctx, "greeting")

# Connections

A connection is discarded after any error that leaves the stream at an
unknown position: I/O errors, timeouts, parse errors, CLIENT_ERROR, and the
linebuf errors (see meta.ShouldCloseConnection). The context deadline is
applied to the socket for every exchange.

# Servers

Keys are mapped to servers with DefaultSelectServer (xxh3 and jump
consistent hashing) unless Config.SelectServer is set.
*/
package memcache
