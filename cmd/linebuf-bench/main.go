// Command linebuf-bench compares linebuf.Reader with bufio.Reader on the
// responses of a memcached server, and benchmarks the memcache client.
//
//	linebuf-bench --addr 127.0.0.1:11211 --iterations 10000 --batch 100
//	linebuf-bench client --concurrency 8
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pior/linebuf/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.Execute(ctx, version)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
