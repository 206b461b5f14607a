package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/pior/linebuf"
	"github.com/pior/linebuf/internal/promexporter"
)

const (
	valuePrefix = "VALUE "
	endLine     = "END\r\n"
)

var errCacheMiss = errors.New("key not found")

// readerResult is the outcome of one reader benchmark.
type readerResult struct {
	reader      string
	responses   int64
	bytes       int64
	duration    time.Duration
	allocs      uint64
	allocBytes  uint64
	avgPerBatch time.Duration
}

func (r readerResult) responsesPerSec() float64 {
	return float64(r.responses) / r.duration.Seconds()
}

func (r readerResult) allocsPerResponse() float64 {
	return float64(r.allocs) / float64(r.responses)
}

// getResponseReader reads the response to a text protocol get of a single
// key and returns the number of bytes it consumed.
type getResponseReader interface {
	readGetResponse() (int, error)
}

type linebufGetReader struct {
	r     *linebuf.Reader[net.Conn]
	value []byte
}

func (g *linebufGetReader) readGetResponse() (int, error) {
	line, err := g.r.ReadLine()
	if err != nil {
		return 0, err
	}
	n := len(line)
	size, err := valueSize(line)
	g.r.Consume(len(line))
	if err != nil {
		return n, err
	}

	g.value = growValue(g.value, size)
	if err := g.r.ReadFull(g.value); err != nil {
		return n, err
	}
	n += len(g.value)

	line, err = g.r.ReadLine()
	if err != nil {
		return n, err
	}
	n += len(line)
	end := string(line) == endLine
	g.r.Consume(len(line))

	return n, checkResponseEnd(g.value, end)
}

// bufioGetReader reads lines into strings, the way line oriented code
// usually uses a bufio.Reader.
type bufioGetReader struct {
	r     *bufio.Reader
	value []byte
}

func (g *bufioGetReader) readGetResponse() (int, error) {
	line, err := g.r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	n := len(line)
	size, err := valueSize(line)
	if err != nil {
		return n, err
	}

	g.value = growValue(g.value, size)
	if _, err := io.ReadFull(g.r, g.value); err != nil {
		return n, err
	}
	n += len(g.value)

	line, err = g.r.ReadString('\n')
	if err != nil {
		return n, err
	}
	n += len(line)

	return n, checkResponseEnd(g.value, line == endLine)
}

func newGetResponseReader(kind string, conn net.Conn, size int) getResponseReader {
	if size <= 0 {
		size = linebuf.DefaultSize
	}
	if kind == ReaderBufio {
		return &bufioGetReader{r: bufio.NewReaderSize(conn, size)}
	}
	return &linebufGetReader{r: linebuf.NewReader(conn, size)}
}

// valueSize returns the <bytes> field of a "VALUE <key> <flags> <bytes>"
// line. An END line means the key was not found.
func valueSize[T string | []byte](line T) (int, error) {
	if string(line) == endLine {
		return 0, errCacheMiss
	}
	if !hasPrefix(line, valuePrefix) {
		return 0, fmt.Errorf("unexpected response line: %q", line)
	}

	spaces, size, digits := 0, 0, 0
scan:
	for i := len(valuePrefix); i < len(line); i++ {
		c := line[i]
		switch {
		case c == ' ':
			spaces++
			if spaces > 2 {
				break scan
			}
		case c == '\r':
			break scan
		case spaces == 2:
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("invalid value size in %q", line)
			}
			size = size*10 + int(c-'0')
			digits++
		}
	}

	if digits == 0 {
		return 0, fmt.Errorf("missing value size in %q", line)
	}
	return size, nil
}

func hasPrefix[T string | []byte](s T, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range len(prefix) {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

// growValue returns a buffer for a value of size bytes and its CRLF.
func growValue(buf []byte, size int) []byte {
	n := size + 2
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

func checkResponseEnd(value []byte, end bool) error {
	if !bytes.HasSuffix(value, []byte("\r\n")) {
		return errors.New("invalid value terminator")
	}
	if !end {
		return errors.New("missing END after value")
	}
	return nil
}

// storeValue sets key on the server without waiting for a reply.
func storeValue(conn net.Conn, key, value string) error {
	_, err := fmt.Fprintf(conn, "set %s 0 10000 %d noreply\r\n%s\r\n", key, len(value), value)
	return err
}

// runReaderBench stores cfg.Key, then sends cfg.Iterations batches of
// cfg.Batch pipelined gets on a dedicated connection, reading the responses
// with the given reader kind.
func runReaderBench(ctx context.Context, cfg Config, kind string, metrics *promexporter.BenchMetrics, logger *zap.Logger) (readerResult, error) {
	result := readerResult{reader: kind}

	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return result, fmt.Errorf("connecting to %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	if err := storeValue(conn, cfg.Key, cfg.Value); err != nil {
		return result, fmt.Errorf("storing %s: %w", cfg.Key, err)
	}

	reader := newGetResponseReader(kind, conn, cfg.BufferSize)
	request := bytes.Repeat([]byte("get "+cfg.Key+"\r\n"), cfg.Batch)

	logger.Debug("reader benchmark started",
		zap.String("reader", kind),
		zap.Int("iterations", cfg.Iterations),
		zap.Int("batch", cfg.Batch))

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	start := time.Now()

	for i := range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batchStart := time.Now()
		if _, err := conn.Write(request); err != nil {
			return result, fmt.Errorf("iteration %d: writing requests: %w", i, err)
		}

		read := 0
		for range cfg.Batch {
			n, err := reader.readGetResponse()
			read += n
			if err != nil {
				return result, fmt.Errorf("iteration %d: reading response: %w", i, err)
			}
		}

		metrics.ObserveIteration(kind, time.Since(batchStart), cfg.Batch, read)
		result.responses += int64(cfg.Batch)
		result.bytes += int64(read)
	}

	result.duration = time.Since(start)
	runtime.ReadMemStats(&after)
	result.allocs = after.Mallocs - before.Mallocs
	result.allocBytes = after.TotalAlloc - before.TotalAlloc
	result.avgPerBatch = result.duration / time.Duration(cfg.Iterations)

	logger.Debug("reader benchmark done",
		zap.String("reader", kind),
		zap.Duration("duration", result.duration),
		zap.Uint64("allocs", result.allocs))

	return result, nil
}
