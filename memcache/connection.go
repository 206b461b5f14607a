package memcache

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pior/linebuf"
	"github.com/pior/linebuf/internal/coarsetime"
	"github.com/pior/linebuf/meta"
)

// Connection is a memcached connection. Responses are decoded through a
// fixed-size linebuf.Reader; requests are written to the same net.Conn.
//
// A Connection is not safe for concurrent use: the pool hands it to one
// caller at a time.
type Connection struct {
	reader   *linebuf.Reader[net.Conn]
	lastUsed atomic.Int64 // coarse unix nanoseconds
}

// NewConnection wraps conn. readerSize is the size of the response buffer,
// which bounds the length of a response line. Values are not limited by it.
// A readerSize <= 0 selects linebuf.DefaultSize.
func NewConnection(conn net.Conn, readerSize int) *Connection {
	c := &Connection{
		reader: linebuf.NewReader(conn, readerSize),
	}
	c.touch()
	return c
}

// Send writes req and reads its response.
//
// req must not be quiet: a successful quiet request has no response and
// Send would block until the deadline. Use SendBatch for quiet requests.
func (c *Connection) Send(ctx context.Context, req *meta.Request) (*meta.Response, error) {
	if err := c.setDeadline(ctx); err != nil {
		return nil, err
	}

	if err := meta.WriteRequest(c.reader.Source(), req); err != nil {
		return nil, writeError(err)
	}

	resp, err := meta.ReadResponse(c.reader)
	if err != nil {
		return nil, err
	}

	c.touch()
	return resp, nil
}

// SendBatch pipelines reqs followed by a no-op, in a single write, and reads
// responses up to the no-op marker.
//
// Quiet requests only produce a response on failure (or, for mg, on hit):
// the result may hold fewer responses than reqs. Callers match responses to
// requests with the opaque or return-key flags.
func (c *Connection) SendBatch(ctx context.Context, reqs []*meta.Request) ([]*meta.Response, error) {
	if err := c.setDeadline(ctx); err != nil {
		return nil, err
	}

	batch := make([]*meta.Request, 0, len(reqs)+1)
	batch = append(batch, reqs...)
	batch = append(batch, meta.NewRequest(meta.CmdNoOp, "", nil))

	if err := meta.WriteRequests(c.reader.Source(), batch...); err != nil {
		return nil, writeError(err)
	}

	resps, err := meta.ReadResponses(c.reader)
	if err != nil {
		return nil, err
	}

	c.touch()
	return resps, nil
}

// Stats runs the stats command and returns the server statistics.
func (c *Connection) Stats(ctx context.Context) (map[string]string, error) {
	if err := c.setDeadline(ctx); err != nil {
		return nil, err
	}

	if _, err := io.WriteString(c.reader.Source(), string(meta.CmdStats)+meta.CRLF); err != nil {
		return nil, &meta.ConnectionError{Op: "write", Err: err}
	}

	stats, err := meta.ReadStatsResponse(c.reader)
	if err != nil {
		return nil, err
	}

	c.touch()
	return stats, nil
}

// Ping sends a no-op and waits for its MN response.
func (c *Connection) Ping(ctx context.Context) error {
	resp, err := c.Send(ctx, meta.NewRequest(meta.CmdNoOp, "", nil))
	if err != nil {
		return err
	}
	if resp.Status != meta.StatusMN {
		return &meta.ParseError{Message: "unexpected response to noop: " + string(resp.Status)}
	}
	return nil
}

// LastUsed returns the coarse time of the last completed exchange, or of the
// creation of the connection.
func (c *Connection) LastUsed() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}

// Buffered returns the number of response bytes read from the network but
// not yet decoded. It is 0 between exchanges on a healthy connection.
func (c *Connection) Buffered() int {
	return c.reader.Buffered()
}

func (c *Connection) Close() error {
	return c.reader.Source().Close()
}

func (c *Connection) touch() {
	c.lastUsed.Store(coarsetime.Now().UnixNano())
}

// setDeadline applies the context deadline to the next exchange, or clears
// the previous one.
func (c *Connection) setDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := c.reader.Source().SetDeadline(deadline); err != nil {
		return &meta.ConnectionError{Op: "deadline", Err: err}
	}
	return nil
}

// writeError keeps key validation errors as they are: nothing was written
// and the connection is intact.
func writeError(err error) error {
	var keyErr *meta.InvalidKeyError
	if errors.As(err, &keyErr) {
		return err
	}
	return &meta.ConnectionError{Op: "write", Err: err}
}
