// Package testutils holds test doubles for byte sources and connections.
package testutils

import (
	"bytes"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// ConnectionMock is a net.Conn that serves a scripted sequence of reads and
// records everything written to it.
//
// Each chunk is returned by exactly one Read call (split further if the
// caller buffer is smaller), which lets tests control how a response is cut
// across reads. After the last chunk Read returns io.EOF.
type ConnectionMock struct {
	reads    *ChunkReader
	writeBuf bytes.Buffer
	closed   atomic.Bool
	deadline time.Time
}

// NewConnectionMock creates a mock connection serving the given read chunks.
func NewConnectionMock(chunks ...string) *ConnectionMock {
	return &ConnectionMock{
		reads: NewChunkReader(chunks...),
	}
}

func (m *ConnectionMock) Read(b []byte) (int, error) {
	if m.closed.Load() {
		return 0, net.ErrClosed
	}
	return m.reads.Read(b)
}

func (m *ConnectionMock) Write(b []byte) (int, error) {
	if m.closed.Load() {
		return 0, net.ErrClosed
	}
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.closed.Store(true)
	return nil
}

// IsClosed reports whether Close was called.
func (m *ConnectionMock) IsClosed() bool {
	return m.closed.Load()
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11211}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error {
	m.deadline = t
	return nil
}

func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// Deadline returns the last deadline set with SetDeadline.
func (m *ConnectionMock) Deadline() time.Time {
	return m.deadline
}

// GetWrittenRequest returns the raw bytes written to the mock connection.
func (m *ConnectionMock) GetWrittenRequest() string {
	return m.writeBuf.String()
}

// ChunkReader is an io.Reader returning one chunk per Read call.
type ChunkReader struct {
	chunks [][]byte
	err    error

	// Reads counts the calls to Read, including the final error.
	Reads int
}

// NewChunkReader returns a reader serving chunks in order, then io.EOF.
func NewChunkReader(chunks ...string) *ChunkReader {
	r := &ChunkReader{err: io.EOF}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

// WithError makes the reader return err instead of io.EOF once the chunks
// are exhausted.
func (r *ChunkReader) WithError(err error) *ChunkReader {
	r.err = err
	return r
}

func (r *ChunkReader) Read(b []byte) (int, error) {
	r.Reads++

	if len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		// An empty chunk is a (0, nil) read.
		r.chunks = r.chunks[1:]
		return 0, nil
	}
	if len(r.chunks) == 0 {
		return 0, r.err
	}

	n := copy(b, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}
