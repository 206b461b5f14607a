package linebuf

import (
	"bytes"
	"errors"
	"io"
)

// DefaultSize is the buffer size used when NewReader is given a size <= 0.
const DefaultSize = 2 * 1024

// maxConsecutiveEmptyReads bounds the number of (0, nil) reads tolerated
// from a source before giving up with io.ErrNoProgress.
const maxConsecutiveEmptyReads = 100

// Reader reads CRLF-terminated lines from a source into a fixed-size buffer.
//
// The unconsumed bytes always start at offset 0 of the buffer: Consume moves
// the remaining bytes to the front. Lines returned by ReadLine are slices of
// that buffer.
type Reader[S io.Reader] struct {
	src    S
	buf    []byte
	filled int   // buf[:filled] holds unconsumed bytes
	err    error // returned by the source along with data, not delivered yet
}

// NewReader returns a Reader reading from src with a buffer of exactly size
// bytes. A size <= 0 selects DefaultSize.
//
// The longest line the caller expects, including its CRLF, must fit in size
// bytes.
func NewReader[S io.Reader](src S, size int) *Reader[S] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Reader[S]{
		src: src,
		buf: make([]byte, size),
	}
}

// Source returns the wrapped source, typically to write requests on it.
//
// Reading from the source directly bypasses the buffer and desynchronizes
// the Reader.
func (r *Reader[S]) Source() S {
	return r.src
}

// Size returns the capacity of the buffer.
func (r *Reader[S]) Size() int {
	return len(r.buf)
}

// Buffered returns the number of unconsumed bytes in the buffer.
func (r *Reader[S]) Buffered() int {
	return r.filled
}

// Reset discards all buffered bytes and switches to reading from src.
// The buffer is reused.
func (r *Reader[S]) Reset(src S) {
	r.src = src
	r.filled = 0
	r.err = nil
}

// ReadLine returns the buffered bytes up to and including the first "\r\n".
//
// The returned slice points into the Reader buffer. It stays valid only
// until the next call to ReadLine, ReadFull, Consume or Reset. ReadLine does
// not consume the line: call Consume(len(line)) once it has been processed.
//
// When no terminator is buffered, ReadLine reads from the source into the
// free part of the buffer until one arrives. Only the newly read bytes are
// scanned, plus the last byte of the previous fill to catch a terminator
// split across two reads.
//
// Errors:
//   - io.EOF if the source ended and nothing is buffered
//   - *UnterminatedLineError if the source ended in the middle of a line
//   - *LineTooLongError if the buffer is full without a terminator
//   - *SourceError for any other source failure
//
// Bytes received before a failure stay buffered. A source error returned
// together with a complete line is reported by the next call that needs
// the source, before the source is read again.
func (r *Reader[S]) ReadLine() ([]byte, error) {
	if end := lineEnd(r.buf[:r.filled]); end >= 0 {
		return r.buf[:end], nil
	}
	if err := r.takeErr(); err != nil {
		return nil, r.lineError(err)
	}

	empty := 0
	for {
		if r.filled == len(r.buf) {
			return nil, &LineTooLongError{Capacity: len(r.buf), Buffered: r.filled}
		}

		n, err := r.src.Read(r.buf[r.filled:])
		if n < 0 || n > len(r.buf)-r.filled {
			return nil, &SourceError{Op: "readline", Err: ErrInvalidRead}
		}

		if n > 0 {
			empty = 0

			// Rescan the last byte of the previous fill: it may be the '\r'.
			start := max(r.filled-1, 0)
			r.filled += n

			if end := lineEnd(r.buf[start:r.filled]); end >= 0 {
				r.err = err
				return r.buf[:start+end], nil
			}
		}

		if err != nil {
			return nil, r.lineError(err)
		}

		if n == 0 {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				return nil, &SourceError{Op: "readline", Err: io.ErrNoProgress}
			}
		}
	}
}

// ReadFull reads exactly len(p) bytes into p.
//
// Buffered bytes are used first and consumed. The remainder is read from the
// source directly into p, without going through the buffer. It returns a
// *ShortReadError if the source ends before p is filled, and a *SourceError
// for other source failures. ReadFull has no notion of lines: bytes are
// consumed as they come, terminators included.
func (r *Reader[S]) ReadFull(p []byte) error {
	n := copy(p, r.buf[:r.filled])
	r.Consume(n)

	if n < len(p) {
		if err := r.takeErr(); err != nil {
			return r.fullError(err, len(p), n)
		}
	}

	empty := 0
	for n < len(p) {
		m, err := r.src.Read(p[n:])
		if m < 0 || m > len(p)-n {
			return &SourceError{Op: "readfull", Err: ErrInvalidRead}
		}
		n += m

		if err != nil {
			if n == len(p) {
				r.err = err
				return nil
			}
			return r.fullError(err, len(p), n)
		}

		if m == 0 {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				return &SourceError{Op: "readfull", Err: io.ErrNoProgress}
			}
		} else {
			empty = 0
		}
	}

	return nil
}

// Consume discards the first n buffered bytes, typically the length of the
// line returned by ReadLine. n is clamped to the number of buffered bytes;
// a negative n is a no-op.
func (r *Reader[S]) Consume(n int) {
	if n <= 0 {
		return
	}
	n = min(n, r.filled)
	copy(r.buf, r.buf[n:r.filled])
	r.filled -= n
}

// takeErr returns the pending source error and clears it.
func (r *Reader[S]) takeErr() error {
	err := r.err
	r.err = nil
	return err
}

func (r *Reader[S]) lineError(err error) error {
	if errors.Is(err, io.EOF) {
		if r.filled == 0 {
			return io.EOF
		}
		return &UnterminatedLineError{Buffered: r.filled}
	}
	return &SourceError{Op: "readline", Err: err}
}

func (r *Reader[S]) fullError(err error, want, got int) error {
	if errors.Is(err, io.EOF) {
		return &ShortReadError{Want: want, Got: got}
	}
	return &SourceError{Op: "readfull", Err: err}
}

var crlf = []byte("\r\n")

// lineEnd returns the offset just past the first "\r\n" in b, or -1.
func lineEnd(b []byte) int {
	i := bytes.Index(b, crlf)
	if i < 0 {
		return -1
	}
	return i + len(crlf)
}
