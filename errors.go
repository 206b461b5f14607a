package linebuf

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrLineTooLong matches a *LineTooLongError.
	ErrLineTooLong = errors.New("linebuf: line too long")

	// ErrUnterminatedLine matches an *UnterminatedLineError.
	ErrUnterminatedLine = errors.New("linebuf: unterminated line")

	// ErrShortRead matches a *ShortReadError.
	ErrShortRead = errors.New("linebuf: short read")

	// ErrInvalidRead is wrapped in a *SourceError when the source returns a
	// byte count outside of the buffer it was given.
	ErrInvalidRead = errors.New("linebuf: source returned invalid count")
)

// LineTooLongError is returned by ReadLine when the buffer is full and no
// terminator was found.
//
// The buffered bytes are kept; the reader cannot make progress until the
// caller consumes some of them.
type LineTooLongError struct {
	Capacity int // Size of the reader buffer
	Buffered int // Bytes buffered when the read was abandoned
}

func (e *LineTooLongError) Error() string {
	return fmt.Sprintf("linebuf: line too long: %d bytes buffered, capacity %d", e.Buffered, e.Capacity)
}

func (e *LineTooLongError) Is(target error) bool {
	return target == ErrLineTooLong
}

// UnterminatedLineError is returned by ReadLine when the source reaches
// end-of-data while a partial line is buffered.
type UnterminatedLineError struct {
	Buffered int
}

func (e *UnterminatedLineError) Error() string {
	return fmt.Sprintf("linebuf: unterminated line: end of data with %d bytes buffered", e.Buffered)
}

func (e *UnterminatedLineError) Is(target error) bool {
	return target == ErrUnterminatedLine
}

func (e *UnterminatedLineError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// ShortReadError is returned by ReadFull when the source reaches end-of-data
// before the requested number of bytes was delivered.
type ShortReadError struct {
	Want int // Bytes requested
	Got  int // Bytes delivered into the caller buffer
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("linebuf: short read: got %d of %d bytes", e.Got, e.Want)
}

func (e *ShortReadError) Is(target error) bool {
	return target == ErrShortRead
}

func (e *ShortReadError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// SourceError wraps a failure reported by the underlying source.
type SourceError struct {
	Op  string // Reader operation that was running: "readline" or "readfull"
	Err error
}

func (e *SourceError) Error() string {
	return "linebuf: " + e.Op + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
