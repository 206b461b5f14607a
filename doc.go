// Package linebuf provides a fixed-capacity buffered reader for
// CRLF-delimited text protocol responses, such as the memcached text and
// meta protocols.
//
// Compared to bufio.Reader, the Reader returns lines as views into its own
// buffer and only releases them when the caller says so with Consume. Most
// responses are read from data that is already buffered, without copying
// and without allocating.
//
// # Usage
//
//	r := linebuf.NewReader(conn, 2048)
//
//	// Requests are written on the wrapped source.
//	r.Source().Write([]byte("mg mykey v\r\n"))
//
//	line, err := r.ReadLine() // "VA 5\r\n", valid until the next call on r
//	if err != nil {
//	    return err
//	}
//	size := parseSize(line)
//	r.Consume(len(line))
//
//	value := make([]byte, size+2) // value + CRLF
//	if err := r.ReadFull(value); err != nil {
//	    return err
//	}
//
// # Capacity
//
// A line, including its terminator, must fit in the buffer. Longer lines
// fail with a *LineTooLongError and leave the buffer full; the caller should
// discard the connection or recreate the reader with a larger size.
//
// # Errors
//
// All failures are returned as values. Use errors.Is with ErrLineTooLong,
// ErrUnterminatedLine and ErrShortRead, or errors.As with the matching
// error types to get the buffer state at the time of the failure. Failures
// of the underlying source are wrapped in *SourceError.
//
// A Reader is not safe for concurrent use.
package linebuf
