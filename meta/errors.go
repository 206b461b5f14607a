package meta

import (
	"errors"
	"fmt"
)

// ClientError is a CLIENT_ERROR response: the server rejected the request
// as malformed. The server may be in the middle of a data block, the
// connection must be closed.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "CLIENT_ERROR: " + e.Message
}

func (e *ClientError) ShouldCloseConnection() bool {
	return true
}

// ServerError is a SERVER_ERROR response, e.g. out of memory. The protocol
// state is intact and the connection can be reused.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "SERVER_ERROR: " + e.Message
}

func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// GenericError is an ERROR response, typically an unknown command.
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string {
	return e.Message
}

func (e *GenericError) ShouldCloseConnection() bool {
	return true
}

// InvalidKeyError is returned before anything is written when a key fails
// ValidateKey.
type InvalidKeyError struct {
	Message string
}

func (e *InvalidKeyError) Error() string {
	return e.Message
}

func (e *InvalidKeyError) ShouldCloseConnection() bool {
	return false
}

// ParseError is returned when a response cannot be decoded.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps an I/O failure on the connection.
type ConnectionError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection survives them.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether the connection that produced err
// must be discarded.
//
// Only ServerError and InvalidKeyError keep the connection. Any other error,
// including the linebuf reader errors (line too long, unterminated line,
// short read) and io.EOF, leaves the stream at an unknown position.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}
