package meta

import (
	"io"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// ValidateKey checks that key can be sent on the wire: 1 to 250 bytes, and
// no whitespace unless the key is base64-encoded.
func ValidateKey(key string, hasBase64Flag bool) error {
	if len(key) < MinKeyLength {
		return &InvalidKeyError{Message: "key is empty"}
	}

	if len(key) > MaxKeyLength {
		return &InvalidKeyError{Message: "key exceeds maximum length of 250 bytes"}
	}

	if !hasBase64Flag && strings.ContainsAny(key, " \t\r\n") {
		return &InvalidKeyError{Message: "key contains whitespace"}
	}

	return nil
}

// AppendRequest appends the wire form of req to dst.
//
//	<cmd> <key> [<size>]<flags>\r\n[<data>\r\n]
//
// The key is validated first; dst is returned unchanged on error.
func AppendRequest(dst []byte, req *Request) ([]byte, error) {
	if req.Command == CmdNoOp {
		dst = append(dst, string(req.Command)...)
		return append(dst, CRLF...), nil
	}

	if err := ValidateKey(req.Key, req.HasFlag(FlagBase64Key)); err != nil {
		return dst, err
	}

	dst = append(dst, string(req.Command)...)
	dst = append(dst, ' ')
	dst = append(dst, req.Key...)

	if req.Command == CmdSet {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(len(req.Data)), 10)
	}

	dst = append(dst, req.Flags...)
	dst = append(dst, CRLF...)

	if req.Command == CmdSet {
		dst = append(dst, req.Data...)
		dst = append(dst, CRLF...)
	}

	return dst, nil
}

// WriteRequest writes req to w with a single Write call.
//
// The request is assembled in a pooled buffer so that the command line and
// the data block leave in the same packet.
func WriteRequest(w io.Writer, req *Request) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var err error
	buf.B, err = AppendRequest(buf.B, req)
	if err != nil {
		return err
	}

	_, err = w.Write(buf.B)
	return err
}

// WriteRequests writes all requests to w with a single Write call, for
// pipelining. Nothing is written if one of the keys is invalid.
func WriteRequests(w io.Writer, reqs ...*Request) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var err error
	for _, req := range reqs {
		buf.B, err = AppendRequest(buf.B, req)
		if err != nil {
			return err
		}
	}

	_, err = w.Write(buf.B)
	return err
}
