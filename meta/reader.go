package meta

import (
	"bytes"
	"strings"
)

// LineReader is the part of *linebuf.Reader used to decode responses.
//
// ReadLine returns a line including its CRLF, valid until the next call.
// Consume releases it. ReadFull reads a data block.
type LineReader interface {
	ReadLine() ([]byte, error)
	Consume(n int)
	ReadFull(p []byte) error
}

var (
	clientErrorBytes  = []byte(ErrorClientPrefix)
	serverErrorBytes  = []byte(ErrorServerPrefix)
	errorGenericBytes = []byte(ErrorGeneric)
	crlfBytes         = []byte(CRLF)
)

// ReadResponse reads one response from r.
//
//	<status> [<size>] [<flags>*]\r\n[<data>\r\n]
//
// ERROR, CLIENT_ERROR and SERVER_ERROR lines are returned as a Response with
// Error set, not as a Go error. The returned error is either a failure of r
// (io.EOF, *linebuf.LineTooLongError, ...) or a *ParseError. In both cases
// the connection should be closed, see ShouldCloseConnection.
//
// The response line is decoded in place in the reader buffer: only the
// flags, ME data and the value block are copied out.
func ReadResponse(r LineReader) (*Response, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}

	resp, size, err := parseResponseLine(line[:len(line)-len(CRLF)])
	r.Consume(len(line))
	if err != nil {
		return nil, err
	}

	if resp.Status == StatusVA {
		data := make([]byte, size+len(CRLF))
		if err := r.ReadFull(data); err != nil {
			return nil, &ParseError{Message: "failed to read data block", Err: err}
		}

		if !bytes.HasSuffix(data, crlfBytes) {
			return nil, &ParseError{Message: "invalid data block terminator"}
		}

		resp.Data = data[:size]
	}

	return resp, nil
}

// ReadResponses reads responses until the MN marker of a pipeline, which is
// not included in the result.
func ReadResponses(r LineReader) ([]*Response, error) {
	var resps []*Response
	for {
		resp, err := ReadResponse(r)
		if err != nil {
			return resps, err
		}
		if resp.Status == StatusMN {
			return resps, nil
		}
		resps = append(resps, resp)
	}
}

// parseResponseLine decodes a response line without its CRLF. For VA
// responses it also returns the announced value size.
//
// line points into the reader buffer: nothing in the returned Response may
// alias it.
func parseResponseLine(line []byte) (*Response, int, error) {
	if errResp := parseErrorLine(line); errResp != nil {
		return &Response{Error: errResp}, 0, nil
	}

	if len(line) < 2 {
		return nil, 0, &ParseError{Message: "empty response line"}
	}

	statusEnd := bytes.IndexByte(line, ' ')
	if statusEnd == -1 {
		statusEnd = len(line)
	}
	if statusEnd == 0 {
		return nil, 0, &ParseError{Message: "missing response status"}
	}

	resp := &Response{Status: internStatus(line[:statusEnd])}
	rest := line[statusEnd:]

	switch resp.Status {
	case StatusMN:
		return resp, 0, nil

	case StatusME:
		// ME <key> <k>=<v>*
		rest = bytes.TrimLeft(rest, " ")
		if i := bytes.IndexByte(rest, ' '); i >= 0 {
			params := bytes.TrimSpace(rest[i:])
			if len(params) > 0 {
				resp.Data = bytes.Clone(params)
			}
		}
		return resp, 0, nil

	case StatusVA:
		rest = bytes.TrimLeft(rest, " ")
		sizeEnd := bytes.IndexByte(rest, ' ')
		if sizeEnd == -1 {
			sizeEnd = len(rest)
		}

		size, ok := parseSize(rest[:sizeEnd])
		if !ok {
			if sizeEnd == 0 {
				return nil, 0, &ParseError{Message: "VA response missing size"}
			}
			return nil, 0, &ParseError{Message: "invalid size in VA response: " + string(rest[:sizeEnd])}
		}
		if size > MaxValueSize {
			return nil, 0, &ParseError{Message: "VA response size exceeds maximum value size"}
		}

		resp.Flags = copyFlags(rest[sizeEnd:])
		return resp, size, nil

	default:
		resp.Flags = copyFlags(rest)
		return resp, 0, nil
	}
}

// parseErrorLine returns the error of an ERROR, CLIENT_ERROR or
// SERVER_ERROR line, or nil for any other line.
func parseErrorLine(line []byte) error {
	if msg, ok := cutErrorPrefix(line, clientErrorBytes); ok {
		return &ClientError{Message: msg}
	}
	if msg, ok := cutErrorPrefix(line, serverErrorBytes); ok {
		return &ServerError{Message: msg}
	}
	if bytes.Equal(line, errorGenericBytes) {
		return &GenericError{Message: ErrorGeneric}
	}
	return nil
}

// cutErrorPrefix matches "<prefix>" and "<prefix> <message>".
func cutErrorPrefix(line, prefix []byte) (string, bool) {
	if !bytes.HasPrefix(line, prefix) {
		return "", false
	}
	rest := line[len(prefix):]
	if len(rest) == 0 {
		return "", true
	}
	if rest[0] != ' ' {
		return "", false
	}
	return string(rest[1:]), true
}

// internStatus returns the StatusType for s without allocating for known
// statuses.
func internStatus(s []byte) StatusType {
	switch string(s) {
	case "HD":
		return StatusHD
	case "VA":
		return StatusVA
	case "EN":
		return StatusEN
	case "NF":
		return StatusNF
	case "NS":
		return StatusNS
	case "EX":
		return StatusEX
	case "MN":
		return StatusMN
	case "ME":
		return StatusME
	}
	return StatusType(s)
}

// parseSize parses a non-negative decimal size.
func parseSize(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 10 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// copyFlags copies the flags part of a response line out of the reader
// buffer. Leading spaces are kept, trailing ones dropped.
func copyFlags(b []byte) Flags {
	b = bytes.TrimRight(b, " ")
	if len(b) == 0 {
		return nil
	}
	return Flags(bytes.Clone(b))
}

// ReadStatsResponse reads the response to a stats command: STAT lines up to
// the END marker.
//
//	STAT pid 12345
//	STAT uptime 3600
//	END
func ReadStatsResponse(r LineReader) (map[string]string, error) {
	stats := make(map[string]string)

	for {
		raw, err := r.ReadLine()
		if err != nil {
			return stats, err
		}
		body := raw[:len(raw)-len(CRLF)]
		errResp := parseErrorLine(body)
		line := string(body)
		r.Consume(len(raw))

		if errResp != nil {
			return stats, errResp
		}
		if line == EndMarker {
			return stats, nil
		}

		statLine, ok := strings.CutPrefix(line, StatPrefix+" ")
		if !ok {
			return stats, &ParseError{Message: "invalid stats response line: " + line}
		}

		name, value, ok := strings.Cut(statLine, " ")
		if !ok {
			return stats, &ParseError{Message: "invalid STAT line format: " + line}
		}

		stats[name] = value
	}
}
