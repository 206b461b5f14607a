// Package fakeserver is an in-memory memcached for tests.
package fakeserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pior/linebuf"
)

// Server is an in-memory memcached speaking a subset of the meta
// protocol (mg, ms, md, mn) and of the text protocol (get, set, stats).
type Server struct {
	listener net.Listener

	mu     sync.Mutex
	items  map[string][]byte
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Start listens on a random local port. The server is stopped
// with the test.
func Start(tb testing.TB) *Server {
	tb.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}

	s := &Server{
		listener: listener,
		items:    make(map[string][]byte),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.serve()

	tb.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the server and closes client connections.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Item returns the stored value of key.
func (s *Server) Item(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.items[key]
	return value, ok
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)

			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	r := linebuf.NewReader(conn, 0)

	for {
		line, err := r.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(string(line))
		r.Consume(len(line))

		var out bytes.Buffer
		if err := s.exec(r, fields, &out); err != nil {
			return
		}
		if out.Len() > 0 {
			if _, err := conn.Write(out.Bytes()); err != nil {
				return
			}
		}
	}
}

func (s *Server) exec(r *linebuf.Reader[net.Conn], fields []string, out *bytes.Buffer) error {
	if len(fields) == 0 {
		out.WriteString("ERROR\r\n")
		return nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "mn":
		out.WriteString("MN\r\n")

	case "mg":
		if len(args) < 1 {
			out.WriteString("CLIENT_ERROR bad command line format\r\n")
			return nil
		}
		key, flags := args[0], args[1:]
		value, ok := s.Item(key)
		if !ok {
			if !hasFlag(flags, "q") {
				out.WriteString("EN\r\n")
			}
			return nil
		}

		var ret string
		if hasFlag(flags, "k") {
			ret = " k" + key
		}
		if !hasFlag(flags, "v") {
			fmt.Fprintf(out, "HD%s\r\n", ret)
			return nil
		}
		fmt.Fprintf(out, "VA %d%s\r\n%s\r\n", len(value), ret, value)

	case "ms":
		if len(args) < 2 {
			out.WriteString("CLIENT_ERROR bad command line format\r\n")
			return nil
		}
		value, err := readData(r, args[1])
		if err != nil {
			return err
		}
		key, flags := args[0], args[2:]
		if !s.store(key, value, !hasFlag(flags, "ME")) {
			out.WriteString("NS\r\n")
			return nil
		}
		if !hasFlag(flags, "q") {
			out.WriteString("HD\r\n")
		}

	case "md":
		if len(args) < 1 {
			out.WriteString("CLIENT_ERROR bad command line format\r\n")
			return nil
		}
		if !s.delete(args[0]) {
			out.WriteString("NF\r\n")
			return nil
		}
		out.WriteString("HD\r\n")

	case "set":
		// set <key> <flags> <exptime> <bytes> [noreply]
		if len(args) < 4 {
			out.WriteString("CLIENT_ERROR bad command line format\r\n")
			return nil
		}
		value, err := readData(r, args[3])
		if err != nil {
			return err
		}
		s.store(args[0], value, true)
		if len(args) < 5 || args[4] != "noreply" {
			out.WriteString("STORED\r\n")
		}

	case "get":
		for _, key := range args {
			if value, ok := s.Item(key); ok {
				fmt.Fprintf(out, "VALUE %s 0 %d\r\n%s\r\n", key, len(value), value)
			}
		}
		out.WriteString("END\r\n")

	case "stats":
		s.mu.Lock()
		fmt.Fprintf(out, "STAT curr_items %d\r\nSTAT curr_connections %d\r\nEND\r\n", len(s.items), len(s.conns))
		s.mu.Unlock()

	default:
		out.WriteString("ERROR\r\n")
	}

	return nil
}

// store sets key, or only adds it when replace is false. It reports whether
// the value was stored.
func (s *Server) store(key string, value []byte, replace bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists && !replace {
		return false
	}
	s.items[key] = value
	return true
}

func (s *Server) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

func readData(r *linebuf.Reader[net.Conn], size string) ([]byte, error) {
	n, err := strconv.Atoi(size)
	if err != nil || n < 0 {
		return nil, errors.New("invalid data size")
	}

	data := make([]byte, n+2)
	if err := r.ReadFull(data); err != nil {
		return nil, err
	}
	if !bytes.HasSuffix(data, []byte("\r\n")) {
		return nil, io.ErrUnexpectedEOF
	}
	return data[:n], nil
}

func hasFlag(flags []string, flag string) bool {
	return slices.Contains(flags, flag)
}
