package memcache

import (
	"errors"

	"github.com/zeebo/xxh3"

	"github.com/pior/linebuf/internal/jumphash"
)

var ErrNoServers = errors.New("memcache: no servers available")

// Servers provides the current list of server addresses.
type Servers interface {
	List() []string
}

// StaticServers is a fixed list of server addresses.
type StaticServers []string

// NewStaticServers returns a Servers with a fixed list of "host:port"
// addresses.
func NewStaticServers(addrs ...string) StaticServers {
	return StaticServers(addrs)
}

func (s StaticServers) List() []string {
	return s
}

// SelectServerFunc picks the server address for a key among servers.
type SelectServerFunc func(key string, servers []string) (string, error)

// DefaultSelectServer hashes the key with xxh3 and maps it to a server with
// jump consistent hashing: adding a server moves only the keys that now
// belong to it.
func DefaultSelectServer(key string, servers []string) (string, error) {
	switch len(servers) {
	case 0:
		return "", ErrNoServers
	case 1:
		return servers[0], nil
	}
	return servers[jumphash.Hash(xxh3.HashString(key), len(servers))], nil
}
