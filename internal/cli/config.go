package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Reader kinds accepted by --reader.
const (
	ReaderLinebuf = "linebuf"
	ReaderBufio   = "bufio"
	ReaderBoth    = "both"
)

// Config is the benchmark configuration. It can be loaded from a YAML file
// with --config; flags given on the command line win over the file.
type Config struct {
	Addr        string `yaml:"addr"`
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Iterations  int    `yaml:"iterations"`
	Batch       int    `yaml:"batch"`
	Reader      string `yaml:"reader"`
	BufferSize  int    `yaml:"buffer_size"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogFormat   string `yaml:"log_format"`

	Client ClientConfig `yaml:"client"`
}

// ClientConfig configures the client subcommand.
type ClientConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Operations  int           `yaml:"operations"`
	MaxSize     int32         `yaml:"max_size"`
	ValueSize   int           `yaml:"value_size"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when neither a file nor flags
// set a value.
func DefaultConfig() Config {
	return Config{
		Addr:       "127.0.0.1:11211",
		Key:        "gpl",
		Value:      "value",
		Iterations: 10_000,
		Batch:      100,
		Reader:     ReaderBoth,
		BufferSize: 2 * 1024,
		LogFormat:  "console",
		Client: ClientConfig{
			Concurrency: 4,
			Operations:  100_000,
			MaxSize:     8,
			ValueSize:   100,
			Timeout:     time.Second,
		},
	}
}

// LoadConfig decodes the YAML file at path into cfg. Fields missing from the
// file keep their current value. Unknown fields are rejected.
func LoadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Validate checks the values that would make a run meaningless.
func (c *Config) Validate() error {
	switch c.Reader {
	case ReaderLinebuf, ReaderBufio, ReaderBoth:
	default:
		return fmt.Errorf("invalid reader %q: must be linebuf, bufio or both", c.Reader)
	}

	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.Key == "" {
		return errors.New("key is required")
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Batch <= 0 {
		return fmt.Errorf("batch must be positive, got %d", c.Batch)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %d", c.BufferSize)
	}
	if c.Client.Concurrency <= 0 {
		return fmt.Errorf("client concurrency must be positive, got %d", c.Client.Concurrency)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client timeout must be positive, got %s", c.Client.Timeout)
	}
	return nil
}

// readers returns the reader kinds to run, in order.
func (c *Config) readers() []string {
	if c.Reader == ReaderBoth {
		return []string{ReaderLinebuf, ReaderBufio}
	}
	return []string{c.Reader}
}
