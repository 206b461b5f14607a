// Package cli implements the linebuf-bench command.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pior/linebuf/internal/promexporter"
)

// Execute runs the linebuf-bench command with the process arguments.
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}

// NewRootCommand creates the linebuf-bench command. The root command runs
// the reader benchmark, the client subcommand benchmarks memcache.Client.
func NewRootCommand(version string) *cobra.Command {
	cfg := DefaultConfig()
	var configPath string

	root := &cobra.Command{
		Use:           "linebuf-bench",
		Short:         "Compare linebuf with bufio on memcached get responses",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyConfigFile(cmd.Flags(), configPath, &cfg)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReaders(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file, flags win over its values")
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "memcached server address")
	flags.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "read buffer size in bytes")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console, json or none")

	root.Flags().StringVarP(&cfg.Key, "key", "k", cfg.Key, "key read by every get")
	root.Flags().StringVar(&cfg.Value, "value", cfg.Value, "value stored under the key")
	root.Flags().IntVarP(&cfg.Iterations, "iterations", "n", cfg.Iterations, "number of batches")
	root.Flags().IntVarP(&cfg.Batch, "batch", "b", cfg.Batch, "pipelined gets per batch")
	root.Flags().StringVarP(&cfg.Reader, "reader", "r", cfg.Reader, "reader to benchmark: linebuf, bufio or both")

	root.AddCommand(newClientCommand(&cfg))
	return root
}

func newClientCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Benchmark memcache.Client operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClient(cmd.Context(), cmd.OutOrStdout(), *cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.Client.Concurrency, "concurrency", cfg.Client.Concurrency, "number of concurrent workers")
	cmd.Flags().IntVar(&cfg.Client.Operations, "operations", cfg.Client.Operations, "operations per test, shared by the workers")
	cmd.Flags().Int32Var(&cfg.Client.MaxSize, "max-size", cfg.Client.MaxSize, "maximum connections in the pool")
	cmd.Flags().IntVar(&cfg.Client.ValueSize, "value-size", cfg.Client.ValueSize, "size of the values stored")
	cmd.Flags().DurationVar(&cfg.Client.Timeout, "timeout", cfg.Client.Timeout, "timeout of each operation")
	return cmd
}

// applyConfigFile loads the configuration file into cfg, then re-applies
// the flags set on the command line. cfg is validated in both cases.
func applyConfigFile(flags *pflag.FlagSet, path string, cfg *Config) error {
	if path != "" {
		changed := make(map[string]string)
		flags.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})

		if err := LoadConfig(path, cfg); err != nil {
			return err
		}

		for name, value := range changed {
			if err := flags.Set(name, value); err != nil {
				return fmt.Errorf("re-applying --%s: %w", name, err)
			}
		}
	}

	return cfg.Validate()
}

// session holds what both benchmarks share: the logger and the metrics
// exporter.
type session struct {
	logger   *zap.Logger
	exporter *promexporter.Exporter
	cancel   context.CancelFunc
}

func newSession(ctx context.Context, cfg Config) (*session, error) {
	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		logger:   logger,
		exporter: promexporter.NewExporter(),
		cancel:   cancel,
	}

	if cfg.MetricsAddr != "" {
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
		go func() {
			if err := s.exporter.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	return s, nil
}

func (s *session) close() {
	s.cancel()
	_ = s.logger.Sync()
}

func runReaders(ctx context.Context, out io.Writer, cfg Config) error {
	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	metrics := promexporter.NewBenchMetrics(s.exporter.Registry())

	fmt.Fprintf(out, "Reader Benchmark\n")
	fmt.Fprintf(out, "================\n")
	fmt.Fprintf(out, "Server:      %s\n", cfg.Addr)
	fmt.Fprintf(out, "Buffer size: %d\n", cfg.BufferSize)
	fmt.Fprintf(out, "Iterations:  %s x %d gets\n", formatNumber(int64(cfg.Iterations)), cfg.Batch)

	var results []readerResult
	for _, kind := range cfg.readers() {
		fmt.Fprintf(out, "Running: %s\n", kind)

		result, err := runReaderBench(ctx, cfg, kind, metrics, s.logger)
		if err != nil {
			return fmt.Errorf("%s reader: %w", kind, err)
		}
		results = append(results, result)
	}

	printReaderResults(out, results)
	return nil
}

func runClient(ctx context.Context, out io.Writer, cfg Config) error {
	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	client, err := newClient(cfg, s.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	s.exporter.Registry().MustRegister(promexporter.NewClientCollector(client))

	fmt.Fprintf(out, "Client Benchmark\n")
	fmt.Fprintf(out, "================\n")
	fmt.Fprintf(out, "Server:      %s\n", cfg.Addr)
	fmt.Fprintf(out, "Concurrency: %d\n", cfg.Client.Concurrency)
	fmt.Fprintf(out, "Operations:  %s per test\n", formatNumber(int64(cfg.Client.Operations)))

	results, err := runClientBench(ctx, cfg, client, s.logger)
	printClientResults(out, results)
	if err != nil {
		return err
	}

	stats := client.Stats()
	fmt.Fprintf(out, "\nClient: %d gets (%d hits), %d sets, %d deletes, %d errors\n",
		stats.Gets, stats.GetHits, stats.Sets, stats.Deletes, stats.Errors)
	printPoolStats(out, client.AllPoolStats())
	return nil
}
