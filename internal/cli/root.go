// Package cli implements the oodb command line tool, which inspects and
// maintains databases without the Go types that wrote them.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/oodb"
)

// Version is set at build time.
var Version = "dev"

type envKey struct{}

// env is the state shared by all commands of one invocation.
type env struct {
	cfg    *Config
	logger *slog.Logger
	closer io.Closer
	db     *oodb.DB
}

func fromContext(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	return &env{}
}

// openDB opens the configured database once per invocation.
func (e *env) openDB(ctx context.Context) (*oodb.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	rc := e.cfg.Controller()
	store, err := OpenStore(ctx, e.cfg, rc)
	if err != nil {
		return nil, err
	}
	opts := []oodb.Option{oodb.WithLogger(oodb.NewLogger(e.logger.Handler()))}
	if rc != nil {
		opts = append(opts, oodb.WithResourceController(rc))
	}
	db, err := oodb.Open(ctx, store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.db = db
	return db, nil
}

func (e *env) close() error {
	var err error
	if e.db != nil {
		err = e.db.Close()
	}
	if e.closer != nil {
		_ = e.closer.Close()
	}
	return err
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "oodb",
		Short:   "Inspect and maintain oodb databases",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, closer, err := NewLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger, closer: closer}))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return fromContext(cmd.Context()).close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./oodb.yaml)")
	pf.String("backend", "", "Store backend (local|memory|s3|minio)")
	pf.String("path", "", "Database directory of the local backend")
	pf.String("bucket", "", "Bucket of the s3 and minio backends")
	pf.String("prefix", "", "Key prefix inside the bucket")
	pf.String("region", "", "Bucket region")
	pf.String("endpoint", "", "Custom s3 or minio endpoint")
	pf.String("commit-table", "", "DynamoDB table holding the commit pointer (s3 only)")
	pf.String("compression", "", "Blob compression (none|lz4|zstd)")
	pf.Int64("cache-bytes", 0, "Read cache size in bytes, 0 disables it")
	pf.Int64("io-limit", 0, "Store throughput limit in bytes per second, 0 disables it")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")
	pf.String("log-file", "", "Write logs to a rotated file instead of stderr")

	_ = rootCmd.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"local", "memory", "s3", "minio"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("compression", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"none", "lz4", "zstd"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newClassesCommand())
	rootCmd.AddCommand(newDumpCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newVacuumCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
