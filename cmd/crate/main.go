package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/llehouerou/crate/internal/config"
	"github.com/llehouerou/crate/internal/errmsg"
	"github.com/llehouerou/crate/internal/logger"
	"github.com/llehouerou/crate/internal/store"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile   string
	dbPath    string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "crate",
		Short: "Inspect and maintain a crate media library database",
		Long: `crate works on the library database directly: search the index,
look at listening stats and recents, delete tracks and run the
consistency repair and maintenance passes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "extra config file, read after the default locations")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "library database file (overrides db_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json (overrides log_format)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// opError renders a failure the way the rest of the tool reports them.
type opError struct {
	op      errmsg.Op
	context string
	err     error
}

func (e *opError) Error() string { return errmsg.FormatWith(e.op, e.context, e.err) }
func (e *opError) Unwrap() error { return e.err }

func fail(op errmsg.Op, err error) error {
	return &opError{op: op, err: err}
}

func failWith(op errmsg.Op, context string, err error) error {
	return &opError{op: op, context: context, err: err}
}

func loadConfig() (*config.Config, error) {
	var extra []string
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, err
		}
		extra = append(extra, cfgFile)
	}
	cfg, err := config.Load(extra...)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, cfg.Validate()
}

// openStore loads the configuration and opens the library. Logs go to the
// command's error stream.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fail(errmsg.OpConfig, err)
	}
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	s, err := store.Open(cmd.Context(), cfg, log)
	if err != nil {
		return nil, failWith(errmsg.OpOpen, cfg.DBPath, err)
	}
	return s, nil
}
