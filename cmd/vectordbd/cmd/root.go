// Package cmd provides the CLI commands for vectordbd.
package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
)

// Exit codes per the on-disk/process contract: 0 clean shutdown, 1
// unrecoverable corruption, 2 configuration error, 3 network-bind failure.
const (
	ExitOK          = 0
	ExitCorruption  = 1
	ExitConfigError = 2
	ExitBindFailure = 3
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the vectordbd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectordbd",
		Short: "Embedded vector similarity-search engine",
		Long: `vectordbd is a local-first vector similarity-search engine.

It hosts HNSW-indexed collections with Merkle-digested leader/follower
replication and crash-safe write-ahead logging.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: XDG config dir)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.vectordbd/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCollectionCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// exitError pairs an error with the process exit code it should produce.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Execute runs the root command and translates the result into a process
// exit code per the documented exit-code contract.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		if _, printErr := os.Stderr.WriteString(err.Error() + "\n"); printErr != nil {
			slog.Error("failed to write error to stderr", slog.Any("error", printErr))
		}
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return ExitConfigError
	}
	return ExitOK
}
