// Package cli implements the armorch command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"
)

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

// Exit codes returned by Execute.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, version string, args []string) int {
	cmd := New(version)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return ExitCodeError
	}
	return ExitCodeSuccess
}

// New returns the root command.
func New(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "armorch",
		Short: "Create interdependent Azure resources from a declarative file",
		Long: `armorch reads a list of resources with their dependencies, validates the
dependency graph and creates every resource exactly once, dependencies first.
A failed resource only skips the resources depending on it.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
	cmd.SetVersionTemplate(`{{printf "armorch version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringP(flagConfig, "f", "armorch.yaml", "path to the deployment file")
	flags.String(flagLogLevel, "warn", "set the log level (debug, info, warn, error)")
	flags.String(flagLogFormat, "text", "set the log format (text, json)")

	cmd.AddCommand(
		newApplyCmd(),
		newPlanCmd(),
		newGraphCmd(),
		newVersionCmd(),
	)
	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	logger, err := baseLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(slogcontext.NewCtx(ctx, logger))
	return nil
}

func baseLogger(cmd *cobra.Command, out io.Writer) (*slog.Logger, error) {
	level, err := loggerLevel(cmd.Flag(flagLogLevel).Value.String())
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format := cmd.Flag(flagLogFormat).Value.String(); format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

func loggerLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level: %s", s)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of armorch",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "armorch version %s\n", cmd.Root().Version)
		},
	}
}
