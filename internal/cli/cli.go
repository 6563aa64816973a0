// Package cli implements the ipywire command-line interface.
//
// # Commands
//
//   - serve: run a kernel-side demo, reachable over WebSocket and QUIC
//   - probe: connect as a frontend and dump the state of every widget
//   - version: print build information
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the build information printed by `version`.
func SetVersion(v, c, d string) {
	version, commit, date = v, c, d
}

// Execute runs the command line until ctx is cancelled or the command
// returns.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "ipywire",
		Short:        "Jupyter widgets over comm sessions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if logLevel == "" {
				return nil
			}
			level, err := charmlog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(stderr, level)))
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from the config, else info)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ipywire %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
			return err
		},
	}
}

func newLogger(w io.Writer, level charmlog.Level) *charmlog.Logger {
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *charmlog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger set by --log-level, or one at
// fallback level.
func loggerFromContext(ctx context.Context, w io.Writer, fallback string) *charmlog.Logger {
	if l, ok := ctx.Value(loggerKey).(*charmlog.Logger); ok {
		return l
	}
	level, err := charmlog.ParseLevel(strings.ToLower(fallback))
	if err != nil {
		level = charmlog.InfoLevel
	}
	return newLogger(w, level)
}

// slogHandler adapts a charm logger to the components of ipywire, which
// all log through `log/slog`.
func slogHandler(l *charmlog.Logger) slog.Handler {
	return l
}
