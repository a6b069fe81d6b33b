package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alertline/alertline/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "alertline",
		Short:         "Alert lifecycle engine with deduplication and multi-channel notification",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Get().String(),
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.AddCommand(
		newServeCmd(),
		newSendCmd(),
		newResolveCmd(),
		newListCmd(),
		newGetCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}

// newLogger builds the process logger. Output goes to w and, when tee is set,
// to tee as raw JSON so it can be decoded back into entries.
func newLogger(w io.Writer, tee io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	if tee != nil {
		out = io.MultiWriter(out, tee)
	}

	info := version.Get()
	return zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("version", info.Version).
		Str("commit", info.Commit).
		Logger(), nil
}
