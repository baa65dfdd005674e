// Command pss-tool drives a PSS engine with synthetic datagrams and
// inspects or amends its durable store.
package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/okian/pss/pkg/logger"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	DB      string
	Format  string // "json" | "text"
	Verbose bool
}

var validFormats = []string{"text", "json"}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pss-tool",
		Short: "Operate a PSS scoring engine",
		Long: `Send synthetic PSS datagrams to a running engine and inspect the
events, unknown patterns and statistics it has stored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", "pss.db", "path to the engine's SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newUnknownsCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newReclassifyCommand(opts))
	cmd.AddCommand(newMatchCommand(opts))

	return cmd
}
