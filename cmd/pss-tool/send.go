package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/pss/internal/testevents"
)

func newSendCommand(root *rootOptions) *cobra.Command {
	var (
		mode string
		cfg  testevents.Config
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send synthetic datagrams to an engine",
		Long: `Send a match script, a stress burst of valid datagrams, or fuzz
noise to a PSS engine's UDP port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := testevents.ParseMode(mode)
			if err != nil {
				return fmt.Errorf("%w: %q (script|stress|fuzz)", err, mode)
			}
			cfg.Mode = m
			stats, err := testevents.Run(cmd.Context(), &cfg)
			if stats != nil {
				if werr := render(cmd.OutOrStdout(), root.Format, stats, func(p *printer) {
					p.row("generated", stats.Generated)
					p.row("sent", stats.Sent)
					p.row("failed", stats.Failed)
					p.row("duration", stats.Duration)
				}); werr != nil {
					return werr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(testevents.ModeScript), "script|stress|fuzz")
	cmd.Flags().StringVar(&cfg.Addr, "addr", "127.0.0.1:6000", "engine UDP address")
	cmd.Flags().IntVar(&cfg.Count, "count", 100, "datagrams for stress/fuzz, repetitions for script")
	cmd.Flags().IntVar(&cfg.Rate, "rate", 0, "datagrams per second (0 = unthrottled)")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 0, "generator seed (0 = random)")
	cmd.Flags().StringVar(&cfg.ProtocolVersion, "protocol-version", "2.3", "grammar version to generate for")
	cmd.Flags().StringVar(&cfg.GrammarPath, "grammar", "", "grammar file (default built-in)")
	return cmd
}
