package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deliberate/internal/demo"
	"github.com/xkilldash9x/deliberate/internal/observability"
	"github.com/xkilldash9x/deliberate/pkg/platform"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRunCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the buyer/seller negotiation demo",
		Long: `Starts one seller and a number of buyers on a platform. Buyers open below
the asking price and raise their bid on every clock tick until the seller
accepts or their limit is reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			mp, shutdown, err := observability.InitializeMetrics(a.cfg.Metrics, cmd.ErrOrStderr(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to start metrics: %w", err)
			}
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					a.logger.Warn("Metrics shutdown failed.", zap.Error(err))
				}
			}()

			var opts []platform.Option
			if mp != nil {
				opts = append(opts, platform.WithMeterProvider(mp))
			}
			report, err := demo.Run(ctx, a.cfg, a.logger, opts...)
			if err != nil {
				return err
			}
			return printReport(cmd, report, asJSON)
		},
	}

	flags := cmd.Flags()
	flags.Int("buyers", 0, "number of buyers (overrides demo.buyers)")
	flags.Duration("duration", 0, "how long to run (overrides demo.duration)")
	flags.Int("workers", 0, "worker pool size (overrides scheduler.workers)")
	flags.BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = a.v.BindPFlag("demo.buyers", flags.Lookup("buyers"))
	_ = a.v.BindPFlag("demo.duration", flags.Lookup("duration"))
	_ = a.v.BindPFlag("scheduler.workers", flags.Lookup("workers"))
	return cmd
}

func printReport(cmd *cobra.Command, r *demo.Report, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	fmt.Fprintf(out, "buyers: %d, deals: %d, elapsed: %s\n", r.Buyers, len(r.Deals), r.Elapsed)
	for _, d := range r.Deals {
		fmt.Fprintf(out, "  %s paid %d\n", d.Buyer, d.Price)
	}
	fmt.Fprintf(out, "turns: %d, wakes: %d, agents killed: %d, cycle failures: %d\n",
		r.Stats.Turns, r.Stats.Wakes, r.Stats.Killed, r.Stats.CycleFailures)
	return nil
}
