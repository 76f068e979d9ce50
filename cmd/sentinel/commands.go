package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"BandSentinel/internal/config"
	"BandSentinel/internal/observability"
	"BandSentinel/internal/scheduler"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "BandSentinel - Bull Market Support Band tracker",
		Long: `BandSentinel tracks the Bull Market Support Band (20-week SMA and 21-week EMA of
weekly closes) for a ranked universe of crypto assets and filters out derivative,
synthetic and stablecoin tokens.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Configuration file path (default $CONFIG_PATH or "+config.DefaultPath+")")

	load := func() (*config.Config, error) {
		path := cfgPath
		if path == "" {
			path = config.Path()
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
		cfg.SetupLogging()
		return cfg, nil
	}

	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newSyncCmd(load))
	rootCmd.AddCommand(newCalculateCmd(load))
	rootCmd.AddCommand(newEligibilityCmd(load))
	return rootCmd
}

type loader func() (*config.Config, error)

// newServeCmd runs the scheduler and metrics server until SIGINT/SIGTERM.
func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled ingest and calculation with a metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log.Info("BandSentinel starting...")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.NewScheduler(ctx, a.collector, a.engine, a.store, a.notifier, cfg.Retention.Days)
			if err := sched.RegisterAll(cfg.Schedule.IngestCron, cfg.Schedule.CalculateCron, cfg.Schedule.RetentionCron); err != nil {
				return fmt.Errorf("register cron tasks: %w", err)
			}
			sched.Start()
			defer sched.Stop()

			go func() {
				if err := observability.Serve(ctx, cfg.Metrics.Addr, a.registry); err != nil {
					log.WithError(err).Error("metrics server")
				}
			}()

			if a.telegram != nil {
				go a.telegram.StartPolling(ctx, sched.HandleCommand)
			}

			if os.Getenv("RUN_ON_START") == "true" {
				log.Info("RUN_ON_START enabled, executing ingest and calculation now")
				go sched.RunOnce()
			}

			log.Info("BandSentinel is running. Press Ctrl+C to stop.")
			<-ctx.Done()
			log.Info("shutdown signal received, stopping...")
			return nil
		},
	}
}

func newSyncCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the asset registry and ingest daily prices once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.collector.SyncAssets(ctx)
			if err != nil {
				return err
			}
			report, err := a.collector.IngestPrices(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active assets: %d\ningested: %d (%d daily points)\nfailed: %d\n",
				n, report.Assets, report.Points, len(report.Failed))
			for _, id := range report.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
			}
			return nil
		},
	}
}

func newCalculateCmd(load loader) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Compute band results for every active asset",
		Long: `Compute band results for every active asset from stored daily prices.
Example: sentinel calculate --date=2024-06-25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.engine.Run(ctx, day)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "run\t%s\n", r.RunID)
			fmt.Fprintf(w, "date\t%s\n", r.CalculationDate.Format("2006-01-02"))
			fmt.Fprintf(w, "computed\t%d\t(healthy %d, weak %d)\n", r.Computed, r.Healthy, r.Weak)
			fmt.Fprintf(w, "insufficient history\t%d\n", r.Insufficient)
			fmt.Fprintf(w, "invalid price data\t%d\n", r.Invalid)
			fmt.Fprintf(w, "failed\t%d\n", r.Failed)
			fmt.Fprintf(w, "excluded\t%d\t(manual review %d)\n", r.Excluded, r.Review)
			fmt.Fprintf(w, "duration\t%s\n", r.Duration.Round(time.Millisecond))
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Calculation date in YYYY-MM-DD format (today UTC if not provided)")
	return cmd
}

func newEligibilityCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility",
		Short: "Print the eligibility verdict for every active asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			included, rejected, err := a.engine.Eligibility(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tSYMBOL\tVERDICT\tREASON")
			for _, asset := range included {
				fmt.Fprintf(w, "%d\t%s\tinclude\t\n", asset.Rank, asset.Symbol)
			}
			for _, r := range rejected {
				reason := r.Reason
				if r.Err != nil {
					reason += " (" + r.Err.Error() + ")"
				}
				fmt.Fprintf(w, "%d\t%s\texclude\t%s\n", r.Asset.Rank, r.Asset.Symbol, reason)
			}
			return w.Flush()
		},
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}
