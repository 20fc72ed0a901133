package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/climate-daily-etl/internal/adapter/http"
	"github.com/couchcryptid/climate-daily-etl/internal/config"
	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/observability"
	"github.com/couchcryptid/climate-daily-etl/internal/pipeline"
	"github.com/couchcryptid/climate-daily-etl/internal/report"
	"github.com/couchcryptid/climate-daily-etl/internal/scheduler"
)

// errTargetsFailed makes the process exit non-zero after a partial run.
var errTargetsFailed = errors.New("one or more targets failed")

type rootOptions struct {
	locations []string
	app       *app
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "etl",
		Short:         "Scrape, store and serve daily climate observations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			a, err := newApp(cmd.Context(), cfg, logger, observability.NewMetrics())
			if err != nil {
				return err
			}
			opts.app = a
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.app != nil {
				opts.app.Close()
			}
		},
	}
	cmd.PersistentFlags().StringSliceVarP(&opts.locations, "location", "l", nil,
		"location to operate on (repeatable; default every configured location)")

	cmd.AddCommand(
		newDownloadCmd(opts),
		newUpdateCmd(opts),
		newServeCmd(opts),
		newReportCmd(opts),
		newValidateCmd(opts),
	)
	return cmd
}

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	var startYear, endYear int
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Bulk download every month page in a year range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := opts.app
			if !cmd.Flags().Changed("start-year") {
				startYear = a.cfg.StartYear
			}
			if !cmd.Flags().Changed("end-year") {
				endYear = domain.Today().Year
			}
			if startYear > endYear {
				return fmt.Errorf("start year %d is after end year %d", startYear, endYear)
			}
			locs, err := a.locations(opts.locations)
			if err != nil {
				return err
			}
			summaries, err := pipeline.EachLocation(cmd.Context(), locs, 0,
				func(ctx context.Context, loc string) (pipeline.Summary, error) {
					return a.pipeline.Download(ctx, loc, startYear, endYear)
				})
			return finishRun(cmd.OutOrStdout(), summaries, err)
		},
	}
	cmd.Flags().IntVar(&startYear, "start-year", 0, "first year to download (default START_YEAR)")
	cmd.Flags().IntVar(&endYear, "end-year", 0, "last year to download (default current year)")
	return cmd
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var bootstrap bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Fetch the days missing since the latest stored observation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := opts.app
			locs, err := a.locations(opts.locations)
			if err != nil {
				return err
			}
			summaries, err := pipeline.EachLocation(cmd.Context(), locs, 0,
				func(ctx context.Context, loc string) (pipeline.Summary, error) {
					if bootstrap {
						return a.pipeline.Sync(ctx, loc, a.cfg.StartYear)
					}
					return a.pipeline.Update(ctx, loc)
				})
			return finishRun(cmd.OutOrStdout(), summaries, err)
		},
	}
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false,
		"run a bulk download from START_YEAR for locations with nothing stored")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API and keep every location up to date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := opts.app
			ctx := cmd.Context()
			locs, err := a.locations(opts.locations)
			if err != nil {
				return err
			}

			srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.pipeline, a.store, locs, a.logger)
			sched := scheduler.New(locs, a.cfg.UpdateInterval, 0,
				func(ctx context.Context, loc string) (pipeline.Summary, error) {
					return a.pipeline.Update(ctx, loc)
				}, a.logger)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			if err := sched.Start(); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
			case err = <-errCh:
				a.logger.Error("http server error", "error", err)
			}
			a.logger.Info("shutting down")

			sched.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				a.logger.Error("http server shutdown error", "error", serr)
			}
			a.logger.Info("shutdown complete")
			return err
		},
	}
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print plot-ready series as JSON",
	}

	var startYear, endYear int
	boxplot := &cobra.Command{
		Use:   "boxplot",
		Short: "Mean temperatures grouped by year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := singleLocation(opts)
			if err != nil {
				return err
			}
			if startYear > endYear {
				return fmt.Errorf("start year %d is after end year %d", startYear, endYear)
			}
			obs, err := opts.app.store.Range(cmd.Context(), loc,
				domain.NewDate(startYear, time.January, 1), domain.NewDate(endYear, time.December, 31))
			if err != nil {
				return fmt.Errorf("query observations: %w", err)
			}
			series, err := report.BoxPlot(obs, startYear, endYear)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), series)
		},
	}
	boxplot.Flags().IntVar(&startYear, "start-year", 0, "first year")
	boxplot.Flags().IntVar(&endYear, "end-year", 0, "last year")
	_ = boxplot.MarkFlagRequired("start-year")
	_ = boxplot.MarkFlagRequired("end-year")

	var year, month int
	line := &cobra.Command{
		Use:   "line",
		Short: "Daily mean temperatures for one month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := singleLocation(opts)
			if err != nil {
				return err
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("invalid month %d: must be 1-12", month)
			}
			obs, err := opts.app.store.Month(cmd.Context(), loc, year, time.Month(month))
			if err != nil {
				return fmt.Errorf("query observations: %w", err)
			}
			series, err := report.Line(obs, year, month)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), series)
		},
	}
	line.Flags().IntVar(&year, "year", 0, "year")
	line.Flags().IntVar(&month, "month", 0, "month (1-12)")
	_ = line.MarkFlagRequired("year")
	_ = line.MarkFlagRequired("month")

	cmd.AddCommand(boxplot, line)
	return cmd
}

func singleLocation(opts *rootOptions) (string, error) {
	locs, err := opts.app.locations(opts.locations)
	if err != nil {
		return "", err
	}
	if len(locs) != 1 {
		return "", fmt.Errorf("exactly one --location is required, have %d", len(locs))
	}
	return locs[0], nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// finishRun prints one line per location and folds partial failures into
// the command's exit status.
func finishRun(w io.Writer, summaries []pipeline.Summary, runErr error) error {
	failed := false
	for _, s := range summaries {
		printSummary(w, s)
		if !s.OK() {
			failed = true
		}
	}
	if runErr != nil {
		return runErr
	}
	if failed {
		return errTargetsFailed
	}
	return nil
}

func printSummary(w io.Writer, s pipeline.Summary) {
	if s.NeedsBulk {
		fmt.Fprintf(w, "%s: nothing stored yet; a full download is required (run `download` or `update --bootstrap`)\n", s.Location)
		return
	}
	fmt.Fprintf(w, "%s [%s] targets=%d succeeded=%d failed=%d stored=%d defects=%d",
		s.Location, s.Mode, s.Targets, len(s.Succeeded), len(s.Failed), s.Stored, len(s.Defects))
	if s.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)
	for _, f := range s.Failed {
		fmt.Fprintf(w, "  failed %s: %v\n", f.Target, f.Err)
	}
}
