package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"calimport/internal/config"
	"calimport/internal/export"
	"calimport/internal/ics"
	appLog "calimport/internal/log"
	"calimport/internal/web"
)

var errNoSources = errors.New("no sources: pass files or URLs, or configure sources")

// importDocuments imports the documents named on the command line, or the
// configured sources when there are none. A single "-" reads stdin.
func importDocuments(c *cobra.Command, cfg *config.Config, args []string) ([]ics.Document, error) {
	opts, err := cfg.ImportOptions()
	if err != nil {
		return nil, err
	}
	if len(args) == 1 && args[0] == "-" {
		body, err := io.ReadAll(c.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []ics.Document{ics.Import(ics.Source{ID: "stdin", Name: "stdin"}, body, opts)}, nil
	}

	sources := cfg.ImportSources()
	if len(args) > 0 {
		sources = make([]ics.Source, 0, len(args))
		for _, a := range args {
			sources = append(sources, ics.Source{ID: a, Name: a, URL: a})
		}
	}
	if len(sources) == 0 {
		return nil, errNoSources
	}
	return ics.ImportAll(c.Context(), ics.NewFetcher(cfg.CacheDir), sources, opts)
}

func failedSources(docs []ics.Document) error {
	n := 0
	for _, d := range docs {
		if d.Err != nil {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return exitError{Code: exitFailure, Err: fmt.Errorf("%d of %d sources could not be read", n, len(docs))}
}

func newParseCmd(opts *globalOptions) *cobra.Command {
	var showEvents bool
	cmd := &cobra.Command{
		Use:   "parse [file|url|-]...",
		Short: "Parse documents and summarize their components and appointments",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c, opts, false)
			if err != nil {
				return err
			}
			docs, err := importDocuments(c, cfg, args)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			for _, d := range docs {
				printDocument(out, d, showEvents)
			}
			return failedSources(docs)
		},
	}
	cmd.Flags().BoolVar(&showEvents, "events", false, "List every materialized instance")
	return cmd
}

func printDocument(w io.Writer, d ics.Document, showEvents bool) {
	fmt.Fprintf(w, "== %s\n", sourceLabel(d.Source))
	if d.Err != nil {
		fmt.Fprintf(w, "error: %v\n\n", d.Err)
		return
	}
	cal := d.Calendar
	fmt.Fprintf(w, "components: %d events, %d todos, %d journals, %d freebusy, %d timezones\n",
		len(cal.Events), len(cal.Todos), len(cal.Journals), len(cal.FreeBusy), len(cal.Timezones))
	if !cal.Complete {
		fmt.Fprintln(w, "warning: END:VCALENDAR not found")
	}
	if n := len(cal.Foreign); n > 0 {
		fmt.Fprintf(w, "ignored %d lines outside VCALENDAR\n", n)
	}
	for _, diag := range cal.Diagnostics {
		fmt.Fprintf(w, "rejected %s in %s: %v\n", diag.Line, diag.Component, diag.Err)
	}

	fmt.Fprintf(w, "appointments: %d\n", len(d.Appointments))
	for _, a := range d.Appointments {
		b := a.Basics
		fmt.Fprintf(w, "  %s  %s  %q", b.UID, formatTime(b.Start, b.AllDay), b.Summary)
		if a.Recurrence != nil {
			fmt.Fprintf(w, "  RRULE:%s", export.RuleText(*a.Recurrence))
		}
		fmt.Fprintf(w, "  (%d instances)\n", len(a.Events))
		if showEvents {
			for _, ev := range a.Events {
				fmt.Fprintf(w, "    %s .. %s\n", formatTime(ev.Start, ev.AllDay), formatTime(ev.End, ev.AllDay))
			}
		}
	}
	for _, s := range d.Skipped {
		fmt.Fprintf(w, "skipped %s: %v\n", s.UID, s.Reason)
	}
	fmt.Fprintln(w)
}

func sourceLabel(src ics.Source) string {
	if src.Name != "" && src.Name != src.ID {
		return src.Name + " (" + src.ID + ")"
	}
	return src.ID
}

func formatTime(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "validate [file|url|-]...",
		Short: "Check documents and exit non-zero if any does not validate",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c, opts, false)
			if err != nil {
				return err
			}
			docs, err := importDocuments(c, cfg, args)
			if err != nil {
				return err
			}

			out := c.OutOrStdout()
			invalid := 0
			for _, d := range docs {
				label := sourceLabel(d.Source)
				switch {
				case d.Err != nil:
					invalid++
					fmt.Fprintf(out, "%s: unreadable: %v\n", label, d.Err)
					continue
				case d.Report.Valid:
					fmt.Fprintf(out, "%s: valid\n", label)
				default:
					invalid++
					fmt.Fprintf(out, "%s: invalid\n", label)
				}
				for _, p := range d.Report.Problems {
					fmt.Fprintf(out, "  problem: %s\n", p)
				}
				if quiet {
					continue
				}
				for _, a := range d.Report.Amendments {
					fmt.Fprintf(out, "  synthesized %s %s:%s\n", a.Component, a.Property, a.Value)
				}
				for _, diag := range d.Calendar.Diagnostics {
					fmt.Fprintf(out, "  rejected %s: %v\n", diag.Line, diag.Err)
				}
			}
			if invalid > 0 {
				return exitError{Code: exitInvalid, Err: fmt.Errorf("%d of %d documents did not validate", invalid, len(docs))}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print problems")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		format  string
		outPath string
		expand  bool
	)
	cmd := &cobra.Command{
		Use:   "export [file|url|-]...",
		Short: "Re-serialize interpreted appointments as iCalendar or xCal",
		RunE: func(c *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "ics" && format != "xcal" {
				return exitError{Code: exitInvalid, Err: fmt.Errorf("unknown format %q (want ics or xcal)", format)}
			}
			cfg, err := loadConfig(c, opts, false)
			if err != nil {
				return err
			}
			docs, err := importDocuments(c, cfg, args)
			if err != nil {
				return err
			}
			if err := failedSources(docs); err != nil {
				return err
			}

			eo := export.Options{ProductID: cfg.ProductID, Expand: expand}
			apps := ics.Appointments(docs)
			var body string
			if format == "xcal" {
				body, err = export.XCal(apps, eo)
				if err != nil {
					return err
				}
			} else {
				body = export.ICS(apps, eo)
			}

			if outPath == "" || outPath == "-" {
				_, err = io.WriteString(c.OutOrStdout(), body)
				return err
			}
			if err := os.WriteFile(outPath, []byte(body), 0o644); err != nil {
				return err
			}
			appLog.Info("export written", "path", outPath, "format", format, "appointments", len(apps))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "ics", "Output format: ics|xcal")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&expand, "expand", false, "Write one event per instance instead of rules")
	return cmd
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Import configured sources on a schedule and serve them over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c, opts, true)
			if err != nil {
				return err
			}
			// --listen overrides the config file if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			importOpts, err := cfg.ImportOptions()
			if err != nil {
				return err
			}

			appLog.Info("calimport starting",
				"version", version,
				"listen", cfg.Listen,
				"timezone", loc.String(),
				"refresh", cfg.RefreshCron,
				"horizon", cfg.Horizon,
				"sources", len(cfg.Sources),
			)

			ctx := c.Context()
			srv := web.NewServer(cfg, loc)
			refresh := newRefresher(ctx, cfg, importOpts, srv)
			refresh()

			cronLog := cron.PrintfLogger(slog.NewLogLogger(appLog.Logger().Handler(), slog.LevelError))
			sched := cron.New(
				cron.WithLocation(loc),
				cron.WithLogger(cronLog),
				cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
			)
			if _, err := sched.AddFunc(cfg.RefreshCron, refresh); err != nil {
				return fmt.Errorf("refresh %q: %w", cfg.RefreshCron, err)
			}
			sched.Start()
			defer func() { <-sched.Stop().Done() }()

			err = srv.Run(ctx)
			appLog.Info("calimport exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// newRefresher returns a job that imports every configured source and
// publishes the result to srv.
func newRefresher(ctx context.Context, cfg *config.Config, opts ics.Options, srv *web.Server) func() {
	fetcher := ics.NewFetcher(cfg.CacheDir)
	sources := cfg.ImportSources()
	return func() {
		started := time.Now()
		docs, err := ics.ImportAll(ctx, fetcher, sources, opts)
		if err != nil {
			appLog.Warn("refresh interrupted", "err", err)
			return
		}
		srv.SetSnapshot(web.Snapshot{Documents: docs, UpdatedAt: time.Now()})
		appLog.Info("refresh completed",
			"documents", len(docs),
			"appointments", len(ics.Appointments(docs)),
			"elapsed", time.Since(started).Round(time.Millisecond),
		)
	}
}
