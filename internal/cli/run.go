package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/beastmode/nfscheck/internal/config"
	"github.com/beastmode/nfscheck/internal/mount"
	"github.com/beastmode/nfscheck/internal/orchestrator"
	"github.com/beastmode/nfscheck/internal/probe"
	"github.com/beastmode/nfscheck/internal/report"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ReportDir string
	History   string

	// System overrides the mount system (for testing). Nil means the
	// production mount(8)/umount(8) implementation.
	System mount.System

	// Contender overrides the lock contender (for testing). Nil means the
	// re-exec contender.
	Contender probe.Contender

	// Params overrides the probe tunables (for testing). Zero means the
	// shipped defaults.
	Params probe.Params

	// Euid overrides the privilege check (for testing). Nil means
	// os.Geteuid.
	Euid func() int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Mount configured exports and run the validation batteries",
		Long: `Mount each configured NFSv3 export, run the applicable test battery
against the live mount, and write the text report.

Mounting requires root. The run always completes and always writes the
report, regardless of individual test outcomes; only insufficient
privilege or an environment fault aborts it.

Example:
  nfscheck run ./exports.yaml
  nfscheck run ./exports.yaml --report-dir /var/log/nfscheck --history runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runHarness(opts, args[0], cmd)
			if err != nil {
				formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				formatter.Failure(err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.ReportDir, "report-dir", ".", "directory receiving test_reports/report.txt")
	cmd.Flags().StringVar(&opts.History, "history", "", "optional SQLite database accumulating run history")

	return cmd
}

func runHarness(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Privilege gate: mount(8) needs root, so fail before touching
	// anything else.
	euid := opts.Euid
	if euid == nil {
		euid = os.Geteuid
	}
	if euid() != 0 {
		return NewExitError(ExitFailure, "insufficient privilege: mounting requires root (euid 0)")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	log.Info("config loaded", "path", configPath, "exports", len(cfg.Exports))

	sys := opts.System
	if sys == nil {
		sys = mount.DefaultSystem()
	}

	// Environment fault: a missing mount utility aborts before any test.
	for _, util := range []string{"mount", "umount"} {
		if _, err := sys.LookPath(util); err != nil {
			return WrapExitError(ExitCommandError, "required mount utility missing", err)
		}
	}

	params := opts.Params
	if params == (probe.Params{}) {
		params = probe.DefaultParams()
	}

	agg := report.NewAggregator()
	orch := &orchestrator.Orchestrator{
		Sys:       sys,
		Sink:      &report.LogSink{Log: log, Next: agg},
		Log:       log,
		Params:    params,
		Contender: opts.Contender,
	}

	// Setup signal handling so an operator abort still reaches the
	// session teardown path.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	started := time.Now()
	orch.Run(ctx, cfg)
	finished := time.Now()
	log.Info("run complete", "duration", finished.Sub(started).Truncate(time.Millisecond).String())

	// The report is written unconditionally: failed probes are exactly
	// what the operator needs documented.
	reportPath, err := report.Write(opts.ReportDir, runMetadata(cfg, started, finished), agg, finished)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	log.Info("report written", "path", reportPath)

	if opts.History != "" {
		if err := persistHistory(ctx, opts.History, started, finished, agg.Results()); err != nil {
			return WrapExitError(ExitCommandError, "failed to persist run history", err)
		}
		log.Info("run history persisted", "path", opts.History)
	}

	return printSummary(opts, cmd, agg.Summary(), reportPath)
}

func persistHistory(ctx context.Context, path string, started, finished time.Time, results []report.Result) error {
	h, err := report.OpenHistory(path)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.SaveRun(ctx, uuid.NewString(), started, finished, results)
}

// runSummary is the operator-facing tail of a run, also the JSON payload.
type runSummary struct {
	Total       int    `json:"total"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	SuccessRate string `json:"success_rate"`
	Report      string `json:"report"`
}

func printSummary(opts *RunOptions, cmd *cobra.Command, s report.Summary, reportPath string) error {
	rate := "N/A"
	if !math.IsNaN(s.Ratio) {
		rate = fmt.Sprintf("%.1f%%", s.Ratio)
	}
	payload := runSummary{
		Total:       s.Total,
		Passed:      s.Passed,
		Failed:      s.Failed,
		SuccessRate: rate,
		Report:      reportPath,
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return formatter.Success(payload)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total: %d  Passed: %d  Failed: %d  Success rate: %s\n",
		payload.Total, payload.Passed, payload.Failed, payload.SuccessRate)
	fmt.Fprintf(out, "Report: %s\n", reportPath)
	return nil
}

// runMetadata assembles the TEST RUN INFORMATION block of the report.
func runMetadata(cfg *config.Config, started, finished time.Time) []report.MetadataEntry {
	osDesc := runtime.GOOS
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		osDesc = fmt.Sprintf("%s %s",
			unix.ByteSliceToString(uts.Sysname[:]),
			unix.ByteSliceToString(uts.Release[:]))
	}

	meta := []report.MetadataEntry{
		{Key: "Test Suite", Value: "NFSv3 Protocol Validation"},
		{Key: "Date", Value: started.Format("2006-01-02 15:04:05")},
		{Key: "Operating System", Value: osDesc},
		{Key: "Duration", Value: finished.Sub(started).Truncate(time.Millisecond).String()},
	}
	for i := range cfg.Exports {
		e := &cfg.Exports[i]
		prefix := fmt.Sprintf("Mount %d", i+1)
		meta = append(meta,
			report.MetadataEntry{Key: prefix + " Vendor", Value: e.Vendor},
			report.MetadataEntry{Key: prefix + " Software", Value: e.Software},
			report.MetadataEntry{Key: prefix + " Export", Value: e.Source()},
			report.MetadataEntry{Key: prefix + " Mode", Value: e.Mode},
		)
	}
	return meta
}
