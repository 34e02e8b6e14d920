// Package orchestrator schedules test batteries against configured
// exports.
//
// The battery order is fixed: cheap verification probes run first as a
// fast-fail gate, enforcement probes run before throughput probes, and
// read-only mounts never see a destructive case. Probes execute strictly
// sequentially; only individual probe bodies parallelize internally.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/beastmode/nfscheck/internal/config"
	"github.com/beastmode/nfscheck/internal/mount"
	"github.com/beastmode/nfscheck/internal/probe"
	"github.com/beastmode/nfscheck/internal/report"
)

// ReadWriteBattery is the fixed probe order for read-write exports.
var ReadWriteBattery = []string{
	probe.IDMountOptions,
	probe.IDTransport,
	probe.IDReadWriteEnforcement,
	probe.IDBasicFileOps,
	probe.IDIdempotent,
	probe.IDCloseToOpen,
	probe.IDLocking,
	probe.IDSmallFiles,
	probe.IDConcurrentWriters,
	probe.IDLargeSequentialIO,
}

// ReadOnlyBattery is the fixed probe order for read-only exports.
var ReadOnlyBattery = []string{
	probe.IDMountOptions,
	probe.IDTransport,
	probe.IDReadOnlyEnforcement,
	probe.IDReadOnlyReadOps,
}

// Battery returns the probe order for a mount mode.
func Battery(mode string) []string {
	if mode == config.ModeReadOnly {
		return ReadOnlyBattery
	}
	return ReadWriteBattery
}

// Orchestrator runs batteries against exports, one session at a time.
// Zero-value fields fall back to sensible defaults in normalize.
type Orchestrator struct {
	// Sys performs the actual mount/unmount calls. Required.
	Sys mount.System

	// Sink receives narration and results. Nil means NopSink.
	Sink report.Sink

	// Log receives progress output. Nil discards.
	Log *slog.Logger

	// Params are the probe tunables. Zero means DefaultParams.
	Params probe.Params

	// Contender handles the out-of-process lock attempt. Nil means the
	// re-exec contender.
	Contender probe.Contender

	// Now stamps results. Nil means time.Now.
	Now func() time.Time
}

func (o *Orchestrator) normalize() {
	if o.Sink == nil {
		o.Sink = report.NopSink{}
	}
	if o.Log == nil {
		o.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Params == (probe.Params{}) {
		o.Params = probe.DefaultParams()
	}
	if o.Contender == nil {
		o.Contender = &probe.ExecContender{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Run executes one battery per export, sequentially and in configuration
// order. A mount-lifecycle fault is fatal only to its own export: the
// fault is logged and the remaining exports still run. Test failures
// never abort anything.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config) {
	o.normalize()

	for i := range cfg.Exports {
		exp := &cfg.Exports[i]
		if err := ctx.Err(); err != nil {
			o.Log.Warn("run cancelled", "remaining_exports", len(cfg.Exports)-i)
			return
		}
		if err := o.RunExport(ctx, exp, cfg.EffectiveOptions(exp)); err != nil {
			o.Log.Error("export battery aborted",
				"source", exp.Source(), "mode", exp.Mode, "error", err)
		}
	}
}

// RunExport mounts one export, runs its battery, and tears the session
// down. The returned error covers mount-lifecycle faults only; probe
// failures are recorded through the sink, never returned.
func (o *Orchestrator) RunExport(ctx context.Context, exp *config.Export, opts *config.MountOptions) error {
	o.normalize()

	session := mount.NewSession(o.Log, o.Sys, exp, opts)

	// Guaranteed release: the battery may panic, teardown still runs.
	defer session.Teardown(ctx)

	if err := session.Mount(ctx); err != nil {
		return fmt.Errorf("mount failed for %s: %w", exp.Source(), err)
	}
	workDir, err := session.ProvisionWorkDir(ctx)
	if err != nil {
		return fmt.Errorf("working directory provisioning failed for %s: %w", exp.Source(), err)
	}

	env := &probe.Env{
		MountPoint: session.MountPoint(),
		WorkDir:    workDir,
		Export:     exp,
		Options:    opts,
		Entries:    o.Sys.Entries,
		Contender:  o.Contender,
		Sink:       o.Sink,
		Log:        o.Log,
		Params:     o.Params,
	}

	o.runBattery(ctx, env, Battery(exp.Mode))
	return nil
}

// runBattery executes the named probes in order with per-probe fault
// isolation: a panic or error in one case is recorded as a failed result
// and the battery proceeds.
func (o *Orchestrator) runBattery(ctx context.Context, env *probe.Env, battery []string) {
	for _, id := range battery {
		p, ok := probe.Lookup(id)
		if !ok {
			// Registry and battery tables are both static; a miss is a
			// programming error, surfaced as a failed result.
			o.record(id, false, fmt.Sprintf("probe %q not registered", id), env.Export.Transport)
			continue
		}

		o.Sink.Start(p.ID, p.Description)
		detail, err := o.runProbe(ctx, p, env)
		if err != nil {
			o.Log.Error("probe failed", "probe", p.ID, "error", err)
			o.record(p.ID, false, err.Error(), env.Export.Transport)
			continue
		}
		o.record(p.ID, true, detail, env.Export.Transport)
	}
}

// runProbe calls the probe body, converting a panic into an error at the
// orchestrator boundary so a single case's fault never aborts the battery.
func (o *Orchestrator) runProbe(ctx context.Context, p *probe.Probe, env *probe.Env) (detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Run(ctx, env)
}

func (o *Orchestrator) record(id string, passed bool, msg, transport string) {
	o.Sink.Record(report.Result{
		Probe:     id,
		Passed:    passed,
		Message:   msg,
		Timestamp: o.Now(),
		Transport: transport,
	})
}
