// Package probe holds the test-case registry and the probe bodies that
// exercise a live mount.
//
// A probe body receives everything it needs through Env and reports back a
// detail message or an error; pass/fail bookkeeping belongs to the
// orchestrator. Expected-negative outcomes (a rejected write on a
// read-only mount, a not-found on a repeated delete) are handled inside
// the body: the body returns nil when the observed error class matches
// expectation and an error when it does not.
package probe

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/beastmode/nfscheck/internal/config"
	"github.com/beastmode/nfscheck/internal/mount"
	"github.com/beastmode/nfscheck/internal/report"
)

// Probe identifiers, also the test names in the rendered report.
const (
	IDMountOptions         = "mount_options_verification"
	IDTransport            = "transport_protocol"
	IDReadWriteEnforcement = "readwrite_mount_enforcement"
	IDBasicFileOps         = "basic_file_operations"
	IDIdempotent           = "idempotent_operations"
	IDCloseToOpen          = "close_to_open_consistency"
	IDLocking              = "nlm_basic_locking"
	IDSmallFiles           = "small_file_performance"
	IDConcurrentWriters    = "concurrent_writers"
	IDLargeSequentialIO    = "large_sequential_io"
	IDReadOnlyEnforcement  = "readonly_mount_enforcement"
	IDReadOnlyReadOps      = "readonly_mount_read_operations"
)

// Params holds the probe tunables. Production runs use DefaultParams;
// tests shrink them so batteries finish in milliseconds.
type Params struct {
	// IdempotentIterations is the repeat count for the idempotent
	// create/overwrite sequence.
	IdempotentIterations int

	// SettleInterval is how long the close-to-open probe waits between
	// closing the writer handle and opening the reader handle.
	SettleInterval time.Duration

	// SmallFileCount is the file count for the metadata-throughput probe.
	SmallFileCount int

	// ConcurrentWriters is the worker-pool size for the concurrent-writer
	// probe.
	ConcurrentWriters int

	// LargeFileMB and ChunkSize shape the sequential-IO probe: the file is
	// LargeFileMB chunks of ChunkSize bytes each.
	LargeFileMB int
	ChunkSize   int
}

// DefaultParams mirrors the tunables the harness ships with.
func DefaultParams() Params {
	return Params{
		IdempotentIterations: 3,
		SettleInterval:       500 * time.Millisecond,
		SmallFileCount:       100,
		ConcurrentWriters:    32,
		LargeFileMB:          128,
		ChunkSize:            1 << 20,
	}
}

// Env carries a probe's view of the mounted export. Probes never touch
// the session directly; the orchestrator assembles an Env per battery.
type Env struct {
	// MountPoint is the local mount-point path.
	MountPoint string

	// WorkDir is where destructive probes operate: a unique subdirectory
	// for rw mounts, the mount point itself for ro mounts.
	WorkDir string

	// Export and Options describe the configuration under test.
	Export  *config.Export
	Options *config.MountOptions

	// Entries reads the live mount table for the verification probes.
	Entries func() ([]mount.Entry, error)

	// Contender performs the out-of-process lock attempt for the locking
	// probe. Nil disables the probe (it fails with a setup error).
	Contender Contender

	// Sink receives phase narration. May be nil.
	Sink report.Sink

	// Log receives progress lines. May be nil.
	Log *slog.Logger

	Params Params
}

func (e *Env) step(probe, msg string) {
	if e.Sink != nil {
		e.Sink.Step(probe, msg)
	}
}

func (e *Env) logger() *slog.Logger {
	if e.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Log
}

// Probe is one registered test case.
type Probe struct {
	// ID is the stable identifier used in results and the report.
	ID string

	// Description is the operator-facing purpose line.
	Description string

	// Modes lists the mount modes the probe applies to.
	Modes []string

	// Run executes the probe. The returned string is the detail message
	// for a passing result; a non-nil error marks the probe failed.
	Run func(ctx context.Context, env *Env) (string, error)
}

// AppliesTo reports whether the probe runs under the given mount mode.
func (p *Probe) AppliesTo(mode string) bool {
	for _, m := range p.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

var bothModes = []string{config.ModeReadWrite, config.ModeReadOnly}
var rwOnly = []string{config.ModeReadWrite}
var roOnly = []string{config.ModeReadOnly}

// registry is static and read-only after init.
var registry = map[string]*Probe{
	IDMountOptions: {
		ID:          IDMountOptions,
		Description: "Confirm that the actual mount options match the requested configuration",
		Modes:       bothModes,
		Run:         runMountOptionsVerification,
	},
	IDTransport: {
		ID:          IDTransport,
		Description: "Verify that the mount is using the correct transport protocol (TCP/UDP) as requested",
		Modes:       bothModes,
		Run:         runTransportProtocol,
	},
	IDReadWriteEnforcement: {
		ID:          IDReadWriteEnforcement,
		Description: "Verify read-write mount allows create, modify, and delete operations",
		Modes:       rwOnly,
		Run:         runReadWriteEnforcement,
	},
	IDBasicFileOps: {
		ID:          IDBasicFileOps,
		Description: "Test fundamental file operations: create, read, write, and delete files",
		Modes:       rwOnly,
		Run:         runBasicFileOperations,
	},
	IDIdempotent: {
		ID:          IDIdempotent,
		Description: "Verify NFS3 stateless protocol ensures repeated operations produce consistent results",
		Modes:       rwOnly,
		Run:         runIdempotentOperations,
	},
	IDCloseToOpen: {
		ID:          IDCloseToOpen,
		Description: "Test NFS3 close-to-open cache consistency - changes made by one client are visible to others after file close",
		Modes:       rwOnly,
		Run:         runCloseToOpenConsistency,
	},
	IDLocking: {
		ID:          IDLocking,
		Description: "Test Network Lock Manager (NLM) exclusive file locking between processes",
		Modes:       rwOnly,
		Run:         runBasicLocking,
	},
	IDSmallFiles: {
		ID:          IDSmallFiles,
		Description: "Measure metadata-intensive operations with many small files",
		Modes:       rwOnly,
		Run:         runSmallFilePerformance,
	},
	IDConcurrentWriters: {
		ID:          IDConcurrentWriters,
		Description: "Test multiple simultaneous writers to verify concurrent access handling",
		Modes:       rwOnly,
		Run:         runConcurrentWriters,
	},
	IDLargeSequentialIO: {
		ID:          IDLargeSequentialIO,
		Description: "Measure large file sequential read/write performance",
		Modes:       rwOnly,
		Run:         runLargeSequentialIO,
	},
	IDReadOnlyEnforcement: {
		ID:          IDReadOnlyEnforcement,
		Description: "Verify read-only mount blocks write operations",
		Modes:       roOnly,
		Run:         runReadOnlyEnforcement,
	},
	IDReadOnlyReadOps: {
		ID:          IDReadOnlyReadOps,
		Description: "Verify read operations still work on read-only mounts",
		Modes:       roOnly,
		Run:         runReadOnlyReadOperations,
	},
}

// Lookup returns the registered probe for id.
func Lookup(id string) (*Probe, bool) {
	p, ok := registry[id]
	return p, ok
}

// IDs returns every registered probe identifier, sorted.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
