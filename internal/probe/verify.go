package probe

import (
	"context"
	"fmt"

	"github.com/beastmode/nfscheck/internal/mount"
)

// findMountEntry reads the live mount table and locates the session's
// mount point. Used by the verification probes, which must confirm state
// independently rather than trust the mount command's exit status.
func findMountEntry(env *Env) (mount.Entry, error) {
	entries, err := env.Entries()
	if err != nil {
		return mount.Entry{}, fmt.Errorf("failed to read mount table: %w", err)
	}
	entry, ok := mount.FindTarget(entries, env.MountPoint)
	if !ok {
		return mount.Entry{}, fmt.Errorf("mount point %s not found in mount table", env.MountPoint)
	}
	return entry, nil
}

func runMountOptionsVerification(ctx context.Context, env *Env) (string, error) {
	env.step(IDMountOptions, "Phase 1: Reading mount table")
	env.step(IDMountOptions, fmt.Sprintf("Phase 2: Searching for mount point: %s", env.MountPoint))

	entry, err := findMountEntry(env)
	if err != nil {
		return "", err
	}

	env.step(IDMountOptions, "Phase 3: Checking negotiated options")

	// Kernels report the version as either vers= or nfsvers=.
	if !entry.HasOption("vers=3") && !entry.HasOption("nfsvers=3") {
		return "", fmt.Errorf("mount is not NFSv3: %v", entry.Options)
	}

	proto := "proto=" + env.Export.Transport
	if !entry.HasOption(proto) {
		return "", fmt.Errorf("requested %s but mount table shows %v", proto, entry.Options)
	}

	env.logger().Info("mount options verified",
		"mount_point", env.MountPoint, "options", entry.Options)
	return fmt.Sprintf("vers=3 and %s confirmed in mount table", proto), nil
}

func runTransportProtocol(ctx context.Context, env *Env) (string, error) {
	env.step(IDTransport, fmt.Sprintf("Checking mount table for %s transport", env.Export.Transport))

	entry, err := findMountEntry(env)
	if err != nil {
		return "", err
	}

	want := "proto=" + env.Export.Transport
	if !entry.HasOption(want) && !entry.HasOption(env.Export.Transport) {
		return "", fmt.Errorf("transport %s not confirmed by mount table: %v",
			env.Export.Transport, entry.Options)
	}

	env.step(IDTransport, fmt.Sprintf("Verified %s protocol in use", env.Export.Transport))
	return fmt.Sprintf("Using %s as expected", env.Export.Transport), nil
}
