// Package flash transitions the device into bootloader mode, waits for the
// transition with a bounded poll, flashes the patched boot image, and
// reboots.
package flash

import (
	"context"
	"log/slog"
	"time"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

// Defaults for the bootloader transition wait.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// BootPartition is the only partition this tool ever flashes.
const BootPartition = "boot"

// BootloaderTransport is the slice of the device transport flashing needs.
type BootloaderTransport interface {
	RebootToBootloader(ctx context.Context) error
	InBootloaderMode(ctx context.Context) (bool, error)
	Flash(ctx context.Context, partition, localPath string) error
	RebootNormal(ctx context.Context) error
}

// WaitUntil polls until poll reports true, sleeping interval between
// attempts. The timeout is wall-clock accounting local to the loop: once
// accumulated sleep reaches it, the wait fails with a BootloaderTimeout so
// "device unresponsive" stays distinguishable from "operation failed".
// A poll error aborts immediately.
func WaitUntil(ctx context.Context, poll func(context.Context) (bool, error),
	timeout, interval time.Duration, sleep func(time.Duration)) error {

	for elapsed := time.Duration(0); ; elapsed += interval {
		ok, err := poll(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if elapsed >= timeout {
			return errors.Classifyf(errors.BootloaderTimeout,
				"bootloader mode not observed within %s", timeout)
		}
		sleep(interval)
	}
}

// Orchestrator runs the flash leg of the pipeline.
type Orchestrator struct {
	transport BootloaderTransport
	timeout   time.Duration
	interval  time.Duration
	sleep     func(time.Duration)
}

func NewOrchestrator(transport BootloaderTransport, timeout, interval time.Duration) *Orchestrator {
	return &Orchestrator{
		transport: transport,
		timeout:   timeout,
		interval:  interval,
		sleep:     time.Sleep,
	}
}

// Run executes Normal -> bootloader -> flash -> reboot. The final reboot
// is issued without waiting for the OS to come back up.
func (o *Orchestrator) Run(ctx context.Context, patchedPath string) error {
	if err := o.transport.RebootToBootloader(ctx); err != nil {
		return errors.Classify(errors.Flash, err)
	}

	slog.Info("bootloader_wait_start", "timeout", o.timeout, "interval", o.interval)
	if err := WaitUntil(ctx, o.transport.InBootloaderMode, o.timeout, o.interval, o.sleep); err != nil {
		if errors.KindOf(err) == errors.BootloaderTimeout {
			return err
		}
		// A poll error is a transport failure, not an unresponsive device.
		return errors.Classify(errors.Flash, err)
	}
	slog.Info("bootloader_reached")

	if err := o.transport.Flash(ctx, BootPartition, patchedPath); err != nil {
		return errors.Classify(errors.Flash, err)
	}
	slog.Info("flash_complete", "partition", BootPartition, "image", patchedPath)

	if err := o.transport.RebootNormal(ctx); err != nil {
		return errors.Classify(errors.Flash, err)
	}
	return nil
}
