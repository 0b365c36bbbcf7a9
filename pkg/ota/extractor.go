package ota

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

// Fixed local staging names under the work dir, overwritten each run.
const (
	BootImageName = "boot.img"
	payloadName   = "payload.bin"
)

// Extractor produces the unpatched boot image from an acquired archive,
// with one strategy per format.
type Extractor struct {
	runner  shell.Runner
	fetcher ToolFetcher
	workDir string
}

func NewExtractor(runner shell.Runner, fetcher ToolFetcher, workDir string) *Extractor {
	return &Extractor{runner: runner, fetcher: fetcher, workDir: workDir}
}

// ExtractBootImage dispatches on the classified format and returns the
// local path of the extracted boot image.
func (e *Extractor) ExtractBootImage(ctx context.Context, archivePath string, format Format) (string, error) {
	switch format {
	case FormatBlock:
		return e.extractBlock(archivePath)
	case FormatPayload:
		return e.extractPayload(ctx, archivePath)
	default:
		return "", errors.Classifyf(errors.UnsupportedFormat,
			"extraction from %s OTA packages is not implemented", format)
	}
}

// extractBlock copies the boot.img entry straight out of the archive.
func (e *Extractor) extractBlock(archivePath string) (string, error) {
	dest := filepath.Join(e.workDir, BootImageName)
	if err := extractZipEntry(archivePath, bootImageEntry, dest); err != nil {
		return "", errors.Wrap(err, "failed to extract boot.img")
	}
	slog.Info("boot_image_extracted", "strategy", "block", "path", dest)
	return dest, nil
}

// extractPayload pulls payload.bin out of the archive, fetches the payload
// dumper release into a scratch directory, and runs it restricted to the
// boot partition.
func (e *Extractor) extractPayload(ctx context.Context, archivePath string) (string, error) {
	payloadPath := filepath.Join(e.workDir, payloadName)
	if err := extractZipEntry(archivePath, payloadEntry, payloadPath); err != nil {
		return "", errors.Wrap(err, "failed to extract payload.bin")
	}

	dumper, err := e.fetcher.Fetch(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch payload dumper")
	}

	res, err := e.runner.Run(ctx, dumper, "-partitions", "boot", "-output", e.workDir, payloadPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to run payload dumper")
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("payload dumper exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	dest := filepath.Join(e.workDir, BootImageName)
	if _, err := os.Stat(dest); err != nil {
		return "", errors.Wrap(err, "payload dumper produced no boot image")
	}

	slog.Info("boot_image_extracted", "strategy", "payload", "path", dest)
	return dest, nil
}

// extractZipEntry copies a single named entry from a zip archive to dest.
func extractZipEntry(archivePath, entryName, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != entryName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open entry %s: %w", entryName, err)
		}
		defer rc.Close()

		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}

		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		return out.Close()
	}

	return fmt.Errorf("archive has no %s entry", entryName)
}
