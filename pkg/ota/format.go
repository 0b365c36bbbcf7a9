// Package ota classifies OTA package layouts and extracts the boot image
// from them.
package ota

import (
	"archive/zip"
	"log/slog"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

// Format is one of the closed set of OTA package layouts.
type Format int

const (
	// FormatBlock carries a ready boot.img entry.
	FormatBlock Format = iota
	// FormatPayload carries the partitions inside a payload.bin blob.
	FormatPayload
	// FormatFile carries neither; extraction for it is not implemented.
	FormatFile
)

func (f Format) String() string {
	switch f {
	case FormatBlock:
		return "block-based"
	case FormatPayload:
		return "payload-based"
	default:
		return "file-based"
	}
}

// Archive entry names the classifier dispatches on.
const (
	bootImageEntry = "boot.img"
	payloadEntry   = "payload.bin"
)

// Classify inspects the archive's entry list. The checks run in a fixed
// order: boot.img first, payload.bin second. An archive carrying both is
// block-based by that order, not by content inspection.
func Classify(archivePath string) (Format, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return FormatFile, errors.Wrap(err, "failed to open OTA archive")
	}
	defer r.Close()

	var hasBoot, hasPayload bool
	for _, f := range r.File {
		switch f.Name {
		case bootImageEntry:
			hasBoot = true
		case payloadEntry:
			hasPayload = true
		}
	}

	var format Format
	switch {
	case hasBoot:
		format = FormatBlock
	case hasPayload:
		format = FormatPayload
	default:
		format = FormatFile
	}

	slog.Info("ota_classified", "archive", archivePath, "format", format.String())
	return format, nil
}
