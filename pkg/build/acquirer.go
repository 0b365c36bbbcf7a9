// Package build obtains the firmware archive for the running build, from
// the on-device updater cache when possible and the mirror network
// otherwise.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/device"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

// Artifact sources.
const (
	SourceDeviceCache = "device-cache"
	SourceMirror      = "mirror"
)

// ArchiveName is the single local staging slot for the acquired archive,
// overwritten each run.
const ArchiveName = "lineage-build.zip"

// Artifact is the acquired firmware archive. URL is empty for a cache hit
// until ResolveURL is called for the digest manifest.
type Artifact struct {
	LocalPath string
	Source    string
	URL       string
}

// DeviceStorage is the slice of the device transport acquisition needs.
type DeviceStorage interface {
	FileExists(ctx context.Context, remotePath string) (bool, error)
	Pull(ctx context.Context, remotePath, localPath string) error
}

// Catalog resolves and downloads builds from the remote catalog.
type Catalog interface {
	ResolveBuildURL(ctx context.Context, codename, version string) (string, error)
	Download(ctx context.Context, url, localPath string) error
}

// Acquirer implements the cache-or-mirror acquisition branch.
type Acquirer struct {
	storage  DeviceStorage
	catalog  Catalog
	cacheDir string
	workDir  string
}

func NewAcquirer(storage DeviceStorage, catalog Catalog, cacheDir, workDir string) *Acquirer {
	return &Acquirer{
		storage:  storage,
		catalog:  catalog,
		cacheDir: cacheDir,
		workDir:  workDir,
	}
}

// CacheFilename is the updater's naming convention for a signed build:
// lineage-<lower-cased version>-signed.zip.
func CacheFilename(version string) string {
	return fmt.Sprintf("lineage-%s-signed.zip", strings.ToLower(strings.TrimSpace(version)))
}

// Acquire obtains the archive for the device's running build. A cache miss
// is the expected branch, not an error; any fetch or download failure is
// fatal.
func (a *Acquirer) Acquire(ctx context.Context, id device.Identity) (Artifact, error) {
	localPath := filepath.Join(a.workDir, ArchiveName)
	cachePath := path.Join(a.cacheDir, CacheFilename(id.Version))

	cached, err := a.storage.FileExists(ctx, cachePath)
	if err != nil {
		return Artifact{}, errors.Classify(errors.Acquisition,
			errors.Wrap(err, "failed to probe device cache"))
	}

	if cached {
		slog.Info("build_cache_hit", "device_path", cachePath)
		if err := a.storage.Pull(ctx, cachePath, localPath); err != nil {
			return Artifact{}, errors.Classify(errors.Acquisition,
				errors.Wrap(err, "failed to pull cached build"))
		}
		return Artifact{LocalPath: localPath, Source: SourceDeviceCache}, nil
	}

	slog.Info("build_cache_miss", "device_path", cachePath)
	url, err := a.catalog.ResolveBuildURL(ctx, id.Codename, strings.ToLower(strings.TrimSpace(id.Version)))
	if err != nil {
		return Artifact{}, err
	}
	if err := a.catalog.Download(ctx, url, localPath); err != nil {
		return Artifact{}, err
	}

	return Artifact{LocalPath: localPath, Source: SourceMirror, URL: url}, nil
}

// ResolveURL returns the canonical build URL for the identity, resolving it
// on demand. A cache-hit artifact needs this before the digest manifest can
// be fetched.
func (a *Acquirer) ResolveURL(ctx context.Context, id device.Identity, art Artifact) (string, error) {
	if art.URL != "" {
		return art.URL, nil
	}
	return a.catalog.ResolveBuildURL(ctx, id.Codename, strings.ToLower(strings.TrimSpace(id.Version)))
}
