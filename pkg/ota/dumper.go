package ota

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

// DumperBinaryName is the executable inside the payload dumper release
// tarball.
const DumperBinaryName = "payload-dumper-go"

// ToolFetcher obtains the payload extraction utility and returns the path
// of its executable. Tests substitute a local fixture.
type ToolFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// ReleaseFetcher downloads a pinned payload-dumper-go release tarball into
// a freshly created scratch directory. The random directory name avoids
// colliding with anything already on disk; the pin, not the name, is what
// correctness rests on.
type ReleaseFetcher struct {
	http *http.Client
	url  string
}

func NewReleaseFetcher(httpClient *http.Client, url string) *ReleaseFetcher {
	return &ReleaseFetcher{http: httpClient, url: url}
}

func (f *ReleaseFetcher) Fetch(ctx context.Context) (string, error) {
	scratch, err := os.MkdirTemp("", "payload-dumper-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create scratch dir")
	}

	slog.Info("dumper_fetch_start", "url", f.url, "scratch", scratch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to download payload dumper release")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payload dumper release %s returned %s", f.url, resp.Status)
	}

	if err := untarGz(resp.Body, scratch); err != nil {
		return "", errors.Wrap(err, "failed to unpack payload dumper release")
	}

	binary := filepath.Join(scratch, DumperBinaryName)
	if err := os.Chmod(binary, 0755); err != nil {
		return "", errors.Wrap(err, "release tarball missing the dumper binary")
	}

	slog.Info("dumper_fetch_complete", "binary", binary)
	return binary, nil
}

// untarGz unpacks a gzipped tarball into destDir. Entry names must stay
// inside destDir; a release tarball carrying traversal paths is rejected.
func untarGz(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}

		if !filepath.IsLocal(header.Name) {
			return fmt.Errorf("unsafe path in tarball: %s", header.Name)
		}
		target := filepath.Join(destDir, header.Name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create parent dir: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file: %w", err)
			}
			out.Close()
		}
	}
	return nil
}
