// Package mirror implements the remote catalog contract: the per-device
// download page, the mirror URL it links to, the ?sha256 digest manifest,
// and the archive download itself.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/schollz/progressbar/v3"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/integrity"
)

// Client fetches build metadata and archives from the LineageOS portal and
// its mirror network.
type Client struct {
	http       *http.Client
	portalURL  string
	mirrorHost string
}

// NewClient creates a catalog client. portalURL is the download portal base
// (no trailing slash needed); mirrorHost is the host archive URLs must live
// on to be trusted.
func NewClient(httpClient *http.Client, portalURL, mirrorHost string) *Client {
	return &Client{
		http:       httpClient,
		portalURL:  strings.TrimRight(portalURL, "/"),
		mirrorHost: mirrorHost,
	}
}

// ResolveBuildURL fetches the device's download page and returns the first
// mirror URL ending in "<version>-signed.zip". First match wins: downstream
// assumes exactly one canonical build per device and version.
func (c *Client) ResolveBuildURL(ctx context.Context, codename, version string) (string, error) {
	pageURL := fmt.Sprintf("%s/%s", c.portalURL, codename)
	slog.Info("catalog_page_fetch", "url", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errors.Classify(errors.Acquisition, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Classify(errors.Acquisition,
			errors.Wrap(err, "failed to fetch catalog page"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Classifyf(errors.Acquisition,
			"catalog page %s returned %s", pageURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Classify(errors.Acquisition,
			errors.Wrap(err, "failed to read catalog page"))
	}

	pattern := regexp.MustCompile(fmt.Sprintf(`https://%s/[^"'\s]*%s-signed\.zip`,
		regexp.QuoteMeta(c.mirrorHost), regexp.QuoteMeta(version)))
	url := pattern.FindString(string(body))
	if url == "" {
		return "", errors.Classifyf(errors.Acquisition,
			"no %s build for version %q on %s", c.mirrorHost, version, pageURL)
	}

	slog.Info("build_url_resolved", "url", url)
	return url, nil
}

// FetchReferenceDigest retrieves the digest manifest published next to the
// archive (build URL + "?sha256") and extracts its first whitespace token.
func (c *Client) FetchReferenceDigest(ctx context.Context, buildURL string) (integrity.Digest, error) {
	manifestURL := buildURL + "?sha256"
	slog.Info("digest_manifest_fetch", "url", manifestURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return integrity.Digest{}, errors.Classify(errors.Acquisition, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return integrity.Digest{}, errors.Classify(errors.Acquisition,
			errors.Wrap(err, "failed to fetch digest manifest"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return integrity.Digest{}, errors.Classifyf(errors.Acquisition,
			"digest manifest %s returned %s", manifestURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return integrity.Digest{}, errors.Classify(errors.Acquisition,
			errors.Wrap(err, "failed to read digest manifest"))
	}

	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return integrity.Digest{}, errors.Classifyf(errors.Acquisition,
			"empty digest manifest at %s", manifestURL)
	}

	return integrity.Digest{Algorithm: integrity.Algorithm, Hex: fields[0]}, nil
}

// Download streams a URL to localPath, following redirects, rendering a
// progress bar, and replacing the destination atomically so a killed run
// never leaves a torn archive behind.
func (c *Client) Download(ctx context.Context, url, localPath string) error {
	slog.Info("mirror_download_start", "url", url, "local_path", localPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Classify(errors.Acquisition, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Classify(errors.Acquisition,
			errors.Wrap(err, "download failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Classifyf(errors.Acquisition, "download of %s returned %s", url, resp.Status)
	}

	pending, err := renameio.NewPendingFile(localPath)
	if err != nil {
		return errors.Classify(errors.Acquisition,
			errors.Wrap(err, "failed to create staging file"))
	}
	defer pending.Cleanup()

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	size, err := io.Copy(io.MultiWriter(pending, bar), resp.Body)
	if err != nil {
		return errors.Classify(errors.Acquisition,
			errors.Wrap(err, "download interrupted"))
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return errors.Classify(errors.Acquisition,
			errors.Wrap(err, "failed to place downloaded archive"))
	}

	slog.Info("mirror_download_complete", "url", url, "size_mb", size/1024/1024, "local_path", localPath)
	return nil
}
