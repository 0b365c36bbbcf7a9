// Package integrity implements the digest gate between download and
// extraction: nothing downstream trusts the archive until its SHA-256
// matches the reference published next to it.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

// Algorithm is fixed; the catalog publishes SHA-256 manifests only.
const Algorithm = "sha256"

// Digest is one cryptographic digest in lower-case hex.
type Digest struct {
	Algorithm string
	Hex       string
}

// ComputeDigest streams a local file through SHA-256.
func ComputeDigest(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.Wrap(err, "failed to open file for digest")
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return Digest{}, errors.Wrap(err, "failed to hash file")
	}

	d := Digest{Algorithm: Algorithm, Hex: hex.EncodeToString(hash.Sum(nil))}
	slog.Info("digest_computed", "path", path, "sha256", d.Hex)
	return d, nil
}

// Verify compares the reference and computed digests for exact hex
// equality. A mismatch is fatal and never retried or downgraded.
func Verify(reference, computed Digest) error {
	if reference.Hex == "" {
		return errors.Classifyf(errors.Integrity, "empty reference digest")
	}
	if reference.Hex != computed.Hex {
		return errors.Classify(errors.Integrity,
			fmt.Errorf("digest mismatch: reference %s, computed %s", reference.Hex, computed.Hex))
	}
	slog.Info("digest_verified", "sha256", computed.Hex)
	return nil
}
