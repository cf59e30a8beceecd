package interventions

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// maxSnapshotBytes caps how much of a page is kept for operator review
const maxSnapshotBytes = 50 * 1024

// writeSnapshot persists a truncated page snapshot for an intervention and
// returns its content hash and path. The hash is computed over the full
// page so drift detection is not fooled by the truncation.
func writeSnapshot(dir, runID, html string) (hash, path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create snapshot dir %s: %w", dir, err)
	}

	sum := md5.Sum([]byte(html))
	hash = hex.EncodeToString(sum[:])[:8]

	body := html
	if len(body) > maxSnapshotBytes {
		body = body[:maxSnapshotBytes]
	}

	path = filepath.Join(dir, fmt.Sprintf("%s_%s.html", runID, hash))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return hash, path, nil
}
