package earthdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/safeout/safeout/internal/grid"
)

// Download fetches a granule file into the cache directory and returns
// its local path. An already-downloaded granule is reused.
func (c *Client) Download(ctx context.Context, ref grid.GranuleRef) (string, error) {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	dest := filepath.Join(c.cacheDir, localName(ref))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.DownloadURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", ref.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %d", ref.ID, resp.StatusCode)
	}

	// Write to a temp file first so a partial download never poses as a
	// complete granule.
	tmp, err := os.CreateTemp(c.cacheDir, localName(ref)+".part-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("download %s: %w", ref.ID, err)
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("download %s: %w", ref.ID, closeErr)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("download %s: %w", ref.ID, err)
	}

	c.logger.Info().
		Str("granule", ref.ID).
		Int64("bytes", written).
		Dur("elapsed", time.Since(start)).
		Msg("granule downloaded")

	return dest, nil
}

// Decode opens a downloaded granule and extracts a named variable.
func (c *Client) Decode(path, variable string) (*grid.Array, error) {
	return c.decoder.Decode(path, variable)
}

// localName derives a filesystem-safe cache file name from a granule.
func localName(ref grid.GranuleRef) string {
	base := filepath.Base(ref.DownloadURL)
	if base == "." || base == "/" || base == "" {
		base = ref.ID
	}
	replacer := strings.NewReplacer("/", "_", ":", "_", "?", "_", "&", "_", "=", "_")
	return replacer.Replace(base)
}
