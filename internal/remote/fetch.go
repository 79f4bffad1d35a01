// Package remote downloads model bundle artifacts over HTTP before the
// service constructs its registry.
package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// FetchBundle downloads a bundle artifact to dest. The write is atomic:
// the body lands in a temp file next to dest and is renamed into place
// only after the download completes, so a half-written artifact never
// shadows a good one.
func FetchBundle(url, dest string, timeout time.Duration) error {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}
	client.SetRetryCount(3).SetRetryWaitTime(500 * time.Millisecond)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	resp, err := client.R().Get(url)
	if err != nil {
		return fmt.Errorf("bundle download failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("bundle download failed: status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return fmt.Errorf("bundle download returned an empty body")
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".bundle-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}

	log.Info().Str("url", url).Str("dest", dest).Int("bytes", len(body)).Msg("Model bundle fetched")
	return nil
}
