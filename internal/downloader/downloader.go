// Package downloader implements resumable, hash-verified HTTP downloads for
// the Artifact Pipeline, deduplicating concurrent requests for the same
// url-target pair via internal/singleflight.
package downloader

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/singleflight"
)

// ProgressFunc is invoked as bytes stream to disk. total is 0 when the
// server did not report Content-Length.
type ProgressFunc func(bytesSoFar, total int64)

// Downloader performs resumable downloads, deduplicated per url+target.
type Downloader struct {
	client  *http.Client
	flights *singleflight.Group
	limiter *rate.Limiter
}

// Config controls the HTTP client and optional throttling.
type Config struct {
	Timeout   time.Duration
	RateBytes rate.Limit // 0 disables throttling
}

// New creates a Downloader. Timeout defaults to 30 minutes (large mod-pack
// jars can take a while on a slow connection); that default is meant to be
// overridden by the caller using infrastructure/config.DefaultTimeouts.
func New(cfg Config) *Downloader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	var limiter *rate.Limiter
	if cfg.RateBytes > 0 {
		limiter = rate.NewLimiter(cfg.RateBytes, int(cfg.RateBytes))
	}
	return &Downloader{
		client:  &http.Client{Timeout: timeout},
		flights: singleflight.New(),
		limiter: limiter,
	}
}

// DownloadWithResumption implements spec §4.4: skip if already valid,
// resume a partial file via Range when possible, stream with progress
// callbacks, and verify the expected hash on completion. Concurrent calls
// for the same descriptor's target path are deduplicated by singleflight.
func (d *Downloader) DownloadWithResumption(ctx context.Context, artifact domain.ArtifactDescriptor, onProgress ProgressFunc) error {
	_, err := d.flights.WaitOrExecute(artifact.TargetPath, func() error {
		return d.download(ctx, artifact, onProgress)
	})
	return err
}

func (d *Downloader) download(ctx context.Context, artifact domain.ArtifactDescriptor, onProgress ProgressFunc) error {
	if artifact.ExpectedHash != nil {
		if matches, _ := verifyExisting(artifact.TargetPath, artifact.ExpectedHash); matches {
			return nil
		}
	}

	partialSize, err := existingSize(artifact.TargetPath)
	if err != nil {
		return errors.Internal("stat partial download", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.URL, nil)
	if err != nil {
		return errors.Network("build request", err)
	}

	resumed := false
	if partialSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", partialSize))
		resumed = true
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Network(artifact.URL, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	startOffset := int64(0)
	if resumed && resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
		startOffset = partialSize
	} else {
		// Server ignored the Range request (or there was nothing to
		// resume); truncate and restart from zero per spec §4.4.2.
		flags |= os.O_TRUNC
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return errors.Network(artifact.URL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	out, err := os.OpenFile(artifact.TargetPath, flags, 0o644)
	if err != nil {
		return errors.Internal("open download target", err)
	}
	defer out.Close()

	total := artifact.TotalSize
	if resp.ContentLength > 0 {
		total = resp.ContentLength + startOffset
	}

	if err := d.stream(ctx, out, resp.Body, startOffset, total, onProgress); err != nil {
		return err
	}

	if artifact.ExpectedHash != nil {
		matches, err := verifyExisting(artifact.TargetPath, artifact.ExpectedHash)
		if err != nil {
			return errors.Internal("verify downloaded artifact", err)
		}
		if !matches {
			actual, _ := digestOf(artifact.TargetPath, artifact.ExpectedHash.Algorithm)
			os.Remove(artifact.TargetPath)
			return errors.IntegrityFailure(artifact.TargetPath, artifact.ExpectedHash.Hex, actual)
		}
	}

	return nil
}

func (d *Downloader) stream(ctx context.Context, out io.Writer, body io.Reader, startOffset, total int64, onProgress ProgressFunc) error {
	buf := make([]byte, 32*1024)
	written := startOffset

	for {
		if err := ctx.Err(); err != nil {
			return errors.Network("download cancelled", err)
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if d.limiter != nil {
				_ = d.limiter.WaitN(ctx, n)
			}
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return errors.Internal("write download chunk", writeErr)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errors.Network("read download body", readErr)
		}
	}
}

func existingSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func verifyExisting(path string, expected *domain.ExpectedHash) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	actual, err := digestOf(path, expected.Algorithm)
	if err != nil {
		return false, err
	}
	return actual == expected.Hex, nil
}

func digestOf(path string, algo domain.HashAlgorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var h hash.Hash
	switch algo {
	case domain.HashSHA1:
		h = sha1.New()
	default:
		h = sha256.New()
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
