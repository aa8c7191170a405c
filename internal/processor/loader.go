package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
	"github.com/wuwabuilds/scan-worker/internal/logging"
)

// DefaultMaxImageSize bounds inline and downloaded screenshots
const DefaultMaxImageSize = 32 << 20

const (
	maxDownloadAttempts = 4
	initialBackoff      = 500 * time.Millisecond
	maxBackoff          = 8 * time.Second
)

// loader resolves the image bytes of a request
type loader struct {
	client  *http.Client
	maxSize int64
	logger  *logging.Logger
}

func newLoader(client *http.Client, maxSize int64, logger *logging.Logger) *loader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}
	if logger == nil {
		logger = logging.NewLogger("loader")
	}
	return &loader{client: client, maxSize: maxSize, logger: logger}
}

func (l *loader) load(ctx context.Context, jobID string, req *ProcessRequest) ([]byte, error) {
	if len(req.Data) > 0 {
		if int64(len(req.Data)) > l.maxSize {
			return nil, werrors.NewInvalidImageError(jobID,
				fmt.Errorf("image size exceeds maximum: %d > %d bytes", len(req.Data), l.maxSize))
		}
		return req.Data, nil
	}

	if req.ImageURL != "" {
		return l.download(ctx, jobID, req.ImageURL)
	}

	return nil, werrors.NewInvalidImageError(jobID, fmt.Errorf("no image source provided (data or URL)"))
}

// download fetches url with exponential backoff. Client errors (4xx) and
// oversize bodies are not retried.
func (l *loader) download(ctx context.Context, jobID, url string) ([]byte, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		data, retry, err := l.fetch(ctx, jobID, url)
		if err == nil {
			l.logger.Debug("Image downloaded", "job", jobID, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		if !retry {
			return nil, err
		}

		lastErr = err
		l.logger.Warn("Download attempt failed", "job", jobID, "attempt", attempt, "error", err)

		if attempt == maxDownloadAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
		backoff = min(backoff*2, maxBackoff)
	}

	return nil, fmt.Errorf("failed to download image after %d attempts: %w", maxDownloadAttempts, lastErr)
}

func (l *loader) fetch(ctx context.Context, jobID, url string) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, werrors.NewInvalidImageError(jobID, fmt.Errorf("invalid image URL: %w", err))
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, false, werrors.NewInvalidImageError(jobID, fmt.Errorf("HTTP %d fetching image", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, true, fmt.Errorf("HTTP %d fetching image", resp.StatusCode)
	}

	if resp.ContentLength > l.maxSize {
		return nil, false, werrors.NewInvalidImageError(jobID,
			fmt.Errorf("image size exceeds maximum: %d > %d bytes", resp.ContentLength, l.maxSize))
	}

	// Read one byte past the limit to detect oversize bodies without a length.
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxSize+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(data)) > l.maxSize {
		return nil, false, werrors.NewInvalidImageError(jobID,
			fmt.Errorf("image size exceeds maximum of %d bytes", l.maxSize))
	}
	return data, false, nil
}

// detectImageType returns the MIME type of a decodable screenshot format
// from its magic bytes, or "" for anything else.
func detectImageType(data []byte) string {
	switch {
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return ""
}
