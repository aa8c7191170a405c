/**
 * Recognition engines
 *
 * An Engine turns an encoded region crop into raw text. Engines are not
 * safe for concurrent use; the Pool guarantees exclusive access.
 */

package recognition

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine is one recognition-engine instance owned by the pool
type Engine interface {
	// Recognize returns the raw text found in an encoded (PNG) image.
	Recognize(ctx context.Context, image []byte, opts Options) (string, error)
	Close() error
}

// Options carries per-call engine settings
type Options struct {
	// Whitelist restricts recognized characters; empty means unrestricted.
	Whitelist string
}

// EngineFactory builds one engine instance; it is called once per pool slot
type EngineFactory func(ctx context.Context) (Engine, error)

// TesseractEngine wraps a long-lived gosseract client
type TesseractEngine struct {
	client    *gosseract.Client
	whitelist string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language    string
	TessdataDir string
	PageSegMode gosseract.PageSegMode
}

// NewTesseractEngine creates a client with dictionary correction disabled;
// game names and stat labels are not dictionary words.
func NewTesseractEngine(cfg TesseractConfig) (*TesseractEngine, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.PageSegMode == 0 {
		cfg.PageSegMode = gosseract.PSM_SINGLE_BLOCK
	}

	client := gosseract.NewClient()

	if cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataDir); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(cfg.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(cfg.PageSegMode); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	_ = client.SetVariable("preserve_interword_spaces", "1")

	return &TesseractEngine{client: client}, nil
}

// TesseractFactory returns an EngineFactory for the pool
func TesseractFactory(cfg TesseractConfig) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewTesseractEngine(cfg)
	}
}

// Recognize performs OCR on one encoded region
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}

	if opts.Whitelist != t.whitelist {
		if err := t.client.SetWhitelist(opts.Whitelist); err != nil {
			return "", fmt.Errorf("failed to set whitelist: %w", err)
		}
		t.whitelist = opts.Whitelist
	}

	if err := t.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases OCR resources
func (t *TesseractEngine) Close() error {
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}
