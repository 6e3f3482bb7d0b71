// Package tesseract wraps the local Tesseract engine behind the
// recognition.Engine interface. It lives in its own package so the cgo
// dependency stays out of the pure-Go recognition types.
package tesseract

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/receiptscan/receipt-scanner/internal/recognition"
)

// Engine implements recognition.Engine using a gosseract client. The
// client is created lazily and reused across calls; gosseract clients are
// not safe for concurrent use, so calls are serialized.
type Engine struct {
	language string

	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Tesseract engine
func New(language string) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{language: language}
}

// Recognize runs Tesseract over the image and returns line-level text with
// per-line confidence. When line boxes are unavailable it falls back to the
// flat transcript plus the document confidence, which the normalization
// adapter handles.
func (e *Engine) Recognize(ctx context.Context, imageData []byte, opts recognition.Options) (*recognition.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	client, err := e.ensureClient()
	if err != nil {
		return nil, err
	}

	lang := opts.Language
	if lang == "" {
		lang = e.language
	}
	if err := client.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("setting language: %w", err)
	}

	if opts.PageSegmentationMode != 0 {
		client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegmentationMode))
	} else {
		// Receipts are a single column of text
		client.SetPageSegMode(gosseract.PSM_SINGLE_COLUMN)
	}

	if err := client.SetImageFromBytes(imageData); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err == nil && len(boxes) > 0 {
		lines := make([]recognition.Line, 0, len(boxes))
		for _, box := range boxes {
			lines = append(lines, recognition.Line{
				Text:       box.Word,
				Confidence: box.Confidence / 100.0,
			})
		}
		return &recognition.Result{Lines: lines}, nil
	}

	// Line analysis failed; fall back to the flat transcript
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	return &recognition.Result{
		Text:              text,
		OverallConfidence: 0.7,
	}, nil
}

// Close releases the Tesseract client
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

func (e *Engine) ensureClient() (*gosseract.Client, error) {
	if e.client != nil {
		return e.client, nil
	}
	client := gosseract.NewClient()
	if client == nil {
		return nil, fmt.Errorf("creating tesseract client")
	}
	e.client = client
	return client, nil
}
