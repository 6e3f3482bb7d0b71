package recognition

import "context"

// Options controls a recognition call
type Options struct {
	// Language is the engine language hint, e.g. "eng"
	Language string
	// PageSegmentationMode selects the engine's layout analysis mode.
	// Zero means the engine default.
	PageSegmentationMode int
}

// Line is one unit of recognized text as the engine emitted it
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result is the raw output of a recognition engine. Engines that do
// line-level analysis populate Lines; engines that only produce a full
// transcript populate Text and OverallConfidence. NormalizeResult turns
// either shape into OcrLines.
type Result struct {
	Lines             []Line  `json:"lines,omitempty"`
	Text              string  `json:"text,omitempty"`
	OverallConfidence float64 `json:"overall_confidence"`
}

// Engine defines the interface for text recognition backends
type Engine interface {
	// Recognize extracts text from a PNG image
	Recognize(ctx context.Context, imageData []byte, opts Options) (*Result, error)
	// Close releases engine resources
	Close() error
}
