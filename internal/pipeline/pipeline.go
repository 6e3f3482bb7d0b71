// Package pipeline wires the scan stages together: input normalization,
// quality validation, preprocessing, recognition, parsing, and scoring.
// It owns the staged error classification so transport layers can map
// failures to the right response without inspecting stage internals.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/receiptscan/receipt-scanner/internal/imagequality"
	"github.com/receiptscan/receipt-scanner/internal/parsing"
	"github.com/receiptscan/receipt-scanner/internal/preprocess"
	"github.com/receiptscan/receipt-scanner/internal/recognition"
	"github.com/receiptscan/receipt-scanner/internal/scoring"
)

// Stage-classified sentinels. Process wraps every failure in exactly one
// of these.
var (
	// ErrInputValidation marks unreadable or unsupported input
	ErrInputValidation = errors.New("input validation failed")
	// ErrImageQuality marks input that decoded fine but is not scannable
	ErrImageQuality = errors.New("image quality check failed")
	// ErrEngine marks a recognition backend failure
	ErrEngine = errors.New("recognition engine failed")
)

// Config tunes the pipeline stages
type Config struct {
	Quality            imagequality.Config
	Parsing            parsing.Config
	PreprocessingLevel preprocess.Level
	Language           string
	// SkipValidation bypasses the quality gate; preprocessing and
	// recognition still run
	SkipValidation bool
}

// DefaultConfig returns the stage defaults
func DefaultConfig() Config {
	return Config{
		Quality:            imagequality.DefaultConfig(),
		Parsing:            parsing.DefaultConfig(),
		PreprocessingLevel: preprocess.LevelStandard,
		Language:           "eng",
	}
}

// ScanResult is the full outcome of one scan
type ScanResult struct {
	Receipt       *parsing.ParsedReceipt `json:"receipt"`
	Analysis      *scoring.Analysis      `json:"analysis"`
	Lines         []recognition.OcrLine  `json:"lines"`
	Quality       *imagequality.Result   `json:"quality,omitempty"`
	Preprocessing []string               `json:"preprocessing"`
	Converted     bool                   `json:"converted"`
	Duration      time.Duration          `json:"duration_ns"`
}

// Pipeline runs scans. Safe for concurrent use; recognition calls are
// serialized because engine backends hold per-client native state.
type Pipeline struct {
	config    Config
	validator *imagequality.Validator
	parser    *parsing.Parser
	scorer    *scoring.Scorer
	engine    recognition.Engine

	mu sync.Mutex
}

// New creates a Pipeline around the given recognition engine
func New(engine recognition.Engine, config Config) *Pipeline {
	if config.PreprocessingLevel == "" {
		config.PreprocessingLevel = preprocess.LevelStandard
	}
	if config.Language == "" {
		config.Language = "eng"
	}
	if config.Quality == (imagequality.Config{}) {
		config.Quality = imagequality.DefaultConfig()
	}
	return &Pipeline{
		config:    config,
		validator: imagequality.NewValidator(config.Quality),
		parser:    parsing.NewParser(config.Parsing),
		scorer:    scoring.NewScorer(scoring.DefaultWeights()),
		engine:    engine,
	}
}

// Process runs the full scan over one uploaded file. The contentType hint
// guides format conversion; pass "" to sniff. Stage failures short-circuit
// with a classified error, but a successfully recognized receipt never
// fails on parse or score, however noisy the text. A quality-gate failure
// returns the partial result carrying the validation report alongside the
// error so callers can surface the specific problems.
func (p *Pipeline) Process(ctx context.Context, data []byte, contentType string) (*ScanResult, error) {
	start := time.Now()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInputValidation)
	}

	pngData, converted, err := recognition.PrepareImage(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputValidation, err)
	}

	result := &ScanResult{Converted: converted}

	if !p.config.SkipValidation {
		quality := p.validator.Validate(pngData)
		result.Quality = &quality
		if !quality.IsValid {
			return result, fmt.Errorf("%w: %v", ErrImageQuality, p.validator.ValidateOrFail(pngData))
		}
		for _, warning := range quality.Warnings {
			slog.Warn("Image quality warning", "warning", warning)
		}
	}

	processed, err := preprocess.ProcessLevel(pngData, p.config.PreprocessingLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: preprocessing: %v", ErrInputValidation, err)
	}
	result.Preprocessing = processed.Applied

	engineResult, err := p.recognize(ctx, processed.Data)
	if err != nil {
		slog.Error("Recognition failed",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrEngine, err)
	}

	result.Lines = recognition.NormalizeResult(engineResult)
	result.Receipt = p.parser.ParseReceipt(result.Lines)
	result.Analysis = p.scorer.Analyze(result.Receipt, result.Lines)
	result.Duration = time.Since(start)

	slog.Debug("Scan complete",
		"lines", len(result.Lines),
		"items", len(result.Receipt.Items),
		"confidence", result.Analysis.Overall,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) recognize(ctx context.Context, pngData []byte) (*recognition.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.engine.Recognize(ctx, pngData, recognition.Options{
		Language: p.config.Language,
	})
}

// Close releases the recognition engine
func (p *Pipeline) Close() error {
	return p.engine.Close()
}
