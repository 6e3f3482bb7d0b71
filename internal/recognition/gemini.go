package recognition

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks the model for a verbatim transcript rather than
// interpreted data; all interpretation happens in the parsing engine so the
// results stay deterministic and explainable.
const transcribePrompt = `Transcribe ALL text visible in this receipt image, exactly as printed.

Rules:
- One receipt line per output line, top to bottom
- Preserve the original spelling, casing, numbers and spacing
- Do not correct, summarize, translate, or interpret anything
- Do not add any commentary, labels, or markdown
- Output plain text only`

// Gemini implements Engine using Google Gemini vision. It returns a flat
// transcript with one overall confidence; the normalization adapter splits
// it into lines.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini engine
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	var temperature float32 = 0
	model.Temperature = &temperature

	return &Gemini{client: client, model: model}, nil
}

// Recognize transcribes the receipt image
func (g *Gemini) Recognize(ctx context.Context, imageData []byte, opts Options) (*Result, error) {
	parts := []genai.Part{
		genai.ImageData("png", imageData),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating transcript: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	text := strings.TrimSpace(b.String())
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	return &Result{
		Text:              text,
		OverallConfidence: transcriptConfidence(text),
	}, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// transcriptConfidence estimates transcript quality from the text itself,
// since the model reports no recognition confidence. Scores start at a base
// and earn credit for volume and a plausible letter/symbol mix, capped
// below 1 because the estimate is indirect.
func transcriptConfidence(text string) float64 {
	if text == "" {
		return 0
	}

	confidence := 0.5

	words := strings.Fields(text)
	if len(words) >= 10 {
		confidence += 0.1
	}
	if len(words) >= 40 {
		confidence += 0.05
	}

	alpha := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			alpha++
		}
	}
	ratio := float64(alpha) / float64(len(text))
	if ratio > 0.5 && ratio < 0.95 {
		confidence += 0.15
	}

	if confidence > 0.85 {
		confidence = 0.85
	}
	return confidence
}
