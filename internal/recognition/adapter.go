package recognition

import "strings"

// OcrLine is the pipeline's internal unit of recognized text. Sequence
// order is reading order, top to bottom. Confidence is always in [0,1].
type OcrLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NormalizeResult converts an engine result into OcrLines. Engines differ
// in shape: some return structured lines with per-line confidence, others
// only a flat transcript with a single overall score. The flat shape is
// split on line breaks with the overall confidence assigned uniformly.
// All shape normalization happens here so downstream code sees one form.
func NormalizeResult(result *Result) []OcrLine {
	if result == nil {
		return []OcrLine{}
	}

	if len(result.Lines) > 0 {
		lines := make([]OcrLine, 0, len(result.Lines))
		for _, l := range result.Lines {
			text := strings.TrimRight(l.Text, " \t")
			if strings.TrimSpace(text) == "" {
				continue
			}
			lines = append(lines, OcrLine{
				Text:       text,
				Confidence: clampConfidence(l.Confidence),
			})
		}
		return lines
	}

	if strings.TrimSpace(result.Text) == "" {
		return []OcrLine{}
	}

	conf := clampConfidence(result.OverallConfidence)
	raw := strings.Split(strings.ReplaceAll(result.Text, "\r\n", "\n"), "\n")
	lines := make([]OcrLine, 0, len(raw))
	for _, text := range raw {
		text = strings.TrimRight(text, " \t")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, OcrLine{Text: text, Confidence: conf})
	}
	return lines
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
