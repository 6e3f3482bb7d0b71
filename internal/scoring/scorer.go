// Package scoring turns a parsed receipt into an explainable confidence
// report for the human-review step. Unlike the parser's single scalar,
// the analysis breaks the estimate down per signal and per field so a
// reviewer can see what to distrust.
package scoring

import (
	"strings"

	"github.com/receiptscan/receipt-scanner/internal/parsing"
	"github.com/receiptscan/receipt-scanner/internal/recognition"
)

// Status classifies the overall confidence
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"
)

// Level classifies a single field's confidence
type Level string

const (
	LevelHigh    Level = "high"
	LevelMedium  Level = "medium"
	LevelLow     Level = "low"
	LevelVeryLow Level = "very_low"
)

// lowConfidenceCutoff marks an OCR line as unreliable
const lowConfidenceCutoff = 0.6

// Weights holds the blend weights. These are heuristic tuning values;
// the tests pin the band behavior, not the numbers.
type Weights struct {
	OCR        float64
	Parsing    float64
	Complete   float64
	TotalPart  float64
	DatePart   float64
	MerchPart  float64
	ItemsPart  float64
}

// DefaultWeights returns the documented defaults: overall 0.4/0.3/0.3,
// completeness 0.3/0.2/0.2/0.3
func DefaultWeights() Weights {
	return Weights{
		OCR:       0.4,
		Parsing:   0.3,
		Complete:  0.3,
		TotalPart: 0.3,
		DatePart:  0.2,
		MerchPart: 0.2,
		ItemsPart: 0.3,
	}
}

// OCRQuality summarizes how trustworthy the recognition step was
type OCRQuality struct {
	MeanConfidence     float64 `json:"mean_confidence"`
	LowConfidenceLines int     `json:"low_confidence_lines"`
	Score              float64 `json:"score"`
}

// ParsingQuality summarizes how much structure the parser recovered
type ParsingQuality struct {
	ItemCount          int     `json:"item_count"`
	PricedItemFraction float64 `json:"priced_item_fraction"`
	MeanItemConfidence float64 `json:"mean_item_confidence"`
	Score              float64 `json:"score"`
}

// FieldConfidence reports one receipt-level field
type FieldConfidence struct {
	Field      string  `json:"field"`
	Present    bool    `json:"present"`
	Confidence float64 `json:"confidence"`
	Level      Level   `json:"level"`
}

// Analysis is the full confidence report
type Analysis struct {
	Overall         float64           `json:"overall"`
	Status          Status            `json:"status"`
	Fields          []FieldConfidence `json:"fields"`
	OCRQuality      OCRQuality        `json:"ocr_quality"`
	ParsingQuality  ParsingQuality    `json:"parsing_quality"`
	Completeness    float64           `json:"completeness"`
	Recommendations []string          `json:"recommendations"`
}

// Scorer produces Analyses. Safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer with the given weights
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Analyze scores a parsed receipt against its source lines. It never
// fails: scoring exists to quantify imperfect extraction, not reject it.
func (s *Scorer) Analyze(receipt *parsing.ParsedReceipt, lines []recognition.OcrLine) *Analysis {
	if receipt == nil {
		receipt = &parsing.ParsedReceipt{Items: []parsing.ExtractedItem{}}
	}

	ocr := s.scoreOCR(lines)
	parsed := s.scoreParsing(receipt)
	completeness := s.scoreCompleteness(receipt)

	overall := s.weights.OCR*ocr.Score + s.weights.Parsing*parsed.Score + s.weights.Complete*completeness
	overall = clamp(overall)

	analysis := &Analysis{
		Overall:        overall,
		Status:         StatusFor(overall),
		Fields:         s.scoreFields(receipt, lines, ocr),
		OCRQuality:     ocr,
		ParsingQuality: parsed,
		Completeness:   completeness,
	}
	analysis.Recommendations = s.recommend(analysis, receipt)
	return analysis
}

// StatusFor maps an overall score to its band
func StatusFor(overall float64) Status {
	switch {
	case overall >= 0.9:
		return StatusExcellent
	case overall >= 0.75:
		return StatusGood
	case overall >= 0.6:
		return StatusFair
	default:
		return StatusPoor
	}
}

// LevelFor maps a field confidence to its band
func LevelFor(confidence float64) Level {
	switch {
	case confidence >= 0.85:
		return LevelHigh
	case confidence >= 0.70:
		return LevelMedium
	case confidence >= 0.50:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// MeetsQualityThreshold is the single pass/fail check for callers that
// don't want to interpret the breakdown; 0.5 is the conventional floor
func MeetsQualityThreshold(analysis *Analysis, threshold float64) bool {
	if analysis == nil {
		return false
	}
	return analysis.Overall >= threshold
}

func (s *Scorer) scoreOCR(lines []recognition.OcrLine) OCRQuality {
	q := OCRQuality{}
	if len(lines) == 0 {
		return q
	}

	var sum float64
	for _, line := range lines {
		sum += line.Confidence
		if line.Confidence < lowConfidenceCutoff {
			q.LowConfidenceLines++
		}
	}
	q.MeanConfidence = sum / float64(len(lines))

	// Mean confidence, penalized by the share of unreliable lines so a
	// few confident lines can't mask a mostly-garbled scan
	lowFraction := float64(q.LowConfidenceLines) / float64(len(lines))
	q.Score = clamp(q.MeanConfidence * (1 - 0.3*lowFraction))
	return q
}

func (s *Scorer) scoreParsing(receipt *parsing.ParsedReceipt) ParsingQuality {
	q := ParsingQuality{ItemCount: len(receipt.Items)}
	if q.ItemCount == 0 {
		return q
	}

	priced := 0
	var confSum float64
	for _, item := range receipt.Items {
		if item.Price != nil {
			priced++
		}
		confSum += item.Confidence
	}
	q.PricedItemFraction = float64(priced) / float64(q.ItemCount)
	q.MeanItemConfidence = confSum / float64(q.ItemCount)

	countSignal := float64(q.ItemCount) / 5.0
	if countSignal > 1 {
		countSignal = 1
	}
	q.Score = clamp(0.4*countSignal + 0.3*q.PricedItemFraction + 0.3*q.MeanItemConfidence)
	return q
}

func (s *Scorer) scoreCompleteness(receipt *parsing.ParsedReceipt) float64 {
	var score float64
	if receipt.Total != nil {
		score += s.weights.TotalPart
	}
	if receipt.Date != nil {
		score += s.weights.DatePart
	}
	if receipt.MerchantName != nil {
		score += s.weights.MerchPart
	}
	if len(receipt.Items) > 0 {
		score += s.weights.ItemsPart
	}
	return clamp(score)
}

// scoreFields derives a per-field confidence: absent fields score 0,
// present fields inherit the confidence of the source line that carries
// the value, falling back to the mean OCR confidence
func (s *Scorer) scoreFields(receipt *parsing.ParsedReceipt, lines []recognition.OcrLine, ocr OCRQuality) []FieldConfidence {
	fields := make([]FieldConfidence, 0, 4)

	merchantConf := 0.0
	if receipt.MerchantName != nil {
		merchantConf = lineConfidenceFor(lines, *receipt.MerchantName, ocr.MeanConfidence)
	}
	fields = append(fields, newField("merchant", receipt.MerchantName != nil, merchantConf))

	totalConf := 0.0
	if receipt.Total != nil {
		// Bottom-up, mirroring the extraction's bottom-most-wins rule
		totalConf = matchedLineConfidence(lines, parsing.HasTotalLabel, ocr.MeanConfidence, true)
	}
	fields = append(fields, newField("total", receipt.Total != nil, totalConf))

	dateConf := 0.0
	if receipt.Date != nil {
		dateConf = matchedLineConfidence(lines, parsing.HasDateToken, ocr.MeanConfidence, false)
	}
	fields = append(fields, newField("date", receipt.Date != nil, dateConf))

	itemsConf := 0.0
	if len(receipt.Items) > 0 {
		var sum float64
		for _, item := range receipt.Items {
			sum += item.Confidence
		}
		itemsConf = sum / float64(len(receipt.Items))
	}
	fields = append(fields, newField("items", len(receipt.Items) > 0, itemsConf))

	return fields
}

func newField(name string, present bool, confidence float64) FieldConfidence {
	confidence = clamp(confidence)
	if !present {
		confidence = 0
	}
	return FieldConfidence{
		Field:      name,
		Present:    present,
		Confidence: confidence,
		Level:      LevelFor(confidence),
	}
}

func lineConfidenceFor(lines []recognition.OcrLine, value string, fallback float64) float64 {
	needle := strings.ToLower(value)
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line.Text), needle) {
			return line.Confidence
		}
	}
	return fallback
}

// matchedLineConfidence returns the confidence of the line a field was
// extracted from, found by re-applying the extraction's own matcher.
// Falls back when no line matches, e.g. when the lines are unavailable.
func matchedLineConfidence(lines []recognition.OcrLine, match func(string) bool, fallback float64, bottomUp bool) float64 {
	if bottomUp {
		for i := len(lines) - 1; i >= 0; i-- {
			if match(lines[i].Text) {
				return lines[i].Confidence
			}
		}
		return fallback
	}
	for _, line := range lines {
		if match(line.Text) {
			return line.Confidence
		}
	}
	return fallback
}

// recommend generates deterministic guidance from specific failing
// sub-scores; the strings are fixed so downstream tooling can match them
func (s *Scorer) recommend(analysis *Analysis, receipt *parsing.ParsedReceipt) []string {
	recs := []string{}

	if analysis.OCRQuality.Score < 0.6 {
		recs = append(recs, "Text recognition quality is low; retake the photo with better lighting and focus.")
	}
	if analysis.OCRQuality.LowConfidenceLines > 0 &&
		analysis.OCRQuality.LowConfidenceLines*2 >= analysis.ParsingQuality.ItemCount+analysis.OCRQuality.LowConfidenceLines {
		recs = append(recs, "Many lines were recognized with low confidence; review the extracted text carefully.")
	}
	if analysis.ParsingQuality.ItemCount == 0 {
		recs = append(recs, "No line items were found; verify the receipt lists individual purchases.")
	} else if analysis.ParsingQuality.PricedItemFraction < 0.5 {
		recs = append(recs, "Most items are missing prices; check the item list against the receipt.")
	}
	if receipt.Total == nil {
		recs = append(recs, "No total amount was found; enter it manually.")
	}
	if receipt.Date == nil {
		recs = append(recs, "No purchase date was found; enter it manually.")
	}
	if receipt.MerchantName == nil {
		recs = append(recs, "No merchant name was found; enter it manually.")
	}

	return recs
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
