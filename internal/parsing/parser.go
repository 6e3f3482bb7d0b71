package parsing

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/receiptscan/receipt-scanner/internal/recognition"
)

// Receipt-confidence blend weights. Heuristic tuning values; the tests
// pin behavior at the boundaries rather than the exact numbers.
var (
	OCRWeight       = 0.4
	ItemCountWeight = 0.3
	ItemConfWeight  = 0.3
)

// itemCountTarget is the item count at which the item-count confidence
// signal saturates
const itemCountTarget = 5

// merchantConfidenceFloor is the minimum line confidence for a merchant
// candidate
const merchantConfidenceFloor = 0.4

// Parser turns recognized text lines into a structured receipt. Noisy
// input is the expected case, not an error case: ParseReceipt always
// returns a result, degrading to empty fields rather than failing.
type Parser struct {
	config Config
}

// NewParser creates a Parser with the given config. Zero-valued fields
// fall back to the defaults.
func NewParser(config Config) *Parser {
	defaults := DefaultConfig()
	if config.MinItemConfidence == 0 {
		config.MinItemConfidence = defaults.MinItemConfidence
	}
	if config.MinPriceConfidence == 0 {
		config.MinPriceConfidence = defaults.MinPriceConfidence
	}
	if config.CurrencySymbol == "" {
		config.CurrencySymbol = defaults.CurrencySymbol
	}
	if len(config.DateFormats) == 0 {
		config.DateFormats = defaults.DateFormats
	}
	if config.HeaderLines == 0 {
		config.HeaderLines = defaults.HeaderLines
	}
	return &Parser{config: config}
}

// ParseReceipt extracts items and receipt-level fields from the ordered
// OCR lines. The sub-extractions are independent: a failure to find one
// field never affects the others.
func (p *Parser) ParseReceipt(lines []recognition.OcrLine) *ParsedReceipt {
	receipt := &ParsedReceipt{
		Items:   []ExtractedItem{},
		RawText: joinRawText(lines),
	}
	if len(lines) == 0 {
		return receipt
	}

	receipt.Items = p.extractItems(lines)
	receipt.Total = p.extractTotal(lines)
	receipt.Subtotal = p.extractLabeled(lines, subtotalLabel)
	receipt.Tax = p.extractLabeled(lines, taxLabel)
	receipt.Date = p.extractDate(lines)
	receipt.MerchantName = p.extractMerchant(lines)
	receipt.Confidence = p.receiptConfidence(lines, receipt.Items)
	return receipt
}

// extractItems walks every line, applying the item rules in order:
// non-item filter first (it wins over price detection), then price,
// quantity, and name extraction, then the confidence floor.
func (p *Parser) extractItems(lines []recognition.OcrLine) []ExtractedItem {
	items := []ExtractedItem{}
	for i, line := range lines {
		if isNonItemLine(line.Text) {
			continue
		}

		price, priceStart, ok := findPrice(line.Text)
		if !ok {
			continue
		}

		name := cleanItemName(line.Text[:priceStart])
		if name == "" {
			continue
		}

		if line.Confidence < p.config.MinItemConfidence {
			continue
		}

		priceValue := price
		items = append(items, ExtractedItem{
			ID:         fmt.Sprintf("item-%d", i),
			Name:       name,
			Price:      &priceValue,
			Quantity:   findQuantity(line.Text),
			Confidence: line.Confidence,
			LineNumber: i,
			RawText:    line.Text,
		})
	}
	return items
}

// extractTotal scans from the last line backward and accepts the first
// plausible labeled amount: totals trail the receipt, so the bottom-most
// occurrence wins over earlier ones
func (p *Parser) extractTotal(lines []recognition.OcrLine) *float64 {
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if subtotalLabel.MatchString(line.Text) || !totalLabel.MatchString(line.Text) {
			continue
		}
		if line.Confidence < p.config.MinPriceConfidence {
			continue
		}
		if value, ok := findAmount(line.Text); ok {
			return &value
		}
	}
	return nil
}

// extractLabeled returns the first amount on a line matching the label,
// scanning top-down
func (p *Parser) extractLabeled(lines []recognition.OcrLine, label *regexp.Regexp) *float64 {
	for _, line := range lines {
		if !label.MatchString(line.Text) {
			continue
		}
		if line.Confidence < p.config.MinPriceConfidence {
			continue
		}
		if value, ok := findAmount(line.Text); ok {
			return &value
		}
	}
	return nil
}

// extractDate searches the header region for a date-shaped token and
// accepts the first that parses and falls inside the sanity window: no
// more than five years past, no more than one year future
func (p *Parser) extractDate(lines []recognition.OcrLine) *time.Time {
	now := time.Now()
	earliest := now.AddDate(-5, 0, 0)
	latest := now.AddDate(1, 0, 0)

	limit := p.config.HeaderLines
	if limit > len(lines) {
		limit = len(lines)
	}

	for i := 0; i < limit; i++ {
		for _, pattern := range dateCandidates {
			candidate := pattern.FindString(lines[i].Text)
			if candidate == "" {
				continue
			}
			for _, layout := range p.config.DateFormats {
				parsed, err := time.Parse(layout, candidate)
				if err != nil {
					continue
				}
				if parsed.Before(earliest) || parsed.After(latest) {
					continue
				}
				return &parsed
			}
		}
	}
	return nil
}

// extractMerchant scores header-region lines and returns the best
// candidate. Lines carrying prices, long digit runs, or boilerplate are
// excluded; the rest earn points for merchant keywords, early position,
// name-like formatting, and plausible length.
func (p *Parser) extractMerchant(lines []recognition.OcrLine) *string {
	limit := p.config.HeaderLines
	if limit > len(lines) {
		limit = len(lines)
	}

	var best *string
	bestScore := 0.0

	for i := 0; i < limit; i++ {
		line := lines[i]
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		if line.Confidence < merchantConfidenceFloor {
			continue
		}
		if _, _, hasPrice := findPrice(text); hasPrice {
			continue
		}
		if longDigitRun.MatchString(text) || merchantBoilerplate.MatchString(text) {
			continue
		}

		score := line.Confidence
		if merchantKeyword.MatchString(text) {
			score += 0.2
		}
		score += float64(limit-i) / float64(limit) * 0.15
		if isTitleOrUpper(text) {
			score += 0.1
		}
		if n := len([]rune(text)); n >= 5 && n <= 30 {
			score += 0.1
		}

		if score > bestScore {
			name := text
			best = &name
			bestScore = score
		}
	}
	return best
}

// receiptConfidence blends mean OCR confidence, an item-count signal
// saturating at itemCountTarget, and mean per-item confidence
func (p *Parser) receiptConfidence(lines []recognition.OcrLine, items []ExtractedItem) float64 {
	if len(lines) == 0 {
		return 0
	}

	var lineSum float64
	for _, line := range lines {
		lineSum += line.Confidence
	}
	meanLine := lineSum / float64(len(lines))

	countConf := float64(len(items)) / float64(itemCountTarget)
	if countConf > 1 {
		countConf = 1
	}

	meanItem := 0.0
	if len(items) > 0 {
		var itemSum float64
		for _, item := range items {
			itemSum += item.Confidence
		}
		meanItem = itemSum / float64(len(items))
	}

	conf := OCRWeight*meanLine + ItemCountWeight*countConf + ItemConfWeight*meanItem
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func joinRawText(lines []recognition.OcrLine) string {
	parts := make([]string, len(lines))
	for i, line := range lines {
		parts[i] = line.Text
	}
	return strings.Join(parts, "\n")
}
