package parsing

import "time"

// ExtractedItem is one purchased item recovered from a single receipt
// line. Items are created once by the parser and never mutated.
type ExtractedItem struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      *float64 `json:"price"`
	Quantity   int      `json:"quantity"`
	Confidence float64  `json:"confidence"`
	LineNumber int      `json:"line_number"`
	RawText    string   `json:"raw_text"`
}

// ParsedReceipt is the structured result of one parse call. Optional
// fields are nil when not found; they are never fabricated.
type ParsedReceipt struct {
	Items        []ExtractedItem `json:"items"`
	Total        *float64        `json:"total"`
	Subtotal     *float64        `json:"subtotal"`
	Tax          *float64        `json:"tax"`
	Date         *time.Time      `json:"date"`
	MerchantName *string         `json:"merchant_name"`
	Confidence   float64         `json:"confidence"`
	RawText      string          `json:"raw_text"`
}

// Config tunes the extraction heuristics
type Config struct {
	// MinItemConfidence is the line-confidence floor below which a line
	// cannot produce an item
	MinItemConfidence float64
	// MinPriceConfidence is the line-confidence floor for receipt-level
	// amounts (total, subtotal, tax)
	MinPriceConfidence float64
	// CurrencySymbol is stripped from price tokens in addition to the
	// common symbols
	CurrencySymbol string
	// DateFormats are the time.Parse layouts tried against date-shaped
	// tokens, in order
	DateFormats []string
	// HeaderLines bounds the region searched for the merchant name and
	// the date
	HeaderLines int
}

// DefaultDateFormats covers the date shapes receipts actually print
var DefaultDateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"1-2-2006",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// DefaultConfig returns the documented heuristic defaults
func DefaultConfig() Config {
	return Config{
		MinItemConfidence:  0.3,
		MinPriceConfidence: 0.5,
		CurrencySymbol:     "$",
		DateFormats:        DefaultDateFormats,
		HeaderLines:        10,
	}
}
