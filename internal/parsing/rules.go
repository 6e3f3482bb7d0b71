package parsing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Each heuristic below is an independently named rule so it can be tuned
// and tested without touching the others.

// Price bounds. Item prices above maxItemPrice are treated as misread
// barcodes, not prices; receipt totals get a wider ceiling.
const (
	maxItemPrice    = 10000.0
	maxReceiptTotal = 100000.0
)

// confusable matches digits plus the letters OCR habitually swaps for
// them: O/o for 0, I/l/| for 1, S/s for 5, B for 8
const confusable = `[0-9OoIl|SsB]`

var (
	// priceToken finds a price-shaped token: optional currency symbol,
	// digits with common OCR confusions, a dot or comma decimal
	// separator, and exactly two decimal places
	priceToken = regexp.MustCompile(`[$€£]?\s?(` + confusable + `{1,5}[.,]` + confusable + `{2})(?:\b|$)`)

	// amountToken is the wider variant used for receipt totals
	amountToken = regexp.MustCompile(`[$€£]?\s?(` + confusable + `{1,6}[.,]` + confusable + `{2})(?:\b|$)`)

	confusableReplacer = strings.NewReplacer(
		"O", "0", "o", "0",
		"I", "1", "l", "1", "|", "1",
		"S", "5", "s", "5",
		"B", "8",
	)

	hasDigit = regexp.MustCompile(`[0-9]`)
)

// Non-item markers. A line matching any of these is excluded from item
// candidacy regardless of whether it carries a price-shaped token.
var nonItemMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(sub\s?-?\s?t[o0]tal|grand\s*t[o0]tal|t[o0]tal|am[o0]unt\s*due|balance(\s*due)?|tax|vat|gst|hst)\b`),
	regexp.MustCompile(`(?i)^\s*(change|cash|credit|debit|visa|mastercard|amex|card\s*#?|payment|tender|approved|auth)\b`),
	regexp.MustCompile(`(?i)(thank\s*you|welcome\b|receipt\b|store\s*#|cashier|register|clerk|tel[:.]|phone|fax|www\.|\.com\b)`),
	regexp.MustCompile(`^\s*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\s*$`), // date-only line
}

// isNonItemLine reports whether a line is excluded from item candidacy.
// The filter takes precedence over price detection.
func isNonItemLine(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	for _, marker := range nonItemMarkers {
		if marker.MatchString(text) {
			return true
		}
	}
	return false
}

// normalizeToken maps confused characters back to digits and fixes the
// decimal separator
func normalizeToken(token string) string {
	token = strings.TrimLeft(token, "$€£ ")
	token = confusableReplacer.Replace(token)
	return strings.Replace(token, ",", ".", 1)
}

// parseToken converts a normalized token to a float, rejecting anything
// that is not a plausible positive money amount
func parseToken(token string, max float64) (float64, bool) {
	value, err := strconv.ParseFloat(normalizeToken(token), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	if value <= 0 || value > max {
		return 0, false
	}
	return value, true
}

// findPrice locates the first price-shaped token in a line and returns
// its value and the byte offset where the token starts. When multiple
// tokens are present the first wins; when the first token is not a
// plausible price (zero, negative, or above the barcode guard) the line
// yields no price at all.
func findPrice(text string) (value float64, start int, ok bool) {
	loc := priceToken.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	token := text[loc[2]:loc[3]]
	if !hasDigit.MatchString(token) {
		return 0, 0, false
	}
	v, ok := parseToken(token, maxItemPrice)
	if !ok {
		return 0, 0, false
	}
	return v, loc[0], true
}

// findAmount is findPrice with the receipt-total ceiling; used by the
// label-anchored total/subtotal/tax rules
func findAmount(text string) (float64, bool) {
	for _, loc := range amountToken.FindAllStringSubmatchIndex(text, -1) {
		token := text[loc[2]:loc[3]]
		if !hasDigit.MatchString(token) {
			continue
		}
		if v, ok := parseToken(token, maxReceiptTotal); ok {
			return v, true
		}
	}
	return 0, false
}

var (
	leadingQty = regexp.MustCompile(`^\s*(\d{1,3})\s*[xX]\s+`)
	infixAtQty = regexp.MustCompile(`(?:^|\s)(\d{1,3})\s*@`)
	labeledQty = regexp.MustCompile(`(?i)\b(?:qty|quantity)[:.]?\s*(\d{1,3})`)
)

// findQuantity recognizes "<N>x " prefixes and "<N>@" / "qty: N" /
// "quantity: N" markers; the default is 1
func findQuantity(text string) int {
	for _, pattern := range []*regexp.Regexp{leadingQty, infixAtQty, labeledQty} {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
				return n
			}
		}
	}
	return 1
}

var (
	trailingBarcode = regexp.MustCompile(`\s*\d{10,}\s*$`)
	trailingFlag    = regexp.MustCompile(`\s+[A-Za-z]$`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// cleanItemName tidies the text preceding the price token into an item
// name: barcodes, tax flags, and quantity prefixes go, whitespace is
// collapsed. Returns "" when nothing plausible remains.
func cleanItemName(raw string) string {
	name := strings.TrimSpace(raw)
	name = leadingQty.ReplaceAllString(name, "")
	name = trailingBarcode.ReplaceAllString(name, "")
	name = trailingFlag.ReplaceAllString(name, "")
	name = strings.TrimRight(name, " \t-_.$€£@#*")
	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 2 {
		return ""
	}
	return name
}

var (
	totalLabel    = regexp.MustCompile(`(?i)\b(grand\s*t[o0]tal|t[o0]tal|am[o0]unt\s*due|balance(\s*due)?)\b`)
	subtotalLabel = regexp.MustCompile(`(?i)\bsub\s?-?\s?t[o0]tal\b`)
	taxLabel      = regexp.MustCompile(`(?i)\b(tax|vat|gst|hst)\b`)
)

// HasTotalLabel reports whether a line carries a total-style label.
// Confidence scoring uses it to attribute an extracted total back to the
// line it came from, with the same pattern the extraction used.
func HasTotalLabel(text string) bool {
	return totalLabel.MatchString(text)
}

var dateCandidates = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b[A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+[A-Za-z]{3,9}\.?\s+\d{4}\b`),
}

// HasDateToken reports whether a line contains a date-shaped token; the
// counterpart of HasTotalLabel for the date field
func HasDateToken(text string) bool {
	for _, pattern := range dateCandidates {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

var (
	merchantBoilerplate = regexp.MustCompile(`(?i)(receipt\b|thank\s*you|welcome\b)`)
	longDigitRun        = regexp.MustCompile(`\d{7,}`)
	merchantKeyword     = regexp.MustCompile(`(?i)\b(store|shop|market|mart|inc|corp|co|llc|ltd)\b`)
)

// isTitleOrUpper reports whether a line is formatted the way merchants
// print their name: all caps, or each word capitalized
func isTitleOrUpper(text string) bool {
	text = strings.TrimSpace(text)
	letters := 0
	lower := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsLower(r) {
				lower++
			}
		}
	}
	if letters < 3 {
		return false
	}
	if lower == 0 {
		return true
	}
	for _, word := range strings.Fields(text) {
		r := []rune(word)[0]
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
