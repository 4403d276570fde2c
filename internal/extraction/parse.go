package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Confidence tiers for AI-sourced fields. A value parsed from a well-typed
// JSON value is trusted more than one coerced out of a loosely-typed string
// (e.g. "$12.50").
const (
	confidenceTyped   = 1.0
	confidenceCoerced = 0.6
)

// dateLayouts are tried in order when the response date is not already ISO.
var dateLayouts = []string{
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// currencySymbols maps common symbols to ISO codes for coerced currency values.
var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"₹": "INR",
	"¥": "JPY",
}

// ParseResponse parses the raw extraction service text into a candidate with
// source=ai for every field it can locate. The input may carry surrounding
// prose, markdown fences, or common JSON defects; a strict parse is attempted
// first, then a repaired one. ErrNoStructure is returned when no structured
// region exists at all.
func ParseResponse(text string) (*Candidate, error) {
	region, ok := structuredRegion(text)
	if !ok {
		return nil, ErrNoStructure
	}

	if !gjson.Valid(region) {
		region = repairJSON(region)
		if !gjson.Valid(region) {
			return nil, ErrNoStructure
		}
	}

	c := NewCandidate()
	root := gjson.Parse(region)

	if res := root.Get("merchant"); res.Exists() && res.Type == gjson.String && strings.TrimSpace(res.String()) != "" {
		c.Merchant.Set(strings.TrimSpace(res.String()), SourceAI, confidenceTyped)
	}

	if res := root.Get("date"); res.Exists() && res.Type == gjson.String {
		if iso, confidence, ok := normalizeDate(res.String()); ok {
			c.Date.Set(iso, SourceAI, confidence)
		}
	}

	if amount, confidence, ok := amountField(root.Get("total")); ok {
		c.Total.Set(amount, SourceAI, confidence)
	}

	if res := root.Get("currency"); res.Exists() && res.Type == gjson.String {
		if code, confidence, ok := normalizeCurrency(res.String()); ok {
			c.Currency.Set(code, SourceAI, confidence)
		}
	}

	if res := root.Get("category"); res.Exists() && res.Type == gjson.String && strings.TrimSpace(res.String()) != "" {
		c.Category.Set(strings.TrimSpace(res.String()), SourceAI, confidenceTyped)
	}

	if items, confidence, ok := lineItemsField(root); ok {
		c.LineItems.Set(items, SourceAI, confidence)
	}

	if amount, confidence, ok := taxField(root); ok {
		c.Tax.Set(amount, SourceAI, confidence)
	}

	if amount, confidence, ok := amountField(root.Get("discount")); ok {
		c.Discount.Set(amount, SourceAI, confidence)
	}

	return c, nil
}

// structuredRegion locates the outermost balanced JSON object in the text,
// tolerating markdown fences, surrounding prose, and truncated output.
func structuredRegion(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}

	// Walk the braces, skipping string literals, to find the matching close.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// Unbalanced (truncated output): take everything up to the last close
	// brace and let the repair pass have a go.
	end := strings.LastIndex(text, "}")
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// repairJSON corrects the defects models most often produce: single-quoted
// strings, unquoted keys, and trailing commas.
func repairJSON(s string) string {
	if !strings.Contains(s, `"`) && strings.Contains(s, "'") {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = trailingCommaRe.ReplaceAllString(s, `$1`)
	return s
}

// amountField extracts a decimal amount from a gjson result. Well-typed
// numbers get full confidence; strings like "$12.50" are coerced at reduced
// confidence. Zero-valued results are ignored when they came from null.
func amountField(res gjson.Result) (decimal.Decimal, float64, bool) {
	switch res.Type {
	case gjson.Number:
		amount, err := decimal.NewFromString(res.Raw)
		if err != nil {
			return decimal.Zero, 0, false
		}
		return amount, confidenceTyped, true
	case gjson.String:
		amount, err := parseMoney(res.String())
		if err != nil {
			return decimal.Zero, 0, false
		}
		return amount, confidenceCoerced, true
	default:
		return decimal.Zero, 0, false
	}
}

var moneyCleanRe = regexp.MustCompile(`[^0-9.\-]`)

// parseMoney strips currency symbols and thousands separators from a
// loosely-typed amount string.
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	s = moneyCleanRe.ReplaceAllString(s, "")
	return decimal.NewFromString(s)
}

// normalizeDate coerces a date string to YYYY-MM-DD. ISO input is well-typed;
// anything needing an alternate layout is a coercion. Impossible dates fail
// here and leave the field unset.
func normalizeDate(s string) (string, float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, false
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.Format("2006-01-02"), confidenceTyped, true
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02"), confidenceCoerced, true
		}
	}
	return "", 0, false
}

// normalizeCurrency accepts an ISO code directly or maps a bare symbol.
func normalizeCurrency(s string) (string, float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, false
	}
	if code, ok := currencySymbols[s]; ok {
		return code, confidenceCoerced, true
	}
	if len(s) == 3 {
		return strings.ToUpper(s), confidenceTyped, true
	}
	return "", 0, false
}

// lineItemsField reads the line item array, accepting both the documented
// {description, amount} shape and the older {name, price} one.
func lineItemsField(root gjson.Result) ([]LineItem, float64, bool) {
	res := root.Get("line_items")
	if !res.Exists() {
		res = root.Get("items")
	}
	if !res.IsArray() {
		return nil, 0, false
	}

	items := make([]LineItem, 0)
	confidence := confidenceTyped
	res.ForEach(func(_, item gjson.Result) bool {
		desc := item.Get("description")
		if !desc.Exists() {
			desc = item.Get("name")
		}
		amount, itemConfidence, ok := amountField(item.Get("amount"))
		if !ok {
			amount, itemConfidence, ok = amountField(item.Get("price"))
		}
		if !ok {
			return true // skip unreadable entries, keep scanning
		}
		if itemConfidence < confidence {
			confidence = itemConfidence
		}
		items = append(items, LineItem{
			Description: strings.TrimSpace(desc.String()),
			Amount:      amount,
		})
		return true
	})

	if len(items) == 0 {
		return nil, 0, false
	}
	return items, confidence, true
}

// taxField reads either a flat "tax" amount or a "taxes" object whose values
// are summed (gst/cgst/sgst style breakdowns).
func taxField(root gjson.Result) (decimal.Decimal, float64, bool) {
	if amount, confidence, ok := amountField(root.Get("tax")); ok {
		return amount, confidence, true
	}

	res := root.Get("taxes")
	if !res.IsObject() {
		return decimal.Zero, 0, false
	}

	total := decimal.Zero
	confidence := confidenceTyped
	found := false
	res.ForEach(func(_, v gjson.Result) bool {
		if amount, c, ok := amountField(v); ok {
			total = total.Add(amount)
			if c < confidence {
				confidence = c
			}
			found = true
		}
		return true
	})
	if !found {
		return decimal.Zero, 0, false
	}
	return total, confidence, true
}
