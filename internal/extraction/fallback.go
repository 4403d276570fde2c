package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fallback confidence tiers. Pattern matches are trusted less than anything
// the AI parsed, except its coerced strings in the case of a lexicon hit.
const (
	confidenceFallbackDate     = 0.5
	confidenceFallbackTotal    = 0.5
	confidenceFallbackLargest  = 0.3
	confidenceFallbackMerchant = 0.4
	confidenceFallbackCurrency = 0.4
)

// datePattern pairs a regex with the layouts its matches are parsed with.
type datePattern struct {
	re      *regexp.Regexp
	layouts []string
}

// datePatterns are tried in order; the first pattern with a parseable match
// anywhere in the text wins.
var datePatterns = []datePattern{
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), []string{"2006-01-02"}},
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`), []string{"02/01/2006", "2/1/2006", "01/02/2006"}},
	{regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{4}\b`), []string{"02-01-2006", "2-1-2006"}},
	{regexp.MustCompile(`\b[A-Z][a-z]+\.? \d{1,2},? \d{4}\b`), []string{"January 2, 2006", "Jan 2, 2006", "January 2 2006", "Jan 2 2006", "Jan. 2, 2006"}},
	{regexp.MustCompile(`\b\d{1,2} [A-Z][a-z]+\.? \d{4}\b`), []string{"2 January 2006", "2 Jan 2006"}},
}

// totalLexicon marks lines likely to carry the grand total.
var totalLexicon = []string{"total", "amount due", "balance"}

// currencyTokenRe matches currency-like amounts: an optional symbol or code
// followed by a number with a decimal fraction.
var currencyTokenRe = regexp.MustCompile(`(?:[$€£₹]|\b(?:USD|EUR|GBP|INR|Rs\.?)\s*)?\s*\d{1,3}(?:,\d{3})*\.\d{2}\b`)

var (
	phoneLineRe   = regexp.MustCompile(`(?i)(tel|phone|fax|mob)|(\+?\d[\d\s\-().]{8,}\d)`)
	addressLineRe = regexp.MustCompile(`(?i)\b(street|st\.|road|rd\.|avenue|ave\.?|blvd|lane|suite|floor|unit|p\.?o\.? box|www\.|@|https?://)\b|\b\d{5,6}\b`)
	digitRe       = regexp.MustCompile(`\d`)
	letterRe      = regexp.MustCompile(`[A-Za-z]`)
)

// Fallback independently scans recognized text for date, total, merchant and
// currency patterns with source=regex. It never fails outright: a field with
// no match is simply left unset with source=none.
func Fallback(text string) *Candidate {
	c := NewCandidate()
	if strings.TrimSpace(text) == "" {
		return c
	}

	if iso, ok := fallbackDate(text); ok {
		c.Date.Set(iso, SourceRegex, confidenceFallbackDate)
	}

	if total, confidence, ok := fallbackTotal(text); ok {
		c.Total.Set(total, SourceRegex, confidence)
	}

	if merchant, ok := fallbackMerchant(text); ok {
		c.Merchant.Set(merchant, SourceRegex, confidenceFallbackMerchant)
	}

	if code, ok := fallbackCurrency(text); ok {
		c.Currency.Set(code, SourceRegex, confidenceFallbackCurrency)
	}

	return c
}

// fallbackDate returns the first parseable match against the ordered pattern
// list, normalized to YYYY-MM-DD.
func fallbackDate(text string) (string, bool) {
	for _, p := range datePatterns {
		for _, match := range p.re.FindAllString(text, -1) {
			for _, layout := range p.layouts {
				if d, err := time.Parse(layout, match); err == nil {
					return d.Format("2006-01-02"), true
				}
			}
		}
	}
	return "", false
}

// fallbackTotal scans currency-like tokens. Tokens on a line containing a
// total-lexicon keyword are preferred, taking the last such line since
// invoices often restate a subtotal before the grand total. With no lexicon
// hit at all, the numerically largest token on the page is a last resort at
// reduced confidence.
func fallbackTotal(text string) (decimal.Decimal, float64, bool) {
	var (
		lexiconHit   decimal.Decimal
		haveLexicon  bool
		largest      decimal.Decimal
		haveAnything bool
	)

	for _, line := range strings.Split(text, "\n") {
		tokens := currencyTokenRe.FindAllString(line, -1)
		if len(tokens) == 0 {
			continue
		}

		lower := strings.ToLower(line)
		onLexiconLine := false
		for _, keyword := range totalLexicon {
			if strings.Contains(lower, keyword) {
				onLexiconLine = true
				break
			}
		}

		for _, token := range tokens {
			amount, err := parseMoney(token)
			if err != nil {
				continue
			}
			if !haveAnything || amount.GreaterThan(largest) {
				largest = amount
				haveAnything = true
			}
			if onLexiconLine {
				lexiconHit = amount
				haveLexicon = true
			}
		}
	}

	if haveLexicon {
		return lexiconHit, confidenceFallbackTotal, true
	}
	if haveAnything {
		return largest, confidenceFallbackLargest, true
	}
	return decimal.Zero, 0, false
}

// fallbackMerchant takes the first non-empty, non-numeric line, excluding
// lines that look like addresses or phone numbers. Receipts almost always
// lead with the merchant name.
func fallbackMerchant(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 || !letterRe.MatchString(line) {
			continue
		}
		if mostlyNumeric(line) {
			continue
		}
		if phoneLineRe.MatchString(line) || addressLineRe.MatchString(line) {
			continue
		}
		return line, true
	}
	return "", false
}

// mostlyNumeric reports whether digits dominate the line.
func mostlyNumeric(line string) bool {
	digits := len(digitRe.FindAllString(line, -1))
	return digits*3 > len(line)
}

// fallbackCurrency guesses the currency from the first symbol or code seen.
func fallbackCurrency(text string) (string, bool) {
	// Check symbols in a fixed order so the guess is deterministic.
	for _, symbol := range []string{"$", "€", "£", "₹", "¥"} {
		if strings.Contains(text, symbol) {
			return currencySymbols[symbol], true
		}
	}
	for _, code := range []string{"USD", "EUR", "GBP", "INR", "JPY"} {
		if strings.Contains(text, code) {
			return code, true
		}
	}
	return "", false
}
