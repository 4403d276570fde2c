package extraction

import (
	"github.com/shopspring/decimal"
)

// Source identifies where an extracted field value came from.
type Source string

const (
	// SourceAI marks values parsed out of the extraction service response.
	SourceAI Source = "ai"
	// SourceRegex marks values recovered by the pattern-based fallback.
	SourceRegex Source = "regex"
	// SourceNone marks fields no extractor could determine.
	SourceNone Source = "none"
)

// Field is a single extracted value with its provenance and a confidence
// signal in [0,1] used for merge tie-breaking.
type Field[T any] struct {
	Value      T
	Source     Source
	Confidence float64
}

// Set fills the field from the given source.
func (f *Field[T]) Set(value T, source Source, confidence float64) {
	f.Value = value
	f.Source = source
	f.Confidence = confidence
}

// IsSet reports whether any extractor produced a value for this field.
func (f Field[T]) IsSet() bool {
	return f.Source != "" && f.Source != SourceNone
}

// LineItem is one purchased item on a receipt.
type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Candidate is an unvalidated, in-progress guess at a document's fields. It is
// produced jointly by the response parser and the fallback extractor and never
// persisted directly.
type Candidate struct {
	Merchant  Field[string]
	Date      Field[string] // normalized to YYYY-MM-DD
	Total     Field[decimal.Decimal]
	Currency  Field[string]
	Category  Field[string]
	LineItems Field[[]LineItem]

	// Tax and discount are optional extras some invoices itemize; the
	// validator uses them when reconciling line items against the total.
	Tax      Field[decimal.Decimal]
	Discount Field[decimal.Decimal]
}

// NewCandidate returns a candidate with every field unset.
func NewCandidate() *Candidate {
	c := &Candidate{}
	c.Merchant.Source = SourceNone
	c.Date.Source = SourceNone
	c.Total.Source = SourceNone
	c.Currency.Source = SourceNone
	c.Category.Source = SourceNone
	c.LineItems.Source = SourceNone
	c.Tax.Source = SourceNone
	c.Discount.Source = SourceNone
	return c
}
